package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/safetrack-gps/safetrack/internal/safety"
)

const (
	vehicleKeyPrefix = "safety:vehicle:"
	vehicleIndexKey  = "safety:vehicles"

	// Update retries under WATCH contention. Contention on a single vehicle
	// key is rare (per-vehicle operations are serialized upstream), so a
	// small budget is enough.
	maxTxRetries = 5
)

// RedisRegistry is a safety.Registry backed by redis. Atomic per-key
// read-modify-write is done with WATCH + MULTI/EXEC optimistic transactions.
type RedisRegistry struct {
	client *redis.Client
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisRegistry(ctx context.Context, cfg RedisConfig) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRegistry{client: client}, nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

func vehicleKey(vehicleID string) string {
	return vehicleKeyPrefix + vehicleID
}

func (r *RedisRegistry) Create(ctx context.Context, v *safety.Vehicle) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, vehicleKey(v.VehicleID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis create: %w", err)
	}
	if !ok {
		return fmt.Errorf("vehicle %s already registered: %w", v.VehicleID, safety.ErrInvalidConfig)
	}
	return r.client.SAdd(ctx, vehicleIndexKey, v.VehicleID).Err()
}

func (r *RedisRegistry) Get(ctx context.Context, vehicleID string) (*safety.Vehicle, error) {
	data, err := r.client.Get(ctx, vehicleKey(vehicleID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("vehicle %s: %w", vehicleID, safety.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var v safety.Vehicle
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *RedisRegistry) Snapshot(ctx context.Context) ([]*safety.Vehicle, error) {
	ids, err := r.client.SMembers(ctx, vehicleIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis snapshot: %w", err)
	}

	all := make([]*safety.Vehicle, 0, len(ids))
	for _, id := range ids {
		v, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, safety.ErrNotFound) {
				continue
			}
			return nil, err
		}
		all = append(all, v)
	}
	return all, nil
}

func (r *RedisRegistry) Update(ctx context.Context, vehicleID string, mutate func(v *safety.Vehicle) error) (*safety.Vehicle, error) {
	key := vehicleKey(vehicleID)

	var updated *safety.Vehicle
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return fmt.Errorf("vehicle %s: %w", vehicleID, safety.ErrNotFound)
		}
		if err != nil {
			return err
		}

		var v safety.Vehicle
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		if err := mutate(&v); err != nil {
			return err
		}

		next, err := json.Marshal(&v)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err == nil {
			updated = &v
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("vehicle %s update contention: %w", vehicleID, safety.ErrUpstreamUnavailable)
}
