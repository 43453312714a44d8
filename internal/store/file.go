package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/safetrack-gps/safetrack/internal/safety"
)

// FileRegistry is a safety.Registry persisted to a single JSON file. It
// wraps the in-memory registry for locking and serving reads; every
// successful mutation is written through synchronously so a vehicle's state
// is durable before the caller sees it as done.
type FileRegistry struct {
	*safety.MemoryRegistry

	path string
	mu   sync.Mutex // serializes file writes
}

func NewFileRegistry(path string) (*FileRegistry, error) {
	r := &FileRegistry{
		MemoryRegistry: safety.NewMemoryRegistry(),
		path:           path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var vehicles []*safety.Vehicle
	if err := json.Unmarshal(data, &vehicles); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, v := range vehicles {
		if err := r.MemoryRegistry.Create(context.Background(), v); err != nil {
			return nil, err
		}
	}

	log.Info().Str("path", path).Int("vehicles", len(vehicles)).Msg("registry loaded")
	return r, nil
}

func (r *FileRegistry) Create(ctx context.Context, v *safety.Vehicle) error {
	if err := r.MemoryRegistry.Create(ctx, v); err != nil {
		return err
	}
	return r.save(ctx)
}

func (r *FileRegistry) Update(ctx context.Context, vehicleID string, mutate func(v *safety.Vehicle) error) (*safety.Vehicle, error) {
	updated, err := r.MemoryRegistry.Update(ctx, vehicleID, mutate)
	if err != nil {
		return nil, err
	}
	if err := r.save(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *FileRegistry) save(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	vehicles, err := r.MemoryRegistry.Snapshot(ctx)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(vehicles, "", "  ")
	if err != nil {
		return err
	}

	// write-then-rename keeps a crash from truncating the registry
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(tmp), err)
	}
	return nil
}
