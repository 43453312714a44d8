package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/safetrack-gps/safetrack/internal/safety"
)

// PostgresAuditStore keeps an append-only log of closed incidents. Audit
// writes are best-effort from the manager's point of view; a failed insert
// never blocks closing the incident.
type PostgresAuditStore struct {
	pool *pgxpool.Pool
}

func NewPostgresAuditStore(ctx context.Context, dsn string) (*PostgresAuditStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &PostgresAuditStore{pool: pool}, nil
}

func (s *PostgresAuditStore) Close() {
	s.pool.Close()
}

// InitSchema creates the audit table if it does not exist yet.
func (s *PostgresAuditStore) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS incident_audit (
			id           TEXT PRIMARY KEY,
			vehicle_id   TEXT NOT NULL,
			contract_id  TEXT NOT NULL,
			cause        TEXT NOT NULL,
			channel      TEXT NOT NULL,
			outcome      TEXT NOT NULL,
			started_at   TIMESTAMPTZ NOT NULL,
			closed_at    TIMESTAMPTZ NOT NULL,
			last_lat     DOUBLE PRECISION,
			last_lon     DOUBLE PRECISION
		)`)
	return err
}

func (s *PostgresAuditStore) RecordClosedIncident(ctx context.Context, vehicleID, contractID string, rec *safety.IncidentRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO incident_audit
			(id, vehicle_id, contract_id, cause, channel, outcome, started_at, closed_at, last_lat, last_lon)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, vehicleID, contractID, rec.Cause, rec.Channel, string(rec.Outcome),
		rec.StartedAt, rec.ClosedAt, rec.LastLat, rec.LastLon)
	if err != nil {
		return fmt.Errorf("incident audit insert failed: %w", err)
	}
	return nil
}
