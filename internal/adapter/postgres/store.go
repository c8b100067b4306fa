// Package postgres is the persistence gateway. One Store wraps a pgx pool
// and carries the incident, group, alert, and tenant tables plus the bulk
// maintenance queries the scheduler runs.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a pool against dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports pool health for the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id                      text PRIMARY KEY,
	name                    text NOT NULL,
	agency_ids              text[] NOT NULL DEFAULT '{}',
	zone_codes              text[] NOT NULL DEFAULT '{}',
	incident_sync_enabled   boolean NOT NULL DEFAULT true,
	weather_sync_enabled    boolean NOT NULL DEFAULT true,
	weather_posting_enabled boolean NOT NULL DEFAULT false,
	post_threshold          integer NOT NULL DEFAULT 55
);

CREATE TABLE IF NOT EXISTS incident_groups (
	id           uuid PRIMARY KEY,
	tenant_id    text NOT NULL REFERENCES tenants(id),
	merge_key    text NOT NULL,
	window_start timestamptz NOT NULL,
	window_end   timestamptz NOT NULL,
	merge_reason text NOT NULL DEFAULT '',
	created_at   timestamptz NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, merge_key)
);

CREATE TABLE IF NOT EXISTS incidents (
	id                 uuid PRIMARY KEY,
	tenant_id          text NOT NULL REFERENCES tenants(id),
	external_id        text NOT NULL,
	source             text NOT NULL,
	call_type          text NOT NULL DEFAULT '',
	category           text NOT NULL DEFAULT 'other',
	full_address       text NOT NULL DEFAULT '',
	normalized_address text NOT NULL DEFAULT '',
	latitude           double precision,
	longitude          double precision,
	units              text[] NOT NULL DEFAULT '{}',
	unit_statuses      jsonb NOT NULL DEFAULT '[]',
	status             text NOT NULL,
	call_received_time timestamptz NOT NULL,
	call_closed_time   timestamptz,
	group_id           uuid REFERENCES incident_groups(id),
	created_at         timestamptz NOT NULL,
	updated_at         timestamptz NOT NULL,
	UNIQUE (tenant_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_incidents_merge_lookup
	ON incidents (tenant_id, normalized_address, call_received_time);
CREATE INDEX IF NOT EXISTS idx_incidents_status
	ON incidents (status, call_received_time);

CREATE TABLE IF NOT EXISTS weather_alerts (
	id                      uuid PRIMARY KEY,
	tenant_id               text NOT NULL REFERENCES tenants(id),
	nws_id                  text NOT NULL,
	event                   text NOT NULL DEFAULT '',
	headline                text NOT NULL DEFAULT '',
	description             text NOT NULL DEFAULT '',
	instruction             text NOT NULL DEFAULT '',
	severity                text NOT NULL DEFAULT 'Unknown',
	urgency                 text NOT NULL DEFAULT 'Unknown',
	certainty               text NOT NULL DEFAULT 'Unknown',
	onset                   timestamptz,
	expires                 timestamptz,
	ends                    timestamptz,
	affected_zones          text[] NOT NULL DEFAULT '{}',
	status                  text NOT NULL,
	last_facebook_post_time timestamptz,
	facebook_post_id        text NOT NULL DEFAULT '',
	created_at              timestamptz NOT NULL,
	updated_at              timestamptz NOT NULL,
	UNIQUE (tenant_id, nws_id)
);

CREATE INDEX IF NOT EXISTS idx_weather_alerts_status
	ON weather_alerts (tenant_id, status);
`

// EnsureSchema creates the tables and indexes when missing. Safe to run on
// every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
