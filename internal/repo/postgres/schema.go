package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS message_states (
		message_id TEXT PRIMARY KEY,
		state_name TEXT,
		actor_name TEXT,
		args JSONB,
		kwargs JSONB,
		priority INTEGER,
		group_id TEXT,
		pipeline_id TEXT,
		enqueued_at TIMESTAMPTZ,
		started_at TIMESTAMPTZ,
		end_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS message_states_expires_at_idx ON message_states (expires_at)`,
	`CREATE INDEX IF NOT EXISTS message_states_group_id_idx ON message_states (group_id)`,
	`CREATE TABLE IF NOT EXISTS message_cancellations (
		message_id TEXT PRIMARY KEY,
		canceled_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lifecycle_events (
		event_id BIGSERIAL PRIMARY KEY,
		occurred_at TIMESTAMPTZ NOT NULL,
		kind TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		actor_name TEXT,
		payload JSONB NOT NULL,
		integrity_sha256 TEXT NOT NULL
	)`,
}

// EnsureSchema creates the tables used by the stores in this package.
func EnsureSchema(ctx context.Context, db DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
