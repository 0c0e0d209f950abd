// Package postgres owns the database handle and schema bootstrap.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies the schema. Statements are idempotent so startup can run
// it unconditionally; a dedicated migration tool can take over later.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		date TEXT NOT NULL DEFAULT '',
		time TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT '',
		duration TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		max_participants INT NOT NULL,
		participants INT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'upcoming',
		guidelines JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT participants_non_negative CHECK (participants >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS races (
		id UUID PRIMARY KEY,
		event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		number_of_laps INT,
		stages JSONB NOT NULL DEFAULT '[]',
		date TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL DEFAULT '',
		estimated_duration TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'upcoming',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS races_event_idx ON races (event_id, status)`,
	`CREATE TABLE IF NOT EXISTS registrations (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		race_ids JSONB NOT NULL DEFAULT '[]',
		vehicle_ids JSONB NOT NULL DEFAULT '[]',
		vehicles_by_race JSONB NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'pending',
		applied_at TIMESTAMPTZ NOT NULL,
		reviewed_at TIMESTAMPTZ,
		reviewed_by UUID,
		review_notes TEXT NOT NULL DEFAULT '',
		emergency_contact JSONB NOT NULL DEFAULT '{}',
		medical_conditions TEXT NOT NULL DEFAULT '',
		experience_level TEXT NOT NULL DEFAULT 'beginner',
		additional_notes TEXT NOT NULL DEFAULT '',
		CONSTRAINT registrations_user_event_key UNIQUE (user_id, event_id)
	)`,
	`CREATE INDEX IF NOT EXISTS registrations_event_status_idx ON registrations (event_id, status)`,
	`CREATE INDEX IF NOT EXISTS registrations_status_applied_idx ON registrations (status, applied_at DESC)`,
	`CREATE TABLE IF NOT EXISTS results (
		id UUID PRIMARY KEY,
		event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		race_id UUID NOT NULL REFERENCES races(id) ON DELETE CASCADE,
		registration_id UUID NOT NULL REFERENCES registrations(id) ON DELETE CASCADE,
		user_id UUID NOT NULL,
		vehicle_id UUID,
		score INT NOT NULL DEFAULT 0,
		finishing_time_ms BIGINT NOT NULL DEFAULT 0,
		position INT,
		notes TEXT NOT NULL DEFAULT '',
		verified_by_admin BOOLEAN NOT NULL DEFAULT FALSE,
		verified_at TIMESTAMPTZ,
		verified_by UUID,
		guideline_checklist JSONB NOT NULL DEFAULT '[]',
		verification_notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT results_event_race_user_key UNIQUE (event_id, race_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS results_race_idx ON results (race_id)`,
	`CREATE INDEX IF NOT EXISTS results_registration_idx ON results (registration_id)`,
}
