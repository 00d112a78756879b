// Package postgres opens the shared database handle and owns the schema the
// Postgres-backed stores rely on.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" driver

	"pollwatch/pkg/platform/tx"
)

// Schema creates the tables used by the registry and result stores. It is
// idempotent and safe to run at every start.
const Schema = `
CREATE TABLE IF NOT EXISTS polling_units (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	region            TEXT NOT NULL,
	registered_voters INTEGER NOT NULL CHECK (registered_voters >= 0)
);

CREATE TABLE IF NOT EXISTS result_records (
	unit_id           TEXT PRIMARY KEY REFERENCES polling_units (id),
	region            TEXT NOT NULL,
	registered_voters INTEGER NOT NULL,
	accredited_voters INTEGER NOT NULL CHECK (accredited_voters >= 0),
	votes             JSONB NOT NULL DEFAULT '{}'::jsonb,
	status            TEXT NOT NULL,
	submitted_at      TIMESTAMPTZ NOT NULL,
	proof_reference   TEXT NOT NULL DEFAULT '',
	reviewed_by       TEXT NOT NULL DEFAULT '',
	reviewed_at       TIMESTAMPTZ,
	version           BIGINT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS result_records_status_idx ON result_records (status);
CREATE INDEX IF NOT EXISTS result_records_region_idx ON result_records (region);

CREATE TABLE IF NOT EXISTS audit_events (
	id            UUID PRIMARY KEY,
	category      TEXT NOT NULL,
	action        TEXT NOT NULL,
	unit_id       TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT '',
	operator_id   TEXT NOT NULL DEFAULT '',
	operator_role TEXT NOT NULL DEFAULT '',
	request_id    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_events_unit_idx ON audit_events (unit_id, created_at DESC);
CREATE INDEX IF NOT EXISTS audit_events_created_idx ON audit_events (created_at DESC);
`

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
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

// Migrate applies Schema. It joins a transaction already carried by ctx.
func Migrate(ctx context.Context, db *sql.DB) error {
	return tx.Run(ctx, db, func(ctx context.Context) error {
		if _, err := tx.Exec(ctx, db).ExecContext(ctx, Schema); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		return nil
	})
}
