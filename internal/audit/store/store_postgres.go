package store

import (
	"context"
	"database/sql"
	"fmt"

	"pollwatch/internal/audit"
	"pollwatch/pkg/platform/tx"
)

// PostgresStore persists the trail in the audit_events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append writes events in one transaction. Replays of an event id are
// ignored.
func (s *PostgresStore) Append(ctx context.Context, events ...audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	return tx.Run(ctx, s.db, func(ctx context.Context) error {
		for _, ev := range events {
			_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
				INSERT INTO audit_events (id, category, action, unit_id, status, reason,
					operator_id, operator_role, request_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (id) DO NOTHING`,
				ev.ID, string(ev.Category), string(ev.Action), ev.UnitID, ev.Status, ev.Reason,
				ev.OperatorID, ev.OperatorRole, ev.RequestID, ev.Timestamp,
			)
			if err != nil {
				return fmt.Errorf("insert audit event %s: %w", ev.ID, err)
			}
		}
		return nil
	})
}

// List returns matching events newest first.
func (s *PostgresStore) List(ctx context.Context, q audit.Query) ([]audit.Event, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, category, action, unit_id, status, reason, operator_id, operator_role,
		request_id, created_at FROM audit_events`
	args := []any{}
	if q.UnitID != "" {
		query += ` WHERE unit_id = $1`
		args = append(args, q.UnitID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT %d`, limit)

	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			ev       audit.Event
			category string
			action   string
		)
		if err := rows.Scan(&ev.ID, &category, &action, &ev.UnitID, &ev.Status, &ev.Reason,
			&ev.OperatorID, &ev.OperatorRole, &ev.RequestID, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Category = audit.Category(category)
		ev.Action = audit.Action(action)
		ev.Timestamp = ev.Timestamp.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
