package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pollwatch/internal/results"
	"pollwatch/pkg/platform/sentinel"
	"pollwatch/pkg/platform/tx"
)

const selectRecord = `SELECT unit_id, region, registered_voters, accredited_voters, votes, status,
	submitted_at, proof_reference, reviewed_by, reviewed_at, version FROM result_records`

// PostgresStore persists current records in the result_records table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed result store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, unitID string) (*results.ResultRecord, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx, selectRecord+` WHERE unit_id = $1`, unitID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("result for unit %s: %w", unitID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get result record: %w", err)
	}
	return rec, nil
}

// Put upserts rec. A write carrying a version not newer than the stored one is
// refused with sentinel.ErrInvalidState, which keeps a slower writer from
// overwriting a newer record.
func (s *PostgresStore) Put(ctx context.Context, rec *results.ResultRecord) error {
	if rec == nil {
		return fmt.Errorf("result record is required")
	}
	votes, err := json.Marshal(rec.Votes.Clone())
	if err != nil {
		return fmt.Errorf("encode votes: %w", err)
	}
	var reviewedAt sql.NullTime
	if rec.ReviewedAt != nil {
		reviewedAt = sql.NullTime{Time: *rec.ReviewedAt, Valid: true}
	}

	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO result_records (unit_id, region, registered_voters, accredited_voters, votes, status,
			submitted_at, proof_reference, reviewed_by, reviewed_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (unit_id) DO UPDATE SET
			region = EXCLUDED.region,
			registered_voters = EXCLUDED.registered_voters,
			accredited_voters = EXCLUDED.accredited_voters,
			votes = EXCLUDED.votes,
			status = EXCLUDED.status,
			submitted_at = EXCLUDED.submitted_at,
			proof_reference = EXCLUDED.proof_reference,
			reviewed_by = EXCLUDED.reviewed_by,
			reviewed_at = EXCLUDED.reviewed_at,
			version = EXCLUDED.version
		WHERE result_records.version < EXCLUDED.version`,
		rec.UnitID, rec.Region, rec.RegisteredVoters, rec.AccreditedVoters, votes, string(rec.Status),
		rec.SubmittedAt, rec.ProofReference, rec.ReviewedBy, reviewedAt, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("upsert result record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert result record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("result for unit %s at version %d is stale: %w", rec.UnitID, rec.Version, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, f results.Filter) ([]*results.ResultRecord, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Region != "" {
		args = append(args, f.Region)
		clauses = append(clauses, fmt.Sprintf("region = $%d", len(args)))
	}
	query := selectRecord
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY unit_id"

	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list result records: %w", err)
	}
	defer rows.Close()

	var out []*results.ResultRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result records: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*results.ResultRecord, error) {
	var (
		rec        results.ResultRecord
		votes      []byte
		status     string
		reviewedAt sql.NullTime
	)
	err := row.Scan(&rec.UnitID, &rec.Region, &rec.RegisteredVoters, &rec.AccreditedVoters, &votes, &status,
		&rec.SubmittedAt, &rec.ProofReference, &rec.ReviewedBy, &reviewedAt, &rec.Version)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(votes, &rec.Votes); err != nil {
		return nil, fmt.Errorf("decode votes: %w", err)
	}
	rec.Status = results.Status(status)
	if reviewedAt.Valid {
		at := reviewedAt.Time.UTC()
		rec.ReviewedAt = &at
	}
	rec.SubmittedAt = rec.SubmittedAt.UTC()
	return &rec, nil
}
