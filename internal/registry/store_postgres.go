package registry

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"pollwatch/pkg/platform/tx"
)

// PostgresSource loads and seeds the unit catalog from the polling_units table.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource constructs a PostgreSQL-backed registry source.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Load reads every polling unit. When ids are given only those are read.
func (s *PostgresSource) Load(ctx context.Context, ids ...string) ([]PollingUnit, error) {
	query := `SELECT id, name, region, registered_voters FROM polling_units`
	args := []any{}
	if len(ids) > 0 {
		query += ` WHERE id = ANY($1)`
		args = append(args, pq.Array(ids))
	}
	query += ` ORDER BY id`

	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query polling units: %w", err)
	}
	defer rows.Close()

	var units []PollingUnit
	for rows.Next() {
		var u PollingUnit
		if err := rows.Scan(&u.ID, &u.Name, &u.Region, &u.RegisteredVoters); err != nil {
			return nil, fmt.Errorf("scan polling unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate polling units: %w", err)
	}
	return units, nil
}

// Save upserts units in one statement using unnest over parallel arrays.
func (s *PostgresSource) Save(ctx context.Context, units []PollingUnit) error {
	if len(units) == 0 {
		return nil
	}
	ids := make([]string, len(units))
	names := make([]string, len(units))
	regions := make([]string, len(units))
	registered := make([]int64, len(units))
	for i, u := range units {
		ids[i], names[i], regions[i], registered[i] = u.ID, u.Name, u.Region, u.RegisteredVoters
	}

	query := `
		INSERT INTO polling_units (id, name, region, registered_voters)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::int[])
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			region = EXCLUDED.region,
			registered_voters = EXCLUDED.registered_voters
	`
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, query,
		pq.Array(ids), pq.Array(names), pq.Array(regions), pq.Array(registered))
	if err != nil {
		return fmt.Errorf("upsert polling units: %w", err)
	}
	return nil
}

// LoadCatalog reads every unit into a Catalog with the given candidates.
func (s *PostgresSource) LoadCatalog(ctx context.Context, candidates []Candidate) (*Catalog, error) {
	units, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewCatalog(units, candidates)
}
