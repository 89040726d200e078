package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"dab/internal/registry/models"
	id "dab/pkg/domain"
)

const schemaCanisters = `
CREATE TABLE IF NOT EXISTS canisters (
	name         TEXT PRIMARY KEY,
	principal_id TEXT NOT NULL,
	standard     TEXT NOT NULL
)`

// PostgresStore persists the named registry in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed registry store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the canisters table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaCanisters); err != nil {
		return fmt.Errorf("migrate canisters: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, d *models.CanisterDescriptor) error {
	if d == nil {
		return fmt.Errorf("canister descriptor is required")
	}
	query := `
		INSERT INTO canisters (name, principal_id, standard)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			principal_id = EXCLUDED.principal_id,
			standard = EXCLUDED.standard
	`
	if _, err := s.db.ExecContext(ctx, query, d.Name, d.TargetID.String(), d.Standard); err != nil {
		return fmt.Errorf("save canister: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM canisters WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete canister: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete canister rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByName(ctx context.Context, name string) (*models.CanisterDescriptor, error) {
	var (
		d      models.CanisterDescriptor
		target string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, principal_id, standard FROM canisters WHERE name = $1`, name,
	).Scan(&d.Name, &target, &d.Standard)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find canister: %w", err)
	}
	d.TargetID = id.Identity(target)
	return &d, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.CanisterDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, principal_id, standard FROM canisters ORDER BY name COLLATE "C"`)
	if err != nil {
		return nil, fmt.Errorf("list canisters: %w", err)
	}
	defer rows.Close()

	var out []*models.CanisterDescriptor
	for rows.Next() {
		var (
			d      models.CanisterDescriptor
			target string
		)
		if err := rows.Scan(&d.Name, &target, &d.Standard); err != nil {
			return nil, fmt.Errorf("scan canister: %w", err)
		}
		d.TargetID = id.Identity(target)
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canisters: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM canisters`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count canisters: %w", err)
	}
	return count, nil
}

// Replace swaps the table contents in one transaction.
// Uses a single INSERT over unnest instead of per-row inserts.
func (s *PostgresStore) Replace(ctx context.Context, descriptors []*models.CanisterDescriptor) error {
	names := make([]string, 0, len(descriptors))
	targets := make([]string, 0, len(descriptors))
	standards := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.Name)
		targets = append(targets, d.TargetID.String())
		standards = append(standards, d.Standard)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace canisters: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM canisters`); err != nil {
		return fmt.Errorf("clear canisters: %w", err)
	}
	if len(names) > 0 {
		query := `
			INSERT INTO canisters (name, principal_id, standard)
			SELECT * FROM unnest($1::text[], $2::text[], $3::text[])
			ON CONFLICT (name) DO UPDATE SET
				principal_id = EXCLUDED.principal_id,
				standard = EXCLUDED.standard
		`
		if _, err := tx.ExecContext(ctx, query, pq.Array(names), pq.Array(targets), pq.Array(standards)); err != nil {
			return fmt.Errorf("insert canisters: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace canisters: %w", err)
	}
	return nil
}
