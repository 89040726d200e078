package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"dab/internal/addressbook/models"
	id "dab/pkg/domain"
)

// The composite primary key doubles as the owner range index.
const schemaAddressBook = `
CREATE TABLE IF NOT EXISTS address_book (
	owner       TEXT NOT NULL,
	name        TEXT COLLATE "C" NOT NULL,
	canister_id TEXT NOT NULL,
	PRIMARY KEY (owner, name)
)`

// PostgresStore persists address books in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaAddressBook); err != nil {
		return fmt.Errorf("migrate address_book: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, entry *models.AddressEntry) error {
	query := `
		INSERT INTO address_book (owner, name, canister_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner, name) DO UPDATE SET canister_id = EXCLUDED.canister_id
	`
	if _, err := s.db.ExecContext(ctx, query, entry.Owner.String(), entry.Name, entry.TargetID.String()); err != nil {
		return fmt.Errorf("put address: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key models.Key) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM address_book WHERE owner = $1 AND name = $2`,
		key.Owner.String(), key.Name)
	if err != nil {
		return false, fmt.Errorf("delete address: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete address rows: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) Find(ctx context.Context, key models.Key) (*models.AddressEntry, error) {
	var target string
	err := s.db.QueryRowContext(ctx,
		`SELECT canister_id FROM address_book WHERE owner = $1 AND name = $2`,
		key.Owner.String(), key.Name,
	).Scan(&target)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find address: %w", err)
	}
	return &models.AddressEntry{Owner: key.Owner, Name: key.Name, TargetID: id.Identity(target)}, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.Identity) ([]*models.AddressEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner, name, canister_id FROM address_book WHERE owner = $1 ORDER BY name`,
		owner.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) DeleteByOwner(ctx context.Context, owner id.Identity) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM address_book WHERE owner = $1`, owner.String())
	if err != nil {
		return 0, fmt.Errorf("delete addresses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete addresses rows: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.AddressEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner, name, canister_id FROM address_book ORDER BY owner COLLATE "C", name`)
	if err != nil {
		return nil, fmt.Errorf("list address book: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM address_book`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count address book: %w", err)
	}
	return count, nil
}

// Replace swaps the table contents in one transaction.
func (s *PostgresStore) Replace(ctx context.Context, entries []*models.AddressEntry) error {
	owners := make([]string, 0, len(entries))
	names := make([]string, 0, len(entries))
	targets := make([]string, 0, len(entries))
	for _, e := range entries {
		owners = append(owners, e.Owner.String())
		names = append(names, e.Name)
		targets = append(targets, e.TargetID.String())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace address book: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM address_book`); err != nil {
		return fmt.Errorf("clear address book: %w", err)
	}
	if len(owners) > 0 {
		query := `
			INSERT INTO address_book (owner, name, canister_id)
			SELECT * FROM unnest($1::text[], $2::text[], $3::text[])
			ON CONFLICT (owner, name) DO UPDATE SET canister_id = EXCLUDED.canister_id
		`
		if _, err := tx.ExecContext(ctx, query, pq.Array(owners), pq.Array(names), pq.Array(targets)); err != nil {
			return fmt.Errorf("insert address book: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace address book: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]*models.AddressEntry, error) {
	out := []*models.AddressEntry{}
	for rows.Next() {
		var owner, name, target string
		if err := rows.Scan(&owner, &name, &target); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		out = append(out, &models.AddressEntry{
			Owner:    id.Identity(owner),
			Name:     name,
			TargetID: id.Identity(target),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addresses: %w", err)
	}
	return out, nil
}
