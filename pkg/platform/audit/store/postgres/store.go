package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "dab/pkg/domain"
	audit "dab/pkg/platform/audit"
)

// Store implements audit.Store on an append-only audit_events table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var schemaAuditEvents = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		id UUID PRIMARY KEY,
		category TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		subject TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS audit_events_actor_idx ON audit_events (actor, timestamp)`,
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaAuditEvents {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate audit_events: %w", err)
		}
	}
	return nil
}

// Append inserts an event. Category is always derived from the action.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (id, category, timestamp, actor, action, subject, reason, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(),
		string(audit.AuditEvent(event.Action).Category()),
		event.Timestamp,
		event.Actor.String(),
		event.Action,
		event.Subject,
		event.Reason,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByActor returns events for one caller, oldest first.
func (s *Store) ListByActor(ctx context.Context, actor id.Identity) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, actor, action, subject, reason, request_id
		FROM audit_events
		WHERE actor = $1
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, actor.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the N most recent events, oldest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, actor, action, subject, reason, request_id
		FROM (
			SELECT * FROM audit_events ORDER BY timestamp DESC LIMIT $1
		) recent
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			category string
			actor    string
		)
		if err := rows.Scan(&category, &event.Timestamp, &actor, &event.Action,
			&event.Subject, &event.Reason, &event.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Actor = id.Identity(actor)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
