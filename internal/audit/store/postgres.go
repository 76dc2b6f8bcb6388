package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"pollworker/internal/audit"
)

// PostgresStore appends audit events to the audit_events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event audit.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, occurred_at, action, application_id, actor_id, subject, detail, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), event.Timestamp, event.Action,
		nullString(event.ApplicationID), nullString(event.ActorID),
		nullString(event.Subject), nullString(event.Detail), nullString(event.RequestID),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByApplication(ctx context.Context, applicationID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, action, application_id, actor_id, subject, detail, request_id
		FROM audit_events
		WHERE application_id = $1
		ORDER BY occurred_at ASC, id ASC`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	out := []audit.Event{}
	for rows.Next() {
		var e audit.Event
		var appID, actorID, subject, detail, requestID sql.NullString
		if err := rows.Scan(&e.Timestamp, &e.Action, &appID, &actorID, &subject, &detail, &requestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.ApplicationID = appID.String
		e.ActorID = actorID.String
		e.Subject = subject.String
		e.Detail = detail.String
		e.RequestID = requestID.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
