package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"pollworker/internal/user/models"
	id "pollworker/pkg/domain"
	"pollworker/pkg/platform/sentinel"
	txcontext "pollworker/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists users in PostgreSQL. Calls join the transaction
// carried by the context, if any.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, name, email, password_hash, is_admin, email_verified_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(user.ID), user.Name, user.Email, user.PasswordHash, user.IsAdmin,
		user.EmailVerifiedAt, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("user email %s: %w", user.Email, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
	return scanUser(row)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (s *PostgresStore) Delete(ctx context.Context, userID id.UserID) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// NamesByIDs resolves display names for the given users. Unknown IDs are omitted.
func (s *PostgresStore) NamesByIDs(ctx context.Context, ids []id.UserID) (map[id.UserID]string, error) {
	out := make(map[id.UserID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, userID := range ids {
		keys[i] = userID.String()
	}

	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT id, name FROM users WHERE id::text = ANY($1::text[])`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("query user names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rawID uuid.UUID
			name  string
		)
		if err := rows.Scan(&rawID, &name); err != nil {
			return nil, fmt.Errorf("scan user name: %w", err)
		}
		out[id.UserID(rawID)] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user names: %w", err)
	}
	return out, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u        models.User
		rawID    uuid.UUID
		verified sql.NullTime
	)
	err := row.Scan(&rawID, &u.Name, &u.Email, &u.PasswordHash, &u.IsAdmin, &verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.ID = id.UserID(rawID)
	if verified.Valid {
		t := verified.Time
		u.EmailVerifiedAt = &t
	}
	return &u, nil
}
