package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "pollworker/pkg/domain"
	"pollworker/pkg/platform/sentinel"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestPostgresCreate_UniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := s.Create(context.Background(), newUser("pat@example.com"))
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByEmail(t *testing.T) {
	s, mock := newMockStore(t)
	userID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE lower(email) = lower($1)`)).
		WithArgs("pat@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "email", "password_hash", "is_admin", "email_verified_at", "created_at", "updated_at",
		}).AddRow(userID.String(), "Pat", "pat@example.com", "hash", true, now, now, now))

	u, err := s.FindByEmail(context.Background(), "pat@example.com")
	require.NoError(t, err)
	assert.Equal(t, id.UserID(userID), u.ID)
	assert.True(t, u.IsAdmin)
	require.NotNil(t, u.EmailVerifiedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByID_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.FindByID(context.Background(), id.NewUserID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresDelete_NoRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.Delete(context.Background(), id.NewUserID()), sentinel.ErrNotFound)
}

func TestPostgresNamesByIDs(t *testing.T) {
	s, mock := newMockStore(t)
	known := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name FROM users WHERE id::text = ANY($1::text[])`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(known.String(), "Reviewer"))

	names, err := s.NamesByIDs(context.Background(), []id.UserID{id.UserID(known), id.NewUserID()})
	require.NoError(t, err)
	assert.Equal(t, map[id.UserID]string{id.UserID(known): "Reviewer"}, names)

	empty, err := s.NamesByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	require.NoError(t, mock.ExpectationsWereMet())
}
