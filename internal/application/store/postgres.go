package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"pollworker/internal/application/models"
	id "pollworker/pkg/domain"
	"pollworker/pkg/platform/sentinel"
	txcontext "pollworker/pkg/platform/tx"
	"pollworker/pkg/requestcontext"
)

const uniqueViolation = "23505"

// PostgresStore persists applications in PostgreSQL. Reads issued inside a
// transaction lock the selected row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const applicationColumns = `id, name, email, street_address,
	email_verified_at, verification_token, verification_token_expires_at, consumed_token,
	residency_status, residency_validated_at, residency_validated_by,
	party_affiliation, party_assigned_at, party_assigned_by,
	user_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) Create(ctx context.Context, app *models.Application) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		uuid.UUID(app.ID), app.Name, app.Email, app.StreetAddress,
		app.EmailVerifiedAt, app.VerificationToken, app.VerificationTokenExpiresAt, app.ConsumedToken,
		string(app.ResidencyStatus), app.ResidencyValidatedAt, nullUserID(app.ResidencyValidatedBy),
		nullParty(app.PartyAffiliation), app.PartyAssignedAt, nullUserID(app.PartyAssignedBy),
		nullUserID(app.UserID), app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return translateWriteError(err, app.Email)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.findOne(ctx, `id = $1`, uuid.UUID(appID))
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.Application, error) {
	return s.findOne(ctx, `verification_token = $1`, token)
}

func (s *PostgresStore) FindByConsumedToken(ctx context.Context, token string) (*models.Application, error) {
	return s.findOne(ctx, `consumed_token = $1`, token)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, address string) (*models.Application, error) {
	return s.findOne(ctx, `lower(email) = lower($1)`, address)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE ` + where
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	app, err := scanApplication(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) Update(ctx context.Context, app *models.Application) error {
	now := requestcontext.Now(ctx)
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE applications SET
			name = $2, email = $3, street_address = $4,
			email_verified_at = $5, verification_token = $6, verification_token_expires_at = $7, consumed_token = $8,
			residency_status = $9, residency_validated_at = $10, residency_validated_by = $11,
			party_affiliation = $12, party_assigned_at = $13, party_assigned_by = $14,
			user_id = $15, updated_at = $16
		WHERE id = $1`,
		uuid.UUID(app.ID), app.Name, app.Email, app.StreetAddress,
		app.EmailVerifiedAt, app.VerificationToken, app.VerificationTokenExpiresAt, app.ConsumedToken,
		string(app.ResidencyStatus), app.ResidencyValidatedAt, nullUserID(app.ResidencyValidatedBy),
		nullParty(app.PartyAffiliation), app.PartyAssignedAt, nullUserID(app.PartyAssignedBy),
		nullUserID(app.UserID), now,
	)
	if err != nil {
		return translateWriteError(err, app.Email)
	}
	if err := requireOneRow(res, sentinel.ErrNotFound); err != nil {
		return err
	}
	app.UpdatedAt = now
	return nil
}

// MarkVerified only succeeds while the row is unverified and still holds the
// consumed token; otherwise it returns sentinel.ErrConflict.
func (s *PostgresStore) MarkVerified(ctx context.Context, app *models.Application) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE applications SET
			email_verified_at = $2, consumed_token = $3,
			verification_token = NULL, verification_token_expires_at = NULL,
			user_id = $4, updated_at = $5
		WHERE id = $1 AND email_verified_at IS NULL AND verification_token = $3`,
		uuid.UUID(app.ID), app.EmailVerifiedAt, app.ConsumedToken, nullUserID(app.UserID), app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("mark application verified: %w", err)
	}
	return requireOneRow(res, sentinel.ErrConflict)
}

func (s *PostgresStore) Delete(ctx context.Context, appID id.ApplicationID) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, uuid.UUID(appID))
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	return requireOneRow(res, sentinel.ErrNotFound)
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Application, int, error) {
	where, args := buildFilter(filter)
	exec := txcontext.Executor(ctx, s.db)

	var total int
	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM applications`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	n := len(args)
	query := `SELECT ` + applicationColumns + ` FROM applications` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args = append(args, models.PageSize, filter.Offset())

	items, err := s.queryMany(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (models.DashboardStats, error) {
	var stats models.DashboardStats
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE residency_status = 'pending'),
			COUNT(*) FILTER (WHERE residency_status = 'pending' AND email_verified_at IS NOT NULL),
			COUNT(*) FILTER (WHERE residency_status = 'approved' AND party_affiliation IS NULL)
		FROM applications`,
	).Scan(&stats.Total, &stats.PendingResidency, &stats.VerifiedAwaitingApproval, &stats.ApprovedWithoutParty)
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("application stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) ListAllForExport(ctx context.Context) ([]*models.Application, error) {
	return s.queryMany(ctx, `SELECT `+applicationColumns+` FROM applications ORDER BY created_at DESC, id DESC`)
}

func (s *PostgresStore) queryMany(ctx context.Context, query string, args ...any) ([]*models.Application, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	out := []*models.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return out, nil
}

func buildFilter(f models.ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.Search != "" {
		p := next("%" + escapeLike(f.Search) + "%")
		clauses = append(clauses, "(name ILIKE "+p+" OR email ILIKE "+p+" OR street_address ILIKE "+p+")")
	}
	if f.ResidencyStatus != "" {
		clauses = append(clauses, "residency_status = "+next(string(f.ResidencyStatus)))
	}
	if f.PartyAffiliation != "" {
		clauses = append(clauses, "party_affiliation = "+next(string(f.PartyAffiliation)))
	}
	switch f.EmailVerified {
	case models.VerifiedYes:
		clauses = append(clauses, "email_verified_at IS NOT NULL")
	case models.VerifiedNo:
		clauses = append(clauses, "email_verified_at IS NULL")
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		a                                              models.Application
		rawID                                          uuid.UUID
		verifiedAt, expiresAt, validatedAt, assignedAt sql.NullTime
		token, consumed, party                         sql.NullString
		residency                                      string
		validatedBy, assignedBy, userID                uuid.NullUUID
	)
	err := row.Scan(
		&rawID, &a.Name, &a.Email, &a.StreetAddress,
		&verifiedAt, &token, &expiresAt, &consumed,
		&residency, &validatedAt, &validatedBy,
		&party, &assignedAt, &assignedBy,
		&userID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.ID = id.ApplicationID(rawID)
	a.ResidencyStatus = models.ResidencyStatus(residency)
	a.EmailVerifiedAt = timePtr(verifiedAt)
	a.VerificationToken = stringPtr(token)
	a.VerificationTokenExpiresAt = timePtr(expiresAt)
	a.ConsumedToken = stringPtr(consumed)
	a.ResidencyValidatedAt = timePtr(validatedAt)
	a.ResidencyValidatedBy = userIDPtr(validatedBy)
	a.PartyAssignedAt = timePtr(assignedAt)
	a.PartyAssignedBy = userIDPtr(assignedBy)
	a.UserID = userIDPtr(userID)
	if party.Valid {
		p := models.PartyAffiliation(party.String)
		a.PartyAffiliation = &p
	}
	return &a, nil
}

func translateWriteError(err error, address string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("application email %s: %w", address, sentinel.ErrAlreadyUsed)
	}
	return fmt.Errorf("write application: %w", err)
}

func requireOneRow(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return none
	}
	return nil
}

func nullUserID(u *id.UserID) uuid.NullUUID {
	if u == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*u), Valid: true}
}

func nullParty(p *models.PartyAffiliation) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*p), Valid: true}
}

func userIDPtr(n uuid.NullUUID) *id.UserID {
	if !n.Valid {
		return nil
	}
	u := id.UserID(n.UUID)
	return &u
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}
