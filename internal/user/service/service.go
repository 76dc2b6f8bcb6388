package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"pollworker/internal/audit"
	"pollworker/internal/user/models"
	"pollworker/pkg/attrs"
	id "pollworker/pkg/domain"
	dErrors "pollworker/pkg/domain-errors"
	"pollworker/pkg/email"
	"pollworker/pkg/platform/sentinel"
	"pollworker/pkg/requestcontext"
)

const minPasswordLength = 8

type Store interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	NamesByIDs(ctx context.Context, ids []id.UserID) (map[id.UserID]string, error)
}

type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) error
}

type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, isAdmin bool, now time.Time) (string, time.Time, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service manages accounts: sign-in, command line creation and admin lookups.
type Service struct {
	users          Store
	hasher         PasswordHasher
	tokens         TokenIssuer
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithTokenIssuer enables Login.
func WithTokenIssuer(tokens TokenIssuer) Option {
	return func(s *Service) {
		s.tokens = tokens
	}
}

func New(users Store, hasher PasswordHasher, opts ...Option) *Service {
	s := &Service{users: users, hasher: hasher}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, address, password string) (*models.LoginResult, error) {
	if s.tokens == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "login is not configured")
	}
	user, err := s.users.FindByEmail(ctx, email.Normalize(address))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if err := s.hasher.Verify(password, user.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}

	now := requestcontext.Now(ctx)
	token, expiresAt, err := s.tokens.GenerateAccessToken(user.ID, user.IsAdmin, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "user signed in",
			"user_id", user.ID.String(),
			"is_admin", user.IsAdmin,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return &models.LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		ExpiresIn:   int64(expiresAt.Sub(now).Seconds()),
		IsAdmin:     user.IsAdmin,
	}, nil
}

// CreateAccount creates a verified account after validating name, email and password.
func (s *Service) CreateAccount(ctx context.Context, req models.CreateAccountRequest) (*models.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = email.Normalize(req.Email)
	if err := validateAccount(req); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	user := models.NewVerifiedUser(id.NewUserID(), req.Name, req.Email, hash, req.IsAdmin, requestcontext.Now(ctx))
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.NewValidation(map[string]string{"email": "The email has already been taken."})
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.logAudit(ctx, audit.ActionUserCreated, "user_id", user.ID.String(), "is_admin", user.IsAdmin)
	return user, nil
}

// EnsureAdmin creates the admin account unless the email already exists.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, name, address, password string) (*models.User, bool, error) {
	existing, err := s.users.FindByEmail(ctx, email.Normalize(address))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load admin")
	}
	user, err := s.CreateAccount(ctx, models.CreateAccountRequest{
		Name:     name,
		Email:    address,
		Password: password,
		IsAdmin:  true,
	})
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// IsAdmin reports whether userID names an existing admin.
func (s *Service) IsAdmin(ctx context.Context, userID id.UserID) (bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user.IsAdmin, nil
}

// NamesByIDs resolves display names for review attribution.
func (s *Service) NamesByIDs(ctx context.Context, ids []id.UserID) (map[id.UserID]string, error) {
	names, err := s.users.NamesByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve user names")
	}
	return names, nil
}

func validateAccount(req models.CreateAccountRequest) error {
	fields := map[string]string{}
	switch {
	case req.Name == "":
		fields["name"] = "The name field is required."
	case utf8.RuneCountInString(req.Name) > 255:
		fields["name"] = "The name may not be greater than 255 characters."
	}
	if !email.IsValid(req.Email) {
		fields["email"] = "The email must be a valid email address."
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		fields["password"] = "The password must be at least 8 characters."
	}
	if len(fields) > 0 {
		return dErrors.NewValidation(fields)
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
	if s.auditPublisher == nil {
		return
	}
	e := audit.Event{
		Action:  event,
		Subject: attrs.ExtractString(attributes, "user_id"),
	}
	if actor := requestcontext.UserID(ctx); !actor.IsNil() {
		e.ActorID = actor.String()
	}
	if err := s.auditPublisher.Emit(ctx, e); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "error", err, "event", event)
	}
}
