// Package service implements the poll-worker application lifecycle: intake,
// email verification with account provisioning, and the admin review workflow.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"

	"pollworker/internal/application/metrics"
	"pollworker/internal/application/models"
	"pollworker/internal/audit"
	usermodels "pollworker/internal/user/models"
	id "pollworker/pkg/domain"
	"pollworker/pkg/platform/secrets"
	txcontext "pollworker/pkg/platform/tx"
)

var tracer = otel.Tracer("pollworker/internal/application/service")

// ApplicationStore persists applications. Finders return sentinel.ErrNotFound
// when nothing matches; writes return sentinel.ErrAlreadyUsed on a duplicate
// email and MarkVerified returns sentinel.ErrConflict when it loses a race.
type ApplicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	FindByToken(ctx context.Context, token string) (*models.Application, error)
	FindByConsumedToken(ctx context.Context, token string) (*models.Application, error)
	FindByEmail(ctx context.Context, email string) (*models.Application, error)
	Update(ctx context.Context, app *models.Application) error
	MarkVerified(ctx context.Context, app *models.Application) error
	Delete(ctx context.Context, appID id.ApplicationID) error
	List(ctx context.Context, filter models.ListFilter) ([]*models.Application, int, error)
	Stats(ctx context.Context) (models.DashboardStats, error)
	ListAllForExport(ctx context.Context) ([]*models.Application, error)
}

// UserProvisioner creates and removes the accounts linked to applications.
type UserProvisioner interface {
	Create(ctx context.Context, user *usermodels.User) error
	Delete(ctx context.Context, userID id.UserID) error
}

// UserDirectory answers questions about reviewers.
type UserDirectory interface {
	IsAdmin(ctx context.Context, userID id.UserID) (bool, error)
	NamesByIDs(ctx context.Context, ids []id.UserID) (map[id.UserID]string, error)
}

// Mailer hands the verification email off for delivery.
type Mailer interface {
	SendVerification(ctx context.Context, name, email, token string) error
}

// RegistrationFlag gates the public form.
type RegistrationFlag interface {
	RegistrationEnabled(ctx context.Context) (bool, error)
	SetRegistrationEnabled(ctx context.Context, enabled bool) error
}

type PasswordHasher interface {
	Hash(secret string) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
	List(ctx context.Context, applicationID string) ([]audit.Event, error)
}

// Service coordinates the application lifecycle.
type Service struct {
	applications ApplicationStore
	users        UserProvisioner
	directory    UserDirectory
	mailer       Mailer
	registration RegistrationFlag
	hasher       PasswordHasher
	tx           txcontext.Runner

	generateToken    func() (string, error)
	generatePassword func() (string, error)

	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithTxRunner sets the transaction boundary. Defaults to an in-process lock.
func WithTxRunner(runner txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

// WithTokenGenerator replaces the random token source.
func WithTokenGenerator(fn func() (string, error)) Option {
	return func(s *Service) {
		s.generateToken = fn
	}
}

func New(
	applications ApplicationStore,
	users UserProvisioner,
	directory UserDirectory,
	mailer Mailer,
	registration RegistrationFlag,
	hasher PasswordHasher,
	opts ...Option,
) *Service {
	s := &Service{
		applications:     applications,
		users:            users,
		directory:        directory,
		mailer:           mailer,
		registration:     registration,
		hasher:           hasher,
		generateToken:    secrets.GenerateToken,
		generatePassword: secrets.GeneratePassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = txcontext.NewLockRunner()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}
