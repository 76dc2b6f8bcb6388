package service

import (
	"context"
	"log/slog"
	"strconv"

	"pollworker/internal/audit"
	dErrors "pollworker/pkg/domain-errors"
	"pollworker/pkg/requestcontext"
)

const keyRegistrationEnabled = "registration_enabled"

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service exposes the portal feature flags.
type Service struct {
	store          Store
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

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegistrationEnabled reports whether the public form accepts submissions.
// Registration is open until an admin closes it.
func (s *Service) RegistrationEnabled(ctx context.Context) (bool, error) {
	raw, ok, err := s.store.Get(ctx, keyRegistrationEnabled)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read registration setting")
	}
	if !ok {
		return true, nil
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "registration setting is not a boolean")
	}
	return enabled, nil
}

// SetRegistrationEnabled opens or closes public registration.
func (s *Service) SetRegistrationEnabled(ctx context.Context, enabled bool) error {
	if err := s.store.Set(ctx, keyRegistrationEnabled, strconv.FormatBool(enabled)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update registration setting")
	}

	actor := requestcontext.UserID(ctx)
	if s.logger != nil {
		s.logger.InfoContext(ctx, audit.ActionRegistrationToggled,
			"enabled", enabled,
			"actor_id", actor.String(),
			"request_id", requestcontext.RequestID(ctx),
			"log_type", "audit",
		)
	}
	if s.auditPublisher != nil {
		e := audit.Event{Action: audit.ActionRegistrationToggled, Detail: strconv.FormatBool(enabled)}
		if !actor.IsNil() {
			e.ActorID = actor.String()
		}
		if err := s.auditPublisher.Emit(ctx, e); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to emit audit event", "error", err)
		}
	}
	return nil
}
