package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"pollworker/internal/application/models"
	"pollworker/internal/audit"
	usermodels "pollworker/internal/user/models"
	id "pollworker/pkg/domain"
	dErrors "pollworker/pkg/domain-errors"
	"pollworker/pkg/platform/sentinel"
	"pollworker/pkg/requestcontext"
)

var (
	// errLostRace marks a verification that a concurrent request completed first.
	errLostRace = errors.New("verification completed concurrently")
	// errEmailTaken marks an account that already exists for the applicant's email.
	errEmailTaken = errors.New("account email already taken")
)

// Verify resolves a verification link. Outcomes are values: only
// infrastructure failures are returned as errors.
//
// On success the applicant's account is provisioned and the application is
// marked verified in one transaction. Replaying the consumed link reports
// already_verified; an unknown or superseded token reports invalid.
func (s *Service) Verify(ctx context.Context, token string) (*models.VerificationResult, error) {
	ctx, span := tracer.Start(ctx, "application.Verify")
	defer span.End()
	start := time.Now()

	if token == "" {
		return s.recordVerification(ctx, &models.VerificationResult{Outcome: models.VerificationInvalid}), nil
	}

	var (
		result *models.VerificationResult
		app    *models.Application
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		result, app, err = s.verifyTx(ctx, token)
		return err
	})
	if errors.Is(err, errLostRace) {
		result, err = &models.VerificationResult{Outcome: models.VerificationAlreadyVerified}, nil
		app = nil
	}
	if errors.Is(err, errEmailTaken) {
		result, err = s.resolveEmailTaken(ctx, app)
		app = nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveVerify(start)
	}

	if result.Outcome == models.VerificationSuccess {
		span.SetAttributes(attribute.String("application.id", app.ID.String()))
		if s.metrics != nil {
			s.metrics.IncrementUserProvisioned()
		}
		s.logAudit(ctx, audit.ActionEmailVerified, app.ID, "user_id", app.UserID.String())
	}
	return s.recordVerification(ctx, result), nil
}

func (s *Service) verifyTx(ctx context.Context, token string) (*models.VerificationResult, *models.Application, error) {
	now := requestcontext.Now(ctx)

	app, err := s.applications.FindByToken(ctx, token)
	if errors.Is(err, sentinel.ErrNotFound) {
		return s.resolveConsumed(ctx, token)
	}
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up verification token")
	}
	if app.IsVerified() {
		return &models.VerificationResult{Outcome: models.VerificationAlreadyVerified, Email: app.Email}, nil, nil
	}
	if app.IsTokenExpired(now) {
		return &models.VerificationResult{Outcome: models.VerificationExpired, Email: app.Email}, nil, nil
	}

	user, err := s.provisionUser(ctx, app, now)
	if err != nil {
		return nil, app, err
	}
	app.ApplyVerification(user.ID, now)
	if err := s.applications.MarkVerified(ctx, app); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, nil, errLostRace
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark application verified")
	}
	return &models.VerificationResult{Outcome: models.VerificationSuccess, Email: app.Email}, app, nil
}

func (s *Service) resolveConsumed(ctx context.Context, token string) (*models.VerificationResult, *models.Application, error) {
	verified, err := s.applications.FindByConsumedToken(ctx, token)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.VerificationResult{Outcome: models.VerificationInvalid}, nil, nil
	}
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up verification token")
	}
	return &models.VerificationResult{Outcome: models.VerificationAlreadyVerified, Email: verified.Email}, nil, nil
}

// provisionUser creates the applicant's account with a random password.
// The applicant never signs in with it.
func (s *Service) provisionUser(ctx context.Context, app *models.Application, now time.Time) (*usermodels.User, error) {
	secret, err := s.generatePassword()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate account secret")
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash account secret")
	}
	user := usermodels.NewVerifiedUser(id.NewUserID(), app.Name, app.Email, hash, false, now)
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, errEmailTaken
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to provision user")
	}
	return user, nil
}

// resolveEmailTaken runs after the failed transaction has rolled back. An
// application verified in the meantime lost a race; otherwise the address
// belongs to an unrelated account and the application stays pending.
func (s *Service) resolveEmailTaken(ctx context.Context, app *models.Application) (*models.VerificationResult, error) {
	stored, err := s.applications.FindByID(ctx, app.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload application")
	}
	if stored.IsVerified() {
		return &models.VerificationResult{Outcome: models.VerificationAlreadyVerified, Email: stored.Email}, nil
	}
	s.logger.WarnContext(ctx, "verification blocked by existing account",
		"application_id", app.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil, dErrors.New(dErrors.CodeConflict,
		"An account already exists for this email address. Please contact the registrar's office.")
}

func (s *Service) recordVerification(ctx context.Context, result *models.VerificationResult) *models.VerificationResult {
	if s.metrics != nil {
		s.metrics.IncrementVerification(string(result.Outcome))
	}
	s.logger.InfoContext(ctx, "verification link resolved",
		"outcome", string(result.Outcome),
		"request_id", requestcontext.RequestID(ctx),
	)
	return result
}
