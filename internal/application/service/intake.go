package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"pollworker/internal/application/models"
	"pollworker/internal/audit"
	id "pollworker/pkg/domain"
	dErrors "pollworker/pkg/domain-errors"
	"pollworker/pkg/email"
	"pollworker/pkg/platform/sentinel"
	"pollworker/pkg/requestcontext"
)

// Submit registers an applicant. A new email creates a pending application;
// an unverified existing email gets a fresh token instead; a verified one is
// rejected as taken. One verification email is dispatched per accepted call.
func (s *Service) Submit(ctx context.Context, in models.ApplicantInput) (*models.SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "application.Submit")
	defer span.End()

	enabled, err := s.registration.RegistrationEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, dErrors.New(dErrors.CodeRegistrationDisabled,
			"Registration is currently disabled. Please contact the registrar's office.")
	}

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var result *models.SubmitResult
	for attempt := 0; ; attempt++ {
		result, err = s.submitOnce(ctx, in)
		// Losing the unique-email race to a concurrent create means the row
		// now exists; one more pass takes the resend path.
		if errors.Is(err, sentinel.ErrAlreadyUsed) && attempt == 0 {
			continue
		}
		break
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, emailTakenError()
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("application.id", result.Application.ID.String()),
		attribute.String("submit.outcome", string(result.Outcome)),
	)
	if s.metrics != nil {
		s.metrics.IncrementSubmission(string(result.Outcome))
	}
	action := audit.ActionApplicationSubmitted
	if result.Outcome == models.SubmitResent {
		action = audit.ActionVerificationResent
	}
	s.logAudit(ctx, action, result.Application.ID, "outcome", string(result.Outcome))
	s.dispatchVerification(ctx, result.Application)
	return result, nil
}

func (s *Service) submitOnce(ctx context.Context, in models.ApplicantInput) (*models.SubmitResult, error) {
	var result *models.SubmitResult
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		existing, err := s.applications.FindByEmail(ctx, in.Email)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			token, err := s.generateToken()
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate verification token")
			}
			app := models.NewApplication(id.NewApplicationID(), in, token, now)
			if err := s.applications.Create(ctx, app); err != nil {
				if errors.Is(err, sentinel.ErrAlreadyUsed) {
					return err
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create application")
			}
			result = &models.SubmitResult{Outcome: models.SubmitCreated, Application: app}
			return nil
		case err != nil:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up application")
		case existing.IsVerified():
			return emailTakenError()
		}

		if err := s.reissueToken(ctx, existing, now); err != nil {
			return err
		}
		result = &models.SubmitResult{Outcome: models.SubmitResent, Application: existing}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResendByEmail reissues the token of the unverified application owning
// address. Unknown or verified addresses are ignored so the caller cannot
// probe which emails are registered.
func (s *Service) ResendByEmail(ctx context.Context, address string) error {
	ctx, span := tracer.Start(ctx, "application.ResendByEmail")
	defer span.End()

	address = email.Normalize(address)
	if address == "" {
		return nil
	}

	var app *models.Application
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		found, err := s.applications.FindByEmail(ctx, address)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up application")
		}
		if found.IsVerified() {
			return nil
		}
		if err := s.reissueToken(ctx, found, requestcontext.Now(ctx)); err != nil {
			return err
		}
		app = found
		return nil
	})
	if err != nil {
		return err
	}
	if app == nil {
		return nil
	}

	s.logAudit(ctx, audit.ActionVerificationResent, app.ID, "source", "public")
	s.dispatchVerification(ctx, app)
	return nil
}

// reissueToken replaces the pending token, invalidating the previous link.
func (s *Service) reissueToken(ctx context.Context, app *models.Application, now time.Time) error {
	token, err := s.generateToken()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate verification token")
	}
	app.ApplyTokenIssue(token, now)
	if err := s.applications.Update(ctx, app); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reissue verification token")
	}
	return nil
}

// dispatchVerification queues the email after the state change committed.
// Delivery problems are logged and counted, never returned.
func (s *Service) dispatchVerification(ctx context.Context, app *models.Application) {
	if app.VerificationToken == nil {
		return
	}
	if err := s.mailer.SendVerification(ctx, app.Name, app.Email, *app.VerificationToken); err != nil {
		s.logger.ErrorContext(ctx, "failed to dispatch verification email",
			"application_id", app.ID.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		if s.metrics != nil {
			s.metrics.IncrementDispatchFailure()
		}
	}
}

func emailTakenError() error {
	return dErrors.NewValidation(map[string]string{"email": "The email has already been taken."})
}
