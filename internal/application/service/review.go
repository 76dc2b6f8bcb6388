package service

import (
	"context"
	"errors"
	"time"

	"pollworker/internal/application/models"
	"pollworker/internal/audit"
	id "pollworker/pkg/domain"
	dErrors "pollworker/pkg/domain-errors"
	"pollworker/pkg/platform/sentinel"
	"pollworker/pkg/requestcontext"
)

// SetResidency records an admin residency decision. Repeating a decision
// overwrites the attribution with the latest actor and time.
func (s *Service) SetResidency(ctx context.Context, appID id.ApplicationID, status string, actor id.UserID) (*models.Application, error) {
	ctx, span := tracer.Start(ctx, "application.SetResidency")
	defer span.End()

	decision, err := models.ParseResidencyDecision(status)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	app, err := s.mutate(ctx, appID, func(app *models.Application, now time.Time) error {
		app.ApplyResidency(decision, actor, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordReview(ctx, audit.ActionResidencyUpdated, app.ID, "residency_status", decision.String())
	return app, nil
}

// SetParty records an admin party assignment, last write wins.
func (s *Service) SetParty(ctx context.Context, appID id.ApplicationID, party string, actor id.UserID) (*models.Application, error) {
	ctx, span := tracer.Start(ctx, "application.SetParty")
	defer span.End()

	affiliation, err := models.ParsePartyAffiliation(party)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	app, err := s.mutate(ctx, appID, func(app *models.Application, now time.Time) error {
		app.ApplyParty(affiliation, actor, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordReview(ctx, audit.ActionPartyUpdated, app.ID, "party_affiliation", affiliation.String())
	return app, nil
}

// ResendVerification reissues the token of an unverified application on an
// admin's request. Verified applications are refused so a verified record
// never regains a live token.
func (s *Service) ResendVerification(ctx context.Context, appID id.ApplicationID) error {
	ctx, span := tracer.Start(ctx, "application.ResendVerification")
	defer span.End()

	app, err := s.mutate(ctx, appID, func(app *models.Application, now time.Time) error {
		if app.IsVerified() {
			return dErrors.New(dErrors.CodeConflict, "application email is already verified")
		}
		token, err := s.generateToken()
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate verification token")
		}
		app.ApplyTokenIssue(token, now)
		return nil
	})
	if err != nil {
		return err
	}
	s.recordReview(ctx, audit.ActionVerificationResent, app.ID, "source", "admin")
	s.dispatchVerification(ctx, app)
	return nil
}

// Update edits the applicant supplied fields. Verification state is left
// alone, including when the email changes.
func (s *Service) Update(ctx context.Context, appID id.ApplicationID, in models.ApplicantInput) (*models.Application, error) {
	ctx, span := tracer.Start(ctx, "application.Update")
	defer span.End()

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	app, err := s.mutate(ctx, appID, func(app *models.Application, now time.Time) error {
		app.ApplyEdit(in, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordReview(ctx, audit.ActionApplicationUpdated, app.ID)
	return app, nil
}

// Delete removes the application and the account provisioned for it.
func (s *Service) Delete(ctx context.Context, appID id.ApplicationID) error {
	ctx, span := tracer.Start(ctx, "application.Delete")
	defer span.End()

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		app, err := s.load(ctx, appID)
		if err != nil {
			return err
		}
		if app.UserID != nil {
			if err := s.users.Delete(ctx, *app.UserID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete linked user")
			}
		}
		if err := s.applications.Delete(ctx, appID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return notFound()
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete application")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordReview(ctx, audit.ActionApplicationDeleted, appID)
	return nil
}

// Get returns the application with reviewer names resolved.
func (s *Service) Get(ctx context.Context, appID id.ApplicationID) (*models.ApplicationDetail, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}

	detail := &models.ApplicationDetail{Application: app}
	var actors []id.UserID
	if app.ResidencyValidatedBy != nil {
		actors = append(actors, *app.ResidencyValidatedBy)
	}
	if app.PartyAssignedBy != nil {
		actors = append(actors, *app.PartyAssignedBy)
	}
	if len(actors) == 0 {
		return detail, nil
	}

	names, err := s.directory.NamesByIDs(ctx, actors)
	if err != nil {
		return nil, err
	}
	if app.ResidencyValidatedBy != nil {
		detail.ResidencyValidatedByName = names[*app.ResidencyValidatedBy]
	}
	if app.PartyAssignedBy != nil {
		detail.PartyAssignedByName = names[*app.PartyAssignedBy]
	}
	return detail, nil
}

// List returns one newest-first page of applications matching filter.
func (s *Service) List(ctx context.Context, filter models.ListFilter) (models.Page, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.ResidencyStatus != "" && !filter.ResidencyStatus.IsValid() {
		return models.Page{}, dErrors.NewValidation(map[string]string{"residency_status": "The selected residency status is invalid."})
	}
	if filter.PartyAffiliation != "" && !filter.PartyAffiliation.IsValid() {
		return models.Page{}, dErrors.NewValidation(map[string]string{"party_affiliation": "The selected party affiliation is invalid."})
	}
	items, total, err := s.applications.List(ctx, filter)
	if err != nil {
		return models.Page{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	return models.NewPage(items, total, filter.Page), nil
}

// Dashboard returns the review counts and the registration flag.
func (s *Service) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	stats, err := s.applications.Stats(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load dashboard counts")
	}
	enabled, err := s.registration.RegistrationEnabled(ctx)
	if err != nil {
		return nil, err
	}
	return &models.Dashboard{DashboardStats: stats, RegistrationEnabled: enabled}, nil
}

// SetRegistrationEnabled opens or closes the public form.
func (s *Service) SetRegistrationEnabled(ctx context.Context, enabled bool) error {
	return s.registration.SetRegistrationEnabled(ctx, enabled)
}

// RegistrationEnabled reports whether the public form is open.
func (s *Service) RegistrationEnabled(ctx context.Context) (bool, error) {
	return s.registration.RegistrationEnabled(ctx)
}

// History returns the audit trail of one application, oldest first.
func (s *Service) History(ctx context.Context, appID id.ApplicationID) ([]audit.Event, error) {
	if _, err := s.load(ctx, appID); err != nil {
		return nil, err
	}
	if s.auditPublisher == nil {
		return []audit.Event{}, nil
	}
	events, err := s.auditPublisher.List(ctx, appID.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application history")
	}
	return events, nil
}

func (s *Service) requireAdmin(ctx context.Context, actor id.UserID) error {
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeForbidden, "reviewer is not an administrator")
	}
	ok, err := s.directory.IsAdmin(ctx, actor)
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.New(dErrors.CodeForbidden, "reviewer is not an administrator")
	}
	return nil
}

// mutate loads, changes and writes one application in a transaction.
func (s *Service) mutate(ctx context.Context, appID id.ApplicationID, change func(*models.Application, time.Time) error) (*models.Application, error) {
	var out *models.Application
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		app, err := s.load(ctx, appID)
		if err != nil {
			return err
		}
		if err := change(app, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := s.applications.Update(ctx, app); err != nil {
			switch {
			case errors.Is(err, sentinel.ErrNotFound):
				return notFound()
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				return emailTakenError()
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update application")
		}
		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.applications.FindByID(ctx, appID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	return app, nil
}

func (s *Service) recordReview(ctx context.Context, action string, appID id.ApplicationID, attributes ...any) {
	if s.metrics != nil {
		s.metrics.IncrementReviewAction(action)
	}
	s.logAudit(ctx, action, appID, attributes...)
}

func notFound() error {
	return dErrors.New(dErrors.CodeNotFound, "application not found")
}
