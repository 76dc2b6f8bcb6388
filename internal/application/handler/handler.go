package handler

import (
	"bytes"
	"context"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pollworker/internal/application/export"
	"pollworker/internal/application/models"
	"pollworker/internal/audit"
	id "pollworker/pkg/domain"
	dErrors "pollworker/pkg/domain-errors"
	"pollworker/pkg/platform/httputil"
	"pollworker/pkg/requestcontext"
)

const (
	msgSubmitted = "Registration submitted! Please check your email to verify your address."
	msgResent    = "This email was already registered but not yet verified. We have resent the verification email. " +
		"Please check your inbox and click the link to complete your registration. " +
		"If the problem continues, contact registrars@warrenct.gov."
	msgResendAccepted = "If that address belongs to an unverified registration, a new verification email is on its way."

	msgVerified        = "Your email has been verified. Thank you for signing up to become a poll worker!"
	msgAlreadyVerified = "Your account has already been verified. Thank you for signing up to become a poll worker!"
	msgExpired         = "This verification link has expired. Verification links are valid for 48 hours after registration."
	msgInvalid         = "This verification link is not valid. The link may be incorrect or incomplete."

	msgUpdated          = "Application updated successfully."
	msgResidencyUpdated = "Residency status updated successfully."
	msgPartyUpdated     = "Party affiliation updated successfully."
	msgVerificationSent = "Verification email resent successfully."
)

// Service is the application lifecycle exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, in models.ApplicantInput) (*models.SubmitResult, error)
	ResendByEmail(ctx context.Context, address string) error
	Verify(ctx context.Context, token string) (*models.VerificationResult, error)
	RegistrationEnabled(ctx context.Context) (bool, error)
	SetRegistrationEnabled(ctx context.Context, enabled bool) error
	Dashboard(ctx context.Context) (*models.Dashboard, error)
	List(ctx context.Context, filter models.ListFilter) (models.Page, error)
	Get(ctx context.Context, appID id.ApplicationID) (*models.ApplicationDetail, error)
	Update(ctx context.Context, appID id.ApplicationID, in models.ApplicantInput) (*models.Application, error)
	Delete(ctx context.Context, appID id.ApplicationID) error
	SetResidency(ctx context.Context, appID id.ApplicationID, status string, actor id.UserID) (*models.Application, error)
	SetParty(ctx context.Context, appID id.ApplicationID, party string, actor id.UserID) (*models.Application, error)
	ResendVerification(ctx context.Context, appID id.ApplicationID) error
	History(ctx context.Context, appID id.ApplicationID) ([]audit.Event, error)
}

// RowSource produces the export rows.
type RowSource interface {
	Rows(ctx context.Context) iter.Seq2[export.Row, error]
}

// Archiver stores an export snapshot and returns its object key.
type Archiver interface {
	Archive(ctx context.Context, rows iter.Seq2[export.Row, error], now time.Time) (string, error)
}

// Handler serves the public registration form and the admin review routes.
type Handler struct {
	service  Service
	rows     RowSource
	archiver Archiver
	logger   *slog.Logger
}

type Option func(*Handler)

// WithArchiver enables POST /applications/export/archive.
func WithArchiver(archiver Archiver) Option {
	return func(h *Handler) {
		h.archiver = archiver
	}
}

func New(service Service, rows RowSource, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, rows: rows, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the public routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.handleRegistrationStatus)
	r.Post("/", h.handleSubmit)
	r.Get("/verify/{token}", h.handleVerify)
	r.Post("/verification/resend/{email}", h.handleResend)
}

// RegisterAdmin registers the review routes. The caller mounts them behind
// the admin gate.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/", h.handleDashboard)
	r.Post("/toggle-registration", h.handleToggleRegistration)

	r.Route("/applications", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/export", h.handleExport)
		r.Post("/export/archive", h.handleArchive)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Put("/", h.handleUpdate)
			r.Delete("/", h.handleDelete)
			r.Post("/residency", h.handleSetResidency)
			r.Post("/party", h.handleSetParty)
			r.Post("/resend-verification", h.handleResendVerification)
			r.Get("/history", h.handleHistory)
		})
	})
}

// submitResponse carries no identifiers: the caller is anonymous.
type submitResponse struct {
	Outcome models.SubmitOutcome `json:"outcome"`
	Message string               `json:"message"`
}

type verifyResponse struct {
	Outcome models.VerificationOutcome `json:"outcome"`
	Email   string                     `json:"email,omitempty"`
	Message string                     `json:"message"`
}

type messageResponse struct {
	Message     string              `json:"message"`
	Application *models.Application `json:"application,omitempty"`
}

func (h *Handler) handleRegistrationStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	enabled, err := h.service.RegistrationEnabled(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to read registration flag", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"registration_enabled": enabled})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	form, err := httputil.DecodeForm(r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid registration request", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.Submit(ctx, applicantInput(form))
	if err != nil {
		h.fail(ctx, w, "registration rejected", err)
		return
	}

	status, message := http.StatusCreated, msgSubmitted
	if res.Outcome == models.SubmitResent {
		status, message = http.StatusOK, msgResent
	}
	httputil.WriteJSON(w, status, submitResponse{Outcome: res.Outcome, Message: message})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := h.service.Verify(ctx, chi.URLParam(r, "token"))
	if err != nil {
		h.fail(ctx, w, "verification failed", err)
		return
	}

	body := verifyResponse{Outcome: res.Outcome}
	status := http.StatusOK
	switch res.Outcome {
	case models.VerificationSuccess:
		body.Message = msgVerified
	case models.VerificationAlreadyVerified:
		body.Message = msgAlreadyVerified
	case models.VerificationExpired:
		status = http.StatusGone
		body.Email = res.Email
		body.Message = msgExpired
	default:
		status = http.StatusNotFound
		body.Message = msgInvalid
	}
	httputil.WriteJSON(w, status, body)
}

// handleResend answers 202 whether or not the address is known.
func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.ResendByEmail(ctx, chi.URLParam(r, "email")); err != nil {
		h.fail(ctx, w, "verification resend failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, messageResponse{Message: msgResendAccepted})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dashboard, err := h.service.Dashboard(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to load dashboard", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dashboard)
}

// handleToggleRegistration sets the flag to the submitted "enabled" value,
// or flips it when the field is absent.
func (h *Handler) handleToggleRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	form, err := httputil.DecodeForm(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var enabled bool
	if raw, ok := form["enabled"]; ok {
		enabled, err = strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.NewValidation(map[string]string{"enabled": "The enabled field must be true or false."}))
			return
		}
	} else {
		current, err := h.service.RegistrationEnabled(ctx)
		if err != nil {
			h.fail(ctx, w, "failed to read registration flag", err)
			return
		}
		enabled = !current
	}

	if err := h.service.SetRegistrationEnabled(ctx, enabled); err != nil {
		h.fail(ctx, w, "failed to toggle registration", err)
		return
	}
	message := "Registration has been disabled."
	if enabled {
		message = "Registration has been enabled."
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"registration_enabled": enabled, "message": message})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := models.ListFilter{
		Search:           q.Get("search"),
		ResidencyStatus:  models.ResidencyStatus(q.Get("residency_status")),
		PartyAffiliation: models.PartyAffiliation(q.Get("party_affiliation")),
		EmailVerified:    models.VerifiedFilter(q.Get("email_verified")),
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			httputil.WriteError(w, dErrors.NewValidation(map[string]string{"page": "The page must be a positive integer."}))
			return
		}
		filter.Page = page
	}
	switch filter.EmailVerified {
	case models.VerifiedAny, models.VerifiedYes, models.VerifiedNo:
	default:
		httputil.WriteError(w, dErrors.NewValidation(map[string]string{"email_verified": "The email verified filter must be yes or no."}))
		return
	}

	page, err := h.service.List(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "failed to list applications", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// handleExport buffers the whole CSV so a failure mid-way still yields a
// JSON error instead of a truncated download.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, h.rows.Rows(ctx)); err != nil {
		h.fail(ctx, w, "failed to export applications", dErrors.Wrap(err, dErrors.CodeInternal, "failed to export applications"))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=UTF-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(requestcontext.Now(ctx))+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.WarnContext(ctx, "failed to write export", "request_id", requestcontext.RequestID(ctx), "error", err)
	}
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.archiver == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "export archiving is not configured"))
		return
	}

	key, err := h.archiver.Archive(ctx, h.rows.Rows(ctx), requestcontext.Now(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to archive export", dErrors.Wrap(err, dErrors.CodeInternal, "failed to archive export"))
		return
	}
	h.logger.InfoContext(ctx, "export archived", "key", key, "request_id", requestcontext.RequestID(ctx))
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(ctx, appID)
	if err != nil {
		h.fail(ctx, w, "failed to load application", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	form, err := httputil.DecodeForm(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	app, err := h.service.Update(ctx, appID, applicantInput(form))
	if err != nil {
		h.fail(ctx, w, "failed to update application", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: msgUpdated, Application: app})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, appID); err != nil {
		h.fail(ctx, w, "failed to delete application", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetResidency(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "residency_status", msgResidencyUpdated, h.service.SetResidency)
}

func (h *Handler) handleSetParty(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "party_affiliation", msgPartyUpdated, h.service.SetParty)
}

type reviewFunc func(ctx context.Context, appID id.ApplicationID, value string, actor id.UserID) (*models.Application, error)

// review applies one admin decision read from field, attributed to the
// authenticated admin.
func (h *Handler) review(w http.ResponseWriter, r *http.Request, field, message string, apply reviewFunc) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	form, err := httputil.DecodeForm(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	app, err := apply(ctx, appID, form[field], requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "review action rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: message, Application: app})
}

func (h *Handler) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	if err := h.service.ResendVerification(ctx, appID); err != nil {
		h.fail(ctx, w, "failed to resend verification", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, messageResponse{Message: msgVerificationSent})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	events, err := h.service.History(ctx, appID)
	if err != nil {
		h.fail(ctx, w, "failed to load application history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]audit.Event{"events": events})
}

func (h *Handler) applicationID(w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "application not found"))
		return id.ApplicationID{}, false
	}
	return appID, true
}

// fail logs at a level matching the error class and writes the error.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	requestID := requestcontext.RequestID(ctx)
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
	}
	httputil.WriteError(w, err)
}

func applicantInput(form map[string]string) models.ApplicantInput {
	return models.ApplicantInput{
		Name:          form["name"],
		Email:         form["email"],
		StreetAddress: form["street_address"],
	}
}
