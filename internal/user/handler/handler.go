package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pollworker/internal/user/models"
	dErrors "pollworker/pkg/domain-errors"
	"pollworker/pkg/platform/httputil"
	"pollworker/pkg/requestcontext"
)

// Service defines the account operations exposed over HTTP.
type Service interface {
	Login(ctx context.Context, email, password string) (*models.LoginResult, error)
}

// Handler serves the sign-in endpoint.
type Handler struct {
	logger *slog.Logger
	users  Service
}

func New(users Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, users: users}
}

// Register registers the account routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/login", h.handleLogin)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	form, err := httputil.DecodeForm(r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid login request", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	if form["email"] == "" || form["password"] == "" {
		httputil.WriteError(w, dErrors.NewValidation(map[string]string{
			"email":    "The email and password fields are required.",
			"password": "The email and password fields are required.",
		}))
		return
	}

	res, err := h.users.Login(ctx, form["email"], form["password"])
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			h.logger.WarnContext(ctx, "login rejected", "request_id", requestID)
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "login failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
