// Package admin gates back-office routes behind an admin bearer token.
package admin

import (
	"log/slog"
	"net/http"
	"strings"

	id "pollworker/pkg/domain"
	dErrors "pollworker/pkg/domain-errors"
	"pollworker/pkg/platform/httputil"
	"pollworker/pkg/requestcontext"
)

// Claims is what the gate needs from a validated token.
type Claims struct {
	UserID  string
	IsAdmin bool
}

// TokenValidator validates a bearer token.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// RequireAdmin rejects guests and non-admin users with 403 and records the
// authenticated admin in the request context.
func RequireAdmin(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "admin access denied - missing token", "request_id", requestID)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin access required"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "admin access denied - invalid token", "error", err, "request_id", requestID)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin access required"))
				return
			}

			userID, err := id.ParseUserID(claims.UserID)
			if err != nil || !claims.IsAdmin {
				logger.WarnContext(ctx, "admin access denied - not an admin",
					"user_id", claims.UserID,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin access required"))
				return
			}

			ctx = requestcontext.WithUserID(ctx, userID)
			ctx = requestcontext.WithAdmin(ctx, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
