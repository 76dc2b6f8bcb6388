package testutil

import (
	"context"
	"net/http"
	"time"

	id "pollworker/pkg/domain"
	"pollworker/pkg/requestcontext"
)

// AsAdmin marks the request as coming from an authenticated admin, as the
// admin middleware would.
func AsAdmin(req *http.Request, userID id.UserID) *http.Request {
	ctx := requestcontext.WithAdmin(requestcontext.WithUserID(req.Context(), userID), true)
	return req.WithContext(ctx)
}

// AtTime pins the request clock.
func AtTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// ContextAt returns a background context with a pinned clock.
func ContextAt(now time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), now)
}
