package testutil

import (
	"net/http"
	"time"

	id "fintrail/pkg/domain"
	"fintrail/pkg/requestcontext"
)

// WithActor marks req as authenticated by userID with role. It simulates
// what the bearer middleware does for a valid token.
func WithActor(req *http.Request, userID id.UserID, role id.Role) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), requestcontext.Identity{UserID: userID, Role: role})
	return req.WithContext(ctx)
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
