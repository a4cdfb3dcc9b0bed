// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services and the audit pipeline read them
// without importing net/http.
//
//	actor := requestcontext.Actor(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithActor(ctx, requestcontext.Identity{UserID: 7})
package requestcontext

import (
	"context"
	"sync/atomic"
	"time"

	id "fintrail/pkg/domain"
)

type (
	identityKey    struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	actorStateKey  struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyIdentity    = identityKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Identity
// -----------------------------------------------------------------------------

// Identity is the authenticated caller as established by the bearer token.
type Identity struct {
	UserID    id.UserID
	Email     string
	Role      id.Role
	TokenID   string
	ExpiresAt time.Time
}

// Authenticated reports whether the identity refers to a user.
func (i Identity) Authenticated() bool {
	return !i.UserID.IsNil()
}

// Actor returns the authenticated identity, or the zero Identity when the
// request is anonymous.
func Actor(ctx context.Context) Identity {
	if ident, ok := ctx.Value(ContextKeyIdentity).(Identity); ok {
		return ident
	}
	return Identity{}
}

// WithActor injects an authenticated identity into the context.
func WithActor(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, ident)
}

// UserID is shorthand for Actor(ctx).UserID.
func UserID(ctx context.Context) id.UserID {
	return Actor(ctx).UserID
}

// -----------------------------------------------------------------------------
// Client metadata
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the raw User-Agent header from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and user agent into the context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	return context.WithValue(ctx, ContextKeyUserAgent, userAgent)
}

// -----------------------------------------------------------------------------
// Request id and time
// -----------------------------------------------------------------------------

func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return rid
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now returns the request-scoped time if set, otherwise time.Now().
// Services use this so tests can pin the clock per request.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a fixed time into the context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

// -----------------------------------------------------------------------------
// Actor erasure
// -----------------------------------------------------------------------------

type actorState struct {
	erased atomic.Bool
}

// WithActorState prepares ctx so a handler can report that the caller's
// account was erased while the request was being served. The audit
// interceptor installs it before calling downstream handlers.
func WithActorState(ctx context.Context) context.Context {
	return context.WithValue(ctx, actorStateKey{}, &actorState{})
}

// MarkActorErased records that the authenticated caller no longer exists.
// It is a no-op when the context carries no actor state.
func MarkActorErased(ctx context.Context) {
	if st, ok := ctx.Value(actorStateKey{}).(*actorState); ok {
		st.erased.Store(true)
	}
}

// ActorErased reports whether MarkActorErased was called for this request.
func ActorErased(ctx context.Context) bool {
	st, ok := ctx.Value(actorStateKey{}).(*actorState)
	return ok && st.erased.Load()
}
