package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	id "fintrail/pkg/domain"
	audit "fintrail/pkg/platform/audit"
	request "fintrail/pkg/platform/middleware/request"
	"fintrail/pkg/requestcontext"
)

// JWTValidator validates access tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// TokenRevocationChecker reports whether a token id has been revoked.
type TokenRevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Claims is what the middleware needs from a validated access token.
type Claims struct {
	UserID    id.UserID
	Email     string
	Role      id.Role
	JTI       string
	ExpiresAt time.Time
}

// Emitter records denials. *audit.Emitter satisfies it.
type Emitter interface {
	Emit(ctx context.Context, entry audit.Entry)
}

type failureKey struct{}

// failureReason returns why Authenticate left the request anonymous.
func failureReason(ctx context.Context) string {
	if reason, ok := ctx.Value(failureKey{}).(string); ok {
		return reason
	}
	return "missing bearer token"
}

// Authenticate identifies the caller from a bearer token when one is present.
// It never rejects: anonymous requests continue so the audit interceptor can
// record them, and RequireAuth enforces authentication per route.
func Authenticate(validator JWTValidator, revocation TokenRevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "invalid bearer token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, failureKey{}, "invalid or expired token")))
				return
			}

			if revocation != nil {
				revoked, err := revocation.IsTokenRevoked(ctx, claims.JTI)
				if err != nil {
					logger.ErrorContext(ctx, "failed to check token revocation",
						"error", err,
						"request_id", request.GetRequestID(ctx),
					)
					next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, failureKey{}, "token revocation check failed")))
					return
				}
				if revoked {
					logger.WarnContext(ctx, "revoked token presented",
						"jti", claims.JTI,
						"request_id", request.GetRequestID(ctx),
					)
					next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, failureKey{}, "token has been revoked")))
					return
				}
			}

			ctx = requestcontext.WithActor(ctx, requestcontext.Identity{
				UserID:    claims.UserID,
				Email:     claims.Email,
				Role:      claims.Role,
				TokenID:   claims.JTI,
				ExpiresAt: claims.ExpiresAt,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects anonymous requests with 401 after recording an
// ACCESS_DENIED audit entry.
func RequireAuth(emitter Emitter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.Actor(ctx).Authenticated() {
				next.ServeHTTP(w, r)
				return
			}

			reason := failureReason(ctx)
			logger.WarnContext(ctx, "unauthorized access",
				"reason", reason,
				"path", r.URL.Path,
				"request_id", request.GetRequestID(ctx),
			)
			emitter.Emit(ctx, audit.Entry{
				Action:       audit.ActionAccessDenied,
				ResourceType: audit.ResourceUser,
				Description:  fmt.Sprintf("Authentication failed for %s %s: %s", r.Method, r.URL.Path, reason),
				Metadata:     map[string]any{"reason": reason},
			})
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Could not validate credentials")
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"error_description":%q}`, errCode, errDesc))
}
