// Package access decides whether an identity may use a role-gated operation.
//
// Authorize is a pure function. Guard turns its Decision into HTTP behavior
// and records every denial as an ACCESS_DENIED audit entry.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	id "fintrail/pkg/domain"
	dErrors "fintrail/pkg/domain-errors"
	audit "fintrail/pkg/platform/audit"
	"fintrail/pkg/platform/httputil"
	"fintrail/pkg/requestcontext"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Authorize allows actor when its role is one of required. An empty required
// list only demands an authenticated actor.
func Authorize(actor requestcontext.Identity, required ...id.Role) Decision {
	if !actor.Authenticated() {
		return Decision{Reason: "authentication required"}
	}
	if len(required) == 0 || slices.Contains(required, actor.Role) {
		return Decision{Allowed: true}
	}
	names := make([]string, len(required))
	for i, r := range required {
		names[i] = r.String()
	}
	return Decision{Reason: fmt.Sprintf("role %q is not one of [%s]", actor.Role, strings.Join(names, ", "))}
}

// Emitter records denials. *audit.Emitter satisfies it.
type Emitter interface {
	Emit(ctx context.Context, entry audit.Entry)
}

// Deny records an ACCESS_DENIED entry for the current actor.
func Deny(ctx context.Context, emitter Emitter, resourceType string, resourceID *int64, description string) {
	actor := requestcontext.Actor(ctx)
	emitter.Emit(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       audit.ActionAccessDenied,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Description:  description,
		Metadata:     map[string]any{"role": actor.Role.String()},
	})
}

// Guard is middleware that admits only actors holding one of roles. Denials
// are audited against resourceType. Unauthenticated callers get 401,
// authenticated ones with the wrong role 403.
func Guard(emitter Emitter, logger *slog.Logger, resourceType string, roles ...id.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor := requestcontext.Actor(ctx)
			decision := Authorize(actor, roles...)
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			logger.WarnContext(ctx, "access denied",
				"user_id", actor.UserID,
				"role", actor.Role,
				"path", r.URL.Path,
				"reason", decision.Reason,
				"request_id", requestcontext.RequestID(ctx),
			)
			Deny(ctx, emitter, resourceType, nil,
				fmt.Sprintf("Access denied to %s %s: %s", r.Method, r.URL.Path, decision.Reason))

			if !actor.Authenticated() {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Could not validate credentials"))
				return
			}
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Insufficient permissions"))
		})
	}
}
