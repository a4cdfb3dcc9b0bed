package access

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "fintrail/pkg/domain"
	audit "fintrail/pkg/platform/audit"
	"fintrail/pkg/platform/audit/store/memory"
	"fintrail/pkg/requestcontext"
)

func TestAuthorize(t *testing.T) {
	admin := requestcontext.Identity{UserID: 1, Role: id.RoleAdmin}
	auditor := requestcontext.Identity{UserID: 2, Role: id.RoleAuditor}
	user := requestcontext.Identity{UserID: 3, Role: id.RoleUser}

	tests := []struct {
		name     string
		actor    requestcontext.Identity
		required []id.Role
		allowed  bool
	}{
		{"anonymous is never allowed", requestcontext.Identity{}, nil, false},
		{"any authenticated actor when no role required", user, nil, true},
		{"admin on admin route", admin, []id.Role{id.RoleAdmin}, true},
		{"auditor on compliance route", auditor, []id.Role{id.RoleAdmin, id.RoleAuditor}, true},
		{"user on compliance route", user, []id.Role{id.RoleAdmin, id.RoleAuditor}, false},
		{"auditor on admin-only route", auditor, []id.Role{id.RoleAdmin}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Authorize(tt.actor, tt.required...)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestGuard(t *testing.T) {
	newGuarded := func() (http.Handler, *memory.InMemoryStore) {
		store := memory.NewInMemoryStore()
		emitter := audit.NewEmitter(audit.NewSink(store, audit.Residency{}), nil, nil)
		h := Guard(emitter, slog.New(slog.DiscardHandler), audit.ResourceCompliance, id.RoleAdmin, id.RoleAuditor)(
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))
		return h, store
	}
	serve := func(h http.Handler, actor requestcontext.Identity) int {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/compliance/status", nil)
		if actor.Authenticated() {
			r = r.WithContext(requestcontext.WithActor(r.Context(), actor))
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)
		return rr.Code
	}

	t.Run("allowed role passes without audit", func(t *testing.T) {
		h, store := newGuarded()
		assert.Equal(t, http.StatusOK, serve(h, requestcontext.Identity{UserID: 5, Role: id.RoleAuditor}))
		n, err := store.Count(context.Background(), audit.Filter{})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("wrong role is forbidden and audited", func(t *testing.T) {
		h, store := newGuarded()
		assert.Equal(t, http.StatusForbidden, serve(h, requestcontext.Identity{UserID: 6, Role: id.RoleUser}))
		records := store.All()
		require.Len(t, records, 1)
		assert.Equal(t, audit.ActionAccessDenied, records[0].Action)
		assert.Equal(t, id.UserID(6), records[0].ActorUserID)
	})

	t.Run("anonymous is unauthorized and audited", func(t *testing.T) {
		h, store := newGuarded()
		assert.Equal(t, http.StatusUnauthorized, serve(h, requestcontext.Identity{}))
		records := store.All()
		require.Len(t, records, 1)
		assert.Equal(t, audit.ActionAccessDenied, records[0].Action)
		assert.True(t, records[0].ActorUserID.IsNil())
	})
}
