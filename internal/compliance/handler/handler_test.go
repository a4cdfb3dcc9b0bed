package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrail/internal/compliance/service"
	"fintrail/internal/compliance/store"
	userstore "fintrail/internal/identity/store/user"
	"fintrail/internal/platform/config"
	audit "fintrail/pkg/platform/audit"
	auditmemory "fintrail/pkg/platform/audit/store/memory"
)

func newRouter(t *testing.T) (http.Handler, *auditmemory.InMemoryStore) {
	t.Helper()
	audits := auditmemory.NewInMemoryStore()
	svc := service.New(userstore.New(), audits, store.NewInMemoryInventory(), nil, config.Server{}, nil)
	r := chi.NewRouter()
	New(svc, slog.New(slog.DiscardHandler)).Register(r)
	return r, audits
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestAuditLogsQueryValidation(t *testing.T) {
	r, audits := newRouter(t)
	audits.Insert(audit.Record{ActorUserID: 4, Action: audit.ActionLogin, Timestamp: time.Now()})

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"no filters", "", http.StatusOK},
		{"by user and action", "?user_id=4&action=login", http.StatusOK},
		{"bad user id", "?user_id=abc", http.StatusBadRequest},
		{"unknown action", "?action=EXPLODE", http.StatusBadRequest},
		{"bad from", "?from=yesterday", http.StatusBadRequest},
		{"limit too large", "?limit=1001", http.StatusBadRequest},
		{"negative skip", "?skip=-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(r, "/compliance/audit-logs"+tt.query)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestAuditLogsReturnsPage(t *testing.T) {
	r, audits := newRouter(t)
	audits.Insert(audit.Record{ActorUserID: 4, Action: audit.ActionLogin, Timestamp: time.Now()})

	rr := get(r, "/compliance/audit-logs?action=LOGIN")
	require.Equal(t, http.StatusOK, rr.Code)
	var page map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.EqualValues(t, 1, page["total"])
	assert.EqualValues(t, audit.DefaultPageLimit, page["limit"])
}

func TestStatusWithEmptyStores(t *testing.T) {
	r, _ := newRouter(t)
	rr := get(r, "/compliance/status")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Compliance struct {
			ConsentRate     float64 `json:"consent_rate"`
			MFAAdoptionRate float64 `json:"mfa_adoption_rate"`
		} `json:"popia_compliance"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Zero(t, body.Compliance.ConsentRate)
	assert.Zero(t, body.Compliance.MFAAdoptionRate)
}

func TestRunRetentionDisabled(t *testing.T) {
	r, _ := newRouter(t)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/compliance/retention/run", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)
}
