package interceptor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "fintrail/pkg/domain"
	audit "fintrail/pkg/platform/audit"
	"fintrail/pkg/platform/audit/store/memory"
	"fintrail/pkg/requestcontext"
)

var excluded = []string{"/health", "/health/ready", "/health/live", "/api/docs"}

type InterceptorSuite struct {
	suite.Suite
	store  *memory.InMemoryStore
	router chi.Router
	seen   []byte
}

func TestInterceptorSuite(t *testing.T) {
	suite.Run(t, new(InterceptorSuite))
}

func (s *InterceptorSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()
	s.seen = nil
	s.router = s.newRouter(true)
}

func (s *InterceptorSuite) newRouter(enabled bool) chi.Router {
	sink := audit.NewSink(s.store, audit.Residency{CloudProvider: "aws", Region: "us-east-1"})
	table := NewRouteTable().
		Declare("/api/v1/users/{id}", ResourceSpec{Type: audit.ResourceUser, IDParam: "id"}).
		Declare("/api/v1/auth/me", ResourceSpec{Type: audit.ResourceUser, SelfID: true}).
		Declare("/api/v1/transactions", ResourceSpec{Type: audit.ResourceTransaction})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, req)
		})
	})
	r.Use(New(sink, Config{Enabled: enabled, ExcludedPaths: excluded, BodyPreviewLimit: 1000},
		WithRouteTable(table)).Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/users/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		r.Get("/auth/me", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		r.Post("/transactions", func(w http.ResponseWriter, req *http.Request) {
			s.seen, _ = io.ReadAll(req.Body)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":1}`))
		})
		r.Post("/auth/login", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("handler exploded") })
		r.Delete("/account", func(w http.ResponseWriter, req *http.Request) {
			requestcontext.MarkActorErased(req.Context())
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}

func (s *InterceptorSuite) serve(r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, r)
	return rr
}

func (s *InterceptorSuite) TestOneRecordPerRequestWhateverTheOutcome() {
	cases := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"success", httptest.NewRequest(http.MethodGet, "/api/v1/users/5", nil), http.StatusOK},
		{"failure", httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{}`)), http.StatusUnauthorized},
		{"panic", httptest.NewRequest(http.MethodGet, "/api/v1/boom", nil), http.StatusInternalServerError},
		{"not found", httptest.NewRequest(http.MethodGet, "/api/v1/nowhere", nil), http.StatusNotFound},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.store.Clear()
			rr := s.serve(tc.req)
			s.Equal(tc.status, rr.Code)

			records := s.store.All()
			s.Require().Len(records, 1)
			s.Equal(tc.status, records[0].Metadata["status_code"])
		})
	}
}

func (s *InterceptorSuite) TestPanicIsRecordedThenPropagated() {
	rr := s.serve(httptest.NewRequest(http.MethodGet, "/api/v1/boom", nil))
	s.Equal(http.StatusInternalServerError, rr.Code)

	records := s.store.All()
	s.Require().Len(records, 1)
	s.Equal("handler exploded", records[0].Metadata["panic"])
	s.Equal("GET /api/v1/boom - Status: 500", records[0].Description)
}

func (s *InterceptorSuite) TestHealthNeverAudited() {
	for _, enabled := range []bool{true, false} {
		s.router = s.newRouter(enabled)
		rr := s.serve(httptest.NewRequest(http.MethodGet, "/health", nil))
		s.Equal(http.StatusOK, rr.Code)
	}
	s.Empty(s.store.All())
}

func (s *InterceptorSuite) TestDisabledSkipsEverything() {
	s.router = s.newRouter(false)
	s.serve(httptest.NewRequest(http.MethodGet, "/api/v1/users/5", nil))
	s.Empty(s.store.All())
}

func (s *InterceptorSuite) TestDeclaredRouteResolvesResource() {
	s.serve(httptest.NewRequest(http.MethodGet, "/api/v1/users/5?verbose=1", nil))

	records := s.store.All()
	s.Require().Len(records, 1)
	rec := records[0]
	s.Equal(audit.ActionRead, rec.Action)
	s.Equal(audit.ResourceUser, rec.ResourceType)
	s.Require().NotNil(rec.ResourceID)
	s.Equal(int64(5), *rec.ResourceID)
	s.Equal("/api/v1/users/{id}", rec.Metadata["route"])
	s.Equal(map[string]any{"verbose": "1"}, rec.Metadata["query_params"])
	s.Equal("us-east-1", rec.Region)
}

func (s *InterceptorSuite) TestSelfRouteUsesActor() {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	ctx := requestcontext.WithActor(req.Context(), requestcontext.Identity{UserID: 12, Email: "sipho@example.com"})
	ctx = requestcontext.WithClientMetadata(ctx, "198.51.100.4", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	s.serve(req.WithContext(ctx))

	rec := s.store.All()[0]
	s.Equal(id.UserID(12), rec.ActorUserID)
	s.Equal("sipho@example.com", rec.ActorEmail)
	s.Equal("198.51.100.4", rec.IPAddress)
	s.Require().NotNil(rec.ResourceID)
	s.Equal(int64(12), *rec.ResourceID)
	s.Contains(rec.Metadata["client"], "Chrome")
}

func (s *InterceptorSuite) TestActorErasedDuringRequestIsDetached() {
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/account", nil)
	ctx := requestcontext.WithActor(req.Context(), requestcontext.Identity{UserID: 31, Email: "lerato@example.com"})
	rr := s.serve(req.WithContext(ctx))
	s.Equal(http.StatusOK, rr.Code)

	records := s.store.All()
	s.Require().Len(records, 1)
	s.True(records[0].ActorUserID.IsNil())
	s.Equal("lerato@example.com", records[0].ActorEmail)
	s.Equal(true, records[0].Metadata["actor_erased"])
}

func (s *InterceptorSuite) TestBodyPreviewIsBoundedRedactedAndReplayed() {
	payload := map[string]any{
		"password":    "hunter2",
		"description": strings.Repeat("x", 3000),
	}
	body, err := json.Marshal(payload)
	s.Require().NoError(err)

	rr := s.serve(httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(string(body))))
	s.Equal(http.StatusCreated, rr.Code)
	s.Equal(body, s.seen, "handler must see the full body")

	rec := s.store.All()[0]
	preview, ok := rec.Metadata["request_body_preview"].(string)
	s.Require().True(ok)
	s.LessOrEqual(len(preview), 1000)
	s.NotContains(preview, "hunter2")
	s.Equal(audit.ActionCreate, rec.Action)
	s.Equal(audit.ResourceTransaction, rec.ResourceType)
}

func (s *InterceptorSuite) TestSinkFailureDoesNotChangeResponse() {
	s.store.FailAppends(errors.New("audit db down"))

	rr := s.serve(httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(`{"amount":"10.00"}`)))
	s.Equal(http.StatusCreated, rr.Code)
	s.JSONEq(`{"id":1}`, rr.Body.String())
}

func TestClassifyAction(t *testing.T) {
	tests := []struct {
		method, path string
		want         audit.Action
	}{
		{http.MethodGet, "/api/v1/users/1", audit.ActionRead},
		{http.MethodHead, "/api/v1/users/1", audit.ActionRead},
		{http.MethodOptions, "/api/v1/users", audit.ActionRead},
		{http.MethodPost, "/api/v1/transactions", audit.ActionCreate},
		{http.MethodPut, "/api/v1/users/1", audit.ActionUpdate},
		{http.MethodPatch, "/api/v1/users/1", audit.ActionUpdate},
		{http.MethodDelete, "/api/v1/users/1", audit.ActionDelete},
		{http.MethodGet, "/api/v1/auth/login", audit.ActionLogin},
		{http.MethodGet, "/api/v1/auth/logout", audit.ActionLogout},
		{http.MethodPost, "/api/v1/auth/login", audit.ActionCreate},
		{"PROPFIND", "/api/v1/auth/logout", audit.ActionLogout},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyAction(tt.method, tt.path))
		})
	}
}

func TestInferResource(t *testing.T) {
	ptr := func(n int64) *int64 { return &n }
	tests := []struct {
		path     string
		wantType string
		wantID   *int64
	}{
		{"/api/v1/users/42", audit.ResourceUser, ptr(42)},
		{"/api/v1/users/me", audit.ResourceUser, nil},
		{"/api/v1/transactions", audit.ResourceTransaction, nil},
		{"/api/v1/transactions/7", audit.ResourceTransaction, ptr(7)},
		{"/api/v1/data-subject/export", audit.ResourceDataSubject, nil},
		{"/api/v1/widgets/3", audit.ResourceUnknown, nil},
		{"/", audit.ResourceUnknown, nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			gotType, gotID := InferResource(tt.path)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.wantID, gotID)
		})
	}
}

func TestIsExcluded(t *testing.T) {
	assert.True(t, isExcluded("/health", excluded))
	assert.True(t, isExcluded("/health/live", excluded))
	assert.True(t, isExcluded("/api/docs/index.html", excluded))
	assert.False(t, isExcluded("/healthz", excluded))
	assert.False(t, isExcluded("/api/v1/users", excluded))
}

func TestRedact(t *testing.T) {
	got := redact(`{"email":"a@b.co","password":"s3cr\"et","mfa_token":"123456"}`)
	assert.Equal(t, `{"email":"a@b.co","password":"***","mfa_token":"***"}`, got)

	truncated := redact(`{"password":"abc`)
	assert.Equal(t, `{"password":"***"`, truncated)
}

func TestDescribeClient(t *testing.T) {
	require.Empty(t, describeClient(""))
	assert.Contains(t, describeClient("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"), "(mobile)")
}
