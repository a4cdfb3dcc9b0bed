package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"fintrail/internal/identity/models"
	"fintrail/internal/identity/revocation"
	"fintrail/internal/identity/service"
	userstore "fintrail/internal/identity/store/user"
	jwttoken "fintrail/internal/jwt_token"
	id "fintrail/pkg/domain"
	audit "fintrail/pkg/platform/audit"
	auditmemory "fintrail/pkg/platform/audit/store/memory"
	"fintrail/pkg/requestcontext"
)

const pendingSecret = "JBSWY3DPEHPK3PXP"

type fixedMFA struct{}

func (fixedMFA) Generate(account string) (string, string, error) {
	return pendingSecret, "otpauth://totp/fintrail:" + account + "?issuer=fintrail&secret=" + pendingSecret, nil
}

func (fixedMFA) Verify(secret, code string) bool {
	return secret == pendingSecret && code == "123456"
}

type fixture struct {
	router http.Handler
	users  *userstore.InMemoryUserStore
	audits *auditmemory.InMemoryStore
	user   *models.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	users := userstore.New()
	audits := auditmemory.NewInMemoryStore()
	emitter := audit.NewEmitter(audit.NewSink(audits, audit.Residency{}), users, nil)
	svc := service.New(users, jwttoken.NewJWTService("handler-test-key", "fintrail"), revocation.NewInMemoryTRL(), fixedMFA{}, emitter,
		service.Config{AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour},
		service.WithHashCost(bcrypt.MinCost),
	)

	u := &models.User{Email: "ayanda@example.com", FirstName: "Ayanda", Role: id.RoleUser, IsActive: true}
	require.NoError(t, users.Create(context.Background(), u))

	r := chi.NewRouter()
	New(svc, slog.New(slog.DiscardHandler)).RegisterAuthenticated(r)
	return fixture{router: r, users: users, audits: audits, user: u}
}

func (f fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(requestcontext.WithActor(req.Context(),
		requestcontext.Identity{UserID: f.user.ID, Email: f.user.Email, Role: id.RoleUser}))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func errorDescription(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body["error_description"]
}

func TestMFAEnrollment(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/auth/mfa/verify", map[string]string{"token": "123456"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "MFA not set up. Please setup MFA first.", errorDescription(t, rr))

	rr = f.do(http.MethodPost, "/auth/mfa/setup", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var setup service.MFASetup
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &setup))
	assert.Equal(t, pendingSecret, setup.Secret)
	assert.Contains(t, setup.ProvisioningURI, "ayanda@example.com")

	stored, err := f.users.FindByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.False(t, stored.MFAEnabled, "setup alone does not enable MFA")

	rr = f.do(http.MethodPost, "/auth/mfa/verify", map[string]string{"token": "654321"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid MFA token", errorDescription(t, rr))

	rr = f.do(http.MethodPost, "/auth/mfa/verify", map[string]string{"token": "12"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodPost, "/auth/mfa/verify", map[string]string{"token": "123456"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	stored, err = f.users.FindByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.True(t, stored.MFAEnabled)

	rr = f.do(http.MethodPost, "/auth/mfa/setup", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "MFA is already enabled", errorDescription(t, rr))

	var updates []string
	for _, rec := range f.audits.All() {
		if rec.Action == audit.ActionUpdate {
			updates = append(updates, rec.Description)
		}
	}
	assert.Equal(t, []string{"MFA setup started", "MFA enabled"}, updates)
}
