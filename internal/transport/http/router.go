// Package httptransport assembles the chi router: the shared middleware
// chain, the per-route authentication and role guards, and the audit route
// table that tells the interceptor what each route operates on.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fintrail/internal/access"
	compliancehandler "fintrail/internal/compliance/handler"
	consenthandler "fintrail/internal/consent/handler"
	datasubjecthandler "fintrail/internal/datasubject/handler"
	identityhandler "fintrail/internal/identity/handler"
	ledgerhandler "fintrail/internal/ledger/handler"
	"fintrail/internal/platform/metrics"
	id "fintrail/pkg/domain"
	audit "fintrail/pkg/platform/audit"
	"fintrail/pkg/platform/audit/interceptor"
	"fintrail/pkg/platform/httputil"
	authmw "fintrail/pkg/platform/middleware/auth"
	"fintrail/pkg/platform/middleware/metadata"
	"fintrail/pkg/platform/middleware/request"
)

const APIPrefix = "/api/v1"

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Dependencies is everything the router wires together. Handlers are built
// by the caller so the router holds no business state.
type Dependencies struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	Emitter     *audit.Emitter
	Interceptor *interceptor.Interceptor

	Validator  authmw.JWTValidator
	Revocation authmw.TokenRevocationChecker

	Identity    *identityhandler.Handler
	Ledger      *ledgerhandler.Handler
	Consent     *consenthandler.Handler
	DataSubject *datasubjecthandler.Handler
	Compliance  *compliancehandler.Handler

	Checks  map[string]HealthCheck
	Version string
}

// Routes declares the resource each API route operates on. The interceptor
// uses it to fill resource_type and resource_id on generic records.
func Routes() *interceptor.RouteTable {
	user := interceptor.ResourceSpec{Type: audit.ResourceUser}
	self := interceptor.ResourceSpec{Type: audit.ResourceUser, SelfID: true}
	subject := interceptor.ResourceSpec{Type: audit.ResourceDataSubject, SelfID: true}
	transaction := interceptor.ResourceSpec{Type: audit.ResourceTransaction}
	consent := interceptor.ResourceSpec{Type: audit.ResourceConsent}
	compliance := interceptor.ResourceSpec{Type: audit.ResourceCompliance}

	return interceptor.NewRouteTable().
		Declare(APIPrefix+"/auth/register", user).
		Declare(APIPrefix+"/auth/login", user).
		Declare(APIPrefix+"/auth/refresh", user).
		Declare(APIPrefix+"/auth/logout", self).
		Declare(APIPrefix+"/auth/me", self).
		Declare(APIPrefix+"/auth/mfa/setup", self).
		Declare(APIPrefix+"/auth/mfa/verify", self).
		Declare(APIPrefix+"/users/{user_id}", interceptor.ResourceSpec{Type: audit.ResourceUser, IDParam: "user_id"}).
		Declare(APIPrefix+"/transactions", transaction).
		Declare(APIPrefix+"/transactions/{transaction_id}", interceptor.ResourceSpec{Type: audit.ResourceTransaction, IDParam: "transaction_id"}).
		Declare(APIPrefix+"/consents", consent).
		Declare(APIPrefix+"/consents/{consent_type}", consent).
		Declare(APIPrefix+"/data-subject/access", subject).
		Declare(APIPrefix+"/data-subject/correct", subject).
		Declare(APIPrefix+"/data-subject/delete", subject).
		Declare(APIPrefix+"/data-subject/export", subject).
		Declare(APIPrefix+"/compliance/data-inventory", compliance).
		Declare(APIPrefix+"/compliance/audit-logs", compliance).
		Declare(APIPrefix+"/compliance/status", compliance).
		Declare(APIPrefix+"/compliance/retention/run", compliance)
}

// NewRouter builds the HTTP handler. Middleware order matters: the
// interceptor runs inside recovery so it records panics before they are
// turned into a 500, and after bearer identification so it knows the actor.
func NewRouter(d Dependencies) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(logger, d.Metrics))
	r.Use(authmw.Authenticate(d.Validator, d.Revocation, logger))
	if d.Interceptor != nil {
		r.Use(d.Interceptor.Middleware)
	}

	r.Get("/health", handleHealth(d.Checks, d.Version))
	r.Get("/health/live", handleLive)
	r.Get("/health/ready", handleReady(d.Checks))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	requireAuth := authmw.RequireAuth(d.Emitter, logger)
	guard := func(resource string, roles ...id.Role) func(http.Handler) http.Handler {
		return access.Guard(d.Emitter, logger, resource, roles...)
	}

	r.Route(APIPrefix, func(r chi.Router) {
		d.Identity.RegisterPublic(r)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			d.Identity.RegisterAuthenticated(r)
			d.Ledger.Register(r)
			d.Consent.Register(r)
			d.DataSubject.Register(r)

			r.With(guard(audit.ResourceUser, id.RoleAdmin, id.RoleAuditor)).
				Get("/users/{user_id}", d.Identity.HandleGetUser)

			r.Route("/compliance", func(r chi.Router) {
				r.With(guard(audit.ResourceCompliance, id.RoleAdmin, id.RoleAuditor)).
					Get("/data-inventory", d.Compliance.HandleInventory)
				r.With(guard(audit.ResourceCompliance, id.RoleAdmin, id.RoleAuditor)).
					Get("/audit-logs", d.Compliance.HandleAuditLogs)
				r.With(guard(audit.ResourceCompliance, id.RoleAdmin)).
					Get("/status", d.Compliance.HandleStatus)
				r.With(guard(audit.ResourceCompliance, id.RoleAdmin)).
					Post("/retention/run", d.Compliance.HandleRunRetention)
			})
		})
	})

	return r
}

func handleLive(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func handleHealth(checks map[string]HealthCheck, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, results := runChecks(r.Context(), checks)
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":       status,
			"version":      version,
			"dependencies": results,
		})
	}
}

func handleReady(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, results := runChecks(r.Context(), checks)
		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, map[string]any{
			"status":       status,
			"dependencies": results,
		})
	}
}

func runChecks(ctx context.Context, checks map[string]HealthCheck) (string, map[string]string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := "healthy"
	results := make(map[string]string, len(checks))
	for name, check := range checks {
		if err := check(ctx); err != nil {
			results[name] = "unhealthy: " + err.Error()
			status = "degraded"
			continue
		}
		results[name] = "healthy"
	}
	return status, results
}
