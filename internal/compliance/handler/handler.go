package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fintrail/internal/compliance/models"
	"fintrail/internal/compliance/service"
	"fintrail/internal/retention"
	id "fintrail/pkg/domain"
	dErrors "fintrail/pkg/domain-errors"
	audit "fintrail/pkg/platform/audit"
	"fintrail/pkg/platform/httputil"
	"fintrail/pkg/requestcontext"
)

// Service defines the compliance reporting operations.
type Service interface {
	Inventory(ctx context.Context) (models.Inventory, error)
	AuditLogs(ctx context.Context, f audit.Filter, p audit.Page) (service.AuditLogPage, error)
	Status(ctx context.Context) (models.Status, error)
	RunRetention(ctx context.Context) (retention.Report, error)
}

// Handler serves /compliance endpoints. Role guards are installed by the
// router per route.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: svc}
}

func (h *Handler) HandleInventory(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Inventory(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) HandleAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offset, limit, err := httputil.ParsePaging(r, audit.DefaultPageLimit, audit.MaxPageLimit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.service.AuditLogs(ctx, filter, audit.Page{Offset: offset, Limit: limit})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit logs",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) HandleRunRetention(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RunRetention(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// Register mounts all compliance routes without guards. Used in tests and by
// callers that guard the whole group.
func (h *Handler) Register(r chi.Router) {
	r.Get("/compliance/data-inventory", h.HandleInventory)
	r.Get("/compliance/audit-logs", h.HandleAuditLogs)
	r.Get("/compliance/status", h.HandleStatus)
	r.Post("/compliance/retention/run", h.HandleRunRetention)
}

func parseFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	var f audit.Filter
	if v := q.Get("user_id"); v != "" {
		uid, err := id.ParseUserID(v)
		if err != nil {
			return audit.Filter{}, dErrors.New(dErrors.CodeValidation, "user_id must be a positive integer")
		}
		f.UserID = uid
	}
	if v := q.Get("action"); v != "" {
		action, err := audit.ParseAction(v)
		if err != nil {
			return audit.Filter{}, err
		}
		f.Action = action
	}
	var err error
	if f.From, err = parseTime(q.Get("from"), "from"); err != nil {
		return audit.Filter{}, err
	}
	if f.To, err = parseTime(q.Get("to"), "to"); err != nil {
		return audit.Filter{}, err
	}
	return f, nil
}

func parseTime(v, name string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, name+" must be an RFC 3339 timestamp")
	}
	return t, nil
}
