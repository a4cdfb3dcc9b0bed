package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fintrail/internal/datasubject/service"
	identity "fintrail/internal/identity/models"
	"fintrail/pkg/platform/httputil"
	"fintrail/pkg/requestcontext"
)

// Service defines the data subject operations.
type Service interface {
	Access(ctx context.Context) (service.Report, error)
	Export(ctx context.Context) (service.Export, error)
	Correct(ctx context.Context, field, value, reason string) (identity.Profile, error)
	Delete(ctx context.Context, reason string) (service.DeletionOutcome, error)
}

// Handler serves /data-subject endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: svc}
}

// Register mounts the data subject routes. The caller installs RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/data-subject/access", h.handleAccess)
	r.Put("/data-subject/correct", h.handleCorrect)
	r.Delete("/data-subject/delete", h.handleDelete)
	r.Get("/data-subject/export", h.handleExport)
}

func (h *Handler) handleAccess(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Access(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	export, err := h.service.Export(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	actor := requestcontext.Actor(ctx)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("fintrail-export-%d.json", actor.UserID)))
	httputil.WriteJSON(w, http.StatusOK, export)
}

func (h *Handler) handleCorrect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[CorrectionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	profile, err := h.service.Correct(ctx, req.FieldName, req.NewValue, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "data correction rejected",
			"request_id", requestID,
			"field", req.FieldName,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var reason string
	if r.ContentLength > 0 {
		req, ok := httputil.DecodeAndPrepare[DeletionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
		if !ok {
			return
		}
		reason = req.Reason
	}
	outcome, err := h.service.Delete(ctx, reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if outcome.Status == service.DeletionScheduled {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, outcome)
}
