package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fintrail/internal/consent/models"
	id "fintrail/pkg/domain"
	dErrors "fintrail/pkg/domain-errors"
	"fintrail/pkg/platform/httputil"
	"fintrail/pkg/requestcontext"
)

// Service defines the interface for consent operations.
type Service interface {
	Grant(ctx context.Context, purpose id.ConsentPurpose) (*models.Consent, error)
	Withdraw(ctx context.Context, purpose id.ConsentPurpose) (*models.Consent, error)
	List(ctx context.Context) ([]models.Consent, error)
}

// Handler handles consent-related endpoints.
type Handler struct {
	logger  *slog.Logger
	consent Service
}

func New(consent Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, consent: consent}
}

// Register mounts consent routes. The caller installs RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/consents", h.handleList)
	r.Post("/consents", h.handleGrant)
	r.Delete("/consents/{consent_type}", h.handleWithdraw)
}

// GrantConsentRequest is the body of POST /consents.
type GrantConsentRequest struct {
	ConsentType string `json:"consent_type"`

	purpose id.ConsentPurpose
}

func (r *GrantConsentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	sanitize(r)
	purpose, err := id.ParseConsentPurpose(r.ConsentType)
	if err != nil {
		return err
	}
	r.purpose = purpose
	return nil
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[GrantConsentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.consent.Grant(ctx, req.purpose)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to grant consent",
			"request_id", requestID,
			"purpose", req.purpose,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	purpose, err := id.ParseConsentPurpose(chi.URLParam(r, "consent_type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.consent.Withdraw(ctx, purpose)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	consents, err := h.consent.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, consents)
}
