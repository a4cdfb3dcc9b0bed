package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fintrail/internal/ledger/models"
	"fintrail/internal/ledger/service"
	id "fintrail/pkg/domain"
	"fintrail/pkg/platform/httputil"
	"fintrail/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, in service.CreateInput) (*models.Transaction, error)
	List(ctx context.Context, offset, limit int) ([]models.Transaction, error)
	Get(ctx context.Context, txID id.TransactionID) (*models.Transaction, error)
}

// Handler exposes the caller's transactions.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts transaction endpoints. The caller installs RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/transactions", h.HandleCreate)
	r.Get("/transactions", h.HandleList)
	r.Get("/transactions/{transaction_id}", h.HandleGet)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[CreateTransactionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	t, err := h.service.Create(ctx, service.CreateInput{
		Type:             req.parsedType,
		AmountMinor:      req.parsedAmount,
		Currency:         req.Currency,
		Description:      req.Description,
		RecipientAccount: req.RecipientAccount,
		RecipientName:    req.RecipientName,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "create transaction failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t.ToView())
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	offset, limit, err := httputil.ParsePaging(r, 100, 1000)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	txns, err := h.service.List(ctx, offset, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	views := make([]models.View, len(txns))
	for i, t := range txns {
		views[i] = t.ToView()
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID, err := id.ParseTransactionID(chi.URLParam(r, "transaction_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.service.Get(ctx, txID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t.ToView())
}
