package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"fintrail/internal/access"
	"fintrail/internal/ledger/models"
	id "fintrail/pkg/domain"
	dErrors "fintrail/pkg/domain-errors"
	audit "fintrail/pkg/platform/audit"
	"fintrail/pkg/platform/sentinel"
	"fintrail/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, t *models.Transaction) error
	FindByID(ctx context.Context, txID id.TransactionID) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID id.UserID, offset, limit int) ([]models.Transaction, error)
}

// AuditEmitter records explicit audit entries. *audit.Emitter satisfies it.
type AuditEmitter interface {
	Emit(ctx context.Context, entry audit.Entry)
}

// Service records and reads financial transactions.
type Service struct {
	store   Store
	auditor AuditEmitter
	logger  *slog.Logger
}

func New(store Store, auditor AuditEmitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{store: store, auditor: auditor, logger: logger}
}

// CreateInput is a validated transaction request.
type CreateInput struct {
	Type             models.Type
	AmountMinor      int64
	Currency         string
	Description      string
	RecipientAccount string
	RecipientName    string
}

// NewReference returns a "TXN-" reference with twelve uppercase hex digits.
func NewReference() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TXN-" + strings.ToUpper(raw[:12])
}

// Create records a pending transaction owned by the caller.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Transaction, error) {
	actor := requestcontext.Actor(ctx)
	if !actor.Authenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = models.DefaultCurrency
	}

	t := &models.Transaction{
		UserID:           actor.UserID,
		Reference:        NewReference(),
		Type:             in.Type,
		AmountMinor:      in.AmountMinor,
		Currency:         currency,
		Status:           models.StatusPending,
		Description:      in.Description,
		RecipientAccount: in.RecipientAccount,
		RecipientName:    in.RecipientName,
		CreatedAt:        requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create transaction")
	}

	s.auditor.Emit(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       audit.ActionCreate,
		ResourceType: audit.ResourceTransaction,
		ResourceID:   audit.ResourceRef(t.ID),
		Description:  fmt.Sprintf("Created %s transaction %s", t.Type, t.Reference),
		Metadata: map[string]any{
			"amount":   t.Amount(),
			"currency": t.Currency,
		},
	})
	return t, nil
}

// List returns the caller's own transactions.
func (s *Service) List(ctx context.Context, offset, limit int) ([]models.Transaction, error) {
	actor := requestcontext.Actor(ctx)
	if !actor.Authenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	txns, err := s.store.ListByUser(ctx, actor.UserID, offset, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list transactions")
	}
	return txns, nil
}

// Get returns a transaction to its owner or an admin. Anyone else is denied
// and the denial is audited.
func (s *Service) Get(ctx context.Context, txID id.TransactionID) (*models.Transaction, error) {
	actor := requestcontext.Actor(ctx)
	t, err := s.store.FindByID(ctx, txID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Transaction not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transaction")
	}

	if t.UserID != actor.UserID && !access.Authorize(actor, id.RoleAdmin).Allowed {
		s.logger.WarnContext(ctx, "transaction access denied",
			"user_id", actor.UserID,
			"transaction_id", txID,
			"request_id", requestcontext.RequestID(ctx),
		)
		access.Deny(ctx, s.auditor, audit.ResourceTransaction, audit.ResourceRef(txID),
			fmt.Sprintf("Unauthorized access attempt to transaction %d", txID))
		return nil, dErrors.New(dErrors.CodeForbidden, "Access denied")
	}
	return t, nil
}
