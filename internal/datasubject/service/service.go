// Package service implements the data subject rights: access, correction,
// deletion and export of the caller's own personal information.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	consent "fintrail/internal/consent/models"
	identity "fintrail/internal/identity/models"
	ledger "fintrail/internal/ledger/models"
	id "fintrail/pkg/domain"
	dErrors "fintrail/pkg/domain-errors"
	audit "fintrail/pkg/platform/audit"
	"fintrail/pkg/platform/sentinel"
	"fintrail/pkg/requestcontext"
)

type UserStore interface {
	FindByID(ctx context.Context, userID id.UserID) (*identity.User, error)
	Update(ctx context.Context, u *identity.User) error
}

type TransactionStore interface {
	ListByUser(ctx context.Context, userID id.UserID, offset, limit int) ([]ledger.Transaction, error)
	CountByUser(ctx context.Context, userID id.UserID) (int, error)
}

type ConsentStore interface {
	ListByUser(ctx context.Context, userID id.UserID) ([]consent.Consent, error)
}

type Eraser interface {
	Erase(ctx context.Context, userID id.UserID) error
}

type AuditEmitter interface {
	Emit(ctx context.Context, entry audit.Entry)
}

// TokenRevoker blocks the caller's access token once the account is gone.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

// Service serves data subject requests for the authenticated caller.
type Service struct {
	users         UserStore
	transactions  TransactionStore
	consents      ConsentStore
	eraser        Eraser
	revoker       TokenRevoker
	auditor       AuditEmitter
	userRetention time.Duration
	logger        *slog.Logger
}

func New(users UserStore, transactions TransactionStore, consents ConsentStore, eraser Eraser, revoker TokenRevoker, auditor AuditEmitter, userRetention time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		users:         users,
		transactions:  transactions,
		consents:      consents,
		eraser:        eraser,
		revoker:       revoker,
		auditor:       auditor,
		userRetention: userRetention,
		logger:        logger,
	}
}

// Report is everything held about a data subject.
type Report struct {
	Profile      identity.Profile  `json:"personal_information"`
	Transactions []ledger.View     `json:"transactions"`
	Consents     []consent.Consent `json:"consents"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// Export wraps a Report with machine-readable export metadata.
type Export struct {
	Format        string    `json:"format"`
	SchemaVersion string    `json:"schema_version"`
	ExportedAt    time.Time `json:"exported_at"`
	Data          Report    `json:"data"`
}

func (s *Service) self(ctx context.Context) (*identity.User, error) {
	actor := requestcontext.Actor(ctx)
	if !actor.Authenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	u, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "User not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return u, nil
}

func (s *Service) collect(ctx context.Context, u *identity.User) (Report, error) {
	txns, err := s.transactions.ListByUser(ctx, u.ID, 0, 0)
	if err != nil {
		return Report{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transactions")
	}
	consents, err := s.consents.ListByUser(ctx, u.ID)
	if err != nil {
		return Report{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consents")
	}
	views := make([]ledger.View, len(txns))
	for i, t := range txns {
		views[i] = t.ToView()
	}
	return Report{
		Profile:      u.ToProfile(),
		Transactions: views,
		Consents:     consents,
		GeneratedAt:  requestcontext.Now(ctx),
	}, nil
}

// Access returns the caller's personal information.
func (s *Service) Access(ctx context.Context) (Report, error) {
	u, err := s.self(ctx)
	if err != nil {
		return Report{}, err
	}
	report, err := s.collect(ctx, u)
	if err != nil {
		return Report{}, err
	}
	s.auditor.Emit(ctx, audit.Entry{
		ActorID:      u.ID,
		Action:       audit.ActionDataExport,
		ResourceType: audit.ResourceDataSubject,
		ResourceID:   audit.ResourceRef(u.ID),
		Description:  "Data subject access request fulfilled",
		Metadata: map[string]any{
			"request_type":      "access",
			"transaction_count": len(report.Transactions),
		},
	})
	return report, nil
}

// Export returns the same data as Access in a portable envelope.
func (s *Service) Export(ctx context.Context) (Export, error) {
	u, err := s.self(ctx)
	if err != nil {
		return Export{}, err
	}
	report, err := s.collect(ctx, u)
	if err != nil {
		return Export{}, err
	}
	s.auditor.Emit(ctx, audit.Entry{
		ActorID:      u.ID,
		Action:       audit.ActionDataExport,
		ResourceType: audit.ResourceDataSubject,
		ResourceID:   audit.ResourceRef(u.ID),
		Description:  "Data subject exported own record",
		Metadata:     map[string]any{"request_type": "export", "format": "json"},
	})
	return Export{
		Format:        "json",
		SchemaVersion: "1.0",
		ExportedAt:    report.GeneratedAt,
		Data:          report,
	}, nil
}

// Correctable fields and their setters.
var correctable = map[string]func(u *identity.User) *string{
	"first_name":   func(u *identity.User) *string { return &u.FirstName },
	"last_name":    func(u *identity.User) *string { return &u.LastName },
	"phone_number": func(u *identity.User) *string { return &u.PhoneNumber },
}

// Correct updates one correctable profile field. Old and new values are
// masked in the audit trail.
func (s *Service) Correct(ctx context.Context, field, value, reason string) (identity.Profile, error) {
	target, ok := correctable[field]
	if !ok {
		return identity.Profile{}, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("Field %q cannot be corrected; allowed fields are first_name, last_name, phone_number", field))
	}
	u, err := s.self(ctx)
	if err != nil {
		return identity.Profile{}, err
	}

	*target(u) = value
	u.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, u); err != nil {
		return identity.Profile{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}

	metadata := map[string]any{
		field: map[string]string{"old": "***", "new": "***"},
	}
	if reason != "" {
		metadata["reason"] = reason
	}
	s.auditor.Emit(ctx, audit.Entry{
		ActorID:      u.ID,
		Action:       audit.ActionUpdate,
		ResourceType: audit.ResourceUser,
		ResourceID:   audit.ResourceRef(u.ID),
		Description:  "Data subject corrected " + field,
		Metadata:     metadata,
	})
	return u.ToProfile(), nil
}

// DeletionOutcome describes how a deletion request was handled.
type DeletionOutcome struct {
	Status             string     `json:"status"`
	Message            string     `json:"message"`
	DataRetentionUntil *time.Time `json:"data_retention_until,omitempty"`
}

const (
	DeletionScheduled = "scheduled"
	DeletionCompleted = "deleted"
)

// Delete honors an erasure request. Users with financial records are
// deactivated and kept until the retention window ends; everyone else is
// erased immediately.
func (s *Service) Delete(ctx context.Context, reason string) (DeletionOutcome, error) {
	u, err := s.self(ctx)
	if err != nil {
		return DeletionOutcome{}, err
	}
	n, err := s.transactions.CountByUser(ctx, u.ID)
	if err != nil {
		return DeletionOutcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count transactions")
	}

	metadata := map[string]any{"transaction_count": n}
	if reason != "" {
		metadata["reason"] = reason
	}

	if n > 0 {
		now := requestcontext.Now(ctx)
		u.Deactivate(now.Add(s.userRetention), now)
		if err := s.users.Update(ctx, u); err != nil {
			return DeletionOutcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate user")
		}
		metadata["deletion_type"] = "soft"
		metadata["data_retention_until"] = u.DataRetentionUntil.Format(time.RFC3339)
		s.auditor.Emit(ctx, audit.Entry{
			ActorID:      u.ID,
			Action:       audit.ActionDelete,
			ResourceType: audit.ResourceUser,
			ResourceID:   audit.ResourceRef(u.ID),
			Description:  "Account deactivated; financial records retained until retention period ends",
			Metadata:     metadata,
		})
		s.revokeCaller(ctx)
		return DeletionOutcome{
			Status:             DeletionScheduled,
			Message:            "Account deactivated. Financial records are retained as required by law and purged when the retention period ends.",
			DataRetentionUntil: u.DataRetentionUntil,
		}, nil
	}

	metadata["deletion_type"] = "hard"
	s.auditor.Emit(ctx, audit.Entry{
		ActorID:      u.ID,
		Action:       audit.ActionDelete,
		ResourceType: audit.ResourceUser,
		ResourceID:   audit.ResourceRef(u.ID),
		Description:  "Account and personal data permanently deleted",
		Metadata:     metadata,
	})
	if err := s.eraser.Erase(ctx, u.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to erase user",
			"user_id", u.ID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return DeletionOutcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete account")
	}
	requestcontext.MarkActorErased(ctx)
	s.revokeCaller(ctx)
	return DeletionOutcome{
		Status:  DeletionCompleted,
		Message: "Account and personal data permanently deleted.",
	}, nil
}

// revokeCaller blocks the token that made the deletion request. The account
// is already gone by now, so a failure is logged rather than returned.
func (s *Service) revokeCaller(ctx context.Context) {
	actor := requestcontext.Actor(ctx)
	if s.revoker == nil || actor.TokenID == "" {
		return
	}
	ttl := actor.ExpiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return
	}
	if err := s.revoker.RevokeToken(ctx, actor.TokenID, ttl); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke token after account deletion",
			"user_id", actor.UserID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}
