package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fintrail/internal/consent/models"
	identity "fintrail/internal/identity/models"
	id "fintrail/pkg/domain"
	dErrors "fintrail/pkg/domain-errors"
	audit "fintrail/pkg/platform/audit"
	"fintrail/pkg/platform/sentinel"
	txcontext "fintrail/pkg/platform/tx"
	"fintrail/pkg/requestcontext"
)

type Store interface {
	Upsert(ctx context.Context, c *models.Consent) error
	Find(ctx context.Context, userID id.UserID, purpose id.ConsentPurpose) (*models.Consent, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]models.Consent, error)
}

// UserStore is used to mirror data_processing consent onto the user.
type UserStore interface {
	FindByID(ctx context.Context, userID id.UserID) (*identity.User, error)
	Update(ctx context.Context, u *identity.User) error
}

type AuditEmitter interface {
	Emit(ctx context.Context, entry audit.Entry)
}

// Service persists consent decisions per purpose.
type Service struct {
	store   Store
	users   UserStore
	tx      txcontext.Runner
	auditor AuditEmitter
	logger  *slog.Logger
}

func New(store Store, users UserStore, tx txcontext.Runner, auditor AuditEmitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{store: store, users: users, tx: tx, auditor: auditor, logger: logger}
}

// Grant records consent for purpose. Granting data_processing also sets the
// user's consent flag and date.
func (s *Service) Grant(ctx context.Context, purpose id.ConsentPurpose) (*models.Consent, error) {
	actor := requestcontext.Actor(ctx)
	if !actor.Authenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	now := requestcontext.Now(ctx)

	var c *models.Consent
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.store.Find(ctx, actor.UserID, purpose)
		if errors.Is(err, sentinel.ErrNotFound) {
			c = &models.Consent{UserID: actor.UserID, Purpose: purpose}
		} else if err != nil {
			return err
		}
		c.Grant(now, requestcontext.ClientIP(ctx))
		if err := s.store.Upsert(ctx, c); err != nil {
			return err
		}
		if purpose == id.ConsentPurposeDataProcessing {
			return s.setUserConsent(ctx, actor.UserID, true, now)
		}
		return nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record consent")
	}

	s.auditor.Emit(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       audit.ActionConsentGiven,
		ResourceType: audit.ResourceConsent,
		ResourceID:   audit.ResourceRef(c.ID),
		Description:  "Consent given for " + purpose.String(),
		Metadata:     map[string]any{"consent_type": purpose.String()},
	})
	return c, nil
}

// Withdraw revokes a previously recorded consent.
func (s *Service) Withdraw(ctx context.Context, purpose id.ConsentPurpose) (*models.Consent, error) {
	actor := requestcontext.Actor(ctx)
	if !actor.Authenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	now := requestcontext.Now(ctx)

	var c *models.Consent
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.store.Find(ctx, actor.UserID, purpose)
		if err != nil {
			return err
		}
		c.Withdraw(now)
		if err := s.store.Upsert(ctx, c); err != nil {
			return err
		}
		if purpose == id.ConsentPurposeDataProcessing {
			return s.setUserConsent(ctx, actor.UserID, false, now)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Consent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to withdraw consent")
	}

	s.auditor.Emit(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       audit.ActionConsentWithdrawn,
		ResourceType: audit.ResourceConsent,
		ResourceID:   audit.ResourceRef(c.ID),
		Description:  "Consent withdrawn for " + purpose.String(),
		Metadata:     map[string]any{"consent_type": purpose.String()},
	})
	return c, nil
}

func (s *Service) List(ctx context.Context) ([]models.Consent, error) {
	actor := requestcontext.Actor(ctx)
	if !actor.Authenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	consents, err := s.store.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	return consents, nil
}

func (s *Service) setUserConsent(ctx context.Context, userID id.UserID, given bool, now time.Time) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	u.ConsentGiven = given
	if given {
		u.ConsentDate = &now
	}
	return s.users.Update(ctx, u)
}
