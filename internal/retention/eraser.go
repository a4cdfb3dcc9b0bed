package retention

import (
	"context"
	"fmt"

	id "fintrail/pkg/domain"
	txcontext "fintrail/pkg/platform/tx"
)

// ActorDetacher clears the actor reference on a user's audit records.
type ActorDetacher interface {
	DetachActor(ctx context.Context, userID id.UserID) (int, error)
}

// OwnedDataDeleter deletes rows owned by a user.
type OwnedDataDeleter interface {
	DeleteByUser(ctx context.Context, userID id.UserID) (int, error)
}

type UserDeleter interface {
	Delete(ctx context.Context, userID id.UserID) error
}

// Eraser is the single hard-delete path for a user. Audit records survive
// with their actor reference cleared and their email snapshot intact.
type Eraser struct {
	tx           txcontext.Runner
	audits       ActorDetacher
	consents     OwnedDataDeleter
	transactions OwnedDataDeleter
	users        UserDeleter
}

func NewEraser(tx txcontext.Runner, audits ActorDetacher, consents, transactions OwnedDataDeleter, users UserDeleter) *Eraser {
	return &Eraser{tx: tx, audits: audits, consents: consents, transactions: transactions, users: users}
}

// Erase removes the user and everything the user owns in one unit of work.
func (e *Eraser) Erase(ctx context.Context, userID id.UserID) error {
	return e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := e.audits.DetachActor(ctx, userID); err != nil {
			return fmt.Errorf("detach audit actor: %w", err)
		}
		if _, err := e.consents.DeleteByUser(ctx, userID); err != nil {
			return fmt.Errorf("delete consents: %w", err)
		}
		if _, err := e.transactions.DeleteByUser(ctx, userID); err != nil {
			return fmt.Errorf("delete transactions: %w", err)
		}
		if err := e.users.Delete(ctx, userID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}
