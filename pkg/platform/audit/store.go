package audit

import (
	"context"
	"time"

	id "fintrail/pkg/domain"
)

//go:generate mockgen -source=store.go -destination=mocks/store_mock.go -package=mocks

// Store persists audit records. Append always inserts a new row; no method
// rewrites action, resource, description, metadata or timestamp of an
// existing record.
type Store interface {
	// Append inserts rec and returns it with ID and Timestamp assigned by the
	// store. Any ID or Timestamp set by the caller is ignored.
	Append(ctx context.Context, rec Record) (Record, error)
	// List returns records matching f, newest first (timestamp, then id).
	List(ctx context.Context, f Filter, p Page) ([]Record, error)
	Count(ctx context.Context, f Filter) (int, error)
	// PurgeBefore deletes records older than cutoff. Rows that fail to delete
	// are skipped; the count covers rows actually removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
	// AnonymizeBefore replaces the email snapshot of records older than cutoff
	// with AnonymizedEmail. Already anonymized rows are not matched again.
	AnonymizeBefore(ctx context.Context, cutoff time.Time) (int, error)
	// DetachActor clears the actor reference of every record written by
	// userID, leaving the email snapshot untouched.
	DetachActor(ctx context.Context, userID id.UserID) (int, error)
}

// Directory resolves the current email of a user for snapshotting.
type Directory interface {
	EmailForUser(ctx context.Context, userID id.UserID) (string, error)
}

// Mirror receives a copy of each durably written record.
type Mirror interface {
	Enqueue(rec Record)
}
