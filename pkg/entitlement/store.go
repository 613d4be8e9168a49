package entitlement

import "context"

// Mutation changes a record in place and reports whether anything changed.
// Returning false skips the write; returning an error aborts it.
type Mutation func(rec *Record) (changed bool, err error)

// Store persists one Record per user.
//
// Update is the only write path. Implementations must run the read, the
// mutation and the write as a single atomic cycle scoped to userID, creating
// an empty record when none exists. Blind last-write-wins is not acceptable:
// a concurrent admission would be lost.
type Store interface {
	// Get returns the record for userID or ErrRecordNotFound.
	Get(ctx context.Context, userID string) (*Record, error)

	// Update applies m atomically and returns the stored record.
	Update(ctx context.Context, userID string, m Mutation) (*Record, error)

	// FindBySubscription returns the user owning an active grant backed by
	// subscriptionRef, or ErrRecordNotFound.
	FindBySubscription(ctx context.Context, subscriptionRef string) (string, error)

	// ListPendingRefunds returns a point-in-time snapshot of records holding
	// at least one grant in refund_requested status.
	ListPendingRefunds(ctx context.Context) ([]*Record, error)
}
