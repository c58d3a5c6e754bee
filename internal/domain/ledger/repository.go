package ledger

import (
	"context"
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Repository defines persistence operations for the ledger.
type Repository interface {
	// Append inserts an entry and fills Entry.EntryID from the database.
	Append(ctx context.Context, entry *Entry) error

	// LatestBalance returns balance_after of the newest entry for the product,
	// or zero when the product has no entries yet.
	LatestBalance(ctx context.Context, productID id.ID) (types.Quantity, error)

	// BalanceAt returns the balance as of t (newest entry with occurred_at <= t).
	BalanceAt(ctx context.Context, productID id.ID, t time.Time) (types.Quantity, error)

	// ListByProduct returns entries ordered by (occurred_at, entry_id).
	ListByProduct(ctx context.Context, productID id.ID, filter Filter) ([]Entry, error)

	// LockProduct takes a transaction-scoped exclusive lock on the product so
	// that balance reads and the subsequent Append are serialized per product.
	// Must be called inside a transaction.
	LockProduct(ctx context.Context, productID id.ID) error
}

// Filter restricts ledger queries.
type Filter struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
