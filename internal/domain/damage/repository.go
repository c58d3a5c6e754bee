package damage

import (
	"context"

	"lotledger/internal/core/id"
)

// Repository defines persistence operations for damage records.
type Repository interface {
	Create(ctx context.Context, record *Record) error

	// ListPendingForUpdate returns all pending records locked FOR UPDATE so
	// concurrent threshold checks cannot batch the same records twice.
	ListPendingForUpdate(ctx context.Context) ([]Record, error)

	// ListPending returns pending records without locking (reporting).
	ListPending(ctx context.Context) ([]Record, error)

	// MarkQueued sets status=queued and return_order_id on the given records.
	MarkQueued(ctx context.Context, recordIDs []id.ID, returnOrderID id.ID) error

	// ExistsBySource reports whether any record references the source document.
	// Guards the once-per-receipt return synthesis.
	ExistsBySource(ctx context.Context, kind SourceKind, sourceID id.ID) (bool, error)
}
