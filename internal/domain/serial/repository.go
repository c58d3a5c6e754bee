package serial

import (
	"context"

	"lotledger/internal/core/id"
)

// Repository defines persistence operations for serial units.
type Repository interface {
	// Mint batch-inserts freshly received units (all in_stock).
	Mint(ctx context.Context, units []Unit) error

	// SelectAvailableForUpdate returns up to limit in_stock units for the
	// product ordered (received_at, id), locked FOR UPDATE. Picking order is
	// deliberately independent of lots.
	SelectAvailableForUpdate(ctx context.Context, productID id.ID, limit int) ([]Unit, error)

	// CountAvailable returns the number of in_stock units for the product.
	CountAvailable(ctx context.Context, productID id.ID) (int, error)

	// MarkPicked flips one unit to picked and binds it to an allocation line
	// with a single conditional UPDATE (WHERE id = $1 AND status = 'in_stock').
	// Zero rows affected surfaces as apperror.NewConcurrentModification.
	MarkPicked(ctx context.Context, unitID, allocationLineID id.ID) error

	// CountByCodePrefix returns how many units carry serial codes under the
	// given prefix. Used to continue the per-receipt numbering when a line is
	// reconciled in several steps.
	CountByCodePrefix(ctx context.Context, prefix string) (int, error)

	// ListByAllocationLine returns the units picked for an allocation line.
	ListByAllocationLine(ctx context.Context, allocationLineID id.ID) ([]Unit, error)
}
