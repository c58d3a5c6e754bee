package lot

import (
	"context"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Repository defines persistence operations for lots.
type Repository interface {
	Create(ctx context.Context, lot *Lot) error

	// GetByID returns the lot or apperror.NewNotFound.
	GetByID(ctx context.Context, lotID id.ID) (*Lot, error)

	// SelectOpenForUpdate returns lots with quantity_remaining > 0 for the
	// product, ordered (received_at, id), locked FOR UPDATE. Must be called
	// inside a transaction; the locks serialize concurrent consumers.
	SelectOpenForUpdate(ctx context.Context, productID id.ID) ([]Lot, error)

	// NewestOpenForUpdate returns the most recently received lot that still
	// has stock, locked FOR UPDATE, or apperror.NewNotFound when none exists.
	NewestOpenForUpdate(ctx context.Context, productID id.ID) (*Lot, error)

	// Decrement reduces quantity_remaining by delta with a conditional UPDATE
	// (quantity_remaining >= delta). Zero rows affected means the lot changed
	// under us and surfaces as apperror.NewConcurrentModification.
	Decrement(ctx context.Context, lotID id.ID, delta types.Quantity) error

	// Increment raises quantity_remaining and quantity_received by delta.
	// Only positive stock-count variance uses this path.
	Increment(ctx context.Context, lotID id.ID, delta types.Quantity) error

	// RemainingByProduct returns the sum of quantity_remaining over all lots.
	RemainingByProduct(ctx context.Context, productID id.ID) (types.Quantity, error)

	// ListByProduct returns all lots for a product ordered (received_at, id).
	ListByProduct(ctx context.Context, productID id.ID) ([]Lot, error)

	// SupplierOf resolves the supplier of a lot through its source receipt
	// line. Returns nil for lots without a receipt origin (count surplus).
	SupplierOf(ctx context.Context, lotID id.ID) (*id.ID, error)
}
