package receipt

import (
	"context"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Repository defines persistence operations for receipts.
type Repository interface {
	// Create inserts the receipt together with its lines.
	Create(ctx context.Context, receipt *Receipt) error

	// GetByID returns the receipt with lines or apperror.NewNotFound.
	GetByID(ctx context.Context, receiptID id.ID) (*Receipt, error)

	// GetByIDForUpdate locks the receipt header FOR UPDATE and returns it
	// with lines. Must be called inside a transaction.
	GetByIDForUpdate(ctx context.Context, receiptID id.ID) (*Receipt, error)

	List(ctx context.Context, filter ListFilter) ([]Receipt, error)

	// UpdateLineActuals stores cumulative actual quantities on a line.
	UpdateLineActuals(ctx context.Context, lineID id.ID, good, damaged types.Quantity) error

	// UpdateStatus transitions the header conditionally on the current
	// version (optimistic lock) and bumps it. Zero rows affected surfaces as
	// apperror.NewConcurrentModification.
	UpdateStatus(ctx context.Context, receiptID id.ID, status Status, expectedVersion int) error
}

// ListFilter restricts receipt listings.
type ListFilter struct {
	SupplierID *id.ID
	Status     *Status
	Limit      int
	Offset     int
}
