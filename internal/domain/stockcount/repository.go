package stockcount

import (
	"context"
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Repository defines persistence operations for stock counts.
type Repository interface {
	// Create inserts the count together with its lines.
	Create(ctx context.Context, count *Count) error

	// GetByID returns the count with lines or apperror.NewNotFound.
	GetByID(ctx context.Context, countID id.ID) (*Count, error)

	// GetByIDForUpdate locks the count header FOR UPDATE and returns it with
	// lines. Must be called inside a transaction.
	GetByIDForUpdate(ctx context.Context, countID id.ID) (*Count, error)

	List(ctx context.Context, filter ListFilter) ([]Count, error)

	// UpdateLineResult stores the computed system quantity and variance.
	UpdateLineResult(ctx context.Context, lineID id.ID, system, variance types.Quantity) error

	// UpdateStatus transitions status conditionally (WHERE status = from).
	// Zero rows affected surfaces as apperror.NewConcurrentModification.
	UpdateStatus(ctx context.Context, countID id.ID, from, to Status, at time.Time) error
}

// ListFilter restricts count listings.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}
