package allocation

import (
	"context"
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Repository defines persistence operations for allocation orders.
type Repository interface {
	// Create inserts the order together with its lines.
	Create(ctx context.Context, order *Order) error

	// GetByID returns the order with lines or apperror.NewNotFound.
	GetByID(ctx context.Context, orderID id.ID) (*Order, error)

	// GetByIDForUpdate locks the order header FOR UPDATE and returns it with
	// lines. Must be called inside a transaction.
	GetByIDForUpdate(ctx context.Context, orderID id.ID) (*Order, error)

	List(ctx context.Context, filter ListFilter) ([]Order, error)

	// AddLine appends a line to a pending order.
	AddLine(ctx context.Context, line *Line) error

	// SetLineUnitPrice stores the computed unit price for a line.
	SetLineUnitPrice(ctx context.Context, lineID id.ID, price types.Money) error

	// UpdateStatus transitions status conditionally (WHERE status = from).
	// Zero rows affected surfaces as apperror.NewConcurrentModification.
	UpdateStatus(ctx context.Context, orderID id.ID, from, to Status, completedAt *time.Time) error
}

// ListFilter restricts order listings.
type ListFilter struct {
	Kind   *Kind
	Status *Status
	Limit  int
	Offset int
}
