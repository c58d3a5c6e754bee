package catalog

import (
	"context"

	"lotledger/internal/core/id"
)

// Repository defines persistence operations for products.
type Repository interface {
	Create(ctx context.Context, product *Product) error

	// GetByID returns the product or apperror.NewNotFound.
	GetByID(ctx context.Context, productID id.ID) (*Product, error)

	// GetByCode returns the product with the given code or apperror.NewNotFound.
	GetByCode(ctx context.Context, code string) (*Product, error)

	List(ctx context.Context, limit, offset int) ([]Product, error)
}
