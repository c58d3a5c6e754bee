package lot

import (
	"context"
	"fmt"

	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
)

// Service provides read access to the lot store.
// Mutations happen inside allocation, receipt, and stock count transactions
// through the Repository directly.
type Service struct {
	repo Repository
	db   tx.ReadOnlyManager
}

// NewService creates a new lot service.
func NewService(repo Repository, db tx.ReadOnlyManager) *Service {
	return &Service{repo: repo, db: db}
}

// ListByProduct returns all lots of a product in FIFO order.
func (s *Service) ListByProduct(ctx context.Context, productID id.ID) ([]Lot, error) {
	return s.repo.ListByProduct(ctx, productID)
}

// Remaining returns the total remaining quantity across all lots.
func (s *Service) Remaining(ctx context.Context, productID id.ID) (types.Quantity, error) {
	return s.repo.RemainingByProduct(ctx, productID)
}

// Snapshot returns the product's lots together with the remaining total,
// read in one read-only transaction so the sum matches the listed lots.
func (s *Service) Snapshot(ctx context.Context, productID id.ID) ([]Lot, types.Quantity, error) {
	var (
		lots      []Lot
		remaining types.Quantity
	)
	err := s.db.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if lots, err = s.repo.ListByProduct(ctx, productID); err != nil {
			return err
		}
		remaining, err = s.repo.RemainingByProduct(ctx, productID)
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("lot snapshot for %s: %w", productID, err)
	}
	return lots, remaining, nil
}
