package ledger

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	appctx "lotledger/internal/core/context"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Movement describes a stock change to be recorded.
type Movement struct {
	ProductID     id.ID
	LotID         *id.ID
	Kind          Kind
	QuantityDelta types.Quantity
	ReferenceKind ReferenceKind
	ReferenceID   id.ID
	OccurredAt    time.Time // zero value means now
}

// Service provides ledger operations.
// Post must run inside the caller's transaction: the per-product lock it takes
// is transaction-scoped and the balance it computes must commit atomically
// with the lot mutation that caused it.
type Service struct {
	repo Repository
}

// NewService creates a new ledger service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Post appends a ledger entry with balance_after = previous balance + delta.
// The previous balance is read under the product lock, so concurrent writers
// of the same product serialize here and balances never interleave.
func (s *Service) Post(ctx context.Context, m Movement) (*Entry, error) {
	if m.QuantityDelta.IsZero() {
		return nil, apperror.NewInvalidQuantity("quantityDelta", m.QuantityDelta.String())
	}
	if id.IsNil(m.ProductID) {
		return nil, apperror.NewValidation("product id is required")
	}
	if id.IsNil(m.ReferenceID) {
		return nil, apperror.NewValidation("reference id is required")
	}

	if err := s.repo.LockProduct(ctx, m.ProductID); err != nil {
		return nil, fmt.Errorf("lock product %s: %w", m.ProductID, err)
	}

	previous, err := s.repo.LatestBalance(ctx, m.ProductID)
	if err != nil {
		return nil, fmt.Errorf("latest balance: %w", err)
	}

	occurredAt := m.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	entry := &Entry{
		ProductID:     m.ProductID,
		LotID:         m.LotID,
		OccurredAt:    occurredAt,
		Kind:          m.Kind,
		QuantityDelta: m.QuantityDelta,
		BalanceAfter:  previous + m.QuantityDelta,
		ReferenceKind: m.ReferenceKind,
		ReferenceID:   m.ReferenceID,
		ActorID:       appctx.GetActorID(ctx),
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append entry: %w", err)
	}

	return entry, nil
}

// GetBalance returns the current balance for a product.
func (s *Service) GetBalance(ctx context.Context, productID id.ID) (types.Quantity, error) {
	return s.repo.LatestBalance(ctx, productID)
}

// GetBalanceAt returns the balance as of a point in time.
func (s *Service) GetBalanceAt(ctx context.Context, productID id.ID, t time.Time) (types.Quantity, error) {
	return s.repo.BalanceAt(ctx, productID, t)
}

// GetLedger returns the movement history for a product.
func (s *Service) GetLedger(ctx context.Context, productID id.ID, filter Filter) ([]Entry, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 200
	}
	return s.repo.ListByProduct(ctx, productID, filter)
}
