package serial

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
)

// Service provides serial registry operations.
// Mint and Pick must run inside the caller's transaction.
type Service struct {
	repo Repository
}

// NewService creates a new serial registry service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CodePrefix builds the serial code prefix for a product within a receipt.
func CodePrefix(productCode, receiptNumber string) string {
	return fmt.Sprintf("%s-%s", productCode, receiptNumber)
}

// MintForReceipt creates count units with deterministic codes
// PRODUCTCODE-RECEIPTNUMBER-0001 onward, continuing any numbering already
// minted under the same prefix (cumulative line reconciliation).
func (s *Service) MintForReceipt(ctx context.Context, productID, lotID id.ID, productCode, receiptNumber string, count int, receivedAt time.Time) ([]Unit, error) {
	if count <= 0 {
		return nil, apperror.NewInvalidQuantity("count", count)
	}

	prefix := CodePrefix(productCode, receiptNumber)
	existing, err := s.repo.CountByCodePrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("count existing serials: %w", err)
	}

	units := make([]Unit, 0, count)
	lot := lotID
	for i := 0; i < count; i++ {
		units = append(units, Unit{
			ID:         id.New(),
			ProductID:  productID,
			LotID:      &lot,
			SerialCode: fmt.Sprintf("%s-%04d", prefix, existing+i+1),
			Status:     StatusInStock,
			ReceivedAt: receivedAt,
		})
	}

	if err := s.repo.Mint(ctx, units); err != nil {
		return nil, fmt.Errorf("mint serial units: %w", err)
	}

	return units, nil
}

// Pick selects count in_stock units oldest first and binds them to the
// allocation line. The caller must have verified availability already;
// a shortfall here still returns InsufficientSerialUnits.
func (s *Service) Pick(ctx context.Context, productID, allocationLineID id.ID, count int) ([]string, error) {
	if count <= 0 {
		return nil, apperror.NewInvalidQuantity("count", count)
	}

	units, err := s.repo.SelectAvailableForUpdate(ctx, productID, count)
	if err != nil {
		return nil, fmt.Errorf("select available serials: %w", err)
	}
	if len(units) < count {
		return nil, apperror.NewInsufficientSerialUnits(productID.String(), count, len(units))
	}

	codes := make([]string, 0, count)
	for _, u := range units {
		if err := s.repo.MarkPicked(ctx, u.ID, allocationLineID); err != nil {
			return nil, fmt.Errorf("pick serial %s: %w", u.SerialCode, err)
		}
		codes = append(codes, u.SerialCode)
	}

	return codes, nil
}

// Available returns the number of pickable units for the product.
func (s *Service) Available(ctx context.Context, productID id.ID) (int, error) {
	return s.repo.CountAvailable(ctx, productID)
}

// CodesForLine returns the serial codes picked for an allocation line.
func (s *Service) CodesForLine(ctx context.Context, allocationLineID id.ID) ([]string, error) {
	units, err := s.repo.ListByAllocationLine(ctx, allocationLineID)
	if err != nil {
		return nil, fmt.Errorf("list serials by line: %w", err)
	}
	codes := make([]string, 0, len(units))
	for _, u := range units {
		codes = append(codes, u.SerialCode)
	}
	return codes, nil
}
