package lot

import (
	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Consumption is one lot's contribution to a FIFO deduction plan.
type Consumption struct {
	LotID    id.ID
	Quantity types.Quantity
	UnitCost types.Money
}

// TotalCost returns the cost contribution of this consumption:
// the lot's fixed receipt unit cost times the consumed quantity.
func (c Consumption) TotalCost() types.Money {
	return c.UnitCost.Mul(c.Quantity.Decimal())
}

// PlanFIFO walks lots in the given order and consumes min(remaining, needed)
// from each until the requested quantity is covered. Lots must already be
// ordered (received_at, id) and locked by the caller.
//
// Returns apperror with code INSUFFICIENT_STOCK when the lots cannot cover
// the request; the shortfall details carry requested and available totals.
func PlanFIFO(productID id.ID, lots []Lot, requested types.Quantity) ([]Consumption, error) {
	if !requested.IsPositive() {
		return nil, apperror.NewInvalidQuantity("quantityRequested", requested.String())
	}

	var available types.Quantity
	for _, l := range lots {
		available += l.QuantityRemaining
	}
	if available < requested {
		return nil, apperror.NewInsufficientStock(productID.String(), requested.String(), available.String())
	}

	plan := make([]Consumption, 0, len(lots))
	needed := requested
	for _, l := range lots {
		if needed.IsZero() {
			break
		}
		if !l.QuantityRemaining.IsPositive() {
			continue
		}
		take := l.QuantityRemaining.Min(needed)
		plan = append(plan, Consumption{
			LotID:    l.ID,
			Quantity: take,
			UnitCost: l.UnitCost,
		})
		needed -= take
	}

	return plan, nil
}

// PlanCost sums the cost contributions of a plan.
func PlanCost(plan []Consumption) types.Money {
	total := types.ZeroMoney()
	for _, c := range plan {
		total = total.Add(c.TotalCost())
	}
	return total
}
