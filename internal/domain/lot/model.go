// Package lot provides the inventory lot store and the FIFO consumption plan.
// A lot is a batch of stock received at one moment with one unit cost; lots
// are consumed oldest first and are never deleted, only decremented.
package lot

import (
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Lot is a received batch of a product.
// Invariant: 0 <= QuantityRemaining <= QuantityReceived.
type Lot struct {
	ID                  id.ID          `json:"id" db:"id"`
	ProductID           id.ID          `json:"productId" db:"product_id"`
	SourceReceiptLineID *id.ID         `json:"sourceReceiptLineId,omitempty" db:"source_receipt_line_id"`
	QuantityReceived    types.Quantity `json:"quantityReceived" db:"quantity_received"`
	QuantityRemaining   types.Quantity `json:"quantityRemaining" db:"quantity_remaining"`
	UnitCost            types.Money    `json:"unitCost" db:"unit_cost"`
	ReceivedAt          time.Time      `json:"receivedAt" db:"received_at"`
}

// IsOpen reports whether the lot still has stock.
func (l *Lot) IsOpen() bool {
	return l.QuantityRemaining.IsPositive()
}
