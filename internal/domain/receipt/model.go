// Package receipt provides receiving reconciliation: expected goods arrive,
// actual good and damaged quantities are recorded per line, good units become
// lots (and serial units), damaged units become damage records with supplier
// return and replacement receipt synthesis.
package receipt

import (
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Status of a receipt. Stored and serialized as a number.
type Status int

const (
	StatusDraft     Status = 0 // nothing received yet
	StatusCompleted Status = 1 // every line fully reconciled
	StatusPartial   Status = 2 // some actuals recorded, not all lines complete
	StatusCancelled Status = 3 // closed without (further) receiving
)

// String returns the status name for logs and error details.
func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusCompleted:
		return "completed"
	case StatusPartial:
		return "partial"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Receipt is a receiving document.
// ReplacementForID links a synthesized replacement receipt to the receipt
// whose damaged goods it replaces.
type Receipt struct {
	ID               id.ID     `json:"id" db:"id"`
	Number           string    `json:"number" db:"number"`
	SupplierID       id.ID     `json:"supplierId" db:"supplier_id"`
	Status           Status    `json:"status" db:"status"`
	ReplacementForID *id.ID    `json:"replacementForId,omitempty" db:"replacement_for_id"`
	CreatedBy        string    `json:"createdBy" db:"created_by"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
	Version          int       `json:"version" db:"version"`

	Lines []Line `json:"lines" db:"-"`
}

// Line is one expected product position.
// Actuals are cumulative: reconciliation reports totals received so far, and
// the line is complete once good + damaged equals expected.
type Line struct {
	ID                 id.ID           `json:"id" db:"id"`
	ReceiptID          id.ID           `json:"receiptId" db:"receipt_id"`
	ProductID          id.ID           `json:"productId" db:"product_id"`
	QuantityExpected   types.Quantity  `json:"quantityExpected" db:"quantity_expected"`
	QuantityActualGood *types.Quantity `json:"quantityActualGood,omitempty" db:"quantity_actual_good"`
	QuantityDamaged    *types.Quantity `json:"quantityDamaged,omitempty" db:"quantity_damaged"`
	UnitPrice          types.Money     `json:"unitPrice" db:"unit_price"`
}

// ActualGood returns the recorded good quantity (zero before reconciliation).
func (l *Line) ActualGood() types.Quantity {
	if l.QuantityActualGood == nil {
		return 0
	}
	return *l.QuantityActualGood
}

// ActualDamaged returns the recorded damaged quantity.
func (l *Line) ActualDamaged() types.Quantity {
	if l.QuantityDamaged == nil {
		return 0
	}
	return *l.QuantityDamaged
}

// HasActuals reports whether any reconciliation touched the line.
func (l *Line) HasActuals() bool {
	return l.QuantityActualGood != nil || l.QuantityDamaged != nil
}

// IsComplete reports whether good + damaged covers the expected quantity.
func (l *Line) IsComplete() bool {
	return l.ActualGood()+l.ActualDamaged() == l.QuantityExpected
}

// DeriveStatus computes the header status from the lines.
// Cancelled is sticky and never derived.
func (r *Receipt) DeriveStatus() Status {
	if r.Status == StatusCancelled {
		return StatusCancelled
	}
	allComplete := len(r.Lines) > 0
	anyActuals := false
	for i := range r.Lines {
		if r.Lines[i].HasActuals() {
			anyActuals = true
		}
		if !r.Lines[i].IsComplete() {
			allComplete = false
		}
	}
	switch {
	case allComplete:
		return StatusCompleted
	case anyActuals:
		return StatusPartial
	default:
		return StatusDraft
	}
}
