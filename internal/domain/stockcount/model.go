// Package stockcount provides two-phase stock counting: counted actuals are
// submitted first, then an approval applies damage write-offs and variance
// adjustments to the lot store and ledger in one transaction.
package stockcount

import (
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Status of a stock count.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusCompleted Status = "completed" // terminal
)

// Count is a stock count document.
type Count struct {
	ID          id.ID      `json:"id" db:"id"`
	Number      string     `json:"number" db:"number"`
	Status      Status     `json:"status" db:"status"`
	CreatedBy   string     `json:"createdBy" db:"created_by"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty" db:"submitted_at"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty" db:"approved_at"`
	Version     int        `json:"version" db:"version"`

	Lines []Line `json:"lines" db:"-"`
}

// Line is one counted product.
// SystemQuantity and Variance are filled at approval: the system quantity is
// the lot remainder under lock, the variance is the good count measured
// against the post-damage remainder, so a count whose good + damaged total
// matches the system produces no adjustment.
type Line struct {
	ID             id.ID           `json:"id" db:"id"`
	CountID        id.ID           `json:"countId" db:"count_id"`
	ProductID      id.ID           `json:"productId" db:"product_id"`
	ActualGood     types.Quantity  `json:"actualGood" db:"actual_good"`
	ActualDamaged  types.Quantity  `json:"actualDamaged" db:"actual_damaged"`
	Reason         string          `json:"reason,omitempty" db:"reason"`
	SystemQuantity *types.Quantity `json:"systemQuantity,omitempty" db:"system_quantity"`
	Variance       *types.Quantity `json:"variance,omitempty" db:"variance"`
}
