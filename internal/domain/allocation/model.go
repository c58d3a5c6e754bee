// Package allocation provides allocation orders and the FIFO completion
// engine. Completion consumes lots oldest first, posts one OUT ledger entry
// per consumed lot, computes line prices from fixed receipt costs, and picks
// serial units for serialized products.
package allocation

import (
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Kind of allocation order.
type Kind string

const (
	KindOutbound       Kind = "outbound"        // customer shipment
	KindSupplierReturn Kind = "supplier_return" // damaged goods back to supplier
)

// Status of an allocation order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Order is an allocation document.
type Order struct {
	ID          id.ID      `json:"id" db:"id"`
	Number      string     `json:"number" db:"number"`
	Kind        Kind       `json:"kind" db:"kind"`
	PartnerID   id.ID      `json:"partnerId" db:"partner_id"`
	Status      Status     `json:"status" db:"status"`
	CreatedBy   string     `json:"createdBy" db:"created_by"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`
	Version     int        `json:"version" db:"version"`

	Lines []Line `json:"lines" db:"-"`
}

// Line is one product position of an order.
// UnitPrice is computed at completion: total FIFO cost of the consumed lots
// divided by the requested quantity.
type Line struct {
	ID                id.ID          `json:"id" db:"id"`
	OrderID           id.ID          `json:"orderId" db:"order_id"`
	ProductID         id.ID          `json:"productId" db:"product_id"`
	QuantityRequested types.Quantity `json:"quantityRequested" db:"quantity_requested"`
	UnitPrice         types.Money    `json:"unitPrice" db:"unit_price"`

	SerialsAssigned []string `json:"serialsAssigned,omitempty" db:"-"`
}
