// Package serial provides the serial unit registry.
// Serialized products carry one registry row per physical unit; allocation
// picks units oldest first with a conditional update, so a unit can never be
// handed to two orders.
package serial

import (
	"time"

	"lotledger/internal/core/id"
)

// Status of a serial unit.
type Status string

const (
	StatusInStock Status = "in_stock"
	StatusPicked  Status = "picked"
)

// Unit is one physical serialized item.
type Unit struct {
	ID               id.ID      `json:"id" db:"id"`
	ProductID        id.ID      `json:"productId" db:"product_id"`
	LotID            *id.ID     `json:"lotId,omitempty" db:"lot_id"`
	AllocationLineID *id.ID     `json:"allocationLineId,omitempty" db:"allocation_line_id"`
	SerialCode       string     `json:"serialCode" db:"serial_code"`
	Status           Status     `json:"status" db:"status"`
	ReceivedAt       time.Time  `json:"receivedAt" db:"received_at"`
	PickedAt         *time.Time `json:"pickedAt,omitempty" db:"picked_at"`
}
