// Package catalog provides the product reference data the inventory core
// depends on: product codes, units of measure, and the serialized flag.
package catalog

import (
	"time"

	"lotledger/internal/core/id"
)

// Product is a catalogue item.
// Serialized is an explicit attribute: serialized products mint one serial
// unit per good unit at receipt time, and allocations must pick serial units.
type Product struct {
	ID         id.ID     `json:"id" db:"id"`
	Code       string    `json:"code" db:"code"`
	Name       string    `json:"name" db:"name"`
	Unit       string    `json:"unit" db:"unit"`
	Serialized bool      `json:"serialized" db:"serialized"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}
