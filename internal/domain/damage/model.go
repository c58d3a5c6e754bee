// Package damage provides the damage aggregator: damaged goods accumulate as
// pending records and, once a supplier reaches the return threshold for a
// product, are batched into a single supplier return order.
package damage

import (
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// returnThreshold is the per-(supplier, product) quantity at which pending
// damage is batched into a return order.
const returnThreshold = types.Quantity(20 * types.QuantityScale)

// SourceKind names where a damage record came from.
type SourceKind string

const (
	SourceReceipt    SourceKind = "receipt"
	SourceStockCount SourceKind = "stock_count"
)

// Status of a damage record.
type Status string

const (
	StatusPending Status = "pending"
	StatusQueued  Status = "queued"
)

// Record is one discovered batch of damaged units.
// SupplierID is nil when the damage cannot be traced to a supplier; such
// records stay pending indefinitely and are only reported.
type Record struct {
	ID            id.ID          `json:"id" db:"id"`
	ProductID     id.ID          `json:"productId" db:"product_id"`
	SupplierID    *id.ID         `json:"supplierId,omitempty" db:"supplier_id"`
	Quantity      types.Quantity `json:"quantity" db:"quantity"`
	Cost          types.Money    `json:"cost" db:"cost"`
	Reason        string         `json:"reason" db:"reason"`
	SourceKind    SourceKind     `json:"sourceKind" db:"source_kind"`
	SourceID      id.ID          `json:"sourceId" db:"source_id"`
	Status        Status         `json:"status" db:"status"`
	ReturnOrderID *id.ID         `json:"returnOrderId,omitempty" db:"return_order_id"`
	DiscoveredAt  time.Time      `json:"discoveredAt" db:"discovered_at"`
}
