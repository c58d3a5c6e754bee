// Package ledger provides the append-only inventory movement ledger.
// Every stock change in the system flows through exactly one ledger entry,
// and each entry carries the running product balance after it applied.
package ledger

import (
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindIn     Kind = "in"     // goods received
	KindOut    Kind = "out"    // goods allocated / shipped
	KindAdjust Kind = "adjust" // stock count variance
	KindDamage Kind = "damage" // damage write-off
)

// ReferenceKind names the document type that produced an entry.
type ReferenceKind string

const (
	RefReceipt    ReferenceKind = "receipt"
	RefAllocation ReferenceKind = "allocation"
	RefStockCount ReferenceKind = "stock_count"
)

// Entry is a single immutable ledger record.
// EntryID is a monotonically increasing BIGSERIAL assigned by the database;
// together with OccurredAt it defines the total order of a product's history.
type Entry struct {
	EntryID       int64          `json:"entryId" db:"entry_id"`
	ProductID     id.ID          `json:"productId" db:"product_id"`
	LotID         *id.ID         `json:"lotId,omitempty" db:"lot_id"`
	OccurredAt    time.Time      `json:"occurredAt" db:"occurred_at"`
	Kind          Kind           `json:"kind" db:"kind"`
	QuantityDelta types.Quantity `json:"quantityDelta" db:"quantity_delta"`
	BalanceAfter  types.Quantity `json:"balanceAfter" db:"balance_after"`
	ReferenceKind ReferenceKind  `json:"referenceKind" db:"reference_kind"`
	ReferenceID   id.ID          `json:"referenceId" db:"reference_id"`
	ActorID       string         `json:"actorId" db:"actor_id"`
}
