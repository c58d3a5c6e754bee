package damage

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/pkg/logger"
)

// ReturnLine is one product line of a supplier return order.
type ReturnLine struct {
	ProductID id.ID
	Quantity  types.Quantity
}

// ReturnOrderCreator creates supplier return allocation orders.
// Implemented by the allocation service; declared here so the aggregator
// does not depend on the allocation package.
type ReturnOrderCreator interface {
	CreateSupplierReturn(ctx context.Context, supplierID id.ID, lines []ReturnLine) (id.ID, error)
}

// Service is the damage aggregator.
type Service struct {
	repo      Repository
	orders    ReturnOrderCreator
	txManager tx.Manager
}

// NewService creates a new damage aggregator.
func NewService(repo Repository, orders ReturnOrderCreator, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		orders:    orders,
		txManager: txManager,
	}
}

// RecordInput holds fields for recording discovered damage.
type RecordInput struct {
	ProductID  id.ID
	SupplierID *id.ID
	Quantity   types.Quantity
	Cost       types.Money
	Reason     string
	SourceKind SourceKind
	SourceID   id.ID
}

// Record creates a damage record. Must run inside the caller's transaction so
// the record commits atomically with the stock deduction that discovered it.
// When queuedOrderID is non-nil the record is created already queued against
// that return order (receipt synthesis path).
func (s *Service) Record(ctx context.Context, input RecordInput, queuedOrderID *id.ID) (*Record, error) {
	if !input.Quantity.IsPositive() {
		return nil, apperror.NewInvalidQuantity("quantity", input.Quantity.String())
	}

	record := &Record{
		ID:           id.New(),
		ProductID:    input.ProductID,
		SupplierID:   input.SupplierID,
		Quantity:     input.Quantity,
		Cost:         input.Cost,
		Reason:       input.Reason,
		SourceKind:   input.SourceKind,
		SourceID:     input.SourceID,
		Status:       StatusPending,
		DiscoveredAt: time.Now().UTC(),
	}
	if queuedOrderID != nil {
		record.Status = StatusQueued
		record.ReturnOrderID = queuedOrderID
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create damage record: %w", err)
	}

	return record, nil
}

// HasSource reports whether the source document already produced damage
// records. Used as the once-per-receipt synthesis guard.
func (s *Service) HasSource(ctx context.Context, kind SourceKind, sourceID id.ID) (bool, error) {
	return s.repo.ExistsBySource(ctx, kind, sourceID)
}

// supplierGroup accumulates pending quantities of one supplier by product.
type supplierGroup struct {
	supplierID id.ID
	byProduct  map[id.ID]types.Quantity
}

// CheckThresholds batches pending damage into supplier return orders.
//
// Pending records are grouped by (supplier, product); for every group whose
// total reaches the threshold, ONE return order per supplier is created
// covering all qualifying products, and the contributing records are marked
// queued. Queued records are excluded up front, so the operation is
// re-entrant. Records without a supplier are never batched.
func (s *Service) CheckThresholds(ctx context.Context) ([]id.ID, error) {
	var created []id.ID
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.checkThresholds(ctx)
		return err
	})
	return created, err
}

// CheckThresholdsInTx is the transaction-nested variant used by stock count
// approval, which must run the aggregator inside its own transaction.
func (s *Service) CheckThresholdsInTx(ctx context.Context) ([]id.ID, error) {
	return s.checkThresholds(ctx)
}

func (s *Service) checkThresholds(ctx context.Context) ([]id.ID, error) {
	pending, err := s.repo.ListPendingForUpdate(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending damage: %w", err)
	}

	groups := make(map[id.ID]*supplierGroup)
	recordsByKey := make(map[id.ID]map[id.ID][]id.ID)
	for _, r := range pending {
		if r.SupplierID == nil {
			continue
		}
		sid := *r.SupplierID
		g, ok := groups[sid]
		if !ok {
			g = &supplierGroup{
				supplierID: sid,
				byProduct:  make(map[id.ID]types.Quantity),
			}
			groups[sid] = g
			recordsByKey[sid] = make(map[id.ID][]id.ID)
		}
		g.byProduct[r.ProductID] += r.Quantity
		recordsByKey[sid][r.ProductID] = append(recordsByKey[sid][r.ProductID], r.ID)
	}

	var createdOrders []id.ID
	for sid, g := range groups {
		var lines []ReturnLine
		var contributing []id.ID
		for productID, total := range g.byProduct {
			if total < returnThreshold {
				continue
			}
			lines = append(lines, ReturnLine{ProductID: productID, Quantity: total})
			contributing = append(contributing, recordsByKey[sid][productID]...)
		}
		if len(lines) == 0 {
			continue
		}

		orderID, err := s.orders.CreateSupplierReturn(ctx, sid, lines)
		if err != nil {
			return nil, fmt.Errorf("create return order for supplier %s: %w", sid, err)
		}

		if err := s.repo.MarkQueued(ctx, contributing, orderID); err != nil {
			return nil, fmt.Errorf("mark damage queued: %w", err)
		}

		logger.Info(ctx, "damage threshold reached, return order created",
			"supplier_id", sid,
			"return_order_id", orderID,
			"products", len(lines),
			"records", len(contributing),
		)
		createdOrders = append(createdOrders, orderID)
	}

	return createdOrders, nil
}

// PendingSummaryLine aggregates pending damage for reporting.
type PendingSummaryLine struct {
	ProductID  id.ID          `json:"productId"`
	SupplierID *id.ID         `json:"supplierId,omitempty"`
	Quantity   types.Quantity `json:"quantity"`
	Cost       types.Money    `json:"cost"`
	Records    int            `json:"records"`
}

// PendingSummary groups pending records by (supplier, product) for reporting,
// including untraceable records (nil supplier).
func (s *Service) PendingSummary(ctx context.Context) ([]PendingSummaryLine, error) {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending damage: %w", err)
	}

	type key struct {
		supplier id.ID
		hasSup   bool
		product  id.ID
	}
	agg := make(map[key]*PendingSummaryLine)
	var order []key
	for _, r := range pending {
		k := key{product: r.ProductID}
		if r.SupplierID != nil {
			k.supplier = *r.SupplierID
			k.hasSup = true
		}
		line, ok := agg[k]
		if !ok {
			line = &PendingSummaryLine{
				ProductID:  r.ProductID,
				SupplierID: r.SupplierID,
				Cost:       types.ZeroMoney(),
			}
			agg[k] = line
			order = append(order, k)
		}
		line.Quantity += r.Quantity
		line.Cost = line.Cost.Add(r.Cost)
		line.Records++
	}

	out := make([]PendingSummaryLine, 0, len(order))
	for _, k := range order {
		out = append(out, *agg[k])
	}
	return out, nil
}
