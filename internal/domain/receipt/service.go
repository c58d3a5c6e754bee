package receipt

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	appctx "lotledger/internal/core/context"
	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalog"
	"lotledger/internal/domain/damage"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/lot"
	"lotledger/internal/domain/serial"
	"lotledger/pkg/logger"
	"lotledger/pkg/numerator"
)

// Receipt numbers are strict-sequential (no gaps): they are referenced in
// serial codes and supplier paperwork.
const numberPrefix = "RC"

// Service provides receiving reconciliation.
type Service struct {
	repo      Repository
	lots      lot.Repository
	serials   *serial.Service
	ledger    *ledger.Service
	products  catalog.Repository
	damages   *damage.Service
	returns   damage.ReturnOrderCreator
	numbers   *numerator.Service
	txManager tx.Manager
}

// NewService creates a new receipt service.
func NewService(
	repo Repository,
	lots lot.Repository,
	serials *serial.Service,
	ledgerSvc *ledger.Service,
	products catalog.Repository,
	damages *damage.Service,
	returns damage.ReturnOrderCreator,
	numbers *numerator.Service,
	txManager tx.Manager,
) *Service {
	return &Service{
		repo:      repo,
		lots:      lots,
		serials:   serials,
		ledger:    ledgerSvc,
		products:  products,
		damages:   damages,
		returns:   returns,
		numbers:   numbers,
		txManager: txManager,
	}
}

// CreateInput holds fields for creating a draft receipt.
type CreateInput struct {
	SupplierID id.ID             `json:"supplierId"`
	Lines      []CreateLineInput `json:"lines"`
}

// CreateLineInput holds fields for one expected line.
type CreateLineInput struct {
	ProductID        id.ID          `json:"productId"`
	QuantityExpected types.Quantity `json:"quantityExpected"`
	UnitPrice        types.Money    `json:"unitPrice"`
}

// Create registers a draft receipt with expected lines.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Receipt, error) {
	if id.IsNil(input.SupplierID) {
		return nil, apperror.NewValidation("supplier id is required")
	}
	if len(input.Lines) == 0 {
		return nil, apperror.NewValidation("receipt requires at least one line")
	}
	for i, l := range input.Lines {
		if id.IsNil(l.ProductID) {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: product id is required", i))
		}
		if !l.QuantityExpected.IsPositive() {
			return nil, apperror.NewInvalidQuantity(fmt.Sprintf("lines[%d].quantityExpected", i), l.QuantityExpected.String())
		}
		if l.UnitPrice.IsNegative() {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: unit price cannot be negative", i))
		}
		if _, err := s.products.GetByID(ctx, l.ProductID); err != nil {
			return nil, err
		}
	}

	number, err := s.numbers.GetNextNumber(ctx, numerator.DefaultConfig(numberPrefix), nil, time.Now())
	if err != nil {
		return nil, fmt.Errorf("next receipt number: %w", err)
	}

	now := time.Now().UTC()
	receipt := &Receipt{
		ID:         id.New(),
		Number:     number,
		SupplierID: input.SupplierID,
		Status:     StatusDraft,
		CreatedBy:  appctx.GetActorID(ctx),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	for _, l := range input.Lines {
		receipt.Lines = append(receipt.Lines, Line{
			ID:               id.New(),
			ReceiptID:        receipt.ID,
			ProductID:        l.ProductID,
			QuantityExpected: l.QuantityExpected,
			UnitPrice:        l.UnitPrice,
		})
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, receipt)
	})
	if err != nil {
		return nil, fmt.Errorf("create receipt: %w", err)
	}

	logger.Info(ctx, "receipt created",
		"receipt_id", receipt.ID,
		"number", receipt.Number,
		"lines", len(receipt.Lines),
	)

	return receipt, nil
}

// LineActuals carries the cumulative actuals reported for one line.
type LineActuals struct {
	LineID            id.ID          `json:"lineId"`
	ActualGood        types.Quantity `json:"actualGood"`
	ActualDamaged     types.Quantity `json:"actualDamaged"`
	Reason            string         `json:"reason,omitempty"`
	UnitPriceOverride *types.Money   `json:"unitPriceOverride,omitempty"`
}

// ReconcileLine records actuals for a single line.
func (s *Service) ReconcileLine(ctx context.Context, receiptID id.ID, actuals LineActuals) (*Receipt, error) {
	return s.Reconcile(ctx, receiptID, []LineActuals{actuals})
}

// Reconcile records actuals for several lines in one transaction.
//
// Actuals are cumulative totals; reporting the same totals again is a
// DuplicateReconciliation. Good deltas become a lot, an IN ledger entry, and
// serial units for serialized products. Damage deltas become damage records;
// the first damaging reconciliation additionally synthesizes a supplier
// return order and a draft replacement receipt covering every damaged line of
// the call, exactly once per receipt.
func (s *Service) Reconcile(ctx context.Context, receiptID id.ID, lines []LineActuals) (*Receipt, error) {
	if len(lines) == 0 {
		return nil, apperror.NewValidation("no line actuals provided")
	}

	var result *Receipt
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetByIDForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		if r.Status == StatusCompleted || r.Status == StatusCancelled {
			return apperror.NewAlreadyFinalized("receipt", receiptID, r.Status.String())
		}

		now := time.Now().UTC()
		var damaged []damagedDelta
		for _, actuals := range lines {
			d, err := s.reconcileLineLocked(ctx, r, actuals, now)
			if err != nil {
				return err
			}
			if d != nil {
				damaged = append(damaged, *d)
			}
		}
		if err := s.recordDamage(ctx, r, damaged, now); err != nil {
			return err
		}

		newStatus := r.DeriveStatus()
		if err := s.repo.UpdateStatus(ctx, r.ID, newStatus, r.Version); err != nil {
			return err
		}
		r.Status = newStatus
		r.Version++
		r.UpdatedAt = now

		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "receipt reconciled",
		"receipt_id", result.ID,
		"number", result.Number,
		"status", result.Status.String(),
	)

	return result, nil
}

// damagedDelta is one line's damage discovered by the current reconciliation.
type damagedDelta struct {
	line     *Line
	delta    types.Quantity
	unitCost types.Money
	reason   string
}

// reconcileLineLocked applies one line's actuals inside the transaction that
// holds the receipt lock. A damaged delta is returned, not recorded here:
// the caller records all damage of the call together so the synthesized
// return order covers every damaged line.
func (s *Service) reconcileLineLocked(ctx context.Context, r *Receipt, actuals LineActuals, now time.Time) (*damagedDelta, error) {
	var line *Line
	for i := range r.Lines {
		if r.Lines[i].ID == actuals.LineID {
			line = &r.Lines[i]
			break
		}
	}
	if line == nil {
		return nil, apperror.NewNotFound("receipt line", actuals.LineID)
	}

	if actuals.ActualGood.IsNegative() || actuals.ActualDamaged.IsNegative() {
		return nil, apperror.NewInvalidQuantity("actuals", "negative")
	}
	if actuals.ActualGood+actuals.ActualDamaged > line.QuantityExpected {
		return nil, apperror.NewValidation("good + damaged exceeds expected quantity").
			WithDetail("line_id", line.ID).
			WithDetail("expected", line.QuantityExpected.String())
	}

	deltaGood := actuals.ActualGood - line.ActualGood()
	deltaDamaged := actuals.ActualDamaged - line.ActualDamaged()
	if deltaGood.IsNegative() || deltaDamaged.IsNegative() {
		return nil, apperror.NewValidation("actuals cannot decrease").
			WithDetail("line_id", line.ID)
	}
	if deltaGood.IsZero() && deltaDamaged.IsZero() {
		return nil, apperror.NewDuplicateReconciliation(r.ID).
			WithDetail("line_id", line.ID)
	}

	product, err := s.products.GetByID(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}

	unitCost := line.UnitPrice
	if actuals.UnitPriceOverride != nil {
		unitCost = *actuals.UnitPriceOverride
	}

	if deltaGood.IsPositive() {
		if err := s.receiveGood(ctx, r, line, product, deltaGood, unitCost, now); err != nil {
			return nil, err
		}
	}

	var damaged *damagedDelta
	if deltaDamaged.IsPositive() {
		damaged = &damagedDelta{line: line, delta: deltaDamaged, unitCost: unitCost, reason: actuals.Reason}
	}

	good := actuals.ActualGood
	dmg := actuals.ActualDamaged
	if err := s.repo.UpdateLineActuals(ctx, line.ID, good, dmg); err != nil {
		return nil, fmt.Errorf("update line actuals: %w", err)
	}
	line.QuantityActualGood = &good
	line.QuantityDamaged = &dmg

	return damaged, nil
}

// receiveGood creates the lot, the IN ledger entry, and serial units.
func (s *Service) receiveGood(ctx context.Context, r *Receipt, line *Line, product *catalog.Product, delta types.Quantity, unitCost types.Money, now time.Time) error {
	lineID := line.ID
	newLot := &lot.Lot{
		ID:                  id.New(),
		ProductID:           line.ProductID,
		SourceReceiptLineID: &lineID,
		QuantityReceived:    delta,
		QuantityRemaining:   delta,
		UnitCost:            unitCost,
		ReceivedAt:          now,
	}
	if err := s.lots.Create(ctx, newLot); err != nil {
		return fmt.Errorf("create lot: %w", err)
	}

	lotID := newLot.ID
	if _, err := s.ledger.Post(ctx, ledger.Movement{
		ProductID:     line.ProductID,
		LotID:         &lotID,
		Kind:          ledger.KindIn,
		QuantityDelta: delta,
		ReferenceKind: ledger.RefReceipt,
		ReferenceID:   r.ID,
		OccurredAt:    now,
	}); err != nil {
		return err
	}

	if product.Serialized {
		scaled := delta.Int64Scaled()
		if scaled%types.QuantityScale != 0 {
			return apperror.NewValidation("serialized products require whole-unit quantities")
		}
		count := int(scaled / types.QuantityScale)
		if _, err := s.serials.MintForReceipt(ctx, line.ProductID, newLot.ID, product.Code, r.Number, count, now); err != nil {
			return err
		}
	}

	return nil
}

// recordDamage creates the damage records for the reconciliation and, once
// per receipt, synthesizes the supplier return order and the draft
// replacement receipt. The once-per-receipt guard fires before any damage
// record exists for the receipt, so at synthesis time the items are the whole
// of the receipt's damage and the return order requests all of it back.
func (s *Service) recordDamage(ctx context.Context, r *Receipt, items []damagedDelta, now time.Time) error {
	if len(items) == 0 {
		return nil
	}
	supplierID := r.SupplierID

	alreadySynthesized, err := s.damages.HasSource(ctx, damage.SourceReceipt, r.ID)
	if err != nil {
		return fmt.Errorf("check damage source: %w", err)
	}

	var queuedOrderID *id.ID
	if !alreadySynthesized {
		returnLines := make([]damage.ReturnLine, 0, len(items))
		for _, item := range items {
			returnLines = append(returnLines, damage.ReturnLine{
				ProductID: item.line.ProductID,
				Quantity:  item.delta,
			})
		}
		orderID, err := s.returns.CreateSupplierReturn(ctx, supplierID, returnLines)
		if err != nil {
			return fmt.Errorf("synthesize return order: %w", err)
		}
		queuedOrderID = &orderID

		if err := s.createReplacement(ctx, r, items, now); err != nil {
			return err
		}
	}

	for _, item := range items {
		_, err = s.damages.Record(ctx, damage.RecordInput{
			ProductID:  item.line.ProductID,
			SupplierID: &supplierID,
			Quantity:   item.delta,
			Cost:       item.unitCost.Mul(item.delta.Decimal()),
			Reason:     item.reason,
			SourceKind: damage.SourceReceipt,
			SourceID:   r.ID,
		}, queuedOrderID)
		if err != nil {
			return err
		}
	}

	return nil
}

// createReplacement creates a draft receipt expecting replacements for the
// damaged units, one line per damaged line.
func (s *Service) createReplacement(ctx context.Context, r *Receipt, items []damagedDelta, now time.Time) error {
	number, err := s.numbers.GetNextNumber(ctx, numerator.DefaultConfig(numberPrefix), nil, time.Now())
	if err != nil {
		return fmt.Errorf("next replacement number: %w", err)
	}

	originalID := r.ID
	replacement := &Receipt{
		ID:               id.New(),
		Number:           number,
		SupplierID:       r.SupplierID,
		Status:           StatusDraft,
		ReplacementForID: &originalID,
		CreatedBy:        appctx.GetActorID(ctx),
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	for _, item := range items {
		replacement.Lines = append(replacement.Lines, Line{
			ID:               id.New(),
			ReceiptID:        replacement.ID,
			ProductID:        item.line.ProductID,
			QuantityExpected: item.delta,
			UnitPrice:        item.unitCost,
		})
	}

	if err := s.repo.Create(ctx, replacement); err != nil {
		return fmt.Errorf("create replacement receipt: %w", err)
	}

	logger.Info(ctx, "replacement receipt synthesized",
		"receipt_id", r.ID,
		"replacement_id", replacement.ID,
		"number", replacement.Number,
	)

	return nil
}

// Cancel closes a receipt for further receiving. Already-posted lots and
// ledger entries stay untouched.
func (s *Service) Cancel(ctx context.Context, receiptID id.ID) error {
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetByIDForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		if r.Status == StatusCompleted || r.Status == StatusCancelled {
			return apperror.NewAlreadyFinalized("receipt", receiptID, r.Status.String())
		}
		return s.repo.UpdateStatus(ctx, receiptID, StatusCancelled, r.Version)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "receipt cancelled", "receipt_id", receiptID)
	return nil
}

// Get returns a receipt with lines.
func (s *Service) Get(ctx context.Context, receiptID id.ID) (*Receipt, error) {
	return s.repo.GetByID(ctx, receiptID)
}

// List returns receipts matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Receipt, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}
