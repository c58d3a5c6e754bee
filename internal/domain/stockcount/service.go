package stockcount

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
	"lotledger/pkg/logger"
	"lotledger/pkg/numerator"
)

const numberPrefix = "SC"

// Service provides stock count operations.
type Service struct {
	repo      Repository
	lots      lot.Repository
	ledger    *ledger.Service
	products  catalog.Repository
	damages   *damage.Service
	numbers   *numerator.Service
	txManager tx.Manager
}

// NewService creates a new stock count service.
func NewService(
	repo Repository,
	lots lot.Repository,
	ledgerSvc *ledger.Service,
	products catalog.Repository,
	damages *damage.Service,
	numbers *numerator.Service,
	txManager tx.Manager,
) *Service {
	return &Service{
		repo:      repo,
		lots:      lots,
		ledger:    ledgerSvc,
		products:  products,
		damages:   damages,
		numbers:   numbers,
		txManager: txManager,
	}
}

// CreateInput holds the counted actuals.
type CreateInput struct {
	Lines []LineInput `json:"lines"`
}

// LineInput holds one counted product.
type LineInput struct {
	ProductID     id.ID          `json:"productId"`
	ActualGood    types.Quantity `json:"actualGood"`
	ActualDamaged types.Quantity `json:"actualDamaged"`
	Reason        string         `json:"reason,omitempty"`
}

// Create registers a pending stock count with counted lines.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Count, error) {
	if len(input.Lines) == 0 {
		return nil, apperror.NewValidation("stock count requires at least one line")
	}
	seen := make(map[id.ID]bool)
	for i, l := range input.Lines {
		if id.IsNil(l.ProductID) {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: product id is required", i))
		}
		if seen[l.ProductID] {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: duplicate product", i))
		}
		seen[l.ProductID] = true
		if l.ActualGood.IsNegative() || l.ActualDamaged.IsNegative() {
			return nil, apperror.NewInvalidQuantity(fmt.Sprintf("lines[%d]", i), "negative")
		}
		if _, err := s.products.GetByID(ctx, l.ProductID); err != nil {
			return nil, err
		}
	}

	number, err := s.numbers.GetNextNumber(ctx, numerator.DefaultConfig(numberPrefix),
		&numerator.Options{Strategy: numerator.StrategyCached}, time.Now())
	if err != nil {
		return nil, fmt.Errorf("next count number: %w", err)
	}

	count := &Count{
		ID:        id.New(),
		Number:    number,
		Status:    StatusPending,
		CreatedBy: appctx.GetActorID(ctx),
		CreatedAt: time.Now().UTC(),
		Version:   1,
	}
	for _, l := range input.Lines {
		count.Lines = append(count.Lines, Line{
			ID:            id.New(),
			CountID:       count.ID,
			ProductID:     l.ProductID,
			ActualGood:    l.ActualGood,
			ActualDamaged: l.ActualDamaged,
			Reason:        l.Reason,
		})
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, count)
	})
	if err != nil {
		return nil, fmt.Errorf("create stock count: %w", err)
	}

	logger.Info(ctx, "stock count created",
		"count_id", count.ID,
		"number", count.Number,
		"lines", len(count.Lines),
	)

	return count, nil
}

// Submit freezes the counted actuals (pending -> submitted).
func (s *Service) Submit(ctx context.Context, countID id.ID) (*Count, error) {
	var result *Count
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetByIDForUpdate(ctx, countID)
		if err != nil {
			return err
		}
		if c.Status != StatusPending {
			return apperror.NewAlreadyFinalized("stock count", countID, string(c.Status))
		}

		now := time.Now().UTC()
		if err := s.repo.UpdateStatus(ctx, countID, StatusPending, StatusSubmitted, now); err != nil {
			return err
		}
		c.Status = StatusSubmitted
		c.SubmittedAt = &now
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock count submitted", "count_id", countID)
	return result, nil
}

// Approve applies a submitted count in one transaction: per line, damage is
// written off first by FIFO, then the variance of the good count against the
// post-damage remainder is adjusted with one ADJUST entry. Any line failure
// (including a deduction exceeding system stock) aborts the whole approval.
// The damage aggregator runs at the end of the same transaction.
func (s *Service) Approve(ctx context.Context, countID id.ID) (*Count, error) {
	var result *Count
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetByIDForUpdate(ctx, countID)
		if err != nil {
			return err
		}
		switch c.Status {
		case StatusSubmitted:
		case StatusPending:
			return apperror.NewValidation("stock count must be submitted before approval")
		default:
			return apperror.NewAlreadyFinalized("stock count", countID, string(c.Status))
		}

		now := time.Now().UTC()
		for i := range c.Lines {
			if err := s.approveLine(ctx, c, &c.Lines[i], now); err != nil {
				return err
			}
		}

		if _, err := s.damages.CheckThresholdsInTx(ctx); err != nil {
			return err
		}

		if err := s.repo.UpdateStatus(ctx, countID, StatusSubmitted, StatusCompleted, now); err != nil {
			return err
		}
		c.Status = StatusCompleted
		c.ApprovedAt = &now
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock count approved",
		"count_id", result.ID,
		"number", result.Number,
		"lines", len(result.Lines),
	)

	return result, nil
}

// approveLine applies damage and variance for one line under the lot locks.
func (s *Service) approveLine(ctx context.Context, c *Count, line *Line, now time.Time) error {
	lots, err := s.lots.SelectOpenForUpdate(ctx, line.ProductID)
	if err != nil {
		return fmt.Errorf("select lots for %s: %w", line.ProductID, err)
	}

	var system types.Quantity
	for _, l := range lots {
		system += l.QuantityRemaining
	}

	// Damage write-off first.
	if line.ActualDamaged.IsPositive() {
		plan, err := lot.PlanFIFO(line.ProductID, lots, line.ActualDamaged)
		if err != nil {
			return err
		}
		if err := s.applyDeduction(ctx, c, line, plan, ledger.KindDamage, now); err != nil {
			return err
		}
		if err := s.recordCountDamage(ctx, c, line, plan); err != nil {
			return err
		}
		lots = subtractPlan(lots, plan)
	}

	// Variance against the post-damage remainder.
	variance := line.ActualGood - (system - line.ActualDamaged)
	reportedVariance := line.ActualGood - system

	switch {
	case variance.IsPositive():
		if err := s.applySurplus(ctx, c, line, variance, now); err != nil {
			return err
		}
	case variance.IsNegative():
		plan, err := lot.PlanFIFO(line.ProductID, lots, variance.Abs())
		if err != nil {
			return err
		}
		if err := s.applyDeduction(ctx, c, line, plan, ledger.KindAdjust, now); err != nil {
			return err
		}
	}

	if err := s.repo.UpdateLineResult(ctx, line.ID, system, reportedVariance); err != nil {
		return fmt.Errorf("update line result: %w", err)
	}
	line.SystemQuantity = &system
	line.Variance = &reportedVariance

	return nil
}

// applyDeduction decrements the planned lots and posts one ledger entry for
// the whole line deduction.
func (s *Service) applyDeduction(ctx context.Context, c *Count, line *Line, plan []lot.Consumption, kind ledger.Kind, now time.Time) error {
	var total types.Quantity
	for _, p := range plan {
		if err := s.lots.Decrement(ctx, p.LotID, p.Quantity); err != nil {
			return err
		}
		total += p.Quantity
	}

	var lotID *id.ID
	if len(plan) == 1 {
		single := plan[0].LotID
		lotID = &single
	}

	_, err := s.ledger.Post(ctx, ledger.Movement{
		ProductID:     line.ProductID,
		LotID:         lotID,
		Kind:          kind,
		QuantityDelta: total.Neg(),
		ReferenceKind: ledger.RefStockCount,
		ReferenceID:   c.ID,
		OccurredAt:    now,
	})
	return err
}

// applySurplus books found stock onto the newest open lot, or a new zero-cost
// lot when the product has no open lots.
func (s *Service) applySurplus(ctx context.Context, c *Count, line *Line, surplus types.Quantity, now time.Time) error {
	var lotID id.ID

	newest, err := s.lots.NewestOpenForUpdate(ctx, line.ProductID)
	switch {
	case err == nil:
		if err := s.lots.Increment(ctx, newest.ID, surplus); err != nil {
			return err
		}
		lotID = newest.ID
	case apperror.IsNotFound(err):
		created := &lot.Lot{
			ID:                id.New(),
			ProductID:         line.ProductID,
			QuantityReceived:  surplus,
			QuantityRemaining: surplus,
			UnitCost:          types.ZeroMoney(),
			ReceivedAt:        now,
		}
		if err := s.lots.Create(ctx, created); err != nil {
			return fmt.Errorf("create surplus lot: %w", err)
		}
		lotID = created.ID
	default:
		return err
	}

	_, err = s.ledger.Post(ctx, ledger.Movement{
		ProductID:     line.ProductID,
		LotID:         &lotID,
		Kind:          ledger.KindAdjust,
		QuantityDelta: surplus,
		ReferenceKind: ledger.RefStockCount,
		ReferenceID:   c.ID,
		OccurredAt:    now,
	})
	return err
}

// recordCountDamage attributes the damage to the supplier of the oldest
// consumed lot; surplus lots without a receipt origin yield an untraceable
// (supplier-less) record.
func (s *Service) recordCountDamage(ctx context.Context, c *Count, line *Line, plan []lot.Consumption) error {
	var supplierID *id.ID
	if len(plan) > 0 {
		sup, err := s.lots.SupplierOf(ctx, plan[0].LotID)
		if err != nil {
			return fmt.Errorf("resolve lot supplier: %w", err)
		}
		supplierID = sup
	}

	_, err := s.damages.Record(ctx, damage.RecordInput{
		ProductID:  line.ProductID,
		SupplierID: supplierID,
		Quantity:   line.ActualDamaged,
		Cost:       lot.PlanCost(plan),
		Reason:     line.Reason,
		SourceKind: damage.SourceStockCount,
		SourceID:   c.ID,
	}, nil)
	return err
}

// subtractPlan removes consumed quantities from the in-memory lot snapshot.
func subtractPlan(lots []lot.Lot, plan []lot.Consumption) []lot.Lot {
	consumed := make(map[id.ID]types.Quantity, len(plan))
	for _, p := range plan {
		consumed[p.LotID] += p.Quantity
	}
	out := make([]lot.Lot, 0, len(lots))
	for _, l := range lots {
		l.QuantityRemaining -= consumed[l.ID]
		if l.QuantityRemaining.IsPositive() {
			out = append(out, l)
		}
	}
	return out
}

// Get returns a count with lines.
func (s *Service) Get(ctx context.Context, countID id.ID) (*Count, error) {
	return s.repo.GetByID(ctx, countID)
}

// List returns counts matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Count, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}
