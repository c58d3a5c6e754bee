package allocation

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

// Numbering prefixes.
const (
	prefixOutbound = "AO"
	prefixReturn   = "RT"
)

// Service provides allocation order operations.
type Service struct {
	repo      Repository
	lots      lot.Repository
	serials   *serial.Service
	ledger    *ledger.Service
	products  catalog.Repository
	numbers   *numerator.Service
	txManager tx.Manager
}

// NewService creates a new allocation service.
func NewService(
	repo Repository,
	lots lot.Repository,
	serials *serial.Service,
	ledgerSvc *ledger.Service,
	products catalog.Repository,
	numbers *numerator.Service,
	txManager tx.Manager,
) *Service {
	return &Service{
		repo:      repo,
		lots:      lots,
		serials:   serials,
		ledger:    ledgerSvc,
		products:  products,
		numbers:   numbers,
		txManager: txManager,
	}
}

// CreateInput holds fields for creating an outbound order.
type CreateInput struct {
	PartnerID id.ID       `json:"partnerId"`
	Lines     []LineInput `json:"lines"`
}

// LineInput holds fields for one order line.
type LineInput struct {
	ProductID         id.ID          `json:"productId"`
	QuantityRequested types.Quantity `json:"quantityRequested"`
}

// Create registers a pending outbound order.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Order, error) {
	if id.IsNil(input.PartnerID) {
		return nil, apperror.NewValidation("partner id is required")
	}
	for i, l := range input.Lines {
		if err := s.validateLineInput(ctx, i, l); err != nil {
			return nil, err
		}
	}

	number, err := s.numbers.GetNextNumber(ctx, numerator.DefaultConfig(prefixOutbound),
		&numerator.Options{Strategy: numerator.StrategyCached}, time.Now())
	if err != nil {
		return nil, fmt.Errorf("next order number: %w", err)
	}

	order := &Order{
		ID:        id.New(),
		Number:    number,
		Kind:      KindOutbound,
		PartnerID: input.PartnerID,
		Status:    StatusPending,
		CreatedBy: appctx.GetActorID(ctx),
		CreatedAt: time.Now().UTC(),
		Version:   1,
	}
	for _, l := range input.Lines {
		order.Lines = append(order.Lines, Line{
			ID:                id.New(),
			OrderID:           order.ID,
			ProductID:         l.ProductID,
			QuantityRequested: l.QuantityRequested,
			UnitPrice:         types.ZeroMoney(),
		})
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, order)
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	logger.Info(ctx, "allocation order created",
		"order_id", order.ID,
		"number", order.Number,
		"lines", len(order.Lines),
	)

	return order, nil
}

// AddLine appends a line to a pending order.
func (s *Service) AddLine(ctx context.Context, orderID id.ID, input LineInput) (*Line, error) {
	if err := s.validateLineInput(ctx, 0, input); err != nil {
		return nil, err
	}

	var line *Line
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != StatusPending {
			return apperror.NewAlreadyFinalized("allocation order", orderID, string(order.Status))
		}

		line = &Line{
			ID:                id.New(),
			OrderID:           orderID,
			ProductID:         input.ProductID,
			QuantityRequested: input.QuantityRequested,
			UnitPrice:         types.ZeroMoney(),
		}
		return s.repo.AddLine(ctx, line)
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// CreateSupplierReturn creates a pending return order toward a supplier.
// Runs inside the caller's transaction (the damage aggregator or receipt
// reconciliation own the enclosing transaction).
func (s *Service) CreateSupplierReturn(ctx context.Context, supplierID id.ID, lines []damage.ReturnLine) (id.ID, error) {
	if len(lines) == 0 {
		return id.Nil(), apperror.NewValidation("return order requires at least one line")
	}

	number, err := s.numbers.GetNextNumber(ctx, numerator.DefaultConfig(prefixReturn), nil, time.Now())
	if err != nil {
		return id.Nil(), fmt.Errorf("next return number: %w", err)
	}

	order := &Order{
		ID:        id.New(),
		Number:    number,
		Kind:      KindSupplierReturn,
		PartnerID: supplierID,
		Status:    StatusPending,
		CreatedBy: appctx.GetActorID(ctx),
		CreatedAt: time.Now().UTC(),
		Version:   1,
	}
	for _, l := range lines {
		order.Lines = append(order.Lines, Line{
			ID:                id.New(),
			OrderID:           order.ID,
			ProductID:         l.ProductID,
			QuantityRequested: l.Quantity,
			UnitPrice:         types.ZeroMoney(),
		})
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return id.Nil(), fmt.Errorf("create return order: %w", err)
	}

	return order.ID, nil
}

// linePlan is the validated consumption plan for one line.
type linePlan struct {
	line        Line
	consumption []lot.Consumption
	serialCount int
}

// Complete executes the FIFO allocation for a pending order.
//
// All lines are validated and planned before any mutation: quantity coverage
// first, serial availability second, so a serialized shortage with enough
// total stock reports INSUFFICIENT_SERIAL_UNITS, not INSUFFICIENT_STOCK.
// Any failure rolls back the whole order.
func (s *Service) Complete(ctx context.Context, orderID id.ID) (*Order, error) {
	var result *Order
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != StatusPending {
			return apperror.NewAlreadyFinalized("allocation order", orderID, string(order.Status))
		}
		if len(order.Lines) == 0 {
			return apperror.NewValidation("order has no lines")
		}

		plans, err := s.planLines(ctx, order.Lines)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for i := range plans {
			if err := s.applyPlan(ctx, order, &plans[i], now); err != nil {
				return err
			}
		}

		if err := s.repo.UpdateStatus(ctx, orderID, StatusPending, StatusCompleted, &now); err != nil {
			return err
		}

		order.Status = StatusCompleted
		order.CompletedAt = &now
		for i := range order.Lines {
			order.Lines[i] = plans[i].line
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "allocation order completed",
		"order_id", result.ID,
		"number", result.Number,
		"lines", len(result.Lines),
	)

	return result, nil
}

// planLines validates every line and builds consumption plans against an
// in-memory working copy of the locked lots, so several lines of the same
// product see each other's consumption before anything is written.
func (s *Service) planLines(ctx context.Context, lines []Line) ([]linePlan, error) {
	workingLots := make(map[id.ID][]lot.Lot)
	serialAvailable := make(map[id.ID]int)
	serialNeeded := make(map[id.ID]int)

	plans := make([]linePlan, 0, len(lines))
	for _, line := range lines {
		if !line.QuantityRequested.IsPositive() {
			return nil, apperror.NewInvalidQuantity("quantityRequested", line.QuantityRequested.String())
		}

		lots, ok := workingLots[line.ProductID]
		if !ok {
			fetched, err := s.lots.SelectOpenForUpdate(ctx, line.ProductID)
			if err != nil {
				return nil, fmt.Errorf("select lots for %s: %w", line.ProductID, err)
			}
			lots = fetched
		}

		plan, err := lot.PlanFIFO(line.ProductID, lots, line.QuantityRequested)
		if err != nil {
			return nil, err
		}
		workingLots[line.ProductID] = applyToWorkingCopy(lots, plan)

		lp := linePlan{line: line, consumption: plan}

		product, err := s.products.GetByID(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if product.Serialized {
			count, err := wholeUnits(line.QuantityRequested)
			if err != nil {
				return nil, err
			}
			if _, ok := serialAvailable[line.ProductID]; !ok {
				available, err := s.serials.Available(ctx, line.ProductID)
				if err != nil {
					return nil, fmt.Errorf("count serials for %s: %w", line.ProductID, err)
				}
				serialAvailable[line.ProductID] = available
			}
			serialNeeded[line.ProductID] += count
			if serialNeeded[line.ProductID] > serialAvailable[line.ProductID] {
				return nil, apperror.NewInsufficientSerialUnits(
					line.ProductID.String(),
					serialNeeded[line.ProductID],
					serialAvailable[line.ProductID],
				)
			}
			lp.serialCount = count
		}

		plans = append(plans, lp)
	}

	return plans, nil
}

// applyPlan writes one line's consumption: lot decrements, one OUT ledger
// entry per lot, the computed unit price, and serial picks.
func (s *Service) applyPlan(ctx context.Context, order *Order, lp *linePlan, now time.Time) error {
	totalCost := types.ZeroMoney()
	for _, c := range lp.consumption {
		if err := s.lots.Decrement(ctx, c.LotID, c.Quantity); err != nil {
			return err
		}

		lotID := c.LotID
		if _, err := s.ledger.Post(ctx, ledger.Movement{
			ProductID:     lp.line.ProductID,
			LotID:         &lotID,
			Kind:          ledger.KindOut,
			QuantityDelta: c.Quantity.Neg(),
			ReferenceKind: ledger.RefAllocation,
			ReferenceID:   order.ID,
			OccurredAt:    now,
		}); err != nil {
			return err
		}

		totalCost = totalCost.Add(c.TotalCost())
	}

	lp.line.UnitPrice = totalCost.Div(lp.line.QuantityRequested.Decimal())
	if err := s.repo.SetLineUnitPrice(ctx, lp.line.ID, lp.line.UnitPrice); err != nil {
		return fmt.Errorf("set line price: %w", err)
	}

	if lp.serialCount > 0 {
		codes, err := s.serials.Pick(ctx, lp.line.ProductID, lp.line.ID, lp.serialCount)
		if err != nil {
			return err
		}
		lp.line.SerialsAssigned = codes
	}

	return nil
}

// Cancel cancels a pending order. No ledger effect.
func (s *Service) Cancel(ctx context.Context, orderID id.ID) error {
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != StatusPending {
			return apperror.NewAlreadyFinalized("allocation order", orderID, string(order.Status))
		}
		return s.repo.UpdateStatus(ctx, orderID, StatusPending, StatusCancelled, nil)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "allocation order cancelled", "order_id", orderID)
	return nil
}

// Get returns an order with lines; completed lines carry the serial codes
// picked for them.
func (s *Service) Get(ctx context.Context, orderID id.ID) (*Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == StatusCompleted {
		for i := range order.Lines {
			codes, err := s.serials.CodesForLine(ctx, order.Lines[i].ID)
			if err != nil {
				return nil, fmt.Errorf("load serials for line %s: %w", order.Lines[i].ID, err)
			}
			if len(codes) > 0 {
				order.Lines[i].SerialsAssigned = codes
			}
		}
	}
	return order, nil
}

// List returns orders matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) validateLineInput(ctx context.Context, i int, l LineInput) error {
	if id.IsNil(l.ProductID) {
		return apperror.NewValidation(fmt.Sprintf("line %d: product id is required", i))
	}
	if !l.QuantityRequested.IsPositive() {
		return apperror.NewInvalidQuantity(fmt.Sprintf("lines[%d].quantityRequested", i), l.QuantityRequested.String())
	}
	if _, err := s.products.GetByID(ctx, l.ProductID); err != nil {
		return err
	}
	return nil
}

// applyToWorkingCopy subtracts a plan from the in-memory lot snapshot.
func applyToWorkingCopy(lots []lot.Lot, plan []lot.Consumption) []lot.Lot {
	consumed := make(map[id.ID]types.Quantity, len(plan))
	for _, c := range plan {
		consumed[c.LotID] += c.Quantity
	}
	out := make([]lot.Lot, 0, len(lots))
	for _, l := range lots {
		l.QuantityRemaining -= consumed[l.ID]
		out = append(out, l)
	}
	return out
}

// wholeUnits converts a quantity to an integer unit count; serialized
// products cannot be allocated in fractions.
func wholeUnits(q types.Quantity) (int, error) {
	scaled := q.Int64Scaled()
	if scaled%types.QuantityScale != 0 {
		return 0, apperror.NewValidation("serialized products require whole-unit quantities")
	}
	return int(scaled / types.QuantityScale), nil
}
