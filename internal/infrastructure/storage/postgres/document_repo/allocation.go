// Package document_repo provides the PostgreSQL repositories for inventory
// documents: allocation orders, receipts, and stock counts.
package document_repo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/allocation"
	"lotledger/internal/infrastructure/storage/postgres"
)

var _ allocation.Repository = (*AllocationRepo)(nil)

const (
	allocOrderTable = "doc_allocation_orders"
	allocLineTable  = "doc_allocation_lines"
)

var (
	allocOrderColumns = []string{
		"id", "number", "kind", "partner_id", "status",
		"created_by", "created_at", "completed_at", "version",
	}
	allocLineColumns = []string{
		"id", "order_id", "product_id", "quantity_requested", "unit_price",
	}
)

// AllocationRepo implements allocation.Repository.
type AllocationRepo struct {
	txManager *postgres.TxManager
	qb        sq.StatementBuilderType
}

// NewAllocationRepo creates a new allocation order repository.
func NewAllocationRepo(txManager *postgres.TxManager) *AllocationRepo {
	return &AllocationRepo{
		txManager: txManager,
		qb:        sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *AllocationRepo) Create(ctx context.Context, order *allocation.Order) error {
	query, args, err := r.qb.Insert(allocOrderTable).
		Columns(allocOrderColumns...).
		Values(order.ID, order.Number, order.Kind, order.PartnerID, order.Status,
			order.CreatedBy, order.CreatedAt, order.CompletedAt, order.Version).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Lines {
		if err := r.AddLine(ctx, &order.Lines[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *AllocationRepo) AddLine(ctx context.Context, line *allocation.Line) error {
	query, args, err := r.qb.Insert(allocLineTable).
		Columns(allocLineColumns...).
		Values(line.ID, line.OrderID, line.ProductID, line.QuantityRequested, line.UnitPrice).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert order line: %w", err)
	}
	return nil
}

func (r *AllocationRepo) GetByID(ctx context.Context, orderID id.ID) (*allocation.Order, error) {
	return r.get(ctx, orderID, false)
}

func (r *AllocationRepo) GetByIDForUpdate(ctx context.Context, orderID id.ID) (*allocation.Order, error) {
	return r.get(ctx, orderID, true)
}

func (r *AllocationRepo) get(ctx context.Context, orderID id.ID, forUpdate bool) (*allocation.Order, error) {
	builder := r.qb.Select(allocOrderColumns...).
		From(allocOrderTable).
		Where(sq.Eq{"id": orderID})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var order allocation.Order
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &order, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("allocation order", orderID)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := r.loadLines(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *AllocationRepo) loadLines(ctx context.Context, order *allocation.Order) error {
	query, args, err := r.qb.Select(allocLineColumns...).
		From(allocLineTable).
		Where(sq.Eq{"order_id": order.ID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}

	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &order.Lines, query, args...); err != nil {
		return fmt.Errorf("load order lines: %w", err)
	}
	return nil
}

func (r *AllocationRepo) List(ctx context.Context, filter allocation.ListFilter) ([]allocation.Order, error) {
	builder := r.qb.Select(allocOrderColumns...).
		From(allocOrderTable).
		OrderBy("created_at DESC", "id DESC")

	if filter.Kind != nil {
		builder = builder.Where(sq.Eq{"kind": *filter.Kind})
	}
	if filter.Status != nil {
		builder = builder.Where(sq.Eq{"status": *filter.Status})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var orders []allocation.Order
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &orders, query, args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (r *AllocationRepo) SetLineUnitPrice(ctx context.Context, lineID id.ID, price types.Money) error {
	query, args, err := r.qb.Update(allocLineTable).
		Set("unit_price", price).
		Where(sq.Eq{"id": lineID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set line price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("allocation line", lineID)
	}
	return nil
}

func (r *AllocationRepo) UpdateStatus(ctx context.Context, orderID id.ID, from, to allocation.Status, completedAt *time.Time) error {
	builder := r.qb.Update(allocOrderTable).
		Set("status", to).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": orderID, "status": from})
	if completedAt != nil {
		builder = builder.Set("completed_at", *completedAt)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("allocation order", orderID)
	}
	return nil
}
