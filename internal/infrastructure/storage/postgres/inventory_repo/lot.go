// Package inventory_repo provides the PostgreSQL repositories of the
// inventory core: lots, ledger entries, serial units, and damage records.
package inventory_repo

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/lot"
	"lotledger/internal/infrastructure/storage/postgres"
)

var _ lot.Repository = (*LotRepo)(nil)

const lotTable = "inv_lots"

var lotColumns = []string{
	"id", "product_id", "source_receipt_line_id",
	"quantity_received", "quantity_remaining", "unit_cost", "received_at",
}

// LotRepo implements lot.Repository.
type LotRepo struct {
	txManager *postgres.TxManager
	qb        sq.StatementBuilderType
}

// NewLotRepo creates a new lot repository.
func NewLotRepo(txManager *postgres.TxManager) *LotRepo {
	return &LotRepo{
		txManager: txManager,
		qb:        sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *LotRepo) Create(ctx context.Context, l *lot.Lot) error {
	query, args, err := r.qb.Insert(lotTable).
		Columns(lotColumns...).
		Values(l.ID, l.ProductID, l.SourceReceiptLineID,
			l.QuantityReceived, l.QuantityRemaining, l.UnitCost, l.ReceivedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

func (r *LotRepo) GetByID(ctx context.Context, lotID id.ID) (*lot.Lot, error) {
	query, args, err := r.qb.Select(lotColumns...).
		From(lotTable).
		Where(sq.Eq{"id": lotID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var l lot.Lot
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &l, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("lot", lotID)
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}
	return &l, nil
}

func (r *LotRepo) SelectOpenForUpdate(ctx context.Context, productID id.ID) ([]lot.Lot, error) {
	query, args, err := r.qb.Select(lotColumns...).
		From(lotTable).
		Where(sq.Eq{"product_id": productID}).
		Where(sq.Gt{"quantity_remaining": 0}).
		OrderBy("received_at", "id").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var lots []lot.Lot
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lots, query, args...); err != nil {
		return nil, fmt.Errorf("select open lots: %w", err)
	}
	return lots, nil
}

func (r *LotRepo) NewestOpenForUpdate(ctx context.Context, productID id.ID) (*lot.Lot, error) {
	query, args, err := r.qb.Select(lotColumns...).
		From(lotTable).
		Where(sq.Eq{"product_id": productID}).
		Where(sq.Gt{"quantity_remaining": 0}).
		OrderBy("received_at DESC", "id DESC").
		Limit(1).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var l lot.Lot
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &l, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("open lot", productID)
		}
		return nil, fmt.Errorf("get newest lot: %w", err)
	}
	return &l, nil
}

func (r *LotRepo) Decrement(ctx context.Context, lotID id.ID, delta types.Quantity) error {
	query, args, err := r.qb.Update(lotTable).
		Set("quantity_remaining", sq.Expr("quantity_remaining - ?", delta)).
		Where(sq.Eq{"id": lotID}).
		Where(sq.GtOrEq{"quantity_remaining": delta}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("decrement lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("lot", lotID)
	}
	return nil
}

func (r *LotRepo) Increment(ctx context.Context, lotID id.ID, delta types.Quantity) error {
	query, args, err := r.qb.Update(lotTable).
		Set("quantity_remaining", sq.Expr("quantity_remaining + ?", delta)).
		Set("quantity_received", sq.Expr("quantity_received + ?", delta)).
		Where(sq.Eq{"id": lotID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("increment lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("lot", lotID)
	}
	return nil
}

func (r *LotRepo) RemainingByProduct(ctx context.Context, productID id.ID) (types.Quantity, error) {
	query, args, err := r.qb.Select("COALESCE(SUM(quantity_remaining), 0)").
		From(lotTable).
		Where(sq.Eq{"product_id": productID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build select: %w", err)
	}

	var remaining int64
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, query, args...).Scan(&remaining); err != nil {
		return 0, fmt.Errorf("sum remaining: %w", err)
	}
	return types.NewQuantityFromInt64Scaled(remaining), nil
}

func (r *LotRepo) ListByProduct(ctx context.Context, productID id.ID) ([]lot.Lot, error) {
	query, args, err := r.qb.Select(lotColumns...).
		From(lotTable).
		Where(sq.Eq{"product_id": productID}).
		OrderBy("received_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var lots []lot.Lot
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lots, query, args...); err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	return lots, nil
}

func (r *LotRepo) SupplierOf(ctx context.Context, lotID id.ID) (*id.ID, error) {
	const query = `
		SELECT r.supplier_id
		FROM inv_lots l
		JOIN doc_receipt_lines rl ON rl.id = l.source_receipt_line_id
		JOIN doc_receipts r ON r.id = rl.receipt_id
		WHERE l.id = $1
	`

	var supplierID id.ID
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, query, lotID).Scan(&supplierID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lot has no receipt origin (count surplus).
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve lot supplier: %w", err)
	}
	return &supplierID, nil
}
