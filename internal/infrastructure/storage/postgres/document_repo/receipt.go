package document_repo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/receipt"
	"lotledger/internal/infrastructure/storage/postgres"
)

var _ receipt.Repository = (*ReceiptRepo)(nil)

const (
	receiptTable     = "doc_receipts"
	receiptLineTable = "doc_receipt_lines"
)

var (
	receiptColumns = []string{
		"id", "number", "supplier_id", "status", "replacement_for_id",
		"created_by", "created_at", "updated_at", "version",
	}
	receiptLineColumns = []string{
		"id", "receipt_id", "product_id", "quantity_expected",
		"quantity_actual_good", "quantity_damaged", "unit_price",
	}
)

// ReceiptRepo implements receipt.Repository.
type ReceiptRepo struct {
	txManager *postgres.TxManager
	qb        sq.StatementBuilderType
}

// NewReceiptRepo creates a new receipt repository.
func NewReceiptRepo(txManager *postgres.TxManager) *ReceiptRepo {
	return &ReceiptRepo{
		txManager: txManager,
		qb:        sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *ReceiptRepo) Create(ctx context.Context, rec *receipt.Receipt) error {
	query, args, err := r.qb.Insert(receiptTable).
		Columns(receiptColumns...).
		Values(rec.ID, rec.Number, rec.SupplierID, rec.Status, rec.ReplacementForID,
			rec.CreatedBy, rec.CreatedAt, rec.UpdatedAt, rec.Version).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}

	for _, line := range rec.Lines {
		query, args, err := r.qb.Insert(receiptLineTable).
			Columns(receiptLineColumns...).
			Values(line.ID, line.ReceiptID, line.ProductID, line.QuantityExpected,
				line.QuantityActualGood, line.QuantityDamaged, line.UnitPrice).
			ToSql()
		if err != nil {
			return fmt.Errorf("build line insert: %w", err)
		}
		if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert receipt line: %w", err)
		}
	}
	return nil
}

func (r *ReceiptRepo) GetByID(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
	return r.get(ctx, receiptID, false)
}

func (r *ReceiptRepo) GetByIDForUpdate(ctx context.Context, receiptID id.ID) (*receipt.Receipt, error) {
	return r.get(ctx, receiptID, true)
}

func (r *ReceiptRepo) get(ctx context.Context, receiptID id.ID, forUpdate bool) (*receipt.Receipt, error) {
	builder := r.qb.Select(receiptColumns...).
		From(receiptTable).
		Where(sq.Eq{"id": receiptID})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rec receipt.Receipt
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &rec, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("receipt", receiptID)
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}

	lineQuery, lineArgs, err := r.qb.Select(receiptLineColumns...).
		From(receiptLineTable).
		Where(sq.Eq{"receipt_id": receiptID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rec.Lines, lineQuery, lineArgs...); err != nil {
		return nil, fmt.Errorf("load receipt lines: %w", err)
	}

	return &rec, nil
}

func (r *ReceiptRepo) List(ctx context.Context, filter receipt.ListFilter) ([]receipt.Receipt, error) {
	builder := r.qb.Select(receiptColumns...).
		From(receiptTable).
		OrderBy("created_at DESC", "id DESC")

	if filter.SupplierID != nil {
		builder = builder.Where(sq.Eq{"supplier_id": *filter.SupplierID})
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

	var receipts []receipt.Receipt
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &receipts, query, args...); err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return receipts, nil
}

func (r *ReceiptRepo) UpdateLineActuals(ctx context.Context, lineID id.ID, good, damaged types.Quantity) error {
	query, args, err := r.qb.Update(receiptLineTable).
		Set("quantity_actual_good", good).
		Set("quantity_damaged", damaged).
		Where(sq.Eq{"id": lineID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update line actuals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("receipt line", lineID)
	}
	return nil
}

// UpdateStatus is an optimistic-lock write: the version predicate catches a
// receipt modified between read and write.
func (r *ReceiptRepo) UpdateStatus(ctx context.Context, receiptID id.ID, status receipt.Status, expectedVersion int) error {
	query, args, err := r.qb.Update(receiptTable).
		Set("status", status).
		Set("updated_at", sq.Expr("now()")).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": receiptID, "version": expectedVersion}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update receipt status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("receipt", receiptID)
	}
	return nil
}
