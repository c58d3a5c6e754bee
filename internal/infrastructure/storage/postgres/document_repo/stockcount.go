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
	"lotledger/internal/domain/stockcount"
	"lotledger/internal/infrastructure/storage/postgres"
)

var _ stockcount.Repository = (*StockCountRepo)(nil)

const (
	countTable     = "doc_stock_counts"
	countLineTable = "doc_stock_count_lines"
)

var (
	countColumns = []string{
		"id", "number", "status", "created_by", "created_at",
		"submitted_at", "approved_at", "version",
	}
	countLineColumns = []string{
		"id", "count_id", "product_id", "actual_good", "actual_damaged",
		"reason", "system_quantity", "variance",
	}
)

// StockCountRepo implements stockcount.Repository.
type StockCountRepo struct {
	txManager *postgres.TxManager
	qb        sq.StatementBuilderType
}

// NewStockCountRepo creates a new stock count repository.
func NewStockCountRepo(txManager *postgres.TxManager) *StockCountRepo {
	return &StockCountRepo{
		txManager: txManager,
		qb:        sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *StockCountRepo) Create(ctx context.Context, count *stockcount.Count) error {
	query, args, err := r.qb.Insert(countTable).
		Columns(countColumns...).
		Values(count.ID, count.Number, count.Status, count.CreatedBy, count.CreatedAt,
			count.SubmittedAt, count.ApprovedAt, count.Version).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert stock count: %w", err)
	}

	for _, line := range count.Lines {
		query, args, err := r.qb.Insert(countLineTable).
			Columns(countLineColumns...).
			Values(line.ID, line.CountID, line.ProductID, line.ActualGood,
				line.ActualDamaged, line.Reason, line.SystemQuantity, line.Variance).
			ToSql()
		if err != nil {
			return fmt.Errorf("build line insert: %w", err)
		}
		if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert count line: %w", err)
		}
	}
	return nil
}

func (r *StockCountRepo) GetByID(ctx context.Context, countID id.ID) (*stockcount.Count, error) {
	return r.get(ctx, countID, false)
}

func (r *StockCountRepo) GetByIDForUpdate(ctx context.Context, countID id.ID) (*stockcount.Count, error) {
	return r.get(ctx, countID, true)
}

func (r *StockCountRepo) get(ctx context.Context, countID id.ID, forUpdate bool) (*stockcount.Count, error) {
	builder := r.qb.Select(countColumns...).
		From(countTable).
		Where(sq.Eq{"id": countID})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var count stockcount.Count
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &count, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock count", countID)
		}
		return nil, fmt.Errorf("get stock count: %w", err)
	}

	lineQuery, lineArgs, err := r.qb.Select(countLineColumns...).
		From(countLineTable).
		Where(sq.Eq{"count_id": countID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &count.Lines, lineQuery, lineArgs...); err != nil {
		return nil, fmt.Errorf("load count lines: %w", err)
	}

	return &count, nil
}

func (r *StockCountRepo) List(ctx context.Context, filter stockcount.ListFilter) ([]stockcount.Count, error) {
	builder := r.qb.Select(countColumns...).
		From(countTable).
		OrderBy("created_at DESC", "id DESC")

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

	var counts []stockcount.Count
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &counts, query, args...); err != nil {
		return nil, fmt.Errorf("list stock counts: %w", err)
	}
	return counts, nil
}

func (r *StockCountRepo) UpdateLineResult(ctx context.Context, lineID id.ID, system, variance types.Quantity) error {
	query, args, err := r.qb.Update(countLineTable).
		Set("system_quantity", system).
		Set("variance", variance).
		Where(sq.Eq{"id": lineID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update line result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("stock count line", lineID)
	}
	return nil
}

func (r *StockCountRepo) UpdateStatus(ctx context.Context, countID id.ID, from, to stockcount.Status, at time.Time) error {
	builder := r.qb.Update(countTable).
		Set("status", to).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": countID, "status": from})

	switch to {
	case stockcount.StatusSubmitted:
		builder = builder.Set("submitted_at", at)
	case stockcount.StatusCompleted:
		builder = builder.Set("approved_at", at)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update count status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("stock count", countID)
	}
	return nil
}
