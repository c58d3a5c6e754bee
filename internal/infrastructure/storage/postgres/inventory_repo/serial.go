package inventory_repo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/domain/serial"
	"lotledger/internal/infrastructure/storage/postgres"
)

var _ serial.Repository = (*SerialRepo)(nil)

const serialTable = "inv_serial_units"

var serialColumns = []string{
	"id", "product_id", "lot_id", "allocation_line_id",
	"serial_code", "status", "received_at", "picked_at",
}

// SerialRepo implements serial.Repository.
type SerialRepo struct {
	txManager *postgres.TxManager
	batch     *postgres.BatchInserter
	qb        sq.StatementBuilderType
}

// NewSerialRepo creates a new serial unit repository.
func NewSerialRepo(txManager *postgres.TxManager) *SerialRepo {
	return &SerialRepo{
		txManager: txManager,
		batch:     postgres.NewBatchInserter(txManager),
		qb:        sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Mint bulk-inserts units through the COPY protocol; a big receipt can mint
// thousands of rows.
func (r *SerialRepo) Mint(ctx context.Context, units []serial.Unit) error {
	if len(units) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(units))
	for _, u := range units {
		rows = append(rows, []any{
			u.ID, u.ProductID, u.LotID, u.AllocationLineID,
			u.SerialCode, string(u.Status), u.ReceivedAt, u.PickedAt,
		})
	}

	if _, err := r.batch.CopyFromSlice(ctx, serialTable, serialColumns, rows); err != nil {
		return fmt.Errorf("mint serial units: %w", err)
	}
	return nil
}

func (r *SerialRepo) SelectAvailableForUpdate(ctx context.Context, productID id.ID, limit int) ([]serial.Unit, error) {
	query, args, err := r.qb.Select(serialColumns...).
		From(serialTable).
		Where(sq.Eq{"product_id": productID, "status": serial.StatusInStock}).
		OrderBy("received_at", "id").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var units []serial.Unit
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &units, query, args...); err != nil {
		return nil, fmt.Errorf("select available serials: %w", err)
	}
	return units, nil
}

func (r *SerialRepo) CountAvailable(ctx context.Context, productID id.ID) (int, error) {
	query, args, err := r.qb.Select("COUNT(*)").
		From(serialTable).
		Where(sq.Eq{"product_id": productID, "status": serial.StatusInStock}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build select: %w", err)
	}

	var count int
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count available serials: %w", err)
	}
	return count, nil
}

func (r *SerialRepo) CountByCodePrefix(ctx context.Context, prefix string) (int, error) {
	query, args, err := r.qb.Select("COUNT(*)").
		From(serialTable).
		Where(sq.Like{"serial_code": prefix + "-%"}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build select: %w", err)
	}

	var count int
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count serials by prefix: %w", err)
	}
	return count, nil
}

// MarkPicked is a single conditional write: the WHERE clause on status is the
// whole concurrency story for serial picking.
func (r *SerialRepo) MarkPicked(ctx context.Context, unitID, allocationLineID id.ID) error {
	query, args, err := r.qb.Update(serialTable).
		Set("status", serial.StatusPicked).
		Set("allocation_line_id", allocationLineID).
		Set("picked_at", sq.Expr("now()")).
		Where(sq.Eq{"id": unitID, "status": serial.StatusInStock}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark picked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("serial unit", unitID)
	}
	return nil
}

func (r *SerialRepo) ListByAllocationLine(ctx context.Context, allocationLineID id.ID) ([]serial.Unit, error) {
	query, args, err := r.qb.Select(serialColumns...).
		From(serialTable).
		Where(sq.Eq{"allocation_line_id": allocationLineID}).
		OrderBy("serial_code").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var units []serial.Unit
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &units, query, args...); err != nil {
		return nil, fmt.Errorf("list serials by line: %w", err)
	}
	return units, nil
}
