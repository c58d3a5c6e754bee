package inventory_repo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/id"
	"lotledger/internal/domain/damage"
	"lotledger/internal/infrastructure/storage/postgres"
)

var _ damage.Repository = (*DamageRepo)(nil)

const damageTable = "inv_damage_pending"

var damageColumns = []string{
	"id", "product_id", "supplier_id", "quantity", "cost", "reason",
	"source_kind", "source_id", "status", "return_order_id", "discovered_at",
}

// DamageRepo implements damage.Repository.
type DamageRepo struct {
	txManager *postgres.TxManager
	qb        sq.StatementBuilderType
}

// NewDamageRepo creates a new damage record repository.
func NewDamageRepo(txManager *postgres.TxManager) *DamageRepo {
	return &DamageRepo{
		txManager: txManager,
		qb:        sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *DamageRepo) Create(ctx context.Context, record *damage.Record) error {
	query, args, err := r.qb.Insert(damageTable).
		Columns(damageColumns...).
		Values(record.ID, record.ProductID, record.SupplierID, record.Quantity,
			record.Cost, record.Reason, record.SourceKind, record.SourceID,
			record.Status, record.ReturnOrderID, record.DiscoveredAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert damage record: %w", err)
	}
	return nil
}

func (r *DamageRepo) ListPendingForUpdate(ctx context.Context) ([]damage.Record, error) {
	query, args, err := r.qb.Select(damageColumns...).
		From(damageTable).
		Where(sq.Eq{"status": damage.StatusPending}).
		OrderBy("discovered_at", "id").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var records []damage.Record
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &records, query, args...); err != nil {
		return nil, fmt.Errorf("list pending damage: %w", err)
	}
	return records, nil
}

func (r *DamageRepo) ListPending(ctx context.Context) ([]damage.Record, error) {
	query, args, err := r.qb.Select(damageColumns...).
		From(damageTable).
		Where(sq.Eq{"status": damage.StatusPending}).
		OrderBy("discovered_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var records []damage.Record
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &records, query, args...); err != nil {
		return nil, fmt.Errorf("list pending damage: %w", err)
	}
	return records, nil
}

func (r *DamageRepo) MarkQueued(ctx context.Context, recordIDs []id.ID, returnOrderID id.ID) error {
	if len(recordIDs) == 0 {
		return nil
	}

	query, args, err := r.qb.Update(damageTable).
		Set("status", damage.StatusQueued).
		Set("return_order_id", returnOrderID).
		Where(sq.Eq{"id": recordIDs, "status": damage.StatusPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark damage queued: %w", err)
	}
	if int(tag.RowsAffected()) != len(recordIDs) {
		return fmt.Errorf("mark damage queued: %d of %d records updated", tag.RowsAffected(), len(recordIDs))
	}
	return nil
}

func (r *DamageRepo) ExistsBySource(ctx context.Context, kind damage.SourceKind, sourceID id.ID) (bool, error) {
	query, args, err := r.qb.Select("1").
		From(damageTable).
		Where(sq.Eq{"source_kind": kind, "source_id": sourceID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select: %w", err)
	}

	var one int
	err = r.txManager.GetQuerier(ctx).QueryRow(ctx, query, args...).Scan(&one)
	if pgxscan.NotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check damage source: %w", err)
	}
	return true, nil
}
