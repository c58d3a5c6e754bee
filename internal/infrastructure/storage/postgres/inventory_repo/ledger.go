package inventory_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/infrastructure/storage/postgres"
)

var _ ledger.Repository = (*LedgerRepo)(nil)

const ledgerTable = "inv_ledger_entries"

var ledgerColumns = []string{
	"entry_id", "product_id", "lot_id", "occurred_at", "kind",
	"quantity_delta", "balance_after", "reference_kind", "reference_id", "actor_id",
}

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txManager *postgres.TxManager
	qb        sq.StatementBuilderType
}

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		qb:        sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *LedgerRepo) Append(ctx context.Context, entry *ledger.Entry) error {
	query, args, err := r.qb.Insert(ledgerTable).
		Columns("product_id", "lot_id", "occurred_at", "kind",
			"quantity_delta", "balance_after", "reference_kind", "reference_id", "actor_id").
		Values(entry.ProductID, entry.LotID, entry.OccurredAt, entry.Kind,
			entry.QuantityDelta, entry.BalanceAfter, entry.ReferenceKind, entry.ReferenceID, entry.ActorID).
		Suffix("RETURNING entry_id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, query, args...).Scan(&entry.EntryID); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepo) LatestBalance(ctx context.Context, productID id.ID) (types.Quantity, error) {
	query, args, err := r.qb.Select("balance_after").
		From(ledgerTable).
		Where(sq.Eq{"product_id": productID}).
		OrderBy("occurred_at DESC", "entry_id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build select: %w", err)
	}

	var balance int64
	err = r.txManager.GetQuerier(ctx).QueryRow(ctx, query, args...).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest balance: %w", err)
	}
	return types.NewQuantityFromInt64Scaled(balance), nil
}

func (r *LedgerRepo) BalanceAt(ctx context.Context, productID id.ID, t time.Time) (types.Quantity, error) {
	query, args, err := r.qb.Select("balance_after").
		From(ledgerTable).
		Where(sq.Eq{"product_id": productID}).
		Where(sq.LtOrEq{"occurred_at": t}).
		OrderBy("occurred_at DESC", "entry_id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build select: %w", err)
	}

	var balance int64
	err = r.txManager.GetQuerier(ctx).QueryRow(ctx, query, args...).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance at: %w", err)
	}
	return types.NewQuantityFromInt64Scaled(balance), nil
}

func (r *LedgerRepo) ListByProduct(ctx context.Context, productID id.ID, filter ledger.Filter) ([]ledger.Entry, error) {
	builder := r.qb.Select(ledgerColumns...).
		From(ledgerTable).
		Where(sq.Eq{"product_id": productID}).
		OrderBy("occurred_at", "entry_id")

	if filter.From != nil {
		builder = builder.Where(sq.GtOrEq{"occurred_at": *filter.From})
	}
	if filter.To != nil {
		builder = builder.Where(sq.LtOrEq{"occurred_at": *filter.To})
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

	var entries []ledger.Entry
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

// LockProduct serializes ledger writers of one product with a transaction
// scoped advisory lock. A row lock cannot serve here: the first entry of a
// product has no row to lock yet.
func (r *LedgerRepo) LockProduct(ctx context.Context, productID id.ID) error {
	if r.txManager.GetTx(ctx) == nil {
		return fmt.Errorf("LockProduct requires transaction context")
	}

	_, err := r.txManager.GetQuerier(ctx).Exec(ctx,
		"SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))", productID)
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}
