// Package catalog_repo provides the PostgreSQL product repository.
package catalog_repo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/domain/catalog"
	"lotledger/internal/infrastructure/storage/postgres"
)

var _ catalog.Repository = (*ProductRepo)(nil)

const table = "products"

var columns = []string{"id", "code", "name", "unit", "serialized", "created_at"}

// ProductRepo implements catalog.Repository.
type ProductRepo struct {
	txManager *postgres.TxManager
	qb        sq.StatementBuilderType
}

// NewProductRepo creates a new product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		txManager: txManager,
		qb:        sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *ProductRepo) Create(ctx context.Context, product *catalog.Product) error {
	query, args, err := r.qb.Insert(table).
		Columns(columns...).
		Values(product.ID, product.Code, product.Name, product.Unit, product.Serialized, product.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*catalog.Product, error) {
	query, args, err := r.qb.Select(columns...).
		From(table).
		Where(sq.Eq{"id": productID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var product catalog.Product
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &product, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &product, nil
}

func (r *ProductRepo) GetByCode(ctx context.Context, code string) (*catalog.Product, error) {
	query, args, err := r.qb.Select(columns...).
		From(table).
		Where(sq.Eq{"code": code}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var product catalog.Product
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &product, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", code)
		}
		return nil, fmt.Errorf("get product by code: %w", err)
	}
	return &product, nil
}

func (r *ProductRepo) List(ctx context.Context, limit, offset int) ([]catalog.Product, error) {
	query, args, err := r.qb.Select(columns...).
		From(table).
		OrderBy("code").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var products []catalog.Product
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &products, query, args...); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}
