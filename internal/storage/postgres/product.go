package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/bistro/internal/domain/product"
)

var _ product.Reader = (*ProductRepository)(nil)

// ProductRepository reads catalog prices.
type ProductRepository struct {
	q  querier
	qb squirrel.StatementBuilderType
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{q: db.Pool, qb: db.qb}
}

// GetByIDs returns the active products among ids. Unknown ids are omitted.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := query(ctx, r.q, r.qb.
		Select("id", "name", "current_price", "is_available").
		From("products").
		Where(squirrel.Eq{"id": ids, "is_active": true}))
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}

	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Product, error) {
		var p product.Product
		err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Available)
		return p, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	return products, nil
}

// Upsert inserts or replaces a catalog entry.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := exec(ctx, r.q, r.qb.
		Insert("products").
		Columns("id", "name", "current_price", "is_available").
		Values(p.ID, p.Name, p.Price, p.Available).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, "+
			"current_price = EXCLUDED.current_price, is_available = EXCLUDED.is_available"))
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}
