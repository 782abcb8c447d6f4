package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/order"
)

var _ order.CartResetter = (*CartRepository)(nil)

// CartRepository updates cart rows after checkout.
type CartRepository struct {
	q  querier
	qb squirrel.StatementBuilderType
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(db *DB) *CartRepository {
	return &CartRepository{q: db.Pool, qb: db.qb}
}

// MarkPurchased flips the customer's active cart rows for productIDs to
// Purchased.
func (r *CartRepository) MarkPurchased(ctx context.Context, customerID string, productIDs []string) error {
	if len(productIDs) == 0 || !isUUID(customerID) {
		return nil
	}
	_, err := exec(ctx, r.q, r.qb.
		Update("cart_items").
		Set("status", "Purchased").
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{
			"user_id":    customerID,
			"product_id": productIDs,
			"status":     "Active",
		}))
	if err != nil {
		return errors.Wrap(err, "mark cart items purchased")
	}
	return nil
}
