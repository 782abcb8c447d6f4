package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/statistics"
	"github.com/xenking/bistro/internal/domain/timeframe"
)

const (
	countUsersSQL = `SELECT count(*) FROM users
		WHERE role = 'User' AND created_at >= $1 AND created_at < $2`

	countOrdersSQL = `SELECT count(*) FROM orders
		WHERE created_at >= $1 AND created_at < $2`

	sumRevenueSQL = `SELECT coalesce(sum(total_price), 0) FROM orders
		WHERE status = 'Done' AND created_at >= $1 AND created_at < $2`

	topProductsSQL = `SELECT oi.product_id, max(oi.name),
			sum(oi.quantity)::bigint AS units,
			sum(oi.price * oi.quantity) AS sales
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status <> 'Rejected' AND o.created_at >= $1 AND o.created_at < $2
		GROUP BY oi.product_id`

	newestCustomersSQL = `SELECT u.id::text, u.name, u.email, u.created_at,
			count(o.id), coalesce(sum(o.total_price), 0)
		FROM users u
		LEFT JOIN orders o ON o.customer_id = u.id AND o.status <> 'Rejected'
		WHERE u.role = 'User' AND u.created_at >= $1 AND u.created_at < $2
		GROUP BY u.id
		ORDER BY u.created_at DESC, u.id
		LIMIT $3`

	topCustomersSQL = `SELECT u.id::text, u.name, u.email, u.created_at,
			count(o.id), sum(o.total_price) AS total
		FROM orders o
		JOIN users u ON u.id = o.customer_id
		WHERE o.status <> 'Rejected' AND o.created_at >= $1 AND o.created_at < $2
		GROUP BY u.id
		ORDER BY total DESC, u.id
		LIMIT $3`

	salesSQL = `SELECT o.created_at, o.total_price, coalesce(sum(oi.quantity), 0)::bigint
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		WHERE o.status = 'Done' AND o.created_at >= $1 AND o.created_at < $2
		GROUP BY o.id
		ORDER BY o.created_at`
)

var _ statistics.Repository = (*StatisticsRepository)(nil)

// StatisticsRepository runs the aggregate queries behind the statistics
// endpoints.
type StatisticsRepository struct {
	q querier
}

// NewStatisticsRepository returns a StatisticsRepository that uses the given
// pool.
func NewStatisticsRepository(db *DB) *StatisticsRepository {
	return &StatisticsRepository{q: db.Pool}
}

func (r *StatisticsRepository) CountUsers(ctx context.Context, w timeframe.Window) (int64, error) {
	return r.count(ctx, countUsersSQL, w)
}

func (r *StatisticsRepository) CountOrders(ctx context.Context, w timeframe.Window) (int64, error) {
	return r.count(ctx, countOrdersSQL, w)
}

func (r *StatisticsRepository) count(ctx context.Context, sql string, w timeframe.Window) (int64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, sql, w.Start, w.End).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count")
	}
	return n, nil
}

func (r *StatisticsRepository) SumRevenue(ctx context.Context, w timeframe.Window) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := r.q.QueryRow(ctx, sumRevenueSQL, w.Start, w.End).Scan(&sum); err != nil {
		return decimal.Zero, errors.Wrap(err, "sum revenue")
	}
	return sum, nil
}

// TopProducts ranks by units or by sales value, ties broken by product id.
func (r *StatisticsRepository) TopProducts(ctx context.Context, w timeframe.Window, by statistics.RankBy, limit int) ([]statistics.ProductRank, error) {
	order := " ORDER BY units DESC, oi.product_id LIMIT $3"
	if by == statistics.BySales {
		order = " ORDER BY sales DESC, oi.product_id LIMIT $3"
	}

	rows, err := r.q.Query(ctx, topProductsSQL+order, w.Start, w.End, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query top products")
	}
	ranks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (statistics.ProductRank, error) {
		var p statistics.ProductRank
		err := row.Scan(&p.ProductID, &p.Name, &p.TotalUnits, &p.TotalSales)
		return p, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan top products")
	}
	return ranks, nil
}

func (r *StatisticsRepository) NewestCustomers(ctx context.Context, w timeframe.Window, limit int) ([]statistics.CustomerRank, error) {
	return r.customers(ctx, newestCustomersSQL, w, limit)
}

func (r *StatisticsRepository) TopCustomers(ctx context.Context, w timeframe.Window, limit int) ([]statistics.CustomerRank, error) {
	return r.customers(ctx, topCustomersSQL, w, limit)
}

func (r *StatisticsRepository) customers(ctx context.Context, sql string, w timeframe.Window, limit int) ([]statistics.CustomerRank, error) {
	rows, err := r.q.Query(ctx, sql, w.Start, w.End, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query customers")
	}
	ranks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (statistics.CustomerRank, error) {
		var c statistics.CustomerRank
		err := row.Scan(&c.CustomerID, &c.Name, &c.Email, &c.JoinedAt, &c.OrderCount, &c.TotalValue)
		return c, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan customers")
	}
	return ranks, nil
}

func (r *StatisticsRepository) Sales(ctx context.Context, w timeframe.Window) ([]statistics.Sale, error) {
	rows, err := r.q.Query(ctx, salesSQL, w.Start, w.End)
	if err != nil {
		return nil, errors.Wrap(err, "query sales")
	}
	sales, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (statistics.Sale, error) {
		var s statistics.Sale
		err := row.Scan(&s.At, &s.Total, &s.Units)
		return s, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan sales")
	}
	return sales, nil
}
