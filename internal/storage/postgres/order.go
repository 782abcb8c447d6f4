package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/internal/domain/voucher"
)

var orderColumns = []string{
	"o.id::text", "o.customer_id::text", "coalesce(o.voucher_id::text, '')",
	"coalesce(v.code, '')", "coalesce(o.staff_id::text, '')", "o.name",
	"o.delivery_address", "o.delivery_phone", "o.is_delivery", "o.note",
	"o.total_price", "o.status::text", "coalesce(o.rejection_reason, '')",
	"o.created_at", "o.updated_at",
}

var orderSortColumns = map[order.SortField]string{
	order.SortCreatedAt: "o.created_at",
	order.SortTotal:     "o.total_price",
	order.SortStatus:    "o.status",
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// InTx runs fn inside a transaction, committing only when fn succeeds.
func (r *OrderRepository) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(&orderTx{tx: tx, qb: r.db.qb}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// GetByID loads an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	if !isUUID(id) {
		return nil, order.ErrNotFound
	}
	rows, err := query(ctx, r.db.Pool, r.selectOrders().Where(squirrel.Eq{"o.id": id}))
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan order")
	}

	orders := []order.Order{o}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// List returns one page of orders matching f and the total match count.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	for _, id := range []string{f.CustomerID, f.VoucherID, f.StaffID} {
		if id != "" && !isUUID(id) {
			return []order.Order{}, 0, nil
		}
	}
	where := filterWhere(f)

	sql, args, err := r.db.qb.Select("count(*)").From("orders o").Where(where).ToSql()
	if err != nil {
		return nil, 0, errors.Wrap(err, "build query")
	}
	var total int
	if err := r.db.Pool.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}
	if total == 0 {
		return []order.Order{}, 0, nil
	}

	dir := " DESC"
	if f.Ascending {
		dir = " ASC"
	}
	col, ok := orderSortColumns[f.SortBy]
	if !ok {
		col = orderSortColumns[order.SortCreatedAt]
	}

	rows, err := query(ctx, r.db.Pool, r.selectOrders().
		Where(where).
		OrderBy(col+dir, "o.id").
		Offset(uint64(f.Skip)).
		Limit(uint64(f.Limit)))
	if err != nil {
		return nil, 0, errors.Wrap(err, "query orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, errors.Wrap(err, "scan orders")
	}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateStatus applies c and reports the number of rows affected.
func (r *OrderRepository) UpdateStatus(ctx context.Context, c order.StatusChange) (int64, error) {
	if !isUUID(c.OrderID) {
		return 0, nil
	}
	if c.StaffID != "" && !isUUID(c.StaffID) {
		return 0, auth.ErrUnauthenticated
	}
	tag, err := exec(ctx, r.db.Pool, r.db.qb.
		Update("orders").
		SetMap(map[string]any{
			"status":           string(c.Status),
			"rejection_reason": nullable(c.RejectionReason),
			"staff_id":         nullable(c.StaffID),
			"updated_at":       c.At,
		}).
		Where(squirrel.Eq{"id": c.OrderID}))
	if err != nil {
		if violatedConstraint(err) == "orders_staff_id_fkey" {
			return 0, auth.ErrUnauthenticated
		}
		return 0, errors.Wrapf(err, "update order %q", c.OrderID)
	}
	return tag.RowsAffected(), nil
}

func (r *OrderRepository) selectOrders() squirrel.SelectBuilder {
	return r.db.qb.
		Select(orderColumns...).
		From("orders o").
		LeftJoin("vouchers v ON v.id = o.voucher_id")
}

// loadItems fills Items of every order with a single query.
func (r *OrderRepository) loadItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := query(ctx, r.db.Pool, r.db.qb.
		Select("order_id::text", "product_id", "name", "quantity", "price").
		From("order_items").
		Where(squirrel.Eq{"order_id": ids}).
		OrderBy("order_id", "product_id"))
	if err != nil {
		return errors.Wrap(err, "query order items")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			it      order.Item
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.Quantity, &it.Price); err != nil {
			return errors.Wrap(err, "scan order item")
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return errors.Wrap(rows.Err(), "iterate order items")
}

func filterWhere(f order.Filter) squirrel.And {
	where := squirrel.And{}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, squirrel.Eq{"o.status": statuses})
	}
	if f.CustomerID != "" {
		where = append(where, squirrel.Eq{"o.customer_id": f.CustomerID})
	}
	if f.VoucherID != "" {
		where = append(where, squirrel.Eq{"o.voucher_id": f.VoucherID})
	}
	if f.StaffID != "" {
		where = append(where, squirrel.Eq{"o.staff_id": f.StaffID})
	}
	if f.CreatedFrom != nil {
		where = append(where, squirrel.GtOrEq{"o.created_at": *f.CreatedFrom})
	}
	if f.CreatedTo != nil {
		where = append(where, squirrel.LtOrEq{"o.created_at": *f.CreatedTo})
	}
	return where
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.VoucherID, &o.VoucherCode, &o.StaffID, &o.Name,
		&o.DeliveryAddress, &o.DeliveryPhone, &o.IsDelivery, &o.Note,
		&o.Total, &status, &o.RejectionReason, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}

// orderTx is the checkout view of a single transaction.
type orderTx struct {
	tx pgx.Tx
	qb squirrel.StatementBuilderType
}

func (t *orderTx) Products() product.Reader {
	return &ProductRepository{q: t.tx, qb: t.qb}
}

func (t *orderTx) Vouchers() voucher.Reader {
	return &VoucherRepository{q: t.tx, qb: t.qb, lock: true}
}

// Insert writes the order header and its items. A customer without an
// account row is reported as auth.ErrUnauthenticated.
func (t *orderTx) Insert(ctx context.Context, o *order.Order) error {
	if !isUUID(o.CustomerID) {
		return auth.ErrUnauthenticated
	}
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := exec(ctx, t.tx, t.qb.
		Insert("orders").
		Columns("id", "customer_id", "voucher_id", "name", "delivery_address",
			"delivery_phone", "is_delivery", "note", "total_price", "status",
			"created_at", "updated_at").
		Values(o.ID, o.CustomerID, nullable(o.VoucherID), o.Name, o.DeliveryAddress,
			o.DeliveryPhone, o.IsDelivery, o.Note, o.Total, string(o.Status),
			createdAt, createdAt))
	if err != nil {
		switch violatedConstraint(err) {
		case "orders_customer_id_fkey":
			return auth.ErrUnauthenticated
		case "orders_voucher_id_fkey":
			return voucher.ErrNotFound
		}
		return errors.Wrapf(err, "insert order %q", o.ID)
	}

	if len(o.Items) == 0 {
		return nil
	}
	items := t.qb.
		Insert("order_items").
		Columns("order_id", "product_id", "name", "price", "quantity")
	for _, it := range o.Items {
		items = items.Values(o.ID, it.ProductID, it.Name, it.Price, it.Quantity)
	}
	if _, err := exec(ctx, t.tx, items); err != nil {
		if isForeignKeyViolation(err) {
			return errors.Wrapf(product.ErrNotFound, "insert items of order %q", o.ID)
		}
		return errors.Wrapf(err, "insert items of order %q", o.ID)
	}
	return nil
}
