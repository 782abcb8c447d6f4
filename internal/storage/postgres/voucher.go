package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/voucher"
)

var voucherColumns = []string{
	"id::text", "code", "discount_type::text", "discount_amount",
	"expired_at", "total_usage_limit", "is_active", "created_at",
}

var _ voucher.Repository = (*VoucherRepository)(nil)

// VoucherRepository implements voucher.Repository. Inside a checkout
// transaction it locks every voucher row it reads.
type VoucherRepository struct {
	q    querier
	qb   squirrel.StatementBuilderType
	lock bool
}

// NewVoucherRepository returns a VoucherRepository that uses the given pool.
func NewVoucherRepository(db *DB) *VoucherRepository {
	return &VoucherRepository{q: db.Pool, qb: db.qb}
}

// FindByCode looks up a voucher by its normalized code.
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (*voucher.Voucher, error) {
	return r.findOne(ctx, squirrel.Eq{"code": voucher.NormalizeCode(code)})
}

// FindByID looks up a voucher by id.
func (r *VoucherRepository) FindByID(ctx context.Context, id string) (*voucher.Voucher, error) {
	if !isUUID(id) {
		return nil, voucher.ErrNotFound
	}
	return r.findOne(ctx, squirrel.Eq{"id": id})
}

func (r *VoucherRepository) findOne(ctx context.Context, where squirrel.Eq) (*voucher.Voucher, error) {
	q := r.qb.Select(voucherColumns...).From("vouchers").Where(where)
	if r.lock {
		q = q.Suffix("FOR UPDATE")
	}

	rows, err := query(ctx, r.q, q)
	if err != nil {
		return nil, errors.Wrap(err, "query voucher")
	}
	v, err := pgx.CollectExactlyOneRow(rows, scanVoucher)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, voucher.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan voucher")
	}
	return &v, nil
}

// CountUsage counts non-rejected orders referencing the voucher.
func (r *VoucherRepository) CountUsage(ctx context.Context, voucherID string) (int, error) {
	if !isUUID(voucherID) {
		return 0, nil
	}
	return r.countOrders(ctx, squirrel.Eq{"voucher_id": voucherID})
}

// CountCustomerUsage counts the customer's non-rejected orders referencing
// the voucher.
func (r *VoucherRepository) CountCustomerUsage(ctx context.Context, voucherID, customerID string) (int, error) {
	if !isUUID(voucherID) || !isUUID(customerID) {
		return 0, nil
	}
	return r.countOrders(ctx, squirrel.Eq{"voucher_id": voucherID, "customer_id": customerID})
}

func (r *VoucherRepository) countOrders(ctx context.Context, where squirrel.Eq) (int, error) {
	sql, args, err := r.qb.
		Select("count(*)").
		From("orders").
		Where(where).
		Where(squirrel.NotEq{"status": string(order.Rejected)}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "build query")
	}

	var n int
	if err := r.q.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count orders")
	}
	return n, nil
}

// Create inserts v. A duplicate code yields voucher.ErrCodeTaken.
func (r *VoucherRepository) Create(ctx context.Context, v *voucher.Voucher) error {
	_, err := exec(ctx, r.q, r.qb.
		Insert("vouchers").
		Columns("id", "code", "discount_type", "discount_amount",
			"expired_at", "total_usage_limit", "is_active", "created_at").
		Values(v.ID, v.Code, string(v.Type), v.Amount,
			v.ExpiresAt, v.UsageLimit, v.Active, v.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return voucher.ErrCodeTaken
		}
		return errors.Wrapf(err, "insert voucher %q", v.Code)
	}
	return nil
}

// Update replaces the editable fields of v.
func (r *VoucherRepository) Update(ctx context.Context, v *voucher.Voucher) error {
	if !isUUID(v.ID) {
		return voucher.ErrNotFound
	}
	tag, err := exec(ctx, r.q, r.qb.
		Update("vouchers").
		SetMap(map[string]any{
			"code":              v.Code,
			"discount_type":     string(v.Type),
			"discount_amount":   v.Amount,
			"expired_at":        v.ExpiresAt,
			"total_usage_limit": v.UsageLimit,
		}).
		Where(squirrel.Eq{"id": v.ID}))
	if err != nil {
		if isUniqueViolation(err) {
			return voucher.ErrCodeTaken
		}
		return errors.Wrapf(err, "update voucher %q", v.ID)
	}
	if tag.RowsAffected() == 0 {
		return voucher.ErrNotFound
	}
	return nil
}

// Deactivate clears the active flag of a voucher.
func (r *VoucherRepository) Deactivate(ctx context.Context, id string) error {
	if !isUUID(id) {
		return voucher.ErrNotFound
	}
	tag, err := exec(ctx, r.q, r.qb.
		Update("vouchers").
		Set("is_active", false).
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return errors.Wrapf(err, "deactivate voucher %q", id)
	}
	if tag.RowsAffected() == 0 {
		return voucher.ErrNotFound
	}
	return nil
}

// List returns a page of vouchers, newest first, and the total match count.
func (r *VoucherRepository) List(ctx context.Context, params voucher.ListParams) ([]voucher.Voucher, int, error) {
	where := squirrel.And{}
	if params.ActiveOnly {
		where = append(where, squirrel.Eq{"is_active": true})
	}

	sql, args, err := r.qb.Select("count(*)").From("vouchers").Where(where).ToSql()
	if err != nil {
		return nil, 0, errors.Wrap(err, "build query")
	}
	var total int
	if err := r.q.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count vouchers")
	}

	rows, err := query(ctx, r.q, r.qb.
		Select(voucherColumns...).
		From("vouchers").
		Where(where).
		OrderBy("created_at DESC", "code").
		Offset(uint64(params.Skip)).
		Limit(uint64(params.Limit)))
	if err != nil {
		return nil, 0, errors.Wrap(err, "query vouchers")
	}
	vs, err := pgx.CollectRows(rows, scanVoucher)
	if err != nil {
		return nil, 0, errors.Wrap(err, "scan vouchers")
	}
	return vs, total, nil
}

// Upsert inserts v or, when its code exists, overwrites the stored voucher
// and reactivates it. It is used by bulk imports.
func (r *VoucherRepository) Upsert(ctx context.Context, v *voucher.Voucher) error {
	_, err := exec(ctx, r.q, r.qb.
		Insert("vouchers").
		Columns("id", "code", "discount_type", "discount_amount",
			"expired_at", "total_usage_limit", "is_active", "created_at").
		Values(v.ID, v.Code, string(v.Type), v.Amount,
			v.ExpiresAt, v.UsageLimit, true, v.CreatedAt).
		Suffix("ON CONFLICT (code) DO UPDATE SET "+
			"discount_type = EXCLUDED.discount_type, "+
			"discount_amount = EXCLUDED.discount_amount, "+
			"expired_at = EXCLUDED.expired_at, "+
			"total_usage_limit = EXCLUDED.total_usage_limit, "+
			"is_active = TRUE"))
	if err != nil {
		return errors.Wrapf(err, "upsert voucher %q", v.Code)
	}
	return nil
}

func scanVoucher(row pgx.CollectableRow) (voucher.Voucher, error) {
	var (
		v         voucher.Voucher
		kind      string
		expiresAt *time.Time
	)
	err := row.Scan(&v.ID, &v.Code, &kind, &v.Amount,
		&expiresAt, &v.UsageLimit, &v.Active, &v.CreatedAt)
	v.Type = voucher.DiscountType(kind)
	v.ExpiresAt = expiresAt
	return v, err
}
