package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/internal/domain/statistics"
	"github.com/xenking/bistro/internal/domain/timeframe"
	"github.com/xenking/bistro/internal/domain/voucher"
)

var base = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.PutUser(User{ID: "u1", Name: "Lan", Email: "lan@example.com", Role: auth.RoleCustomer, CreatedAt: base})
	s.PutUser(User{ID: "u2", Name: "Hoa", Email: "hoa@example.com", Role: auth.RoleCustomer, CreatedAt: base.Add(time.Hour)})
	s.PutUser(User{ID: "s1", Name: "Minh", Email: "minh@example.com", Role: auth.RoleStaff, CreatedAt: base})
	s.PutProduct(product.Product{ID: "pho", Name: "Pho Bo", Price: decimal.NewFromInt(45000), Available: true})
	s.PutProduct(product.Product{ID: "tea", Name: "Tra Da", Price: decimal.NewFromInt(5000), Available: true})
	require.NoError(t, s.Create(context.Background(), &voucher.Voucher{
		ID: "v1", Code: "TEN", Type: voucher.Percent, Amount: decimal.NewFromInt(10),
		UsageLimit: 2, Active: true, CreatedAt: base,
	}))
	return s
}

func insert(t *testing.T, s *Store, o order.Order) {
	t.Helper()
	require.NoError(t, s.InTx(context.Background(), func(tx order.Tx) error {
		return tx.Insert(context.Background(), &o)
	}))
}

func item(id string, qty int, price int64) order.Item {
	return order.Item{ProductID: id, Name: id, Quantity: qty, Price: decimal.NewFromInt(price)}
}

func TestStore_InTxDiscardsOnError(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx order.Tx) error {
		require.NoError(t, tx.Insert(ctx, &order.Order{ID: "o1", CustomerID: "u1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetByID(ctx, "o1")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestStore_TxReads(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx order.Tx) error {
		ps, err := tx.Products().GetByIDs(ctx, []string{"pho", "nope"})
		require.NoError(t, err)
		assert.Len(t, ps, 1)

		v, err := tx.Vouchers().FindByCode(ctx, " ten ")
		require.NoError(t, err)
		assert.Equal(t, "v1", v.ID)

		_, err = tx.Vouchers().FindByID(ctx, "missing")
		assert.ErrorIs(t, err, voucher.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_VoucherUsage(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	insert(t, s, order.Order{ID: "o1", CustomerID: "u1", VoucherID: "v1", Status: order.Pending, CreatedAt: base})
	insert(t, s, order.Order{ID: "o2", CustomerID: "u2", VoucherID: "v1", Status: order.Pending, CreatedAt: base})

	n, err := s.CountUsage(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.UpdateStatus(ctx, order.StatusChange{OrderID: "o2", Status: order.Rejected, RejectionReason: "closed"})
	require.NoError(t, err)

	n, err = s.CountUsage(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CountCustomerUsage(ctx, "v1", "u2")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_VoucherAdmin(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	err := s.Create(ctx, &voucher.Voucher{ID: "v2", Code: "ten", CreatedAt: base})
	require.ErrorIs(t, err, voucher.ErrCodeTaken)

	require.NoError(t, s.Create(ctx, &voucher.Voucher{ID: "v2", Code: "FIVE", Active: true, CreatedAt: base.Add(time.Minute)}))
	require.ErrorIs(t, s.Update(ctx, &voucher.Voucher{ID: "v2", Code: "TEN"}), voucher.ErrCodeTaken)
	require.ErrorIs(t, s.Update(ctx, &voucher.Voucher{ID: "v9", Code: "X"}), voucher.ErrNotFound)

	require.NoError(t, s.Deactivate(ctx, "v1"))
	require.ErrorIs(t, s.Deactivate(ctx, "v9"), voucher.ErrNotFound)

	vs, total, err := s.List(ctx, voucher.ListParams{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "FIVE", vs[0].Code)

	vs, total, err = s.List(ctx, voucher.ListParams{Limit: 10, ActiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "v2", vs[0].ID)
}

func TestStore_ListOrders(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	insert(t, s, order.Order{ID: "o1", CustomerID: "u1", VoucherID: "v1", Total: decimal.NewFromInt(10), Status: order.Pending, CreatedAt: base})
	insert(t, s, order.Order{ID: "o2", CustomerID: "u1", Total: decimal.NewFromInt(30), Status: order.Done, CreatedAt: base.Add(time.Minute)})
	insert(t, s, order.Order{ID: "o3", CustomerID: "u2", Total: decimal.NewFromInt(20), Status: order.Pending, CreatedAt: base.Add(2 * time.Minute)})

	repo := s.Orders()

	got, total, err := repo.List(ctx, order.Filter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"o3", "o2", "o1"}, ids(got))
	assert.Equal(t, "TEN", got[2].VoucherCode)

	got, _, err = repo.List(ctx, order.Filter{SortBy: order.SortTotal, Ascending: true, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o3", "o2"}, ids(got))

	got, total, err = repo.List(ctx, order.Filter{CustomerID: "u1", Statuses: []order.Status{order.Pending}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"o1"}, ids(got))

	from := base.Add(30 * time.Second)
	got, total, err = repo.List(ctx, order.Filter{CreatedFrom: &from, Skip: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"o2"}, ids(got))
}

func TestStore_MarkPurchased(t *testing.T) {
	s := seeded(t)
	s.AddCartItem("u1", "pho")
	s.AddCartItem("u1", "tea")

	require.NoError(t, s.MarkPurchased(context.Background(), "u1", []string{"pho"}))
	assert.Equal(t, []string{"tea"}, s.ActiveCartItems("u1"))
}

func TestStore_Statistics(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	w := timeframe.Window{Start: base, End: base.Add(24 * time.Hour)}

	insert(t, s, order.Order{ID: "o1", CustomerID: "u1", Total: decimal.NewFromInt(95000), Status: order.Done, CreatedAt: base,
		Items: []order.Item{item("pho", 2, 45000), item("tea", 1, 5000)}})
	insert(t, s, order.Order{ID: "o2", CustomerID: "u2", Total: decimal.NewFromInt(25000), Status: order.Pending, CreatedAt: base.Add(time.Hour),
		Items: []order.Item{item("tea", 5, 5000)}})
	insert(t, s, order.Order{ID: "o3", CustomerID: "u2", Total: decimal.NewFromInt(45000), Status: order.Rejected, CreatedAt: base.Add(time.Hour),
		Items: []order.Item{item("pho", 1, 45000)}, RejectionReason: "closed"})

	users, err := s.CountUsers(ctx, w)
	require.NoError(t, err)
	assert.EqualValues(t, 2, users)

	orders, err := s.CountOrders(ctx, w)
	require.NoError(t, err)
	assert.EqualValues(t, 3, orders)

	revenue, err := s.SumRevenue(ctx, w)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(95000).Equal(revenue))

	byUnits, err := s.TopProducts(ctx, w, statistics.ByUnits, 5)
	require.NoError(t, err)
	require.Len(t, byUnits, 2)
	assert.Equal(t, "tea", byUnits[0].ProductID)
	assert.EqualValues(t, 6, byUnits[0].TotalUnits)

	bySales, err := s.TopProducts(ctx, w, statistics.BySales, 1)
	require.NoError(t, err)
	require.Len(t, bySales, 1)
	assert.Equal(t, "pho", bySales[0].ProductID)

	newest, err := s.NewestCustomers(ctx, w, 5)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, "u2", newest[0].CustomerID)
	assert.EqualValues(t, 1, newest[0].OrderCount)

	top, err := s.TopCustomers(ctx, w, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "u1", top[0].CustomerID)

	sales, err := s.Sales(ctx, w)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.EqualValues(t, 3, sales[0].Units)
}

func ids(orders []order.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

type nopNotifier struct{}

func (nopNotifier) OrderPlaced(context.Context, *order.Order) error   { return nil }
func (nopNotifier) StatusChanged(context.Context, *order.Order) error { return nil }

func TestStore_ConcurrentCheckoutsRespectVoucherLimit(t *testing.T) {
	const customers = 50

	s := New()
	s.PutProduct(product.Product{ID: "pho", Name: "Pho Bo", Price: decimal.NewFromInt(45000), Available: true})
	require.NoError(t, s.Create(context.Background(), &voucher.Voucher{
		ID: "once", Code: "ONCE", Type: voucher.Percent, Amount: decimal.NewFromInt(10),
		UsageLimit: 1, Active: true, CreatedAt: base,
	}))
	for i := range customers {
		s.PutUser(User{ID: fmt.Sprintf("c%d", i), Role: auth.RoleCustomer, CreatedAt: base})
	}

	zone, err := timeframe.LoadZone(timeframe.DefaultZone)
	require.NoError(t, err)
	svc, err := order.NewService(s.Orders(), voucher.NewValidator(s), s, nopNotifier{}, order.Config{
		Zone:   zone,
		Window: order.AdmissionWindow{CloseHour: 23, CloseMinute: 59, DeliveryCloseHour: 23, DeliveryCloseMinute: 59},
	})
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, customers)
	)
	for i := range customers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			p := auth.NewPrincipal(fmt.Sprintf("c%d", i), auth.RoleCustomer)
			_, errs[i] = svc.Checkout(context.Background(), p, order.CheckoutRequest{
				Name:      "Lan",
				VoucherID: "once",
				Items:     []pricing.Item{{ProductID: "pho", Quantity: 1}},
			})
		}()
	}
	close(start)
	wg.Wait()

	var placed int
	for _, err := range errs {
		if err == nil {
			placed++
			continue
		}
		assert.ErrorIs(t, err, voucher.ErrExhausted)
	}
	assert.Equal(t, 1, placed)

	usage, err := s.CountUsage(context.Background(), "once")
	require.NoError(t, err)
	assert.Equal(t, 1, usage)
}
