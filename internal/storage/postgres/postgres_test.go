//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/internal/domain/statistics"
	"github.com/xenking/bistro/internal/domain/timeframe"
	"github.com/xenking/bistro/internal/domain/voucher"
)

type StorageSuite struct {
	suite.Suite

	ctx       context.Context
	container *tcpostgres.PostgresContainer
	db        *DB

	customer string
	staff    string
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupSuite() {
	s.ctx = context.Background()

	var err error
	s.container, err = tcpostgres.Run(s.ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("bistro"),
		tcpostgres.WithUsername("bistro"),
		tcpostgres.WithPassword("bistro"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	s.Require().NoError(err)

	dsn, err := s.container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.Require().NoError(RunMigrations(dsn))
	// A second run finds nothing to apply.
	s.Require().NoError(RunMigrations(dsn))

	s.db, err = Open(s.ctx, dsn)
	s.Require().NoError(err)
}

func (s *StorageSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		s.NoError(s.container.Terminate(s.ctx))
	}
}

func (s *StorageSuite) SetupTest() {
	_, err := s.db.Pool.Exec(s.ctx,
		"TRUNCATE cart_items, order_items, orders, vouchers, products, users CASCADE")
	s.Require().NoError(err)

	users := NewUserRepository(s.db)
	s.customer = uuid.NewString()
	s.staff = uuid.NewString()
	s.Require().NoError(users.Upsert(s.ctx, User{ID: s.customer, Name: "Lan", Email: "lan@example.com", Role: auth.RoleCustomer}))
	s.Require().NoError(users.Upsert(s.ctx, User{ID: s.staff, Name: "Minh", Email: "minh@example.com", Role: auth.RoleStaff}))

	products := NewProductRepository(s.db)
	for _, p := range []product.Product{
		{ID: "pho", Name: "Pho Bo", Price: decimal.NewFromInt(45000), Available: true},
		{ID: "banh-mi", Name: "Banh Mi", Price: decimal.NewFromInt(30000), Available: true},
		{ID: "che", Name: "Che Ba Mau", Price: decimal.NewFromInt(20000), Available: false},
	} {
		s.Require().NoError(products.Upsert(s.ctx, p))
	}
}

func (s *StorageSuite) newVoucher(code string, limit int) *voucher.Voucher {
	v := &voucher.Voucher{
		ID:         uuid.NewString(),
		Code:       code,
		Type:       voucher.Percent,
		Amount:     decimal.NewFromInt(10),
		UsageLimit: limit,
		Active:     true,
		CreatedAt:  time.Now(),
	}
	s.Require().NoError(NewVoucherRepository(s.db).Create(s.ctx, v))
	return v
}

func (s *StorageSuite) placeOrder(voucherID string, items ...order.Item) *order.Order {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	o := &order.Order{
		ID:         uuid.NewString(),
		CustomerID: s.customer,
		VoucherID:  voucherID,
		Name:       "Lan",
		Total:      total,
		Status:     order.Pending,
		Items:      items,
		CreatedAt:  time.Now(),
	}
	err := NewOrderRepository(s.db).InTx(s.ctx, func(tx order.Tx) error {
		return tx.Insert(s.ctx, o)
	})
	s.Require().NoError(err)
	return o
}

func (s *StorageSuite) TestProducts_GetByIDs() {
	got, err := NewProductRepository(s.db).GetByIDs(s.ctx, []string{"pho", "che", "missing"})
	s.Require().NoError(err)
	s.Require().Len(got, 2)

	byID := map[string]product.Product{}
	for _, p := range got {
		byID[p.ID] = p
	}
	s.True(byID["pho"].Available)
	s.True(decimal.NewFromInt(45000).Equal(byID["pho"].Price))
	s.False(byID["che"].Available)
}

func (s *StorageSuite) TestVouchers_CreateAndFind() {
	repo := NewVoucherRepository(s.db)
	v := s.newVoucher("SUMMER10", 5)

	got, err := repo.FindByCode(s.ctx, " summer10 ")
	s.Require().NoError(err)
	s.Equal(v.ID, got.ID)
	s.Equal(voucher.Percent, got.Type)
	s.Nil(got.ExpiresAt)

	dup := *v
	dup.ID = uuid.NewString()
	s.ErrorIs(repo.Create(s.ctx, &dup), voucher.ErrCodeTaken)

	_, err = repo.FindByID(s.ctx, uuid.NewString())
	s.ErrorIs(err, voucher.ErrNotFound)
}

func (s *StorageSuite) TestVouchers_UpdateDeactivateList() {
	repo := NewVoucherRepository(s.db)
	v := s.newVoucher("A1", 5)
	s.newVoucher("B2", 5)

	exp := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	v.Type = voucher.FixedAmount
	v.Amount = decimal.NewFromInt(15000)
	v.ExpiresAt = &exp
	s.Require().NoError(repo.Update(s.ctx, v))

	got, err := repo.FindByID(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(voucher.FixedAmount, got.Type)
	s.Require().NotNil(got.ExpiresAt)
	s.True(exp.Equal(*got.ExpiresAt))

	s.Require().NoError(repo.Deactivate(s.ctx, v.ID))
	s.ErrorIs(repo.Deactivate(s.ctx, uuid.NewString()), voucher.ErrNotFound)

	all, total, err := repo.List(s.ctx, voucher.ListParams{Limit: 10})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Len(all, 2)

	active, total, err := repo.List(s.ctx, voucher.ListParams{Limit: 10, ActiveOnly: true})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("B2", active[0].Code)
}

func (s *StorageSuite) TestVouchers_UsageIgnoresRejected() {
	v := s.newVoucher("ONCE", 1)
	o := s.placeOrder(v.ID, order.Item{ProductID: "pho", Name: "Pho Bo", Quantity: 1, Price: decimal.NewFromInt(45000)})

	repo := NewVoucherRepository(s.db)
	n, err := repo.CountUsage(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(1, n)
	n, err = repo.CountCustomerUsage(s.ctx, v.ID, s.customer)
	s.Require().NoError(err)
	s.Equal(1, n)

	affected, err := NewOrderRepository(s.db).UpdateStatus(s.ctx, order.StatusChange{
		OrderID:         o.ID,
		Status:          order.Rejected,
		RejectionReason: "out of stock",
		StaffID:         s.staff,
		At:              time.Now(),
	})
	s.Require().NoError(err)
	s.EqualValues(1, affected)

	n, err = repo.CountUsage(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *StorageSuite) TestOrders_InsertAndGet() {
	v := s.newVoucher("TEN", 5)
	placed := s.placeOrder(v.ID,
		order.Item{ProductID: "pho", Name: "Pho Bo", Quantity: 2, Price: decimal.NewFromInt(45000)},
		order.Item{ProductID: "banh-mi", Name: "Banh Mi", Quantity: 1, Price: decimal.NewFromInt(30000)},
	)

	got, err := NewOrderRepository(s.db).GetByID(s.ctx, placed.ID)
	s.Require().NoError(err)
	s.Equal(s.customer, got.CustomerID)
	s.Equal("TEN", got.VoucherCode)
	s.Equal(order.Pending, got.Status)
	s.Empty(got.StaffID)
	s.Require().Len(got.Items, 2)
	s.True(decimal.NewFromInt(120000).Equal(got.Total))

	_, err = NewOrderRepository(s.db).GetByID(s.ctx, uuid.NewString())
	s.ErrorIs(err, order.ErrNotFound)
}

func (s *StorageSuite) TestOrders_RollbackOnError() {
	id := uuid.NewString()
	boom := errors.New("boom")
	err := NewOrderRepository(s.db).InTx(s.ctx, func(tx order.Tx) error {
		s.Require().NoError(tx.Insert(s.ctx, &order.Order{
			ID: id, CustomerID: s.customer, Name: "Lan", Total: decimal.Zero, Status: order.Pending,
		}))
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = NewOrderRepository(s.db).GetByID(s.ctx, id)
	s.ErrorIs(err, order.ErrNotFound)
}

func (s *StorageSuite) TestOrders_TxReads() {
	v := s.newVoucher("LOCK", 1)
	err := NewOrderRepository(s.db).InTx(s.ctx, func(tx order.Tx) error {
		got, err := tx.Vouchers().FindByID(s.ctx, v.ID)
		s.Require().NoError(err)
		s.Equal(v.Code, got.Code)

		prods, err := tx.Products().GetByIDs(s.ctx, []string{"pho"})
		s.Require().NoError(err)
		s.Len(prods, 1)
		return nil
	})
	s.Require().NoError(err)
}

func (s *StorageSuite) TestOrders_ConcurrentCheckoutsRespectVoucherLimit() {
	const customers = 10

	v := s.newVoucher("ONCE", 1)
	users := NewUserRepository(s.db)
	ids := make([]string, customers)
	for i := range ids {
		ids[i] = uuid.NewString()
		s.Require().NoError(users.Upsert(s.ctx, User{
			ID: ids[i], Name: "Guest", Email: fmt.Sprintf("guest%d@example.com", i), Role: auth.RoleCustomer,
		}))
	}

	zone, err := timeframe.LoadZone(timeframe.DefaultZone)
	s.Require().NoError(err)
	svc, err := order.NewService(
		NewOrderRepository(s.db),
		voucher.NewValidator(NewVoucherRepository(s.db)),
		NewCartRepository(s.db),
		nopNotifier{},
		order.Config{
			Zone:   zone,
			Window: order.AdmissionWindow{CloseHour: 23, CloseMinute: 59, DeliveryCloseHour: 23, DeliveryCloseMinute: 59},
		},
	)
	s.Require().NoError(err)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, customers)
	)
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Checkout(s.ctx, auth.NewPrincipal(id, auth.RoleCustomer), order.CheckoutRequest{
				Name:      "Guest",
				VoucherID: v.ID,
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
		s.ErrorIs(err, voucher.ErrExhausted)
	}
	s.Equal(1, placed)

	usage, err := NewVoucherRepository(s.db).CountUsage(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(1, usage)
}

func (s *StorageSuite) TestInvalidIDsMatchNothing() {
	orders := NewOrderRepository(s.db)
	vouchers := NewVoucherRepository(s.db)

	_, err := orders.GetByID(s.ctx, "abc")
	s.ErrorIs(err, order.ErrNotFound)

	n, err := orders.UpdateStatus(s.ctx, order.StatusChange{OrderID: "abc", Status: order.Done, StaffID: s.staff, At: time.Now()})
	s.Require().NoError(err)
	s.Zero(n)

	for _, f := range []order.Filter{{CustomerID: "abc"}, {VoucherID: "abc"}, {StaffID: "abc"}} {
		f, err := f.Normalize()
		s.Require().NoError(err)
		page, total, err := orders.List(s.ctx, f)
		s.Require().NoError(err)
		s.Zero(total)
		s.Empty(page)
	}

	_, err = vouchers.FindByID(s.ctx, "abc")
	s.ErrorIs(err, voucher.ErrNotFound)
	s.ErrorIs(vouchers.Deactivate(s.ctx, "abc"), voucher.ErrNotFound)
	s.ErrorIs(vouchers.Update(s.ctx, &voucher.Voucher{ID: "abc", Code: "X", Type: voucher.Percent,
		Amount: decimal.NewFromInt(5), UsageLimit: 1}), voucher.ErrNotFound)

	usage, err := vouchers.CountCustomerUsage(s.ctx, uuid.NewString(), "cust-1")
	s.Require().NoError(err)
	s.Zero(usage)

	s.NoError(NewCartRepository(s.db).MarkPurchased(s.ctx, "cust-1", []string{"pho"}))
}

func (s *StorageSuite) TestOrders_InsertUnknownCustomer() {
	for _, customer := range []string{"cust-1", uuid.NewString()} {
		err := NewOrderRepository(s.db).InTx(s.ctx, func(tx order.Tx) error {
			return tx.Insert(s.ctx, &order.Order{
				ID: uuid.NewString(), CustomerID: customer, Name: "Ghost",
				Total: decimal.Zero, Status: order.Pending,
			})
		})
		s.ErrorIs(err, auth.ErrUnauthenticated, customer)
	}

	n, err := NewOrderRepository(s.db).UpdateStatus(s.ctx, order.StatusChange{
		OrderID: s.placeOrder("").ID, Status: order.Processing, StaffID: uuid.NewString(), At: time.Now(),
	})
	s.ErrorIs(err, auth.ErrUnauthenticated)
	s.Zero(n)
}

type nopNotifier struct{}

func (nopNotifier) OrderPlaced(context.Context, *order.Order) error   { return nil }
func (nopNotifier) StatusChanged(context.Context, *order.Order) error { return nil }

func (s *StorageSuite) TestOrders_ListAndUpdateStatus() {
	repo := NewOrderRepository(s.db)
	item := order.Item{ProductID: "pho", Name: "Pho Bo", Quantity: 1, Price: decimal.NewFromInt(45000)}
	first := s.placeOrder("", item)
	s.placeOrder("", item, order.Item{ProductID: "banh-mi", Name: "Banh Mi", Quantity: 3, Price: decimal.NewFromInt(30000)})

	n, err := repo.UpdateStatus(s.ctx, order.StatusChange{
		OrderID: first.ID, Status: order.Done, StaffID: s.staff, At: time.Now(),
	})
	s.Require().NoError(err)
	s.EqualValues(1, n)

	n, err = repo.UpdateStatus(s.ctx, order.StatusChange{OrderID: uuid.NewString(), Status: order.Done, At: time.Now()})
	s.Require().NoError(err)
	s.Zero(n)

	f, err := order.Filter{Statuses: []order.Status{order.Done}}.Normalize()
	s.Require().NoError(err)
	done, total, err := repo.List(s.ctx, f)
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal(first.ID, done[0].ID)
	s.Equal(s.staff, done[0].StaffID)
	s.Len(done[0].Items, 1)

	f, err = order.Filter{CustomerID: s.customer, SortBy: order.SortTotal, Limit: 1}.Normalize()
	s.Require().NoError(err)
	page, total, err := repo.List(s.ctx, f)
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Require().Len(page, 1)
	s.True(decimal.NewFromInt(135000).Equal(page[0].Total))
}

func (s *StorageSuite) TestCart_MarkPurchased() {
	_, err := s.db.Pool.Exec(s.ctx,
		`INSERT INTO cart_items (id, user_id, product_id, quantity) VALUES ($1, $2, 'pho', 1), ($3, $2, 'banh-mi', 1)`,
		uuid.NewString(), s.customer, uuid.NewString())
	s.Require().NoError(err)

	s.Require().NoError(NewCartRepository(s.db).MarkPurchased(s.ctx, s.customer, []string{"pho"}))

	var active int
	s.Require().NoError(s.db.Pool.QueryRow(s.ctx,
		`SELECT count(*) FROM cart_items WHERE status = 'Active'`).Scan(&active))
	s.Equal(1, active)
}

func (s *StorageSuite) TestStatistics() {
	o := s.placeOrder("",
		order.Item{ProductID: "pho", Name: "Pho Bo", Quantity: 2, Price: decimal.NewFromInt(45000)},
		order.Item{ProductID: "banh-mi", Name: "Banh Mi", Quantity: 3, Price: decimal.NewFromInt(30000)},
	)
	_, err := NewOrderRepository(s.db).UpdateStatus(s.ctx, order.StatusChange{
		OrderID: o.ID, Status: order.Done, StaffID: s.staff, At: time.Now(),
	})
	s.Require().NoError(err)
	s.placeOrder("", order.Item{ProductID: "pho", Name: "Pho Bo", Quantity: 1, Price: decimal.NewFromInt(45000)})

	w := timeframe.Window{Start: time.Now().Add(-time.Hour), End: time.Now().Add(time.Hour)}
	repo := NewStatisticsRepository(s.db)

	users, err := repo.CountUsers(s.ctx, w)
	s.Require().NoError(err)
	s.EqualValues(1, users)

	orders, err := repo.CountOrders(s.ctx, w)
	s.Require().NoError(err)
	s.EqualValues(2, orders)

	revenue, err := repo.SumRevenue(s.ctx, w)
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(180000).Equal(revenue), revenue.String())

	byUnits, err := repo.TopProducts(s.ctx, w, statistics.ByUnits, 5)
	s.Require().NoError(err)
	s.Require().Len(byUnits, 2)
	s.Equal("banh-mi", byUnits[0].ProductID)
	s.EqualValues(3, byUnits[0].TotalUnits)

	bySales, err := repo.TopProducts(s.ctx, w, statistics.BySales, 1)
	s.Require().NoError(err)
	s.Require().Len(bySales, 1)
	s.Equal("pho", bySales[0].ProductID)

	top, err := repo.TopCustomers(s.ctx, w, 5)
	s.Require().NoError(err)
	s.Require().Len(top, 1)
	s.EqualValues(2, top[0].OrderCount)

	newest, err := repo.NewestCustomers(s.ctx, w, 5)
	s.Require().NoError(err)
	s.Require().Len(newest, 1)
	s.Equal(s.customer, newest[0].CustomerID)

	sales, err := repo.Sales(s.ctx, w)
	s.Require().NoError(err)
	s.Require().Len(sales, 1)
	s.EqualValues(5, sales[0].Units)
}
