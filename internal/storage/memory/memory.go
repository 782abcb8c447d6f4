// Package memory implements the storage ports in process memory. It backs
// local development and handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/internal/domain/statistics"
	"github.com/xenking/bistro/internal/domain/voucher"
)

// User is an account known to the store.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      auth.Role
	CreatedAt time.Time
}

type cartItem struct {
	productID string
	status    string
}

var (
	_ product.Reader        = (*Store)(nil)
	_ voucher.Repository    = (*Store)(nil)
	_ order.Repository      = ordersView{}
	_ order.CartResetter    = (*Store)(nil)
	_ statistics.Repository = (*Store)(nil)
)

// Store holds every table in maps guarded by one mutex. Transactions hold
// the mutex for their whole duration.
type Store struct {
	mu       sync.Mutex
	users    map[string]User
	products map[string]product.Product
	vouchers map[string]voucher.Voucher
	orders   map[string]order.Order
	carts    map[string][]cartItem
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:    map[string]User{},
		products: map[string]product.Product{},
		vouchers: map[string]voucher.Voucher{},
		orders:   map[string]order.Order{},
		carts:    map[string][]cartItem{},
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = u
}

// PutProduct inserts or replaces a catalog entry.
func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// AddCartItem puts an active line into the customer's cart.
func (s *Store) AddCartItem(customerID, productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[customerID] = append(s.carts[customerID], cartItem{productID: productID, status: "Active"})
}

// ActiveCartItems lists product ids still active in the customer's cart.
func (s *Store) ActiveCartItems(customerID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, it := range s.carts[customerID] {
		if it.status == "Active" {
			out = append(out, it.productID)
		}
	}
	return out
}

// GetByIDs returns the known products among ids.
func (s *Store) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.productsByIDs(ids), nil
}

func (s *Store) productsByIDs(ids []string) []product.Product {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// MarkPurchased flips active cart lines of productIDs to Purchased.
func (s *Store) MarkPurchased(_ context.Context, customerID string, productIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		want[id] = struct{}{}
	}
	for i, it := range s.carts[customerID] {
		if _, ok := want[it.productID]; ok && it.status == "Active" {
			s.carts[customerID][i].status = "Purchased"
		}
	}
	return nil
}

func sortedOrders(m map[string]order.Order) []order.Order {
	out := make([]order.Order, 0, len(m))
	for _, o := range m {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func copyOrder(o order.Order) order.Order {
	o.Items = append([]order.Item(nil), o.Items...)
	return o
}

func lineTotal(it order.Item) decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

func equalFoldCode(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
