package memory

import (
	"context"
	"sort"

	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/internal/domain/voucher"
)

// InTx holds the store lock while fn runs. Inserts are staged and applied
// only when fn succeeds.
func (s *Store) InTx(_ context.Context, fn func(tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &storeTx{s: s}
	if err := fn(tx); err != nil {
		return err
	}
	for _, o := range tx.staged {
		s.orders[o.ID] = o
	}
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o = s.withVoucherCode(copyOrder(o))
	return &o, nil
}

// ListOrders is order.Repository's List. The name differs because Store
// also lists vouchers.
func (s *Store) ListOrders(_ context.Context, f order.Filter) ([]order.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make(map[order.Status]bool, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses[st] = true
	}

	var matched []order.Order
	for _, o := range sortedOrders(s.orders) {
		switch {
		case len(statuses) > 0 && !statuses[o.Status]:
		case f.CustomerID != "" && o.CustomerID != f.CustomerID:
		case f.VoucherID != "" && o.VoucherID != f.VoucherID:
		case f.StaffID != "" && o.StaffID != f.StaffID:
		case f.CreatedFrom != nil && o.CreatedAt.Before(*f.CreatedFrom):
		case f.CreatedTo != nil && o.CreatedAt.After(*f.CreatedTo):
		default:
			matched = append(matched, s.withVoucherCode(copyOrder(o)))
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less bool
		switch f.SortBy {
		case order.SortTotal:
			if a.Total.Equal(b.Total) {
				return false
			}
			less = a.Total.LessThan(b.Total)
		case order.SortStatus:
			if a.Status == b.Status {
				return false
			}
			less = a.Status < b.Status
		default:
			if a.CreatedAt.Equal(b.CreatedAt) {
				return false
			}
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if f.Ascending {
			return less
		}
		return !less
	})
	return page(matched, f.Skip, f.Limit), len(matched), nil
}

func (s *Store) UpdateStatus(_ context.Context, c order.StatusChange) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[c.OrderID]
	if !ok {
		return 0, nil
	}
	o.Status = c.Status
	o.RejectionReason = c.RejectionReason
	o.StaffID = c.StaffID
	o.UpdatedAt = c.At
	s.orders[o.ID] = o
	return 1, nil
}

func (s *Store) withVoucherCode(o order.Order) order.Order {
	if v, ok := s.vouchers[o.VoucherID]; ok {
		o.VoucherCode = v.Code
	}
	return o
}

// Orders adapts the store to order.Repository.
func (s *Store) Orders() order.Repository {
	return ordersView{s}
}

type ordersView struct{ *Store }

func (v ordersView) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	return v.Store.ListOrders(ctx, f)
}

// storeTx reads under the lock already held by InTx.
type storeTx struct {
	s      *Store
	staged []order.Order
}

func (t *storeTx) Products() product.Reader { return txProducts{t.s} }

func (t *storeTx) Vouchers() voucher.Reader { return txVouchers{t} }

func (t *storeTx) Insert(_ context.Context, o *order.Order) error {
	t.staged = append(t.staged, copyOrder(*o))
	return nil
}

type txProducts struct{ s *Store }

func (p txProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	return p.s.productsByIDs(ids), nil
}

type txVouchers struct{ t *storeTx }

func (v txVouchers) FindByCode(_ context.Context, code string) (*voucher.Voucher, error) {
	return v.t.s.voucherByCode(code)
}

func (v txVouchers) FindByID(_ context.Context, id string) (*voucher.Voucher, error) {
	return v.t.s.voucherByID(id)
}

func (v txVouchers) CountUsage(_ context.Context, voucherID string) (int, error) {
	return v.t.s.usage(voucherID, ""), nil
}

func (v txVouchers) CountCustomerUsage(_ context.Context, voucherID, customerID string) (int, error) {
	return v.t.s.usage(voucherID, customerID), nil
}
