package memory

import (
	"context"
	"sort"

	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/voucher"
)

func (s *Store) FindByCode(_ context.Context, code string) (*voucher.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voucherByCode(code)
}

func (s *Store) FindByID(_ context.Context, id string) (*voucher.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voucherByID(id)
}

func (s *Store) CountUsage(_ context.Context, voucherID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage(voucherID, ""), nil
}

func (s *Store) CountCustomerUsage(_ context.Context, voucherID, customerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage(voucherID, customerID), nil
}

func (s *Store) Create(_ context.Context, v *voucher.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codeTaken(v.Code, v.ID) {
		return voucher.ErrCodeTaken
	}
	s.vouchers[v.ID] = *v
	return nil
}

func (s *Store) Update(_ context.Context, v *voucher.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vouchers[v.ID]; !ok {
		return voucher.ErrNotFound
	}
	if s.codeTaken(v.Code, v.ID) {
		return voucher.ErrCodeTaken
	}
	s.vouchers[v.ID] = *v
	return nil
}

func (s *Store) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[id]
	if !ok {
		return voucher.ErrNotFound
	}
	v.Active = false
	s.vouchers[id] = v
	return nil
}

// List pages through vouchers, newest first.
func (s *Store) List(_ context.Context, params voucher.ListParams) ([]voucher.Voucher, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]voucher.Voucher, 0, len(s.vouchers))
	for _, v := range s.vouchers {
		if params.ActiveOnly && !v.Active {
			continue
		}
		all = append(all, v)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Code < all[j].Code
	})
	return page(all, params.Skip, params.Limit), len(all), nil
}

func (s *Store) voucherByCode(code string) (*voucher.Voucher, error) {
	for _, v := range s.vouchers {
		if equalFoldCode(v.Code, code) {
			return &v, nil
		}
	}
	return nil, voucher.ErrNotFound
}

func (s *Store) voucherByID(id string) (*voucher.Voucher, error) {
	v, ok := s.vouchers[id]
	if !ok {
		return nil, voucher.ErrNotFound
	}
	return &v, nil
}

func (s *Store) codeTaken(code, exceptID string) bool {
	for id, v := range s.vouchers {
		if id != exceptID && equalFoldCode(v.Code, code) {
			return true
		}
	}
	return false
}

// usage counts non-rejected orders of the voucher, optionally for one
// customer.
func (s *Store) usage(voucherID, customerID string) int {
	n := 0
	for _, o := range s.orders {
		if o.VoucherID != voucherID || o.Status == order.Rejected {
			continue
		}
		if customerID != "" && o.CustomerID != customerID {
			continue
		}
		n++
	}
	return n
}

func page[T any](all []T, skip, limit int) []T {
	if skip >= len(all) {
		return []T{}
	}
	end := len(all)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return all[skip:end]
}
