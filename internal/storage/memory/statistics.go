package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/statistics"
	"github.com/xenking/bistro/internal/domain/timeframe"
)

func (s *Store) CountUsers(_ context.Context, w timeframe.Window) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.Role == auth.RoleCustomer && w.Contains(u.CreatedAt) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountOrders(_ context.Context, w timeframe.Window) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, o := range s.orders {
		if w.Contains(o.CreatedAt) {
			n++
		}
	}
	return n, nil
}

func (s *Store) SumRevenue(_ context.Context, w timeframe.Window) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, o := range s.orders {
		if o.Status == order.Done && w.Contains(o.CreatedAt) {
			sum = sum.Add(o.Total)
		}
	}
	return sum, nil
}

func (s *Store) TopProducts(_ context.Context, w timeframe.Window, by statistics.RankBy, limit int) ([]statistics.ProductRank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ranks := map[string]*statistics.ProductRank{}
	for _, o := range s.orders {
		if o.Status == order.Rejected || !w.Contains(o.CreatedAt) {
			continue
		}
		for _, it := range o.Items {
			r, ok := ranks[it.ProductID]
			if !ok {
				r = &statistics.ProductRank{ProductID: it.ProductID, Name: it.Name, TotalSales: decimal.Zero}
				ranks[it.ProductID] = r
			}
			r.TotalUnits += int64(it.Quantity)
			r.TotalSales = r.TotalSales.Add(lineTotal(it))
		}
	}

	out := make([]statistics.ProductRank, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if by == statistics.BySales && !a.TotalSales.Equal(b.TotalSales) {
			return a.TotalSales.GreaterThan(b.TotalSales)
		}
		if by != statistics.BySales && a.TotalUnits != b.TotalUnits {
			return a.TotalUnits > b.TotalUnits
		}
		return a.ProductID < b.ProductID
	})
	return page(out, 0, limit), nil
}

func (s *Store) NewestCustomers(_ context.Context, w timeframe.Window, limit int) ([]statistics.CustomerRank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []statistics.CustomerRank
	for _, u := range s.users {
		if u.Role != auth.RoleCustomer || !w.Contains(u.CreatedAt) {
			continue
		}
		r := statistics.CustomerRank{
			CustomerID: u.ID,
			Name:       u.Name,
			Email:      u.Email,
			JoinedAt:   u.CreatedAt,
			TotalValue: decimal.Zero,
		}
		for _, o := range s.orders {
			if o.CustomerID == u.ID && o.Status != order.Rejected {
				r.OrderCount++
				r.TotalValue = r.TotalValue.Add(o.Total)
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.After(out[j].JoinedAt)
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return page(out, 0, limit), nil
}

func (s *Store) TopCustomers(_ context.Context, w timeframe.Window, limit int) ([]statistics.CustomerRank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ranks := map[string]*statistics.CustomerRank{}
	for _, o := range s.orders {
		if o.Status == order.Rejected || !w.Contains(o.CreatedAt) {
			continue
		}
		r, ok := ranks[o.CustomerID]
		if !ok {
			u := s.users[o.CustomerID]
			r = &statistics.CustomerRank{
				CustomerID: o.CustomerID,
				Name:       u.Name,
				Email:      u.Email,
				JoinedAt:   u.CreatedAt,
				TotalValue: decimal.Zero,
			}
			ranks[o.CustomerID] = r
		}
		r.OrderCount++
		r.TotalValue = r.TotalValue.Add(o.Total)
	}

	out := make([]statistics.CustomerRank, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TotalValue.Equal(out[j].TotalValue) {
			return out[i].TotalValue.GreaterThan(out[j].TotalValue)
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return page(out, 0, limit), nil
}

func (s *Store) Sales(_ context.Context, w timeframe.Window) ([]statistics.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []statistics.Sale
	for _, o := range s.orders {
		if o.Status != order.Done || !w.Contains(o.CreatedAt) {
			continue
		}
		var units int64
		for _, it := range o.Items {
			units += int64(it.Quantity)
		}
		out = append(out, statistics.Sale{At: o.CreatedAt, Total: o.Total, Units: units})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}
