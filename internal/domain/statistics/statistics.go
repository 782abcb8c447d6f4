// Package statistics computes read-only sales figures over calendar windows
// of the operating timezone.
package statistics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/timeframe"
)

// DefaultLimit is the number of ranked entries returned when no limit is given.
const DefaultLimit = 5

// MaxLimit caps ranked results.
const MaxLimit = 50

// Count compares a count across the current and previous window.
type Count struct {
	Current  int64 `json:"currentCount"`
	Previous int64 `json:"previousCount"`
}

// Amount compares a money sum across the current and previous window.
type Amount struct {
	Current  decimal.Decimal `json:"currentCount"`
	Previous decimal.Decimal `json:"previousCount"`
}

// Summary holds headline figures. Orders counts every status; Revenues sums
// Done orders only.
type Summary struct {
	Users    Count  `json:"users"`
	Orders   Count  `json:"orders"`
	Revenues Amount `json:"revenues"`
}

// RankBy selects the metric products are ranked by.
type RankBy string

const (
	ByUnits RankBy = "units"
	BySales RankBy = "sales"
)

// ProductRank is a product's sales over a window.
type ProductRank struct {
	ProductID  string          `json:"productId"`
	Name       string          `json:"name"`
	TotalUnits int64           `json:"totalUnits"`
	TotalSales decimal.Decimal `json:"totalSales"`
}

// PopularProducts ranks products by units sold and by sales value.
type PopularProducts struct {
	ByUnits []ProductRank `json:"highestTotalSoldUnitsProducts"`
	BySales []ProductRank `json:"highestTotalSalesProducts"`
}

// CustomerRank is a customer's activity over a window.
type CustomerRank struct {
	CustomerID string          `json:"customerId"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	JoinedAt   time.Time       `json:"createdAt"`
	OrderCount int64           `json:"orderCount"`
	TotalValue decimal.Decimal `json:"totalOrderValue"`
}

// PopularCustomers lists the newest customers and the biggest spenders.
type PopularCustomers struct {
	Newest       []CustomerRank `json:"newestUsers"`
	HighestValue []CustomerRank `json:"usersWithHighestTotalOrderValue"`
}

// Sale is one Done order as seen by the revenue chart.
type Sale struct {
	At    time.Time
	Total decimal.Decimal
	Units int64
}

// ChartPoint is one column of the revenue chart.
type ChartPoint struct {
	Start      time.Time       `json:"date"`
	Label      string          `json:"name"`
	TotalSales decimal.Decimal `json:"totalSales"`
	TotalUnits int64           `json:"totalUnits"`
}

// Repository runs the aggregate queries. Every window is half-open.
type Repository interface {
	CountUsers(ctx context.Context, w timeframe.Window) (int64, error)
	CountOrders(ctx context.Context, w timeframe.Window) (int64, error)
	// SumRevenue sums totals of Done orders.
	SumRevenue(ctx context.Context, w timeframe.Window) (decimal.Decimal, error)
	// TopProducts ranks products over non-rejected orders.
	TopProducts(ctx context.Context, w timeframe.Window, by RankBy, limit int) ([]ProductRank, error)
	// NewestCustomers lists customers who joined in the window, newest first.
	NewestCustomers(ctx context.Context, w timeframe.Window, limit int) ([]CustomerRank, error)
	// TopCustomers ranks customers by the value of their non-rejected orders.
	TopCustomers(ctx context.Context, w timeframe.Window, limit int) ([]CustomerRank, error)
	// Sales lists Done orders.
	Sales(ctx context.Context, w timeframe.Window) ([]Sale, error)
}

// Reporter is the read API served to administrators.
type Reporter interface {
	Summary(ctx context.Context, to time.Time, g timeframe.Granularity) (*Summary, error)
	PopularProducts(ctx context.Context, g timeframe.Granularity, limit int) (*PopularProducts, error)
	PopularCustomers(ctx context.Context, g timeframe.Granularity, limit int) (*PopularCustomers, error)
	RevenueChart(ctx context.Context, g timeframe.Granularity) ([]ChartPoint, error)
}
