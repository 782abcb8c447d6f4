package statistics

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bistro/internal/domain/timeframe"
)

var _ Reporter = (*Aggregator)(nil)

// Aggregator computes statistics straight from the Repository.
type Aggregator struct {
	repo   Repository
	zone   timeframe.Zone
	now    func() time.Time
	tracer trace.Tracer
}

// NewAggregator creates an Aggregator. A nil tracer disables tracing.
func NewAggregator(repo Repository, zone timeframe.Zone, tracer trace.Tracer) *Aggregator {
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("")
	}
	return &Aggregator{repo: repo, zone: zone, now: time.Now, tracer: tracer}
}

// Summary compares users, orders and revenue between the running window
// [start of now's window, to] and the full window preceding to's.
func (a *Aggregator) Summary(ctx context.Context, to time.Time, g timeframe.Granularity) (*Summary, error) {
	ctx, span := a.tracer.Start(ctx, "statistics.Summary",
		trace.WithAttributes(attribute.String("granularity", string(g))),
	)
	defer span.End()

	cur := a.zone.Current(a.now(), to, g)
	prev := a.zone.Previous(to, g)

	var s Summary
	eg, ctx := errgroup.WithContext(ctx)
	count := func(dst *int64, fn func(context.Context, timeframe.Window) (int64, error), w timeframe.Window, what string) {
		eg.Go(func() error {
			n, err := fn(ctx, w)
			if err != nil {
				return errors.Wrap(err, what)
			}
			*dst = n
			return nil
		})
	}
	sum := func(dst *decimal.Decimal, w timeframe.Window) {
		eg.Go(func() error {
			v, err := a.repo.SumRevenue(ctx, w)
			if err != nil {
				return errors.Wrap(err, "sum revenue")
			}
			*dst = v
			return nil
		})
	}

	count(&s.Users.Current, a.repo.CountUsers, cur, "count users")
	count(&s.Users.Previous, a.repo.CountUsers, prev, "count previous users")
	count(&s.Orders.Current, a.repo.CountOrders, cur, "count orders")
	count(&s.Orders.Previous, a.repo.CountOrders, prev, "count previous orders")
	sum(&s.Revenues.Current, cur)
	sum(&s.Revenues.Previous, prev)

	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &s, nil
}

// PopularProducts ranks products sold so far in the current window.
func (a *Aggregator) PopularProducts(ctx context.Context, g timeframe.Granularity, limit int) (*PopularProducts, error) {
	now := a.now()
	w := a.zone.Current(now, now, g)
	limit = clampLimit(limit)

	var out PopularProducts
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		r, err := a.repo.TopProducts(ctx, w, ByUnits, limit)
		if err != nil {
			return errors.Wrap(err, "top products by units")
		}
		out.ByUnits = r
		return nil
	})
	eg.Go(func() error {
		r, err := a.repo.TopProducts(ctx, w, BySales, limit)
		if err != nil {
			return errors.Wrap(err, "top products by sales")
		}
		out.BySales = r
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// PopularCustomers lists the newest customers and top spenders of the
// current window.
func (a *Aggregator) PopularCustomers(ctx context.Context, g timeframe.Granularity, limit int) (*PopularCustomers, error) {
	now := a.now()
	w := a.zone.Current(now, now, g)
	limit = clampLimit(limit)

	var out PopularCustomers
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		r, err := a.repo.NewestCustomers(ctx, w, limit)
		if err != nil {
			return errors.Wrap(err, "newest customers")
		}
		out.Newest = r
		return nil
	})
	eg.Go(func() error {
		r, err := a.repo.TopCustomers(ctx, w, limit)
		if err != nil {
			return errors.Wrap(err, "top customers")
		}
		out.HighestValue = r
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevenueChart buckets Done orders of the current window: hourly for a day,
// daily for a week or month, monthly for a year. Future buckets are zero.
func (a *Aggregator) RevenueChart(ctx context.Context, g timeframe.Granularity) ([]ChartPoint, error) {
	ctx, span := a.tracer.Start(ctx, "statistics.RevenueChart")
	defer span.End()

	now := a.now()
	sales, err := a.repo.Sales(ctx, a.zone.Current(now, now, g))
	if err != nil {
		return nil, errors.Wrap(err, "list sales")
	}

	buckets := a.zone.Buckets(now, g)
	points := make([]ChartPoint, len(buckets))
	for i, b := range buckets {
		points[i] = ChartPoint{
			Start:      b.Start,
			Label:      label(b.Start, g),
			TotalSales: decimal.Zero,
		}
	}

	for _, s := range sales {
		i := sort.Search(len(buckets), func(i int) bool {
			return s.At.Before(buckets[i].End)
		})
		if i == len(buckets) || !buckets[i].Contains(s.At) {
			continue
		}
		points[i].TotalSales = points[i].TotalSales.Add(s.Total)
		points[i].TotalUnits += s.Units
	}
	return points, nil
}

func label(t time.Time, g timeframe.Granularity) string {
	switch g {
	case timeframe.Daily:
		return t.Format("15:04")
	case timeframe.Yearly:
		return t.Format("January")
	default:
		return t.Format("Monday 02-01")
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
