// Package cache keeps statistics results in Redis for a short TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/statistics"
	"github.com/xenking/bistro/internal/domain/timeframe"
)

// DefaultTTL is used when no TTL is configured.
const DefaultTTL = time.Minute

const keyPrefix = "bistro:stats:"

var errMiss = errors.New("cache miss")

// KV is the byte store the cache is built on.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisKV adapts a go-redis client to KV.
type RedisKV struct {
	Client redis.UniversalClient
}

func (r RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errMiss
	}
	return b, err
}

func (r RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.Client.Set(ctx, key, value, ttl).Err()
}

var _ statistics.Reporter = (*Reporter)(nil)

// Reporter serves statistics from the cache, falling back to next on a miss.
// Cache failures are logged and never fail a request.
type Reporter struct {
	next statistics.Reporter
	kv   KV
	zone timeframe.Zone
	ttl  time.Duration
	now  func() time.Time
}

// NewReporter wraps next.
func NewReporter(next statistics.Reporter, kv KV, zone timeframe.Zone, ttl time.Duration) *Reporter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Reporter{next: next, kv: kv, zone: zone, ttl: ttl, now: time.Now}
}

func (r *Reporter) Summary(ctx context.Context, to time.Time, g timeframe.Granularity) (*statistics.Summary, error) {
	key := fmt.Sprintf("%ssummary:%s:%d:%d", keyPrefix, g, r.windowStart(g), to.Unix())
	return cached(ctx, r, key, func() (*statistics.Summary, error) {
		return r.next.Summary(ctx, to, g)
	})
}

func (r *Reporter) PopularProducts(ctx context.Context, g timeframe.Granularity, limit int) (*statistics.PopularProducts, error) {
	key := fmt.Sprintf("%sproducts:%s:%d:%d", keyPrefix, g, r.windowStart(g), limit)
	return cached(ctx, r, key, func() (*statistics.PopularProducts, error) {
		return r.next.PopularProducts(ctx, g, limit)
	})
}

func (r *Reporter) PopularCustomers(ctx context.Context, g timeframe.Granularity, limit int) (*statistics.PopularCustomers, error) {
	key := fmt.Sprintf("%scustomers:%s:%d:%d", keyPrefix, g, r.windowStart(g), limit)
	return cached(ctx, r, key, func() (*statistics.PopularCustomers, error) {
		return r.next.PopularCustomers(ctx, g, limit)
	})
}

func (r *Reporter) RevenueChart(ctx context.Context, g timeframe.Granularity) ([]statistics.ChartPoint, error) {
	key := fmt.Sprintf("%schart:%s:%d", keyPrefix, g, r.windowStart(g))
	return cached(ctx, r, key, func() ([]statistics.ChartPoint, error) {
		return r.next.RevenueChart(ctx, g)
	})
}

// windowStart keys entries by the window they describe, so a new day or
// week never reads the previous one's figures.
func (r *Reporter) windowStart(g timeframe.Granularity) int64 {
	return r.zone.Start(r.now(), g).Unix()
}

func cached[T any](ctx context.Context, r *Reporter, key string, load func() (T, error)) (T, error) {
	lg := zctx.From(ctx).With(zap.String("key", key))

	var zero T
	if b, err := r.kv.Get(ctx, key); err == nil {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		lg.Warn("Discarding undecodable cache entry")
	} else if !errors.Is(err, errMiss) {
		lg.Warn("Cache read failed", zap.Error(err))
	}

	v, err := load()
	if err != nil {
		return zero, err
	}

	b, err := json.Marshal(v)
	if err != nil {
		lg.Warn("Cache encode failed", zap.Error(err))
		return v, nil
	}
	if err := r.kv.Set(ctx, key, b, r.ttl); err != nil {
		lg.Warn("Cache write failed", zap.Error(err))
	}
	return v, nil
}
