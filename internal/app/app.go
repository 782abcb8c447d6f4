package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bistro/internal/cache"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/domain/statistics"
	"github.com/xenking/bistro/internal/domain/timeframe"
	"github.com/xenking/bistro/internal/domain/voucher"
	"github.com/xenking/bistro/internal/events"
	"github.com/xenking/bistro/internal/handler"
	"github.com/xenking/bistro/internal/storage/memory"
	"github.com/xenking/bistro/internal/storage/postgres"
	"github.com/xenking/bistro/pkg/health"
	"github.com/xenking/bistro/pkg/httpmiddleware"
)

const serviceName = "bistro"

// stores groups the storage ports of one backend.
type stores struct {
	orders   order.Repository
	vouchers voucher.Repository
	carts    order.CartResetter
	stats    statistics.Repository
	ping     health.Pinger
	close    func()
}

func openStores(ctx context.Context, lg *zap.Logger, cfg *Config) (*stores, error) {
	if cfg.Storage == StorageMemory {
		lg.Warn("Using in-memory storage, data is lost on restart")
		s := memory.New()
		return &stores{
			orders:   s.Orders(),
			vouchers: s,
			carts:    s,
			stats:    s,
			ping:     s,
			close:    func() {},
		}, nil
	}

	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	return &stores{
		orders:   postgres.NewOrderRepository(db),
		vouchers: postgres.NewVoucherRepository(db),
		carts:    postgres.NewCartRepository(db),
		stats:    postgres.NewStatisticsRepository(db),
		ping:     db,
		close:    db.Close,
	}, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
		zap.String("timezone", cfg.Timezone),
	)

	zone, err := timeframe.LoadZone(cfg.Timezone)
	if err != nil {
		return errors.Wrap(err, "load timezone")
	}
	tracer := m.TracerProvider().Tracer(serviceName)
	meter := m.MeterProvider().Meter(serviceName)

	st, err := openStores(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("storage", 5*time.Second, health.PingCheck(st.ping))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Order events go to Kafka when brokers are configured.
	var notifier order.Notifier = events.LogNotifier{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := events.NewSyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			return errors.Wrap(err, "create kafka producer")
		}
		kafka := events.NewKafkaNotifier(producer, cfg.Kafka.Topic, lg)
		defer func() {
			if err := kafka.Close(); err != nil {
				lg.Warn("Close kafka producer", zap.Error(err))
			}
		}()
		notifier = kafka
	}

	// Statistics are served through the Redis cache when configured.
	var reporter statistics.Reporter = statistics.NewAggregator(st.stats, zone, tracer)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		reporter = cache.NewReporter(reporter, cache.RedisKV{Client: rdb}, zone, cfg.Redis.TTL)
	}

	validator := voucher.NewValidator(st.vouchers)
	orderService, err := order.NewService(st.orders, validator, st.carts, notifier, order.Config{
		Zone:   zone,
		Window: cfg.Checkout.AdmissionWindow(),
		Meter:  meter,
		Tracer: tracer,
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	h := handler.NewHandler(
		orderService,
		voucher.NewService(st.vouchers, validator),
		reporter,
		handler.NewAuthenticator([]byte(cfg.Auth.JWTSecret)),
	)
	router := h.Router()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Route(),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.Labeler(),
			httpmiddleware.LogRequests(),
			httpmiddleware.Timeout(cfg.RequestTimeout),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()
		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	return g.Wait()
}
