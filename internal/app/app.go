package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/cupcake-checkout/internal/domain/cart"
	"github.com/xenking/cupcake-checkout/internal/domain/coupon"
	"github.com/xenking/cupcake-checkout/internal/domain/order"
	"github.com/xenking/cupcake-checkout/internal/domain/shipping"
	"github.com/xenking/cupcake-checkout/internal/handler"
	"github.com/xenking/cupcake-checkout/internal/outbox"
	"github.com/xenking/cupcake-checkout/internal/payment/simulated"
	"github.com/xenking/cupcake-checkout/internal/shipping/carrier"
	"github.com/xenking/cupcake-checkout/internal/storage/postgres"
	"github.com/xenking/cupcake-checkout/internal/storage/redis"
	"github.com/xenking/cupcake-checkout/pkg/health"
	"github.com/xenking/cupcake-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the outbox relay,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	policy, err := cfg.Shipping.Policy()
	if err != nil {
		return errors.Wrap(err, "shipping policy")
	}

	// PostgreSQL pool + migrations.
	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	healthSvc := health.New(lg.Named("health"))
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck("postgres", pool))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Add(health.Liveness, "gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Stores.
	cupcakes := postgres.NewCupcakeStore(pool)
	coupons := postgres.NewCouponStore(pool)
	orders := postgres.NewOrderStore(pool)

	var (
		cartCache   cart.Cache
		idempotency order.Idempotency
	)
	if cfg.Redis.Addr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		cartCache = redis.NewCartCache(rdb, cfg.Redis.CartTTL, cfg.Redis.CartTTLJitter)
		idempotency = redis.NewIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL)
		healthSvc.Add(health.Readiness, "redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	} else {
		lg.Warn("Redis disabled: cart cache and Idempotency-Key support are off")
	}

	var rates shipping.RateLookup
	if cfg.Carrier.QuoteURL != "" {
		c, err := carrier.New(carrier.Config{
			ViaCEPURL:       cfg.Carrier.ViaCEPURL,
			QuoteURL:        cfg.Carrier.QuoteURL,
			OriginZip:       cfg.Carrier.OriginZip,
			Timeout:         cfg.Carrier.Timeout,
			BreakerFailures: cfg.Carrier.BreakerFailures,
			BreakerCooldown: cfg.Carrier.BreakerCooldown,
		}, lg.Named("carrier"))
		if err != nil {
			return errors.Wrap(err, "create carrier client")
		}
		rates = c
	}

	// Domain services.
	cartSvc := cart.NewService(postgres.NewCartStore(pool), cupcakes, cartCache)
	couponSvc := coupon.NewService(coupons)
	estimator := shipping.NewEstimator(policy, rates)
	orderSvc, err := order.NewService(order.Deps{
		Orders:         orders,
		Carts:          cartSvc,
		Catalog:        cupcakes,
		Addresses:      postgres.NewAddressStore(pool),
		Coupons:        couponSvc,
		Shipping:       estimator,
		Payments:       simulated.New(simulated.Config{Delay: cfg.Payment.Delay, SuccessRate: cfg.Payment.SuccessRate}),
		Idempotency:    idempotency,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	}, order.Config{PaymentTimeout: cfg.Payment.Timeout})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	var relay *outbox.Relay
	if len(cfg.Kafka.Brokers) > 0 {
		w := outbox.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = w.Close() }()

		relay, err = outbox.NewRelay(postgres.NewOutboxStore(pool), w, outbox.RelayConfig{
			PollInterval: cfg.Kafka.PollInterval,
			BatchSize:    cfg.Kafka.BatchSize,
		}, reg)
		if err != nil {
			return errors.Wrap(err, "create outbox relay")
		}
	} else {
		lg.Warn("Kafka brokers not set: order events stay in the outbox")
	}

	serverMetrics, err := httpmiddleware.NewServerMetrics("cupcake", reg)
	if err != nil {
		return errors.Wrap(err, "register http metrics")
	}

	router := chi.NewRouter()
	router.Use(
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins: cfg.CORS.Origins,
			AllowHeaders: []string{
				"Content-Type", "Authorization", httpmiddleware.RequestIDHeader,
				handler.UserIDHeader, handler.SignatureHeader, handler.IdempotencyKeyHeader,
			},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(httpmiddleware.ChiRoute),
		serverMetrics.Middleware(httpmiddleware.ChiRoute),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	handler.New(handler.Deps{
		Carts:    cartSvc,
		Orders:   orderSvc,
		Coupons:  couponSvc,
		Shipping: estimator,
	}, []byte(cfg.Auth.Secret)).Mount(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Checkout includes the payment call.
		WriteTimeout:   cfg.Payment.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: otelhttp.NewHandler(router, "cupcake-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	healthSvc.Start(gctx, 10*time.Second)
	defer healthSvc.Stop()

	if relay != nil {
		g.Go(func() error {
			return relay.Run(zctx.Base(gctx, lg.Named("outbox")))
		})
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "server shutdown")
		}
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		healthSvc.SetReady(true)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
