package app

import (
	"context"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lojavirtual/orderflow/internal/domain/order"
	"github.com/lojavirtual/orderflow/internal/handler"
	"github.com/lojavirtual/orderflow/internal/idempotency"
	"github.com/lojavirtual/orderflow/internal/notify"
	"github.com/lojavirtual/orderflow/internal/paymentsignal"
	"github.com/lojavirtual/orderflow/internal/storage/postgres"
	"github.com/lojavirtual/orderflow/pkg/health"
	"github.com/lojavirtual/orderflow/pkg/httpmiddleware"
)

const serviceName = "orderflow"

// Run creates all dependencies, starts the HTTP server and the payment
// poller, and handles graceful shutdown. It is the single wiring point of
// the service.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.Register(health.Readiness, health.Check{Name: "postgres", Timeout: 5 * time.Second, Func: health.PingCheck(pool)})
	healthSvc.Register(health.Liveness, health.Check{Name: "goroutines", Timeout: time.Second, Func: health.GoroutineCountCheck(10000)})

	// Redis backs idempotency keys and rate limit counters. Without it both
	// stay in process.
	var (
		idem    handler.Idempotency
		counter httpmiddleware.Counter
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "parse redis url")
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		idem = idempotency.New(rdb, cfg.Idempotency)
		counter = httpmiddleware.NewRedisCounter(rdb)
		healthSvc.Register(health.Readiness, health.Check{Name: "redis", Timeout: 2 * time.Second, Func: health.RedisCheck(rdb)})
	} else {
		lg.Warn("Redis not configured, idempotency keys disabled and rate limits kept in process")
		counter = httpmiddleware.NewMemoryCounter(ctx, cfg.RateLimit.Window)
	}

	notifier, closeNotifier, err := newNotifier(ctx, lg, cfg)
	if err != nil {
		return errors.Wrap(err, "create notifier")
	}
	defer closeNotifier()
	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 && cfg.Kafka.Required {
		healthSvc.Register(health.Readiness, health.Check{Name: "kafka", Timeout: 2 * time.Second, Func: health.KafkaCheck(brokers)})
	}

	// Repositories.
	orderRepo := postgres.NewOrderRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	lifecycle, err := order.NewLifecycle(orderRepo, order.Options{
		Notifier:       notifier,
		Catalog:        productRepo,
		NotifyTimeout:  cfg.NotifyTimeout,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create lifecycle")
	}

	// Payment gateway: webhooks and the reconciliation poller share one adapter.
	gateway := paymentsignal.NewMercadoPago(cfg.Gateway, m.TracerProvider())
	normalizer := paymentsignal.NewNormalizer("mercadopago", paymentsignal.MercadoPagoStatuses)
	adapter := paymentsignal.NewAdapter(gateway, normalizer, lifecycle, cfg.WebhookSecret)
	if cfg.WebhookSecret == "" {
		lg.Warn("Webhook secret not set, payment webhook signatures are not verified")
	}

	pollerDone := make(chan struct{})
	if cfg.Poller.Enabled {
		poller := paymentsignal.NewPoller(adapter, orderRepo, cfg.Poller)
		go func() {
			defer close(pollerDone)
			if err := poller.Run(zctx.Base(ctx, lg.Named("poller"))); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("Payment poller stopped", zap.Error(err))
			}
		}()
	} else {
		close(pollerDone)
	}

	h := handler.New(handler.Config{
		WhatsApp:     cfg.WhatsApp,
		APIKeyPepper: []byte(cfg.APIKeyPepper),
	}, lifecycle, adapter, idem, apikeyRepo)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveHandler)
	mux.HandleFunc("/readyz", healthSvc.ReadyHandler)
	mux.Handle("/api/", h.Router(httpmiddleware.LogRequests()))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key", "api_key", "Idempotency-Key"},
				ExposeHeaders:    []string{"Location", "Idempotent-Replayed", httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}, counter),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	<-pollerDone
	return nil
}

// newNotifier assembles the status notification channels. The log channel
// is always on; e-mail and Kafka are enabled by config.
func newNotifier(ctx context.Context, lg *zap.Logger, cfg *Config) (order.Notifier, func(), error) {
	channels := notify.Fanout{notify.Log}
	closers := []func() error{}

	if cfg.Email.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Email.Region))
		if err != nil {
			return nil, nil, errors.Wrap(err, "load aws config")
		}
		channels = append(channels, notify.NewEmail(sesv2.NewFromConfig(awsCfg), cfg.Email))
		lg.Info("Email notifications enabled", zap.String("region", cfg.Email.Region), zap.String("from", cfg.Email.From))
	}

	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		w := notify.NewKafkaWriter(cfg.Kafka)
		closers = append(closers, w.Close)
		channels = append(channels, notify.NewKafka(w))
		lg.Info("Kafka status events enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				lg.Warn("Close notifier", zap.Error(err))
			}
		}
	}
	return channels, closeAll, nil
}
