package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codewithrichardb/ecommerce-backend/internal/config"
	"github.com/codewithrichardb/ecommerce-backend/internal/domain"
	"github.com/codewithrichardb/ecommerce-backend/internal/event"
	handler "github.com/codewithrichardb/ecommerce-backend/internal/handler/http"
	"github.com/codewithrichardb/ecommerce-backend/internal/mailer"
	mailerhttpapi "github.com/codewithrichardb/ecommerce-backend/internal/mailer/httpapi"
	mailermock "github.com/codewithrichardb/ecommerce-backend/internal/mailer/mock"
	"github.com/codewithrichardb/ecommerce-backend/internal/repository/postgres"
	"github.com/codewithrichardb/ecommerce-backend/internal/repository/postgres/migrations"
	redisrepo "github.com/codewithrichardb/ecommerce-backend/internal/repository/redis"
	"github.com/codewithrichardb/ecommerce-backend/internal/service"
	"github.com/codewithrichardb/ecommerce-backend/pkg/clock"
	"github.com/codewithrichardb/ecommerce-backend/pkg/database"
	"github.com/codewithrichardb/ecommerce-backend/pkg/health"
	"github.com/codewithrichardb/ecommerce-backend/pkg/httpclient"
	pkgkafka "github.com/codewithrichardb/ecommerce-backend/pkg/kafka"
	"github.com/codewithrichardb/ecommerce-backend/pkg/tracing"
)

// App wires together all dependencies and runs the recovery service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	consumers      []*pkgkafka.Consumer
	recovery       *service.RecoveryService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "recovery",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	database.RegisterPoolMetrics(pool, "recovery")

	// Initialize Redis for rehydrated carts.
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("host", cfg.RedisHost),
		slog.Int("port", cfg.RedisPort),
	)

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Mail sender and templates.
	var sender mailer.Sender
	if cfg.MailUseMock {
		sender = mailermock.NewMockSender(logger)
	} else {
		client := httpclient.New(httpclient.DefaultConfig())
		cbClient := httpclient.NewCircuitBreakerClient(
			client,
			httpclient.DefaultCircuitBreakerConfig("mail-api"),
			logger,
		)
		sender = mailerhttpapi.NewSender(cbClient, cfg.MailAPIBaseURL, cfg.MailFrom, cfg.MailAPIKey, logger)
	}
	logger.Info("mail sender initialized", slog.String("sender", sender.Name()))

	renderer, err := mailer.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}

	// Build the dependency graph.
	couponRepo := postgres.NewCouponRepository(pool)
	cartRepo := postgres.NewAbandonedCartRepository(pool)
	emailRepo := postgres.NewRecoveryEmailRepository(pool)
	liveCarts := redisrepo.NewLiveCartStore(redisClient, domain.CartExpiry)
	eventProducer := event.NewProducer(kafkaProducer, logger)

	clk := clock.NewRealClock()
	couponService := service.NewCouponService(couponRepo, eventProducer, clk, logger)
	recoveryService := service.NewRecoveryService(
		cartRepo, emailRepo, liveCarts, couponService,
		sender, renderer, eventProducer, clk, logger,
		service.RecoveryConfig{
			StoreName: cfg.StoreName,
			BaseURL:   cfg.BaseURL,
			BatchSize: cfg.SweepBatch,
		},
	)

	// Kafka event consumers.
	consumerHandler := event.NewConsumerHandler(couponService, recoveryService, logger)
	consumers := event.NewConsumers(cfg.KafkaBrokers, consumerHandler, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	// HTTP router.
	router := handler.NewRouter(couponService, recoveryService, healthHandler, handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		AllowedOrigins:    cfg.AllowedOrigins,
		Environment:       cfg.Environment,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
	}, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		producer:       kafkaProducer,
		consumers:      consumers,
		recovery:       recoveryService,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server, Kafka consumers, and the reminder sweep loop,
// then blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	// Start Kafka consumers.
	for _, consumer := range a.consumers {
		c := consumer
		go func() {
			if err := c.Start(ctx); err != nil {
				a.logger.Error("kafka consumer error", slog.String("error", err.Error()))
			}
		}()
	}

	// Periodic reminder sweep.
	go a.runSweep(ctx)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// runSweep processes due reminder emails on a fixed interval until the
// context is canceled.
func (a *App) runSweep(ctx context.Context) {
	interval := time.Duration(a.cfg.SweepInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("reminder sweep started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("reminder sweep stopped")
			return
		case <-ticker.C:
			sent, err := a.recovery.ProcessDueReminders(ctx)
			if err != nil {
				a.logger.Error("reminder sweep failed", slog.String("error", err.Error()))
				continue
			}
			if sent > 0 {
				a.logger.Info("reminder sweep complete", slog.Int("emails_sent", sent))
			}
		}
	}
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	// Close Kafka consumers.
	for _, consumer := range a.consumers {
		if err := consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		}
	}

	// Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	// Close PostgreSQL pool.
	a.pool.Close()

	// Flush pending trace spans.
	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
