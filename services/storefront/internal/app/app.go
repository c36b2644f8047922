package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
	"github.com/utafrali/storefront/services/storefront/internal/cartapi"
	"github.com/utafrali/storefront/services/storefront/internal/cartstate"
	"github.com/utafrali/storefront/services/storefront/internal/config"
	handler "github.com/utafrali/storefront/services/storefront/internal/handler/http"
	"github.com/utafrali/storefront/services/storefront/internal/pricing"
	"github.com/utafrali/storefront/services/storefront/internal/session"
	"github.com/utafrali/storefront/services/storefront/internal/snapshot"
)

// App wires together all dependencies and runs the storefront.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	sessions       *session.Registry
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	// background bounds the rate limiter cleanup and the session janitor.
	background context.Context
	stop       context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	background, stop := context.WithCancel(context.Background())
	a := &App{
		cfg:            cfg,
		logger:         logger,
		tracerShutdown: tracerShutdown,
		background:     background,
		stop:           stop,
	}

	healthHandler := health.NewHandler()

	store, err := a.newSnapshotStore(ctx, healthHandler)
	if err != nil {
		stop()
		return nil, err
	}

	// Cart service client: retries for idempotent calls behind a breaker.
	baseClient := httpclient.New(httpclient.Config{
		Timeout:         cfg.RequestTimeout(),
		MaxRetries:      cfg.CartMaxRetries,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 100,
	})
	cbCfg := httpclient.CircuitBreakerConfig{
		Name:         "storefront-cart",
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}
	cbClient := httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger)
	healthHandler.RegisterNonCritical("cart-service", func(context.Context) error {
		if cbClient.State() == gobreaker.StateOpen {
			return errors.New("circuit breaker open")
		}
		return nil
	})
	logger.Info("cart service client initialized",
		slog.String("url", cfg.CartServiceURL),
		slog.String("breaker", cbCfg.Name),
	)

	// Build the dependency graph.
	backend := cartapi.NewClient(cbClient, cfg.CartServiceURL, logger)
	opts := cartstate.Options{
		MaxQuantity:       cfg.MaxQuantity,
		RequestTimeout:    cfg.RequestTimeout(),
		ErrorDismissDelay: cfg.ErrorDismissDelay(),
		Calculator:        pricing.Calculator{TaxRate: cfg.TaxRate, ShippingFee: cfg.ShippingFee},
		Logger:            logger,
	}
	a.sessions = session.NewRegistry(backend, store, opts, cfg.SessionIdleTTL(), logger)

	// HTTP router.
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.Environment = cfg.Environment
	router := handler.NewRouter(background, a.sessions, healthHandler, handler.RouterConfig{
		CORS:           corsCfg,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// newSnapshotStore builds the snapshot store selected by SNAPSHOT_STORE.
func (a *App) newSnapshotStore(ctx context.Context, healthHandler *health.Handler) (snapshot.Store, error) {
	cfg := a.cfg

	if cfg.SnapshotStore == config.SnapshotMemory {
		a.logger.Info("cart snapshots kept in memory")
		return snapshot.NewMemoryStore(cfg.SnapshotTTL()), nil
	}

	rdb, err := database.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.logger.Info("connected to Redis",
		slog.String("addr", cfg.Redis.Addr()),
		slog.Int("db", cfg.Redis.DB),
	)

	// Snapshots only speed up the first render; the storefront works without them.
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	a.rdb = rdb
	return snapshot.NewRedisStore(rdb, cfg.SnapshotTTL()), nil
}

// Run starts the HTTP server and the session janitor, and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go a.sessions.Run(a.background)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Session machines and background loops
// 3. Tracer (flush pending spans from drained requests)
// 4. Redis client, if snapshots use it
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.sessions.Close()
	a.stop()

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
