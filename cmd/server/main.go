/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the course ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load COURSE_LEDGER_* environment, apply command-line flags, validate
  2. Build the zap logger
  3. Open the configured store (memory, sqlite or postgres)
  4. Wire ledger, event broker, metrics and API handler
  5. Start HTTP server and catalog sampler
  6. Wait for a signal, then shut down gracefully

COMMAND-LINE FLAGS (override environment):
  -port         HTTP server port
  -driver       Store driver: memory, sqlite, postgres
  -db           SQLite database path (":memory:" for in-memory SQLite)
  -pg           Postgres DSN
  -trust-proxy  Take client address from X-Forwarded-For / X-Real-IP

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Close the event broker so SSE streams end
  3. Wait for active requests to complete (shutdown timeout)
  4. Stop the sampler
  5. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/courses.db"

  # Run fully in memory
  ./server -driver=memory

  # Run against Postgres
  COURSE_LEDGER_PG_DSN=postgres://... ./server -driver=postgres

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - ledger/ledger.go: Core operations
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/warp/course-ledger/api"
	"github.com/warp/course-ledger/auth"
	"github.com/warp/course-ledger/config"
	"github.com/warp/course-ledger/events"
	"github.com/warp/course-ledger/ledger"
	"github.com/warp/course-ledger/ledger/store"
	"github.com/warp/course-ledger/obs"
	"github.com/warp/course-ledger/store/postgres"
	"github.com/warp/course-ledger/store/sqlite"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "course-ledger: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger, err := obs.NewLogger(cfg.LogMode)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize store
	txStore, resetter, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	defer closeStore()

	broker := events.NewBroker()
	metrics := obs.NewMetrics()
	l := ledger.New(txStore, ledger.WithEventSink(broker))

	handler := api.NewHandler(api.Deps{
		Ledger:   l,
		Broker:   broker,
		Metrics:  metrics,
		Logger:   logger,
		Resetter: resetter,
	})

	resolver := auth.NewResolver(cfg.JWTSecret, cfg.JWTIssuer)
	if !resolver.BearerMode() {
		logger.Warn("no JWT secret configured, trusting the X-Account-ID header")
	}

	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins: cfg.CORSOrigins,
		Resolver:    resolver,
		Limiter:     api.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Scenarios:   cfg.Scenarios,
		TrustProxy:  cfg.TrustProxy,
	})

	sampler := api.NewCatalogSampler(handler)
	sampler.Start()
	defer sampler.Stop()

	server := newServer(fmt.Sprintf(":%d", cfg.Port), router, broker.Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("driver", cfg.Driver),
			zap.Bool("scenarios", cfg.Scenarios),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// newServer builds the HTTP server. Request contexts derive from
// context.Background, not the signal context, so a SIGTERM lets in-flight
// requests finish within the shutdown timeout. onShutdown hooks run when
// Shutdown starts; the event broker uses one to end open SSE streams.
func newServer(addr string, handler http.Handler, onShutdown ...func()) *http.Server {
	// WriteTimeout stays zero so /api/events can stream.
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	for _, fn := range onShutdown {
		server.RegisterOnShutdown(fn)
	}
	return server
}

func openStore(ctx context.Context, cfg config.Config) (ledger.TxStore, api.Resetter, func(), error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverMemory:
		mem := store.NewMemory()
		return mem, mem, func() {}, nil

	case config.DriverSQLite:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, func() { _ = s.Close() }, nil

	case config.DriverPostgres:
		s, err := postgres.Open(cfg.Postgres)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, nil, nil, err
		}
		return s, s, func() { _ = s.Close() }, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown driver %q", cfg.Driver)
}
