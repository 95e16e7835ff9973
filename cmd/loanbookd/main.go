// Command loanbookd serves the loanbook HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/loanbook"
	"github.com/xraph/loanbook/api"
	audithook "github.com/xraph/loanbook/audit_hook"
	"github.com/xraph/loanbook/gate"
	"github.com/xraph/loanbook/internal/config"
	"github.com/xraph/loanbook/observability"
	"github.com/xraph/loanbook/store"
	"github.com/xraph/loanbook/store/memory"
	"github.com/xraph/loanbook/store/mongo"
	"github.com/xraph/loanbook/store/postgres"
	"github.com/xraph/loanbook/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("loanbookd", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine := loanbook.New(s,
		loanbook.WithLogger(logger),
		loanbook.WithCurrency(cfg.Currency),
		loanbook.WithLatePayments(cfg.AllowLatePayments),
		loanbook.WithSweepInterval(cfg.SweepInterval),
		loanbook.WithSweepConcurrency(cfg.SweepConcurrency),
		loanbook.WithStatusCooldown(cfg.StatusCooldown),
		loanbook.WithPinPolicy(gate.Policy{MaxFailures: cfg.PinMaxFailures, Window: cfg.PinWindow}),
		loanbook.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
		loanbook.WithPlugin(audithook.New(audithook.LogRecorder{Logger: logger})),
	)
	if err := engine.Start(ctx); err != nil {
		_ = s.Close()
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() {
		if err := engine.Stop(); err != nil {
			logger.Error("stop engine", "error", err)
		}
	}()

	if name, pin, ok := cfg.Seed(); ok {
		u, err := engine.CreateUser(ctx, name, pin)
		if err != nil {
			return fmt.Errorf("seed user: %w", err)
		}
		logger.Info("seeded staff user", "user_id", u.ID.String(), "name", u.Name)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", api.NewServer(engine, api.WithLogger(logger), api.WithBasePath(cfg.BasePath)).Handler())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver, "base_path", cfg.BasePath)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.SQLitePath)
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL)
	case config.DriverMongo:
		return mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
