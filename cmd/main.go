package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/admitcast/internal/adapters/http/api"
	"github.com/okian/admitcast/internal/adapters/http/swagger"
	"github.com/okian/admitcast/internal/adapters/repository"
	app "github.com/okian/admitcast/internal/app"
	"github.com/okian/admitcast/internal/config"
	"github.com/okian/admitcast/internal/domain/rubric"
	"github.com/okian/admitcast/pkg/logger"
	"github.com/okian/admitcast/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 60 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
	seedBatchSize             = 1000
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Init(metricsOptions(cfg)...)

	if err := run(ctx, cfg, loggerInstance); err != nil {
		loggerInstance.Error(ctx, "admitcast exited with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the service and serves HTTP until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithStore(store),
		app.WithModelSeed(cfg.ModelSeed),
		app.WithEpochs(cfg.Epochs),
	}
	if cfg.RubricFile != "" {
		table, err := loadRubricFile(cfg.RubricFile)
		if err != nil {
			closeStore(ctx, store, log)
			return err
		}
		opts = append(opts, app.WithRubricTable(table))
	}

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		closeStore(ctx, store, log)
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newHandler registers docs and API routes behind the request id and
// timeout middleware.
func newHandler(ctx context.Context, cfg *config.Config, svc *app.Service) http.Handler {
	mux := http.NewServeMux()

	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc, svc)
	apiServer.Register(ctx, mux)

	return api.RequestIDMiddleware(api.TimeoutMiddleware(mux, cfg.RequestTimeout()))
}

// openStore builds the configured record store and applies the optional seed CSV.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	var store interface {
		repository.Store
		repository.Writer
	}
	switch cfg.Store {
	case config.StoreSQLite, config.StoreMySQL:
		sqlStore, err := repository.NewSQLStore(ctx, cfg.Store, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := sqlStore.Migrate(ctx); err != nil {
			_ = sqlStore.Close()
			return nil, err
		}
		store = sqlStore
	default:
		store = repository.NewInMemoryStore()
	}

	if cfg.SeedCSV == "" {
		return store, nil
	}
	if err := seedStore(ctx, store, cfg.SeedCSV, log); err != nil {
		closeStore(ctx, store, log)
		return nil, err
	}
	return store, nil
}

// metricsOptions maps the metrics config onto manager options.
func metricsOptions(cfg *config.Config) []metrics.Option {
	return []metrics.Option{
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(cfg.MetricsBucketsMS),
		metrics.WithConstLabels(cfg.MetricsLabels),
	}
}

// closeStore releases stores that hold a connection pool.
func closeStore(ctx context.Context, store repository.Store, log logger.Logger) {
	c, ok := store.(interface{ Close() error })
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn(ctx, "failed to close store", logger.Error(err))
	}
}

func seedStore(ctx context.Context, w repository.Writer, path string, log logger.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed csv: %w", err)
	}
	defer f.Close()

	records, skipped, err := repository.ReadCSV(f)
	if err != nil {
		return err
	}
	for _, s := range skipped {
		log.Debug(ctx, "skipped seed row", logger.Int("line", s.Line), logger.String("reason", s.Reason))
	}
	metrics.RecordRecordsLoaded("skipped", len(skipped))

	if err := repository.InsertBatches(ctx, w, records, seedBatchSize, nil); err != nil {
		return err
	}
	log.Info(ctx, "seeded historical records",
		logger.String("path", path),
		logger.Int("loaded", len(records)),
		logger.Int("skipped", len(skipped)),
	)
	return nil
}

func loadRubricFile(path string) (*rubric.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rubric file: %w", err)
	}
	defer f.Close()
	return rubric.LoadTable(f)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes repository gauges from service stats.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats updates the repository gauge as a side effect.
			_ = svc.GetStats()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
