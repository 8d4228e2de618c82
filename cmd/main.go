package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/okian/calboard/internal/adapters/http/api"
	"github.com/okian/calboard/internal/adapters/http/swagger"
	"github.com/okian/calboard/internal/adapters/ics"
	"github.com/okian/calboard/internal/adapters/repository"
	app "github.com/okian/calboard/internal/app"
	"github.com/okian/calboard/internal/config"
	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/okian/calboard/pkg/logger"
	"github.com/okian/calboard/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

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
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	registerRuntimeCollectors(metrics.GetRegistry(), log)

	svc, err := buildService(cfg, log)
	if err != nil {
		log.Error(ctx, "failed to configure service", logger.Error(err))
		os.Exit(1)
	}
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		os.Exit(1)
	}

	go startServiceMetricsUpdater(ctx, svc)

	srv, err := newHTTPServer(ctx, cfg, svc, log)
	if err != nil {
		log.Error(ctx, "failed to configure http server", logger.Error(err))
		os.Exit(1)
	}

	// Start the HTTP server
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "service shutdown failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
}

// buildService translates cfg into service options. The seed file, when
// configured, is read here so a missing file fails startup.
func buildService(cfg *config.Config, log logger.Logger) (*app.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithLocation(loc),
		app.WithWorkerCount(cfg.ImportWorkers),
		app.WithQueueSize(cfg.ImportQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithLayout(calendar.NewLayout(
			calendar.WithPixelsPerHour(cfg.PixelsPerHour),
			calendar.WithSpanPolicy(cfg.Span()),
		)),
		app.WithImportOptions(
			ics.WithHorizon(cfg.RecurrenceHorizon()),
			ics.WithLookback(cfg.RecurrenceLookback()),
			ics.WithMaxOccurrences(cfg.MaxOccurrences),
		),
	}
	if cfg.ReminderSchedule != "" {
		opts = append(opts, app.WithReminder(cfg.ReminderSchedule,
			app.WithReminderLead(cfg.ReminderLead()),
			app.WithReminderHistory(cfg.DedupeSize),
		))
	}
	if cfg.SeedFile != "" {
		raws, err := repository.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithSeed(raws))
	}
	return app.New(opts...), nil
}

// newHTTPServer wires the API, docs and metrics routes onto one mux.
func newHTTPServer(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) (*http.Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	weekStart, err := cfg.WeekStartDay()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc,
		api.WithLocation(loc),
		api.WithWeekStart(weekStart),
		api.WithMaxBodyBytes(cfg.MaxImportBytes),
		api.WithLogger(log.Named("http")),
	)
	apiServer.Register(ctx, mux)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}, nil
}

// registerRuntimeCollectors adds Go runtime and process metrics to reg.
// Collectors that are already registered are left alone.
func registerRuntimeCollectors(reg prometheus.Registerer, log logger.Logger) {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		var already prometheus.AlreadyRegisteredError
		if err := reg.Register(c); err != nil && !errors.As(err, &already) {
			log.Warn(context.Background(), "collector not registered", logger.Error(err))
		}
	}
}

// startServiceMetricsUpdater periodically publishes store and queue gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.Stats(ctx)

	events, _ := stats["events"].(int)
	owners, _ := stats["owners"].(int)
	metrics.UpdateStoreSize(events, owners)

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if capacity, ok := stats["queueSize"].(int); ok {
		metrics.UpdateQueueCapacity(capacity)
	}
}
