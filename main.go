package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"propMonitor/config"
	"propMonitor/internal/adapters/logger"
	"propMonitor/internal/adapters/prom"
	"propMonitor/internal/adapters/sqlite"
	"propMonitor/internal/adapters/templates"
	"propMonitor/internal/api"
	"propMonitor/internal/app"
	"propMonitor/internal/risk"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync() //nolint:errcheck // stderr sync errors are expected on some platforms
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	// 4. Initialize Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := prom.NewRecorder(registry)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to register metrics")
		log.Fatalf("FATAL: Failed to register metrics: %v", err)
	}

	// 5. Initialize Application Service
	service, err := app.NewMonitoringService(app.ServiceConfig{
		Logger:    appLogger,
		Accounts:  repo,
		Templates: repo,
		Trades:    repo,
		Evaluator: risk.NewEngine(),
		Recorder:  recorder,
		CacheTTL:  cfg.EvaluationCacheTTL,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize monitoring service")
		log.Fatalf("FATAL: Failed to initialize monitoring service: %v", err)
	}

	// 6. Load Rule Templates
	if cfg.TemplatesPath != "" {
		tpls, err := templates.NewLoader(appLogger).LoadFile(ctx, cfg.TemplatesPath)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to load rule templates")
			log.Fatalf("FATAL: Failed to load rule templates: %v", err)
		}
		if _, err := service.SyncTemplates(ctx, tpls); err != nil {
			log.Fatalf("FATAL: Failed to store rule templates: %v", err)
		}
	}

	// 7. Start the API server
	server := api.NewServer(appLogger, api.Config{
		Addr:         cfg.Addr(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		CORSOrigins:  cfg.CORSOrigins,
		Gatherer:     registry,

		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		StreamInterval: cfg.StreamInterval,
	}, service)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		appLogger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
	case err := <-errCh:
		if err != nil {
			appLogger.Error(ctx, err, "API server exited with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		appLogger.Error(ctx, err, "Error during API server shutdown")
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
