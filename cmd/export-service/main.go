package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/edgecomet/deckexport/internal/cleanup"
	"github.com/edgecomet/deckexport/internal/common/config"
	logutil "github.com/edgecomet/deckexport/internal/common/logger"
	"github.com/edgecomet/deckexport/internal/common/metricsserver"
	"github.com/edgecomet/deckexport/internal/configtest"
	"github.com/edgecomet/deckexport/internal/debugdump"
	"github.com/edgecomet/deckexport/internal/export"
	"github.com/edgecomet/deckexport/internal/export/metrics"
	"github.com/edgecomet/deckexport/internal/render/chrome"
	"github.com/edgecomet/deckexport/internal/service"
)

func main() {
	configPath := flag.String("c", "configs/export-service.yaml",
		"Path to export service configuration file")
	testConfig := flag.Bool("t", false, "Test configuration and exit")
	testID := flag.String("u", "", "With -t, print the URL loaded for this presentation id")
	flag.Parse()

	if *testConfig {
		os.Exit(configtest.Run(os.Stdout, *configPath, *testID))
	}

	// Initialize logger (will be reconfigured from config)
	initialLogger, err := logutil.NewDefaultLogger()
	if err != nil {
		panic(err)
	}

	initialLogger.Info("Loading configuration", zap.String("path", *configPath))

	absPath, err := config.GetConfigPath(*configPath)
	if err != nil {
		initialLogger.Fatal("Invalid config path", zap.Error(err))
	}

	configMgr, err := config.NewConfigManager(absPath, initialLogger.Logger)
	if err != nil {
		initialLogger.Fatal("Failed to load configuration", zap.Error(err))
	}
	cfg := configMgr.GetConfig()

	// INFO during startup even when the configured level is higher
	dynamicLogger, err := logutil.NewLoggerWithStartupOverride(cfg.Log)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	logger := dynamicLogger.Logger

	logger.Info("Export service starting",
		zap.String("server_id", cfg.Server.ID),
		zap.String("listen", cfg.Server.Listen),
		zap.String("chrome_pool_size", cfg.Chrome.PoolSize))

	chromeConfig := export.ChromeConfig(cfg.Chrome)
	if err := chromeConfig.Validate(); err != nil {
		logger.Fatal("Invalid Chrome configuration", zap.Error(err))
	}

	// Metrics collector exists before the pool so the first pool gauges are recorded
	metricsCollector := metrics.NewMetricsCollector(cfg.Metrics.Namespace, logger)

	metricsServer, err := metricsserver.Start(cfg.Metrics, metricsCollector, logger)
	if err != nil {
		logger.Fatal("Failed to start metrics server", zap.Error(err))
	}

	dumper, dumpStore, err := debugdump.FromConfig(cfg.Debug, logger)
	if err != nil {
		logger.Fatal("Failed to set up diagnostic dumps", zap.Error(err))
	}

	logger.Info("Initializing Chrome pool")
	pool, err := chrome.NewPool(chromeConfig, metricsCollector, logger)
	if err != nil {
		logger.Fatal("Failed to create Chrome pool", zap.Error(err))
	}
	logger.Info("Chrome pool initialized", zap.Int("pool_size", pool.Size()))

	exporter := export.NewExporter(
		export.NewChromeSessions(pool, chromeConfig, logger),
		export.OptionsFromConfig(cfg.Export),
		dumper,
		metricsCollector,
		logger,
	)

	var dumpHealth service.HealthChecker
	if dumpStore != nil {
		dumpHealth = dumpStore
	}
	server := service.NewServer(cfg, service.CreateHTTPHandler(exporter, pool, dumpHealth, metricsCollector, logger), logger)
	if err := server.Start(cfg.Server.Listen); err != nil {
		logger.Fatal("HTTP server failed to start", zap.Error(err))
	}

	dumpDir := ""
	if cfg.Debug.Enabled {
		dumpDir = cfg.Debug.Dir
	}
	cleanupWorker := cleanup.NewWorker(cfg.Cleanup, []cleanup.Root{
		{Name: cleanup.RootSnapshots, Path: cfg.Export.SnapshotDir},
		{Name: cleanup.RootDumps, Path: dumpDir},
	}, logger, cleanup.NewMetrics(cfg.Metrics.Namespace))
	cleanupWorker.Start()

	logger.Info("Export service ready",
		zap.String("server_id", cfg.Server.ID),
		zap.String("listen", server.Addr()),
		zap.Duration("max_timeout", exporter.Timeout()))

	dynamicLogger.SwitchToConfiguredLevel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-server.Errors():
		logger.Error("Server error", zap.Error(err))
	}

	dynamicLogger.EnsureInfoLevelForShutdown()
	logger.Info("Shutting down gracefully...")

	if metricsServer != nil {
		if err := metricsServer.Shutdown(); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// In-flight exports may run up to max_timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Export.CalculateServerTimeout())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	cleanupWorker.Shutdown()

	if err := pool.Shutdown(); err != nil {
		logger.Error("Chrome pool shutdown error", zap.Error(err))
	}

	if dumpStore != nil {
		if err := dumpStore.Close(); err != nil {
			logger.Error("Debug redis close error", zap.Error(err))
		}
	}

	logger.Info("Export service stopped")
}
