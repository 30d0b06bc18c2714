// Command deck-export runs a single export and prints the slide model as JSON on stdout.
// The export runs on a local browser, or on a running export service with -remote.
// With -inspect it prints the element tree of a saved diagnostic dump instead, read from a file
// or, as redis:<session>, from the configured debug redis.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/deckexport/internal/common/config"
	logutil "github.com/edgecomet/deckexport/internal/common/logger"
	"github.com/edgecomet/deckexport/internal/common/redis"
	"github.com/edgecomet/deckexport/internal/common/requestid"
	"github.com/edgecomet/deckexport/internal/debugdump"
	"github.com/edgecomet/deckexport/internal/export"
	"github.com/edgecomet/deckexport/internal/exportclient"
	"github.com/edgecomet/deckexport/internal/render/chrome"
	"github.com/edgecomet/deckexport/pkg/types"
)

const redisDumpPrefix = "redis:"

func main() {
	configPath := flag.String("c", "configs/export-service.yaml", "Path to configuration file")
	presentationID := flag.String("id", "", "Presentation id to export")
	outDir := flag.String("out", "", "Snapshot directory (defaults to export.snapshot_dir)")
	sessionID := flag.String("session", "", "Session id (generated when empty)")
	tree := flag.Bool("tree", false, "Print the element tree instead of JSON")
	inspect := flag.String("inspect", "", "Print the element tree of a diagnostic dump (file path or redis:<session>) and exit")
	purge := flag.Bool("purge", false, "With -inspect redis:<session>, delete the dump after printing it")
	remote := flag.String("remote", "", "Export through a running service at this base URL instead of a local browser")
	timeout := flag.Duration("timeout", 5*time.Minute, "With -remote, the HTTP timeout")
	flag.Parse()

	if *inspect != "" {
		if err := printDump(*configPath, *inspect, *purge); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if *presentationID == "" {
		fmt.Fprintln(os.Stderr, "-id is required")
		flag.Usage()
		os.Exit(2)
	}

	req := types.ExportRequest{
		PresentationID: *presentationID,
		SessionID:      *sessionID,
		OutputDir:      *outDir,
	}
	if *remote != "" {
		os.Exit(runRemote(*remote, *timeout, req, *tree))
	}
	os.Exit(run(*configPath, req, *tree))
}

func run(configPath string, req types.ExportRequest, tree bool) int {
	absPath, err := config.GetConfigPath(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.LoadExportServiceConfig(absPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// stdout carries the result
	cfg.Log.Console.Enabled = true
	cfg.Log.Console.Stderr = true
	cfg.Log.File.Enabled = false
	dynamicLogger, err := logutil.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := dynamicLogger.Logger
	defer func() { _ = logger.Sync() }()

	if req.SessionID == "" {
		req.SessionID = requestid.NewSessionID(req.PresentationID)
	}
	dynamicLogger.ForSession(req.SessionID).Info("Exporting presentation",
		zap.String("presentation_id", req.PresentationID),
		zap.String("config", absPath))

	// One export needs one browser
	chromeConfig := export.ChromeConfig(cfg.Chrome)
	chromeConfig.PoolSize = "1"
	pool, err := chrome.NewPool(chromeConfig, nil, logger)
	if err != nil {
		logger.Error("Failed to start browser", zap.Error(err))
		return 1
	}
	defer func() {
		if err := pool.Shutdown(); err != nil {
			logger.Warn("Browser shutdown error", zap.Error(err))
		}
	}()

	dumper, dumpStore, err := debugdump.FromConfig(cfg.Debug, logger)
	if err != nil {
		logger.Error("Failed to set up diagnostic dumps", zap.Error(err))
		return 1
	}
	if dumpStore != nil {
		defer dumpStore.Close()
	}

	exporter := export.NewExporter(
		export.NewChromeSessions(pool, chromeConfig, logger),
		export.OptionsFromConfig(cfg.Export),
		dumper,
		nil,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := exporter.Export(ctx, req)
	if err != nil {
		if export.IsClientFault(export.Classify(err)) {
			return 2
		}
		return 1
	}
	return printResult(result, tree, logger)
}

func runRemote(baseURL string, timeout time.Duration, req types.ExportRequest, tree bool) int {
	dynamicLogger, err := logutil.NewDefaultLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := dynamicLogger.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := exportclient.New(baseURL, timeout, logger).Export(ctx, req)
	if err != nil {
		logger.Error("Remote export failed", zap.Error(err))
		var remoteErr *exportclient.RemoteError
		if errors.As(err, &remoteErr) && export.IsClientFault(remoteErr.Kind) {
			return 2
		}
		return 1
	}
	return printResult(result, tree, logger)
}

func printResult(result *types.ExportResult, tree bool, logger *zap.Logger) int {
	if tree {
		fmt.Print(debugdump.RenderTree(result))
		return 0
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error("Failed to write result", zap.Error(err))
		return 1
	}
	return 0
}

func printDump(configPath, target string, purge bool) error {
	sessionID, fromRedis := strings.CutPrefix(target, redisDumpPrefix)
	if !fromRedis {
		result, err := debugdump.Load(target)
		if err != nil {
			return err
		}
		fmt.Print(debugdump.RenderTree(result))
		return nil
	}

	absPath, err := config.GetConfigPath(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.LoadExportServiceConfig(absPath)
	if err != nil {
		return err
	}
	if cfg.Debug.Redis == nil {
		return fmt.Errorf("%s has no debug.redis section", absPath)
	}

	client, err := redis.NewClient(cfg.Debug.Redis, zap.NewNop())
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := debugdump.LoadFromStore(ctx, client, sessionID, cfg.Debug.Compression)
	if err != nil {
		return err
	}
	fmt.Print(debugdump.RenderTree(result))

	if purge {
		if err := client.DeleteDump(ctx, sessionID); err != nil {
			return fmt.Errorf("delete dump: %w", err)
		}
		fmt.Fprintf(os.Stderr, "deleted %s\n", redis.DumpKey(sessionID))
		return nil
	}
	if ttl, err := client.TTL(ctx, redis.DumpKey(sessionID)); err == nil && ttl > 0 {
		fmt.Fprintf(os.Stderr, "%s expires in %s\n", redis.DumpKey(sessionID), ttl.Round(time.Second))
	}
	return nil
}
