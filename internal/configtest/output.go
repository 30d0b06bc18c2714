// Package configtest implements the -t mode of the export service: validate a configuration
// file and print the effective settings after defaults.
package configtest

import (
	"fmt"
	"io"
	"time"

	"github.com/edgecomet/deckexport/internal/common/config"
	"github.com/edgecomet/deckexport/internal/export"
)

// Run validates the configuration at configPath and prints the result to w.
// With a presentation id it also prints the URL an export would load. Returns the exit code.
func Run(w io.Writer, configPath, presentationID string) int {
	cfg, err := config.LoadExportServiceConfig(configPath)
	if err != nil {
		fmt.Fprintf(w, "Configuration validation FAILED:\n- %s: %v\n", configPath, err)
		return 1
	}

	fmt.Fprintf(w, "configuration file %s syntax is ok\n", configPath)
	PrintSummary(w, cfg)
	fmt.Fprintln(w, "configuration test is successful")

	if presentationID != "" {
		opts := export.OptionsFromConfig(cfg.Export)
		fmt.Fprintf(w, "\nPresentation: %s\n", presentationID)
		fmt.Fprintf(w, "URL: %s\n", opts.URLFor(presentationID))
		fmt.Fprintf(w, "Root: #%s\n", opts.RootID)
	}
	return 0
}

// PrintSummary prints the effective configuration
func PrintSummary(w io.Writer, cfg *config.ExportServiceConfig) {
	chromeCfg := export.ChromeConfig(cfg.Chrome)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Server: %s on %s (timeout %s)\n", cfg.Server.ID, cfg.Server.Listen,
		formatDuration(cfg.Export.CalculateServerTimeout()))

	fmt.Fprintln(w, "Chrome:")
	fmt.Fprintf(w, "  - Pool size: %s (%d instances)\n", cfg.Chrome.PoolSize, chromeCfg.CalculatePoolSize())
	fmt.Fprintf(w, "  - Viewport: %dx%d @%gx\n", cfg.Chrome.Viewport.Width, cfg.Chrome.Viewport.Height, cfg.Chrome.Viewport.Scale)
	fmt.Fprintf(w, "  - Restart: after %d exports or %s\n", cfg.Chrome.Restart.AfterCount,
		formatHumanDuration(time.Duration(cfg.Chrome.Restart.AfterTime)))

	e := cfg.Export
	fmt.Fprintln(w, "Export:")
	fmt.Fprintf(w, "  - Presentation URL: %s\n", e.PresentationURL)
	fmt.Fprintf(w, "  - Root: #%s\n", e.RootID)
	fmt.Fprintf(w, "  - Speaker notes: [%s]\n", e.NoteAttribute)
	fmt.Fprintf(w, "  - Readiness: %s (timeout %s, poll %s)\n", e.Readiness.Expression,
		formatDuration(time.Duration(e.Readiness.Timeout)), formatDuration(time.Duration(e.Readiness.PollInterval)))
	fmt.Fprintf(w, "  - Max timeout: %s\n", formatDuration(time.Duration(e.MaxTimeout)))
	if e.SnapshotDir != "" {
		fmt.Fprintf(w, "  - Snapshot dir: %s\n", e.SnapshotDir)
	} else {
		fmt.Fprintln(w, "  - Snapshot dir: (per request)")
	}
	fmt.Fprintf(w, "  - Raster scale: %g\n", e.RasterScale)
	if e.SlideConcurrency > 0 {
		fmt.Fprintf(w, "  - Slide concurrency: %d\n", e.SlideConcurrency)
	} else {
		fmt.Fprintln(w, "  - Slide concurrency: unbounded")
	}

	d := cfg.Debug
	if d.Enabled {
		fmt.Fprintf(w, "Debug dump: enabled (compression %s)\n", d.Compression)
		if d.Dir != "" {
			fmt.Fprintf(w, "  - Dir: %s\n", d.Dir)
		}
		if d.Redis != nil {
			fmt.Fprintf(w, "  - Redis: %s db %d, TTL %s\n", d.Redis.Addr, d.Redis.DB,
				formatHumanDuration(time.Duration(d.Redis.TTL)))
		}
	} else {
		fmt.Fprintln(w, "Debug dump: disabled")
	}

	if cfg.Cleanup.Enabled {
		fmt.Fprintf(w, "Cleanup: every %s, retention %s\n",
			formatHumanDuration(time.Duration(cfg.Cleanup.Interval)),
			formatHumanDuration(time.Duration(cfg.Cleanup.Retention)))
	} else {
		fmt.Fprintln(w, "Cleanup: disabled")
	}

	if cfg.Metrics.Enabled {
		fmt.Fprintf(w, "Metrics: %s%s (namespace %s)\n", cfg.Metrics.Listen, cfg.Metrics.Path, cfg.Metrics.Namespace)
	} else {
		fmt.Fprintln(w, "Metrics: disabled")
	}
	fmt.Fprintln(w)
}

// formatDuration formats a duration in seconds format
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.0fs", d.Seconds())
}

// formatHumanDuration formats a duration in human-readable format
func formatHumanDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
