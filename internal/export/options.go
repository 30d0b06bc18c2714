package export

import (
	"net/url"
	"strings"
	"time"

	"github.com/edgecomet/deckexport/internal/common/config"
	"github.com/edgecomet/deckexport/internal/render/chrome"
)

// Options configures the pipeline
type Options struct {
	// PresentationURL contains config.PresentationIDPlaceholder
	PresentationURL string
	RootID          string
	NoteAttribute   string

	ReadyExpression   string
	ReadyTimeout      time.Duration
	ReadyPollInterval time.Duration
	MaxTimeout        time.Duration

	SnapshotDir      string
	RasterScale      float64
	SlideConcurrency int
}

// OptionsFromConfig maps the export section of the configuration file
func OptionsFromConfig(cfg config.ExportYAMLConfig) Options {
	return Options{
		PresentationURL:   cfg.PresentationURL,
		RootID:            cfg.RootID,
		NoteAttribute:     cfg.NoteAttribute,
		ReadyExpression:   cfg.Readiness.Expression,
		ReadyTimeout:      time.Duration(cfg.Readiness.Timeout),
		ReadyPollInterval: time.Duration(cfg.Readiness.PollInterval),
		MaxTimeout:        time.Duration(cfg.MaxTimeout),
		SnapshotDir:       cfg.SnapshotDir,
		RasterScale:       cfg.RasterScale,
		SlideConcurrency:  cfg.SlideConcurrency,
	}
}

// ChromeConfig maps the chrome section of the configuration file
func ChromeConfig(cfg config.ChromeYAMLConfig) *chrome.Config {
	return &chrome.Config{
		PoolSize:          cfg.PoolSize,
		WarmupURL:         cfg.Warmup.URL,
		WarmupTimeout:     time.Duration(cfg.Warmup.Timeout),
		ShutdownTimeout:   time.Duration(cfg.ShutdownTimeout),
		RestartAfterCount: cfg.Restart.AfterCount,
		RestartAfterTime:  time.Duration(cfg.Restart.AfterTime),
		ViewportWidth:     cfg.Viewport.Width,
		ViewportHeight:    cfg.Viewport.Height,
		DeviceScale:       cfg.Viewport.Scale,
	}
}

// URLFor expands the presentation URL template with the escaped presentation id
func (o Options) URLFor(presentationID string) string {
	return strings.ReplaceAll(o.PresentationURL, config.PresentationIDPlaceholder, url.PathEscape(presentationID))
}
