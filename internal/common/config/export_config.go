package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/deckexport/internal/common/configtypes"
	"github.com/edgecomet/deckexport/internal/common/yamlutil"
	"github.com/edgecomet/deckexport/pkg/types"
)

const (
	// SafetyMargin is added to export.max_timeout for the HTTP server timeout,
	// so fasthttp never drops a connection while an export is still running
	SafetyMargin = 10 * time.Second

	defaultListen            = ":10080"
	defaultServerID          = "deckexport"
	defaultRestartAfterCount = 50
	defaultRestartAfterTime  = 60 * time.Minute
	defaultWarmupTimeout     = 10 * time.Second
	defaultShutdownTimeout   = 30 * time.Second
	defaultViewportWidth     = 1280
	defaultViewportHeight    = 720
	defaultRootID            = "presentation"
	defaultNoteAttribute     = "data-speaker-note"
	defaultReadyExpression   = `document.readyState === "complete" && window.__deckReady === true`
	defaultReadyTimeout      = 30 * time.Second
	defaultPollInterval      = 100 * time.Millisecond
	defaultMaxTimeout        = 3 * time.Minute
	defaultDebugTTL          = 24 * time.Hour
	defaultCleanupInterval   = 15 * time.Minute
	defaultCleanupRetention  = 24 * time.Hour

	// PresentationIDPlaceholder is replaced with the requested presentation id in export.presentation_url
	PresentationIDPlaceholder = "{id}"
)

var namespacePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ExportServiceConfig is the export service configuration file
type ExportServiceConfig struct {
	Server  configtypes.ServerConfig  `yaml:"server"`
	Chrome  ChromeYAMLConfig          `yaml:"chrome"`
	Export  ExportYAMLConfig          `yaml:"export"`
	Debug   DebugConfig               `yaml:"debug"`
	Cleanup configtypes.CleanupConfig `yaml:"cleanup"`
	Log     configtypes.LogConfig     `yaml:"log"`
	Metrics configtypes.MetricsConfig `yaml:"metrics"`
}

// ChromeYAMLConfig configures the browser pool
type ChromeYAMLConfig struct {
	PoolSize        string         `yaml:"pool_size"`
	Warmup          WarmupConfig   `yaml:"warmup"`
	Restart         RestartConfig  `yaml:"restart"`
	Viewport        ViewportConfig `yaml:"viewport"`
	ShutdownTimeout types.Duration `yaml:"shutdown_timeout"`
}

type WarmupConfig struct {
	URL     string         `yaml:"url"`
	Timeout types.Duration `yaml:"timeout"`
}

type RestartConfig struct {
	AfterCount int            `yaml:"after_count"`
	AfterTime  types.Duration `yaml:"after_time"`
}

// ViewportConfig is the emulated tab size; it should match the slide size
type ViewportConfig struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	Scale  float64 `yaml:"scale"`
}

// ExportYAMLConfig configures the export pipeline
type ExportYAMLConfig struct {
	PresentationURL string          `yaml:"presentation_url"`
	RootID          string          `yaml:"root_id"`
	NoteAttribute   string          `yaml:"note_attribute"`
	Readiness       ReadinessConfig `yaml:"readiness"`
	MaxTimeout      types.Duration  `yaml:"max_timeout"`
	SnapshotDir     string          `yaml:"snapshot_dir"`
	RasterScale     float64         `yaml:"raster_scale"`
	// SlideConcurrency bounds parallel slide extraction, 0 means one task per slide
	SlideConcurrency int `yaml:"slide_concurrency"`
}

// ReadinessConfig is the single synchronization point before extraction
type ReadinessConfig struct {
	Expression   string         `yaml:"expression"`
	Timeout      types.Duration `yaml:"timeout"`
	PollInterval types.Duration `yaml:"poll_interval"`
}

// DebugConfig enables the diagnostic dump of decoded attributes
type DebugConfig struct {
	Enabled     bool                     `yaml:"enabled"`
	Dir         string                   `yaml:"dir"`
	Compression string                   `yaml:"compression"`
	Redis       *configtypes.RedisConfig `yaml:"redis,omitempty"`
}

// CalculateServerTimeout returns max_timeout + SafetyMargin
func (e *ExportYAMLConfig) CalculateServerTimeout() time.Duration {
	return time.Duration(e.MaxTimeout) + SafetyMargin
}

// ConfigManager loads and validates the export service configuration
type ConfigManager struct {
	config     *ExportServiceConfig
	configPath string
	logger     *zap.Logger
}

// NewConfigManager loads configPath, failing on unknown fields or invalid values
func NewConfigManager(configPath string, logger *zap.Logger) (*ConfigManager, error) {
	cm := &ConfigManager{
		configPath: configPath,
		logger:     logger,
	}
	if err := cm.LoadConfig(); err != nil {
		return nil, err
	}
	return cm, nil
}

// LoadConfig (re)reads the configuration file
func (cm *ConfigManager) LoadConfig() error {
	cfg, err := LoadExportServiceConfig(cm.configPath)
	if err != nil {
		return err
	}
	cm.config = cfg

	if cm.logger != nil {
		cm.logger.Debug("Configuration loaded",
			zap.String("path", cm.configPath),
			zap.String("presentation_url", cfg.Export.PresentationURL),
			zap.Bool("debug_dump", cfg.Debug.Enabled))
	}
	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *ExportServiceConfig {
	return cm.config
}

// LoadExportServiceConfig reads, defaults and validates a configuration file
func LoadExportServiceConfig(configPath string) (*ExportServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseExportServiceConfig(data)
}

// ParseExportServiceConfig decodes YAML, then applies defaults and validates
func ParseExportServiceConfig(data []byte) (*ExportServiceConfig, error) {
	var cfg ExportServiceConfig
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default
func (cfg *ExportServiceConfig) ApplyDefaults() {
	if cfg.Server.ID == "" {
		cfg.Server.ID = defaultServerID
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaultListen
	}

	c := &cfg.Chrome
	if c.PoolSize == "" {
		c.PoolSize = "auto"
	}
	if c.Warmup.URL == "" {
		c.Warmup.URL = "about:blank"
	}
	if c.Warmup.Timeout == 0 {
		c.Warmup.Timeout = types.Duration(defaultWarmupTimeout)
	}
	if c.Restart.AfterCount == 0 {
		c.Restart.AfterCount = defaultRestartAfterCount
	}
	if c.Restart.AfterTime == 0 {
		c.Restart.AfterTime = types.Duration(defaultRestartAfterTime)
	}
	if c.Viewport.Width == 0 {
		c.Viewport.Width = defaultViewportWidth
	}
	if c.Viewport.Height == 0 {
		c.Viewport.Height = defaultViewportHeight
	}
	if c.Viewport.Scale == 0 {
		c.Viewport.Scale = 1
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = types.Duration(defaultShutdownTimeout)
	}

	e := &cfg.Export
	if e.RootID == "" {
		e.RootID = defaultRootID
	}
	if e.NoteAttribute == "" {
		e.NoteAttribute = defaultNoteAttribute
	}
	if e.Readiness.Expression == "" {
		e.Readiness.Expression = defaultReadyExpression
	}
	if e.Readiness.Timeout == 0 {
		e.Readiness.Timeout = types.Duration(defaultReadyTimeout)
	}
	if e.Readiness.PollInterval == 0 {
		e.Readiness.PollInterval = types.Duration(defaultPollInterval)
	}
	if e.MaxTimeout == 0 {
		e.MaxTimeout = types.Duration(defaultMaxTimeout)
	}
	if e.RasterScale == 0 {
		e.RasterScale = c.Viewport.Scale
	}

	if cfg.Debug.Compression == "" {
		cfg.Debug.Compression = configtypes.CompressionSnappy
	}
	if cfg.Debug.Redis != nil && cfg.Debug.Redis.TTL == 0 {
		cfg.Debug.Redis.TTL = types.Duration(defaultDebugTTL)
	}

	if cfg.Cleanup.Interval == 0 {
		cfg.Cleanup.Interval = types.Duration(defaultCleanupInterval)
	}
	if cfg.Cleanup.Retention == 0 {
		cfg.Cleanup.Retention = types.Duration(defaultCleanupRetention)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = configtypes.LogLevelInfo
	}
	// console output when nothing is configured
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = configtypes.LogFormatText
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "deckexport"
	}
}

// Validate checks configuration validity; defaults are expected to be applied
func (cfg *ExportServiceConfig) Validate() error {
	if err := configtypes.ValidateListen(cfg.Server.Listen); err != nil {
		return fmt.Errorf("invalid server.listen: %w", err)
	}

	c := cfg.Chrome
	if c.PoolSize != "auto" {
		size, err := strconv.Atoi(c.PoolSize)
		if err != nil || size <= 0 {
			return fmt.Errorf("chrome.pool_size must be 'auto' or positive integer")
		}
	}
	if c.Warmup.Timeout <= 0 {
		return fmt.Errorf("chrome.warmup.timeout must be positive")
	}
	if c.Restart.AfterCount <= 0 {
		return fmt.Errorf("chrome.restart.after_count must be positive")
	}
	if c.Restart.AfterTime <= 0 {
		return fmt.Errorf("chrome.restart.after_time must be positive")
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return fmt.Errorf("chrome.viewport must be positive, got %dx%d", c.Viewport.Width, c.Viewport.Height)
	}
	if c.Viewport.Scale <= 0 {
		return fmt.Errorf("chrome.viewport.scale must be positive")
	}

	e := cfg.Export
	if e.PresentationURL == "" {
		return fmt.Errorf("export.presentation_url is required")
	}
	if !strings.Contains(e.PresentationURL, PresentationIDPlaceholder) {
		return fmt.Errorf("export.presentation_url must contain %s", PresentationIDPlaceholder)
	}
	if e.Readiness.Timeout <= 0 {
		return fmt.Errorf("export.readiness.timeout must be positive")
	}
	if e.Readiness.PollInterval <= 0 || e.Readiness.PollInterval > e.Readiness.Timeout {
		return fmt.Errorf("export.readiness.poll_interval must be positive and below the readiness timeout")
	}
	if e.MaxTimeout <= e.Readiness.Timeout {
		return fmt.Errorf("export.max_timeout (%s) must exceed export.readiness.timeout (%s)",
			time.Duration(e.MaxTimeout), time.Duration(e.Readiness.Timeout))
	}
	if e.RasterScale <= 0 {
		return fmt.Errorf("export.raster_scale must be positive")
	}
	if e.SlideConcurrency < 0 {
		return fmt.Errorf("export.slide_concurrency must be >= 0")
	}

	d := cfg.Debug
	if !configtypes.IsValidCompression(d.Compression) {
		return fmt.Errorf("invalid debug.compression: %s (must be none, snappy or lz4)", d.Compression)
	}
	if d.Enabled && d.Dir == "" && d.Redis == nil {
		return fmt.Errorf("debug.dir or debug.redis is required when debug is enabled")
	}
	if d.Redis != nil && d.Redis.Addr == "" {
		return fmt.Errorf("debug.redis.addr is required")
	}

	cl := cfg.Cleanup
	if cl.Enabled {
		if cl.Interval <= 0 || cl.Retention <= 0 {
			return fmt.Errorf("cleanup.interval and cleanup.retention must be positive")
		}
		if e.SnapshotDir == "" && d.Dir == "" {
			return fmt.Errorf("cleanup needs export.snapshot_dir or debug.dir")
		}
	}

	if err := validateLog(cfg.Log); err != nil {
		return err
	}
	return validateMetrics(cfg.Metrics, cfg.Server.Listen)
}

func validateLog(l configtypes.LogConfig) error {
	if !configtypes.IsValidLogLevel(l.Level) {
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn or error)", l.Level)
	}
	if l.Console.Enabled && l.Console.Format != configtypes.LogFormatJSON && l.Console.Format != configtypes.LogFormatConsole {
		return fmt.Errorf("invalid log.console.format: %s (must be json or console)", l.Console.Format)
	}
	if !l.File.Enabled {
		return nil
	}
	if l.File.Path == "" {
		return fmt.Errorf("log.file.path must be specified when file logging is enabled")
	}
	if l.File.Format != configtypes.LogFormatJSON && l.File.Format != configtypes.LogFormatText {
		return fmt.Errorf("invalid log.file.format: %s (must be json or text)", l.File.Format)
	}
	r := l.File.Rotation
	if r.MaxSize < 0 || r.MaxAge < 0 || r.MaxBackups < 0 {
		return fmt.Errorf("log.file.rotation values must be >= 0")
	}
	return nil
}

func validateMetrics(m configtypes.MetricsConfig, serverListen string) error {
	if !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("invalid metrics.path: %s (must start with /)", m.Path)
	}
	if !namespacePattern.MatchString(m.Namespace) {
		return fmt.Errorf("invalid metrics.namespace: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", m.Namespace)
	}
	if !m.Enabled {
		return nil
	}
	if err := configtypes.ValidateListen(m.Listen); err != nil {
		return fmt.Errorf("invalid metrics.listen: %w", err)
	}
	_, metricsPort, _ := configtypes.SplitListen(m.Listen)
	_, serverPort, _ := configtypes.SplitListen(serverListen)
	if metricsPort == serverPort {
		return fmt.Errorf("metrics.listen port (%d) must differ from server.listen port", metricsPort)
	}
	return nil
}

// GetConfigPath resolves path to an existing absolute file path
func GetConfigPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("config path cannot be empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("config file does not exist: %s", absPath)
	}
	return absPath, nil
}
