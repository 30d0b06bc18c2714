package configtypes

import (
	"github.com/edgecomet/deckexport/pkg/types"
)

// Log level constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// Diagnostic dump compression
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionLZ4    = "lz4"
)

type ServerConfig struct {
	ID      string         `yaml:"id"`
	Listen  string         `yaml:"listen"`
	Timeout types.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string         `yaml:"addr"`
	Password string         `yaml:"password"`
	DB       int            `yaml:"db"`
	TTL      types.Duration `yaml:"ttl"`
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
	// Stderr sends console output to stderr, leaving stdout for command output
	Stderr bool `yaml:"stderr,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

// CleanupConfig controls the retention sweep of snapshot and dump directories
type CleanupConfig struct {
	Enabled   bool           `yaml:"enabled"`
	Interval  types.Duration `yaml:"interval"`
	Retention types.Duration `yaml:"retention"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// IsValidLogLevel reports whether level is accepted by the logger
func IsValidLogLevel(level string) bool {
	switch level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// IsValidLogFormat reports whether format is accepted by the logger
func IsValidLogFormat(format string) bool {
	switch format {
	case LogFormatJSON, LogFormatConsole, LogFormatText:
		return true
	}
	return false
}

// IsValidCompression reports whether algo names a supported dump compression
func IsValidCompression(algo string) bool {
	switch algo {
	case "", CompressionNone, CompressionSnappy, CompressionLZ4:
		return true
	}
	return false
}
