package chrome

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
)

// Config holds the configuration for the browser pool and its tabs
type Config struct {
	// Pool configuration
	PoolSize        string        // "auto" or integer string
	WarmupURL       string        // URL to navigate during warmup
	WarmupTimeout   time.Duration // Warmup navigation timeout
	ShutdownTimeout time.Duration // Graceful shutdown timeout

	// Restart policies
	RestartAfterCount int           // Restart after N exports
	RestartAfterTime  time.Duration // Restart after duration

	// Tab viewport, matches the slide size so layout is identical to the editor
	ViewportWidth  int
	ViewportHeight int
	DeviceScale    float64
}

// DefaultConfig is used in tests and by the CLI when no config file is given
func DefaultConfig() *Config {
	return &Config{
		PoolSize:          "auto",
		WarmupURL:         "about:blank",
		WarmupTimeout:     10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		RestartAfterCount: 50,
		RestartAfterTime:  60 * time.Minute,
		ViewportWidth:     1280,
		ViewportHeight:    720,
		DeviceScale:       1.0,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.PoolSize != "auto" {
		size, err := strconv.Atoi(c.PoolSize)
		if err != nil {
			return fmt.Errorf("pool size must be 'auto' or valid integer")
		}
		if size <= 0 {
			return fmt.Errorf("pool size must be positive")
		}
	}

	if c.RestartAfterCount <= 0 {
		return fmt.Errorf("restart after count must be positive")
	}
	if c.RestartAfterTime <= 0 {
		return fmt.Errorf("restart after time must be positive")
	}
	if c.WarmupURL == "" {
		return fmt.Errorf("warmup URL cannot be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.ViewportWidth, c.ViewportHeight)
	}
	if c.DeviceScale <= 0 {
		return fmt.Errorf("device scale must be positive")
	}

	return nil
}

// CalculatePoolSize determines the pool size, sizing "auto" from system RAM
func (c *Config) CalculatePoolSize() int {
	if c.PoolSize == "auto" {
		return c.calculateAutoPoolSize()
	}

	size, err := strconv.Atoi(c.PoolSize)
	if err != nil || size <= 0 {
		return c.calculateAutoPoolSize()
	}
	return size
}

// calculateAutoPoolSize: (total RAM - 2GB) / 700MB per browser, clamped to [1, 16].
// Exports hold a tab for the whole deck, so instances are heavier than page renders.
func (c *Config) calculateAutoPoolSize() int {
	var totalRAMBytes int64
	if v, err := mem.VirtualMemory(); err != nil {
		totalRAMBytes = int64(8 * 1024 * 1024 * 1024)
	} else {
		totalRAMBytes = int64(v.Total)
	}

	reservedBytes := int64(2 * 1024 * 1024 * 1024)
	browserBytes := int64(700 * 1024 * 1024)

	poolSize := int((totalRAMBytes - reservedBytes) / browserBytes)
	if poolSize < 1 {
		poolSize = 1
	}
	if poolSize > 16 {
		poolSize = 16
	}
	return poolSize
}
