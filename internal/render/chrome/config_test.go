package chrome

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_CalculatePoolSize(t *testing.T) {
	config := DefaultConfig()

	config.PoolSize = "4"
	assert.Equal(t, 4, config.CalculatePoolSize())

	config.PoolSize = "auto"
	autoSize := config.CalculatePoolSize()
	assert.GreaterOrEqual(t, autoSize, 1, "Should have at least 1 instance")
	assert.LessOrEqual(t, autoSize, 16, "Should not exceed 16 instances")

	config.PoolSize = "garbage"
	assert.Equal(t, autoSize, config.CalculatePoolSize(), "Invalid size falls back to auto")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		expectErr bool
	}{
		{
			name:      "valid config",
			modifyFn:  func(c *Config) {},
			expectErr: false,
		},
		{
			name:      "negative pool size",
			modifyFn:  func(c *Config) { c.PoolSize = "-1" },
			expectErr: true,
		},
		{
			name:      "non-numeric pool size",
			modifyFn:  func(c *Config) { c.PoolSize = "many" },
			expectErr: true,
		},
		{
			name:      "zero restart count",
			modifyFn:  func(c *Config) { c.RestartAfterCount = 0 },
			expectErr: true,
		},
		{
			name:      "empty warmup URL",
			modifyFn:  func(c *Config) { c.WarmupURL = "" },
			expectErr: true,
		},
		{
			name:      "zero viewport",
			modifyFn:  func(c *Config) { c.ViewportHeight = 0 },
			expectErr: true,
		},
		{
			name:      "zero device scale",
			modifyFn:  func(c *Config) { c.DeviceScale = 0 },
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modifyFn(config)

			err := config.Validate()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBrowserStatus_String(t *testing.T) {
	tests := []struct {
		status   BrowserStatus
		expected string
	}{
		{BrowserStatusIdle, "idle"},
		{BrowserStatusExporting, "exporting"},
		{BrowserStatusRestarting, "restarting"},
		{BrowserStatusDead, "dead"},
		{BrowserStatus(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.String())
		})
	}
}
