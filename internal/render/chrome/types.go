package chrome

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BrowserStatus represents the current state of a browser instance
type BrowserStatus int

const (
	// BrowserStatusIdle indicates the instance is waiting in the pool
	BrowserStatusIdle BrowserStatus = iota
	// BrowserStatusExporting indicates the instance is owned by an export
	BrowserStatusExporting
	// BrowserStatusRestarting indicates the instance is being restarted
	BrowserStatusRestarting
	// BrowserStatusDead indicates the instance has crashed or been terminated
	BrowserStatusDead
)

// String returns the string representation of BrowserStatus
func (s BrowserStatus) String() string {
	switch s {
	case BrowserStatusIdle:
		return "idle"
	case BrowserStatusExporting:
		return "exporting"
	case BrowserStatusRestarting:
		return "restarting"
	case BrowserStatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Browser is a single headless browser process owned by the pool
type Browser struct {
	ID              int                // Immutable
	ctx             context.Context    // Replaced on restart
	cancel          context.CancelFunc // Replaced on restart
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	createdAt       time.Time
	logger          *zap.Logger
	version         string // e.g. "HeadlessChrome/126.0.6478.126"

	// Mutable fields - protected by atomic operations
	status           int32 // BrowserStatus as int32
	exportsDone      int32
	lastUsedNano     int64  // Unix nanoseconds
	currentSessionID string // Set by Acquire, cleared by Release
}

// PoolStats represents statistics about the browser pool
type PoolStats struct {
	TotalInstances     int           `json:"total_instances"`
	AvailableInstances int           `json:"available_instances"`
	ActiveInstances    int           `json:"active_instances"`
	TotalExports       int64         `json:"total_exports"`
	TotalRestarts      int64         `json:"total_restarts"`
	Uptime             time.Duration `json:"uptime"`
}

// PoolObserver is notified after every acquire and release
type PoolObserver interface {
	UpdateBrowserPool(total, available int)
}
