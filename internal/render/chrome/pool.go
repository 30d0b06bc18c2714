package chrome

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pool manages browser instances with a FIFO queue. One export owns one instance.
type Pool struct {
	config        *Config
	logger        *zap.Logger
	instances     []*Browser
	queue         chan int // FIFO queue of available instance IDs
	mu            sync.RWMutex
	active        atomic.Int32
	totalExports  atomic.Int64
	totalRestarts atomic.Int64
	createdAt     time.Time
	ctx           context.Context
	cancel        context.CancelFunc
	observer      PoolObserver
}

// NewPool starts every browser of the pool; observer may be nil
func NewPool(config *Config, observer PoolObserver, logger *zap.Logger) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	poolSize := config.CalculatePoolSize()
	logger.Info("Initializing browser pool", zap.Int("pool_size", poolSize))

	ctx, cancel := context.WithCancel(context.Background())
	pool := &Pool{
		config:    config,
		logger:    logger,
		instances: make([]*Browser, poolSize),
		queue:     make(chan int, poolSize),
		createdAt: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
		observer:  observer,
	}

	for i := 0; i < poolSize; i++ {
		b, err := NewBrowser(i, config, logger)
		if err != nil {
			pool.Shutdown()
			return nil, fmt.Errorf("failed to create browser %d: %w", i, err)
		}
		pool.instances[i] = b
		pool.queue <- i
	}

	pool.notify()
	logger.Info("Browser pool initialized", zap.Int("instances", poolSize))
	return pool, nil
}

// Acquire takes a browser from the pool, blocking until one is free or ctx is done
func (p *Pool) Acquire(ctx context.Context, sessionID string) (*Browser, error) {
	var id int
	select {
	case <-p.ctx.Done():
		return nil, ErrPoolShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	case id = <-p.queue:
	}

	select {
	case <-p.ctx.Done():
		select {
		case p.queue <- id:
		default:
		}
		return nil, ErrPoolShutdown
	default:
	}

	p.active.Add(1)

	p.mu.RLock()
	b := p.instances[id]
	p.mu.RUnlock()

	if !b.IsAlive() {
		p.logger.Warn("Browser instance is dead, restarting",
			zap.String("session_id", sessionID),
			zap.Int("instance_id", id))

		if err := b.Restart(p.config); err != nil {
			p.logger.Error("Failed to restart dead instance",
				zap.String("session_id", sessionID),
				zap.Int("instance_id", id),
				zap.Error(err))
			select {
			case p.queue <- id:
			case <-p.ctx.Done():
			}
			p.active.Add(-1)
			return nil, fmt.Errorf("%w: instance %d", ErrInstanceDead, id)
		}
		p.totalRestarts.Add(1)
	}

	if b.ShouldRestart(p.config) {
		if err := b.Restart(p.config); err != nil {
			p.logger.Error("Failed to restart instance",
				zap.String("session_id", sessionID),
				zap.Int("instance_id", id),
				zap.Error(err))
		} else {
			p.totalRestarts.Add(1)
		}
	}

	b.SetStatus(BrowserStatusExporting)
	b.currentSessionID = sessionID

	p.logger.Debug("Browser instance acquired",
		zap.String("session_id", sessionID),
		zap.Int("instance_id", id),
		zap.Int32("active", p.active.Load()))

	p.notify()
	return b, nil
}

// Release returns a browser to the pool
func (p *Pool) Release(b *Browser) {
	sessionID := b.currentSessionID
	b.SetStatus(BrowserStatusIdle)
	b.markUsed()
	p.totalExports.Add(1)
	b.currentSessionID = ""
	p.active.Add(-1)

	select {
	case p.queue <- b.ID:
		p.logger.Debug("Browser instance released",
			zap.String("session_id", sessionID),
			zap.Int("instance_id", b.ID),
			zap.Int32("exports_done", b.ExportsDone()))
	case <-p.ctx.Done():
		p.logger.Debug("Discarding instance during shutdown",
			zap.String("session_id", sessionID),
			zap.Int("instance_id", b.ID))
	default:
		p.logger.Error("Queue full when returning instance - possible leak",
			zap.String("session_id", sessionID),
			zap.Int("instance_id", b.ID),
			zap.Int("queue_len", len(p.queue)))
	}

	p.notify()
}

func (p *Pool) notify() {
	if p.observer == nil {
		return
	}
	stats := p.Stats()
	p.observer.UpdateBrowserPool(stats.TotalInstances, stats.AvailableInstances)
}

// Stats returns current pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	total := len(p.instances)
	p.mu.RUnlock()

	return PoolStats{
		TotalInstances:     total,
		AvailableInstances: len(p.queue),
		ActiveInstances:    int(p.active.Load()),
		TotalExports:       p.totalExports.Load(),
		TotalRestarts:      p.totalRestarts.Load(),
		Uptime:             time.Since(p.createdAt),
	}
}

// Shutdown gracefully shuts down all instances with the configured timeout
func (p *Pool) Shutdown() error {
	return p.ShutdownWithTimeout(p.config.ShutdownTimeout)
}

// ShutdownWithTimeout waits for running exports up to timeout, then terminates every instance
func (p *Pool) ShutdownWithTimeout(timeout time.Duration) error {
	p.logger.Info("Initiating browser pool shutdown",
		zap.Duration("timeout", timeout),
		zap.Int32("active_exports", p.active.Load()))

	p.cancel()

	if p.waitForActive(timeout) {
		p.logger.Info("All active exports completed gracefully")
	} else {
		p.logger.Warn("Shutdown timeout exceeded, forcing termination",
			zap.Int32("stuck_exports", p.active.Load()))
	}

	p.mu.Lock()
	for _, b := range p.instances {
		if b != nil {
			b.Terminate()
		}
	}
	p.mu.Unlock()

	stats := p.Stats()
	p.logger.Info("Browser pool shut down",
		zap.Int64("total_exports", stats.TotalExports),
		zap.Int64("total_restarts", stats.TotalRestarts),
		zap.Duration("uptime", stats.Uptime))
	return nil
}

// waitForActive returns false when timeout elapsed with exports still running
func (p *Pool) waitForActive(timeout time.Duration) bool {
	deadline := time.Now().UTC().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.active.Load() == 0 {
			return true
		}
		<-ticker.C
		if time.Now().UTC().After(deadline) {
			return false
		}
	}
}

// Size returns the total number of instances in the pool
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.instances)
}

// Available returns the number of idle instances
func (p *Pool) Available() int {
	return len(p.queue)
}
