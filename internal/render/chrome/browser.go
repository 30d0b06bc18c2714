package chrome

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// NewBrowser starts a browser process and warms it up
func NewBrowser(id int, config *Config, logger *zap.Logger) (*Browser, error) {
	now := time.Now().UTC()
	b := &Browser{
		ID:           id,
		createdAt:    now,
		logger:       logger,
		status:       int32(BrowserStatusIdle),
		lastUsedNano: now.UnixNano(),
	}

	if err := b.start(config); err != nil {
		return nil, fmt.Errorf("failed to create browser %d: %w", id, err)
	}

	b.logger.Info("Browser instance created",
		zap.Int("instance_id", id),
		zap.String("version", b.version))

	if err := b.Warmup(config); err != nil {
		b.logger.Warn("Browser warmup failed",
			zap.Int("instance_id", id),
			zap.Error(err))
	}

	return b, nil
}

// start launches the browser process
func (b *Browser) start(config *Config) error {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		// keep font hinting identical between tabs so rasters are stable
		chromedp.Flag("font-render-hinting", "none"),
		chromedp.Flag("force-color-profile", "srgb"),
		chromedp.WindowSize(config.ViewportWidth, config.ViewportHeight),
	}

	allocatorOpts := append(chromedp.DefaultExecAllocatorOptions[:], opts...)
	b.allocatorCtx, b.allocatorCancel = chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	b.ctx, b.cancel = chromedp.NewContext(b.allocatorCtx)

	if err := chromedp.Run(b.ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	if err := chromedp.Run(b.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, product, _, _, _, err := browser.GetVersion().Do(ctx)
		if err != nil {
			return err
		}
		b.version = product
		return nil
	})); err != nil {
		b.logger.Warn("Failed to read browser version",
			zap.Int("instance_id", b.ID),
			zap.Error(err))
	}

	return nil
}

// Warmup navigates to a test page to ensure the browser is ready
func (b *Browser) Warmup(config *Config) error {
	ctx, cancel := context.WithTimeout(b.ctx, config.WarmupTimeout)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.Navigate(config.WarmupURL)); err != nil {
		return fmt.Errorf("warmup navigation failed: %w", err)
	}
	return nil
}

// IsAlive checks if the browser is still responsive
func (b *Browser) IsAlive() bool {
	if BrowserStatus(atomic.LoadInt32(&b.status)) == BrowserStatusDead {
		return false
	}

	ctx, cancel := context.WithTimeout(b.ctx, 5*time.Second)
	defer cancel()

	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, _, err := browser.GetVersion().Do(ctx)
		return err
	}))
	return err == nil
}

// Age returns how long the process has been running
func (b *Browser) Age() time.Duration {
	return time.Now().UTC().Sub(b.createdAt)
}

// ShouldRestart reports whether the restart policy has been reached
func (b *Browser) ShouldRestart(config *Config) bool {
	if int(atomic.LoadInt32(&b.exportsDone)) >= config.RestartAfterCount {
		return true
	}
	return b.Age() >= config.RestartAfterTime
}

// Restart terminates and relaunches the browser process
func (b *Browser) Restart(config *Config) error {
	b.logger.Info("Restarting browser instance",
		zap.String("session_id", b.currentSessionID),
		zap.Int("instance_id", b.ID),
		zap.Int32("exports_done", b.ExportsDone()),
		zap.Duration("age", b.Age()))

	atomic.StoreInt32(&b.status, int32(BrowserStatusRestarting))
	b.terminate()

	now := time.Now().UTC()
	atomic.StoreInt32(&b.exportsDone, 0)
	b.createdAt = now
	atomic.StoreInt64(&b.lastUsedNano, now.UnixNano())

	if err := b.start(config); err != nil {
		atomic.StoreInt32(&b.status, int32(BrowserStatusDead))
		return fmt.Errorf("%w: %v", ErrRestartFailed, err)
	}
	atomic.StoreInt32(&b.status, int32(BrowserStatusIdle))

	if err := b.Warmup(config); err != nil {
		b.logger.Warn("Warmup failed after restart",
			zap.Int("instance_id", b.ID),
			zap.Error(err))
	}
	return nil
}

// Terminate shuts down the browser process
func (b *Browser) Terminate() {
	atomic.StoreInt32(&b.status, int32(BrowserStatusDead))
	b.terminate()
}

func (b *Browser) terminate() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.allocatorCancel != nil {
		b.allocatorCancel()
	}
}

// markUsed records a finished export
func (b *Browser) markUsed() {
	atomic.AddInt32(&b.exportsDone, 1)
	atomic.StoreInt64(&b.lastUsedNano, time.Now().UTC().UnixNano())
}

// NewTab opens a new tab context in this browser
func (b *Browser) NewTab() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(b.ctx)
}

// Status returns the current status
func (b *Browser) Status() BrowserStatus {
	return BrowserStatus(atomic.LoadInt32(&b.status))
}

// SetStatus updates the instance status
func (b *Browser) SetStatus(status BrowserStatus) {
	atomic.StoreInt32(&b.status, int32(status))
}

// ExportsDone returns the number of exports completed since the last restart
func (b *Browser) ExportsDone() int32 {
	return atomic.LoadInt32(&b.exportsDone)
}

// LastUsed returns the last used time
func (b *Browser) LastUsed() time.Time {
	return time.Unix(0, atomic.LoadInt64(&b.lastUsedNano))
}

// Version returns the browser product string
func (b *Browser) Version() string {
	return b.version
}
