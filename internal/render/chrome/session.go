package chrome

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Session is one browser tab holding a loaded presentation
type Session struct {
	ID        string
	browserID int
	ctx       context.Context
	cancel    context.CancelFunc
	stop      func() bool
	logger    *zap.Logger
}

// OpenSession opens a tab in b. The tab is closed when ctx is done or Close is called.
func OpenSession(ctx context.Context, b *Browser, sessionID string, logger *zap.Logger) *Session {
	tabCtx, tabCancel := b.NewTab()
	return &Session{
		ID:        sessionID,
		browserID: b.ID,
		ctx:       tabCtx,
		cancel:    tabCancel,
		stop:      context.AfterFunc(ctx, tabCancel),
		logger:    logger,
	}
}

// Close releases the tab
func (s *Session) Close() {
	s.stop()
	if err := chromedp.Run(s.ctx, page.Close()); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("Closing tab failed",
			zap.String("session_id", s.ID),
			zap.Int("instance_id", s.browserID),
			zap.Error(err))
	}
	s.cancel()
}

// Navigate emulates the slide viewport and loads url until the body is ready
func (s *Session) Navigate(url string, config *Config) error {
	start := time.Now()
	err := chromedp.Run(s.ctx,
		page.Enable(),
		emulation.SetDeviceMetricsOverride(
			int64(config.ViewportWidth),
			int64(config.ViewportHeight),
			config.DeviceScale,
			false,
		),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errorText, _, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return errors.Join(ErrNavigateFailed, err)
			}
			if errorText != "" {
				return fmt.Errorf("%w: %s", ErrNavigateFailed, errorText)
			}
			return nil
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return err
	}

	s.logger.Debug("Presentation loaded",
		zap.String("session_id", s.ID),
		zap.Int("instance_id", s.browserID),
		zap.String("url", url),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// WaitReady polls expression until it evaluates to true. This is the only point where the
// pipeline waits on the page; not observing the signal within timeout is ErrReadinessTimeout.
func (s *Session) WaitReady(ctx context.Context, expression string, timeout, interval time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		var ready bool
		err := chromedp.Run(s.ctx, chromedp.Evaluate(expression, &ready))
		if err == nil && ready {
			s.logger.Debug("Readiness signal observed",
				zap.String("session_id", s.ID),
				zap.Int("attempts", attempts))
			return nil
		}
		if err != nil && s.ctx.Err() == nil {
			// undefined or non-boolean results are "not yet"
			s.logger.Debug("Readiness probe not satisfied",
				zap.String("session_id", s.ID),
				zap.Error(err))
		}

		select {
		case <-timer.C:
			return fmt.Errorf("%w after %s (%d probes)", ErrReadinessTimeout, timeout, attempts)
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return s.ctx.Err()
		case <-ticker.C:
		}
	}
}

// Document snapshots the full DOM tree of the loaded page
func (s *Session) Document() (*Document, error) {
	var root *Document
	err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var lastErr error
		for attempt := 0; attempt < 3; attempt++ {
			node, err := dom.GetDocument().WithDepth(-1).Do(ctx)
			if err != nil {
				lastErr = err
				time.Sleep(300 * time.Millisecond)
				continue
			}
			root = newDocument(chromedp.FromContext(s.ctx).Target, node, s.logger.With(zap.String("session_id", s.ID)))
			return nil
		}
		return fmt.Errorf("%w after 3 attempts: %v", ErrDocumentSnapshot, lastErr)
	}))
	if err != nil {
		return nil, err
	}
	return root, nil
}
