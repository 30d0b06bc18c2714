// Package cleanup removes expired export artifacts: per-session snapshot directories under
// export.snapshot_dir and diagnostic dump files under debug.dir.
package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/deckexport/internal/common/configtypes"
)

// Root names, used as metric labels
const (
	RootSnapshots = "snapshots"
	RootDumps     = "dumps"
)

// Root is one directory swept by the worker
type Root struct {
	Name string
	Path string
}

type Worker struct {
	config  configtypes.CleanupConfig
	roots   []Root
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorker sweeps roots with an empty Path skipped. metrics may be nil.
func NewWorker(config configtypes.CleanupConfig, roots []Root, logger *zap.Logger, metrics *Metrics) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	var active []Root
	for _, r := range roots {
		if r.Path != "" {
			active = append(active, r)
		}
	}
	return &Worker{
		config:  config,
		roots:   active,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (w *Worker) Start() {
	if !w.config.Enabled || len(w.roots) == 0 {
		w.logger.Info("Artifact cleanup worker disabled")
		return
	}

	interval := time.Duration(w.config.Interval)
	w.logger.Info("Artifact cleanup worker starting",
		zap.Duration("interval", interval),
		zap.Duration("retention", time.Duration(w.config.Retention)))

	ticker := time.NewTicker(interval)
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.RunOnce()
			case <-w.ctx.Done():
				w.logger.Info("Artifact cleanup worker shutting down")
				return
			}
		}
	}()
}

func (w *Worker) Shutdown() {
	w.cancel()
	w.wg.Wait()
}

// RunOnce sweeps every root and returns the number of removed entries
func (w *Worker) RunOnce() int {
	threshold := w.now().Add(-time.Duration(w.config.Retention))
	total := 0

	for _, root := range w.roots {
		start := time.Now()
		removed, err := w.sweep(root, threshold)
		total += removed

		status := "success"
		if err != nil {
			status = "failure"
			w.logger.Error("Cleanup failed",
				zap.String("root", root.Name),
				zap.String("path", root.Path),
				zap.Error(err))
		}
		if w.metrics != nil {
			w.metrics.RecordRun(root.Name, status, time.Since(start).Seconds())
			if removed > 0 {
				w.metrics.RecordRemoved(root.Name, removed)
			}
		}
		if removed > 0 {
			w.logger.Info("Expired artifacts removed",
				zap.String("root", root.Name),
				zap.Int("removed", removed))
		}
	}
	return total
}

// sweep removes direct children of root last modified before threshold.
// Snapshot roots hold one directory per session, dump roots hold files.
func (w *Worker) sweep(root Root, threshold time.Time) (int, error) {
	entries, err := os.ReadDir(root.Path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if err := w.ctx.Err(); err != nil {
			return removed, err
		}
		if root.Name == RootSnapshots && !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed concurrently
			continue
		}
		if !info.ModTime().Before(threshold) {
			continue
		}

		path := filepath.Join(root.Path, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			w.logger.Warn("Failed to remove expired artifact",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		removed++
		w.logger.Debug("Removed expired artifact",
			zap.String("path", path),
			zap.Duration("age", w.now().Sub(info.ModTime())))
	}
	return removed, nil
}
