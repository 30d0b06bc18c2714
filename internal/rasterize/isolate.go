package rasterize

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/edgecomet/deckexport/pkg/types"
)

// hiddenOpacity is written to every element outside the target's lineage
const hiddenOpacity = "0"

// Isolator captures one element from the live surface with everything unrelated hidden
type Isolator struct {
	surface Surface
	scale   float64
	logger  *zap.Logger
}

// NewIsolator creates an Isolator capturing at scale device pixels per CSS pixel
func NewIsolator(surface Surface, scale float64, logger *zap.Logger) *Isolator {
	if scale <= 0 {
		scale = 1
	}
	return &Isolator{surface: surface, scale: scale, logger: logger}
}

// Capture runs one isolation transaction: record the inline opacity of every element, hide every
// element unrelated to target, take a screenshot cropped to clip, and restore all recorded values.
// Restoration runs on every exit once the snapshot is recorded, including capture failure and
// cancellation. Empty image data is ErrNoImageData.
func (i *Isolator) Capture(ctx context.Context, target types.NodeRef, clip types.Rect) (data []byte, err error) {
	all := i.surface.Elements()

	saved, err := i.surface.InlineOpacities(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("record opacity: %w", err)
	}

	defer func() {
		restoreCtx := context.WithoutCancel(ctx)
		if rerr := i.surface.SetInlineOpacities(restoreCtx, all, saved); rerr != nil {
			data = nil
			err = errors.Join(err, fmt.Errorf("%w: %v", ErrRestoreFailed, rerr))
		}
	}()

	var hidden []types.NodeRef
	for _, ref := range all {
		if !i.surface.Related(target, ref) {
			hidden = append(hidden, ref)
		}
	}
	values := make([]string, len(hidden))
	for k := range values {
		values[k] = hiddenOpacity
	}
	if err := i.surface.SetInlineOpacities(ctx, hidden, values); err != nil {
		return nil, fmt.Errorf("hide unrelated elements: %w", err)
	}

	data, err = i.surface.Capture(ctx, clip, i.scale)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoImageData
	}

	i.logger.Debug("Isolated capture",
		zap.Int64("node", int64(target)),
		zap.Int("hidden", len(hidden)),
		zap.Int("bytes", len(data)))
	return data, nil
}
