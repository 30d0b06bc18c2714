package rasterize

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/edgecomet/deckexport/internal/extract/cssvalue"
	"github.com/edgecomet/deckexport/pkg/types"
)

// Capture strategies, used as metric labels
const (
	StrategyMarkup   = "markup"
	StrategyIsolated = "isolated"
)

// CaptureObserver is notified after every stored snapshot
type CaptureObserver interface {
	RecordCapture(strategy string)
}

// Stats summarizes one pass
type Stats struct {
	Markup   int
	Isolated int
	Skipped  int
}

// Total returns the number of stored snapshots
func (s Stats) Total() int {
	return s.Markup + s.Isolated
}

// Pass resolves every capture-flagged element of an export into a stored snapshot
type Pass struct {
	surface  Surface
	isolator *Isolator
	markup   *MarkupRasterizer
	store    *Store
	decoder  *cssvalue.Decoder
	scale    float64
	observer CaptureObserver
	logger   *zap.Logger
}

// NewPass wires the capture strategies for one surface. markup may be shared between passes;
// observer may be nil.
func NewPass(surface Surface, markup *MarkupRasterizer, store *Store, scale float64, observer CaptureObserver, logger *zap.Logger) *Pass {
	if scale <= 0 {
		scale = 1
	}
	if markup == nil {
		markup = NewMarkupRasterizer()
	}
	return &Pass{
		surface:  surface,
		isolator: NewIsolator(surface, scale, logger),
		markup:   markup,
		store:    store,
		decoder:  cssvalue.NewDecoder(surface),
		scale:    scale,
		observer: observer,
		logger:   logger,
	}
}

// Run captures slides in order and elements in paint order, one at a time.
// The first capture failure aborts the pass.
func (p *Pass) Run(ctx context.Context, slides []types.SlideAttributesResult) (Stats, error) {
	var stats Stats
	for si := range slides {
		for _, el := range slides[si].Elements {
			if !el.ShouldScreenshot {
				continue
			}
			strategy, err := p.capture(ctx, si, el)
			if err != nil {
				return stats, fmt.Errorf("slide %d element %s: %w", si, el.DOMPath, err)
			}
			switch strategy {
			case StrategyMarkup:
				stats.Markup++
			case StrategyIsolated:
				stats.Isolated++
			default:
				stats.Skipped++
				continue
			}
			if p.observer != nil {
				p.observer.RecordCapture(strategy)
			}
		}
	}
	return stats, nil
}

func (p *Pass) capture(ctx context.Context, slide int, el *types.ElementAttributes) (string, error) {
	rect, err := p.surface.Geometry(ctx, el.Node)
	if err != nil {
		return "", fmt.Errorf("geometry: %w", err)
	}
	if rect == nil || rect.Empty() {
		p.logger.Warn("Capture target lost its layout box, skipping",
			zap.Int("slide_index", slide),
			zap.String("dom_path", el.DOMPath))
		el.ShouldScreenshot = false
		el.ReleaseNode()
		return "", nil
	}

	var (
		data     []byte
		strategy string
	)
	if el.TagName == types.TagSVG {
		data, err = p.rasterizeMarkup(ctx, el.Node, *rect)
		if err != nil {
			p.logger.Debug("Markup rasterization failed, falling back to isolation",
				zap.Int("slide_index", slide),
				zap.String("dom_path", el.DOMPath),
				zap.Error(err))
		} else {
			strategy = StrategyMarkup
		}
	}
	if data == nil {
		data, err = p.isolator.Capture(ctx, el.Node, *rect)
		if err != nil {
			return "", err
		}
		data, err = fitImage(data, pixels(rect.Width*p.scale), pixels(rect.Height*p.scale))
		if err != nil {
			return "", err
		}
		strategy = StrategyIsolated
	}

	path, err := p.store.Save(SnapshotID(slide, el.DOMPath), data)
	if err != nil {
		return "", err
	}

	el.ImageSrc = path
	el.ShouldScreenshot = false
	el.ObjectFit = types.ObjectFitCover
	el.ReleaseNode()
	return strategy, nil
}

func (p *Pass) rasterizeMarkup(ctx context.Context, ref types.NodeRef, rect types.Rect) ([]byte, error) {
	markup, err := p.surface.OuterMarkup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if markup == "" {
		return nil, errors.New("empty markup")
	}
	style, err := p.surface.ComputedStyle(ctx, ref)
	if err != nil {
		return nil, err
	}
	color := p.decoder.ColorToHex(ctx, style.Get("color"))
	return p.markup.Rasterize(markup, color.Hex, pixels(rect.Width), pixels(rect.Height))
}

func pixels(v float64) int {
	return int(math.Round(v))
}
