package extract

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/edgecomet/deckexport/pkg/types"
)

// Fallback slide size used when the slide container has no resolvable geometry
const (
	FallbackSlideWidth  = 1280
	FallbackSlideHeight = 720
)

// noiseTags never produce visible records and are skipped together with their subtree
var noiseTags = map[string]bool{
	"style":          true,
	"script":         true,
	"link":           true,
	"meta":           true,
	"path":           true,
	"g":              true,
	"defs":           true,
	"use":            true,
	"clippath":       true,
	"lineargradient": true,
	"radialgradient": true,
	"stop":           true,
	"mask":           true,
	"symbol":         true,
}

// inherited is the style context handed from a node to its children
type inherited struct {
	font       *types.Font
	background *types.Background
	radius     []float64
	zIndex     int
	opacity    *float64
}

// traversal is the immutable context of one recursion level
type traversal struct {
	root      types.Rect
	depth     int
	path      string
	ancestors []frame
	inherit   inherited
}

// child derives the context for the children of node
func (t traversal) child(f frame, path string, next inherited) traversal {
	ancestors := make([]frame, len(t.ancestors), len(t.ancestors)+1)
	copy(ancestors, t.ancestors)
	return traversal{
		root:      t.root,
		depth:     t.depth + 1,
		path:      path,
		ancestors: append(ancestors, f),
		inherit:   next,
	}
}

// Extractor flattens one slide container into an ordered element list.
// It holds no per-slide state and is safe for concurrent use.
type Extractor struct {
	accessor DocumentAccessor
	resolver *Resolver
	logger   *zap.Logger
}

// NewExtractor creates an Extractor over a document accessor
func NewExtractor(accessor DocumentAccessor, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		accessor: accessor,
		resolver: NewResolver(accessor),
		logger:   logger,
	}
}

// ExtractSlide walks the slide container and returns its elements in paint order
// with the resolved slide background.
func (e *Extractor) ExtractSlide(ctx context.Context, slide *Node) (*types.SlideAttributesResult, error) {
	root, err := e.resolver.Resolve(ctx, slide, nil, -1)
	if err != nil {
		return nil, fmt.Errorf("resolve slide container: %w", err)
	}

	rootRect := types.Rect{Width: FallbackSlideWidth, Height: FallbackSlideHeight}
	if root.rect != nil && !root.rect.Empty() {
		rootRect = *root.rect
	} else {
		e.logger.Debug("Slide container has no geometry, using fallback size",
			zap.Float64("width", rootRect.Width),
			zap.Float64("height", rootRect.Height))
	}

	tr := traversal{
		root: rootRect,
		inherit: inherited{
			font:       root.attrs.Font,
			background: root.attrs.Background,
			radius:     root.attrs.BorderRadius,
			zIndex:     root.attrs.ZIndex,
			opacity:    root.attrs.Opacity,
		},
	}

	elements, err := e.walk(ctx, slide, tr)
	if err != nil {
		return nil, err
	}
	collected := len(elements)

	var fallbackBackground string
	if root.attrs.Background != nil {
		fallbackBackground = root.attrs.Background.Color
	}
	slideRect := types.Rect{Width: rootRect.Width, Height: rootRect.Height}

	background := ResolveSlideBackground(elements, slideRect, fallbackBackground)
	elements = FilterRenderable(elements, slideRect)
	SortPaintOrder(elements)
	SynthesizeShadowBackgrounds(elements, background)

	e.logger.Debug("Slide flattened",
		zap.Int("collected", collected),
		zap.Int("elements", len(elements)),
		zap.String("background", background))

	return &types.SlideAttributesResult{
		Elements:        elements,
		BackgroundColor: background,
	}, nil
}

// walk flattens the children of parent. Results of deeper levels are returned unsorted.
func (e *Extractor) walk(ctx context.Context, parent *Node, tr traversal) ([]*types.ElementAttributes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	children, err := e.accessor.Children(ctx, parent.Ref)
	if err != nil {
		return nil, fmt.Errorf("children of %q: %w", tr.path, err)
	}

	var out []*types.ElementAttributes
	liIndex := 0
	for i, child := range children {
		path := strconv.Itoa(i)
		if tr.path != "" {
			path = tr.path + "." + path
		}

		itemIndex := -1
		if child.Tag == "li" {
			itemIndex = liIndex
			liIndex++
		}

		if noiseTags[child.Tag] {
			continue
		}

		res, err := e.resolver.Resolve(ctx, child, tr.ancestors, itemIndex)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", path, err)
		}
		attrs := res.attrs
		attrs.DOMPath = path
		attrs.Depth = tr.depth

		// zero-area nodes take their subtree with them
		if res.rect == nil || res.rect.Empty() {
			continue
		}
		attrs.Position = &types.Position{
			Left: res.rect.X - tr.root.X,
			Top:  res.rect.Y - tr.root.Y,
		}

		leaf := false
		if child.Tag == "p" && child.HasElementChildren {
			inline, err := e.resolver.onlyInlineDescendants(ctx, child)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", path, err)
			}
			if inline {
				if err := e.resolver.collapseParagraph(ctx, child, res); err != nil {
					return nil, fmt.Errorf("node %s: %w", path, err)
				}
				leaf = true
			}
		}

		next := applyInheritance(attrs, tr.inherit)

		if types.IsCaptureTag(child.Tag) {
			attrs.ShouldScreenshot = true
		} else {
			attrs.ReleaseNode()
		}

		out = append(out, attrs)

		if leaf || child.Tag == types.TagCanvas || child.Tag == types.TagTable {
			continue
		}

		f := frame{tag: child.Tag, style: res.style, liIndex: itemIndex}
		sub, err := e.walk(ctx, child, tr.child(f, path, next))
		if err != nil {
			return nil, err
		}
		for _, s := range sub {
			s.Depth = tr.depth + 1
		}
		out = append(out, sub...)
	}
	return out, nil
}

// applyInheritance fills unset values from the ancestor context and returns the context
// for the node's children. Values the node resolved itself replace the inherited ones.
func applyInheritance(attrs *types.ElementAttributes, in inherited) inherited {
	if attrs.Font == nil && attrs.HasText() && in.font != nil {
		f := *in.font
		attrs.Font = &f
	}
	if attrs.Background == nil && attrs.Shadow != nil && in.background != nil {
		bg := *in.background
		attrs.Background = &bg
	}
	if attrs.BorderRadius == nil && in.radius != nil {
		attrs.BorderRadius = append([]float64(nil), in.radius...)
	}
	if attrs.ZIndex == 0 {
		attrs.ZIndex = in.zIndex
	}
	if attrs.Opacity == nil && in.opacity != nil {
		o := *in.opacity
		attrs.Opacity = &o
	}

	next := in
	if attrs.Font != nil {
		next.font = attrs.Font
	}
	if attrs.Background != nil {
		next.background = attrs.Background
	}
	next.radius = attrs.BorderRadius
	next.zIndex = attrs.ZIndex
	next.opacity = attrs.Opacity
	return next
}
