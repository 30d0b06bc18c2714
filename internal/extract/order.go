package extract

import (
	"sort"

	"github.com/edgecomet/deckexport/pkg/types"
)

// SortPaintOrder orders elements by (z-index, depth, domPath, id), all ascending.
// Later elements paint on top.
func SortPaintOrder(elements []*types.ElementAttributes) {
	sort.SliceStable(elements, func(i, j int) bool {
		a, b := elements[i], elements[j]
		if a.ZIndex != b.ZIndex {
			return a.ZIndex < b.ZIndex
		}
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		if a.DOMPath != b.DOMPath {
			return a.DOMPath < b.DOMPath
		}
		return a.ID < b.ID
	})
}

// isFullBleed reports whether the element exactly covers the slide rectangle.
// Element positions are already slide-relative.
func isFullBleed(e *types.ElementAttributes, slide types.Rect) bool {
	if e.Position == nil || e.Size == nil {
		return false
	}
	return e.Position.Left == slide.X && e.Position.Top == slide.Y &&
		e.Size.Width == slide.Width && e.Size.Height == slide.Height
}

// ResolveSlideBackground returns the background color of the first full-bleed element that has
// one, or fallback.
func ResolveSlideBackground(elements []*types.ElementAttributes, slide types.Rect, fallback string) string {
	for _, e := range elements {
		if !isFullBleed(e, slide) {
			continue
		}
		if e.Background != nil && e.Background.Color != "" {
			return e.Background.Color
		}
	}
	return fallback
}

// FilterRenderable drops full-bleed elements without special content and elements that paint
// nothing (no background, border, shadow or text). The input slice is reused.
func FilterRenderable(elements []*types.ElementAttributes, slide types.Rect) []*types.ElementAttributes {
	kept := elements[:0]
	for _, e := range elements {
		special := e.HasSpecialContent()
		if isFullBleed(e, slide) && !special {
			continue
		}
		visible := e.Background != nil || e.Border != nil || e.Shadow != nil || e.HasText()
		if !visible && !special {
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(elements); i++ {
		elements[i] = nil
	}
	return kept
}

// SynthesizeShadowBackgrounds gives shadowed elements without a fill the slide background,
// so the shadow renders behind a solid shape.
func SynthesizeShadowBackgrounds(elements []*types.ElementAttributes, color string) {
	if color == "" {
		return
	}
	for _, e := range elements {
		if e.Shadow != nil && e.Background == nil {
			e.Background = &types.Background{Color: color}
		}
	}
}
