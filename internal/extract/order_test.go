package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgecomet/deckexport/pkg/types"
)

func TestSortPaintOrder(t *testing.T) {
	tests := []struct {
		name     string
		elements []*types.ElementAttributes
		want     []string
	}{
		{
			name: "shallower paints first at equal z-index",
			elements: []*types.ElementAttributes{
				{ID: "A", ZIndex: 0, Depth: 1, DOMPath: "0.2"},
				{ID: "B", ZIndex: 0, Depth: 0, DOMPath: "1"},
			},
			want: []string{"B", "A"},
		},
		{
			name: "z-index dominates depth",
			elements: []*types.ElementAttributes{
				{ID: "top", ZIndex: 2, Depth: 0, DOMPath: "0"},
				{ID: "nested", ZIndex: 0, Depth: 1, DOMPath: "1.0"},
				{ID: "below", ZIndex: -1, Depth: 1, DOMPath: "2.0"},
			},
			want: []string{"below", "nested", "top"},
		},
		{
			name: "path then id break ties",
			elements: []*types.ElementAttributes{
				{ID: "z", DOMPath: "3"},
				{ID: "b", DOMPath: "10"},
				{ID: "a", DOMPath: "10"},
			},
			want: []string{"a", "b", "z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SortPaintOrder(tt.elements)
			got := make([]string, len(tt.elements))
			for i, e := range tt.elements {
				got[i] = e.ID
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveSlideBackground(t *testing.T) {
	slide := types.Rect{Width: 1280, Height: 720}
	full := func(color string) *types.ElementAttributes {
		e := &types.ElementAttributes{
			Position: &types.Position{},
			Size:     &types.Size{Width: 1280, Height: 720},
		}
		if color != "" {
			e.Background = &types.Background{Color: color}
		}
		return e
	}
	partial := &types.ElementAttributes{
		Position:   &types.Position{Left: 1},
		Size:       &types.Size{Width: 1280, Height: 720},
		Background: &types.Background{Color: "ff0000"},
	}

	assert.Equal(t, "00ff00", ResolveSlideBackground([]*types.ElementAttributes{partial, full(""), full("00ff00"), full("0000ff")}, slide, "fallback"))
	assert.Equal(t, "fallback", ResolveSlideBackground([]*types.ElementAttributes{partial}, slide, "fallback"))
	assert.Equal(t, "", ResolveSlideBackground(nil, slide, ""))
}

func TestFilterRenderable(t *testing.T) {
	slide := types.Rect{Width: 1280, Height: 720}
	fullSize := &types.Size{Width: 1280, Height: 720}
	smallSize := &types.Size{Width: 10, Height: 10}

	elements := []*types.ElementAttributes{
		{ID: "bleed", Position: &types.Position{}, Size: fullSize, Background: &types.Background{Color: "fff"}},
		{ID: "bleed-image", TagName: "img", ImageSrc: "a.png", Position: &types.Position{}, Size: fullSize},
		{ID: "empty", Position: &types.Position{Left: 5}, Size: smallSize},
		{ID: "svg", TagName: "svg", Position: &types.Position{Left: 5}, Size: smallSize},
		{ID: "text", InnerText: "hi", Position: &types.Position{Left: 5}, Size: smallSize},
		{ID: "border", Border: &types.Border{Width: 1}, Position: &types.Position{Left: 5}, Size: smallSize},
		{ID: "shadow", Shadow: &types.Shadow{}, Position: &types.Position{Left: 5}, Size: smallSize},
		{ID: "markup", InnerHTML: "<b>x</b>", Position: &types.Position{Left: 5}, Size: smallSize},
	}

	kept := FilterRenderable(elements, slide)
	ids := make([]string, len(kept))
	for i, e := range kept {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"bleed-image", "svg", "text", "border", "shadow", "markup"}, ids)
}

func TestSynthesizeShadowBackgrounds(t *testing.T) {
	own := &types.Background{Color: "123456"}
	elements := []*types.ElementAttributes{
		{ID: "shadow", Shadow: &types.Shadow{}},
		{ID: "shadow-with-fill", Shadow: &types.Shadow{}, Background: own},
		{ID: "plain"},
	}

	SynthesizeShadowBackgrounds(elements, "abcdef")
	assert.Equal(t, "abcdef", elements[0].Background.Color)
	assert.Same(t, own, elements[1].Background)
	assert.Nil(t, elements[2].Background)

	bare := []*types.ElementAttributes{{Shadow: &types.Shadow{}}}
	SynthesizeShadowBackgrounds(bare, "")
	assert.Nil(t, bare[0].Background)
}
