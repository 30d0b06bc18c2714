package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgecomet/deckexport/internal/extract/cssvalue"
	"github.com/edgecomet/deckexport/pkg/types"
)

// editableIDAttribute marks nodes the editor can address individually
const editableIDAttribute = "data-editable-id"

// frame is one ancestor on the path from the slide root to the node being resolved
type frame struct {
	tag     string
	style   cssvalue.Style
	liIndex int // position among sibling list items, -1 when not a list item
}

// Resolver combines geometry, decoded style fragments, identity and content into one record
type Resolver struct {
	accessor DocumentAccessor
	decoder  *cssvalue.Decoder
}

// NewResolver creates a Resolver over an accessor
func NewResolver(accessor DocumentAccessor) *Resolver {
	return &Resolver{
		accessor: accessor,
		decoder:  cssvalue.NewDecoder(accessor),
	}
}

// resolved is a record together with the inputs traversal still needs
type resolved struct {
	attrs *types.ElementAttributes
	rect  *types.Rect
	style cssvalue.Style
}

// Resolve produces the record for one node. Position is in document coordinates here;
// the flattening engine translates it to the slide origin.
func (r *Resolver) Resolve(ctx context.Context, node *Node, ancestors []frame, liIndex int) (*resolved, error) {
	style, err := r.accessor.ComputedStyle(ctx, node.Ref)
	if err != nil {
		return nil, fmt.Errorf("computed style of <%s>: %w", node.Tag, err)
	}
	rect, err := r.accessor.Geometry(ctx, node.Ref)
	if err != nil {
		return nil, fmt.Errorf("geometry of <%s>: %w", node.Tag, err)
	}

	attrs := &types.ElementAttributes{
		TagName:    node.Tag,
		ID:         node.Attr("id"),
		ClassName:  node.Attr("class"),
		EditableID: node.Attr(editableIDAttribute),
		ZIndex:     cssvalue.ParseZIndex(style.Get("z-index")),
		Opacity:    cssvalue.ParseOpacity(style.Get("opacity")),
		TextWrap:   style.Get("white-space") != "nowrap",
		Node:       node.Ref,
	}

	if rect != nil {
		attrs.Position = &types.Position{Left: rect.X, Top: rect.Y}
		attrs.Size = &types.Size{Width: rect.Width, Height: rect.Height}
	}

	if !node.HasElementChildren {
		attrs.InnerText = node.Text
	}
	if node.Tag == "img" {
		attrs.ImageSrc = node.Attr("src")
	}

	if align := style.Get("text-align"); align != "left" && align != "start" && align != "" {
		attrs.TextAlign = align
	}

	attrs.Background = r.decoder.ParseBackground(ctx, style.Get("background-color"), style.Get("background-image"))
	attrs.Border = r.decoder.ParseBorder(ctx, style.Get("border-top-width"), style.Get("border-top-color"))
	attrs.Shadow = r.decoder.ParseShadow(ctx, style.Get("box-shadow"))
	attrs.Font = r.decoder.ParseFont(ctx, style)
	attrs.Filters = cssvalue.ParseFilters(style.Get("filter"))
	attrs.Margin = cssvalue.ParseSpacing(style, "margin")
	attrs.Padding = cssvalue.ParseSpacing(style, "padding")

	var width, height float64
	if rect != nil {
		width, height = rect.Width, rect.Height
	}
	attrs.BorderRadius = cssvalue.ParseBorderRadius(style.Get("border-radius"), width, height)
	attrs.Shape = cssvalue.ShapeFor(node.Tag, attrs.BorderRadius)

	if attrs.InnerText != "" {
		overflows, err := r.accessor.Overflows(ctx, node.Ref)
		if err != nil {
			return nil, fmt.Errorf("overflow of <%s>: %w", node.Tag, err)
		}
		attrs.LineHeight = cssvalue.ParseLineHeight(style, cssvalue.LineHeightInput{
			Content:   attrs.InnerText,
			Height:    height,
			Overflows: overflows,
		})
	}

	self := frame{tag: node.Tag, style: style, liIndex: liIndex}
	attrs.List = listContext(self, ancestors)

	return &resolved{attrs: attrs, rect: rect, style: style}, nil
}

func isListContainer(tag string) bool {
	return tag == "ul" || tag == "ol"
}

// listContext derives list membership from the node and its ancestor chain (nearest last).
// The chain never includes the slide root.
func listContext(self frame, ancestors []frame) *types.ListContext {
	item := -1
	if self.tag == "li" {
		item = len(ancestors)
	} else {
		for i := len(ancestors) - 1; i >= 0; i-- {
			if ancestors[i].tag == "li" {
				item = i
				break
			}
		}
	}
	if item < 0 {
		return nil
	}

	lc := &types.ListContext{IsListItem: true}
	if item == len(ancestors) {
		lc.Index = self.liIndex
	} else {
		lc.Index = ancestors[item].liIndex
	}
	if lc.Index < 0 {
		lc.Index = 0
	}

	for i := item - 1; i >= 0; i-- {
		if isListContainer(ancestors[i].tag) {
			lc.ListType = ancestors[i].tag
			break
		}
	}

	containers := 0
	for _, a := range ancestors {
		if !isListContainer(a.tag) {
			continue
		}
		containers++
		lc.Indent += lengthOf(a.style, "padding-left") + lengthOf(a.style, "margin-left")
	}
	if containers > 1 {
		lc.Level = containers - 1
	}
	return lc
}

func lengthOf(st cssvalue.Style, property string) float64 {
	v, _ := cssvalue.ParseLength(st.Get(property))
	return v
}

// inlineFormattingTags may appear inside a paragraph that is emitted as one rich-text block
var inlineFormattingTags = map[string]bool{
	"span":   true,
	"strong": true,
	"b":      true,
	"em":     true,
	"i":      true,
	"u":      true,
	"s":      true,
	"strike": true,
	"del":    true,
	"ins":    true,
	"mark":   true,
	"sub":    true,
	"sup":    true,
	"small":  true,
	"code":   true,
	"a":      true,
	"br":     true,
	"font":   true,
	"label":  true,
}

// onlyInlineDescendants reports whether every descendant element is inline formatting
func (r *Resolver) onlyInlineDescendants(ctx context.Context, node *Node) (bool, error) {
	children, err := r.accessor.Children(ctx, node.Ref)
	if err != nil {
		return false, err
	}
	for _, c := range children {
		if !inlineFormattingTags[c.Tag] {
			return false, nil
		}
		if !c.HasElementChildren {
			continue
		}
		ok, err := r.onlyInlineDescendants(ctx, c)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// collapseParagraph turns a paragraph into a leaf carrying its inline markup
func (r *Resolver) collapseParagraph(ctx context.Context, node *Node, res *resolved) error {
	markup, err := r.accessor.InnerMarkup(ctx, node.Ref)
	if err != nil {
		return fmt.Errorf("inner markup of <p>: %w", err)
	}
	text, err := r.accessor.TextContent(ctx, node.Ref)
	if err != nil {
		return fmt.Errorf("text content of <p>: %w", err)
	}
	overflows, err := r.accessor.Overflows(ctx, node.Ref)
	if err != nil {
		return fmt.Errorf("overflow of <p>: %w", err)
	}

	attrs := res.attrs
	attrs.InnerHTML = strings.TrimSpace(markup)
	attrs.InnerText = strings.TrimSpace(text)

	var height float64
	if res.rect != nil {
		height = res.rect.Height
	}
	attrs.LineHeight = cssvalue.ParseLineHeight(res.style, cssvalue.LineHeightInput{
		Content:   attrs.InnerHTML,
		Height:    height,
		Overflows: overflows,
	})
	return nil
}
