package extract

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/edgecomet/deckexport/internal/extract/cssvalue"
	"github.com/edgecomet/deckexport/pkg/types"
)

// el is a node of the in-memory document used by the tests
type el struct {
	tag      string
	attrs    map[string]string
	text     string
	markup   string
	style    cssvalue.Style
	rect     *types.Rect
	overflow bool
	children []*el

	ref types.NodeRef
}

func box(x, y, w, h float64) *types.Rect {
	return &types.Rect{X: x, Y: y, Width: w, Height: h}
}

func (e *el) with(children ...*el) *el {
	e.children = append(e.children, children...)
	return e
}

// fakeDocument implements DocumentAccessor over a tree of el values
type fakeDocument struct {
	mu     sync.Mutex
	nodes  map[types.NodeRef]*el
	next   types.NodeRef
	colors map[string]string
	calls  map[string]int
}

func newFakeDocument(root *el) *fakeDocument {
	d := &fakeDocument{
		nodes: make(map[types.NodeRef]*el),
		colors: map[string]string{
			"black": "#000000",
			"white": "#ffffff",
			"red":   "#ff0000",
			"navy":  "#000080",
		},
		calls: make(map[string]int),
	}
	d.register(root)
	return d
}

func (d *fakeDocument) register(e *el) {
	d.next++
	e.ref = d.next
	d.nodes[e.ref] = e
	for _, c := range e.children {
		d.register(c)
	}
}

func (d *fakeDocument) node(e *el) *Node {
	return &Node{
		Ref:                e.ref,
		Tag:                e.tag,
		Attributes:         e.attrs,
		Text:               e.text,
		HasElementChildren: len(e.children) > 0,
	}
}

func (d *fakeDocument) lookup(op string, ref types.NodeRef) (*el, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[op]++
	e, ok := d.nodes[ref]
	if !ok {
		return nil, errors.New("no such node")
	}
	return e, nil
}

func (d *fakeDocument) Children(_ context.Context, ref types.NodeRef) ([]*Node, error) {
	e, err := d.lookup("children", ref)
	if err != nil {
		return nil, err
	}
	out := make([]*Node, len(e.children))
	for i, c := range e.children {
		out[i] = d.node(c)
	}
	return out, nil
}

func (d *fakeDocument) ComputedStyle(_ context.Context, ref types.NodeRef) (cssvalue.Style, error) {
	e, err := d.lookup("style", ref)
	if err != nil {
		return nil, err
	}
	if e.style == nil {
		return cssvalue.Style{}, nil
	}
	return e.style, nil
}

func (d *fakeDocument) Geometry(_ context.Context, ref types.NodeRef) (*types.Rect, error) {
	e, err := d.lookup("geometry", ref)
	if err != nil {
		return nil, err
	}
	if e.rect == nil {
		return nil, nil
	}
	r := *e.rect
	return &r, nil
}

func (d *fakeDocument) InnerMarkup(_ context.Context, ref types.NodeRef) (string, error) {
	e, err := d.lookup("markup", ref)
	if err != nil {
		return "", err
	}
	return e.markup, nil
}

func (d *fakeDocument) TextContent(_ context.Context, ref types.NodeRef) (string, error) {
	e, err := d.lookup("text", ref)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	var collect func(*el)
	collect = func(n *el) {
		sb.WriteString(n.text)
		for _, c := range n.children {
			collect(c)
		}
	}
	collect(e)
	return sb.String(), nil
}

func (d *fakeDocument) Overflows(_ context.Context, ref types.NodeRef) (bool, error) {
	e, err := d.lookup("overflow", ref)
	if err != nil {
		return false, err
	}
	return e.overflow, nil
}

func (d *fakeDocument) ResolveColor(_ context.Context, raw string) (string, error) {
	if hex, ok := d.colors[strings.ToLower(raw)]; ok {
		return hex, nil
	}
	return "", errors.New("unknown color")
}

func (d *fakeDocument) callCount(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// extractFrom builds a document around slide and flattens it
func extractFrom(slide *el) (*types.SlideAttributesResult, *fakeDocument, error) {
	doc := newFakeDocument(slide)
	ex := NewExtractor(doc, nil)
	res, err := ex.ExtractSlide(context.Background(), doc.node(slide))
	return res, doc, err
}

func findByPath(elements []*types.ElementAttributes, path string) *types.ElementAttributes {
	for _, e := range elements {
		if e.DOMPath == path {
			return e
		}
	}
	return nil
}
