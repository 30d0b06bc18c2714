package export

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/edgecomet/deckexport/internal/extract"
	"github.com/edgecomet/deckexport/internal/extract/cssvalue"
	"github.com/edgecomet/deckexport/pkg/types"
)

// node is an element of the in-memory page
type node struct {
	tag      string
	attrs    map[string]string
	text     string
	markup   string
	style    cssvalue.Style
	rect     *types.Rect
	children []*node

	ref    types.NodeRef
	parent types.NodeRef
}

func rect(x, y, w, h float64) *types.Rect {
	return &types.Rect{X: x, Y: y, Width: w, Height: h}
}

func (n *node) with(children ...*node) *node {
	n.children = append(n.children, children...)
	return n
}

// fakePage implements PageDocument
type fakePage struct {
	mu        sync.Mutex
	nodes     map[types.NodeRef]*node
	order     []types.NodeRef
	opacities map[types.NodeRef]string

	emptyCapture bool
	captures     int
	closed       bool
}

func newFakePage(root *node) *fakePage {
	p := &fakePage{
		nodes:     make(map[types.NodeRef]*node),
		opacities: make(map[types.NodeRef]string),
	}
	p.register(root, 0)
	return p
}

func (p *fakePage) register(n *node, parent types.NodeRef) {
	n.ref = types.NodeRef(len(p.order) + 1)
	n.parent = parent
	p.nodes[n.ref] = n
	p.order = append(p.order, n.ref)
	for _, c := range n.children {
		p.register(c, n.ref)
	}
}

func (p *fakePage) get(ref types.NodeRef) (*node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[ref]
	if !ok {
		return nil, errors.New("unknown node")
	}
	return n, nil
}

func toNode(n *node) *extract.Node {
	return &extract.Node{
		Ref:                n.ref,
		Tag:                n.tag,
		Attributes:         n.attrs,
		Text:               n.text,
		HasElementChildren: len(n.children) > 0,
	}
}

func (p *fakePage) Children(_ context.Context, ref types.NodeRef) ([]*extract.Node, error) {
	n, err := p.get(ref)
	if err != nil {
		return nil, err
	}
	out := make([]*extract.Node, len(n.children))
	for i, c := range n.children {
		out[i] = toNode(c)
	}
	return out, nil
}

func (p *fakePage) ComputedStyle(_ context.Context, ref types.NodeRef) (cssvalue.Style, error) {
	n, err := p.get(ref)
	if err != nil {
		return nil, err
	}
	if n.style == nil {
		return cssvalue.Style{}, nil
	}
	return n.style, nil
}

func (p *fakePage) Geometry(_ context.Context, ref types.NodeRef) (*types.Rect, error) {
	n, err := p.get(ref)
	if err != nil || n.rect == nil {
		return nil, err
	}
	r := *n.rect
	return &r, nil
}

func (p *fakePage) InnerMarkup(context.Context, types.NodeRef) (string, error) { return "", nil }

func (p *fakePage) OuterMarkup(_ context.Context, ref types.NodeRef) (string, error) {
	n, err := p.get(ref)
	if err != nil {
		return "", err
	}
	return n.markup, nil
}

func (p *fakePage) TextContent(_ context.Context, ref types.NodeRef) (string, error) {
	n, err := p.get(ref)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	var walk func(*node)
	walk = func(x *node) {
		sb.WriteString(x.text)
		for _, c := range x.children {
			walk(c)
		}
	}
	walk(n)
	return sb.String(), nil
}

func (p *fakePage) Overflows(context.Context, types.NodeRef) (bool, error) { return false, nil }

func (p *fakePage) ResolveColor(_ context.Context, raw string) (string, error) {
	if raw == "white" {
		return "#ffffff", nil
	}
	return "", errors.New("unknown color")
}

func (p *fakePage) Elements() []types.NodeRef {
	return append([]types.NodeRef(nil), p.order...)
}

func (p *fakePage) ancestorOf(a, b types.NodeRef) bool {
	for cur := p.nodes[b].parent; cur != 0; cur = p.nodes[cur].parent {
		if cur == a {
			return true
		}
	}
	return false
}

func (p *fakePage) Related(target, other types.NodeRef) bool {
	return target == other || p.ancestorOf(target, other) || p.ancestorOf(other, target)
}

func (p *fakePage) InlineOpacities(_ context.Context, refs []types.NodeRef) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = p.opacities[r]
	}
	return out, nil
}

func (p *fakePage) SetInlineOpacities(_ context.Context, refs []types.NodeRef, values []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range refs {
		if values[i] == "" {
			delete(p.opacities, r)
			continue
		}
		p.opacities[r] = values[i]
	}
	return nil
}

func (p *fakePage) Capture(_ context.Context, clip types.Rect, scale float64) ([]byte, error) {
	p.mu.Lock()
	p.captures++
	p.mu.Unlock()
	if p.emptyCapture {
		return nil, nil
	}
	w := int(math.Round(clip.Width * scale))
	h := int(math.Round(clip.Height * scale))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *fakePage) FindByID(id string) (*extract.Node, bool) {
	for _, ref := range p.order {
		if n := p.nodes[ref]; n.attrs["id"] == id {
			return toNode(n), true
		}
	}
	return nil, false
}

func (p *fakePage) FindByAttribute(ancestor types.NodeRef, attribute string) []*extract.Node {
	var out []*extract.Node
	for _, ref := range p.order {
		n := p.nodes[ref]
		if _, ok := n.attrs[attribute]; ok && p.ancestorOf(ancestor, ref) {
			out = append(out, toNode(n))
		}
	}
	return out
}

func (p *fakePage) Close(context.Context) {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// fakeSession implements PageSession over a fakePage
type fakeSession struct {
	page        *fakePage
	navigateErr error
	readyErr    error
	documentErr error

	url    string
	closed bool
}

func (s *fakeSession) Navigate(url string) error {
	s.url = url
	return s.navigateErr
}

func (s *fakeSession) WaitReady(ctx context.Context, _ string, _, _ time.Duration) error {
	if s.readyErr != nil {
		return s.readyErr
	}
	return ctx.Err()
}

func (s *fakeSession) Document() (PageDocument, error) {
	if s.documentErr != nil {
		return nil, s.documentErr
	}
	return s.page, nil
}

func (s *fakeSession) Close() { s.closed = true }

// fakeProvider hands out a single session
type fakeProvider struct {
	session  *fakeSession
	openErr  error
	opened   int
	released int
	ids      []string
}

func (f *fakeProvider) Open(_ context.Context, sessionID string) (PageSession, func(), error) {
	f.ids = append(f.ids, sessionID)
	if f.openErr != nil {
		return nil, nil, f.openErr
	}
	f.opened++
	return f.session, func() { f.released++ }, nil
}

// fakeRecorder implements Recorder
type fakeRecorder struct {
	mu          sync.Mutex
	statuses    []string
	captures    map[string]int
	dumpFails   int
	mismatches  int
	lastSlides  int
	lastElement int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{captures: make(map[string]int)}
}

func (r *fakeRecorder) RecordCapture(strategy string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures[strategy]++
}

func (r *fakeRecorder) RecordExport(status string, _ time.Duration, slides, elements int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	r.lastSlides = slides
	r.lastElement = elements
}

func (r *fakeRecorder) RecordDumpFailure()   { r.dumpFails++ }
func (r *fakeRecorder) RecordNotesMismatch() { r.mismatches++ }

// recordingDumper keeps every dumped result
type recordingDumper struct {
	err    error
	dumped []*types.ExportResult
}

func (d *recordingDumper) Dump(_ context.Context, result *types.ExportResult) error {
	d.dumped = append(d.dumped, result)
	return d.err
}

const iconMarkup = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><rect width="10" height="10" fill="currentColor"/></svg>`

// presentation builds a two slide deck:
// slide 0 has a full-bleed background and a title, slide 1 an icon and a chart canvas.
// Every slide carries a hidden speaker note.
func presentation() *node {
	return (&node{tag: "div", attrs: map[string]string{"id": "presentation"}, rect: rect(0, 0, 1280, 1440)}).with(
		(&node{tag: "section", rect: rect(0, 0, 1280, 720)}).with(
			&node{tag: "div", rect: rect(0, 0, 1280, 720), style: cssvalue.Style{"background-color": "rgb(16, 32, 48)"}},
			&node{tag: "h1", rect: rect(100, 80, 800, 90), text: "Roadmap", style: cssvalue.Style{"color": "white", "font-size": "40px"}},
			&node{tag: "aside", attrs: map[string]string{"data-speaker-note": ""}, text: " Open with the roadmap "},
		),
		(&node{tag: "section", rect: rect(0, 720, 1280, 720)}).with(
			&node{tag: "svg", rect: rect(40, 760, 32, 32), markup: iconMarkup, style: cssvalue.Style{"color": "rgb(255, 0, 0)"}},
			&node{tag: "canvas", rect: rect(200, 900, 300, 150)},
			&node{tag: "aside", attrs: map[string]string{"data-speaker-note": "Close with the chart"}},
		),
	)
}
