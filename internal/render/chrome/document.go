package chrome

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/edgecomet/deckexport/internal/extract"
	"github.com/edgecomet/deckexport/internal/extract/cssvalue"
	"github.com/edgecomet/deckexport/pkg/types"
)

// objectGroup scopes every remote object the document resolves, released together on Close
const objectGroup = "deckexport"

// shorthandProperties are not enumerated by getComputedStyle but are read by the decoder
var shorthandProperties = []string{"border-radius", "white-space"}

// probeFunction reads computed style, layout box and overflow of one element in a single round trip.
// Rect is in document coordinates, null when the element has no layout box.
var probeFunction = `function(extra) {
	const s = getComputedStyle(this), style = {};
	for (let i = 0; i < s.length; i++) style[s[i]] = s.getPropertyValue(s[i]);
	for (const p of extra) style[p] = s.getPropertyValue(p);
	let rect = null;
	if (this.getClientRects().length) {
		const r = this.getBoundingClientRect();
		rect = {x: r.left + window.scrollX, y: r.top + window.scrollY, width: r.width, height: r.height};
	}
	const overflows = this.scrollHeight > this.clientHeight + 1 || this.scrollWidth > this.clientWidth + 1;
	return {style, rect, overflows};
}`

const getOpacitiesFunction = `function(...nodes) { return nodes.map(n => n.style ? n.style.opacity : ""); }`

const setOpacitiesFunction = `function(values, ...nodes) {
	nodes.forEach((n, i) => { if (n.style) n.style.opacity = values[i]; });
	return nodes.length;
}`

// colorFunction lets the canvas normalize any CSS color to #rrggbb or rgba()
const colorFunction = `(() => {
	const c = document.createElement('canvas').getContext('2d');
	c.fillStyle = '#000000';
	c.fillStyle = %s;
	return c.fillStyle;
})()`

type probe struct {
	Style     map[string]string `json:"style"`
	Rect      *types.Rect       `json:"rect"`
	Overflows bool              `json:"overflows"`
}

// Document is a snapshot of the page's DOM tree bound to its tab.
// Tree structure is cached; style, geometry and markup are read live on demand.
// Safe for concurrent use.
type Document struct {
	executor cdp.Executor
	logger   *zap.Logger

	root     *cdp.Node
	nodes    map[types.NodeRef]*cdp.Node
	parents  map[types.NodeRef]types.NodeRef
	elements []types.NodeRef // document order

	mu      sync.Mutex
	probes  map[types.NodeRef]*probe
	objects map[types.NodeRef]cdpruntime.RemoteObjectID
	colors  sync.Map // raw -> canonical
}

func newDocument(executor cdp.Executor, root *cdp.Node, logger *zap.Logger) *Document {
	d := &Document{
		executor: executor,
		logger:   logger,
		root:     root,
		nodes:    make(map[types.NodeRef]*cdp.Node),
		parents:  make(map[types.NodeRef]types.NodeRef),
		probes:   make(map[types.NodeRef]*probe),
		objects:  make(map[types.NodeRef]cdpruntime.RemoteObjectID),
	}
	d.index(root, 0)
	return d
}

func (d *Document) index(n *cdp.Node, parent types.NodeRef) {
	ref := types.NodeRef(n.NodeID)
	d.nodes[ref] = n
	if parent != 0 {
		d.parents[ref] = parent
	}
	if n.NodeType == cdp.NodeTypeElement {
		d.elements = append(d.elements, ref)
	}
	for _, c := range n.Children {
		d.index(c, ref)
	}
}

// exec binds the tab's executor to a caller context
func (d *Document) exec(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, d.executor)
}

func (d *Document) lookup(ref types.NodeRef) (*cdp.Node, error) {
	n, ok := d.nodes[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, ref)
	}
	return n, nil
}

func attributeMap(n *cdp.Node) map[string]string {
	if len(n.Attributes) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(n.Attributes)/2)
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		attrs[n.Attributes[i]] = n.Attributes[i+1]
	}
	return attrs
}

func (d *Document) toNode(n *cdp.Node) *extract.Node {
	node := &extract.Node{
		Ref:        types.NodeRef(n.NodeID),
		Tag:        strings.ToLower(n.LocalName),
		Attributes: attributeMap(n),
	}
	var text strings.Builder
	for _, c := range n.Children {
		switch c.NodeType {
		case cdp.NodeTypeElement:
			node.HasElementChildren = true
		case cdp.NodeTypeText:
			text.WriteString(c.NodeValue)
		}
	}
	node.Text = strings.TrimSpace(text.String())
	return node
}

// FindByID returns the first element whose id attribute equals id
func (d *Document) FindByID(id string) (*extract.Node, bool) {
	for _, ref := range d.elements {
		n := d.nodes[ref]
		if attributeMap(n)["id"] == id {
			return d.toNode(n), true
		}
	}
	return nil, false
}

// FindByAttribute returns every element beneath ancestor carrying attribute, in document order
func (d *Document) FindByAttribute(ancestor types.NodeRef, attribute string) []*extract.Node {
	var out []*extract.Node
	for _, ref := range d.elements {
		if ref == ancestor || !d.isAncestor(ancestor, ref) {
			continue
		}
		n := d.nodes[ref]
		if _, ok := attributeMap(n)[attribute]; ok {
			out = append(out, d.toNode(n))
		}
	}
	return out
}

func (d *Document) isAncestor(ancestor, ref types.NodeRef) bool {
	for p, ok := d.parents[ref]; ok; p, ok = d.parents[p] {
		if p == ancestor {
			return true
		}
	}
	return false
}

// Children returns the element children of ref from the snapshot
func (d *Document) Children(_ context.Context, ref types.NodeRef) ([]*extract.Node, error) {
	n, err := d.lookup(ref)
	if err != nil {
		return nil, err
	}
	var out []*extract.Node
	for _, c := range n.Children {
		if c.NodeType == cdp.NodeTypeElement {
			out = append(out, d.toNode(c))
		}
	}
	return out, nil
}

// TextContent concatenates every text node beneath ref
func (d *Document) TextContent(_ context.Context, ref types.NodeRef) (string, error) {
	n, err := d.lookup(ref)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	var collect func(*cdp.Node)
	collect = func(n *cdp.Node) {
		if n.NodeType == cdp.NodeTypeText {
			sb.WriteString(n.NodeValue)
		}
		for _, c := range n.Children {
			collect(c)
		}
	}
	collect(n)
	return sb.String(), nil
}

// object resolves ref to a remote object handle, cached for the document lifetime
func (d *Document) object(ctx context.Context, ref types.NodeRef) (cdpruntime.RemoteObjectID, error) {
	d.mu.Lock()
	id, ok := d.objects[ref]
	d.mu.Unlock()
	if ok {
		return id, nil
	}

	if _, err := d.lookup(ref); err != nil {
		return "", err
	}
	obj, err := dom.ResolveNode().WithNodeID(cdp.NodeID(ref)).WithObjectGroup(objectGroup).Do(d.exec(ctx))
	if err != nil {
		return "", fmt.Errorf("resolve node %d: %w", ref, err)
	}

	d.mu.Lock()
	d.objects[ref] = obj.ObjectID
	d.mu.Unlock()
	return obj.ObjectID, nil
}

// call invokes fn with this bound to ref and decodes the by-value result into out
func (d *Document) call(ctx context.Context, ref types.NodeRef, fn string, args []*cdpruntime.CallArgument, out any) error {
	objectID, err := d.object(ctx, ref)
	if err != nil {
		return err
	}
	res, exc, err := cdpruntime.CallFunctionOn(fn).
		WithObjectID(objectID).
		WithArguments(args).
		WithReturnByValue(true).
		Do(d.exec(ctx))
	if err != nil {
		return err
	}
	if exc != nil {
		return fmt.Errorf("%w: %s", ErrScriptException, exc.Text)
	}
	if out == nil || res == nil || len(res.Value) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(res.Value), out)
}

func (d *Document) probe(ctx context.Context, ref types.NodeRef) (*probe, error) {
	d.mu.Lock()
	p, ok := d.probes[ref]
	d.mu.Unlock()
	if ok {
		return p, nil
	}

	extra, err := json.Marshal(shorthandProperties)
	if err != nil {
		return nil, err
	}
	p = &probe{}
	if err := d.call(ctx, ref, probeFunction, []*cdpruntime.CallArgument{{Value: extra}}, p); err != nil {
		return nil, fmt.Errorf("probe node %d: %w", ref, err)
	}

	d.mu.Lock()
	d.probes[ref] = p
	d.mu.Unlock()
	return p, nil
}

// ComputedStyle returns the computed style of ref
func (d *Document) ComputedStyle(ctx context.Context, ref types.NodeRef) (cssvalue.Style, error) {
	p, err := d.probe(ctx, ref)
	if err != nil {
		return nil, err
	}
	return cssvalue.Style(p.Style), nil
}

// Geometry returns the layout box of ref in document coordinates, nil without a box
func (d *Document) Geometry(ctx context.Context, ref types.NodeRef) (*types.Rect, error) {
	p, err := d.probe(ctx, ref)
	if err != nil {
		return nil, err
	}
	if p.Rect == nil {
		return nil, nil
	}
	r := *p.Rect
	return &r, nil
}

// Overflows reports whether the content of ref is larger than its box
func (d *Document) Overflows(ctx context.Context, ref types.NodeRef) (bool, error) {
	p, err := d.probe(ctx, ref)
	if err != nil {
		return false, err
	}
	return p.Overflows, nil
}

// OuterMarkup returns the serialized markup of ref itself
func (d *Document) OuterMarkup(ctx context.Context, ref types.NodeRef) (string, error) {
	if _, err := d.lookup(ref); err != nil {
		return "", err
	}
	return dom.GetOuterHTML().WithNodeID(cdp.NodeID(ref)).Do(d.exec(ctx))
}

// InnerMarkup returns the serialized markup of the children of ref
func (d *Document) InnerMarkup(ctx context.Context, ref types.NodeRef) (string, error) {
	outer, err := d.OuterMarkup(ctx, ref)
	if err != nil {
		return "", err
	}
	return innerMarkup(outer)
}

// innerMarkup strips the outermost element of a serialized fragment
func innerMarkup(outer string) (string, error) {
	nodes, err := html.ParseFragment(strings.NewReader(outer), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return "", fmt.Errorf("parse markup: %w", err)
	}

	var elem *html.Node
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			elem = n
			break
		}
	}
	if elem == nil {
		return "", nil
	}

	var buf bytes.Buffer
	for c := elem.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render markup: %w", err)
		}
	}
	return buf.String(), nil
}

// ResolveColor canonicalizes any CSS color through the page's canvas
func (d *Document) ResolveColor(ctx context.Context, raw string) (string, error) {
	if v, ok := d.colors.Load(raw); ok {
		return v.(string), nil
	}
	quoted, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	var out string
	if err := chromedp.Evaluate(fmt.Sprintf(colorFunction, quoted), &out).Do(d.exec(ctx)); err != nil {
		return "", fmt.Errorf("resolve color %q: %w", raw, err)
	}
	d.colors.Store(raw, out)
	return out, nil
}

// Elements returns every element of the snapshot in document order
func (d *Document) Elements() []types.NodeRef {
	return d.elements
}

// Related reports whether other is target, an ancestor of target, or a descendant of it
func (d *Document) Related(target, other types.NodeRef) bool {
	return target == other || d.isAncestor(other, target) || d.isAncestor(target, other)
}

// nodeArguments resolves refs to call arguments, returning the first object as receiver
func (d *Document) nodeArguments(ctx context.Context, refs []types.NodeRef) ([]*cdpruntime.CallArgument, error) {
	args := make([]*cdpruntime.CallArgument, 0, len(refs))
	for _, ref := range refs {
		id, err := d.object(ctx, ref)
		if err != nil {
			return nil, err
		}
		args = append(args, &cdpruntime.CallArgument{ObjectID: id})
	}
	return args, nil
}

// InlineOpacities reads the inline opacity of every ref ("" when unset)
func (d *Document) InlineOpacities(ctx context.Context, refs []types.NodeRef) ([]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	args, err := d.nodeArguments(ctx, refs)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := d.call(ctx, refs[0], getOpacitiesFunction, args, &out); err != nil {
		return nil, fmt.Errorf("read opacities: %w", err)
	}
	if len(out) != len(refs) {
		return nil, fmt.Errorf("read opacities: got %d values for %d nodes", len(out), len(refs))
	}
	return out, nil
}

// SetInlineOpacities writes values[i] as the inline opacity of refs[i]
func (d *Document) SetInlineOpacities(ctx context.Context, refs []types.NodeRef, values []string) error {
	if len(refs) == 0 {
		return nil
	}
	if len(refs) != len(values) {
		return fmt.Errorf("set opacities: %d values for %d nodes", len(values), len(refs))
	}
	nodes, err := d.nodeArguments(ctx, refs)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return err
	}
	args := append([]*cdpruntime.CallArgument{{Value: encoded}}, nodes...)
	if err := d.call(ctx, refs[0], setOpacitiesFunction, args, nil); err != nil {
		return fmt.Errorf("set opacities: %w", err)
	}
	return nil
}

// Capture returns a PNG of the page cropped to clip (document coordinates)
func (d *Document) Capture(ctx context.Context, clip types.Rect, scale float64) ([]byte, error) {
	return page.CaptureScreenshot().
		WithFormat(page.CaptureScreenshotFormatPng).
		WithCaptureBeyondViewport(true).
		WithFromSurface(true).
		WithClip(&page.Viewport{
			X:      clip.X,
			Y:      clip.Y,
			Width:  clip.Width,
			Height: clip.Height,
			Scale:  scale,
		}).
		Do(d.exec(ctx))
}

// Close releases every remote object resolved by this document
func (d *Document) Close(ctx context.Context) {
	if err := cdpruntime.ReleaseObjectGroup(objectGroup).Do(d.exec(ctx)); err != nil {
		d.logger.Debug("Releasing remote objects failed", zap.Error(err))
	}
}
