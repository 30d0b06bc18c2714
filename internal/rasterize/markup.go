package rasterize

import (
	"bytes"
	"container/list"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// DefaultMemoBytes caps the memoized PNG data of one MarkupRasterizer
const DefaultMemoBytes = 32 << 20

type memoEntry struct {
	key  uint64
	data []byte
}

// MarkupRasterizer renders vector graphic markup to PNG without touching the live page.
// Results are memoized by (markup, color, size) since icons repeat across slides. The memo is
// bounded by total PNG bytes and evicts the least recently used entry first.
type MarkupRasterizer struct {
	mu       sync.Mutex
	maxBytes int
	size     int
	order    *list.List
	memo     map[uint64]*list.Element
	hits     int
}

// NewMarkupRasterizer creates an empty rasterizer with the default memo cap
func NewMarkupRasterizer() *MarkupRasterizer {
	return NewMarkupRasterizerWithLimit(DefaultMemoBytes)
}

// NewMarkupRasterizerWithLimit creates a rasterizer keeping at most maxBytes of PNG data.
// maxBytes <= 0 disables memoization.
func NewMarkupRasterizerWithLimit(maxBytes int) *MarkupRasterizer {
	return &MarkupRasterizer{
		maxBytes: maxBytes,
		order:    list.New(),
		memo:     make(map[uint64]*list.Element),
	}
}

// memoKey hashes the inputs that determine the output image
func memoKey(markup, color string, width, height int) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(markup)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(color)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(strconv.Itoa(width))
	_, _ = h.WriteString("x")
	_, _ = h.WriteString(strconv.Itoa(height))
	return h.Sum64()
}

// inlineColor substitutes currentColor with the element's resolved foreground color (hex, no '#')
func inlineColor(markup, color string) string {
	if color == "" {
		return markup
	}
	return strings.ReplaceAll(markup, "currentColor", "#"+color)
}

// Rasterize renders markup at width x height pixels
func (m *MarkupRasterizer) Rasterize(markup, color string, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", width, height)
	}

	key := memoKey(markup, color, width, height)
	if data, ok := m.lookup(key); ok {
		return data, nil
	}

	icon, err := oksvg.ReadIconStream(strings.NewReader(inlineColor(markup, color)), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	data := buf.Bytes()
	m.remember(key, data)
	return data, nil
}

func (m *MarkupRasterizer) lookup(key uint64) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.memo[key]
	if !ok {
		return nil, false
	}
	m.hits++
	m.order.MoveToFront(el)
	return el.Value.(*memoEntry).data, true
}

// remember stores data and evicts from the back until the memo fits. Images larger than the
// whole cap are not kept.
func (m *MarkupRasterizer) remember(key uint64, data []byte) {
	if len(data) > m.maxBytes {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.memo[key]; ok {
		m.order.MoveToFront(el)
		return
	}
	m.memo[key] = m.order.PushFront(&memoEntry{key: key, data: data})
	m.size += len(data)
	for m.size > m.maxBytes {
		oldest := m.order.Back()
		entry := m.order.Remove(oldest).(*memoEntry)
		delete(m.memo, entry.key)
		m.size -= len(entry.data)
	}
}

// Hits returns how many rasterizations were served from the memo
func (m *MarkupRasterizer) Hits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits
}

// MemoStats returns the number of memoized images and their total size in bytes
func (m *MarkupRasterizer) MemoStats() (entries, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.memo), m.size
}
