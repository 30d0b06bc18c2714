// Package rasterize captures pixel snapshots of elements that cannot be described structurally.
//
// Two strategies exist. Vector graphics are rasterized from their own markup, independent of the
// page. Everything else is captured from the live page under isolation: every element outside the
// target's lineage is made transparent for the duration of one screenshot.
//
// Isolation mutates presentation-wide state, so captures must never run concurrently on the same
// Surface. Pass enforces that by processing slides and elements strictly in sequence.
package rasterize

import (
	"context"
	"errors"

	"github.com/edgecomet/deckexport/internal/extract/cssvalue"
	"github.com/edgecomet/deckexport/pkg/types"
)

// Capture errors
var (
	ErrNoImageData   = errors.New("capture produced no image data")
	ErrRestoreFailed = errors.New("restoring element opacity failed")
	ErrNoGeometry    = errors.New("capture target has no layout box")
)

// Surface is the live rendered document as seen by the capture strategies
type Surface interface {
	cssvalue.ColorResolver

	// Elements returns every element of the document
	Elements() []types.NodeRef

	// Related reports whether other is target itself, one of its ancestors or descendants
	Related(target, other types.NodeRef) bool

	// InlineOpacities reads the inline opacity of each node ("" when unset)
	InlineOpacities(ctx context.Context, refs []types.NodeRef) ([]string, error)

	// SetInlineOpacities writes values[i] as the inline opacity of refs[i]
	SetInlineOpacities(ctx context.Context, refs []types.NodeRef, values []string) error

	// Capture returns a PNG of the surface cropped to clip
	Capture(ctx context.Context, clip types.Rect, scale float64) ([]byte, error)

	// OuterMarkup returns the serialized markup of the node itself
	OuterMarkup(ctx context.Context, ref types.NodeRef) (string, error)

	// Geometry returns the node's box in surface coordinates, nil without a box
	Geometry(ctx context.Context, ref types.NodeRef) (*types.Rect, error)

	// ComputedStyle returns the computed style of the node
	ComputedStyle(ctx context.Context, ref types.NodeRef) (cssvalue.Style, error)
}
