package extract

import (
	"context"

	"github.com/edgecomet/deckexport/internal/extract/cssvalue"
	"github.com/edgecomet/deckexport/pkg/types"
)

// Node is one element of the rendered document as seen by the extractor
type Node struct {
	Ref        types.NodeRef
	Tag        string            // lowercase local name
	Attributes map[string]string // raw attributes
	Text       string            // trimmed text of direct text children

	// HasElementChildren is false for pure text/comment content
	HasElementChildren bool
}

// Attr returns an attribute value or ""
func (n *Node) Attr(name string) string {
	if n.Attributes == nil {
		return ""
	}
	return n.Attributes[name]
}

// DocumentAccessor is the rendering engine's read-only view of the document.
// Implementations must be safe for concurrent use; slides are extracted in parallel.
type DocumentAccessor interface {
	cssvalue.ColorResolver

	// Children returns the direct element children of a node in document order
	Children(ctx context.Context, ref types.NodeRef) ([]*Node, error)

	// ComputedStyle returns the computed style properties of a node
	ComputedStyle(ctx context.Context, ref types.NodeRef) (cssvalue.Style, error)

	// Geometry returns the node's bounding box, or nil when it has no layout box
	Geometry(ctx context.Context, ref types.NodeRef) (*types.Rect, error)

	// InnerMarkup returns the serialized markup of the node's children
	InnerMarkup(ctx context.Context, ref types.NodeRef) (string, error)

	// TextContent returns the concatenated text of the whole subtree
	TextContent(ctx context.Context, ref types.NodeRef) (string, error)

	// Overflows reports whether the node's content overflows its box
	Overflows(ctx context.Context, ref types.NodeRef) (bool, error)
}
