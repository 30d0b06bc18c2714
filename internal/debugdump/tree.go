package debugdump

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xlab/treeprint"

	"github.com/edgecomet/deckexport/pkg/types"
)

// maxTextPreview bounds the text shown per element in the tree
const maxTextPreview = 40

// RenderTree prints the flattened elements of every slide nested by domPath.
// An element hangs under its nearest exported ancestor; the nesting is only for
// reading, paint order is the order of the JSON dump.
func RenderTree(result *types.ExportResult) string {
	tree := treeprint.New()
	root := tree.AddBranch(fmt.Sprintf("export %s (%s)", result.SessionID, result.PresentationID))

	for i := range result.Slides {
		slide := &result.Slides[i]
		label := fmt.Sprintf("slide %d", i)
		if slide.BackgroundColor != "" {
			label += " bg=#" + slide.BackgroundColor
		}
		branch := root.AddBranch(label)
		if slide.SpeakerNote != "" {
			branch.AddMetaNode("note", preview(slide.SpeakerNote))
		}

		elements := make([]*types.ElementAttributes, len(slide.Elements))
		copy(elements, slide.Elements)
		sort.SliceStable(elements, func(a, b int) bool {
			return elements[a].DOMPath < elements[b].DOMPath
		})

		nodes := make(map[string]treeprint.Tree, len(elements))
		for _, el := range elements {
			parent := nearestAncestor(nodes, el.DOMPath)
			if parent == nil {
				parent = branch
			}
			nodes[el.DOMPath] = parent.AddBranch(describe(el))
		}
	}
	return tree.String()
}

func nearestAncestor(nodes map[string]treeprint.Tree, path string) treeprint.Tree {
	for {
		idx := strings.LastIndexByte(path, '.')
		if idx < 0 {
			return nil
		}
		path = path[:idx]
		if n, ok := nodes[path]; ok {
			return n
		}
	}
}

func describe(el *types.ElementAttributes) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <%s>", el.DOMPath, el.TagName)
	if el.ID != "" {
		b.WriteString(" #" + el.ID)
	}
	if el.Position != nil && el.Size != nil {
		fmt.Fprintf(&b, " @%g,%g %gx%g", el.Position.Left, el.Position.Top, el.Size.Width, el.Size.Height)
	}
	if el.ZIndex != 0 {
		fmt.Fprintf(&b, " z=%d", el.ZIndex)
	}
	if el.ImageSrc != "" {
		b.WriteString(" img=" + el.ImageSrc)
	}
	if el.InnerText != "" {
		fmt.Fprintf(&b, " %q", preview(el.InnerText))
	}
	return b.String()
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > maxTextPreview {
		return string(r[:maxTextPreview]) + "..."
	}
	return s
}
