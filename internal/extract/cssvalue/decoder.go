package cssvalue

import (
	"context"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/edgecomet/deckexport/pkg/types"
)

// Decoder turns computed style values into attribute fragments
type Decoder struct {
	colors ColorResolver
}

// NewDecoder creates a Decoder; colors may be nil when only rgb()/#hex input is expected
func NewDecoder(colors ColorResolver) *Decoder {
	return &Decoder{colors: colors}
}

// shadowEntry is one parsed item of a box-shadow list
type shadowEntry struct {
	inset   bool
	numbers []float64
	color   string
}

// ParseShadow selects and decodes one entry of a box-shadow list.
// Each entry scores +1 per nonzero length and +2 for a visible non-black color; the strictly
// highest score wins, and the first entry is used when nothing scores above zero.
func (d *Decoder) ParseShadow(ctx context.Context, raw string) *types.Shadow {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") {
		return nil
	}

	rawEntries := SplitTopLevel(raw, isComma)
	if len(rawEntries) == 0 {
		return nil
	}

	entries := make([]shadowEntry, len(rawEntries))
	colors := make([]Color, len(rawEntries))
	best, bestScore := 0, 0
	for i, re := range rawEntries {
		entries[i] = parseShadowEntry(re)
		if entries[i].color != "" {
			colors[i] = d.ColorToHex(ctx, entries[i].color)
		}

		score := 0
		for _, n := range entries[i].numbers {
			if n != 0 {
				score++
			}
		}
		if colors[i].Visible() && !colors[i].IsBlack() {
			score += 2
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	e := entries[best]
	shadow := &types.Shadow{
		Color:   colors[best].Hex,
		Opacity: colors[best].Opacity,
		Inset:   e.inset,
	}
	if len(e.numbers) > 0 {
		shadow.Offset[0] = e.numbers[0]
	}
	if len(e.numbers) > 1 {
		shadow.Offset[1] = e.numbers[1]
	}
	if len(e.numbers) > 2 {
		shadow.Radius = e.numbers[2]
	}
	if len(e.numbers) > 3 {
		shadow.Spread = e.numbers[3]
	}
	shadow.Angle = math.Atan2(shadow.Offset[1], shadow.Offset[0]) * 180 / math.Pi
	return shadow
}

// parseShadowEntry separates the inset keyword, lengths (in order) and the color token.
// Color functions keep their embedded commas and spaces because tokens split at paren depth 0.
func parseShadowEntry(raw string) shadowEntry {
	var e shadowEntry
	for _, tok := range SplitTopLevel(raw, unicode.IsSpace) {
		if strings.EqualFold(tok, "inset") {
			e.inset = true
			continue
		}
		if v, ok := parseStrictLength(tok); ok {
			e.numbers = append(e.numbers, v)
			continue
		}
		if e.color == "" {
			e.color = tok
		} else {
			e.color += " " + tok
		}
	}
	return e
}

// parseStrictLength accepts a token only if it is entirely a number with an optional unit
func parseStrictLength(tok string) (float64, bool) {
	v, ok := ParseLength(tok)
	if !ok {
		return 0, false
	}
	unit := strings.TrimLeft(tok, "+-0123456789.")
	for _, r := range unit {
		if !unicode.IsLetter(r) && r != '%' {
			return 0, false
		}
	}
	return v, true
}

// ParseBackground decodes the solid background color and the first background image url
func (d *Decoder) ParseBackground(ctx context.Context, color, image string) *types.Background {
	c := d.ColorToHex(ctx, color)
	url := FirstURL(image)
	if !c.Visible() && url == "" {
		return nil
	}
	return &types.Background{
		Color:    c.Hex,
		Opacity:  c.Opacity,
		ImageURL: url,
	}
}

// ParseBorder decodes a single uniform border; zero width means no border
func (d *Decoder) ParseBorder(ctx context.Context, width, color string) *types.Border {
	w := lengthOrZero(width)
	if w == 0 {
		return nil
	}
	c := d.ColorToHex(ctx, color)
	return &types.Border{
		Color:   c.Hex,
		Opacity: c.Opacity,
		Width:   w,
	}
}

// ParseFont decodes family, size, weight, color and italic flag
func (d *Decoder) ParseFont(ctx context.Context, st Style) *types.Font {
	name := FirstFontFamily(st.Get("font-family"))
	size := lengthOrZero(st.Get("font-size"))
	c := d.ColorToHex(ctx, st.Get("color"))
	fontStyle := strings.ToLower(st.Get("font-style"))

	if name == "" && size == 0 && !c.Visible() {
		return nil
	}
	return &types.Font{
		Name:    name,
		Size:    size,
		Weight:  ParseFontWeight(st.Get("font-weight")),
		Color:   c.Hex,
		Opacity: c.Opacity,
		Italic:  fontStyle == "italic" || strings.HasPrefix(fontStyle, "oblique"),
	}
}

// ParseFontWeight maps a computed font-weight to an integer weight
func ParseFontWeight(raw string) int {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "normal":
		return 400
	case "bold", "bolder":
		return 700
	case "lighter":
		return 300
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 400
	}
	return int(v)
}

// LineHeightInput carries what line-height classification needs besides the computed style
type LineHeightInput struct {
	Content   string
	Height    float64
	Overflows bool
}

// ParseLineHeight emits an explicit line height only for multi-line content with a numeric
// computed line-height. Content is multi-line when it has explicit line breaks, is taller than
// twice a single line, or overflows its box.
func ParseLineHeight(st Style, in LineHeightInput) *float64 {
	lineHeight, numeric := ParseLength(st.Get("line-height"))
	single := lineHeight
	if !numeric {
		single = lengthOrZero(st.Get("font-size")) * 1.2
	}

	multiLine := strings.Contains(in.Content, "\n") ||
		strings.Contains(strings.ToLower(in.Content), "<br") ||
		(single > 0 && in.Height > 2*single) ||
		in.Overflows

	if !multiLine || !numeric {
		return nil
	}
	return &lineHeight
}

// ParseSpacing reads the four sides of "margin" or "padding"; all-zero yields nil
func ParseSpacing(st Style, property string) *types.Spacing {
	sp := &types.Spacing{
		Top:    lengthOrZero(st.Get(property + "-top")),
		Right:  lengthOrZero(st.Get(property + "-right")),
		Bottom: lengthOrZero(st.Get(property + "-bottom")),
		Left:   lengthOrZero(st.Get(property + "-left")),
	}
	if sp.Top == 0 && sp.Right == 0 && sp.Bottom == 0 && sp.Left == 0 {
		return nil
	}
	return sp
}

// ExpandBorderRadius expands the 1/2/3/4-value shorthand to [TL, TR, BR, BL].
// Only the horizontal radii (before any "/") are considered.
func ExpandBorderRadius(raw string) [4]float64 {
	if slash := strings.IndexByte(raw, '/'); slash >= 0 {
		raw = raw[:slash]
	}
	fields := strings.Fields(raw)
	v := make([]float64, len(fields))
	for i, f := range fields {
		v[i] = lengthOrZero(f)
	}

	switch len(v) {
	case 0:
		return [4]float64{}
	case 1:
		return [4]float64{v[0], v[0], v[0], v[0]}
	case 2:
		return [4]float64{v[0], v[1], v[0], v[1]}
	case 3:
		return [4]float64{v[0], v[1], v[2], v[1]}
	default:
		return [4]float64{v[0], v[1], v[2], v[3]}
	}
}

// ParseBorderRadius expands the shorthand and clamps it: TL and BR against half the width,
// TR and BL against half the height. Returns nil when every corner is zero.
func ParseBorderRadius(raw string, width, height float64) []float64 {
	r := ExpandBorderRadius(raw)
	if r == [4]float64{} {
		return nil
	}

	halfW, halfH := width/2, height/2
	r[0] = math.Min(r[0], halfW)
	r[1] = math.Min(r[1], halfH)
	r[2] = math.Min(r[2], halfW)
	r[3] = math.Min(r[3], halfH)
	return r[:]
}

// ShapeFor tags images as circle or rectangle; other tags carry no shape
func ShapeFor(tag string, radii []float64) string {
	if tag != "img" {
		return ""
	}
	if len(radii) == 4 && radii[0] == 50 && radii[1] == 50 && radii[2] == 50 && radii[3] == 50 {
		return types.ShapeCircle
	}
	return types.ShapeRectangle
}

var knownFilters = map[string]bool{
	"invert":     true,
	"brightness": true,
	"contrast":   true,
	"saturate":   true,
	"hue-rotate": true,
	"blur":       true,
	"grayscale":  true,
	"sepia":      true,
	"opacity":    true,
}

// ParseFilters decodes a filter function chain; unknown functions are ignored.
// Percentages become fractions, other units are dropped.
func ParseFilters(raw string) map[string]float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") {
		return nil
	}

	var filters map[string]float64
	for _, fn := range SplitTopLevel(raw, unicode.IsSpace) {
		open := strings.IndexByte(fn, '(')
		if open <= 0 || !strings.HasSuffix(fn, ")") {
			continue
		}
		name := strings.ToLower(fn[:open])
		if !knownFilters[name] {
			continue
		}
		arg := strings.TrimSpace(fn[open+1 : len(fn)-1])
		v, ok := ParseLength(arg)
		if !ok {
			continue
		}
		if strings.HasSuffix(arg, "%") {
			v /= 100
		}
		if filters == nil {
			filters = make(map[string]float64)
		}
		filters[name] = v
	}
	return filters
}
