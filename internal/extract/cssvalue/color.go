package cssvalue

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ColorResolver canonicalizes an arbitrary CSS color (named, hsl, system colors) to hex.
// The rendering engine owns color resolution; this package never reimplements it.
type ColorResolver interface {
	ResolveColor(ctx context.Context, raw string) (string, error)
}

// Color is a decoded color: lowercase hex without '#', and the alpha channel when one was given.
// The zero value means fully transparent or absent.
type Color struct {
	Hex     string
	Opacity *float64
}

// Visible reports whether the color resolved to something paintable
func (c Color) Visible() bool {
	return c.Hex != ""
}

// IsBlack reports whether the color is pure black
func (c Color) IsBlack() bool {
	return c.Hex == "000000"
}

// ColorToHex decodes a computed color value.
// transparent and zero-alpha forms yield the zero Color; rgba()/hsla() carry alpha as opacity;
// unparseable input is returned unchanged as Hex.
func (d *Decoder) ColorToHex(ctx context.Context, raw string) Color {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == "transparent" || s == "none" {
		return Color{}
	}

	switch {
	case strings.HasPrefix(s, "rgb"):
		args, ok := functionArgs(s)
		if !ok || len(args) < 3 {
			return Color{Hex: raw}
		}
		var ch [3]int
		for i := 0; i < 3; i++ {
			v, ok := parseChannel(args[i])
			if !ok {
				return Color{Hex: raw}
			}
			ch[i] = v
		}
		hex := fmt.Sprintf("%02x%02x%02x", ch[0], ch[1], ch[2])
		if len(args) < 4 {
			return Color{Hex: hex}
		}
		alpha, ok := parseAlpha(args[3])
		if !ok {
			return Color{Hex: raw}
		}
		if alpha == 0 {
			return Color{}
		}
		return Color{Hex: hex, Opacity: &alpha}

	case strings.HasPrefix(s, "hsl"):
		args, ok := functionArgs(s)
		if !ok || len(args) < 3 {
			return Color{Hex: raw}
		}
		opaque := fmt.Sprintf("hsl(%s, %s, %s)", args[0], args[1], args[2])
		if len(args) < 4 {
			return d.resolve(ctx, raw, opaque)
		}
		alpha, ok := parseAlpha(args[3])
		if !ok {
			return Color{Hex: raw}
		}
		if alpha == 0 {
			return Color{}
		}
		c := d.resolve(ctx, raw, opaque)
		if c.Hex == raw {
			return c
		}
		c.Opacity = &alpha
		return c

	case strings.HasPrefix(s, "#"):
		return parseHexColor(raw, s[1:])

	default:
		return d.resolve(ctx, raw, s)
	}
}

// resolve asks the engine to canonicalize an opaque color, falling back to raw on any failure
func (d *Decoder) resolve(ctx context.Context, raw, opaque string) Color {
	if d.colors == nil {
		return Color{Hex: raw}
	}
	resolved, err := d.colors.ResolveColor(ctx, opaque)
	if err != nil || resolved == "" {
		return Color{Hex: raw}
	}
	resolved = strings.ToLower(strings.TrimSpace(resolved))
	if strings.HasPrefix(resolved, "#") {
		c := parseHexColor(raw, resolved[1:])
		c.Opacity = nil
		return c
	}
	if strings.HasPrefix(resolved, "rgb") {
		// Engines may answer in rgb() form; decode it locally without recursing into the resolver.
		local := (&Decoder{}).ColorToHex(ctx, resolved)
		if local.Hex == resolved || local.Hex == "" {
			return Color{Hex: raw}
		}
		return Color{Hex: local.Hex}
	}
	return Color{Hex: raw}
}

func parseHexColor(raw, digits string) Color {
	for _, r := range digits {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return Color{Hex: raw}
		}
	}

	switch len(digits) {
	case 3, 4:
		var b strings.Builder
		for _, r := range digits {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		return parseHexColor(raw, b.String())
	case 6:
		return Color{Hex: digits}
	case 8:
		a, _ := strconv.ParseUint(digits[6:], 16, 8)
		if a == 0 {
			return Color{}
		}
		alpha := math.Round(float64(a)/255*1000) / 1000
		return Color{Hex: digits[:6], Opacity: &alpha}
	default:
		return Color{Hex: raw}
	}
}

// functionArgs returns the arguments of "name(a, b, c)" or "name(a b c / d)"
func functionArgs(s string) ([]string, bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return nil, false
	}
	inner := s[open+1 : len(s)-1]
	inner = strings.ReplaceAll(inner, "/", " ")
	inner = strings.ReplaceAll(inner, ",", " ")
	args := strings.Fields(inner)
	if len(args) == 0 {
		return nil, false
	}
	return args, true
}

func parseChannel(s string) (int, bool) {
	if strings.HasSuffix(s, "%") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, false
		}
		return clampByte(v * 255 / 100), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return clampByte(v), true
}

func parseAlpha(s string) (float64, bool) {
	if strings.HasSuffix(s, "%") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, false
		}
		return clampUnit(v / 100), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return clampUnit(v), true
}

func clampByte(v float64) int {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return int(v)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
