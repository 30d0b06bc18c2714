// Package cssvalue decodes computed CSS values into normalized attribute fragments.
//
// Every function here is deterministic and free of side effects: the same computed values
// always decode to the same fragments. The only external capability is color canonicalization,
// supplied through a ColorResolver.
package cssvalue

import (
	"strconv"
	"strings"
	"unicode"
)

// Style is the computed style of one node, keyed by CSS property name
type Style map[string]string

// Get returns the trimmed value of a property, or "" when absent
func (s Style) Get(name string) string {
	return strings.TrimSpace(s[name])
}

// ParseLength returns the numeric part of a CSS length ("12px", "-4", "50%", "1.5em")
func ParseLength(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' && end > 0 && end+1 < len(s) && isDigitOrSign(s[end+1]) {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isDigitOrSign(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+'
}

// lengthOrZero parses a length, treating anything unparseable as 0
func lengthOrZero(s string) float64 {
	v, _ := ParseLength(s)
	return v
}

// SplitTopLevel splits s at runes matching sep that are not nested inside parentheses.
// Empty parts are dropped and the rest trimmed.
func SplitTopLevel(s string, sep func(rune) bool) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && sep(r):
			if part := strings.TrimSpace(s[start:i]); part != "" {
				parts = append(parts, part)
			}
			start = i + len(string(r))
		}
	}
	if part := strings.TrimSpace(s[start:]); part != "" {
		parts = append(parts, part)
	}
	return parts
}

func isComma(r rune) bool { return r == ',' }

// FirstURL extracts the first url(...) target of a background-image value
func FirstURL(raw string) string {
	idx := strings.Index(raw, "url(")
	if idx < 0 {
		return ""
	}
	rest := raw[idx+len("url("):]
	end := strings.IndexByte(rest, ')')
	if end < 0 {
		return ""
	}
	return strings.Trim(strings.TrimSpace(rest[:end]), `"'`)
}

// ParseZIndex decodes z-index; "auto" and unparseable values are the default 0
func ParseZIndex(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return v
}

// ParseOpacity decodes opacity, returning nil for the default (1) or unparseable input
func ParseOpacity(raw string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v >= 1 {
		return nil
	}
	v = clampUnit(v)
	return &v
}

// FirstFontFamily returns the first font-family entry with quotes stripped
func FirstFontFamily(raw string) string {
	families := SplitTopLevel(raw, isComma)
	if len(families) == 0 {
		return ""
	}
	return strings.TrimFunc(families[0], func(r rune) bool {
		return r == '"' || r == '\'' || unicode.IsSpace(r)
	})
}
