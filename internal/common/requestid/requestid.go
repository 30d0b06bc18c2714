package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxLength matches the length of a uuid string
	MaxLength = 36
	// PrefixLength is the random prefix kept in front of a caller supplied id
	PrefixLength = 5

	maxCustomLength = MaxLength - PrefixLength - 1
)

var (
	invalidChars = regexp.MustCompile(`[^a-zA-Z0-9-]+`)
	hyphenRuns   = regexp.MustCompile(`-+`)
)

// NewSessionID returns an export session id. A caller supplied hint is sanitized to
// [a-zA-Z0-9-], truncated and prefixed with random characters: "{5 random}-{hint}".
// Session ids are used as file names, so the result is always filesystem safe.
// Without a usable hint a uuid is returned.
func NewSessionID(hint string) string {
	clean := strings.ReplaceAll(hint, " ", "-")
	clean = invalidChars.ReplaceAllString(clean, "")
	clean = hyphenRuns.ReplaceAllString(clean, "-")
	clean = strings.Trim(clean, "-")

	if clean == "" {
		return uuid.NewString()
	}
	if len(clean) > maxCustomLength {
		clean = strings.TrimRight(clean[:maxCustomLength], "-")
	}
	return randomPrefix() + "-" + clean
}

func randomPrefix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()[:PrefixLength]
	}
	return hex.EncodeToString(buf)[:PrefixLength]
}
