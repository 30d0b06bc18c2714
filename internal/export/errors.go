package export

import (
	"context"
	"errors"

	"github.com/edgecomet/deckexport/internal/rasterize"
	"github.com/edgecomet/deckexport/internal/render/chrome"
	"github.com/edgecomet/deckexport/pkg/types"
)

// Input errors - client faults
var (
	ErrMissingPresentationID = errors.New("presentation id is required")
	ErrMissingOutputDir      = errors.New("snapshot output directory is required")
	ErrInvalidSessionID      = errors.New("session id must not contain path separators")
)

// Lookup errors - client faults
var (
	ErrRootNotFound = errors.New("presentation root container not found")
)

// Classify maps an export error onto its kind. Unknown errors are internal.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingPresentationID), errors.Is(err, ErrMissingOutputDir),
		errors.Is(err, ErrInvalidSessionID):
		return types.ErrorKindInput
	case errors.Is(err, ErrRootNotFound):
		return types.ErrorKindNotFound
	case errors.Is(err, rasterize.ErrNoImageData), errors.Is(err, rasterize.ErrRestoreFailed):
		return types.ErrorKindCapture
	case errors.Is(err, chrome.ErrReadinessTimeout), errors.Is(err, context.DeadlineExceeded):
		return types.ErrorKindTimeout
	case errors.Is(err, chrome.ErrPoolShutdown), errors.Is(err, chrome.ErrInstanceDead):
		return types.ErrorKindPool
	default:
		return types.ErrorKindInternal
	}
}

// IsClientFault reports whether kind blames the caller
func IsClientFault(kind string) bool {
	return kind == types.ErrorKindInput || kind == types.ErrorKindNotFound
}
