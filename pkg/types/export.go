package types

import (
	"time"
)

// ExportRequest asks for one presentation to be flattened (client→service)
type ExportRequest struct {
	PresentationID string `json:"presentation_id"`
	SessionID      string `json:"session_id,omitempty"` // Generated when empty
	OutputDir      string `json:"output_dir,omitempty"` // Snapshot directory override
}

// ExportResult is the ordered per-slide model handed to the format mapper
type ExportResult struct {
	SessionID      string                  `json:"session_id"`
	PresentationID string                  `json:"presentation_id"`
	Slides         []SlideAttributesResult `json:"slides"`
	Captures       int                     `json:"captures"`
	ExportTime     time.Duration           `json:"export_time"`
}

// ElementCount returns the total number of elements across all slides
func (r *ExportResult) ElementCount() int {
	total := 0
	for i := range r.Slides {
		total += len(r.Slides[i].Elements)
	}
	return total
}

// Error kind constants - client faults
const (
	ErrorKindInput    = "input"
	ErrorKindNotFound = "not_found"
)

// Error kind constants - server faults
const (
	ErrorKindCapture  = "capture"
	ErrorKindTimeout  = "timeout"
	ErrorKindPool     = "pool_unavailable"
	ErrorKindInternal = "internal"
)

// ExportErrorResponse is the body returned for a failed export
type ExportErrorResponse struct {
	SessionID string    `json:"session_id,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	ErrorKind string    `json:"error_kind"`
	Timestamp time.Time `json:"timestamp"`
}
