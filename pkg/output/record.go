// Package output provides JSONL output for deploy runs and render watches.
//
// Output is structured as typed record envelopes. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: renderstack.<type>.v<version>
const (
	// TypeResource identifies per-resource apply or destroy records.
	TypeResource = "renderstack.resource.v1"

	// TypeRender identifies render job status records.
	TypeRender = "renderstack.render.v1"

	// TypeError identifies error records.
	TypeError = "renderstack.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "renderstack.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "renderstack.resource.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID correlates all records of one CLI run.
	RunID string `json:"run_id"`

	// Stack names the stack the run operates on.
	Stack string `json:"stack"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// ResourceRecord reports what happened to one resource.
type ResourceRecord struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Action string `json:"action"`

	// Name is the physical resource name or object key.
	Name string `json:"name,omitempty"`

	Duration time.Duration `json:"duration_ns,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// RenderRecord is one observed render status.
type RenderRecord struct {
	RenderID              string   `json:"render_id"`
	Done                  bool     `json:"done"`
	FatalErrorEncountered bool     `json:"fatal_error_encountered"`
	OverallProgress       float64  `json:"overall_progress"`
	OutputFile            string   `json:"output_file,omitempty"`
	Errors                []string `json:"errors,omitempty"`
}

// ErrorRecord is the data payload for errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Resource is the resource ID related to this error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeAccessDenied = "ACCESS_DENIED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeTimeout      = "TIMEOUT"
	ErrCodeThrottled    = "THROTTLED"
	ErrCodeRenderFailed = "RENDER_FAILED"
	ErrCodeInternal     = "INTERNAL"
)

// SummaryRecord is emitted once at the end of a run.
type SummaryRecord struct {
	Operation string `json:"operation"`

	// Counts maps action to number of resources.
	Counts map[string]int `json:"counts,omitempty"`

	// Outputs carries stack outputs after a deploy.
	Outputs any `json:"outputs,omitempty"`

	Duration      time.Duration `json:"duration_ns"`
	DurationHuman string        `json:"duration"`
	Errors        int64         `json:"errors"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
