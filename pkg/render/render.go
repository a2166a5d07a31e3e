// Package render defines render jobs and the poll loop that waits for them.
//
// A render job is owned by an external rendering service. This package only
// describes what is submitted and what status comes back; Service
// implementations (see render/lambda) do the talking.
package render

import (
	"context"
	"encoding/json"
)

// Request describes a render submission.
type Request struct {
	// Composition is the named template to render.
	Composition string `json:"composition"`

	// InputProps is the free-form parameter payload passed to the template.
	// It must be a JSON object.
	InputProps json.RawMessage `json:"inputProps"`

	// Codec selects the output encoding. Empty uses the service default.
	Codec string `json:"codec,omitempty"`

	// DeleteAfter selects the lifecycle retention bucket for the output
	// ("1-day", "3-days", "7-days", "30-days"). Empty keeps it indefinitely.
	DeleteAfter string `json:"deleteAfter,omitempty"`

	// FramesPerLambda caps frames per renderer invocation. Zero lets the
	// service decide.
	FramesPerLambda int `json:"framesPerLambda,omitempty"`
}

// Job identifies a submitted render.
type Job struct {
	RenderID   string `json:"renderId"`
	BucketName string `json:"bucketName,omitempty"`
}

// Progress is the status payload of a render job.
type Progress struct {
	RenderID              string   `json:"renderId,omitempty"`
	Done                  bool     `json:"done"`
	FatalErrorEncountered bool     `json:"fatalErrorEncountered"`
	OverallProgress       float64  `json:"overallProgress"`
	OutputFile            string   `json:"outputFile,omitempty"`
	Errors                []string `json:"errors,omitempty"`
}

// Terminal reports whether the job reached a final state.
func (p Progress) Terminal() bool {
	return p.Done || p.FatalErrorEncountered
}

// StatusQuerier reports the status of a render job.
type StatusQuerier interface {
	Status(ctx context.Context, renderID string) (*Progress, error)
}

// Service submits render jobs and reports their status.
//
// Identifiers returned by Submit are valid inputs to Status.
type Service interface {
	StatusQuerier
	Submit(ctx context.Context, req Request) (*Job, error)
}

// StatusFunc adapts a function to StatusQuerier.
type StatusFunc func(ctx context.Context, renderID string) (*Progress, error)

// Status calls f.
func (f StatusFunc) Status(ctx context.Context, renderID string) (*Progress, error) {
	return f(ctx, renderID)
}
