// Package lambda implements render.Service by invoking the render function
// directly through the Lambda Invoke API.
package lambda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/3leaps/renderstack/pkg/provider"
	"github.com/3leaps/renderstack/pkg/render"
)

// API is the subset of the Lambda client used here.
type API interface {
	Invoke(ctx context.Context, params *awslambda.InvokeInput, optFns ...func(*awslambda.Options)) (*awslambda.InvokeOutput, error)
}

// Config binds the client to one provisioned stack.
type Config struct {
	FunctionName string
	BucketName   string
	SiteURL      string
	Region       string

	// FramesPerLambda is used when a request does not set its own.
	FramesPerLambda int
}

// Validate checks that the stack outputs needed for invocation are present.
func (c Config) Validate() error {
	switch {
	case c.FunctionName == "":
		return &ConfigError{Field: "FunctionName", Message: "is required"}
	case c.BucketName == "":
		return &ConfigError{Field: "BucketName", Message: "is required"}
	case c.SiteURL == "":
		return &ConfigError{Field: "SiteURL", Message: "is required"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "lambda render config: " + e.Field + ": " + e.Message
}

// Client submits and queries renders on the render function.
type Client struct {
	api API
	cfg Config
}

var _ render.Service = (*Client)(nil)

// New returns a Client for cfg.
func New(api API, cfg Config) (*Client, error) {
	if api == nil {
		return nil, errors.New("lambda render client: nil API")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{api: api, cfg: cfg}, nil
}

// NewFromConfig builds a Client on top of an aws.Config.
func NewFromConfig(awsCfg aws.Config, cfg Config) (*Client, error) {
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}
	return New(awslambda.NewFromConfig(awsCfg), cfg)
}

type inputProps struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

type startPayload struct {
	Type            string     `json:"type"`
	ServeURL        string     `json:"serveUrl"`
	Composition     string     `json:"composition"`
	InputProps      inputProps `json:"inputProps"`
	Codec           string     `json:"codec"`
	FramesPerLambda int        `json:"framesPerLambda,omitempty"`
	ForceBucketName string     `json:"forceBucketName"`
	DeleteAfter     string     `json:"deleteAfter,omitempty"`
}

type startResponse struct {
	Type       string `json:"type"`
	RenderID   string `json:"renderId"`
	BucketName string `json:"bucketName"`
	Message    string `json:"message"`
}

type statusPayload struct {
	Type       string `json:"type"`
	RenderID   string `json:"renderId"`
	BucketName string `json:"bucketName"`
}

type renderError struct {
	Message string `json:"message"`
}

type statusResponse struct {
	Type                  string        `json:"type"`
	Message               string        `json:"message"`
	Done                  bool          `json:"done"`
	FatalErrorEncountered bool          `json:"fatalErrorEncountered"`
	OverallProgress       float64       `json:"overallProgress"`
	OutputFile            *string       `json:"outputFile"`
	Errors                []renderError `json:"errors"`
}

// Submit starts a render and returns its identifier.
func (c *Client) Submit(ctx context.Context, req render.Request) (*render.Job, error) {
	frames := req.FramesPerLambda
	if frames == 0 {
		frames = c.cfg.FramesPerLambda
	}
	props := req.InputProps
	if len(props) == 0 {
		props = json.RawMessage("{}")
	}

	payload := startPayload{
		Type:            "start",
		ServeURL:        c.cfg.SiteURL,
		Composition:     req.Composition,
		InputProps:      inputProps{Type: "payload", Payload: string(props)},
		Codec:           req.Codec,
		FramesPerLambda: frames,
		ForceBucketName: c.cfg.BucketName,
		DeleteAfter:     req.DeleteAfter,
	}

	var resp startResponse
	if err := c.invoke(ctx, "submit", payload, &resp); err != nil {
		return nil, err
	}
	if resp.Type == "error" {
		return nil, &render.UpstreamError{Op: "submit", Err: errors.New(resp.Message)}
	}
	if resp.RenderID == "" {
		return nil, &render.UpstreamError{Op: "submit", Err: errors.New("response has no renderId")}
	}

	bucket := resp.BucketName
	if bucket == "" {
		bucket = c.cfg.BucketName
	}
	return &render.Job{RenderID: resp.RenderID, BucketName: bucket}, nil
}

// Status reports the progress of renderID.
func (c *Client) Status(ctx context.Context, renderID string) (*render.Progress, error) {
	if strings.TrimSpace(renderID) == "" {
		return nil, &render.ValidationError{Field: "renderId", Message: "is required"}
	}

	var resp statusResponse
	payload := statusPayload{Type: "status", RenderID: renderID, BucketName: c.cfg.BucketName}
	if err := c.invoke(ctx, "status", payload, &resp); err != nil {
		return nil, err
	}
	if resp.Type == "error" {
		return nil, &render.UpstreamError{Op: "status", Err: errors.New(resp.Message)}
	}

	progress := &render.Progress{
		RenderID:              renderID,
		Done:                  resp.Done,
		FatalErrorEncountered: resp.FatalErrorEncountered,
		OverallProgress:       resp.OverallProgress,
	}
	if resp.OutputFile != nil {
		progress.OutputFile = *resp.OutputFile
	}
	for _, e := range resp.Errors {
		progress.Errors = append(progress.Errors, e.Message)
	}
	return progress, nil
}

func (c *Client) invoke(ctx context.Context, op string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", op, err)
	}

	resp, err := c.api.Invoke(ctx, &awslambda.InvokeInput{
		FunctionName:   aws.String(c.cfg.FunctionName),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        body,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &render.UpstreamError{Op: op, Err: provider.Wrap(provider.ServiceLambda, "Invoke", c.cfg.FunctionName, err)}
	}

	if resp.FunctionError != nil {
		return &render.UpstreamError{Op: op, Err: functionError(aws.ToString(resp.FunctionError), resp.Payload)}
	}

	if err := json.Unmarshal(resp.Payload, out); err != nil {
		return &render.UpstreamError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// functionError extracts the message from an unhandled function error body.
func functionError(kind string, payload []byte) error {
	var body struct {
		ErrorType    string `json:"errorType"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.ErrorMessage != "" {
		return fmt.Errorf("function error (%s): %s", kind, body.ErrorMessage)
	}
	return fmt.Errorf("function error (%s)", kind)
}
