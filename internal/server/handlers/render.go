package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/renderstack/internal/errors"
	"github.com/3leaps/renderstack/pkg/render"
)

// maxRequestBody bounds a submission body.
const maxRequestBody = 1 << 20

// RenderOptions tunes the render endpoints.
type RenderOptions struct {
	// Composition and Codec fill in requests that omit them.
	Composition string
	Codec       string

	// FramesPerLambda applies when a request does not set it.
	FramesPerLambda int

	PollInterval time.Duration
	MaxWait      time.Duration

	Logger *zap.Logger
}

// RenderHandler serves submission, bounded wait and progress.
type RenderHandler struct {
	svc    render.Service
	opts   RenderOptions
	logger *zap.Logger
}

// NewRenderHandler creates a handler submitting to svc.
func NewRenderHandler(svc render.Service, opts RenderOptions) *RenderHandler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RenderHandler{svc: svc, opts: opts, logger: logger}
}

// SubmitResponse is the body of a successful submission.
type SubmitResponse struct {
	RenderID   string `json:"renderId"`
	BucketName string `json:"bucketName"`
}

// Submit handles POST /api/render.
func (h *RenderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	job, ok := h.submit(w, r)
	if !ok {
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, SubmitResponse{RenderID: job.RenderID, BucketName: job.BucketName})
}

// SubmitAndWait handles POST /api/render/wait: it submits and polls until
// the job is done (200), fails (500 with the status payload) or the wait
// bound expires (504). A done status without an output file is answered
// with 502.
func (h *RenderHandler) SubmitAndWait(w http.ResponseWriter, r *http.Request) {
	job, ok := h.submit(w, r)
	if !ok {
		return
	}

	poller := &render.Poller{Interval: h.opts.PollInterval, MaxWait: h.opts.MaxWait}
	progress, err := poller.Await(r.Context(), h.svc, job.RenderID)

	var fatal *render.FatalError
	switch {
	case err == nil && progress.OutputFile == "":
		h.logger.Warn("render done without output file", zap.String("render_id", job.RenderID))
		respondWithError(w, r, apperrors.NewExternalServiceError("render finished without an output file").
			WithDetails(map[string]any{"renderId": job.RenderID}))
	case err == nil:
		apperrors.WriteJSON(w, http.StatusOK, progress)
	case errors.As(err, &fatal):
		h.logger.Warn("render failed",
			zap.String("render_id", job.RenderID),
			zap.Strings("errors", fatal.Progress.Errors),
		)
		apperrors.WriteJSON(w, http.StatusInternalServerError, fatal.Progress)
	default:
		h.logger.Warn("render wait ended", zap.String("render_id", job.RenderID), zap.Error(err))
		respondWithError(w, r, toAppError(err))
	}
}

// Progress handles GET /api/progress?renderId=...
func (h *RenderHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("renderId"))
	if id == "" {
		respondWithError(w, r, apperrors.NewValidationError("renderId is required", map[string]any{"field": "renderId"}))
		return
	}

	progress, err := h.svc.Status(r.Context(), id)
	if err != nil {
		respondWithError(w, r, toAppError(err))
		return
	}
	if progress.RenderID == "" {
		progress.RenderID = id
	}
	apperrors.WriteJSON(w, http.StatusOK, progress)
}

func (h *RenderHandler) submit(w http.ResponseWriter, r *http.Request) (*render.Job, bool) {
	var req render.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		respondWithError(w, r, apperrors.NewValidationError("request body must be a JSON object", map[string]any{"reason": err.Error()}))
		return nil, false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		respondWithError(w, r, apperrors.NewValidationError("request body must be a single JSON object", map[string]any{"reason": "trailing data after JSON object"}))
		return nil, false
	}
	if err := req.Normalize(h.opts.Composition, h.opts.Codec); err != nil {
		respondWithError(w, r, toAppError(err))
		return nil, false
	}
	if req.FramesPerLambda == 0 {
		req.FramesPerLambda = h.opts.FramesPerLambda
	}

	job, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		h.logger.Error("render submission failed", zap.String("composition", req.Composition), zap.Error(err))
		respondWithError(w, r, toAppError(err))
		return nil, false
	}
	h.logger.Info("render submitted",
		zap.String("render_id", job.RenderID),
		zap.String("composition", req.Composition),
		zap.String("codec", req.Codec),
	)
	return job, true
}

// toAppError maps render errors onto HTTP errors.
func toAppError(err error) *apperrors.AppError {
	var vErr *render.ValidationError
	var tErr *render.TimeoutError
	switch {
	case errors.As(err, &vErr):
		return apperrors.NewValidationError(vErr.Error(), map[string]any{"field": vErr.Field})
	case errors.As(err, &tErr):
		details := map[string]any{"renderId": tErr.RenderID, "queries": tErr.Queries}
		if tErr.Last != nil {
			details["overallProgress"] = tErr.Last.OverallProgress
		}
		return apperrors.NewTimeoutError("render did not finish in time", err).WithDetails(details)
	case errors.Is(err, render.ErrUpstream):
		return apperrors.WrapExternalService(err, "rendering service error: "+err.Error())
	default:
		return apperrors.AsAppError(err)
	}
}
