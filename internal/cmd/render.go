package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/renderstack/internal/config"
	"github.com/3leaps/renderstack/internal/observability"
	"github.com/3leaps/renderstack/pkg/output"
	"github.com/3leaps/renderstack/pkg/render"
	"github.com/3leaps/renderstack/pkg/render/lambda"
	"github.com/3leaps/renderstack/pkg/render/relayclient"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Submit a render job and optionally watch it",
	Long: `Submit a render job, either through a running relay (--relay) or directly
to the render function named in the configuration.

With --watch the job is polled until it finishes or fails; every observed
status is written as a JSONL render record.

Example:
  renderstack render --relay http://localhost:8080 --props '{"framework":"go"}' --watch
  renderstack render --composition Intro --codec vp9 --delete-after 7-days
  renderstack render --relay http://localhost:8080 --watch --interval 1s --max-wait 5m`,
	RunE: runRender,
}

var (
	renderRelayURL    string
	renderComposition string
	renderCodec       string
	renderProps       string
	renderDeleteAfter string
	renderFrames      int
	renderWatch       bool
	renderInterval    time.Duration
	renderMaxWait     time.Duration
	renderOutput      string
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVar(&renderRelayURL, "relay", "", "Relay base URL (default: invoke the render function directly)")
	renderCmd.Flags().StringVar(&renderComposition, "composition", "", "Composition to render (default from config)")
	renderCmd.Flags().StringVar(&renderCodec, "codec", "", "Output codec (default from config)")
	renderCmd.Flags().StringVar(&renderProps, "props", "", "Input props as a JSON object")
	renderCmd.Flags().StringVar(&renderDeleteAfter, "delete-after", "", "Output retention (1-day|3-days|7-days|30-days)")
	renderCmd.Flags().IntVar(&renderFrames, "frames-per-lambda", 0, "Frames per renderer invocation (0 uses the default)")
	renderCmd.Flags().BoolVarP(&renderWatch, "watch", "w", false, "Poll until the render finishes")
	renderCmd.Flags().DurationVar(&renderInterval, "interval", render.DefaultPollInterval, "Delay between status queries")
	renderCmd.Flags().DurationVar(&renderMaxWait, "max-wait", 0, "Give up watching after this long (0 waits until interrupted)")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "JSONL destination (default stdout)")
}

// watcher is implemented by services with their own watch loop.
type watcher interface {
	Watch(ctx context.Context, renderID string, interval time.Duration, onProgress func(render.Progress)) (*render.Progress, error)
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if renderInterval <= 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --interval value", fmt.Errorf("interval must be positive"))
	}

	cfg := config.GetConfig()
	if cfg == nil {
		return exitError(foundry.ExitInvalidArgument, "Configuration not loaded", errors.New("config is nil"))
	}

	req, err := buildRenderRequest(cfg.Render)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid render request", err)
	}

	svc, err := newRenderService(ctx, cfg)
	if err != nil {
		return err
	}

	job, err := svc.Submit(ctx, req)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Render submission failed", err)
	}
	observability.CLILogger.Info("Render submitted",
		zap.String("render_id", job.RenderID),
		zap.String("bucket", job.BucketName))

	out, closeOut, err := openOutput(renderOutput)
	if err != nil {
		return err
	}
	defer func() { _ = closeOut() }()

	w := output.NewJSONLWriter(out, uuid.NewString(), job.BucketName)
	defer func() { _ = w.Close() }()

	if !renderWatch {
		return w.WriteRender(ctx, &output.RenderRecord{RenderID: job.RenderID})
	}

	watchCtx := ctx
	if renderMaxWait > 0 {
		var cancel context.CancelFunc
		watchCtx, cancel = context.WithTimeout(ctx, renderMaxWait)
		defer cancel()
	}

	onProgress := func(p render.Progress) {
		if err := w.WriteRender(ctx, renderRecord(job.RenderID, p)); err != nil {
			observability.CLILogger.Warn("Failed to write render record", zap.Error(err))
		}
		observability.CLILogger.Debug("Render progress",
			zap.String("render_id", job.RenderID),
			zap.Float64("progress", p.OverallProgress))
	}

	var final *render.Progress
	if wt, ok := svc.(watcher); ok {
		final, err = wt.Watch(watchCtx, job.RenderID, renderInterval, onProgress)
	} else {
		p := &render.Poller{Interval: renderInterval, OnProgress: onProgress}
		final, err = p.Await(watchCtx, svc, job.RenderID)
	}
	return finishWatch(ctx, w, job.RenderID, final, err)
}

// finishWatch reports the outcome of a watch and maps it to an exit code.
func finishWatch(ctx context.Context, w output.Writer, renderID string, final *render.Progress, err error) error {
	switch {
	case err == nil:
		observability.CLILogger.Info("Render finished",
			zap.String("render_id", renderID),
			zap.String("output", final.OutputFile))
		return nil
	case ctx.Err() != nil:
		return exitError(foundry.ExitSignalInt, "Watch cancelled", ctx.Err())
	}

	rec := &output.ErrorRecord{Code: output.ErrCodeInternal, Message: err.Error(), Resource: renderID}
	message := "Render watch failed"
	switch {
	case errors.Is(err, render.ErrFatal):
		rec.Code = output.ErrCodeRenderFailed
		message = "Render failed"
		if final != nil {
			rec.Details = final.Errors
		}
	case errors.Is(err, render.ErrPollTimeout), errors.Is(err, context.DeadlineExceeded):
		rec.Code = output.ErrCodeTimeout
		message = "Render did not finish in time"
	}
	_ = w.WriteError(context.WithoutCancel(ctx), rec)
	return exitError(foundry.ExitExternalServiceUnavailable, message, err)
}

// buildRenderRequest assembles a request from flags over config defaults.
func buildRenderRequest(rc config.RenderConfig) (render.Request, error) {
	req := render.Request{
		Composition:     renderComposition,
		Codec:           renderCodec,
		DeleteAfter:     renderDeleteAfter,
		FramesPerLambda: renderFrames,
	}
	if renderProps != "" {
		if !json.Valid([]byte(renderProps)) {
			return req, fmt.Errorf("--props is not valid JSON")
		}
		req.InputProps = json.RawMessage(renderProps)
	}
	if err := req.Normalize(rc.Composition, rc.Codec); err != nil {
		return req, err
	}
	return req, nil
}

// newRenderService returns a relay client when --relay is set, otherwise a
// direct function client bound to the configured stack.
func newRenderService(ctx context.Context, cfg *config.Config) (render.Service, error) {
	if renderRelayURL != "" {
		c, err := relayclient.New(renderRelayURL)
		if err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid --relay value", err)
		}
		return c, nil
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.Render.Region)
	if err != nil {
		return nil, err
	}
	c, err := lambda.NewFromConfig(awsCfg, lambdaConfig(cfg.Render))
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Render function not configured", err)
	}
	return c, nil
}

func lambdaConfig(rc config.RenderConfig) lambda.Config {
	return lambda.Config{
		FunctionName:    rc.FunctionName,
		BucketName:      rc.BucketName,
		SiteURL:         rc.SiteURL,
		Region:          rc.Region,
		FramesPerLambda: rc.FramesPerLambda(),
	}
}

func renderRecord(renderID string, p render.Progress) *output.RenderRecord {
	id := p.RenderID
	if id == "" {
		id = renderID
	}
	return &output.RenderRecord{
		RenderID:              id,
		Done:                  p.Done,
		FatalErrorEncountered: p.FatalErrorEncountered,
		OverallProgress:       p.OverallProgress,
		OutputFile:            p.OutputFile,
		Errors:                p.Errors,
	}
}
