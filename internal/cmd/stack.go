package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/3leaps/renderstack/internal/config"
	"github.com/3leaps/renderstack/internal/observability"
	"github.com/3leaps/renderstack/pkg/manifest"
	"github.com/3leaps/renderstack/pkg/output"
	"github.com/3leaps/renderstack/pkg/provider"
	"github.com/3leaps/renderstack/pkg/provision"
	"github.com/3leaps/renderstack/pkg/provision/awsapply"
	"github.com/3leaps/renderstack/pkg/site"
)

// siteMode controls how loadStack treats the site bundle.
type siteMode int

const (
	// siteRequired bundles (when a command is set) and fails without files.
	siteRequired siteMode = iota
	// siteOptional scans when the bundle exists and otherwise declares no
	// site objects.
	siteOptional
)

// stackOptions tune how loadStack prepares a stack.
type stackOptions struct {
	site   siteMode
	bundle bool

	// forceDestroy overrides the manifest's force_destroy when set.
	forceDestroy bool
}

// loadStack loads a manifest and builds the stack it declares.
func loadStack(ctx context.Context, path string, opts stackOptions) (*provision.Stack, []site.File, error) {
	m, err := manifest.Load(path)
	if err != nil {
		code := foundry.ExitInvalidArgument
		if strings.Contains(err.Error(), "not found") {
			code = foundry.ExitFileNotFound
		}
		return nil, nil, exitError(code, "Invalid stack manifest", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, exitError(foundry.ExitInvalidArgument, "Invalid stack manifest path", err)
	}
	baseDir := filepath.Dir(abs)

	cfg := m.StackConfig(baseDir)
	if awsRegion != "" {
		cfg.Region = awsRegion
	}
	if opts.forceDestroy {
		cfg.ForceDestroy = true
	}

	observability.CLILogger.Debug("Loaded stack manifest",
		zap.String("path", path),
		zap.String("stack", cfg.Name),
		zap.String("region", cfg.Region),
		zap.String("site", cfg.Site.Path))

	if opts.bundle && cfg.Site.BundleCommand != "" {
		observability.CLILogger.Info("Bundling site", zap.String("command", cfg.Site.BundleCommand))
		if err := site.RunBundleCommand(ctx, baseDir, cfg.Site.BundleCommand, os.Stderr, os.Stderr); err != nil {
			if ctx.Err() != nil {
				return nil, nil, exitError(foundry.ExitSignalInt, "Bundling cancelled", err)
			}
			return nil, nil, exitError(foundry.ExitInvalidArgument, "Site bundle command failed", err)
		}
	}

	files, err := site.Scan(cfg.Site.Path, site.Options{Include: cfg.Site.Include, Exclude: cfg.Site.Exclude})
	if err != nil {
		if opts.site == siteOptional && (errors.Is(err, fs.ErrNotExist) || errors.Is(err, site.ErrEmptyBundle)) {
			observability.CLILogger.Warn("Site bundle not available; site objects omitted",
				zap.String("path", cfg.Site.Path),
				zap.Error(err))
			files = nil
		} else {
			return nil, nil, exitError(foundry.ExitInvalidArgument, "Cannot read site bundle", err)
		}
	}

	stack, err := provision.Build(cfg, files)
	if err != nil {
		return nil, nil, exitError(foundry.ExitInvalidArgument, "Invalid stack", err)
	}
	return stack, files, nil
}

// awsSettings returns the profile and endpoint from the loaded config.
func awsSettings() (profile, endpointURL string) {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg.AWS.Profile, cfg.AWS.Endpoint
	}
	return awsProfile, endpoint
}

// loadAWSConfig resolves credentials for region.
func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	profile, endpointURL := awsSettings()
	awsCfg, err := provider.LoadAWSConfig(ctx, provider.Config{
		Region:         region,
		Profile:        profile,
		Endpoint:       endpointURL,
		ForcePathStyle: endpointURL != "",
		UseIMDSRegion:  true,
	})
	if err != nil {
		return aws.Config{}, exitError(foundry.ExitExternalServiceUnavailable, "Cannot load AWS configuration", err)
	}
	return awsCfg, nil
}

// newApplier builds an Applier writing one resource record per event.
func newApplier(ctx context.Context, awsCfg aws.Config, runID string, concurrency int, w output.Writer) *awsapply.Applier {
	_, endpointURL := awsSettings()
	clients := awsapply.NewClients(awsCfg, endpointURL, endpointURL != "")
	return awsapply.New(clients,
		awsapply.WithRunID(runID),
		awsapply.WithConcurrency(concurrency),
		awsapply.WithLogger(observability.CLILogger),
		awsapply.WithObserver(func(ev awsapply.Event) {
			if err := w.WriteResource(ctx, resourceRecord(ev)); err != nil {
				observability.CLILogger.Warn("Failed to write resource record", zap.Error(err))
			}
		}),
	)
}

func resourceRecord(ev awsapply.Event) *output.ResourceRecord {
	rec := &output.ResourceRecord{
		ID:       ev.ID,
		Kind:     string(ev.Kind),
		Action:   string(ev.Action),
		Name:     ev.Name,
		Duration: ev.Duration,
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	return rec
}

// errorRecord classifies a run failure.
func errorRecord(err error) *output.ErrorRecord {
	rec := &output.ErrorRecord{Code: output.ErrCodeInternal, Message: err.Error()}

	var resErr *awsapply.ResourceError
	if errors.As(err, &resErr) {
		rec.Resource = resErr.ID
	}

	switch {
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		rec.Code = output.ErrCodeAccessDenied
	case provider.IsNotFound(err):
		rec.Code = output.ErrCodeNotFound
	case provider.IsThrottled(err):
		rec.Code = output.ErrCodeThrottled
	case errors.Is(err, context.DeadlineExceeded):
		rec.Code = output.ErrCodeTimeout
	}
	return rec
}

// runExitCode maps a failed run to a process exit code.
func runExitCode(ctx context.Context, err error) int {
	switch {
	case ctx.Err() != nil:
		return foundry.ExitSignalInt
	case errors.Is(err, awsapply.ErrArchiveTooLarge):
		return foundry.ExitInvalidArgument
	case errors.Is(err, fs.ErrNotExist):
		return foundry.ExitFileNotFound
	default:
		return foundry.ExitExternalServiceUnavailable
	}
}

// summaryCounts converts applier counts for the summary record.
func summaryCounts(res *awsapply.Result) map[string]int {
	counts := make(map[string]int)
	if res == nil {
		return counts
	}
	for action, n := range res.Counts() {
		counts[string(action)] = n
	}
	return counts
}

// writeSummary emits the closing record. It is written even when ctx was
// cancelled mid-run.
func writeSummary(ctx context.Context, w output.Writer, op string, res *awsapply.Result, outputs any, elapsed time.Duration) {
	ctx = context.WithoutCancel(ctx)
	counts := summaryCounts(res)
	sum := &output.SummaryRecord{
		Operation:     op,
		Counts:        counts,
		Outputs:       outputs,
		Duration:      elapsed,
		DurationHuman: elapsed.Round(time.Millisecond).String(),
		Errors:        int64(counts[string(awsapply.ActionFailed)]),
	}
	if err := w.WriteSummary(ctx, sum); err != nil {
		observability.CLILogger.Warn("Failed to write summary record", zap.Error(err))
	}
}

// openOutput returns the JSONL destination: stdout for "" or "-".
func openOutput(dest string) (*os.File, func() error, error) {
	if dest == "" || dest == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(dest)
	if err != nil {
		return nil, nil, exitError(foundry.ExitFileWriteError, "Cannot open output file", fmt.Errorf("%s: %w", dest, err))
	}
	return f, f.Close, nil
}
