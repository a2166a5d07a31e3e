package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/renderstack/internal/observability"
	"github.com/3leaps/renderstack/pkg/output"
	"github.com/3leaps/renderstack/pkg/provision"
	"github.com/3leaps/renderstack/pkg/provision/awsapply"
	"github.com/3leaps/renderstack/pkg/site"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Create or update a render stack",
	Long: `Create or update the render stack declared in a manifest.

Runs the site bundle command (if any), uploads the bundle, and creates or
updates the bucket, IAM role and policy, and render function. Progress is
written as JSONL records; the final summary carries the stack outputs.

Example:
  renderstack deploy --stack stack.yaml
  renderstack deploy --stack stack.yaml --env-file .env.render
  renderstack deploy --stack stack.yaml --skip-bundle --output deploy.jsonl`,
	RunE: runDeploy,
}

var (
	deployStackPath   string
	deployEnvFile     string
	deployOutput      string
	deploySkipBundle  bool
	deployConcurrency int
)

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().StringVarP(&deployStackPath, "stack", "s", "stack.yaml", "Path to stack manifest")
	deployCmd.Flags().StringVar(&deployEnvFile, "env-file", "", "Write relay environment bindings to this file")
	deployCmd.Flags().StringVarP(&deployOutput, "output", "o", "", "JSONL destination (default stdout)")
	deployCmd.Flags().BoolVar(&deploySkipBundle, "skip-bundle", false, "Upload the existing bundle without running the bundle command")
	deployCmd.Flags().IntVar(&deployConcurrency, "concurrency", awsapply.DefaultConcurrency, "Resources applied in parallel within a wave")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	if deployConcurrency < 1 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --concurrency value", fmt.Errorf("concurrency must be >= 1"))
	}

	stack, files, err := loadStack(ctx, deployStackPath, stackOptions{site: siteRequired, bundle: !deploySkipBundle})
	if err != nil {
		return err
	}

	observability.CLILogger.Info("Deploying stack",
		zap.String("stack", stack.Config().Name),
		zap.String("region", stack.Config().Region),
		zap.Int("resources", len(stack.Resources())),
		zap.Int("site_files", len(files)),
		zap.String("site_size", humanize.IBytes(uint64(site.TotalSize(files)))))

	awsCfg, err := loadAWSConfig(ctx, stack.Config().Region)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(deployOutput)
	if err != nil {
		return err
	}
	defer func() { _ = closeOut() }()

	runID := uuid.NewString()
	w := output.NewJSONLWriter(out, runID, stack.Config().Name)
	defer func() { _ = w.Close() }()

	res, err := newApplier(ctx, awsCfg, runID, deployConcurrency, w).Apply(ctx, stack)
	if err != nil {
		_ = w.WriteError(context.WithoutCancel(ctx), errorRecord(err))
		writeSummary(ctx, w, "deploy", res, nil, time.Since(start))
		return exitError(runExitCode(ctx, err), "Deploy failed", err)
	}

	outputs := res.Outputs
	writeSummary(ctx, w, "deploy", res, outputs, time.Since(start))

	if deployEnvFile != "" {
		if err := writeEnvFile(deployEnvFile, outputs); err != nil {
			return exitError(foundry.ExitFileWriteError, "Cannot write env file", err)
		}
		observability.CLILogger.Info("Wrote relay environment", zap.String("path", deployEnvFile))
	}

	observability.CLILogger.Info("Stack deployed",
		zap.String("function", outputs.FunctionName),
		zap.String("bucket", outputs.BucketName),
		zap.String("site_url", outputs.SiteURL),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return nil
}

// envPrefix is the variable prefix the relay reads its bindings from.
func envPrefix() string {
	if id := GetAppIdentity(); id != nil && id.EnvPrefix != "" {
		return id.EnvPrefix
	}
	return "RENDERSTACK"
}

// writeEnvFile writes the stack outputs as KEY=value lines.
func writeEnvFile(path string, outputs provision.Outputs) error {
	content := strings.Join(outputs.Env(envPrefix()), "\n") + "\n"
	return os.WriteFile(path, []byte(content), 0o600)
}
