package cmd

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/renderstack/internal/observability"
	"github.com/3leaps/renderstack/pkg/output"
	"github.com/3leaps/renderstack/pkg/provision/awsapply"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Remove a render stack",
	Long: `Remove the resources of the stack declared in a manifest, in reverse
dependency order. Resources that no longer exist are reported as missing.

The bucket and its contents are kept unless the manifest sets
force_destroy: true (or --force is given), in which case the bucket is
emptied and deleted.

Example:
  renderstack destroy --stack stack.yaml
  renderstack destroy --stack stack.yaml --force`,
	RunE: runDestroy,
}

var (
	destroyStackPath string
	destroyOutput    string
	destroyForce     bool
)

func init() {
	rootCmd.AddCommand(destroyCmd)

	destroyCmd.Flags().StringVarP(&destroyStackPath, "stack", "s", "stack.yaml", "Path to stack manifest")
	destroyCmd.Flags().StringVarP(&destroyOutput, "output", "o", "", "JSONL destination (default stdout)")
	destroyCmd.Flags().BoolVar(&destroyForce, "force", false, "Empty and delete the bucket regardless of force_destroy")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	stack, _, err := loadStack(ctx, destroyStackPath, stackOptions{site: siteOptional, forceDestroy: destroyForce})
	if err != nil {
		return err
	}

	observability.CLILogger.Info("Destroying stack",
		zap.String("stack", stack.Config().Name),
		zap.String("region", stack.Config().Region),
		zap.Bool("force_destroy", stack.Config().ForceDestroy))

	awsCfg, err := loadAWSConfig(ctx, stack.Config().Region)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(destroyOutput)
	if err != nil {
		return err
	}
	defer func() { _ = closeOut() }()

	runID := uuid.NewString()
	w := output.NewJSONLWriter(out, runID, stack.Config().Name)
	defer func() { _ = w.Close() }()

	res, err := newApplier(ctx, awsCfg, runID, awsapply.DefaultConcurrency, w).Destroy(ctx, stack)
	if err != nil {
		_ = w.WriteError(context.WithoutCancel(ctx), errorRecord(err))
		writeSummary(ctx, w, "destroy", res, nil, time.Since(start))
		return exitError(runExitCode(ctx, err), "Destroy failed", err)
	}

	writeSummary(ctx, w, "destroy", res, nil, time.Since(start))

	counts := summaryCounts(res)
	observability.CLILogger.Info("Stack destroyed",
		zap.Int("deleted", counts[string(awsapply.ActionDeleted)]),
		zap.Int("missing", counts[string(awsapply.ActionMissing)]),
		zap.Int("retained", counts[string(awsapply.ActionRetained)]))
	return nil
}
