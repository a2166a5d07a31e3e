package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/renderstack/internal/config"
	errwrap "github.com/3leaps/renderstack/internal/errors"
	"github.com/3leaps/renderstack/internal/observability"
	"github.com/3leaps/renderstack/pkg/provision"
)

var (
	doctorAWS bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the system and suggest fixes for common issues.

Examples:
  renderstack doctor         # Environment and relay configuration
  renderstack doctor --aws   # Also check AWS credentials and region`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorAWS, "aws", false, "Run AWS credential and region checks")
}

func runDoctor(cmd *cobra.Command, args []string) {
	identity := GetAppIdentity()
	bannerName := "doctor"
	if identity != nil && identity.BinaryName != "" {
		bannerName = identity.BinaryName + " doctor"
	}
	observability.CLILogger.Info("=== " + bannerName + " ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 5
	if doctorAWS {
		totalChecks = 7
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	// Check 2: Gofulmen access
	version := crucible.GetVersion()
	if version.Gofulmen != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ✅ v%s", checkNum, totalChecks, version.Gofulmen),
			zap.String("gofulmen_version", version.Gofulmen))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ❌ Cannot access Gofulmen", checkNum, totalChecks))
		ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Cannot access Gofulmen",
			errwrap.NewExternalServiceError("Gofulmen unavailable"))
		allChecks = false
	}
	checkNum++

	// Check 3: Config directory
	configDir, err := os.UserConfigDir()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking config directory... ❌ Cannot find config directory", checkNum, totalChecks),
			zap.Error(err))
		ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Cannot find config directory",
			errwrap.WrapInternal(cmd.Context(), err, "Cannot find config directory"))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking config directory... ✅ %s", checkNum, totalChecks, configDir),
			zap.String("config_dir", configDir))
	}
	checkNum++

	// Check 4: Relay bindings
	if missing := missingRenderBindings(config.GetConfig()); len(missing) == 0 {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking relay configuration... ✅ render function bound", checkNum, totalChecks))
	} else {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking relay configuration... ⚠️  missing %v", checkNum, totalChecks, missing))
		observability.CLILogger.Info("  Run 'renderstack deploy --env-file .env' and export the file before 'renderstack serve'.")
		allChecks = false
	}
	checkNum++

	// Check 5: Environment
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	if doctorAWS {
		allChecks = runAWSChecks(cmd.Context(), checkNum, totalChecks, allChecks)
	}

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
}

// missingRenderBindings lists the relay settings deploy would provide.
func missingRenderBindings(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"config"}
	}
	var missing []string
	if cfg.Render.FunctionName == "" {
		missing = append(missing, "render.function_name")
	}
	if cfg.Render.BucketName == "" {
		missing = append(missing, "render.bucket_name")
	}
	if cfg.Render.SiteURL == "" {
		missing = append(missing, "render.site_url")
	}
	return missing
}

// runAWSChecks resolves credentials and region the way deploy does.
func runAWSChecks(ctx context.Context, checkNum, totalChecks int, allChecks bool) bool {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("AWS Checks:")

	region := ""
	if cfg := config.GetConfig(); cfg != nil {
		region = cfg.Render.Region
	}

	// Check 6: AWS credentials
	awsCfg, err := loadAWSConfig(ctx, region)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot load AWS config", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot retrieve credentials", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking AWS credentials... ✅ Found credentials", checkNum, totalChecks),
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("source", source))
	checkNum++

	// Check 7: Region and hosted layers
	table, err := provision.HostedLayers()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking region... ❌ Cannot read hosted layer table", checkNum, totalChecks),
			zap.Error(err))
		return false
	}
	if _, err := table.Resolve(provision.DefaultArchitecture, awsCfg.Region); err != nil {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking region... ⚠️  %s has no hosted layers", checkNum, totalChecks, awsCfg.Region),
			zap.Strings("supported", table.Regions(provision.DefaultArchitecture)))
		return false
	}
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking region... ✅ %s", checkNum, totalChecks, awsCfg.Region),
		zap.String("region", awsCfg.Region))

	return allChecks
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure AWS credentials:")
	observability.CLILogger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	observability.CLILogger.Info("  2. Run 'aws configure' to set up a profile and pass --profile, or")
	observability.CLILogger.Info("  3. Use an IAM role when running on AWS infrastructure")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("For a local moto server, also set:")
	observability.CLILogger.Info("  - RENDERSTACK_AWS_ENDPOINT or use --endpoint flag")
	observability.CLILogger.Info("")
}
