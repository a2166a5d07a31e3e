// Package cmd implements the renderstack command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/renderstack/internal/config"
	"github.com/3leaps/renderstack/internal/observability"
	"github.com/3leaps/renderstack/internal/server/handlers"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected at link time.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

var appIdentity *config.Identity

// GetAppIdentity returns the identity set during command initialisation, or
// nil before that.
func GetAppIdentity() *config.Identity {
	return appIdentity
}

var (
	cfgFile    string
	verbose    bool
	awsProfile string
	awsRegion  string
	endpoint   string
)

var rootCmd = &cobra.Command{
	Use:   "renderstack",
	Short: "Provision and drive serverless video rendering",
	Long: `renderstack provisions a render stack on AWS (bucket, role, render
function, uploaded site bundle) and runs a relay service that submits render
jobs and reports their progress.

Examples:
  renderstack plan --stack stack.yaml
  renderstack deploy --stack stack.yaml --env-file .env
  renderstack serve
  renderstack render --relay http://localhost:8080 --props '{"color":"#fff"}' --watch`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initCommand,
}

func init() {
	setDefaults()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/renderstack/renderstack.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&awsProfile, "profile", "", "AWS shared config profile")
	pf.StringVar(&awsRegion, "region", "", "AWS region (overrides the manifest and config)")
	pf.StringVar(&endpoint, "endpoint", "", "AWS endpoint override (e.g. a local moto server)")
}

// setDefaults registers built-in defaults on the global viper instance so
// flag lookups see the same values the loader applies.
func setDefaults() {
	config.SetDefaults(viper.GetViper())
}

func initCommand(cmd *cobra.Command, args []string) error {
	id := config.DefaultIdentity
	appIdentity = &id

	observability.InitCLILogger(id.BinaryName, verbose)

	if cfgFile != "" {
		if err := os.Setenv(id.EnvPrefix+"_CONFIG", cfgFile); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --config value", err)
		}
	}

	overrides := map[string]any{}
	awsOverrides := map[string]any{}
	if awsProfile != "" {
		awsOverrides["profile"] = awsProfile
	}
	if endpoint != "" {
		awsOverrides["endpoint"] = endpoint
	}
	if len(awsOverrides) > 0 {
		overrides["aws"] = awsOverrides
	}
	if awsRegion != "" {
		overrides["render"] = map[string]any{"region": awsRegion}
	}

	if _, err := config.Load(cmd.Context(), overrides); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	return nil
}

// Execute runs the root command and exits with the code carried by the
// returned error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	observability.Sync()
	if err == nil {
		return
	}

	code := 1
	var ee *exitErr
	if errors.As(err, &ee) {
		code = ee.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	stop()
	os.Exit(code)
}

type exitErr struct {
	code    int
	message string
	err     error
}

func (e *exitErr) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *exitErr) Unwrap() error { return e.err }

// exitError wraps err with a process exit code.
func exitError(code int, message string, err error) error {
	if err == nil {
		err = errors.New(message)
	}
	return &exitErr{code: code, message: message, err: err}
}

// ExitWithCode logs and terminates the process immediately.
func ExitWithCode(logger *zap.Logger, code int, message string, err error) {
	logger.Error(message, zap.Error(err), zap.Int("exit_code", code))
	observability.Sync()
	os.Exit(code)
}
