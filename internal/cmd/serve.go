package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/renderstack/internal/config"
	"github.com/3leaps/renderstack/internal/observability"
	"github.com/3leaps/renderstack/internal/server"
	"github.com/3leaps/renderstack/internal/server/handlers"
	"github.com/3leaps/renderstack/pkg/provider"
	"github.com/3leaps/renderstack/pkg/render/lambda"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the render relay",
	Long: `Run the HTTP relay that submits render jobs to the render function and
reports their progress.

The relay reads the deployed stack from RENDERSTACK_* variables (see
'renderstack deploy --env-file') or the config file. Without a configured
function the render API answers 503 and only health and version endpoints
are useful.

Endpoints:
  POST /api/render        submit, returns {renderId, bucketName}
  POST /api/render/wait   submit and wait up to render.max_wait
  GET  /api/progress      status for ?renderId=
  GET  /                  demo page

Example:
  renderstack serve
  renderstack serve --port 3000`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg := config.GetConfig()
	if cfg == nil {
		return exitError(foundry.ExitInvalidArgument, "Configuration not loaded", errors.New("config is nil"))
	}
	host, port := cfg.Server.Host, cfg.Server.Port
	if cmd.Flags().Changed("host") {
		host = serveHost
	}
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	identity := GetAppIdentity()
	if identity == nil {
		id := config.DefaultIdentity
		identity = &id
	}
	observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level)
	logger := observability.ServerLogger

	var health *handlers.HealthManager
	if cfg.Health.Enabled {
		handlers.InitHealthManager(versionInfo.Version)
		health = handlers.GetHealthManager()
		health.RegisterChecker("identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
		server.WithSubmitRate(cfg.Render.SubmitRatePerMinute),
	}

	lcfg := lambdaConfig(cfg.Render)
	if err := lcfg.Validate(); err != nil {
		logger.Warn("Render function not configured; render API disabled", zap.Error(err))
		if health != nil {
			health.RegisterChecker("config", renderConfigHealthChecker{cfg: lcfg})
		}
	} else {
		awsCfg, err := loadAWSConfig(ctx, cfg.Render.Region)
		if err != nil {
			return err
		}
		svc, err := lambda.NewFromConfig(awsCfg, lcfg)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid render configuration", err)
		}
		opts = append(opts, server.WithRenderService(svc, handlers.RenderOptions{
			Composition:     cfg.Render.Composition,
			Codec:           cfg.Render.Codec,
			FramesPerLambda: lcfg.FramesPerLambda,
			PollInterval:    cfg.Render.PollInterval,
			MaxWait:         cfg.Render.MaxWait,
			Logger:          logger,
		}))
		if health != nil {
			health.RegisterChecker("config", renderConfigHealthChecker{cfg: lcfg})
			health.RegisterChecker("render_function", newFunctionHealthChecker(awsCfg, lcfg))
		}
		logger.Info("Render function configured",
			zap.String("function", lcfg.FunctionName),
			zap.String("bucket", lcfg.BucketName),
			zap.String("region", lcfg.Region))
	}

	srv := server.New(host, port, opts...)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Relay listening", zap.String("addr", srv.Addr()))
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Relay stopped", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down relay", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitError(foundry.ExitSignalInt, "Relay shutdown incomplete", err)
	}
	return nil
}

// identityHealthChecker verifies the application identity is complete.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case c.binaryName == "":
		return errors.New("app identity missing binary name")
	case c.envPrefix == "":
		return errors.New("app identity missing env prefix")
	case c.configName == "":
		return errors.New("app identity missing config name")
	}
	return nil
}

// renderConfigHealthChecker reports whether the stack outputs are bound.
type renderConfigHealthChecker struct {
	cfg lambda.Config
}

func (c renderConfigHealthChecker) CheckHealth(ctx context.Context) error {
	return c.cfg.Validate()
}

// functionGetter is the subset of the Lambda API the function check uses.
type functionGetter interface {
	GetFunction(ctx context.Context, params *awslambda.GetFunctionInput, optFns ...func(*awslambda.Options)) (*awslambda.GetFunctionOutput, error)
}

// functionHealthChecker verifies the render function exists and is active.
type functionHealthChecker struct {
	api  functionGetter
	name string
}

func newFunctionHealthChecker(awsCfg aws.Config, cfg lambda.Config) functionHealthChecker {
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}
	return functionHealthChecker{api: awslambda.NewFromConfig(awsCfg), name: cfg.FunctionName}
}

func (c functionHealthChecker) CheckHealth(ctx context.Context) error {
	out, err := c.api.GetFunction(ctx, &awslambda.GetFunctionInput{FunctionName: aws.String(c.name)})
	if err != nil {
		return provider.Wrap(provider.ServiceLambda, "GetFunction", c.name, err)
	}
	if out.Configuration == nil {
		return fmt.Errorf("function %s: no configuration returned", c.name)
	}
	if state := out.Configuration.State; state != "" && state != types.StateActive {
		return fmt.Errorf("function %s: state %s", c.name, state)
	}
	return nil
}
