package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateConfigFiles points config discovery at an empty directory so a
// developer's own config file cannot leak into the test.
func isolateConfigFiles(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("RENDERSTACK_CONFIG", "")
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	isolateConfigFiles(t)

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 11*time.Minute, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)
		assert.True(t, cfg.Health.Enabled)

		assert.Equal(t, "MyComp", cfg.Render.Composition)
		assert.Equal(t, "h264", cfg.Render.Codec)
		assert.Equal(t, 3*time.Second, cfg.Render.PollInterval)
		assert.Equal(t, 10*time.Minute, cfg.Render.MaxWait)
		assert.Equal(t, 45, cfg.Render.FramesPerLambda())
		assert.Equal(t, 30, cfg.Render.SubmitRatePerMinute)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("RENDERSTACK_PORT", "3000")
		t.Setenv("RENDERSTACK_LOG_LEVEL", "warn")
		t.Setenv("RENDERSTACK_HEALTH_ENABLED", "false")
		t.Setenv("RENDERSTACK_FUNCTION_NAME", "remotion-render-demo")
		t.Setenv("RENDERSTACK_BUCKET_NAME", "remotionlambda-demo")
		t.Setenv("RENDERSTACK_REGION", "eu-central-1")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Health.Enabled)
		assert.Equal(t, "remotion-render-demo", cfg.Render.FunctionName)
		assert.Equal(t, "remotionlambda-demo", cfg.Render.BucketName)
		assert.Equal(t, "eu-central-1", cfg.Render.Region)
	})

	t.Run("SectionedEnvNames", func(t *testing.T) {
		t.Setenv("RENDERSTACK_RENDER_FUNCTION_NAME", "remotion-render-demo")
		t.Setenv("RENDERSTACK_RENDER_SITE_URL", "https://example.test/sites/demo/index.html")
		t.Setenv("RENDERSTACK_RENDER_REGION", "us-west-2")
		t.Setenv("RENDERSTACK_REGION", "eu-west-1")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "remotion-render-demo", cfg.Render.FunctionName)
		assert.Equal(t, "https://example.test/sites/demo/index.html", cfg.Render.SiteURL)
		assert.Equal(t, "eu-west-1", cfg.Render.Region, "short name wins")
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		t.Setenv("RENDERSTACK_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{
			"server": map[string]any{"port": 5000},
		})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "relay.yaml")
		require.NoError(t, os.WriteFile(path, []byte("render:\n  poll_interval: 2s\n  codec: vp8\n"), 0o600))
		t.Setenv("RENDERSTACK_CONFIG", path)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, cfg.Render.PollInterval)
		assert.Equal(t, "vp8", cfg.Render.Codec)
	})

	t.Run("InvalidPollInterval", func(t *testing.T) {
		_, err := Load(ctx, map[string]any{
			"render": map[string]any{"poll_interval": "0s"},
		})
		require.Error(t, err)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "render.poll_interval", cfgErr.Field)
	})

	t.Run("MaxWaitBeyondWriteTimeout", func(t *testing.T) {
		t.Setenv("RENDERSTACK_MAX_WAIT", "30m")

		_, err := Load(ctx)
		require.Error(t, err)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "render.max_wait", cfgErr.Field)
	})
}

func TestConfig_ValidateWaitBounds(t *testing.T) {
	tests := []struct {
		name         string
		writeTimeout time.Duration
		maxWait      time.Duration
		wantErr      bool
	}{
		{"defaults", 11 * time.Minute, 10 * time.Minute, false},
		{"wait exceeds write timeout", 11 * time.Minute, 30 * time.Minute, true},
		{"wait equals write timeout", 10 * time.Minute, 10 * time.Minute, true},
		{"unbounded wait", 11 * time.Minute, 0, false},
		{"no write timeout", 0, 30 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Server.WriteTimeout = tt.writeTimeout
			cfg.Render.PollInterval = 3 * time.Second
			cfg.Render.MaxWait = tt.maxWait

			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "render.max_wait", cfgErr.Field)
		})
	}
}

func TestDurationParsing(t *testing.T) {
	isolateConfigFiles(t)
	t.Setenv("RENDERSTACK_READ_TIMEOUT", "45s")
	t.Setenv("RENDERSTACK_SHUTDOWN_TIMEOUT", "5m")
	t.Setenv("RENDERSTACK_MAX_WAIT", "90s")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 90*time.Second, cfg.Render.MaxWait)
}

func TestGetConfig(t *testing.T) {
	isolateConfigFiles(t)

	cfg, err := Load(context.Background(), map[string]any{
		"server": map[string]any{"port": 7070},
	})
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
}

func TestEnvSpecs(t *testing.T) {
	isolateConfigFiles(t)
	_, err := Load(context.Background())
	require.NoError(t, err)

	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]string)
	for _, spec := range specs {
		assert.Contains(t, spec.Name, "RENDERSTACK_")
		assert.NotEmpty(t, spec.Path)
		names[spec.Name] = spec.Path
	}

	assert.Equal(t, "server.port", names["RENDERSTACK_PORT"])
	assert.Equal(t, "render.function_name", names["RENDERSTACK_FUNCTION_NAME"])
	assert.Equal(t, "render.bucket_name", names["RENDERSTACK_BUCKET_NAME"])
	assert.Equal(t, "render.site_url", names["RENDERSTACK_SITE_URL"])
	assert.Equal(t, "render.region", names["RENDERSTACK_REGION"])
}

// resetAppIdentity resets package state for isolated tests.
func resetAppIdentity() {
	configMu.Lock()
	defer configMu.Unlock()
	appIdentity = nil
	appConfig = nil
}

func TestNilIdentity(t *testing.T) {
	resetAppIdentity()
	defer func() {
		isolateConfigFiles(t)
		_, _ = Load(context.Background())
	}()

	assert.Empty(t, getEnvSpecs())
	assert.Empty(t, getUserConfigPaths())
	assert.Nil(t, GetConfig())
}

func TestFlatten(t *testing.T) {
	got := flatten("", map[string]any{
		"server": map[string]any{"port": 1, "tls": map[string]any{"enabled": true}},
		"workers": 2,
	})

	assert.Equal(t, map[string]any{
		"server.port":        1,
		"server.tls.enabled": true,
		"workers":            2,
	}, got)
}
