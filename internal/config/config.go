// Package config loads renderstack configuration.
//
// Precedence (highest first): runtime overrides, RENDERSTACK_* environment
// variables, config file, built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Health  HealthConfig  `mapstructure:"health"`
	Render  RenderConfig  `mapstructure:"render"`
	AWS     AWSConfig     `mapstructure:"aws"`
}

// ServerConfig configures the relay HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures log level and output profile.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// HealthConfig toggles the health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RenderConfig carries the values produced by provisioning plus poll tuning.
type RenderConfig struct {
	FunctionName string `mapstructure:"function_name"`
	BucketName   string `mapstructure:"bucket_name"`
	SiteURL      string `mapstructure:"site_url"`
	Region       string `mapstructure:"region"`

	Composition string `mapstructure:"composition"`
	Codec       string `mapstructure:"codec"`

	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`

	DurationInFrames int `mapstructure:"duration_in_frames"`
	MaxLambdas       int `mapstructure:"max_lambdas"`

	// SubmitRatePerMinute limits render submissions per client IP. Zero disables.
	SubmitRatePerMinute int `mapstructure:"submit_rate_per_minute"`
}

// AWSConfig selects credentials and endpoint overrides.
type AWSConfig struct {
	Profile  string `mapstructure:"profile"`
	Endpoint string `mapstructure:"endpoint"`
}

// FramesPerLambda splits the composition across MaxLambdas invocations.
// Returns zero when either value is unset, leaving the choice to the renderer.
func (r RenderConfig) FramesPerLambda() int {
	if r.DurationInFrames <= 0 || r.MaxLambdas <= 0 {
		return 0
	}
	n := r.DurationInFrames / r.MaxLambdas
	if n < 1 {
		n = 1
	}
	return n
}

// Validate checks invariants that defaults alone cannot guarantee.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: fmt.Sprintf("must be between 0 and 65535, got %d", c.Server.Port)}
	}
	if c.Render.PollInterval <= 0 {
		return &ConfigError{Field: "render.poll_interval", Message: "must be positive"}
	}
	if c.Render.MaxWait > 0 && c.Render.MaxWait < c.Render.PollInterval {
		return &ConfigError{Field: "render.max_wait", Message: "must be zero or at least render.poll_interval"}
	}
	if c.Render.MaxWait > 0 && c.Server.WriteTimeout > 0 && c.Render.MaxWait >= c.Server.WriteTimeout {
		return &ConfigError{Field: "render.max_wait", Message: fmt.Sprintf("must be below server.write_timeout (%s) so the timeout response can be written", c.Server.WriteTimeout)}
	}
	if c.Render.SubmitRatePerMinute < 0 {
		return &ConfigError{Field: "render.submit_rate_per_minute", Message: "must not be negative"}
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
	return "config: " + e.Field + ": " + e.Message
}

func normalizeProfile(p string) string {
	p = strings.ToUpper(strings.TrimSpace(p))
	if p == "" {
		return "STRUCTURED"
	}
	return p
}
