package provision

import (
	"fmt"
	"regexp"
	"strings"
)

// Function defaults.
const (
	DefaultMemorySizeInMB       = 2048
	DefaultTimeoutInSeconds     = 120
	DefaultEphemeralStorageInMB = 2048
	DefaultArchitecture         = "arm64"
	DefaultRuntime              = "nodejs18.x"
	DefaultHandler              = "index.handler"
)

// Config describes one render stack.
type Config struct {
	// Name prefixes every resource name. Lowercase letters, digits and dashes.
	Name   string `json:"name" yaml:"name"`
	Region string `json:"region" yaml:"region"`

	// BucketName overrides the derived bucket name.
	BucketName string `json:"bucket_name,omitempty" yaml:"bucket_name,omitempty"`

	// ForceDestroy allows destroy to empty and delete a non-empty bucket.
	ForceDestroy bool `json:"force_destroy,omitempty" yaml:"force_destroy,omitempty"`

	Site     SiteConfig     `json:"site" yaml:"site"`
	Function FunctionConfig `json:"function" yaml:"function"`

	// Tags are applied to every resource that supports them.
	Tags map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// SiteConfig locates the static bundle the renderer serves.
type SiteConfig struct {
	// Path is the bundle directory uploaded after BundleCommand runs.
	Path          string   `json:"path" yaml:"path"`
	BundleCommand string   `json:"bundle_command,omitempty" yaml:"bundle_command,omitempty"`
	Include       []string `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude       []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// FunctionConfig holds the render function deployment parameters.
type FunctionConfig struct {
	MemorySizeInMB       int32  `json:"memory_size_mb,omitempty" yaml:"memory_size_mb,omitempty"`
	TimeoutInSeconds     int32  `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	EphemeralStorageInMB int32  `json:"ephemeral_storage_mb,omitempty" yaml:"ephemeral_storage_mb,omitempty"`
	Architecture         string `json:"architecture,omitempty" yaml:"architecture,omitempty"`
	Runtime              string `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Handler              string `json:"handler,omitempty" yaml:"handler,omitempty"`

	// Archive is the packaged function code (zip).
	Archive string `json:"archive" yaml:"archive"`

	// Layers replaces the hosted layer table lookup when set.
	Layers []string `json:"layers,omitempty" yaml:"layers,omitempty"`
}

// WithDefaults returns a copy of c with unset function parameters filled in.
func (c Config) WithDefaults() Config {
	f := &c.Function
	if f.MemorySizeInMB == 0 {
		f.MemorySizeInMB = DefaultMemorySizeInMB
	}
	if f.TimeoutInSeconds == 0 {
		f.TimeoutInSeconds = DefaultTimeoutInSeconds
	}
	if f.EphemeralStorageInMB == 0 {
		f.EphemeralStorageInMB = DefaultEphemeralStorageInMB
	}
	if f.Architecture == "" {
		f.Architecture = DefaultArchitecture
	}
	if f.Runtime == "" {
		f.Runtime = DefaultRuntime
	}
	if f.Handler == "" {
		f.Handler = DefaultHandler
	}
	c.Name = strings.ToLower(strings.TrimSpace(c.Name))
	c.Region = strings.TrimSpace(c.Region)
	return c
}

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,30}[a-z0-9]$`)

// Validate checks c after defaults have been applied.
func (c Config) Validate() error {
	if !namePattern.MatchString(c.Name) {
		return &ConfigError{Field: "name", Message: "must be 2-32 lowercase letters, digits or dashes"}
	}
	if c.Region == "" {
		return &ConfigError{Field: "region", Message: "is required"}
	}
	if c.BucketName != "" && !bucketPattern.MatchString(c.BucketName) {
		return &ConfigError{Field: "bucket_name", Message: "is not a valid bucket name"}
	}
	if c.Site.Path == "" {
		return &ConfigError{Field: "site.path", Message: "is required"}
	}

	f := c.Function
	if f.Archive == "" {
		return &ConfigError{Field: "function.archive", Message: "is required"}
	}
	if f.MemorySizeInMB < 128 || f.MemorySizeInMB > 10240 {
		return &ConfigError{Field: "function.memory_size_mb", Message: fmt.Sprintf("%d outside 128-10240", f.MemorySizeInMB)}
	}
	if f.TimeoutInSeconds < 1 || f.TimeoutInSeconds > 900 {
		return &ConfigError{Field: "function.timeout_seconds", Message: fmt.Sprintf("%d outside 1-900", f.TimeoutInSeconds)}
	}
	if f.EphemeralStorageInMB < 512 || f.EphemeralStorageInMB > 10240 {
		return &ConfigError{Field: "function.ephemeral_storage_mb", Message: fmt.Sprintf("%d outside 512-10240", f.EphemeralStorageInMB)}
	}
	if f.Architecture != "arm64" && f.Architecture != "x86_64" {
		return &ConfigError{Field: "function.architecture", Message: "must be arm64 or x86_64"}
	}
	return nil
}

// ConfigError represents a stack configuration error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "stack config: " + e.Field + ": " + e.Message
}

var bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Names holds the derived physical resource names.
type Names struct {
	Bucket   string `json:"bucket"`
	Function string `json:"function"`
	Role     string `json:"role"`
	Policy   string `json:"policy"`
	Site     string `json:"site"`
}

// NamesFor derives physical names from a defaulted config.
func NamesFor(c Config) Names {
	bucket := c.BucketName
	if bucket == "" {
		bucket = truncate(c.Name+"-renders-"+c.Region, 63)
	}
	return Names{
		Bucket:   bucket,
		Function: truncate(c.Name+"-render", 64),
		Role:     truncate(c.Name+"-render-role", 64),
		Policy:   truncate(c.Name+"-render-policy", 128),
		Site:     c.Name,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimRight(s[:n], "-.")
}
