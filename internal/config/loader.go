package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Identity names the binary, its env prefix and its config directory.
type Identity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

// DefaultIdentity is the identity of the renderstack binary.
var DefaultIdentity = Identity{
	BinaryName: "renderstack",
	EnvPrefix:  "RENDERSTACK",
	ConfigName: "renderstack",
}

// EnvSpec maps one environment variable to a config key path.
type EnvSpec struct {
	Name string
	Path string
}

var (
	configMu    sync.RWMutex
	appIdentity *Identity
	appConfig   *Config
)

// envBindings lists the short environment names (without prefix) and the
// config keys they set. Anything not listed still resolves through
// AutomaticEnv as PREFIX_SECTION_KEY.
var envBindings = []struct {
	suffix string
	path   string
}{
	{"HOST", "server.host"},
	{"PORT", "server.port"},
	{"READ_TIMEOUT", "server.read_timeout"},
	{"WRITE_TIMEOUT", "server.write_timeout"},
	{"IDLE_TIMEOUT", "server.idle_timeout"},
	{"SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
	{"LOG_LEVEL", "logging.level"},
	{"LOG_PROFILE", "logging.profile"},
	{"HEALTH_ENABLED", "health.enabled"},
	{"FUNCTION_NAME", "render.function_name"},
	{"BUCKET_NAME", "render.bucket_name"},
	{"SITE_URL", "render.site_url"},
	{"REGION", "render.region"},
	{"COMPOSITION", "render.composition"},
	{"CODEC", "render.codec"},
	{"POLL_INTERVAL", "render.poll_interval"},
	{"MAX_WAIT", "render.max_wait"},
	{"SUBMIT_RATE_PER_MINUTE", "render.submit_rate_per_minute"},
	{"AWS_PROFILE", "aws.profile"},
	{"AWS_ENDPOINT", "aws.endpoint"},
}

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	// The wait endpoint holds a request for up to render.max_wait.
	v.SetDefault("server.write_timeout", "11m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("health.enabled", true)

	v.SetDefault("render.function_name", "")
	v.SetDefault("render.bucket_name", "")
	v.SetDefault("render.site_url", "")
	v.SetDefault("render.region", "")
	v.SetDefault("render.composition", "MyComp")
	v.SetDefault("render.codec", "h264")
	v.SetDefault("render.poll_interval", "3s")
	v.SetDefault("render.max_wait", "10m")
	v.SetDefault("render.duration_in_frames", 180)
	v.SetDefault("render.max_lambdas", 4)
	v.SetDefault("render.submit_rate_per_minute", 30)

	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.endpoint", "")
}

// Load builds the configuration and stores it for GetConfig.
//
// Overrides are nested maps keyed like the config file ("server" -> "port").
// Later override maps win over earlier ones.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.Lock()
	if appIdentity == nil {
		id := DefaultIdentity
		appIdentity = &id
	}
	identity := *appIdentity
	configMu.Unlock()

	v := viper.New()
	SetDefaults(v)

	v.SetConfigType("yaml")
	if path := os.Getenv(identity.EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(identity.ConfigName)
		for _, p := range getUserConfigPaths() {
			v.AddConfigPath(p)
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(identity.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv resolves sectioned names (RENDERSTACK_RENDER_BUCKET_NAME,
	// as written by deploy --env-file). Short names are applied on top so
	// they win over the sectioned form.
	for _, spec := range getEnvSpecs() {
		if val, ok := os.LookupEnv(spec.Name); ok && val != "" {
			v.Set(spec.Path, val)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Logging.Profile = normalizeProfile(cfg.Logging.Profile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// getEnvSpecs returns the explicit env bindings for the current identity.
func getEnvSpecs() []EnvSpec {
	configMu.RLock()
	id := appIdentity
	configMu.RUnlock()
	if id == nil {
		return []EnvSpec{}
	}

	specs := make([]EnvSpec, 0, len(envBindings))
	for _, b := range envBindings {
		specs = append(specs, EnvSpec{Name: id.EnvPrefix + "_" + b.suffix, Path: b.path})
	}
	return specs
}

// getUserConfigPaths returns directories searched for the config file.
func getUserConfigPaths() []string {
	configMu.RLock()
	id := appIdentity
	configMu.RUnlock()
	if id == nil {
		return []string{}
	}

	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, id.ConfigName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+id.ConfigName))
	}
	return paths
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := m[k].(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = m[k]
	}
	return out
}
