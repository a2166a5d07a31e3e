// Package manifest provides loading and validation of renderstack stack
// manifests.
//
// A stack manifest is a YAML or JSON file describing one render stack: its
// name and region, the site bundle to upload and the render function to
// deploy. Manifests are validated against an embedded JSON Schema before use;
// unknown properties are rejected.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	name: demo
//	region: eu-central-1
//	force_destroy: true
//	site:
//	  path: ./remotion/build
//	  bundle_command: npx remotion bundle --out-dir ./remotion/build
//	function:
//	  archive: ./dist/render-arm64.zip
//	  memory_size_mb: 2048
//	  timeout_seconds: 120
package manifest

import (
	"path/filepath"

	"github.com/3leaps/renderstack/pkg/provision"
)

// Version is the only supported manifest version.
const Version = "1.0"

// Manifest represents a validated stack manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	provision.Config `yaml:",inline"`
}

// StackConfig returns the provisioning config with relative paths resolved
// against baseDir, normally the manifest's directory.
func (m *Manifest) StackConfig(baseDir string) provision.Config {
	cfg := m.Config
	cfg.Site.Path = resolve(baseDir, cfg.Site.Path)
	cfg.Function.Archive = resolve(baseDir, cfg.Function.Archive)
	return cfg.WithDefaults()
}

func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}
