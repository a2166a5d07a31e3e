// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so manifest validation works
// regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// StackManifestSchema is the embedded stack-manifest JSON schema.
//
//go:embed stack-manifest.schema.json
var StackManifestSchema []byte
