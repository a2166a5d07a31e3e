// Package webassets embeds the demo page served by the relay.
package webassets

import "embed"

// FS holds index.html and app.js.
//
//go:embed index.html app.js
var FS embed.FS
