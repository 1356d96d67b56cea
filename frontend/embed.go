// Package frontend holds the desktop UI assets.
package frontend

import "embed"

// Assets is served by the Wails asset server.
//
//go:embed index.html app.js style.css
var Assets embed.FS
