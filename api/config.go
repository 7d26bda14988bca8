// Package api provides an HTTP API server the chat UI drives to save,
// restore, and inspect conversation dumps.
package api

import "net/http"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8091")
	ListenAddr string

	// MCPHandler, when set, is mounted at /mcp for MCP clients.
	MCPHandler http.Handler

	// ModelsDir is the base directory captured runtime-context paths are
	// made relative to, matching what the launcher resolves against.
	ModelsDir string
}
