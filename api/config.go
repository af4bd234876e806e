// Package api provides the HTTP API of the swarm hub: the agent routes, the
// admin routes, Prometheus metrics and the MCP endpoint.
package api

import "net/http"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":3777")
	ListenAddr string

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	// MCP is mounted at /mcp when set.
	MCP http.Handler
}
