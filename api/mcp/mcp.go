// Package mcp provides an MCP (Model Context Protocol) server for the swarm
// hub. Every request is authenticated with the agent's API key and served
// by a stateless tool server bound to that agent.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/swarm/pkg/auth"
	"github.com/papercomputeco/swarm/pkg/hub"
	"github.com/papercomputeco/swarm/pkg/utils"
)

type principalKey struct{}

type Config struct {
	// Hub serves every tool call.
	Hub *hub.Hub

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config  Config
	handler http.Handler
}

// NewServer creates a new MCP server exposing the hub's agent operations.
func NewServer(c Config) (*Server, error) {
	if c.Hub == nil {
		return nil, errors.New("hub is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{config: c}

	// Create a streamable HTTP net/http handler for stateless operations.
	// The principal was resolved by Handler and travels on the request.
	streamable := mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			p, _ := r.Context().Value(principalKey{}).(auth.Principal)
			return s.toolServer(p)
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	s.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		p, err := c.Hub.AuthenticateAgent(r.Context(), key)
		if err != nil {
			status := http.StatusUnauthorized
			if !errors.Is(err, auth.ErrUnauthenticated) {
				c.Logger.Error("mcp authentication failed", "error", err)
				status = http.StatusInternalServerError
			}
			writeError(w, status, err)
			return
		}
		streamable.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// toolServer builds the tool set bound to one agent.
func (s *Server) toolServer(p auth.Principal) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "swarm",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	t := &tools{hub: s.config.Hub, principal: p, logger: s.config.Logger}

	mcp.AddTool(server, &mcp.Tool{Name: readProfileToolName, Description: readProfileDescription}, t.readProfile)
	mcp.AddTool(server, &mcp.Tool{Name: updateProfileToolName, Description: updateProfileDescription}, t.updateProfile)
	mcp.AddTool(server, &mcp.Tool{Name: observeToolName, Description: observeDescription}, t.observe)
	mcp.AddTool(server, &mcp.Tool{Name: searchMemoryToolName, Description: searchMemoryDescription}, t.searchMemory)
	mcp.AddTool(server, &mcp.Tool{Name: writeMemoryToolName, Description: writeMemoryDescription}, t.writeMemory)
	mcp.AddTool(server, &mcp.Tool{Name: readPersonaToolName, Description: readPersonaDescription}, t.readPersona)
	mcp.AddTool(server, &mcp.Tool{Name: reflectToolName, Description: reflectDescription}, t.reflect)

	return server
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// jsonResult renders v as the text content of a successful tool call.
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Errorf("serializing result: %w", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}, nil, nil
}

// errorResult reports a failed tool call to the model instead of failing the
// protocol request.
func errorResult(err error) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: err.Error()},
		},
	}, nil, nil
}
