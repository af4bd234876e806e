package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/swarm/pkg/hub"
)

// Server is the HTTP API server of the hub.
type Server struct {
	config Config
	hub    *hub.Hub
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server over h. The hub is injected so the
// same instance can back the MCP endpoint and the CLI.
func NewServer(config Config, h *hub.Hub, logger *slog.Logger) (*Server, error) {
	if h == nil {
		return nil, errors.New("hub is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{
		config: config,
		hub:    h,
		logger: logger,
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleFiberError,
	})

	s.app.Get("/api/health", s.handleHealth)
	s.app.Post("/api/v1/auth", s.handleAuth)

	v1 := s.app.Group("/api/v1")
	v1.Get("/profile", s.requireAgent, s.handleGetProfile)
	v1.Patch("/profile", s.requireAgent, s.handlePatchProfile)
	v1.Delete("/profile", s.requireAgent, s.handleDeleteProfile)
	v1.Post("/profile/observe", s.requireAgent, s.handleObserve)
	v1.Get("/memory", s.requireAgent, s.handleSearchMemory)
	v1.Post("/memory", s.requireAgent, s.handleWriteMemory)
	v1.Delete("/memory/:id", s.requireAgent, s.handleDeleteMemory)
	v1.Post("/reflect", s.requireAgent, s.handleReflect)
	v1.Get("/persona/me", s.requireAgent, s.handlePersonaMe)
	v1.Get("/persona/:agentId", s.requireAgent, s.handlePersona)

	admin := v1.Group("/admin", s.requireAdmin)
	admin.Get("/agents", s.handleListAgents)
	admin.Post("/agents", s.handleCreateAgent)
	admin.Patch("/agents", s.handleUpdateAgent)
	admin.Delete("/agents/:id", s.handleDeleteAgent)
	admin.Get("/profile", s.handleAdminProfile)
	admin.Put("/profile", s.handleAdminPutProfile)
	admin.Get("/history", s.handleHistory)
	admin.Get("/audit", s.handleAudit)
	admin.Get("/export", s.handleExport)
	admin.Get("/settings", s.handleSettings)
	admin.Post("/cleanup", s.handleCleanup)

	if config.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(config.Metrics))
	}
	if config.MCP != nil {
		s.app.All("/mcp", adaptor.HTTPHandler(config.MCP))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
