package api

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/swarm/pkg/agents"
	"github.com/papercomputeco/swarm/pkg/audit"
	"github.com/papercomputeco/swarm/pkg/hub"
	"github.com/papercomputeco/swarm/pkg/profile"
)

type createAgentRequest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions hub.Tags `json:"permissions"`
}

type adminProfileRequest struct {
	Entries []hub.AdminEntry `json:"entries"`
}

type cleanupResponse struct {
	OK      bool  `json:"ok"`
	Removed int64 `json:"removed"`
}

func (s *Server) handleListAgents(c *fiber.Ctx) error {
	list, err := s.hub.ListAgents(c.UserContext(), principal(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(list)
}

// handleCreateAgent returns the new agent's API key. It is the only response
// that ever carries the key.
func (s *Server) handleCreateAgent(c *fiber.Ctx) error {
	var req createAgentRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, err)
	}

	created, err := s.hub.CreateAgent(c.UserContext(), principal(c), agents.CreateInput{
		ID:          req.ID,
		Name:        req.Name,
		Permissions: req.Permissions,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(created)
}

// handleUpdateAgent changes the persona and/or name. A field absent from the
// body is left alone; a null persona clears it.
func (s *Server) handleUpdateAgent(c *fiber.Ctx) error {
	var fields map[string]json.RawMessage
	if err := decode(c, &fields); err != nil {
		return s.fail(c, err)
	}

	var u hub.AgentUpdate
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &u.ID); err != nil {
			return s.fail(c, fmt.Errorf("%w: id must be a string", hub.ErrValidation))
		}
	}
	if raw, ok := fields["persona"]; ok {
		u.Persona = &raw
	}
	if raw, ok := fields["name"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return s.fail(c, fmt.Errorf("%w: name must be a string", hub.ErrValidation))
		}
		u.Name = &name
	}

	if err := s.hub.UpdateAgent(c.UserContext(), principal(c), u); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(okResponse{OK: true})
}

func (s *Server) handleDeleteAgent(c *fiber.Ctx) error {
	if err := s.hub.DeleteAgent(c.UserContext(), principal(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(okResponse{OK: true})
}

// handleAdminProfile returns the raw profile rows, expired ones included.
func (s *Server) handleAdminProfile(c *fiber.Ctx) error {
	rows, err := s.hub.ProfileRows(c.UserContext(), principal(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(rows)
}

func (s *Server) handleAdminPutProfile(c *fiber.Ctx) error {
	var req adminProfileRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, err)
	}
	if err := s.hub.PutProfile(c.UserContext(), principal(c), req.Entries); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(okResponse{OK: true})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	records, err := s.hub.History(c.UserContext(), principal(c), profile.HistoryFilter{
		Layer: c.Query("layer"),
		Key:   c.Query("key"),
		Limit: c.QueryInt("limit", 0),
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(records)
}

func (s *Server) handleAudit(c *fiber.Ctx) error {
	records, err := s.hub.Audit(c.UserContext(), principal(c), audit.Filter{
		Action:  c.Query("action"),
		AgentID: c.Query("agent"),
		Limit:   c.QueryInt("limit", 0),
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(records)
}

func (s *Server) handleExport(c *fiber.Ctx) error {
	export, err := s.hub.Export(c.UserContext(), principal(c))
	if err != nil {
		return s.fail(c, err)
	}
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="swarm-export.json"`)
	return c.JSON(export)
}

func (s *Server) handleSettings(c *fiber.Ctx) error {
	settings, err := s.hub.Settings(principal(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(settings)
}

// handleCleanup sweeps expired profile entries of every user.
func (s *Server) handleCleanup(c *fiber.Ctx) error {
	removed, err := s.hub.Cleanup(c.UserContext(), principal(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(cleanupResponse{OK: true, Removed: removed})
}
