package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/swarm/pkg/hub"
	"github.com/papercomputeco/swarm/pkg/memory"
	"github.com/papercomputeco/swarm/pkg/profile"
	"github.com/papercomputeco/swarm/pkg/reflection"
)

type profilePatchRequest struct {
	Layer   string                     `json:"layer"`
	Entries map[string]json.RawMessage `json:"entries"`
}

type observation struct {
	Layer      string          `json:"layer"`
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	Confidence *float64        `json:"confidence"`
	Tags       hub.Tags        `json:"tags"`
	ExpiresAt  *time.Time      `json:"expiresAt"`
}

type observeRequest struct {
	Observations []observation `json:"observations"`
}

type observeResponse struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

type deleteResponse struct {
	OK      bool `json:"ok"`
	Deleted bool `json:"deleted"`
}

type memoryRequest struct {
	Key        string   `json:"key"`
	Content    string   `json:"content"`
	Tags       hub.Tags `json:"tags"`
	Type       string   `json:"type"`
	Importance *float64 `json:"importance"`
	Entities   hub.Tags `json:"entities"`
}

type memoryResponse struct {
	OK bool  `json:"ok"`
	ID int64 `json:"id"`
}

type reflectRequest struct {
	Since *time.Time `json:"since"`
	Limit int        `json:"limit"`
}

type authRequest struct {
	Action   string `json:"action"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// handleHealth is the unauthenticated liveness probe.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(okResponse{OK: true})
}

// handleGetProfile returns the live profile grouped by layer.
func (s *Server) handleGetProfile(c *fiber.Ctx) error {
	p, err := s.hub.ReadProfile(c.UserContext(), principal(c), profile.Filter{
		Layer: c.Query("layer"),
		Tag:   c.Query("tag"),
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p)
}

// handlePatchProfile writes entries into one layer unconditionally.
func (s *Server) handlePatchProfile(c *fiber.Ctx) error {
	var req profilePatchRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, err)
	}

	entries, err := hub.DecodeEntries(req.Entries)
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.hub.WriteProfile(c.UserContext(), principal(c), req.Layer, entries); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(okResponse{OK: true})
}

func (s *Server) handleDeleteProfile(c *fiber.Ctx) error {
	removed, err := s.hub.DeleteProfileEntry(c.UserContext(), principal(c), c.Query("layer"), c.Query("key"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(deleteResponse{OK: true, Deleted: removed})
}

// handleObserve submits a batch of observations through the confidence gate.
func (s *Server) handleObserve(c *fiber.Ctx) error {
	var req observeRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, err)
	}

	var batch []profile.Observation
	if req.Observations != nil {
		batch = make([]profile.Observation, 0, len(req.Observations))
	}
	for _, o := range req.Observations {
		batch = append(batch, profile.Observation{
			Layer:      o.Layer,
			Key:        o.Key,
			Value:      o.Value,
			Confidence: o.Confidence,
			Tags:       o.Tags,
			ExpiresAt:  o.ExpiresAt,
		})
	}

	count, err := s.hub.Observe(c.UserContext(), principal(c), batch)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(observeResponse{OK: true, Count: count})
}

// handleSearchMemory searches the memory log. Without q the filters apply.
func (s *Server) handleSearchMemory(c *fiber.Ctx) error {
	q := memory.Query{
		Text:   c.Query("q"),
		Mode:   memory.Mode(c.Query("mode")),
		Tag:    c.Query("tag"),
		Type:   c.Query("type"),
		Entity: c.Query("entity"),
		Limit:  c.QueryInt("limit", 0),
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return s.fail(c, fmt.Errorf("%w: since must be an RFC 3339 timestamp", hub.ErrValidation))
		}
		q.Since = &t
	}

	found, err := s.hub.SearchMemory(c.UserContext(), principal(c), q)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(found)
}

func (s *Server) handleWriteMemory(c *fiber.Ctx) error {
	var req memoryRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, err)
	}

	m, err := s.hub.WriteMemory(c.UserContext(), principal(c), memory.Input{
		Key:        req.Key,
		Content:    req.Content,
		Tags:       req.Tags,
		Entities:   req.Entities,
		Type:       req.Type,
		Importance: req.Importance,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(memoryResponse{OK: true, ID: m.ID})
}

func (s *Server) handleDeleteMemory(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return s.fail(c, fmt.Errorf("%w: memory id must be an integer", hub.ErrValidation))
	}

	removed, err := s.hub.DeleteMemory(c.UserContext(), principal(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(deleteResponse{OK: true, Deleted: removed})
}

// handleReflect distills recent memories into profile updates. The body is
// optional.
func (s *Server) handleReflect(c *fiber.Ctx) error {
	var req reflectRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, err)
	}

	res, err := s.hub.Reflect(c.UserContext(), principal(c), reflection.Options{
		Since: req.Since,
		Limit: req.Limit,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}

func (s *Server) handlePersonaMe(c *fiber.Ctx) error {
	p, err := s.hub.ReadPersona(c.UserContext(), principal(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p)
}

func (s *Server) handlePersona(c *fiber.Ctx) error {
	p, err := s.hub.ReadAgentPersona(c.UserContext(), principal(c), c.Params("agentId"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p)
}

// handleAuth registers or signs in an account depending on the action.
func (s *Server) handleAuth(c *fiber.Ctx) error {
	var req authRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, err)
	}

	ctx := c.UserContext()
	switch req.Action {
	case "register":
		session, err := s.hub.Register(ctx, req.Email, req.Password, req.Name)
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(session)
	case "login":
		session, err := s.hub.Login(ctx, req.Email, req.Password)
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(session)
	default:
		return s.fail(c, fmt.Errorf("%w: invalid action %q", hub.ErrValidation, req.Action))
	}
}
