package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/swarm/pkg/auth"
	"github.com/papercomputeco/swarm/pkg/hub"
	"github.com/papercomputeco/swarm/pkg/memory"
	"github.com/papercomputeco/swarm/pkg/profile"
	"github.com/papercomputeco/swarm/pkg/reflection"
)

var (
	readProfileToolName    = "read_profile"
	readProfileDescription = "Read the shared user profile. Entries are grouped by layer (identity, preferences, context) and carry a value, a confidence and the agent that wrote them. Expired entries are never returned."

	updateProfileToolName    = "update_profile"
	updateProfileDescription = "Overwrite entries of one profile layer. Use this for facts the user stated explicitly; prefer observe for inferred facts."

	observeToolName    = "observe"
	observeDescription = "Submit observations about the user. An observation only replaces a stored value when its confidence is higher. Context layer observations expire after 24 hours unless an expiry is given."

	searchMemoryToolName    = "search_memory"
	searchMemoryDescription = "Search the shared memory log. With a query the log is searched by text (mode \"semantic\" ranks by meaning); without one it is filtered by tag, type and entity, newest first."

	writeMemoryToolName    = "write_memory"
	writeMemoryDescription = "Append a memory to the shared log so other agents of the same user can recall it."

	readPersonaToolName    = "read_persona"
	readPersonaDescription = "Read your own persona, or the persona of another agent of the same user when agent_id is given."

	reflectToolName    = "reflect"
	reflectDescription = "Distill recent memories into profile updates."
)

// ReadProfileInput represents the input arguments for the read_profile tool.
type ReadProfileInput struct {
	Layer string `json:"layer,omitempty" jsonschema:"only return this layer"`
	Tag   string `json:"tag,omitempty" jsonschema:"only return entries whose tags contain this text"`
}

// UpdateProfileInput represents the input arguments for the update_profile tool.
type UpdateProfileInput struct {
	Layer   string         `json:"layer" jsonschema:"the profile layer to write"`
	Entries map[string]any `json:"entries" jsonschema:"entries by key; a value may be an object with value, confidence, tags and expiresAt"`
}

// ObservationInput is one observation of the observe tool.
type ObservationInput struct {
	Layer      string   `json:"layer,omitempty" jsonschema:"the profile layer (default: context)"`
	Key        string   `json:"key" jsonschema:"the profile key"`
	Value      any      `json:"value" jsonschema:"the observed value"`
	Confidence *float64 `json:"confidence,omitempty" jsonschema:"confidence between 0 and 1 (default: 0.5)"`
	Tags       []string `json:"tags,omitempty" jsonschema:"tags for the entry"`
	ExpiresAt  string   `json:"expiresAt,omitempty" jsonschema:"RFC 3339 expiry time"`
}

// ObserveInput represents the input arguments for the observe tool.
type ObserveInput struct {
	Observations []ObservationInput `json:"observations" jsonschema:"the observations to submit"`
}

// SearchMemoryInput represents the input arguments for the search_memory tool.
type SearchMemoryInput struct {
	Query  string `json:"query,omitempty" jsonschema:"the search text"`
	Mode   string `json:"mode,omitempty" jsonschema:"empty for full text search or semantic"`
	Tag    string `json:"tag,omitempty" jsonschema:"filter by tag when no query is given"`
	Type   string `json:"type,omitempty" jsonschema:"filter by memory type when no query is given"`
	Entity string `json:"entity,omitempty" jsonschema:"filter by entity when no query is given"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results (default: 50)"`
}

// WriteMemoryInput represents the input arguments for the write_memory tool.
type WriteMemoryInput struct {
	Key        string   `json:"key,omitempty" jsonschema:"an optional stable key"`
	Content    string   `json:"content" jsonschema:"the memory text"`
	Tags       []string `json:"tags,omitempty" jsonschema:"tags for the memory"`
	Type       string   `json:"type,omitempty" jsonschema:"observation, fact, preference or experience (default: observation)"`
	Importance *float64 `json:"importance,omitempty" jsonschema:"importance between 0 and 1 (default: 0.5)"`
	Entities   []string `json:"entities,omitempty" jsonschema:"people, projects or things the memory is about"`
}

// ReadPersonaInput represents the input arguments for the read_persona tool.
type ReadPersonaInput struct {
	AgentID string `json:"agent_id,omitempty" jsonschema:"another agent of the same user; empty reads your own persona"`
}

// ReflectInput represents the input arguments for the reflect tool.
type ReflectInput struct {
	Since string `json:"since,omitempty" jsonschema:"RFC 3339 time of the oldest memory to read (default: 7 days ago)"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of memories to read (default: 100)"`
}

// tools serves the tool calls of one agent.
type tools struct {
	hub       *hub.Hub
	principal auth.Principal
	logger    *slog.Logger
}

func (t *tools) readProfile(ctx context.Context, _ *mcp.CallToolRequest, in ReadProfileInput) (*mcp.CallToolResult, any, error) {
	p, err := t.hub.ReadProfile(ctx, t.principal, profile.Filter{Layer: in.Layer, Tag: in.Tag})
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(p)
}

func (t *tools) updateProfile(ctx context.Context, _ *mcp.CallToolRequest, in UpdateProfileInput) (*mcp.CallToolResult, any, error) {
	var raw map[string]json.RawMessage
	if in.Entries != nil {
		raw = make(map[string]json.RawMessage, len(in.Entries))
		for k, v := range in.Entries {
			b, err := json.Marshal(v)
			if err != nil {
				return errorResult(fmt.Errorf("%w: entry %q: %w", hub.ErrValidation, k, err))
			}
			raw[k] = b
		}
	}

	entries, err := hub.DecodeEntries(raw)
	if err != nil {
		return errorResult(err)
	}
	if err := t.hub.WriteProfile(ctx, t.principal, in.Layer, entries); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{"ok": true, "count": len(entries)})
}

func (t *tools) observe(ctx context.Context, _ *mcp.CallToolRequest, in ObserveInput) (*mcp.CallToolResult, any, error) {
	var batch []profile.Observation
	if in.Observations != nil {
		batch = make([]profile.Observation, 0, len(in.Observations))
	}
	for _, o := range in.Observations {
		value, err := json.Marshal(o.Value)
		if err != nil {
			return errorResult(fmt.Errorf("%w: value of %q: %w", hub.ErrValidation, o.Key, err))
		}
		expiresAt, err := parseTime("expiresAt", o.ExpiresAt)
		if err != nil {
			return errorResult(err)
		}
		batch = append(batch, profile.Observation{
			Layer:      o.Layer,
			Key:        o.Key,
			Value:      value,
			Confidence: o.Confidence,
			Tags:       o.Tags,
			ExpiresAt:  expiresAt,
		})
	}

	count, err := t.hub.Observe(ctx, t.principal, batch)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{"ok": true, "count": count})
}

func (t *tools) searchMemory(ctx context.Context, _ *mcp.CallToolRequest, in SearchMemoryInput) (*mcp.CallToolResult, any, error) {
	t.logger.Debug("MCP memory search",
		"agent_id", t.principal.AgentID,
		"query", in.Query,
		"mode", in.Mode,
	)

	found, err := t.hub.SearchMemory(ctx, t.principal, memory.Query{
		Text:   in.Query,
		Mode:   memory.Mode(in.Mode),
		Tag:    in.Tag,
		Type:   in.Type,
		Entity: in.Entity,
		Limit:  in.Limit,
	})
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(found)
}

func (t *tools) writeMemory(ctx context.Context, _ *mcp.CallToolRequest, in WriteMemoryInput) (*mcp.CallToolResult, any, error) {
	m, err := t.hub.WriteMemory(ctx, t.principal, memory.Input{
		Key:        in.Key,
		Content:    in.Content,
		Tags:       in.Tags,
		Entities:   in.Entities,
		Type:       in.Type,
		Importance: in.Importance,
	})
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{"ok": true, "id": m.ID})
}

func (t *tools) readPersona(ctx context.Context, _ *mcp.CallToolRequest, in ReadPersonaInput) (*mcp.CallToolResult, any, error) {
	var (
		p   hub.Persona
		err error
	)
	if in.AgentID == "" || in.AgentID == t.principal.AgentID {
		p, err = t.hub.ReadPersona(ctx, t.principal)
	} else {
		p, err = t.hub.ReadAgentPersona(ctx, t.principal, in.AgentID)
	}
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(p)
}

func (t *tools) reflect(ctx context.Context, _ *mcp.CallToolRequest, in ReflectInput) (*mcp.CallToolResult, any, error) {
	since, err := parseTime("since", in.Since)
	if err != nil {
		return errorResult(err)
	}

	res, err := t.hub.Reflect(ctx, t.principal, reflection.Options{Since: since, Limit: in.Limit})
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(res)
}

func parseTime(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", hub.ErrValidation, field)
	}
	return &t, nil
}
