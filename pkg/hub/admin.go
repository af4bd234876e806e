package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/swarm/pkg/agents"
	"github.com/papercomputeco/swarm/pkg/audit"
	"github.com/papercomputeco/swarm/pkg/auth"
	"github.com/papercomputeco/swarm/pkg/memory"
	"github.com/papercomputeco/swarm/pkg/profile"
	"github.com/papercomputeco/swarm/pkg/storage"
)

// Persona is the public view of an agent and its persona document.
type Persona struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Persona     json.RawMessage `json:"persona"`
	Permissions []string        `json:"permissions,omitempty"`
}

// AdminEntry is one entry of an admin profile write.
type AdminEntry struct {
	Layer string          `json:"layer"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// AgentUpdate changes an agent's persona and/or name. Nil fields are left
// untouched; a JSON null persona clears it.
type AgentUpdate struct {
	ID      string
	Persona *json.RawMessage
	Name    *string
}

// Export is a user's full data set. Agents carry no keys and memories no
// embeddings.
type Export struct {
	ExportedAt time.Time       `json:"exported_at"`
	Profiles   []profile.Row   `json:"profiles"`
	Agents     []agents.Agent  `json:"agents"`
	Memories   []memory.Memory `json:"memories"`
}

// Settings is the effective runtime configuration reported to admins.
type Settings struct {
	Embedding  EmbeddingSettings  `json:"embedding"`
	Reflection ReflectionSettings `json:"reflection"`
	Listen     string             `json:"listen"`
}

// EmbeddingSettings describes the embedding provider.
type EmbeddingSettings struct {
	Provider string `json:"provider"`
	Target   string `json:"target"`
	Model    string `json:"model"`
	Enabled  bool   `json:"enabled"`
}

// ReflectionSettings describes the LLM extraction provider.
type ReflectionSettings struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Enabled  bool   `json:"enabled"`
}

func requireAdmin(p auth.Principal) error {
	if !p.Admin {
		return fmt.Errorf("%w: admin credential required", auth.ErrPermissionDenied)
	}
	return nil
}

// ReadPersona returns the calling agent's own persona.
func (h *Hub) ReadPersona(ctx context.Context, p auth.Principal) (Persona, error) {
	if p.AgentID == "" {
		return Persona{}, storage.NotFoundError{Kind: "agent"}
	}
	a, err := h.agents.Get(ctx, p.UserID, p.AgentID)
	if err != nil {
		return Persona{}, err
	}
	return Persona{ID: a.ID, Name: a.Name, Persona: a.Persona, Permissions: a.Permissions}, nil
}

// ReadAgentPersona returns the persona of another agent of the caller's
// user.
func (h *Hub) ReadAgentPersona(ctx context.Context, p auth.Principal, agentID string) (Persona, error) {
	a, err := h.agents.Get(ctx, p.UserID, agentID)
	if err != nil {
		return Persona{}, err
	}
	return Persona{ID: a.ID, Name: a.Name, Persona: a.Persona}, nil
}

// ListAgents returns the agents of the admin's user.
func (h *Hub) ListAgents(ctx context.Context, p auth.Principal) ([]agents.Agent, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return h.agents.List(ctx, p.UserID)
}

// CreateAgent registers an agent. The returned key is never shown again.
func (h *Hub) CreateAgent(ctx context.Context, p auth.Principal, in agents.CreateInput) (_ agents.Created, err error) {
	defer h.observe("agent.create", time.Now(), &err)

	if err := requireAdmin(p); err != nil {
		return agents.Created{}, err
	}
	for _, perm := range in.Permissions {
		if perm = strings.TrimSpace(perm); perm != auth.PermRead && perm != auth.PermWrite {
			return agents.Created{}, fmt.Errorf("%w: unknown permission %q", ErrValidation, perm)
		}
	}
	return h.agents.Create(ctx, p.UserID, in)
}

// UpdateAgent applies u to an agent of the admin's user.
func (h *Hub) UpdateAgent(ctx context.Context, p auth.Principal, u AgentUpdate) (err error) {
	defer h.observe("agent.update", time.Now(), &err)

	if err := requireAdmin(p); err != nil {
		return err
	}
	if strings.TrimSpace(u.ID) == "" {
		return missing("agent id")
	}

	if u.Persona != nil {
		found, err := h.agents.SetPersona(ctx, p.UserID, u.ID, *u.Persona)
		if err != nil {
			return err
		}
		if !found {
			return storage.NotFoundError{Kind: "agent", ID: u.ID}
		}
	}
	if u.Name != nil {
		found, err := h.agents.SetName(ctx, p.UserID, u.ID, *u.Name)
		if err != nil {
			return err
		}
		if !found {
			return storage.NotFoundError{Kind: "agent", ID: u.ID}
		}
	}
	return nil
}

// DeleteAgent removes an agent of the admin's user and evicts its key from
// the credential cache, so the key stops working immediately.
func (h *Hub) DeleteAgent(ctx context.Context, p auth.Principal, id string) (err error) {
	defer h.observe("agent.delete", time.Now(), &err)

	if err := requireAdmin(p); err != nil {
		return err
	}
	a, err := h.agents.Delete(ctx, p.UserID, id)
	if err != nil {
		return err
	}
	h.resolver.Evict(a.APIKey())
	return nil
}

// ProfileRows returns every stored entry of the admin's user, expired ones
// included.
func (h *Hub) ProfileRows(ctx context.Context, p auth.Principal) ([]profile.Row, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return h.profiles.Rows(ctx, p.UserID)
}

// PutProfile writes entries through the direct path with source "admin".
func (h *Hub) PutProfile(ctx context.Context, p auth.Principal, entries []AdminEntry) (err error) {
	defer h.observe("profile.put", time.Now(), &err)

	if err := requireAdmin(p); err != nil {
		return err
	}
	if entries == nil {
		return missing("entries")
	}

	layers := []string{}
	byLayer := map[string][]profile.Write{}
	for i, e := range entries {
		if strings.TrimSpace(e.Layer) == "" || strings.TrimSpace(e.Key) == "" {
			return missing(fmt.Sprintf("entries[%d] layer or key", i))
		}
		value := e.Value
		if len(value) == 0 {
			value = json.RawMessage("null")
		}
		if _, ok := byLayer[e.Layer]; !ok {
			layers = append(layers, e.Layer)
		}
		byLayer[e.Layer] = append(byLayer[e.Layer], profile.Write{Key: e.Key, Value: value})
	}

	for _, layer := range layers {
		if err := h.profiles.Set(ctx, p.UserID, layer, byLayer[layer], profile.SourceAdmin); err != nil {
			return err
		}
	}

	return h.record(ctx, audit.Record{
		UserID:     p.UserID,
		Action:     "profile.update",
		TargetType: "profile",
		Detail:     fmt.Sprintf("%d entries", len(entries)),
	})
}

// History lists direct profile mutations newest first.
func (h *Hub) History(ctx context.Context, p auth.Principal, f profile.HistoryFilter) ([]profile.HistoryRecord, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return h.profiles.History(ctx, p.UserID, f)
}

// Audit lists audit records newest first.
func (h *Hub) Audit(ctx context.Context, p auth.Principal, f audit.Filter) ([]audit.Record, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return h.audit.List(ctx, p.UserID, f)
}

// Export returns the admin's user data set.
func (h *Hub) Export(ctx context.Context, p auth.Principal) (_ Export, err error) {
	defer h.observe("export", time.Now(), &err)

	if err := requireAdmin(p); err != nil {
		return Export{}, err
	}

	out := Export{ExportedAt: h.now().UTC()}
	if out.Profiles, err = h.profiles.Rows(ctx, p.UserID); err != nil {
		return Export{}, err
	}
	if out.Agents, err = h.agents.List(ctx, p.UserID); err != nil {
		return Export{}, err
	}
	if out.Memories, err = h.memories.All(ctx, p.UserID); err != nil {
		return Export{}, err
	}
	return out, nil
}

// Settings reports the effective runtime configuration.
func (h *Hub) Settings(p auth.Principal) (Settings, error) {
	if err := requireAdmin(p); err != nil {
		return Settings{}, err
	}
	return h.settings, nil
}

// Cleanup removes expired profile entries of every user and records the
// sweep in the admin's audit log.
func (h *Hub) Cleanup(ctx context.Context, p auth.Principal) (int64, error) {
	if err := requireAdmin(p); err != nil {
		return 0, err
	}

	removed, err := h.CleanupExpired(ctx, "")
	if err != nil {
		return 0, err
	}

	return removed, h.record(ctx, audit.Record{
		UserID:     p.UserID,
		Action:     "cleanup",
		TargetType: "profiles",
		Detail:     fmt.Sprintf("%d expired entries removed", removed),
	})
}
