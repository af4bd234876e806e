// Package agents is the registry of agent credentials. Every agent belongs
// to one user and carries an immutable API key issued at creation.
package agents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/swarm/pkg/auth"
	"github.com/papercomputeco/swarm/pkg/storage"
	"github.com/papercomputeco/swarm/pkg/utils"
)

// KeyPrefix starts every issued API key.
const KeyPrefix = "swarm_"

// ErrExists is returned when an agent id is already taken.
var ErrExists = errors.New("agent already exists")

// Agent is a registered agent. The API key is only revealed by Create.
type Agent struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Name        string          `json:"name"`
	Permissions []string        `json:"permissions"`
	Persona     json.RawMessage `json:"persona"`
	CreatedAt   time.Time       `json:"created_at"`

	apiKey string
}

// APIKey returns the agent's key when it was loaded by a registry call that
// exposes it.
func (a Agent) APIKey() string {
	return a.apiKey
}

// Created is the one-time result of Create.
type Created struct {
	ID          string   `json:"id"`
	APIKey      string   `json:"apiKey"`
	Permissions []string `json:"permissions"`
}

// CreateInput describes a new agent. Empty fields take defaults: a
// generated id, the id as name and read+write permissions.
type CreateInput struct {
	ID          string
	Name        string
	Permissions []string
}

// Config configures a Registry.
type Config struct {
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Registry stores agents.
type Registry struct {
	logger *slog.Logger
	now    func() time.Time

	insert     *storage.Stmt
	selectID   *storage.Stmt
	selectKey  *storage.Stmt
	listUser   *storage.Stmt
	setPersona *storage.Stmt
	setName    *storage.Stmt
	deleteOne  *storage.Stmt
}

// NewRegistry prepares the agent statements against db.
func NewRegistry(db *storage.DB, c Config) *Registry {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	const cols = `id, user_id, name, permissions, persona, created_at, api_key`
	return &Registry{
		logger: c.Logger,
		now:    now,

		insert: db.Prepare(`INSERT INTO agents (id, user_id, name, api_key, permissions, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
		selectID:   db.Prepare(`SELECT ` + cols + ` FROM agents WHERE id = ?`),
		selectKey:  db.Prepare(`SELECT ` + cols + ` FROM agents WHERE api_key = ?`),
		listUser:   db.Prepare(`SELECT ` + cols + ` FROM agents WHERE user_id = ? ORDER BY created_at, id`),
		setPersona: db.Prepare(`UPDATE agents SET persona = ? WHERE id = ? AND user_id = ?`),
		setName:    db.Prepare(`UPDATE agents SET name = ? WHERE id = ? AND user_id = ?`),
		deleteOne:  db.Prepare(`DELETE FROM agents WHERE id = ? AND user_id = ?`),
	}
}

// Create registers an agent and returns its key. The key cannot be read
// again; rotating it means deleting and recreating the agent.
func (r *Registry) Create(ctx context.Context, userID string, in CreateInput) (Created, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()[:12]
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = id
	}
	perms := utils.SplitSet(utils.JoinSet(in.Permissions))
	if len(perms) == 0 {
		perms = auth.ParsePermissions(auth.DefaultPermissions)
	}

	if _, err := r.byID(ctx, id); err == nil {
		return Created{}, fmt.Errorf("%w: %s", ErrExists, id)
	} else if !storage.IsNotFound(err) {
		return Created{}, err
	}

	key := KeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := r.insert.Run(ctx, id, userID, name, key, utils.JoinSet(perms), r.now().UTC()); err != nil {
		return Created{}, fmt.Errorf("creating agent %s: %w", id, err)
	}

	r.logger.Info("agent created", "user_id", userID, "agent_id", id)
	return Created{ID: id, APIKey: key, Permissions: perms}, nil
}

// List returns the agents of a user.
func (r *Registry) List(ctx context.Context, userID string) ([]Agent, error) {
	rows, err := r.listUser.All(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	out := []Agent{}
	for rows.Next() {
		a, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get returns one agent of a user or a storage.NotFoundError.
func (r *Registry) Get(ctx context.Context, userID, id string) (Agent, error) {
	a, err := r.byID(ctx, id)
	if err != nil {
		return Agent{}, err
	}
	if a.UserID != userID {
		return Agent{}, storage.NotFoundError{Kind: "agent", ID: id}
	}
	return a, nil
}

// AgentByKey resolves an API key into its principal.
func (r *Registry) AgentByKey(ctx context.Context, apiKey string) (auth.Principal, error) {
	a, err := scanAgent(r.selectKey.Get(ctx, apiKey).Scan)
	if errors.Is(err, storage.ErrNoRows) {
		return auth.Principal{}, storage.NotFoundError{Kind: "agent"}
	}
	if err != nil {
		return auth.Principal{}, fmt.Errorf("resolving API key: %w", err)
	}
	return auth.Principal{AgentID: a.ID, UserID: a.UserID, Permissions: a.Permissions}, nil
}

// SetPersona replaces the persona document of an agent. It reports whether
// the agent exists in the user's scope.
func (r *Registry) SetPersona(ctx context.Context, userID, id string, persona json.RawMessage) (bool, error) {
	var doc any
	if len(persona) > 0 && string(persona) != "null" {
		doc = string(persona)
	}
	res, err := r.setPersona.Run(ctx, doc, id, userID)
	if err != nil {
		return false, fmt.Errorf("updating persona of %s: %w", id, err)
	}
	return res.RowsAffected > 0, nil
}

// SetName renames an agent. It reports whether the agent exists in the
// user's scope.
func (r *Registry) SetName(ctx context.Context, userID, id, name string) (bool, error) {
	res, err := r.setName.Run(ctx, name, id, userID)
	if err != nil {
		return false, fmt.Errorf("renaming agent %s: %w", id, err)
	}
	return res.RowsAffected > 0, nil
}

// Delete removes an agent of a user and returns it, key included, so
// callers can evict cached credentials. Deleting an unknown agent returns a
// storage.NotFoundError.
func (r *Registry) Delete(ctx context.Context, userID, id string) (Agent, error) {
	a, err := r.Get(ctx, userID, id)
	if err != nil {
		return Agent{}, err
	}
	if _, err := r.deleteOne.Run(ctx, id, userID); err != nil {
		return Agent{}, fmt.Errorf("deleting agent %s: %w", id, err)
	}

	r.logger.Info("agent deleted", "user_id", userID, "agent_id", id)
	return a, nil
}

func (r *Registry) byID(ctx context.Context, id string) (Agent, error) {
	a, err := scanAgent(r.selectID.Get(ctx, id).Scan)
	if errors.Is(err, storage.ErrNoRows) {
		return Agent{}, storage.NotFoundError{Kind: "agent", ID: id}
	}
	if err != nil {
		return Agent{}, fmt.Errorf("reading agent %s: %w", id, err)
	}
	return a, nil
}

func scanAgent(scan func(dest ...any) error) (Agent, error) {
	var (
		a           Agent
		permissions string
		persona     sql.NullString
		createdAt   sql.NullTime
	)
	if err := scan(&a.ID, &a.UserID, &a.Name, &permissions, &persona, &createdAt, &a.apiKey); err != nil {
		return Agent{}, err
	}

	a.Permissions = auth.ParsePermissions(permissions)
	if persona.Valid && persona.String != "" {
		a.Persona = json.RawMessage(persona.String)
	}
	a.CreatedAt = createdAt.Time.UTC()
	return a, nil
}
