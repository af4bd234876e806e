// Package hub is the core façade of swarm. Every operation takes the
// resolved caller principal and gates it in a fixed order: permission, then
// input validation, then storage, then the audit entry. Failing gates never
// reach storage.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/swarm/pkg/agents"
	"github.com/papercomputeco/swarm/pkg/audit"
	"github.com/papercomputeco/swarm/pkg/auth"
	"github.com/papercomputeco/swarm/pkg/embeddings"
	"github.com/papercomputeco/swarm/pkg/enrich"
	"github.com/papercomputeco/swarm/pkg/eventstream"
	"github.com/papercomputeco/swarm/pkg/llm"
	"github.com/papercomputeco/swarm/pkg/memory"
	"github.com/papercomputeco/swarm/pkg/metrics"
	"github.com/papercomputeco/swarm/pkg/profile"
	"github.com/papercomputeco/swarm/pkg/reflection"
	"github.com/papercomputeco/swarm/pkg/schema"
	"github.com/papercomputeco/swarm/pkg/storage"
	"github.com/papercomputeco/swarm/pkg/users"
)

// ErrValidation marks malformed input. It is wrapped with the offending
// field.
var ErrValidation = errors.New("invalid input")

func missing(field string) error {
	return fmt.Errorf("%w: missing %s", ErrValidation, field)
}

// Config configures a Hub.
type Config struct {
	DB *storage.DB

	// Embedder enables semantic search and background enrichment. Optional.
	Embedder embeddings.Embedder

	// Call enables LLM reflection. Optional; rules are used without it.
	Call llm.CallFunc

	// Publisher receives audit events. Optional.
	Publisher eventstream.Publisher

	// Metrics records operation outcomes. Optional.
	Metrics *metrics.Collectors

	// Tokens signs and verifies user sessions. Optional; without it
	// register, login and session authentication are unavailable.
	Tokens *auth.Tokens

	// AdminToken defaults to auth.DefaultAdminToken.
	AdminToken string

	EnrichWorkers   uint
	EnrichQueueSize uint

	// Settings is reported by the admin settings operation.
	Settings Settings

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Hub serves every swarm operation.
type Hub struct {
	profiles  *profile.Store
	memories  *memory.Store
	reflector *reflection.Engine
	audit     *audit.Log
	agents    *agents.Registry
	users     *users.Service
	resolver  *auth.Resolver
	pool      *enrich.Pool
	metrics   *metrics.Collectors
	settings  Settings
	logger    *slog.Logger
	now       func() time.Time
}

// New ensures the schema on c.DB and wires the components.
func New(ctx context.Context, c Config) (*Hub, error) {
	if c.DB == nil {
		return nil, errors.New("database is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}

	caps, err := schema.NewManager(c.DB, c.Logger).Ensure(ctx)
	if err != nil {
		return nil, err
	}

	settings := c.Settings
	settings.Embedding.Enabled = c.Embedder != nil
	settings.Reflection.Enabled = c.Call != nil

	h := &Hub{
		metrics:  c.Metrics,
		settings: settings,
		logger:   c.Logger,
		now:      now,
	}

	h.profiles = profile.NewStore(c.DB, profile.Config{Logger: c.Logger, Now: now})
	h.memories = memory.NewStore(c.DB, memory.Config{
		Logger:   c.Logger,
		Embedder: c.Embedder,
		FullText: caps.FullText,
		Now:      now,
	})
	h.audit = audit.NewLog(c.DB, audit.Config{Publisher: c.Publisher, Logger: c.Logger, Now: now})
	h.agents = agents.NewRegistry(c.DB, agents.Config{Logger: c.Logger, Now: now})
	h.users = users.NewService(c.DB, users.Config{Tokens: c.Tokens, Logger: c.Logger, Now: now})
	h.reflector = reflection.NewEngine(reflection.Config{
		Memories: h.memories,
		Profiles: h.profiles,
		Call:     c.Call,
		Logger:   c.Logger,
		Now:      now,
	})

	h.resolver, err = auth.NewResolver(auth.ResolverConfig{
		Agents:      h.agents,
		DefaultUser: h.users.EnsureDefaultUser,
		AdminToken:  c.AdminToken,
		Tokens:      c.Tokens,
		Logger:      c.Logger,
	})
	if err != nil {
		return nil, err
	}

	if c.Embedder != nil {
		h.pool, err = enrich.NewPool(&enrich.Config{
			Embedder:   c.Embedder,
			Sink:       h.memories,
			NumWorkers: c.EnrichWorkers,
			QueueSize:  c.EnrichQueueSize,
			Observe:    c.Metrics.EmbeddingJob,
			Logger:     c.Logger,
		})
		if err != nil {
			h.resolver.Close()
			return nil, err
		}
	}

	c.Logger.Info("hub ready",
		"full_text", caps.FullText,
		"semantic", c.Embedder != nil,
		"llm_reflection", c.Call != nil,
	)
	return h, nil
}

// Close drains pending enrichment jobs and releases the credential cache.
// The database stays open.
func (h *Hub) Close() {
	if h.pool != nil {
		h.pool.Close()
	}
	h.resolver.Close()
}

// AuthenticateAgent resolves an agent API key.
func (h *Hub) AuthenticateAgent(ctx context.Context, apiKey string) (auth.Principal, error) {
	return h.resolver.Agent(ctx, apiKey)
}

// AuthenticateAdmin resolves the admin token or a session token.
func (h *Hub) AuthenticateAdmin(ctx context.Context, credential string) (auth.Principal, error) {
	return h.resolver.Admin(ctx, credential)
}

// LocalAdmin is the admin principal of the default user, used by CLI
// commands that run against the store directly.
func (h *Hub) LocalAdmin(ctx context.Context) (auth.Principal, error) {
	userID, err := h.users.EnsureDefaultUser(ctx)
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{UserID: userID, Admin: true}, nil
}

// Register creates a user account and returns its session.
func (h *Hub) Register(ctx context.Context, email, password, name string) (s users.Session, err error) {
	defer h.observe("auth.register", time.Now(), &err)

	s, err = h.users.Register(ctx, email, password, name)
	if errors.Is(err, users.ErrMissingCredentials) {
		return users.Session{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s, err
}

// Login signs in a user.
func (h *Hub) Login(ctx context.Context, email, password string) (s users.Session, err error) {
	defer h.observe("auth.login", time.Now(), &err)

	s, err = h.users.Login(ctx, email, password)
	if errors.Is(err, users.ErrMissingCredentials) {
		return users.Session{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s, err
}

func (h *Hub) observe(operation string, start time.Time, err *error) {
	h.metrics.Observe(operation, start, *err)
}

func (h *Hub) record(ctx context.Context, r audit.Record) error {
	return h.audit.Append(ctx, r)
}
