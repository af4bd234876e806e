package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/papercomputeco/swarm/pkg/storage"
)

// DefaultAdminToken is used when no admin token is configured.
const DefaultAdminToken = "swarm-admin-dev"

const agentCacheTTL = 5 * time.Minute

// AgentLookup resolves an API key into the agent principal. Unknown keys
// return a storage.NotFoundError.
type AgentLookup interface {
	AgentByKey(ctx context.Context, apiKey string) (Principal, error)
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Agents AgentLookup

	// DefaultUser returns the user the shared admin token acts for.
	DefaultUser func(ctx context.Context) (string, error)

	// AdminToken defaults to DefaultAdminToken.
	AdminToken string

	// Tokens verifies session tokens; nil disables session authentication.
	Tokens *Tokens

	Logger *slog.Logger
}

// Resolver turns credentials into principals. Resolved agent keys are
// cached until Evict is called or the entry ages out.
type Resolver struct {
	agents      AgentLookup
	defaultUser func(ctx context.Context) (string, error)
	adminToken  string
	tokens      *Tokens
	cache       *ristretto.Cache
	logger      *slog.Logger

	// mu orders cache writes against Evict. A lookup that overlapped an
	// eviction sees a newer generation and does not cache its result.
	mu         sync.Mutex
	generation uint64
}

// NewResolver creates a resolver with an empty key cache.
func NewResolver(c ResolverConfig) (*Resolver, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 12,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating agent cache: %w", err)
	}

	token := c.AdminToken
	if token == "" {
		token = DefaultAdminToken
	}

	return &Resolver{
		agents:      c.Agents,
		defaultUser: c.DefaultUser,
		adminToken:  token,
		tokens:      c.Tokens,
		cache:       cache,
		logger:      c.Logger,
	}, nil
}

// Agent resolves an API key.
func (r *Resolver) Agent(ctx context.Context, apiKey string) (Principal, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return Principal{}, fmt.Errorf("%w: missing API key", ErrUnauthenticated)
	}

	if cached, ok := r.cache.Get(apiKey); ok {
		if p, ok := cached.(Principal); ok {
			return p, nil
		}
	}

	r.mu.Lock()
	gen := r.generation
	r.mu.Unlock()

	p, err := r.agents.AgentByKey(ctx, apiKey)
	if storage.IsNotFound(err) {
		return Principal{}, fmt.Errorf("%w: invalid API key", ErrUnauthenticated)
	}
	if err != nil {
		return Principal{}, err
	}

	r.mu.Lock()
	if gen == r.generation {
		r.cache.SetWithTTL(apiKey, p, 1, agentCacheTTL)
	}
	r.mu.Unlock()
	return p, nil
}

// Admin resolves an admin credential: the shared admin token or a session
// token.
func (r *Resolver) Admin(ctx context.Context, credential string) (Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Principal{}, fmt.Errorf("%w: missing admin credential", ErrUnauthenticated)
	}

	if subtle.ConstantTimeCompare([]byte(credential), []byte(r.adminToken)) == 1 {
		userID, err := r.defaultUser(ctx)
		if err != nil {
			return Principal{}, err
		}
		return Principal{UserID: userID, Admin: true}, nil
	}

	if r.tokens == nil {
		return Principal{}, fmt.Errorf("%w: invalid admin credential", ErrUnauthenticated)
	}
	userID, err := r.tokens.Verify(credential)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: userID, Admin: true}, nil
}

// Evict drops a cached API key, for example after its agent was deleted.
func (r *Resolver) Evict(apiKey string) {
	r.mu.Lock()
	r.generation++
	r.cache.Del(apiKey)
	r.mu.Unlock()
	r.cache.Wait()
}

// Close releases the cache.
func (r *Resolver) Close() {
	r.cache.Close()
}
