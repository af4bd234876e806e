// Package stack assembles the hub and its collaborators from the resolved
// configuration. Every command that touches the store goes through Open.
package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/papercomputeco/swarm/pkg/auth"
	"github.com/papercomputeco/swarm/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/swarm/pkg/embeddings/utils"
	"github.com/papercomputeco/swarm/pkg/config"
	"github.com/papercomputeco/swarm/pkg/eventstream"
	"github.com/papercomputeco/swarm/pkg/eventstream/kafka"
	"github.com/papercomputeco/swarm/pkg/eventstream/nop"
	"github.com/papercomputeco/swarm/pkg/hub"
	"github.com/papercomputeco/swarm/pkg/llm"
	"github.com/papercomputeco/swarm/pkg/metrics"
	"github.com/papercomputeco/swarm/pkg/storage"
	"github.com/papercomputeco/swarm/pkg/storage/postgres"
	"github.com/papercomputeco/swarm/pkg/storage/sqlite"
)

// Options selects what Open wires.
type Options struct {
	Viper     *viper.Viper
	ConfigDir string
	Logger    *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Collectors

	// Serving enables the providers a long running server needs: the
	// embedder, the reflection LLM and session tokens. Without a configured
	// JWT secret a random one is generated.
	Serving bool
}

// Stack is an opened hub with the resources it owns.
type Stack struct {
	DB        *storage.DB
	Hub       *hub.Hub
	Publisher eventstream.Publisher
	Backend   string
}

// Open connects the store and builds the hub.
func Open(ctx context.Context, o Options) (*Stack, error) {
	if o.Viper == nil {
		return nil, errors.New("viper is required")
	}
	v := o.Viper

	db, backend, err := OpenDB(ctx, v, o.ConfigDir)
	if err != nil {
		return nil, err
	}
	o.Logger.Info("using storage", "backend", backend)

	publisher, err := newPublisher(v)
	if err != nil {
		db.Close()
		return nil, err
	}

	c := hub.Config{
		DB:              db,
		Publisher:       publisher,
		Metrics:         o.Metrics,
		AdminToken:      v.GetString("auth.admin_token"),
		EnrichWorkers:   v.GetUint("enrich.workers"),
		EnrichQueueSize: v.GetUint("enrich.queue_size"),
		Logger:          o.Logger,
		Settings: hub.Settings{
			Listen: v.GetString("api.listen"),
			Embedding: hub.EmbeddingSettings{
				Provider: v.GetString("embedding.provider"),
				Target:   v.GetString("embedding.target"),
				Model:    v.GetString("embedding.model"),
			},
			Reflection: hub.ReflectionSettings{
				Provider: v.GetString("reflection.provider"),
				Model:    v.GetString("reflection.model"),
			},
		},
	}

	if err := wireProviders(&c, o); err != nil {
		publisher.Close()
		db.Close()
		return nil, err
	}

	h, err := hub.New(ctx, c)
	if err != nil {
		publisher.Close()
		db.Close()
		return nil, err
	}

	return &Stack{DB: db, Hub: h, Publisher: publisher, Backend: backend}, nil
}

// Close stops the hub and releases the publisher and the database.
func (s *Stack) Close() error {
	s.Hub.Close()
	return errors.Join(s.Publisher.Close(), s.DB.Close())
}

// OpenDB connects PostgreSQL when a DSN is configured and SQLite otherwise.
func OpenDB(ctx context.Context, v *viper.Viper, configDir string) (*storage.DB, string, error) {
	if dsn := strings.TrimSpace(v.GetString("storage.postgres_dsn")); dsn != "" {
		db, err := postgres.NewDB(ctx, dsn)
		if err != nil {
			return nil, "", fmt.Errorf("connecting to postgres: %w", err)
		}
		return db, "postgres", nil
	}

	path, err := dotdir.NewManager().DatabasePath(configDir, v.GetString("storage.sqlite_path"))
	if err != nil {
		return nil, "", fmt.Errorf("resolving database path: %w", err)
	}
	db, err := sqlite.NewDB(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("opening sqlite database %s: %w", path, err)
	}
	return db, "sqlite:" + path, nil
}

func wireProviders(c *hub.Config, o Options) error {
	v := o.Viper

	if secret := v.GetString("auth.jwt_secret"); secret != "" || o.Serving {
		if secret == "" {
			var err error
			if secret, err = config.RandomSecret(); err != nil {
				return err
			}
			o.Logger.Warn("auth.jwt_secret is not set, using a random secret; sessions end when the server restarts")
		}
		ttl, err := time.ParseDuration(v.GetString("auth.jwt_ttl"))
		if err != nil {
			return fmt.Errorf("parsing auth.jwt_ttl: %w", err)
		}
		if c.Tokens, err = auth.NewTokens(secret, ttl, nil); err != nil {
			return err
		}
	}

	if !o.Serving {
		return nil
	}

	var embedTimeout time.Duration
	if raw := v.GetString("embedding.timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parsing embedding.timeout: %w", err)
		}
		embedTimeout = parsed
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: v.GetString("embedding.provider"),
		TargetURL:    v.GetString("embedding.target"),
		Model:        v.GetString("embedding.model"),
		APIKey:       v.GetString("embedding.api_key"),
		Timeout:      embedTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	c.Embedder = embedder

	call, err := llm.NewCaller(llm.CallerConfig{
		Provider: v.GetString("reflection.provider"),
		Model:    v.GetString("reflection.model"),
		APIKey:   v.GetString("reflection.api_key"),
		BaseURL:  v.GetString("reflection.target"),
	})
	if err != nil {
		return fmt.Errorf("creating reflection caller: %w", err)
	}
	c.Call = call
	return nil
}

func newPublisher(v *viper.Viper) (eventstream.Publisher, error) {
	brokers := Brokers(v.GetStringSlice("events.kafka_brokers"))
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   v.GetString("events.kafka_topic"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	return p, nil
}

// Brokers flattens broker lists that arrive comma separated from the
// environment or a flag.
func Brokers(raw []string) []string {
	var out []string
	for _, entry := range raw {
		for _, b := range strings.Split(entry, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
	}
	return out
}
