package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent swarm configuration stored as config.toml
// in the .swarm/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version    int              `toml:"version"`
	Storage    StorageConfig    `toml:"storage"`
	API        APIConfig        `toml:"api"`
	Auth       AuthConfig       `toml:"auth"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Enrich     EnrichConfig     `toml:"enrich"`
	Reflection ReflectionConfig `toml:"reflection"`
	Cleanup    CleanupConfig    `toml:"cleanup"`
	Events     EventsConfig     `toml:"events"`
}

// StorageConfig selects the backend. A PostgreSQL DSN wins over the SQLite
// path.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// AuthConfig holds the admin token and session token settings.
type AuthConfig struct {
	AdminToken string `toml:"admin_token,omitempty"`
	JWTSecret  string `toml:"jwt_secret,omitempty"`
	JWTTTL     string `toml:"jwt_ttl,omitempty"`
}

// EmbeddingConfig holds embedding provider settings. An empty provider
// disables semantic search and enrichment.
type EmbeddingConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
	Timeout  string `toml:"timeout,omitempty"`
}

// EnrichConfig sizes the background embedding pool.
type EnrichConfig struct {
	Workers   uint `toml:"workers,omitempty"`
	QueueSize uint `toml:"queue_size,omitempty"`
}

// ReflectionConfig holds the LLM extraction provider. An empty provider
// reflects with rules only.
type ReflectionConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

// CleanupConfig schedules the expiry sweeper. An empty schedule disables it.
type CleanupConfig struct {
	Schedule string `toml:"schedule,omitempty"`
}

// EventsConfig holds the audit event stream. No brokers means no stream.
type EventsConfig struct {
	KafkaBrokers []string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `toml:"kafka_topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get    func(c *Config) string
	set    func(c *Config, v string) error
	secret bool
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func secretKey(field func(c *Config) *string) configKeyInfo {
	info := stringKey(field)
	info.secret = true
	return info
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = v
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": secretKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"api.listen":           stringKey(func(c *Config) *string { return &c.API.Listen }),
	"auth.admin_token":     secretKey(func(c *Config) *string { return &c.Auth.AdminToken }),
	"auth.jwt_secret":      secretKey(func(c *Config) *string { return &c.Auth.JWTSecret }),
	"auth.jwt_ttl":         durationKey("auth.jwt_ttl", func(c *Config) *string { return &c.Auth.JWTTTL }),
	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.api_key":    secretKey(func(c *Config) *string { return &c.Embedding.APIKey }),
	"embedding.timeout":    durationKey("embedding.timeout", func(c *Config) *string { return &c.Embedding.Timeout }),
	"enrich.workers":       uintKey("enrich.workers", func(c *Config) *uint { return &c.Enrich.Workers }),
	"enrich.queue_size":    uintKey("enrich.queue_size", func(c *Config) *uint { return &c.Enrich.QueueSize }),
	"reflection.provider":  stringKey(func(c *Config) *string { return &c.Reflection.Provider }),
	"reflection.target":    stringKey(func(c *Config) *string { return &c.Reflection.Target }),
	"reflection.model":     stringKey(func(c *Config) *string { return &c.Reflection.Model }),
	"reflection.api_key":   secretKey(func(c *Config) *string { return &c.Reflection.APIKey }),
	"cleanup.schedule":     stringKey(func(c *Config) *string { return &c.Cleanup.Schedule }),
	"events.kafka_topic":   stringKey(func(c *Config) *string { return &c.Events.KafkaTopic }),
	"events.kafka_brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.KafkaBrokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.KafkaBrokers = nil
			for _, b := range strings.Split(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.Events.KafkaBrokers = append(c.Events.KafkaBrokers, b)
				}
			}
			return nil
		},
	},
}
