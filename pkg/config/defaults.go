package config

const (
	defaultAPIListen      = ":3777"
	defaultAdminToken     = "swarm-admin-dev"
	defaultJWTTTL         = "168h"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultEnrichWorkers  = 3
	defaultEnrichQueue    = 256
	defaultKafkaTopic     = "swarm.audit"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Auth: AuthConfig{
			AdminToken: defaultAdminToken,
			JWTTTL:     defaultJWTTTL,
		},
		Embedding: EmbeddingConfig{
			Model: defaultEmbeddingModel,
		},
		Enrich: EnrichConfig{
			Workers:   defaultEnrichWorkers,
			QueueSize: defaultEnrichQueue,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
