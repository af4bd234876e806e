// Package llm provides single-shot chat completion callers for the
// supported extraction providers.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

const defaultTimeout = 60 * time.Second

// CallFunc sends one system instruction and one user message and returns the
// text of the reply.
type CallFunc func(ctx context.Context, system, user string) (string, error)

// CallerConfig holds configuration for creating a caller.
type CallerConfig struct {
	Provider string // "openai", "anthropic", or "ollama"
	Model    string // e.g. "gpt-4o-mini", "claude-haiku-4-5-20251001"
	APIKey   string
	BaseURL  string // override base URL

	// HTTPClient defaults to a client with a 60s timeout.
	HTTPClient *http.Client
}

// NewCaller creates a CallFunc based on the provided configuration. An empty
// provider returns a nil CallFunc, meaning no LLM is configured.
func NewCaller(cfg CallerConfig) (CallFunc, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	model := cfg.Model
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s provider requires an API key", ProviderOpenAI)
		}
		if model == "" {
			model = "gpt-4o-mini"
		}
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return newOpenAICaller(client, cfg.APIKey, model, baseURL), nil

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s provider requires an API key", ProviderAnthropic)
		}
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		return newAnthropicCaller(client, cfg.APIKey, model, baseURL), nil

	case ProviderOllama:
		if model == "" {
			model = "llama3.2"
		}
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return newOllamaCaller(client, model, baseURL), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
