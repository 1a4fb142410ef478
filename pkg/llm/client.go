// Package llm issues chat completions against OpenAI-compatible or
// Anthropic endpoints for the injury analyzer's opt-in LLM mode.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pickpulse/shiva/pkg/metrics"
)

// Client issues one chat completion and reports which provider served it.
type Client interface {
	Complete(ctx context.Context, prompt, system string) (string, error)
	Provider() string
}

// Config selects and tunes a provider.
type Config struct {
	Provider    string // "openai", "anthropic", "deepseek", "openrouter"
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"anthropic":  "https://api.anthropic.com/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
}

// New builds a client for the configured provider. OpenRouter and DeepSeek
// speak the OpenAI wire format.
func New(cfg Config, m *metrics.EngineMetrics) (Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURLs[cfg.Provider]
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	switch cfg.Provider {
	case "anthropic":
		return &anthropicClient{cfg: cfg, httpClient: httpClient, metrics: m}, nil
	case "openai", "deepseek", "openrouter":
		return &openAIClient{cfg: cfg, httpClient: httpClient, metrics: m}, nil
	}
	return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
}
