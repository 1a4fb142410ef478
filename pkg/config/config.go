// Package config defines the service configuration and its loading rules.
// Values are layered: built-in defaults, then an optional YAML file, then
// SHIVA_-prefixed environment variables.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Config is the full process configuration for shivad.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Server   ServerConfig   `koanf:"server"`
	Provider ProviderConfig `koanf:"provider"`
	Redis    RedisConfig    `koanf:"redis"`
	Postgres PostgresConfig `koanf:"postgres"`
	LLM      LLMConfig      `koanf:"llm"`
	Injury   InjuryConfig   `koanf:"injury"`
	Engine   EngineConfig   `koanf:"engine"`
	Slate    SlateConfig    `koanf:"slate"`
	Picks    PicksConfig    `koanf:"picks"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ProviderConfig points at the stats provider API.
type ProviderConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
	// Season is the provider's season identifier, e.g. "2025-2026-regular".
	Season  string        `koanf:"season"`
	RPS     float64       `koanf:"rps"`
	Burst   int           `koanf:"burst"`
	Timeout time.Duration `koanf:"timeout"`
}

// RedisConfig controls the stats cache. An empty Addr disables caching.
type RedisConfig struct {
	Addr      string        `koanf:"addr"`
	Password  string        `koanf:"password"`
	DB        int           `koanf:"db"`
	SeasonTTL time.Duration `koanf:"season_ttl"`
	RecentTTL time.Duration `koanf:"recent_ttl"`
	InjuryTTL time.Duration `koanf:"injury_ttl"`
}

// PostgresConfig controls run/pick persistence. An empty DSN disables it.
type PostgresConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
}

// LLMConfig configures the completion client used by the LLM injury path.
type LLMConfig struct {
	// Provider is "openai", "anthropic", or an OpenAI-compatible vendor
	// ("deepseek", "openrouter").
	Provider    string        `koanf:"provider"`
	Model       string        `koanf:"model"`
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	MaxTokens   int           `koanf:"max_tokens"`
	Temperature float64       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
}

// InjuryConfig selects the injury analysis strategy.
type InjuryConfig struct {
	// Mode is "deterministic" (default) or "llm".
	Mode string `koanf:"mode"`
}

// EngineConfig tunes the scoring engine.
type EngineConfig struct {
	// Weights are optional per-factor percent overrides (0-100) applied to
	// every run started by the slate orchestrator.
	Weights map[string]float64 `koanf:"weights"`
	// DebugBundle includes the full stats bundle snapshot in insight debug
	// payloads.
	DebugBundle bool `koanf:"debug_bundle"`
}

// SlateConfig controls the background scoring loops.
type SlateConfig struct {
	Enabled           bool          `koanf:"enabled"`
	DiscoveryInterval time.Duration `koanf:"discovery_interval"`
	ScoringInterval   time.Duration `koanf:"scoring_interval"`
	GradingInterval   time.Duration `koanf:"grading_interval"`
	// BetTypes are the markets scored for each slate game.
	BetTypes []string `koanf:"bet_types"`
}

// PicksConfig controls pick generation and staking.
type PicksConfig struct {
	Capper        string  `koanf:"capper"`
	MinPoints     float64 `koanf:"min_points"`
	MinMargin     float64 `koanf:"min_margin"`
	DefaultOdds   int     `koanf:"default_odds"`
	KellyFraction float64 `koanf:"kelly_fraction"`
	MinUnits      float64 `koanf:"min_units"`
	MaxUnits      float64 `koanf:"max_units"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Addr:            ":8090",
			CORSOrigins:     []string{"*"},
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Provider: ProviderConfig{
			BaseURL: "https://api.hoopdata.io/v2",
			Season:  "2025-2026-regular",
			RPS:     2,
			Burst:   4,
			Timeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			SeasonTTL: 6 * time.Hour,
			RecentTTL: time.Hour,
			InjuryTTL: 15 * time.Minute,
		},
		Postgres: PostgresConfig{
			MaxOpenConns: 10,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			MaxTokens:   512,
			Temperature: 0.2,
			Timeout:     30 * time.Second,
		},
		Injury: InjuryConfig{
			Mode: "deterministic",
		},
		Engine: EngineConfig{},
		Slate: SlateConfig{
			Enabled:           true,
			DiscoveryInterval: 10 * time.Minute,
			ScoringInterval:   2 * time.Minute,
			GradingInterval:   5 * time.Minute,
			BetTypes:          []string{"TOTAL", "SPREAD"},
		},
		Picks: PicksConfig{
			Capper:        "shiva-v1",
			MinPoints:     6.0,
			MinMargin:     2.0,
			DefaultOdds:   -110,
			KellyFraction: 0.25,
			MinUnits:      0.5,
			MaxUnits:      3.0,
		},
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug/info/warn/error", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		problems = append(problems, fmt.Sprintf("log.format %q is not json or console", c.Log.Format))
	}
	if c.Server.Addr == "" {
		problems = append(problems, "server.addr must not be empty")
	}
	if c.Provider.BaseURL == "" {
		problems = append(problems, "provider.base_url must not be empty")
	}
	if c.Provider.RPS <= 0 {
		problems = append(problems, "provider.rps must be positive")
	}
	if c.Provider.Burst < 1 {
		problems = append(problems, "provider.burst must be at least 1")
	}
	switch c.Injury.Mode {
	case "deterministic":
	case "llm":
		if c.LLM.APIKey == "" {
			problems = append(problems, "injury.mode is llm but llm.api_key is empty")
		}
	default:
		problems = append(problems, fmt.Sprintf("injury.mode %q is not deterministic or llm", c.Injury.Mode))
	}
	for key, pct := range c.Engine.Weights {
		if math.IsNaN(pct) || math.IsInf(pct, 0) || pct < 0 || pct > 100 {
			problems = append(problems, fmt.Sprintf("engine.weights[%s] = %v is outside [0, 100]", key, pct))
		}
	}
	for _, bt := range c.Slate.BetTypes {
		upper := strings.ToUpper(bt)
		if upper != "SPREAD" && upper != "MONEYLINE" && upper != "TOTAL" && upper != "SPREAD/MONEYLINE" {
			problems = append(problems, fmt.Sprintf("slate.bet_types entry %q is not a known market", bt))
		}
	}
	if c.Picks.MinPoints < 0 {
		problems = append(problems, "picks.min_points must not be negative")
	}
	if c.Picks.KellyFraction <= 0 || c.Picks.KellyFraction > 1 {
		problems = append(problems, "picks.kelly_fraction must be in (0, 1]")
	}
	if c.Picks.MinUnits <= 0 || c.Picks.MaxUnits < c.Picks.MinUnits {
		problems = append(problems, "picks.min_units/max_units must be positive and ordered")
	}
	if c.Picks.DefaultOdds > -100 && c.Picks.DefaultOdds < 100 {
		problems = append(problems, fmt.Sprintf("picks.default_odds %d is not a valid american price", c.Picks.DefaultOdds))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
