package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering, lowest precedence first:
//
//  1. built-in defaults (Default)
//  2. a YAML file, from the path argument or $SHIVA_CONFIG
//  3. environment variables with the SHIVA_ prefix, where a double
//     underscore separates nesting: SHIVA_SERVER__ADDR -> server.addr
//
// The merged configuration is validated before being returned.
func Load(path string) (*Config, error) {
	cfg := *Default()

	k := koanf.New(".")

	if path == "" {
		path = os.Getenv("SHIVA_CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("SHIVA_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "SHIVA_"))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
