// Package cli holds the wiring shared by the arbor commands: configuration
// loading, engine construction, and the interactive session loop.
package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is probed when no --config flag is given.
const DefaultConfigPath = "arbor.yaml"

// Config is the full file configuration.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Engine  EngineConfig  `yaml:"engine"`
	Store   StoreConfig   `yaml:"store"`
	Tools   ToolsConfig   `yaml:"tools"`
}

// GatewayConfig points at the model service.
type GatewayConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// EngineConfig tunes the loop.
type EngineConfig struct {
	MaxTurns   int `yaml:"max_turns"`
	MaxRetries int `yaml:"max_retries"`
}

// StoreConfig selects conversation persistence.
type StoreConfig struct {
	Type        string           `yaml:"type"` // "memory" or "redis"
	Redis       RedisConfig      `yaml:"redis"`
	Encryption  EncryptionConfig `yaml:"encryption"`
	PIIPatterns []string         `yaml:"pii_patterns"`
}

// EncryptionConfig enables at-rest transcript encryption. Keys are base64
// encoded and must decode to 32 bytes.
type EncryptionConfig struct {
	Key          string   `yaml:"key"`
	FallbackKeys []string `yaml:"fallback_keys"`
}

// RedisConfig configures the redis store and locker.
type RedisConfig struct {
	Addr   string `yaml:"addr"`
	TTL    string `yaml:"ttl"` // Go duration string, e.g. "24h"
	Prefix string `yaml:"prefix"`
	Lock   bool   `yaml:"lock"`
}

// ToolsConfig enables built-in tools and mounts remote providers.
type ToolsConfig struct {
	Fetch     bool             `yaml:"fetch"`
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes one remote tool provider.
type ProviderConfig struct {
	Type    string            `yaml:"type"` // "process", "http" or "mcp"
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{Type: "memory"},
		Tools: ToolsConfig{Fetch: true},
	}
}

// LoadConfig reads a YAML config file. A missing file at the default path is
// not an error; an explicitly requested file must exist.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// The token rarely belongs in a file.
	if env := os.Getenv("ARBOR_GATEWAY_TOKEN"); env != "" {
		cfg.Gateway.Token = env
	}
	return cfg, nil
}
