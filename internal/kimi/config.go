package kimi

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// DefaultModel is used when the config file does not name one
const DefaultModel = "kimi-k2-0711"

// ModelConfig is one entry under [models.<name>]
type ModelConfig struct {
	Provider       string   `json:"provider" toml:"provider"`
	Model          string   `json:"model" toml:"model"`
	MaxContextSize int      `json:"max_context_size" toml:"max_context_size"`
	Capabilities   []string `json:"capabilities" toml:"capabilities"`
}

// ProviderConfig is one entry under [providers.<name>]
type ProviderConfig struct {
	Type    string `json:"type" toml:"type"`
	BaseURL string `json:"base_url" toml:"base_url"`
	APIKey  string `json:"api_key" toml:"api_key"`
}

// Config is the runtime's user configuration
type Config struct {
	DefaultModel    string                    `json:"default_model" toml:"default_model"`
	DefaultThinking bool                      `json:"default_thinking" toml:"default_thinking"`
	Models          map[string]ModelConfig    `json:"models" toml:"models"`
	Providers       map[string]ProviderConfig `json:"providers" toml:"providers"`
}

func defaultConfig() Config {
	return Config{
		DefaultModel: DefaultModel,
		Models:       map[string]ModelConfig{},
		Providers:    map[string]ProviderConfig{},
	}
}

// ConfigDir returns the runtime's config directory (~/.kimi)
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".kimi"), nil
}

// LoadConfig reads the runtime configuration: config.toml when present,
// legacy config.json otherwise, documented defaults when neither exists.
// A malformed file is a hard error; silently defaulting would risk talking to
// the wrong model or provider.
func LoadConfig() (Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()

	tomlPath := filepath.Join(dir, "config.toml")
	if data, err := os.ReadFile(tomlPath); err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid config %s: %w", tomlPath, err)
		}
		return normalized(cfg), nil
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to read %s: %w", tomlPath, err)
	}

	jsonPath := filepath.Join(dir, "config.json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid config %s: %w", jsonPath, err)
		}
		return normalized(cfg), nil
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to read %s: %w", jsonPath, err)
	}

	return cfg, nil
}

func normalized(cfg Config) Config {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.Models == nil {
		cfg.Models = map[string]ModelConfig{}
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	return cfg
}
