package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig             `toml:"general"`
	LLM           LLMConfig                 `toml:"llm"`
	Providers     map[string]ProviderConfig `toml:"providers"`
	Notifications NotificationsConfig       `toml:"notifications"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	WorkflowsDir         string `toml:"workflows_dir"`
	DatabasePath         string `toml:"database_path"`
	MaxParallelWorkflows int    `toml:"max_parallel_workflows"`
}

// LLMConfig holds generation-service resilience settings
type LLMConfig struct {
	DefaultProvider    string `toml:"default_provider"`
	FallbackProvider   string `toml:"fallback_provider"`
	MaxRetries         int    `toml:"max_retries"`
	BackoffBaseMs      int    `toml:"backoff_base_ms"`
	BackoffMaxMs       int    `toml:"backoff_max_ms"`
	RequestTimeoutSecs int    `toml:"request_timeout_secs"`
}

// ProviderConfig holds one backend's settings. The API key is resolved from
// the named environment variable, never stored in the file.
type ProviderConfig struct {
	Model       string  `toml:"model"`
	APIKeyEnv   string  `toml:"api_key_env"`
	BaseURL     string  `toml:"base_url"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			WorkflowsDir:         filepath.Join(home, ".planforge", "workflows"),
			DatabasePath:         filepath.Join(home, ".planforge", "planforge.db"),
			MaxParallelWorkflows: 4,
		},
		LLM: LLMConfig{
			DefaultProvider:    "anthropic",
			FallbackProvider:   "openai",
			MaxRetries:         2,
			BackoffBaseMs:      500,
			BackoffMaxMs:       8000,
			RequestTimeoutSecs: 120,
		},
		Providers: map[string]ProviderConfig{
			"anthropic": {
				Model:       "claude-sonnet-4-20250514",
				APIKeyEnv:   "ANTHROPIC_API_KEY",
				Temperature: 0.2,
				MaxTokens:   8192,
			},
			"openai": {
				Model:       "gpt-4o",
				APIKeyEnv:   "OPENAI_API_KEY",
				Temperature: 0.2,
				MaxTokens:   8192,
			},
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.WorkflowsDir = ExpandPath(cfg.General.WorkflowsDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)

	return cfg, nil
}

// Save writes the configuration to a TOML file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// APIKey resolves a provider's API key from its configured environment
// variable
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "planforge", "config.toml")
}
