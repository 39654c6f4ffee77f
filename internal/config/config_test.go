package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.General.MaxParallelWorkflows != 4 {
		t.Errorf("MaxParallelWorkflows = %d, want 4", cfg.General.MaxParallelWorkflows)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Errorf("DefaultProvider = %q, want anthropic", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.FallbackProvider != "openai" {
		t.Errorf("FallbackProvider = %q, want openai", cfg.LLM.FallbackProvider)
	}
	if _, ok := cfg.Providers["anthropic"]; !ok {
		t.Error("anthropic provider missing from defaults")
	}
	if _, ok := cfg.Providers["openai"]; !ok {
		t.Error("openai provider missing from defaults")
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[general]
workflows_dir = "/test/workflows"
max_parallel_workflows = 8

[llm]
default_provider = "openai"
max_retries = 5

[providers.openai]
model = "gpt-4o-mini"
api_key_env = "MY_OPENAI_KEY"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.WorkflowsDir != "/test/workflows" {
		t.Errorf("WorkflowsDir = %q, want /test/workflows", cfg.General.WorkflowsDir)
	}
	if cfg.General.MaxParallelWorkflows != 8 {
		t.Errorf("MaxParallelWorkflows = %d, want 8", cfg.General.MaxParallelWorkflows)
	}
	if cfg.LLM.DefaultProvider != "openai" {
		t.Errorf("DefaultProvider = %q, want openai", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.LLM.MaxRetries)
	}
	if cfg.Providers["openai"].Model != "gpt-4o-mini" {
		t.Errorf("openai model = %q, want gpt-4o-mini", cfg.Providers["openai"].Model)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Errorf("DefaultProvider = %q, want anthropic", cfg.LLM.DefaultProvider)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	cfg := Default()
	cfg.General.MaxParallelWorkflows = 2
	cfg.Notifications.SlackWebhook = "https://hooks.slack.com/services/T/B/X"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.General.MaxParallelWorkflows != 2 {
		t.Errorf("MaxParallelWorkflows = %d, want 2", loaded.General.MaxParallelWorkflows)
	}
	if loaded.Notifications.SlackWebhook != cfg.Notifications.SlackWebhook {
		t.Errorf("SlackWebhook = %q, want %q", loaded.Notifications.SlackWebhook, cfg.Notifications.SlackWebhook)
	}
}

func TestProviderAPIKey(t *testing.T) {
	t.Setenv("PLANFORGE_TEST_KEY", "sk-test-123")

	p := ProviderConfig{APIKeyEnv: "PLANFORGE_TEST_KEY"}
	if got := p.APIKey(); got != "sk-test-123" {
		t.Errorf("APIKey() = %q, want sk-test-123", got)
	}

	empty := ProviderConfig{}
	if got := empty.APIKey(); got != "" {
		t.Errorf("APIKey() = %q, want empty", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
