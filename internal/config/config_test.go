package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"zarz/internal/mcp"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ZARZ_PROVIDER", "ZARZ_MODEL", "ZARZ_SYSTEM_PROMPT", "ZARZ_LOG_LEVEL",
		"ZARZ_MAX_OUTPUT_TOKENS", "ZARZ_TEMPERATURE",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GLM_API_KEY", "GEMINI_API_KEY",
		"OLLAMA_API_KEY", "OLLAMA_HOST",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Provider != ProviderAnthropic {
		t.Errorf("Provider = %q, want %q", cfg.Provider, ProviderAnthropic)
	}
	if cfg.ResolvedModel() != "claude-sonnet-4-5-20250929" {
		t.Errorf("ResolvedModel() = %q", cfg.ResolvedModel())
	}
	if cfg.Agent.MaxMCPCalls != DefaultMaxMCPCalls {
		t.Errorf("MaxMCPCalls = %d, want %d", cfg.Agent.MaxMCPCalls, DefaultMaxMCPCalls)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_GLM_KEY", "from-expand")
	t.Setenv("ZARZ_MODEL", "glm-env")
	t.Setenv("ZARZ_TEMPERATURE", "0.9")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `provider: glm
model: glm-file
max_output_tokens: 2048
api:
  glm_key: ${TEST_GLM_KEY}
agent:
  max_tool_rounds: 7
exec:
  yield_time: 2s
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Provider != ProviderGLM {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.Model != "glm-env" {
		t.Errorf("Model = %q, want env override", cfg.Model)
	}
	if cfg.MaxOutputTokens != 2048 {
		t.Errorf("MaxOutputTokens = %d", cfg.MaxOutputTokens)
	}
	if cfg.Temperature != 0.9 {
		t.Errorf("Temperature = %v", cfg.Temperature)
	}
	if cfg.APIKey(ProviderGLM) != "from-expand" {
		t.Errorf("GLM key = %q", cfg.APIKey(ProviderGLM))
	}
	if cfg.Agent.MaxToolRounds != 7 {
		t.Errorf("MaxToolRounds = %d", cfg.Agent.MaxToolRounds)
	}
	// Unset fields keep their defaults.
	if cfg.Agent.BashRepeatLimit != DefaultBashRepeatLimit {
		t.Errorf("BashRepeatLimit = %d", cfg.Agent.BashRepeatLimit)
	}
	if cfg.Exec.YieldTime != 2*time.Second {
		t.Errorf("YieldTime = %v", cfg.Exec.YieldTime)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ZARZ_MAX_OUTPUT_TOKENS", "lots")

	if _, err := Load(filepath.Join(t.TempDir(), "config.yaml")); err == nil {
		t.Fatal("expected error for non-numeric ZARZ_MAX_OUTPUT_TOKENS")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Provider = ProviderOpenAI
	cfg.SetAPIKey(ProviderOpenAI, "sk-test")
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Provider != ProviderOpenAI || loaded.APIKey(ProviderOpenAI) != "sk-test" {
		t.Errorf("loaded provider=%q key=%q", loaded.Provider, loaded.APIKey(ProviderOpenAI))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"valid", func(c *Config) {}, nil},
		{"unknown provider", func(c *Config) { c.Provider = "bard" }, ErrUnknownProvider},
		{"missing key", func(c *Config) { c.API.AnthropicKey = "" }, ErrMissingAPIKey},
		{"ollama needs no key", func(c *Config) { c.Provider = ProviderOllama; c.API.AnthropicKey = "" }, nil},
		{"zero tokens", func(c *Config) { c.MaxOutputTokens = 0 }, ErrInvalidMaxTokens},
		{"hot", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"effort", func(c *Config) { c.ReasoningEffort = "extreme" }, ErrInvalidReasoningEffort},
		{"rounds", func(c *Config) { c.Agent.MaxToolRounds = 0 }, ErrInvalidToolRounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.API.AnthropicKey = "key"
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDirHonorsZarzHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ZARZ_HOME", home)

	if Dir() != home {
		t.Errorf("Dir() = %q, want %q", Dir(), home)
	}
	if got := DefaultConfig().MCPConfigPath(); got != filepath.Join(home, "mcp.json") {
		t.Errorf("MCPConfigPath() = %q", got)
	}
	if SessionsDir() != filepath.Join(home, "sessions") {
		t.Errorf("SessionsDir() = %q", SessionsDir())
	}
}

func TestMCPStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")

	store, err := LoadMCPStore(path)
	if err != nil {
		t.Fatalf("LoadMCPStore() on missing file error = %v", err)
	}
	if len(store.Names()) != 0 {
		t.Fatalf("expected empty store, got %v", store.Names())
	}

	if err := store.Add("files", mcp.StdioServer("npx", []string{"-y", "server-fs"}, nil)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := store.Add("api", mcp.HTTPServer("https://example.com/mcp", map[string]string{"Authorization": "Bearer x"})); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := store.Add("", mcp.StdioServer("x", nil, nil)); err == nil {
		t.Error("Add() with empty name should fail")
	}
	if err := store.Add("broken", mcp.ServerConfig{}); err == nil {
		t.Error("Add() with invalid config should fail")
	}
	if err := store.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded, err := LoadMCPStore(path)
	if err != nil {
		t.Fatal(err)
	}
	names := reloaded.Names()
	if len(names) != 2 || names[0] != "api" || names[1] != "files" {
		t.Fatalf("Names() = %v", names)
	}
	got, ok := reloaded.Get("files")
	if !ok || !got.Equal(mcp.StdioServer("npx", []string{"-y", "server-fs"}, nil)) {
		t.Errorf("Get(files) = %+v, %v", got, ok)
	}

	if !reloaded.Remove("api") {
		t.Error("Remove(api) = false")
	}
	if reloaded.Remove("api") {
		t.Error("second Remove(api) = true")
	}
	if len(reloaded.Servers()) != 1 {
		t.Errorf("Servers() = %v", reloaded.Servers())
	}
}

func TestMCPStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMCPStore(path); err == nil {
		t.Fatal("expected parse error")
	}
}
