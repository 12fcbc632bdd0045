package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"zarz/internal/fileutil"
)

// Load loads configuration from path (or the default location when path
// is empty) and then applies environment overrides. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath()
	}
	cfg.path = path

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Dir returns the zarz configuration directory: $ZARZ_HOME, or ~/.zarz.
func Dir() string {
	if home := os.Getenv("ZARZ_HOME"); home != "" {
		return home
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".zarz"
	}
	return filepath.Join(homeDir, ".zarz")
}

// DefaultConfigPath returns the path of config.yaml inside Dir.
func DefaultConfigPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// SessionsDir returns where conversation snapshots are stored.
func SessionsDir() string {
	return filepath.Join(Dir(), "sessions")
}

func defaultMCPPath() string {
	return filepath.Join(Dir(), "mcp.json")
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("ZARZ_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("ZARZ_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("ZARZ_SYSTEM_PROMPT"); v != "" {
		cfg.SystemPrompt = v
	}
	if v := os.Getenv("ZARZ_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ZARZ_MAX_OUTPUT_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ZARZ_MAX_OUTPUT_TOKENS %q: %w", v, err)
		}
		cfg.MaxOutputTokens = n
	}
	if v := os.Getenv("ZARZ_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid ZARZ_TEMPERATURE %q: %w", v, err)
		}
		cfg.Temperature = f
	}

	keys := []struct {
		env      string
		provider string
	}{
		{"ANTHROPIC_API_KEY", ProviderAnthropic},
		{"OPENAI_API_KEY", ProviderOpenAI},
		{"GLM_API_KEY", ProviderGLM},
		{"GEMINI_API_KEY", ProviderGemini},
		{"OLLAMA_API_KEY", ProviderOllama},
	}
	for _, k := range keys {
		if v := os.Getenv(k.env); v != "" {
			cfg.SetAPIKey(k.provider, v)
		}
	}

	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		cfg.API.OllamaBaseURL = host
	}
	return nil
}

// Save writes the configuration back to the file it was loaded from.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = DefaultConfigPath()
	}

	// 0700: the config may contain API keys
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := fileutil.AtomicWrite(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	c.path = path
	return nil
}
