package config

import (
	"fmt"
	"slices"
	"time"
)

// Config represents the main application configuration.
type Config struct {
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	Temperature     float64 `yaml:"temperature"`
	ReasoningEffort string  `yaml:"reasoning_effort,omitempty"` // low, medium, high (OpenAI reasoning models)
	SystemPrompt    string  `yaml:"system_prompt,omitempty"`    // replaces the built-in system prompt

	API     APIConfig     `yaml:"api"`
	Exec    ExecConfig    `yaml:"exec"`
	Tools   ToolsConfig   `yaml:"tools"`
	Agent   AgentConfig   `yaml:"agent"`
	MCP     MCPConfig     `yaml:"mcp"`
	Logging LoggingConfig `yaml:"logging"`

	// path is the file the config was loaded from and is saved to.
	path string `yaml:"-"`
}

// APIConfig holds provider credentials and endpoints.
type APIConfig struct {
	AnthropicKey string `yaml:"anthropic_key,omitempty"`
	OpenAIKey    string `yaml:"openai_key,omitempty"`
	GLMKey       string `yaml:"glm_key,omitempty"`
	GeminiKey    string `yaml:"gemini_key,omitempty"`
	OllamaKey    string `yaml:"ollama_key,omitempty"` // Optional, for remote Ollama servers with auth

	// Endpoint overrides; empty means the provider default.
	AnthropicBaseURL string `yaml:"anthropic_base_url,omitempty"`
	OpenAIBaseURL    string `yaml:"openai_base_url,omitempty"`
	GLMBaseURL       string `yaml:"glm_base_url,omitempty"`
	OllamaBaseURL    string `yaml:"ollama_base_url,omitempty"`

	Timeout time.Duration `yaml:"timeout"` // HTTP request timeout
	Retry   RetryConfig   `yaml:"retry"`
}

// RetryConfig holds retry settings for API calls.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"` // Maximum number of retry attempts (default: 3)
	RetryDelay time.Duration `yaml:"retry_delay"` // Initial delay between retries (default: 1s)
}

// ExecConfig holds shell execution settings.
type ExecConfig struct {
	Shell       string        `yaml:"shell"`        // exec_command shell (default: /bin/bash)
	Login       bool          `yaml:"login"`        // run exec_command shells with -l
	YieldTime   time.Duration `yaml:"yield_time"`   // default exec_command/write_stdin yield window
	BashTimeout time.Duration `yaml:"bash_timeout"` // timeout of one bash tool call
}

// ToolsConfig holds tool-related settings.
type ToolsConfig struct {
	DeniedPaths []string `yaml:"denied_paths"` // doublestar globs tools may not touch
}

// AgentConfig bounds the tool loop of one user turn.
type AgentConfig struct {
	MaxToolRounds     int  `yaml:"max_tool_rounds"`    // structured tool rounds per turn
	BashRepeatLimit   int  `yaml:"bash_repeat_limit"`  // runs of one literal command before it is refused
	MaxMCPCalls       int  `yaml:"max_mcp_calls"`      // CALL_MCP_TOOL requests per turn
	StructuredHistory bool `yaml:"structured_history"` // send history as tool-role messages instead of a transcript
}

// MCPConfig holds MCP (Model Context Protocol) settings.
type MCPConfig struct {
	Enabled    bool   `yaml:"enabled"`     // Enable/disable MCP support
	ConfigPath string `yaml:"config_path"` // mcp.json location (default: <config dir>/mcp.json)
	Watch      bool   `yaml:"watch"`       // reload servers when mcp.json changes
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // Logging level: debug, info, warn, error
}

// Supported provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGLM       = "glm"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// Providers lists the supported provider names.
var Providers = []string{ProviderAnthropic, ProviderOpenAI, ProviderGLM, ProviderGemini, ProviderOllama}

var defaultModels = map[string]string{
	ProviderAnthropic: "claude-sonnet-4-5-20250929",
	ProviderOpenAI:    "gpt-5-codex",
	ProviderGLM:       "glm-4.6",
	ProviderGemini:    "gemini-2.5-flash",
	ProviderOllama:    "llama3.1",
}

// DefaultModel returns the model used for provider when none is configured.
func DefaultModel(provider string) string {
	return defaultModels[provider]
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:        ProviderAnthropic,
		MaxOutputTokens: DefaultMaxOutputTokens,
		Temperature:     DefaultTemperature,
		API: APIConfig{
			Timeout: DefaultHTTPTimeout,
			Retry: RetryConfig{
				MaxRetries: DefaultMaxRetries,
				RetryDelay: DefaultRetryDelay,
			},
		},
		Exec: ExecConfig{
			Login:       true,
			YieldTime:   DefaultYieldTime,
			BashTimeout: DefaultBashTimeout,
		},
		Agent: AgentConfig{
			MaxToolRounds:   DefaultMaxToolRounds,
			BashRepeatLimit: DefaultBashRepeatLimit,
			MaxMCPCalls:     DefaultMaxMCPCalls,
		},
		MCP: MCPConfig{
			Enabled: true,
			Watch:   true,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// ResolvedModel returns the configured model or the provider default.
func (c *Config) ResolvedModel() string {
	if c.Model != "" {
		return c.Model
	}
	return DefaultModel(c.Provider)
}

// APIKey returns the credential configured for provider.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return c.API.AnthropicKey
	case ProviderOpenAI:
		return c.API.OpenAIKey
	case ProviderGLM:
		return c.API.GLMKey
	case ProviderGemini:
		return c.API.GeminiKey
	case ProviderOllama:
		return c.API.OllamaKey
	}
	return ""
}

// SetAPIKey sets the credential for provider.
func (c *Config) SetAPIKey(provider, key string) {
	switch provider {
	case ProviderAnthropic:
		c.API.AnthropicKey = key
	case ProviderOpenAI:
		c.API.OpenAIKey = key
	case ProviderGLM:
		c.API.GLMKey = key
	case ProviderGemini:
		c.API.GeminiKey = key
	case ProviderOllama:
		c.API.OllamaKey = key
	}
}

// Path returns the file the configuration is read from and saved to.
func (c *Config) Path() string {
	return c.path
}

// MCPConfigPath returns the location of mcp.json.
func (c *Config) MCPConfigPath() string {
	if c.MCP.ConfigPath != "" {
		return c.MCP.ConfigPath
	}
	return defaultMCPPath()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !slices.Contains(Providers, c.Provider) {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}
	if c.Provider != ProviderOllama && c.APIKey(c.Provider) == "" {
		return fmt.Errorf("%w for %s", ErrMissingAPIKey, c.Provider)
	}
	if c.MaxOutputTokens <= 0 {
		return ErrInvalidMaxTokens
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return ErrInvalidTemperature
	}
	switch c.ReasoningEffort {
	case "", "low", "medium", "high":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidReasoningEffort, c.ReasoningEffort)
	}
	if c.Agent.MaxToolRounds <= 0 {
		return ErrInvalidToolRounds
	}
	return nil
}

// Error types for configuration validation.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrUnknownProvider        ConfigError = "unknown provider (expected anthropic, openai, glm, gemini or ollama)"
	ErrMissingAPIKey          ConfigError = "missing API key"
	ErrInvalidMaxTokens       ConfigError = "max_output_tokens must be positive"
	ErrInvalidTemperature     ConfigError = "temperature must be between 0 and 2"
	ErrInvalidReasoningEffort ConfigError = "reasoning_effort must be low, medium or high"
	ErrInvalidToolRounds      ConfigError = "agent.max_tool_rounds must be positive"
)
