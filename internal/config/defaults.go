package config

import "time"

// Default configuration values.
const (
	// Completion settings
	DefaultMaxOutputTokens = 4096
	DefaultTemperature     = 0.3

	// Retry settings
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultHTTPTimeout = 120 * time.Second

	// Exec settings
	DefaultYieldTime   = 250 * time.Millisecond
	DefaultBashTimeout = 120 * time.Second

	// Agent loop limits
	DefaultMaxToolRounds   = 25
	DefaultBashRepeatLimit = 10
	DefaultMaxMCPCalls     = 5
)

// Default endpoints per provider.
const (
	DefaultGLMBaseURL    = "https://api.z.ai/api/coding/paas/v4"
	DefaultOllamaBaseURL = "http://localhost:11434"
)
