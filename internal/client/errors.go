package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v2"
	"google.golang.org/genai"
)

// APIError represents a provider error with an HTTP status code.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryableAPIError returns true if the API error has a retryable status code.
func IsRetryableAPIError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}

// IsRetryableError checks if an error is worth another attempt. Context
// cancellation never is: the caller gave up.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if IsRetryableAPIError(err) {
		return true
	}

	// String fallback only for untyped errors from third-party libraries
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"rate limit", "connection reset", "connection refused", "eof", "tls handshake"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// wrapSDKError converts the SDK-specific status errors into *APIError so
// retry decisions and messages are uniform across providers.
func wrapSDKError(provider string, err error) error {
	if err == nil {
		return nil
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return &APIError{Provider: provider, StatusCode: anthropicErr.StatusCode, Message: anthropicErr.Error()}
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return &APIError{Provider: provider, StatusCode: openaiErr.StatusCode, Message: openaiErr.Error()}
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return &APIError{Provider: provider, StatusCode: geminiErr.Code, Message: geminiErr.Message}
	}
	var ollamaErr api.StatusError
	if errors.As(err, &ollamaErr) {
		return &APIError{Provider: provider, StatusCode: ollamaErr.StatusCode, Message: ollamaErr.ErrorMessage}
	}
	return fmt.Errorf("%s request failed: %w", provider, err)
}
