package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"

	"zarz/internal/logging"
	"zarz/internal/tools"
)

// OllamaProvider talks to a local or remote Ollama server.
type OllamaProvider struct {
	client *api.Client
	name   string
}

// authTransport adds Authorization header to HTTP requests.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(reqClone)
}

// NewOllamaProvider creates an Ollama provider. The API key is optional
// and only needed for servers behind authentication.
func NewOllamaProvider(cfg ProviderConfig) (*OllamaProvider, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = "http://localhost:11434"
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	baseURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL %q: %w", raw, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.APIKey != "" {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		httpClient = &http.Client{
			Timeout:   httpClient.Timeout,
			Transport: &authTransport{base: base, apiKey: cfg.APIKey},
		}
	}

	return &OllamaProvider{client: api.NewClient(baseURL, httpClient), name: "ollama"}, nil
}

func (p *OllamaProvider) Name() string     { return p.name }
func (p *OllamaProvider) Dialect() Dialect { return DialectToolRole }

// Complete sends one non-streaming chat request.
func (p *OllamaProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	system, turns := splitSystem(req, DialectToolRole)

	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: ollamaMessages(system, turns),
		Stream:   Ptr(false),
		Options: map[string]any{
			"num_predict": req.MaxOutputTokens,
			"temperature": req.Temperature,
		},
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ollamaTools(req.Tools)
	}

	logging.Debug("ollama request", "model", req.Model, "messages", len(chatReq.Messages), "tools", len(chatReq.Tools))

	out := &CompletionResponse{}
	var text strings.Builder
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		for _, tc := range resp.Message.ToolCalls {
			id := tc.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			out.ToolCalls = append(out.ToolCalls, tools.ToolCall{
				ID:    id,
				Name:  tc.Function.Name,
				Input: mustJSON(tc.Function.Arguments.ToMap()),
			})
		}
		if resp.Done {
			out.StopReason = resp.DoneReason
		}
		return nil
	})
	if err != nil {
		return nil, wrapSDKError(p.name, err)
	}
	out.Text = text.String()
	return out, nil
}

func ollamaMessages(system string, turns []Turn) []api.Message {
	var msgs []api.Message
	if system != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: system})
	}

	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			msg := api.Message{Role: "assistant", Content: t.Text}
			for i, c := range t.ToolCalls {
				args := api.NewToolCallFunctionArguments()
				for k, v := range argsMap(c.Input) {
					args.Set(k, v)
				}
				msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
					ID: c.ID,
					Function: api.ToolCallFunction{
						Index:     i,
						Name:      c.Name,
						Arguments: args,
					},
				})
			}
			msgs = append(msgs, msg)

		case RoleTool:
			for _, r := range t.Results {
				msgs = append(msgs, api.Message{Role: "tool", Content: r.Content})
			}

		default:
			msgs = append(msgs, api.Message{Role: "user", Content: t.Text})
		}
	}
	return msgs
}

func ollamaTools(specs []tools.ToolSpec) []api.Tool {
	out := make([]api.Tool, 0, len(specs))
	for _, s := range specs {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Required:   stringList(s.InputSchema["required"]),
			Properties: api.NewToolPropertiesMap(),
		}

		props, _ := s.InputSchema["properties"].(map[string]any)
		for name, raw := range props {
			schema, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			prop := api.ToolProperty{}
			if desc, ok := schema["description"].(string); ok {
				prop.Description = desc
			}
			if typ, ok := schema["type"].(string); ok {
				prop.Type = api.PropertyType{typ}
			}
			if enum, ok := schema["enum"].([]any); ok {
				prop.Enum = enum
			}
			params.Properties.Set(name, prop)
		}

		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
