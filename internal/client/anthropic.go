package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"zarz/internal/logging"
	"zarz/internal/tools"
)

// ProviderConfig holds what every adapter needs to reach its API.
type ProviderConfig struct {
	Name       string // provider name reported by Name()
	APIKey     string
	BaseURL    string // empty means the SDK default
	HTTPClient *http.Client
}

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	name   string
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(cfg ProviderConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key required (set ANTHROPIC_API_KEY or api.anthropic_key)")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	// Retries are handled by WithRetry.
	opts = append(opts, option.WithMaxRetries(0))

	c := anthropic.NewClient(opts...)
	name := cfg.Name
	if name == "" {
		name = "anthropic"
	}
	return &AnthropicProvider{client: &c, name: name}, nil
}

func (p *AnthropicProvider) Name() string     { return p.name }
func (p *AnthropicProvider) Dialect() Dialect { return DialectAnthropic }

// Complete sends one Messages request.
func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	system, turns := splitSystem(req, DialectAnthropic)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxOutputTokens),
		Messages:    anthropicMessages(turns),
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = anthropicTools(req.Tools)
	}

	logging.Debug("anthropic request", "model", req.Model, "messages", len(params.Messages), "tools", len(params.Tools))

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapSDKError(p.name, err)
	}

	out := &CompletionResponse{StopReason: string(resp.StopReason)}
	var text []string
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text = append(text, b.Text)
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, tools.ToolCall{
				ID:    b.ID,
				Name:  b.Name,
				Input: inputJSON(b.Input),
			})
		}
	}
	out.Text = strings.Join(text, "")
	return out, nil
}

func anthropicMessages(turns []Turn) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if t.Text != "" {
				content = append(content, anthropic.ContentBlockParamUnion{
					OfText: &anthropic.TextBlockParam{Text: t.Text},
				})
			}
			for _, c := range t.ToolCalls {
				content = append(content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    c.ID,
						Name:  c.Name,
						Input: inputJSON(c.Input),
					},
				})
			}
			if len(content) == 0 {
				continue
			}
			msgs = append(msgs, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: content,
			})

		case RoleTool:
			content := make([]anthropic.ContentBlockParamUnion, 0, len(t.Results))
			for _, r := range t.Results {
				content = append(content, anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: r.CallID,
						Content: []anthropic.ToolResultBlockParamContentUnion{{
							OfText: &anthropic.TextBlockParam{Text: r.Content},
						}},
						IsError: anthropic.Bool(r.IsError),
					},
				})
			}
			msgs = append(msgs, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: content,
			})

		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
		}
	}
	return msgs
}

func anthropicTools(specs []tools.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		schema := anthropic.ToolInputSchemaParam{
			Properties: s.InputSchema["properties"],
		}
		if required := stringList(s.InputSchema["required"]); len(required) > 0 {
			schema.Required = required
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        s.Name,
				Description: anthropic.String(s.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

// stringList accepts []string or the []any produced by JSON decoding.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
