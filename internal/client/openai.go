package client

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"zarz/internal/logging"
	"zarz/internal/tools"
)

// OpenAIProvider talks to an OpenAI-compatible Chat Completions API.
// GLM uses it with its own base URL.
type OpenAIProvider struct {
	client *openai.Client
	name   string
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key required", name)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	opts = append(opts, option.WithMaxRetries(0))

	c := openai.NewClient(opts...)
	return &OpenAIProvider{client: &c, name: name}, nil
}

func (p *OpenAIProvider) Name() string     { return p.name }
func (p *OpenAIProvider) Dialect() Dialect { return DialectToolRole }

// Complete sends one chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	system, turns := splitSystem(req, DialectToolRole)

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(req.Model),
		Messages:            openaiMessages(system, turns),
		MaxCompletionTokens: openai.Int(int64(req.MaxOutputTokens)),
		Temperature:         openai.Float(req.Temperature),
	}
	if len(req.Tools) > 0 {
		params.Tools = openaiTools(req.Tools)
	}
	if req.ReasoningEffort != "" {
		params.ReasoningEffort = openai.ReasoningEffort(req.ReasoningEffort)
	}

	logging.Debug("chat completion request", "provider", p.name, "model", req.Model, "messages", len(params.Messages), "tools", len(params.Tools))

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapSDKError(p.name, err)
	}
	if len(resp.Choices) == 0 {
		return &CompletionResponse{}, nil
	}

	choice := resp.Choices[0]
	out := &CompletionResponse{
		Text:       choice.Message.Content,
		StopReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, tools.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: argumentsJSON(tc.Function.Arguments),
		})
	}
	return out, nil
}

func openaiMessages(system string, turns []Turn) []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}

	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			assistant := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: t.Text,
			}
			for _, c := range t.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnion{
					ID:   c.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{
						Name:      c.Name,
						Arguments: string(inputJSON(c.Input)),
					},
				})
			}
			msgs = append(msgs, assistant.ToParam())

		case RoleTool:
			for _, r := range t.Results {
				msgs = append(msgs, openai.ToolMessage(r.Content, r.CallID))
			}

		default:
			msgs = append(msgs, openai.UserMessage(t.Text))
		}
	}
	return msgs
}

func openaiTools(specs []tools.ToolSpec) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, s := range specs {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        s.Name,
			Description: openai.String(s.Description),
			Parameters:  openai.FunctionParameters(s.InputSchema),
		}))
	}
	return out
}
