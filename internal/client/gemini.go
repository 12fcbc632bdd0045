package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"zarz/internal/logging"
	"zarz/internal/tools"
)

// GeminiProvider wraps the Google Gemini API.
type GeminiProvider struct {
	client *genai.Client
	name   string
}

// NewGeminiProvider creates a Gemini provider using an API key.
func NewGeminiProvider(ctx context.Context, cfg ProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key required (set GEMINI_API_KEY or api.gemini_key)")
	}

	clientConfig := &genai.ClientConfig{
		Backend:    genai.BackendGeminiAPI,
		APIKey:     cfg.APIKey,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	c, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: c, name: "gemini"}, nil
}

func (p *GeminiProvider) Name() string     { return p.name }
func (p *GeminiProvider) Dialect() Dialect { return DialectToolRole }

// Complete sends one GenerateContent request.
func (p *GeminiProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	system, turns := splitSystem(req, DialectToolRole)

	// Gemini restricts function names; map the sanitized form back.
	names := make(map[string]string, len(req.Tools))
	var decls []*genai.FunctionDeclaration
	for _, s := range req.Tools {
		fn := sanitizeFunctionName(s.Name)
		names[fn] = s.Name
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        fn,
			Description: s.Description,
			Parameters:  convertSchemaToGemini(s.InputSchema),
		})
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:     Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxOutputTokens),
	}
	if system != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if len(decls) > 0 {
		genConfig.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	contents := geminiContents(turns)
	logging.Debug("gemini request", "model", req.Model, "contents", len(contents), "tools", len(decls))

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, genConfig)
	if err != nil {
		return nil, wrapSDKError(p.name, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return &CompletionResponse{}, nil
	}

	cand := resp.Candidates[0]
	out := &CompletionResponse{StopReason: string(cand.FinishReason)}
	var text []string
	for _, part := range cand.Content.Parts {
		if part.Thought {
			continue
		}
		if part.Text != "" {
			text = append(text, part.Text)
		}
		if fc := part.FunctionCall; fc != nil {
			name := fc.Name
			if original, ok := names[name]; ok {
				name = original
			}
			id := fc.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			out.ToolCalls = append(out.ToolCalls, tools.ToolCall{
				ID:    id,
				Name:  name,
				Input: mustJSON(fc.Args),
			})
		}
	}
	out.Text = strings.Join(text, "")
	return out, nil
}

func geminiContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if t.Text != "" {
				content.Parts = append(content.Parts, genai.NewPartFromText(t.Text))
			}
			for _, c := range t.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   c.ID,
						Name: sanitizeFunctionName(c.Name),
						Args: argsMap(c.Input),
					},
				})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}

		case RoleTool:
			content := &genai.Content{Role: genai.RoleUser}
			for _, r := range t.Results {
				key := "output"
				if r.IsError {
					key = "error"
				}
				part := genai.NewPartFromFunctionResponse(sanitizeFunctionName(r.Name), map[string]any{key: r.Content})
				part.FunctionResponse.ID = r.CallID
				content.Parts = append(content.Parts, part)
			}
			contents = append(contents, content)

		default:
			contents = append(contents, genai.NewContentFromText(t.Text, genai.RoleUser))
		}
	}
	return contents
}

// convertSchemaToGemini converts a JSON Schema map to a Gemini Schema.
func convertSchemaToGemini(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	out := &genai.Schema{}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}

	typ, _ := schema["type"].(string)
	switch typ {
	case "string":
		out.Type = genai.TypeString
		out.Enum = stringList(schema["enum"])
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
		if items, ok := schema["items"].(map[string]any); ok {
			out.Items = convertSchemaToGemini(items)
		} else {
			// Gemini rejects arrays without items.
			out.Items = &genai.Schema{Type: genai.TypeString}
		}
	case "object":
		out.Type = genai.TypeObject
		if props, ok := schema["properties"].(map[string]any); ok && len(props) > 0 {
			out.Properties = make(map[string]*genai.Schema, len(props))
			for name, prop := range props {
				if p, ok := prop.(map[string]any); ok {
					out.Properties[name] = convertSchemaToGemini(p)
				}
			}
		}
		out.Required = stringList(schema["required"])
	default:
		// Default to string for unknown types
		out.Type = genai.TypeString
	}

	return out
}

// sanitizeFunctionName ensures the function name is valid for Gemini.
// Gemini function names must match: [a-zA-Z_][a-zA-Z0-9_]*
func sanitizeFunctionName(name string) string {
	if name == "" {
		return "unnamed_tool"
	}

	result := make([]byte, 0, len(name))
	for i, c := range name {
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' {
			result = append(result, byte(c))
		} else if c >= '0' && c <= '9' {
			if i == 0 {
				// Numbers can't be first character
				result = append(result, '_')
			}
			result = append(result, byte(c))
		} else if c == '-' || c == '.' || c == ' ' {
			// Convert common separators to underscores
			result = append(result, '_')
		}
		// Skip other characters
	}

	if len(result) == 0 {
		return "unnamed_tool"
	}

	return string(result)
}
