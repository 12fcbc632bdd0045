package mcp

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// QualifiedPrefix starts every MCP tool name exposed to a model.
	QualifiedPrefix = "mcp__"

	maxToolNameLen   = 64
	truncatedNameLen = 55
)

// QualifyToolName builds the model-facing name for tool on server:
// mcp__<server>__<tool>, lowercased, with runes outside [a-z0-9_-]
// replaced by '_'. Names longer than 64 characters are cut to 55 and
// suffixed with '_' and eight hex digits of the SHA-256 of the full name.
func QualifyToolName(server, tool string) string {
	name := sanitizeName(QualifiedPrefix + server + "__" + tool)
	if len(name) <= maxToolNameLen {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	return name[:truncatedNameLen] + "_" + hex.EncodeToString(sum[:])[:8]
}

func sanitizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// SanitizeSchema normalizes a tool input schema into a top-level object
// schema. Nested schemas without a "type" get one inferred from their
// shape. additionalProperties keeps a boolean from the source and
// defaults to true.
func SanitizeSchema(schema map[string]any) map[string]any {
	properties := map[string]any{}
	if props, ok := schema["properties"].(map[string]any); ok {
		for name, prop := range props {
			properties[name] = sanitizeNode(prop)
		}
	}

	required := []string{}
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
	} else if req, ok := schema["required"].([]string); ok {
		required = append(required, req...)
	}

	additional := true
	if v, ok := schema["additionalProperties"].(bool); ok {
		additional = v
	}

	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": additional,
	}
}

func sanitizeNode(node any) any {
	obj, ok := node.(map[string]any)
	if !ok {
		return map[string]any{"type": "string"}
	}

	out := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		out[k] = v
	}
	if _, ok := out["type"]; !ok {
		out["type"] = inferType(obj)
	}

	if props, ok := obj["properties"].(map[string]any); ok {
		cleaned := make(map[string]any, len(props))
		for name, prop := range props {
			cleaned[name] = sanitizeNode(prop)
		}
		out["properties"] = cleaned
	}
	if items, ok := obj["items"]; ok {
		out["items"] = sanitizeNode(items)
	}
	return out
}

func inferType(obj map[string]any) string {
	if _, ok := obj["properties"]; ok {
		return "object"
	}
	if _, ok := obj["items"]; ok {
		return "array"
	}
	if enum, ok := obj["enum"].([]any); ok && len(enum) > 0 {
		switch enum[0].(type) {
		case bool:
			return "boolean"
		case float64, int, int64:
			return "number"
		case nil:
			return "null"
		default:
			return "string"
		}
	}
	return "string"
}
