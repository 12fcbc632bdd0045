package mcp

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// ServerKind identifies the transport variant of a ServerConfig.
type ServerKind string

const (
	KindStdio ServerKind = "stdio"
	KindHTTP  ServerKind = "http"
	KindSSE   ServerKind = "sse"
)

// ServerConfig describes how to reach one MCP server. Command, Args and Env
// apply to KindStdio; URL and Headers to KindHTTP and KindSSE.
type ServerConfig struct {
	Kind    ServerKind
	Command string
	Args    []string
	Env     map[string]string
	URL     string
	Headers map[string]string
}

// StdioServer returns a config that spawns command with args.
func StdioServer(command string, args []string, env map[string]string) ServerConfig {
	return ServerConfig{Kind: KindStdio, Command: command, Args: args, Env: env}
}

// HTTPServer returns a data-only HTTP server entry.
func HTTPServer(url string, headers map[string]string) ServerConfig {
	return ServerConfig{Kind: KindHTTP, URL: url, Headers: headers}
}

// SSEServer returns a data-only SSE server entry.
func SSEServer(url string, headers map[string]string) ServerConfig {
	return ServerConfig{Kind: KindSSE, URL: url, Headers: headers}
}

// Validate checks that the fields required by the variant are present.
func (c ServerConfig) Validate() error {
	switch c.Kind {
	case KindStdio:
		if c.Command == "" {
			return fmt.Errorf("stdio server requires a command")
		}
	case KindHTTP, KindSSE:
		if c.URL == "" {
			return fmt.Errorf("%s server requires a url", c.Kind)
		}
	default:
		return fmt.Errorf("unknown server type %q", c.Kind)
	}
	return nil
}

// Equal reports whether two configs describe the same server.
func (c ServerConfig) Equal(o ServerConfig) bool {
	return c.Kind == o.Kind &&
		c.Command == o.Command &&
		slices.Equal(c.Args, o.Args) &&
		maps.Equal(c.Env, o.Env) &&
		c.URL == o.URL &&
		maps.Equal(c.Headers, o.Headers)
}

type serverConfigJSON struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// MarshalJSON writes the untagged on-disk shape. SSE entries carry
// "type":"sse" since they are otherwise indistinguishable from HTTP.
func (c ServerConfig) MarshalJSON() ([]byte, error) {
	out := serverConfigJSON{}
	switch c.Kind {
	case KindStdio:
		out.Command, out.Args, out.Env = c.Command, c.Args, c.Env
	case KindHTTP:
		out.URL, out.Headers = c.URL, c.Headers
	case KindSSE:
		out.Type = string(KindSSE)
		out.URL, out.Headers = c.URL, c.Headers
	default:
		return nil, fmt.Errorf("unknown server type %q", c.Kind)
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the untagged shape; an explicit "type" wins.
func (c *ServerConfig) UnmarshalJSON(data []byte) error {
	var in serverConfigJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	kind := ServerKind(in.Type)
	if kind == "" {
		switch {
		case in.Command != "":
			kind = KindStdio
		case in.URL != "":
			kind = KindHTTP
		default:
			return fmt.Errorf("server entry needs either a command or a url")
		}
	}

	*c = ServerConfig{
		Kind:    kind,
		Command: in.Command,
		Args:    in.Args,
		Env:     in.Env,
		URL:     in.URL,
		Headers: in.Headers,
	}
	return c.Validate()
}
