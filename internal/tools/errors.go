package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrToolNotFound is returned by Registry.Execute for unregistered names.
var ErrToolNotFound = errors.New("unknown tool")

// ToolArgumentError reports arguments that do not match a tool's schema.
type ToolArgumentError struct {
	Tool string
	Err  error
}

func (e *ToolArgumentError) Error() string {
	return fmt.Sprintf("invalid %s arguments: %v", e.Tool, e.Err)
}

func (e *ToolArgumentError) Unwrap() error {
	return e.Err
}

// ToolExecutionError reports a tool that ran but could not do its job.
type ToolExecutionError struct {
	Tool    string
	Message string
}

func (e *ToolExecutionError) Error() string {
	return e.Message
}

func execErrorf(tool, format string, args ...any) error {
	return &ToolExecutionError{Tool: tool, Message: fmt.Sprintf(format, args...)}
}

// decodeArgs strictly decodes raw into dst. Empty and null input decode as
// an empty object.
func decodeArgs(tool string, raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &ToolArgumentError{Tool: tool, Err: err}
	}
	if dec.More() {
		return &ToolArgumentError{Tool: tool, Err: errors.New("trailing data after arguments")}
	}
	return nil
}

func missingField(tool, field string) error {
	return &ToolArgumentError{Tool: tool, Err: fmt.Errorf("missing field `%s`", field)}
}
