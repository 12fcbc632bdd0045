package unifiedexec

import (
	"fmt"
	"strings"
	"time"
)

// Response is the result of ExecCommand or WriteStdin. Exactly one of
// ExitCode and SessionID is set.
type Response struct {
	Output    string
	SessionID *int32
	ExitCode  *int
	WallTime  time.Duration
}

// Display renders the response in the form handed back to the model.
func (r *Response) Display() string {
	sections := []string{fmt.Sprintf("Wall time: %.3f seconds", r.WallTime.Seconds())}
	if r.ExitCode != nil {
		sections = append(sections, fmt.Sprintf("Exit code: %d", *r.ExitCode))
	}
	if r.SessionID != nil {
		sections = append(sections, fmt.Sprintf("Session ID: %d (still running)", *r.SessionID))
	}
	sections = append(sections, "Output:")
	if r.Output == "" {
		sections = append(sections, "(no output)")
	} else {
		sections = append(sections, r.Output)
	}
	return strings.Join(sections, "\n")
}
