package app

// Observer receives live progress of a turn. Callbacks run on the
// goroutine driving the turn and should return quickly.
type Observer interface {
	// OnAssistantText is called with model prose as it is recorded.
	OnAssistantText(text string)

	// OnToolStart is called before a tool runs. command is the one-line
	// rendering of the request.
	OnToolStart(server, tool, command string)

	// OnToolResult is called with a preview of the tool output.
	OnToolResult(server, tool, preview string, isError bool)

	// OnWarning reports a non-fatal problem.
	OnWarning(msg string)

	// OnThinking is called with true before each completion request and
	// false once it returns.
	OnThinking(active bool)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnAssistantText(string)                    {}
func (NopObserver) OnToolStart(string, string, string)        {}
func (NopObserver) OnToolResult(string, string, string, bool) {}
func (NopObserver) OnWarning(string)                          {}
func (NopObserver) OnThinking(bool)                           {}
