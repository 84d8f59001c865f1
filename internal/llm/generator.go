// Package llm abstracts the turn generator that decides what the voicebot
// says or does next.
package llm

import (
	"context"
	"encoding/json"

	"voicebot-platform/internal/tools"
)

// Message is one entry of the conversation handed to the generator.
type Message struct {
	// Role is one of "system", "user", "assistant", "tool".
	Role    string
	Content string

	// ToolCall echoes an assistant tool-call turn.
	ToolCall *ToolCall
	// ToolCallID correlates a tool-result turn with its call.
	ToolCallID string
}

// ToolCall is a generator request to run one catalog tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Output is the generator's decision for one exchange: either words to
// speak or a single tool call, never both.
type Output struct {
	Text     string
	ToolCall *ToolCall

	// EndCall reports that the generator considers the conversation done
	// and the call should wrap up after speaking Text.
	EndCall bool
}

// Generator produces the next assistant action. Implementations must not
// retry internally; the call engine owns retry and timeout policy.
type Generator interface {
	Generate(ctx context.Context, msgs []Message, defs []tools.Definition) (Output, error)
}
