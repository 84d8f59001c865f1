// Package tools holds the closed catalog of actions the call engine may
// take on behalf of a caller. Every invocation is schema-validated,
// audited, and (for effectful tools) deduplicated.
package tools

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrUnknownTool indicates a name outside the registered catalog.
	// The catalog is closed; nothing is invoked dynamically.
	ErrUnknownTool = errors.New("tools: unknown tool")

	// ErrInvalidArguments indicates the arguments failed schema validation.
	ErrInvalidArguments = errors.New("tools: invalid arguments")
)

// Class partitions tools by side effects.
type Class int

const (
	// ClassSafe tools only read; retries are harmless.
	ClassSafe Class = iota
	// ClassEffectful tools write; a retried turn must not apply them twice,
	// so invocations are deduplicated by (call id, step, tool).
	ClassEffectful
)

// CallContext identifies the call turn on whose behalf a tool runs.
type CallContext struct {
	CallID      string
	Step        string
	PhoneNumber string
}

// Result is a tool's successful output. Message is caller-facing wording
// material; Data is structured output for the engine.
type Result struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Tool is one catalog entry.
type Tool interface {
	Name() string
	Description() string
	// Schema is the JSON Schema for the tool's arguments.
	Schema() json.RawMessage
	Class() Class
	Invoke(ctx context.Context, call CallContext, args json.RawMessage) (Result, error)
}

// Definition is the advertisable shape of a tool, handed to the turn
// generator.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}
