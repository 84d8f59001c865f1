package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"voicebot-platform/internal/audit"
)

// Registry is the closed tool catalog. Invoke is the single entry point
// for running a tool; it validates, deduplicates, audits, then dispatches.
type Registry struct {
	auditSvc *audit.Service
	dedup    DedupStore

	entries map[string]*entry
	order   []string
}

type entry struct {
	tool     Tool
	compiled *jsonschema.Schema
	// hidden tools are invocable but never advertised to the turn
	// generator. The engine drives them directly.
	hidden bool
}

func NewRegistry(auditSvc *audit.Service, dedup DedupStore) *Registry {
	return &Registry{
		auditSvc: auditSvc,
		dedup:    dedup,
		entries:  make(map[string]*entry),
	}
}

// Register adds a tool to the catalog and advertises it to the generator.
func (r *Registry) Register(t Tool) error {
	return r.register(t, false)
}

// RegisterHidden adds a tool the engine may invoke but the generator
// never sees.
func (r *Registry) RegisterHidden(t Tool) error {
	return r.register(t, true)
}

func (r *Registry) register(t Tool, hidden bool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tools: tool name is required")
	}
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("tools: duplicate tool %q", name)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(t.Schema()))
	if err != nil {
		return fmt.Errorf("tools: schema for %q: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	url := "tool:///" + name + ".json"
	if err := compiler.AddResource(url, doc); err != nil {
		return fmt.Errorf("tools: schema for %q: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("tools: schema for %q: %w", name, err)
	}

	r.entries[name] = &entry{tool: t, compiled: compiled, hidden: hidden}
	r.order = append(r.order, name)
	return nil
}

// Definitions lists the advertised tools in registration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		if e.hidden {
			continue
		}
		out = append(out, Definition{
			Name:        name,
			Description: e.tool.Description(),
			Schema:      e.tool.Schema(),
		})
	}
	return out
}

// DedupToken derives the idempotency token for an effectful invocation.
// A retried turn lands on the same (call, step, tool) triple and replays
// the stored result.
func DedupToken(call CallContext, tool string) string {
	return call.CallID + ":" + call.Step + ":" + tool
}

// Invoke runs one tool. Every attempt, including rejected ones, leaves
// exactly one audit entry.
func (r *Registry) Invoke(ctx context.Context, call CallContext, name string, args json.RawMessage) (Result, error) {
	e, ok := r.entries[name]
	if !ok {
		if err := r.recordAttempt(ctx, call, name, "error", map[string]any{"error": "unknown tool"}); err != nil {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	if err := r.validate(e, args); err != nil {
		if auditErr := r.recordAttempt(ctx, call, name, "error", map[string]any{"error": err.Error()}); auditErr != nil {
			return Result{}, auditErr
		}
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	token := ""
	if e.tool.Class() == ClassEffectful {
		token = DedupToken(call, name)
		stored, err := r.dedup.Get(ctx, token)
		if err == nil {
			// Replay only the invocation that was stored. The same token
			// with different arguments is a fault, not a retry.
			if !SameArguments(stored.Arguments, args) {
				if auditErr := r.recordAttempt(ctx, call, name, "error", map[string]any{"token": token, "error": "token reused with different arguments"}); auditErr != nil {
					return Result{}, auditErr
				}
				return Result{}, fmt.Errorf("%w: %q", ErrDedupConflict, token)
			}
			if auditErr := r.recordAttempt(ctx, call, name, "deduplicated", map[string]any{"token": token}); auditErr != nil {
				return Result{}, auditErr
			}
			return stored.Result, nil
		}
		if !errors.Is(err, ErrDedupMiss) {
			return Result{}, err
		}
	}

	res, err := e.tool.Invoke(ctx, call, args)
	if err != nil {
		if auditErr := r.recordAttempt(ctx, call, name, "error", map[string]any{"error": err.Error()}); auditErr != nil {
			return Result{}, auditErr
		}
		return Result{}, err
	}

	if token != "" {
		if err := r.dedup.Put(ctx, token, Invocation{Arguments: args, Result: res}); err != nil {
			return Result{}, err
		}
	}
	meta := map[string]any{}
	if token != "" {
		meta["token"] = token
	}
	if err := r.recordAttempt(ctx, call, name, "ok", meta); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (r *Registry) validate(e *entry, args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %v", err)
	}
	return e.compiled.Validate(doc)
}

func (r *Registry) recordAttempt(ctx context.Context, call CallContext, tool, outcome string, metadata map[string]any) error {
	return r.auditSvc.RecordToolAttempt(ctx, call.CallID, tool, audit.EntityTool, tool, outcome, metadata)
}
