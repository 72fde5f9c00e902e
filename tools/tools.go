// Package tools contains the research tools exposed to worker agents and
// the argument-coercion layer that guards them. Some models pass a list
// where a string is expected; the coercion helpers recover instead of
// failing the whole iteration.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/deepresearch/provider"
)

// ToolResult is the outcome of a tool execution. Failures are carried in
// the result (Success=false with an explanatory Content) so the agent loop
// can feed them back to the model as observations.
type ToolResult struct {
	Success  bool           `json:"success"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Tool is a capability a worker agent can invoke.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON Schema for the tool's parameters.
	Schema() map[string]any
	// Execute runs the tool. Argument problems and downstream failures
	// are reported in the ToolResult; the error return is reserved for
	// context cancellation.
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)
}

// Registry holds the tools available to an agent, in registration order.
type Registry struct {
	order  []Tool
	byName map[string]Tool
}

func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		r.order = append(r.order, t)
		r.byName[t.Name()] = t
	}
	return r
}

// Get returns the named tool, or nil if unknown.
func (r *Registry) Get(name string) Tool {
	return r.byName[name]
}

// Schemas returns the provider tool schemas in registration order.
func (r *Registry) Schemas() []provider.ToolSchema {
	out := make([]provider.ToolSchema, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, provider.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return out
}

// CoerceJoin returns the argument as a string. A list is joined with
// spaces, which keeps multi-part search queries usable. The coerced flag
// reports whether a list was flattened.
func CoerceJoin(v any) (value string, coerced bool, err error) {
	switch arg := v.(type) {
	case string:
		return arg, false, nil
	case []any:
		parts := make([]string, 0, len(arg))
		for _, p := range arg {
			if s := strings.TrimSpace(fmt.Sprint(p)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " "), true, nil
	case nil:
		return "", false, fmt.Errorf("argument is missing")
	default:
		return fmt.Sprint(arg), true, nil
	}
}

// CoerceFirst returns the argument as a string, taking the first element
// when the model passes a list. Used for URL arguments where joining
// would produce garbage.
func CoerceFirst(v any) (value string, coerced bool, err error) {
	switch arg := v.(type) {
	case string:
		return arg, false, nil
	case []any:
		if len(arg) == 0 {
			return "", true, fmt.Errorf("argument list is empty")
		}
		return fmt.Sprint(arg[0]), true, nil
	case nil:
		return "", false, fmt.Errorf("argument is missing")
	default:
		return fmt.Sprint(arg), true, nil
	}
}

// IntArg extracts an optional integer argument, tolerating the float64
// that encoding/json produces for numbers.
func IntArg(args map[string]any, key string, fallback int) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}
