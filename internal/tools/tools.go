// Package tools provides the tool registry and execution framework the
// conversation engine dispatches through. The actual tool servers
// (filesystem, sandbox, analyzers) live behind [Executor]; this package
// owns naming, categorization, and the structured error envelope.
package tools

import (
	"context"
	"fmt"

	"github.com/paperforge/paperforge/internal/llm"
)

// Handler executes one tool call. The returned string is the payload
// shown to the model; execution failures should be returned as errors
// and are converted to the structured error envelope by the caller.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool is one callable capability.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Category    Category
	Handler     Handler
}

// Executor is the capability the conversation engine consumes. A
// Registry implements it; tests substitute scripted fakes.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
	Categorize(name string) Category
}

// Registry holds the tools available to one agent loop.
type Registry struct {
	tools  []*Tool
	byName map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Tool)}
}

// Register adds a tool. Re-registering a name replaces the previous
// definition but keeps its original position in the schema list.
func (r *Registry) Register(t *Tool) {
	if prev, ok := r.byName[t.Name]; ok {
		for i, existing := range r.tools {
			if existing == prev {
				r.tools[i] = t
				break
			}
		}
	} else {
		r.tools = append(r.tools, t)
	}
	r.byName[t.Name] = t
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.byName[name]
}

// Schemas returns the tool definitions in registration order, ready to
// hand to an LLM request.
func (r *Registry) Schemas() []llm.ToolSchema {
	schemas := make([]llm.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		schemas = append(schemas, llm.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return schemas
}

// FilteredCopy returns a new registry containing only the named tools.
// Unknown names are ignored.
func (r *Registry) FilteredCopy(names []string) *Registry {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	out := NewRegistry()
	for _, t := range r.tools {
		if allowed[t.Name] {
			out.Register(t)
		}
	}
	return out
}

// Execute runs a tool by name. An unknown name returns
// [ErrToolUnavailable]; handler failures are returned as the structured
// error envelope with a nil error, so the loop folds them into guidance
// instead of unwinding.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool := r.byName[name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := tool.Handler(ctx, args)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	return result, nil
}

// Categorize returns the category of a registered tool, or
// CategoryOther for unknown names.
func (r *Registry) Categorize(name string) Category {
	if t := r.byName[name]; t != nil {
		return t.Category
	}
	return CategoryOther
}

// StringArg extracts a required string argument.
func StringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}
