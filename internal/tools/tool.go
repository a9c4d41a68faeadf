package tools

import (
	"context"
)

// Tool defines the interface for all engine capabilities.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// Registry manages the set of available tools.
type Registry struct {
	Tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		Tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) {
	if _, ok := r.Tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Subset returns the registered tools matching names, preserving
// registration order. An empty names list means every registered tool.
func (r *Registry) Subset(names []string) []Tool {
	if len(names) == 0 {
		out := make([]Tool, 0, len(r.order))
		for _, n := range r.order {
			out = append(out, r.Tools[n])
		}
		return out
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Tool
	for _, n := range r.order {
		if want[n] {
			out = append(out, r.Tools[n])
		}
	}
	return out
}
