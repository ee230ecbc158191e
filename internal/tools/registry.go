// Package tools defines the local function-calling surface exposed to the
// model: a registry of named tools, a dispatcher that executes call batches,
// and the booking-domain tool set.
package tools

import (
	"context"

	"github.com/hungnci/elevate-fitness/pkg/gemlive"
)

// Actor identifies who a tool call runs on behalf of. A zero Actor is an
// unauthenticated caller.
type Actor struct {
	ID string
}

// Authenticated reports whether the actor carries an identity.
func (a Actor) Authenticated() bool { return a.ID != "" }

// Handler executes one tool call. A returned error becomes an error payload
// in the tool result; it never aborts sibling calls.
type Handler func(ctx context.Context, actor Actor, args map[string]any) (map[string]any, error)

// Tool is one callable function with its model-facing declaration.
type Tool struct {
	Name        string
	Description string
	Parameters  *gemlive.Schema
	Run         Handler
}

// Registry holds the tool set in registration order.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Declarations returns the function declarations for session setup, in
// registration order.
func (r *Registry) Declarations() []gemlive.FunctionDeclaration {
	out := make([]gemlive.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, gemlive.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return out
}
