package core

import (
	"fmt"
)

// Registry holds the agent functions the planner may invoke, in
// registration order. Order matters: tool declarations are sent to the
// model in the order functions were registered, so runs stay reproducible.
type Registry struct {
	order []string
	funcs map[string]AgentFunction
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]AgentFunction)}
}

// Register adds a function. Re-registering a name is a programming error.
func (r *Registry) Register(fn AgentFunction) error {
	if fn.Name == "" {
		return fmt.Errorf("agent function requires a name")
	}
	if fn.Invoke == nil {
		return fmt.Errorf("agent function %s requires an invoke handler", fn.Name)
	}
	if _, exists := r.funcs[fn.Name]; exists {
		return fmt.Errorf("agent function %s already registered", fn.Name)
	}
	r.order = append(r.order, fn.Name)
	r.funcs[fn.Name] = fn
	return nil
}

// Lookup returns the function registered under name
func (r *Registry) Lookup(name string) (AgentFunction, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered names in registration order
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered functions
func (r *Registry) Len() int {
	return len(r.order)
}

// Declarations builds the tool declarations for the LLM request, in
// registration order.
func (r *Registry) Declarations() []ToolDeclaration {
	decls := make([]ToolDeclaration, 0, len(r.order))
	for _, name := range r.order {
		fn := r.funcs[name]
		params := fn.Parameters
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		decls = append(decls, ToolDeclaration{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  params,
		})
	}
	return decls
}

// stringParams builds the JSON schema for a set of required string
// parameters, the only shape the agent task methods need.
func stringParams(names ...[2]string) map[string]interface{} {
	props := make(map[string]interface{}, len(names))
	required := make([]string, 0, len(names))
	for _, n := range names {
		props[n[0]] = map[string]interface{}{"type": "string", "description": n[1]}
		required = append(required, n[0])
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
