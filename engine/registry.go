package engine

import (
	"sync"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/robotdiary/memory-go-sdk/core"
)

// Registry holds the tools declared to the generation model.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]core.Tool
	order []string
}

// NewRegistry creates a registry with the given tools.
func NewRegistry(tools ...core.Tool) *Registry {
	r := &Registry{tools: make(map[string]core.Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t core.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Definition().Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (core.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ToAPITools converts the registered definitions to Anthropic tool params,
// in registration order.
func (r *Registry) ToAPITools() []anthropic.ToolUnionParam {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]anthropic.ToolUnionParam, 0, len(r.order))
	for _, name := range r.order {
		def := r.tools[name].Definition()

		properties, _ := def.InputSchema["properties"].(map[string]interface{})
		required, _ := def.InputSchema["required"].([]string)

		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: properties,
					Required:   required,
				},
			},
		})
	}
	return out
}
