package rag

import (
	"github.com/haasonsaas/wizardd/internal/llm"
	"github.com/haasonsaas/wizardd/pkg/models"
)

// Factory builds a bound handler for one tool selection (namespace,
// visible resources) for the lifetime of a single turn. Exactly one of
// Search/Resource is set: a factory describes either a search-class tool
// or a resource-class tool, never both.
type Factory struct {
	Schema   llm.ToolSchema
	Search   func(sel models.ToolSelection) SearchHandler
	Resource func(sel models.ToolSelection) ResourceHandler
}

// Registry is the set of tools a deployment knows how to construct,
// keyed by tool name. The agent loop resolves a Request's tool selections
// against this registry once per turn; each resolved handler closes over
// that turn's namespace and visible-resource scoping.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory under name, overwriting any prior
// registration for the same name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Resolve binds the named tool's factory to sel, returning the concrete
// handler (search or resource, discriminated by which return is non-nil)
// and its schema. ok is false if name was never registered.
func (r *Registry) Resolve(name string, sel models.ToolSelection) (search SearchHandler, resource ResourceHandler, schema llm.ToolSchema, ok bool) {
	f, found := r.factories[name]
	if !found {
		return nil, nil, llm.ToolSchema{}, false
	}
	if f.Search != nil {
		return f.Search(sel), nil, f.Schema, true
	}
	if f.Resource != nil {
		return nil, f.Resource(sel), f.Schema, true
	}
	return nil, nil, f.Schema, false
}

// Names returns every registered tool name, for building a synthetic
// system prompt tool list independent of any particular turn's selection.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// IsSearchTool reports whether name was registered as a search-class
// factory, without resolving it. A name that was never registered reports
// false.
func (r *Registry) IsSearchTool(name string) bool {
	f, ok := r.factories[name]
	return ok && f.Search != nil
}
