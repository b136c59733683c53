package agent

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/Swarm-Code/ceregrep-client-sub000/provider"
)

// Capability declares what a tool may do. The executor auto-allows read-only
// tools and routes everything else through the permission callback; nested
// agent runs exclude CapAgent tools entirely. An empty capability is treated
// as mutating.
type Capability string

const (
	CapReadOnly Capability = "read_only"
	CapMutating Capability = "mutating"
	CapAgent    Capability = "agent"
)

// Runner executes one tool call and returns the output text shown to the
// model.
type Runner func(ctx context.Context, input json.RawMessage) (string, error)

// StreamRunner additionally reports incremental output through emit while it
// runs. The returned string is still the final result. A tool sets at most
// one of Run or RunStream; RunStream wins when both are set.
type StreamRunner func(ctx context.Context, input json.RawMessage, emit func(chunk string)) (string, error)

// Tool pairs a descriptor with its execution entry point.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Capability  Capability
	Run         Runner
	RunStream   StreamRunner
}

// Registry manages tool registration and lookup. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds or replaces a tool. Latest registration wins on name
// collision.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = &t
}

// Unregister removes a tool.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a registered tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Descriptors returns the provider-facing declarations of every tool, sorted
// by name so requests are deterministic.
func (r *Registry) Descriptors() []provider.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]provider.ToolDef, 0, len(r.tools))
	for _, t := range r.tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		defs = append(defs, provider.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Clone returns an independent copy of the registry.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := NewRegistry()
	for name, t := range r.tools {
		copied := *t
		clone.tools[name] = &copied
	}
	return clone
}

// MergeFrom copies all tools from other into this registry, overwriting on
// name collision.
func (r *Registry) MergeFrom(other *Registry) {
	other.mu.RLock()
	defer other.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range other.tools {
		copied := *t
		r.tools[name] = &copied
	}
}

// WithoutCapability returns a copy of the registry with every tool carrying
// the given capability removed. Nested agent runs are built this way so a
// sub-agent can never see the tools that spawn sub-agents.
func (r *Registry) WithoutCapability(cap Capability) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := NewRegistry()
	for name, t := range r.tools {
		if t.Capability == cap {
			continue
		}
		copied := *t
		clone.tools[name] = &copied
	}
	return clone
}

// SchemaFor reflects a JSON-Schema object from a struct type for use as a
// tool's input schema. Fields without omitempty are required; jsonschema
// struct tags supply descriptions.
func SchemaFor(v interface{}) map[string]interface{} {
	r := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	s.Version = ""

	raw, err := json.Marshal(s)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m
}
