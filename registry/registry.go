package registry

import (
	"sync"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// Options configures a registry.
type Options struct {
	// Logger receives overwrite warnings. Defaults to NoOp.
	Logger logging.Logger
}

// ordered is a string keyed table remembering registration order.
type ordered[T any] struct {
	kind   string
	mu     sync.RWMutex
	items  map[string]T
	order  []string
	logger logging.Logger
}

func newOrdered[T any](kind string, optFns ...func(o *Options)) *ordered[T] {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ordered[T]{kind: kind, items: make(map[string]T), logger: logging.OrNoOp(opts.Logger)}
}

func (r *ordered[T]) register(key string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[key]; exists {
		r.logger.Warn("registry key overwritten", "registry", r.kind, "key", key)
	} else {
		r.order = append(r.order, key)
	}
	r.items[key] = v
}

func (r *ordered[T]) get(op, key string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	if !ok {
		var zero T
		return zero, core.NewError(op, core.ErrNotFound, r.kind+" "+quote(key))
	}
	return v, nil
}

func (r *ordered[T]) keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *ordered[T]) values() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.items[k])
	}
	return out
}

func (r *ordered[T]) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func quote(s string) string { return "\"" + s + "\"" }

// ProviderRegistry maps provider names to shared Provider instances. One
// provider may back several agents.
type ProviderRegistry struct {
	table *ordered[core.Provider]
}

// NewProviderRegistry creates an empty provider registry.
func NewProviderRegistry(optFns ...func(o *Options)) *ProviderRegistry {
	return &ProviderRegistry{table: newOrdered[core.Provider]("provider", optFns...)}
}

// Register stores p under name unconditionally.
func (r *ProviderRegistry) Register(name string, p core.Provider) { r.table.register(name, p) }

// Get returns the provider bound to name or an error wrapping core.ErrNotFound.
func (r *ProviderRegistry) Get(name string) (core.Provider, error) {
	return r.table.get("ProviderRegistry.Get", name)
}

// Names lists provider names in registration order.
func (r *ProviderRegistry) Names() []string { return r.table.keys() }

// Len returns the number of registered providers.
func (r *ProviderRegistry) Len() int { return r.table.size() }

// AgentRegistry maps agent ids to Agent bindings.
type AgentRegistry struct {
	table *ordered[*agent.Agent]
}

// NewAgentRegistry creates an empty agent registry.
func NewAgentRegistry(optFns ...func(o *Options)) *AgentRegistry {
	return &AgentRegistry{table: newOrdered[*agent.Agent]("agent", optFns...)}
}

// Register stores a under its spec id unconditionally.
func (r *AgentRegistry) Register(a *agent.Agent) { r.table.register(a.ID(), a) }

// Get returns the agent bound to id or an error wrapping core.ErrNotFound.
// It never substitutes a default agent.
func (r *AgentRegistry) Get(id string) (*agent.Agent, error) {
	return r.table.get("AgentRegistry.Get", id)
}

// AllSpecs returns the current AgentSpec set in registration order.
func (r *AgentRegistry) AllSpecs() []core.AgentSpec {
	agents := r.table.values()
	specs := make([]core.AgentSpec, len(agents))
	for i, a := range agents {
		specs[i] = a.Spec()
	}
	return specs
}

// IDs lists agent ids in registration order.
func (r *AgentRegistry) IDs() []string { return r.table.keys() }

// Len returns the number of registered agents.
func (r *AgentRegistry) Len() int { return r.table.size() }
