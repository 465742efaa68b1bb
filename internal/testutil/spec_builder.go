package testutil

import "github.com/hupe1980/agentrelay/core"

// SpecBuilder helps construct agent specs for tests.
// Example:
//
//	spec := NewSpecBuilder("billing").Provider("pb").Keywords("invoice").Build()
type SpecBuilder struct {
	spec core.AgentSpec
}

// NewSpecBuilder creates a builder for a spec with the given id.
func NewSpecBuilder(id string) *SpecBuilder {
	return &SpecBuilder{spec: core.AgentSpec{ID: id}}
}

// Template sets the system template (chainable).
func (b *SpecBuilder) Template(t string) *SpecBuilder {
	b.spec.SystemTemplate = t
	return b
}

// Provider sets the provider registry key (chainable).
func (b *SpecBuilder) Provider(name string) *SpecBuilder {
	b.spec.Provider = name
	return b
}

// Model sets the model id (chainable).
func (b *SpecBuilder) Model(m string) *SpecBuilder {
	b.spec.Model = m
	return b
}

// Keywords sets routing.keywords (chainable).
func (b *SpecBuilder) Keywords(kw ...string) *SpecBuilder {
	if b.spec.Routing == nil {
		b.spec.Routing = map[string]any{}
	}
	b.spec.Routing["keywords"] = kw
	return b
}

// Build returns the spec.
func (b *SpecBuilder) Build() core.AgentSpec { return b.spec }
