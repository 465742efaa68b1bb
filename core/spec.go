package core

// AgentSpec is the declarative configuration for one agent. Specs are created
// from configuration at boot and never mutated at runtime.
//
// Policies, Capabilities, Routing and Metadata are opaque to the core; routing
// strategies and providers may interpret them.
type AgentSpec struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name,omitempty" yaml:"name,omitempty"`
	SystemTemplate string         `json:"system_template,omitempty" yaml:"system_template,omitempty"`
	Provider       string         `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model          string         `json:"model,omitempty" yaml:"model,omitempty"`
	Policies       map[string]any `json:"policies,omitempty" yaml:"policies,omitempty"`
	Capabilities   map[string]any `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Routing        map[string]any `json:"routing,omitempty" yaml:"routing,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Validate checks the fields every spec must carry.
func (s AgentSpec) Validate() error {
	if s.ID == "" {
		return NewError("AgentSpec.Validate", ErrValidation, "agent id is required")
	}
	return nil
}

// DisplayName returns Name, falling back to ID.
func (s AgentSpec) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}
