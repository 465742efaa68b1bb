// Package registry provides the boot-time lookup tables mapping provider
// names to core.Provider instances and agent ids to *agent.Agent bindings.
//
// Registries are populated once during a single-threaded boot phase and are
// read-mostly thereafter. Registering a duplicate key overwrites the previous
// value (last write wins) while keeping the key's original position in the
// registration order; the overwrite is logged as a warning because the
// behavior is preserved from the original system but never exercised there.
package registry
