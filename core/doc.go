// Package core provides the foundational domain types and interfaces used by
// agentrelay. It defines the core abstractions for:
//
//   - Messages (role tagged conversation entries)
//   - AgentSpecs (declarative agent configuration loaded at boot)
//   - Providers (backend conversational endpoints, optionally streaming)
//   - Memory (best-effort side channel recording finished turns)
//   - The error taxonomy shared by registries, agents and providers
//
// The package intentionally keeps implementation concerns (HTTP clients,
// registries, conversation state) out of scope, exposing small interfaces to
// enable custom backends and extensions.
package core
