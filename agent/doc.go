// Package agent binds a declarative core.AgentSpec to a concrete
// core.Provider (and an optional core.Memory). An Agent exposes three
// stages used by the conversation manager for every turn:
//
//  1. BeforeCall shapes the message sequence sent to the provider
//     (system template, optional handover summary, prior dialogue)
//  2. Call / Stream forward the request to the bound provider unchanged
//  3. AfterCall records the finished turn in Memory, best effort
//
// Providers are shared, not owned: several agents may reference the same
// provider instance. An Agent holds no per-session state and is safe for
// concurrent use when its provider and memory are.
package agent
