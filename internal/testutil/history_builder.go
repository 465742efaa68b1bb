package testutil

import (
	"fmt"

	"github.com/hupe1980/agentrelay/core"
)

// HistoryBuilder helps construct message histories with fluent chaining.
// Example:
//
//	h := NewHistoryBuilder().System("sys").Turn("hi", "hello").Build()
type HistoryBuilder struct {
	msgs []core.Message
}

// NewHistoryBuilder creates an empty builder.
func NewHistoryBuilder() *HistoryBuilder { return &HistoryBuilder{} }

// System appends a system message (chainable).
func (b *HistoryBuilder) System(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.SystemMessage(text))
	return b
}

// User appends a user message (chainable).
func (b *HistoryBuilder) User(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.UserMessage(text))
	return b
}

// Assistant appends an assistant message (chainable).
func (b *HistoryBuilder) Assistant(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.AssistantMessage(text))
	return b
}

// Turn appends a user message followed by the assistant reply (chainable).
func (b *HistoryBuilder) Turn(user, reply string) *HistoryBuilder {
	return b.User(user).Assistant(reply)
}

// Turns appends n numbered turns "u<i>" / "a<i>" starting at 0 (chainable).
func (b *HistoryBuilder) Turns(n int) *HistoryBuilder {
	for i := 0; i < n; i++ {
		b.Turn(fmt.Sprintf("u%d", i), fmt.Sprintf("a%d", i))
	}
	return b
}

// Build returns a copy of the accumulated messages.
func (b *HistoryBuilder) Build() []core.Message {
	out := make([]core.Message, len(b.msgs))
	copy(out, b.msgs)
	return out
}
