package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// Turn is one recorded exchange.
type Turn struct {
	ID       string
	AgentID  string
	UserText string
	Reply    string
	Metadata map[string]any
	At       time.Time
}

// Options configures an InMemoryStore.
type Options struct {
	// MaxTurns bounds the log; the oldest turns are evicted first. Zero means unbounded.
	MaxTurns int
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// InMemoryStore is a naive process-local core.Memory. It keeps an
// append-only turn log with substring Search.
//
// Concurrency: protected by RWMutex.
// Search: linear scan, case-insensitive substring match on user text and
// reply, newest first. Suitable only for tests and demos.
type InMemoryStore struct {
	mu    sync.RWMutex
	opts  Options
	turns []Turn
	seq   int
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &InMemoryStore{opts: opts}
}

// Write implements core.Memory. The "agent_id" metadata entry, when a
// string, is lifted into Turn.AgentID.
func (m *InMemoryStore) Write(ctx context.Context, userText, reply string, meta map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	md := make(map[string]any, len(meta))
	for k, v := range meta {
		md[k] = v
	}
	agentID, _ := md["agent_id"].(string)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.turns = append(m.turns, Turn{
		ID:       fmt.Sprintf("turn_%d", m.seq),
		AgentID:  agentID,
		UserText: userText,
		Reply:    reply,
		Metadata: md,
		At:       m.opts.Clock(),
	})
	if m.opts.MaxTurns > 0 && len(m.turns) > m.opts.MaxTurns {
		m.turns = append([]Turn(nil), m.turns[len(m.turns)-m.opts.MaxTurns:]...)
	}
	return nil
}

// Search returns up to limit turns whose user text or reply contains query,
// newest first. An empty query matches everything; limit <= 0 means no limit.
func (m *InMemoryStore) Search(query string, limit int) []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(query)
	var out []Turn
	for i := len(m.turns) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		t := m.turns[i]
		if q == "" || strings.Contains(strings.ToLower(t.UserText), q) || strings.Contains(strings.ToLower(t.Reply), q) {
			out = append(out, cloneTurn(t))
		}
	}
	return out
}

// ByAgent returns the turns answered by agentID in recording order.
func (m *InMemoryStore) ByAgent(agentID string) []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Turn
	for _, t := range m.turns {
		if t.AgentID == agentID {
			out = append(out, cloneTurn(t))
		}
	}
	return out
}

// All returns every turn in recording order.
func (m *InMemoryStore) All() []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Turn, 0, len(m.turns))
	for _, t := range m.turns {
		out = append(out, cloneTurn(t))
	}
	return out
}

// Delete removes a turn by id.
func (m *InMemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.turns {
		if t.ID == id {
			m.turns = append(m.turns[:i], m.turns[i+1:]...)
			return nil
		}
	}
	return core.NewError("InMemoryStore.Delete", core.ErrNotFound, "turn \""+id+"\"")
}

// Len returns the number of recorded turns.
func (m *InMemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

func cloneTurn(t Turn) Turn {
	md := make(map[string]any, len(t.Metadata))
	for k, v := range t.Metadata {
		md[k] = v
	}
	t.Metadata = md
	return t
}
