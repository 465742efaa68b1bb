package conversation

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/router"
	"github.com/hupe1980/agentrelay/stream"
)

// HistoryWarnThreshold is the history size at whose every multiple the
// manager logs a growth warning. History is never pruned.
const HistoryWarnThreshold = 200

// Agents is the read side of an agent registry.
type Agents interface {
	AllSpecs() []core.AgentSpec
	Get(id string) (*agent.Agent, error)
}

// Options configures a Manager.
type Options struct {
	// Router picks the agent per turn. Defaults to router.Sticky().
	Router router.Strategy
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// DeltaFunc receives each normalized delta of a streamed turn. Returning an
// error stops the stream and fails the turn.
type DeltaFunc func(d stream.Delta) error

// Manager owns the history and active agent of one conversation session.
// It is not safe for concurrent use; see Store for a session-serializing
// wrapper.
type Manager struct {
	agents  Agents
	router  router.Strategy
	logger  logging.Logger
	history []core.Message
	active  string
}

// NewManager creates an Idle Manager over agents.
func NewManager(agents Agents, optFns ...func(o *Options)) *Manager {
	opts := Options{
		Router: router.Sticky(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Router == nil {
		opts.Router = router.Sticky()
	}
	return &Manager{
		agents: agents,
		router: opts.Router,
		logger: logging.OrNoOp(opts.Logger),
	}
}

// History returns a copy of the conversation so far.
func (m *Manager) History() []core.Message {
	out := make([]core.Message, len(m.history))
	copy(out, m.history)
	return out
}

// Active returns the id of the agent bound to the session, or "" when Idle.
func (m *Manager) Active() string { return m.active }

// turn is a prepared, not yet committed, conversational turn.
type turn struct {
	agent    *agent.Agent
	userText string
	messages []core.Message
	handover bool
}

// prepare runs routing, handover and request shaping without touching state.
func (m *Manager) prepare(userText string) (*turn, error) {
	agentID, err := m.router.Select(userText, m.agents.AllSpecs(), m.active)
	if err != nil {
		return nil, err
	}

	cc := &agent.CallContext{}
	if needsHandover(m.active, agentID, len(m.history)) {
		cc.Handover = BuildHandover(m.history)
		m.logger.Debug("handover", "from", m.active, "to", agentID, "summary_len", len([]rune(cc.Handover)))
	}

	a, err := m.agents.Get(agentID)
	if err != nil {
		return nil, err
	}

	msgs := make([]core.Message, 0, len(m.history)+1)
	msgs = append(msgs, m.history...)
	msgs = append(msgs, core.UserMessage(userText))

	return &turn{
		agent:    a,
		userText: userText,
		messages: a.BeforeCall(msgs, cc),
		handover: cc.Handover != "",
	}, nil
}

// commit appends the finished turn and binds the session to its agent.
func (m *Manager) commit(ctx context.Context, t *turn, reply string) {
	before := len(m.history)
	m.history = append(m.history, core.UserMessage(t.userText), core.AssistantMessage(reply))
	t.agent.AfterCall(ctx, t.userText, reply)
	m.active = t.agent.ID()

	if n := len(m.history); n/HistoryWarnThreshold > before/HistoryWarnThreshold {
		m.logger.Warn("conversation history growing without bound", "messages", n, "threshold", HistoryWarnThreshold)
	}
}

func (m *Manager) logTurn(agentID string, handover bool, err error) {
	if err != nil {
		m.logger.Warn("turn failed", "agent", agentID, "history_len", len(m.history), "handover", handover, "error", err.Error())
		return
	}
	m.logger.Info("turn completed", "agent", agentID, "history_len", len(m.history), "handover", handover)
}

// Handle runs one synchronous turn and returns the reply. On any error the
// session state is unchanged.
func (m *Manager) Handle(ctx context.Context, userText string, optFns ...func(o *core.CallOptions)) (string, error) {
	t, err := m.prepare(userText)
	if err != nil {
		m.logTurn("", false, err)
		return "", err
	}

	reply, err := t.agent.Call(ctx, t.messages, optFns...)
	if err != nil {
		m.logTurn(t.agent.ID(), t.handover, err)
		return "", err
	}

	m.commit(ctx, t, reply)
	m.logTurn(t.agent.ID(), t.handover, nil)
	return reply, nil
}

// Stream runs one streamed turn. Each delta is handed to onDelta (which may
// be nil) and the concatenated delta text is returned as the reply. The turn
// commits only when a terminal frame ends the stream. A failing onDelta, a
// cancelled ctx, an upstream error or a stream closed before its finish frame
// cancel the provider request and leave the session state unchanged.
func (m *Manager) Stream(ctx context.Context, userText string, onDelta DeltaFunc, optFns ...func(o *core.CallOptions)) (string, error) {
	t, err := m.prepare(userText)
	if err != nil {
		m.logTurn("", false, err)
		return "", err
	}

	opts := core.NewCallOptions(optFns...)
	var (
		streamCtx context.Context
		cancel    context.CancelFunc
	)
	if opts.Timeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		streamCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	frames, errs, err := t.agent.Stream(streamCtx, t.messages, optFns...)
	if err != nil {
		m.logTurn(t.agent.ID(), t.handover, err)
		return "", err
	}

	reader := stream.NewReader(frames, errs, cancel)
	defer reader.Close()

	reply, err := consume(streamCtx, reader, onDelta)
	if err != nil {
		m.logTurn(t.agent.ID(), t.handover, err)
		return "", err
	}

	m.commit(ctx, t, reply)
	m.logTurn(t.agent.ID(), t.handover, nil)
	return reply, nil
}

func consume(ctx context.Context, r *stream.Reader, onDelta DeltaFunc) (string, error) {
	var b strings.Builder
	for {
		d, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		b.WriteString(d.Text)
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return "", err
			}
		}
	}
}
