package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/provider/mock"
	"github.com/hupe1980/agentrelay/registry"
	"github.com/hupe1980/agentrelay/router"
	"github.com/hupe1980/agentrelay/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	agents *registry.AgentRegistry
	pa, pb *mock.Provider
}

func newFixture() *fixture {
	f := &fixture{
		agents: registry.NewAgentRegistry(),
		pa:     mock.New("pa"),
		pb:     mock.New("pb"),
	}
	f.agents.Register(agent.New(testutil.NewSpecBuilder("a").Template("You are A.").Model("ma").Keywords("alpha").Build(), f.pa))
	f.agents.Register(agent.New(testutil.NewSpecBuilder("b").Template("You are B.").Model("mb").Keywords("beta").Build(), f.pb))
	return f
}

func TestManager_StickyEndToEnd(t *testing.T) {
	f := newFixture()
	m := NewManager(f.agents)
	assert.Equal(t, "", m.Active())

	_, err := m.Handle(context.Background(), "hi")
	require.NoError(t, err)
	assert.Len(t, m.History(), 2)
	assert.Equal(t, "a", m.Active())

	_, err = m.Handle(context.Background(), "again")
	require.NoError(t, err)
	assert.Len(t, m.History(), 4)
	assert.Equal(t, "a", m.Active())

	assert.Len(t, f.pa.Calls(), 2)
	assert.Empty(t, f.pb.Calls())
}

func TestManager_HistoryIsTwicePerSuccessfulTurn(t *testing.T) {
	f := newFixture()
	m := NewManager(f.agents)
	for i := 1; i <= 5; i++ {
		_, err := m.Handle(context.Background(), fmt.Sprintf("turn %d", i))
		require.NoError(t, err)
		assert.Len(t, m.History(), 2*i)
	}

	h := m.History()
	assert.Equal(t, core.UserMessage("turn 5"), h[8])
	assert.Equal(t, core.RoleAssistant, h[9].Role)
}

func TestManager_UpstreamFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture()
	m := NewManager(f.agents)

	_, err := m.Handle(context.Background(), "hi")
	require.NoError(t, err)

	f.pa.FailNext(core.Upstream("mock", errors.New("connection refused")))
	before := m.History()

	_, err = m.Handle(context.Background(), "again")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUpstream)

	assert.Equal(t, before, m.History())
	assert.Len(t, m.History(), 2)
	assert.Equal(t, "a", m.Active())

	// retrying the same input succeeds
	_, err = m.Handle(context.Background(), "again")
	require.NoError(t, err)
	assert.Len(t, m.History(), 4)
}

func TestManager_FirstTurnFailureStaysIdle(t *testing.T) {
	f := newFixture()
	f.pa.FailNext(core.Upstream("mock", errors.New("down")))
	m := NewManager(f.agents)

	_, err := m.Handle(context.Background(), "hi")
	require.Error(t, err)
	assert.Empty(t, m.History())
	assert.Equal(t, "", m.Active())
}

func TestManager_NoAgents(t *testing.T) {
	m := NewManager(registry.NewAgentRegistry())
	_, err := m.Handle(context.Background(), "hi")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestManager_UnknownAgentFromRouter(t *testing.T) {
	f := newFixture()
	m := NewManager(f.agents, func(o *Options) {
		o.Router = router.Func(func(string, []core.AgentSpec, string) (string, error) { return "ghost", nil })
	})
	_, err := m.Handle(context.Background(), "hi")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Empty(t, m.History())
}

func TestManager_RequestShape(t *testing.T) {
	f := newFixture()
	m := NewManager(f.agents)

	_, err := m.Handle(context.Background(), "hi")
	require.NoError(t, err)
	_, err = m.Handle(context.Background(), "again")
	require.NoError(t, err)

	calls := f.pa.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "ma", calls[1].Model)

	msgs := calls[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, core.SystemMessage("You are A."), msgs[0])
	assert.Equal(t, core.UserMessage("hi"), msgs[1])
	assert.Equal(t, core.RoleAssistant, msgs[2].Role)
	assert.Equal(t, core.UserMessage("again"), msgs[3])
}

func handoverOf(msgs []core.Message) (string, bool) {
	for _, m := range msgs {
		if m.Role == core.RoleSystem && strings.HasPrefix(m.Content, "Handover: ") {
			return strings.TrimPrefix(m.Content, "Handover: "), true
		}
	}
	return "", false
}

func TestManager_HandoverOnlyWhenSwitching(t *testing.T) {
	f := newFixture()
	m := NewManager(f.agents, func(o *Options) { o.Router = router.Keyword(nil) })

	// first turn routed by keyword: no active agent, so no handover
	_, err := m.Handle(context.Background(), "beta first")
	require.NoError(t, err)
	assert.Equal(t, "b", m.Active())
	_, ok := handoverOf(f.pb.Calls()[0].Messages)
	assert.False(t, ok)

	// same agent again: no handover
	_, err = m.Handle(context.Background(), "still beta")
	require.NoError(t, err)
	_, ok = handoverOf(f.pb.Calls()[1].Messages)
	assert.False(t, ok)

	// switch to a: handover carries the history
	_, err = m.Handle(context.Background(), "alpha now")
	require.NoError(t, err)
	assert.Equal(t, "a", m.Active())

	msgs := f.pa.Calls()[0].Messages
	summary, ok := handoverOf(msgs)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(summary, "user: beta first | assistant: "))
	assert.Contains(t, summary, "user: still beta")
	assert.Equal(t, core.SystemMessage("You are A."), msgs[0])
	assert.Equal(t, core.SystemMessage("Handover: "+summary), msgs[1])
	assert.Equal(t, BuildHandover(m.History()[:4]), summary)
}

func TestNeedsHandover_Preconditions(t *testing.T) {
	assert.False(t, needsHandover("", "a", 2))
	assert.False(t, needsHandover("a", "a", 2))
	assert.False(t, needsHandover("a", "b", 0))
	assert.True(t, needsHandover("a", "b", 2))
}

func TestBuildHandover_WindowAndTruncation(t *testing.T) {
	got := BuildHandover(testutil.NewHistoryBuilder().Turns(10).Build())
	assert.Equal(t, "user: u6 | assistant: a6 | user: u7 | assistant: a7 | user: u8 | assistant: a8 | user: u9 | assistant: a9", got)

	long := testutil.NewHistoryBuilder().Turn(strings.Repeat("x", 400), strings.Repeat("é", 400)+"END").Build()
	full := "user: " + strings.Repeat("x", 400) + " | assistant: " + strings.Repeat("é", 400) + "END"
	got = BuildHandover(long)
	assert.Equal(t, HandoverMaxRunes, len([]rune(got)))
	runes := []rune(full)
	assert.Equal(t, string(runes[len(runes)-HandoverMaxRunes:]), got)
	assert.True(t, strings.HasSuffix(got, "END"))

	assert.Equal(t, "", BuildHandover(nil))
}

func TestManager_StreamCommitsOnCleanEnd(t *testing.T) {
	f := newFixture()
	f.pa.AddResponse("hi", "hello there friend")
	m := NewManager(f.agents)

	var deltas []stream.Delta
	reply, err := m.Stream(context.Background(), "hi", func(d stream.Delta) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there friend", reply)
	assert.Equal(t, "stop", deltas[len(deltas)-1].FinishReason)
	assert.Equal(t, []core.Message{core.UserMessage("hi"), core.AssistantMessage("hello there friend")}, m.History())
	assert.Equal(t, "a", m.Active())
}

func TestManager_StreamConsumerStopLeavesStateUntouched(t *testing.T) {
	f := newFixture()
	f.pa.AddResponse("hi", "one two three four")
	m := NewManager(f.agents)

	stop := errors.New("client disconnected")
	n := 0
	_, err := m.Stream(context.Background(), "hi", func(stream.Delta) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Empty(t, m.History())
	assert.Equal(t, "", m.Active())
}

func TestManager_StreamUpstreamError(t *testing.T) {
	f := newFixture()
	m := NewManager(f.agents)
	_, err := m.Handle(context.Background(), "hi")
	require.NoError(t, err)

	f.pa.FailNext(core.Upstream("mock", errors.New("reset")))
	_, err = m.Stream(context.Background(), "again", nil)
	assert.ErrorIs(t, err, core.ErrUpstream)
	assert.Len(t, m.History(), 2)
	assert.Equal(t, "a", m.Active())
}

func TestManager_StreamCancelledContext(t *testing.T) {
	f := newFixture()
	m := NewManager(f.agents)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Stream(ctx, "hi", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.History())
}

type chatOnly struct{}

func (chatOnly) Name() string { return "chat-only" }
func (chatOnly) Chat(context.Context, string, []core.Message, core.CallOptions) (string, error) {
	return "ok", nil
}

// cutOff streams one content frame and then closes without a finish frame.
type cutOff struct{ chatOnly }

func (cutOff) StreamChat(context.Context, string, []core.Message, core.CallOptions) (<-chan core.Frame, <-chan error) {
	frames := make(chan core.Frame, 1)
	errs := make(chan error)
	frames <- core.Frame{Format: core.FormatOpenAISSE, Data: []byte(`{"choices":[{"index":0,"delta":{"content":"The answer is"}}]}`)}
	close(frames)
	close(errs)
	return frames, errs
}

func TestManager_StreamEndingWithoutFinishDoesNotCommit(t *testing.T) {
	agents := registry.NewAgentRegistry()
	agents.Register(agent.New(core.AgentSpec{ID: "x"}, cutOff{}))
	m := NewManager(agents)

	var got []stream.Delta
	reply, err := m.Stream(context.Background(), "question", func(d stream.Delta) error {
		got = append(got, d)
		return nil
	})
	assert.ErrorIs(t, err, core.ErrUpstream)
	assert.Equal(t, "", reply)
	assert.Len(t, got, 1)
	assert.Empty(t, m.History())
	assert.Equal(t, "", m.Active())
}

func TestManager_StreamUnsupportedProvider(t *testing.T) {
	agents := registry.NewAgentRegistry()
	agents.Register(agent.New(core.AgentSpec{ID: "x"}, chatOnly{}))
	m := NewManager(agents)

	_, err := m.Stream(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Empty(t, m.History())
}

func TestStore_SessionsAreIsolated(t *testing.T) {
	f := newFixture()
	s := NewStore(f.agents)

	id1 := s.Create()
	id2 := s.Create()
	require.NotEqual(t, id1, id2)

	_, err := s.Handle(context.Background(), id1, "hi")
	require.NoError(t, err)

	h1, err := s.History(id1)
	require.NoError(t, err)
	assert.Len(t, h1, 2)

	h2, err := s.History(id2)
	require.NoError(t, err)
	assert.Empty(t, h2)

	active, err := s.Active(id1)
	require.NoError(t, err)
	assert.Equal(t, "a", active)
	assert.Equal(t, 2, s.Len())
}

func TestStore_LazyCreateAndNotFound(t *testing.T) {
	f := newFixture()
	s := NewStore(f.agents)

	_, err := s.History("nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.Active("nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.Delete("nope"), core.ErrNotFound)

	_, err = s.Stream(context.Background(), "lazy", "hi", nil)
	require.NoError(t, err)
	h, err := s.History("lazy")
	require.NoError(t, err)
	assert.Len(t, h, 2)

	require.NoError(t, s.Delete("lazy"))
	_, err = s.History("lazy")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStore_SerializesTurnsPerSession(t *testing.T) {
	f := newFixture()
	s := NewStore(f.agents)
	id := s.Create()

	const turns = 20
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Handle(context.Background(), id, fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	h, err := s.History(id)
	require.NoError(t, err)
	assert.Len(t, h, 2*turns)
	for i := 0; i < len(h); i += 2 {
		assert.Equal(t, core.RoleUser, h[i].Role)
		assert.Equal(t, core.RoleAssistant, h[i+1].Role)
	}
}

type warnRecorder struct {
	mu    sync.Mutex
	warns []string
}

func (r *warnRecorder) Debug(string, ...any) {}
func (r *warnRecorder) Info(string, ...any)  {}
func (r *warnRecorder) Error(string, ...any) {}
func (r *warnRecorder) With(...any) logging.Logger { return r }
func (r *warnRecorder) Warn(msg string, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warns = append(r.warns, msg)
}

func TestManager_WarnsOnHistoryGrowth(t *testing.T) {
	f := newFixture()
	rec := &warnRecorder{}
	m := NewManager(f.agents, func(o *Options) { o.Logger = rec })

	for i := 0; i < HistoryWarnThreshold/2-1; i++ {
		_, err := m.Handle(context.Background(), "x")
		require.NoError(t, err)
	}
	assert.Empty(t, rec.warns)

	_, err := m.Handle(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, m.History(), HistoryWarnThreshold)
	assert.Equal(t, []string{"conversation history growing without bound"}, rec.warns)
}
