package agent

import (
	"context"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// handoverPrefix precedes the summary injected when routing switches agents.
const handoverPrefix = "Handover: "

// Options configures an Agent instance.
type Options struct {
	// Memory optionally records finished turns (nil disables recording).
	Memory core.Memory
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// CallContext carries per-turn context computed by the conversation manager.
type CallContext struct {
	// Handover is the summary of recent history forwarded when the selected
	// agent differs from the previously active one. Empty means no handover.
	Handover string
}

// Agent binds one AgentSpec to a Provider and optional Memory.
type Agent struct {
	spec     core.AgentSpec
	provider core.Provider
	memory   core.Memory
	logger   logging.Logger
}

// New creates an Agent for spec backed by provider.
func New(spec core.AgentSpec, provider core.Provider, optFns ...func(o *Options)) *Agent {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{
		spec:     spec,
		provider: provider,
		memory:   opts.Memory,
		logger:   logging.OrNoOp(opts.Logger).With("agent", spec.ID),
	}
}

// ID returns the spec id.
func (a *Agent) ID() string { return a.spec.ID }

// Spec returns the bound AgentSpec.
func (a *Agent) Spec() core.AgentSpec { return a.spec }

// Provider returns the bound provider.
func (a *Agent) Provider() core.Provider { return a.provider }

// BeforeCall returns the message sequence actually sent to the provider:
// the template system message (when the template is non-empty), then the
// handover system message (when cc carries one), then messages. The input
// slice is never mutated.
func (a *Agent) BeforeCall(messages []core.Message, cc *CallContext) []core.Message {
	out := make([]core.Message, 0, len(messages)+2)
	if a.spec.SystemTemplate != "" {
		out = append(out, core.SystemMessage(a.spec.SystemTemplate))
	}
	if cc != nil && cc.Handover != "" {
		out = append(out, core.SystemMessage(handoverPrefix+cc.Handover))
	}
	return append(out, messages...)
}

// Call forwards messages to the bound provider using the spec's model and
// returns the reply text. Provider errors propagate unchanged; the agent
// adds no retry or fallback.
func (a *Agent) Call(ctx context.Context, messages []core.Message, optFns ...func(o *core.CallOptions)) (string, error) {
	opts := core.NewCallOptions(optFns...)
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := a.provider.Chat(ctx, a.spec.Model, messages, opts)
	a.logCall(time.Since(start), err)
	if err != nil {
		return "", err
	}
	return reply, nil
}

// Stream starts an incremental provider call. It fails with ErrValidation
// when the bound provider cannot stream. The returned channels follow the
// core.StreamingProvider contract; cancelling ctx closes the upstream.
func (a *Agent) Stream(ctx context.Context, messages []core.Message, optFns ...func(o *core.CallOptions)) (<-chan core.Frame, <-chan error, error) {
	sp, ok := a.provider.(core.StreamingProvider)
	if !ok {
		return nil, nil, core.NewError("Agent.Stream", core.ErrValidation, "provider "+a.provider.Name()+" does not support streaming")
	}
	opts := core.NewCallOptions(optFns...)
	frames, errs := sp.StreamChat(ctx, a.spec.Model, messages, opts)
	return frames, errs, nil
}

// AfterCall records the raw turn in Memory when one is bound. Every failure,
// including a panicking Memory, is swallowed: the turn has already
// succeeded and recording must never change that.
func (a *Agent) AfterCall(ctx context.Context, userText, reply string) {
	if a.memory == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Debug("memory write panicked", "panic", r)
		}
	}()
	if err := a.memory.Write(ctx, userText, reply, map[string]any{"agent_id": a.spec.ID}); err != nil {
		a.logger.Debug("memory write failed", "error", err.Error())
	}
}

func (a *Agent) logCall(dur time.Duration, err error) {
	if err != nil {
		a.logger.Warn("provider call failed", "provider", a.provider.Name(), "model", a.spec.Model, "duration", dur, "error", err.Error())
		return
	}
	a.logger.Debug("provider call completed", "provider", a.provider.Name(), "model", a.spec.Model, "duration", dur)
}
