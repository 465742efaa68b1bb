// Package mock provides a deterministic in-process Provider for tests,
// examples and offline demos. Without canned replies it answers with a small
// rule based conversational echo; canned replies, injected errors and call
// recording make agent and conversation behavior assertable.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/hupe1980/agentrelay/core"
	"github.com/tidwall/sjson"
)

// Options configures a mock Provider.
type Options struct {
	// Format selects the wire shape of streamed frames.
	Format core.FrameFormat
	// FinishReason is carried by the terminal streamed frame. Defaults to "stop".
	FinishReason string
}

// Call records one Chat or StreamChat invocation.
type Call struct {
	Model    string
	Messages []core.Message
	Options  core.CallOptions
	Stream   bool
}

// Provider is a lightweight in-memory core.StreamingProvider.
type Provider struct {
	name string
	opts Options

	mu        sync.Mutex
	responses map[string]string
	errs      []error
	calls     []Call
}

// New constructs a mock Provider registered under name.
func New(name string, optFns ...func(o *Options)) *Provider {
	opts := Options{Format: core.FormatOpenAISSE, FinishReason: "stop"}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.FinishReason == "" {
		opts.FinishReason = "stop"
	}
	return &Provider{name: name, opts: opts, responses: make(map[string]string)}
}

// Name implements core.Provider.
func (p *Provider) Name() string { return p.name }

// AddResponse registers a canned reply for the given last user message.
func (p *Provider) AddResponse(prompt, reply string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses[prompt] = reply
}

// FailNext queues err to be returned by the next call. Queued errors are
// consumed in order, one per call.
func (p *Provider) FailNext(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, err)
}

// Calls returns the recorded invocations.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// Chat implements core.Provider.
func (p *Provider) Chat(ctx context.Context, model string, messages []core.Message, opts core.CallOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.reply(Call{Model: model, Messages: cloneMessages(messages), Options: opts})
}

// StreamChat implements core.StreamingProvider. The reply is split into
// word-sized frames followed by one terminal frame.
func (p *Provider) StreamChat(ctx context.Context, model string, messages []core.Message, opts core.CallOptions) (<-chan core.Frame, <-chan error) {
	frames := make(chan core.Frame)
	errs := make(chan error, 1)

	reply, err := p.reply(Call{Model: model, Messages: cloneMessages(messages), Options: opts, Stream: true})

	go func() {
		defer close(errs)
		defer close(frames)
		if err != nil {
			errs <- err
			return
		}
		for _, chunk := range chunks(reply) {
			select {
			case frames <- p.textFrame(chunk):
			case <-ctx.Done():
				return
			}
		}
		select {
		case frames <- p.finalFrame():
		case <-ctx.Done():
		}
	}()

	return frames, errs
}

func (p *Provider) reply(c Call) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return "", err
	}
	if r, ok := p.responses[core.LastUserContent(c.Messages)]; ok {
		return r, nil
	}
	return Infer(c.Messages), nil
}

func (p *Provider) textFrame(text string) core.Frame {
	var data []byte
	switch p.opts.Format {
	case core.FormatOllamaNDJSON:
		data, _ = sjson.SetBytes([]byte(`{"done":false}`), "response", text)
	default:
		data, _ = sjson.SetBytes([]byte(`{"choices":[{"index":0,"delta":{}}]}`), "choices.0.delta.content", text)
	}
	return core.Frame{Format: p.opts.Format, Data: data}
}

func (p *Provider) finalFrame() core.Frame {
	var data []byte
	switch p.opts.Format {
	case core.FormatOllamaNDJSON:
		data, _ = sjson.SetBytes([]byte(`{"response":"","done":true}`), "done_reason", p.opts.FinishReason)
	default:
		data, _ = sjson.SetBytes([]byte(`{"choices":[{"index":0,"delta":{}}]}`), "choices.0.finish_reason", p.opts.FinishReason)
	}
	return core.Frame{Format: p.opts.Format, Data: data}
}

// chunks splits s after each space so that concatenating the chunks yields s.
func chunks(s string) []string {
	if s == "" {
		return nil
	}
	return strings.SplitAfter(s, " ")
}

func cloneMessages(in []core.Message) []core.Message {
	out := make([]core.Message, len(in))
	copy(out, in)
	return out
}

var _ core.StreamingProvider = (*Provider)(nil)
