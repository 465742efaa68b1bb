package core

import (
	"context"
	"time"
)

// CallOptions carries per-call tuning forwarded to a provider. Zero values
// mean "provider default".
type CallOptions struct {
	Temperature *float64
	MaxTokens   int
	// Timeout bounds the provider call (including a full stream) when positive.
	Timeout time.Duration
}

// NewCallOptions applies optFns over zero CallOptions.
func NewCallOptions(optFns ...func(o *CallOptions)) CallOptions {
	var opts CallOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) func(o *CallOptions) {
	return func(o *CallOptions) { o.Temperature = &t }
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) func(o *CallOptions) {
	return func(o *CallOptions) { o.MaxTokens = n }
}

// WithTimeout sets a deadline for the call.
func WithTimeout(d time.Duration) func(o *CallOptions) {
	return func(o *CallOptions) { o.Timeout = d }
}

// Provider wraps one backend conversational endpoint.
//
// Chat fails with an error wrapping ErrUpstream on network/HTTP failure and
// ErrMalformedResponse when the payload lacks the reply field.
type Provider interface {
	Name() string
	Chat(ctx context.Context, model string, messages []Message, opts CallOptions) (string, error)
}

// FrameFormat identifies the wire shape of a raw streaming frame.
type FrameFormat int

const (
	// FormatOpenAISSE is the JSON payload of an OpenAI-compatible SSE "data:" line.
	FormatOpenAISSE FrameFormat = iota
	// FormatOllamaNDJSON is one line of an Ollama newline-delimited JSON stream.
	FormatOllamaNDJSON
)

// String returns the format name.
func (f FrameFormat) String() string {
	switch f {
	case FormatOpenAISSE:
		return "openai-sse"
	case FormatOllamaNDJSON:
		return "ollama-ndjson"
	default:
		return "unknown"
	}
}

// Frame is one raw provider streaming frame.
type Frame struct {
	Format FrameFormat
	Data   []byte
}

// StreamingProvider is a Provider that can also stream incremental frames.
// Both channels are closed when the stream ends. Cancelling ctx must close
// the upstream connection promptly.
type StreamingProvider interface {
	Provider
	StreamChat(ctx context.Context, model string, messages []Message, opts CallOptions) (<-chan Frame, <-chan error)
}

// Memory records finished turns. It is strictly best effort: callers discard
// every failure.
type Memory interface {
	Write(ctx context.Context, userText, reply string, meta map[string]any) error
}
