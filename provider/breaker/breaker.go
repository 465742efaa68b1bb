// Package breaker decorates a core.Provider with a circuit breaker so a
// failing backend fails fast instead of absorbing every turn's latency.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultMaxFailures uint32 = 5
	defaultTimeout            = 30 * time.Second
	defaultInterval           = 60 * time.Second
)

// Options configures the breaker.
type Options struct {
	// MaxFailures is the number of consecutive upstream failures that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a half-open probe.
	Timeout time.Duration
	// Interval clears the failure counts while closed.
	Interval time.Duration
	Logger   logging.Logger
}

// Breaker is a circuit protected provider. The value returned by New also
// implements core.StreamingProvider when the inner provider streams.
type Breaker interface {
	core.Provider
	// State returns the current circuit state.
	State() gobreaker.State
	// Counts returns the failure and success counts of the current generation.
	Counts() gobreaker.Counts
}

// Provider wraps an inner provider with circuit breaker protection. Only
// upstream failures count against the circuit; configuration errors,
// malformed payloads and caller cancellation do not.
type Provider struct {
	inner   core.Provider
	breaker *gobreaker.CircuitBreaker[string]
}

// New wraps inner. Zero option values select the defaults.
func New(inner core.Provider, optFns ...func(o *Options)) Breaker {
	opts := Options{
		MaxFailures: defaultMaxFailures,
		Timeout:     defaultTimeout,
		Interval:    defaultInterval,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = defaultMaxFailures
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	logger := logging.OrNoOp(opts.Logger)

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "provider:" + inner.Name(),
		MaxRequests: 1,
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: isSuccessful,
	})

	p := &Provider{inner: inner, breaker: cb}
	if sp, ok := inner.(core.StreamingProvider); ok {
		return &streamingProvider{Provider: p, inner: sp}
	}
	return p
}

// Name implements core.Provider.
func (p *Provider) Name() string { return p.inner.Name() }

// Chat implements core.Provider. Calls are routed through the circuit breaker.
func (p *Provider) Chat(ctx context.Context, model string, messages []core.Message, opts core.CallOptions) (string, error) {
	reply, err := p.breaker.Execute(func() (string, error) {
		return p.inner.Chat(ctx, model, messages, opts)
	})
	if err != nil {
		return "", p.wrap("Chat", err)
	}
	return reply, nil
}

// State returns the current circuit state for monitoring.
func (p *Provider) State() gobreaker.State { return p.breaker.State() }

// Counts returns the current failure/success counts.
func (p *Provider) Counts() gobreaker.Counts { return p.breaker.Counts() }

func (p *Provider) wrap(method string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return core.Upstream("breaker("+p.inner.Name()+")."+method, fmt.Errorf("circuit open: %w", err))
	}
	return err
}

// streamingProvider is returned when the inner provider can stream. Stream
// start runs through the circuit: an error that arrives before the first
// frame counts like a failed Chat. Failures inside a started stream travel
// through its error channel and are not counted.
type streamingProvider struct {
	*Provider
	inner core.StreamingProvider
}

// StreamChat implements core.StreamingProvider.
func (p *streamingProvider) StreamChat(ctx context.Context, model string, messages []core.Message, opts core.CallOptions) (<-chan core.Frame, <-chan error) {
	var (
		frames <-chan core.Frame
		errs   <-chan error
		first  core.Frame
		got    bool
	)
	_, err := p.breaker.Execute(func() (string, error) {
		frames, errs = p.inner.StreamChat(ctx, model, messages, opts)
		var err error
		first, got, err = awaitStart(ctx, frames, errs)
		return "", err
	})

	out := make(chan core.Frame)
	outErrs := make(chan error, 1)
	if err != nil || !got {
		if err != nil {
			outErrs <- p.wrap("StreamChat", err)
		}
		close(out)
		close(outErrs)
		return out, outErrs
	}

	go relay(ctx, first, frames, errs, out, outErrs)
	return out, outErrs
}

// awaitStart blocks until the first frame, the first error or the close of
// both channels.
func awaitStart(ctx context.Context, frames <-chan core.Frame, errs <-chan error) (core.Frame, bool, error) {
	for frames != nil || errs != nil {
		select {
		case <-ctx.Done():
			return core.Frame{}, false, ctx.Err()
		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			return f, true, nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return core.Frame{}, false, err
			}
		}
	}
	return core.Frame{}, false, nil
}

// relay forwards first and the rest of the inner stream to out. At most one
// error is forwarded; it ends the relay.
func relay(ctx context.Context, first core.Frame, frames <-chan core.Frame, errs <-chan error, out chan<- core.Frame, outErrs chan<- error) {
	defer close(outErrs)
	defer close(out)

	send := func(f core.Frame) bool {
		select {
		case out <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}
	if !send(first) {
		return
	}
	for frames != nil || errs != nil {
		select {
		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			if !send(f) {
				return
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				outErrs <- err
				return
			}
		}
	}
}

func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	return !errors.Is(err, core.ErrUpstream)
}

var (
	_ Breaker                = (*Provider)(nil)
	_ Breaker                = (*streamingProvider)(nil)
	_ core.StreamingProvider = (*streamingProvider)(nil)
)
