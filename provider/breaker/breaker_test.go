package breaker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/provider/mock"
	"github.com/hupe1980/agentrelay/stream"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatOnly struct{ calls int }

func (c *chatOnly) Name() string { return "chat-only" }
func (c *chatOnly) Chat(context.Context, string, []core.Message, core.CallOptions) (string, error) {
	c.calls++
	return "", core.Upstream("chat-only", errors.New("down"))
}

func TestBreaker_PassesThrough(t *testing.T) {
	inner := mock.New("m")
	inner.AddResponse("hi", "ok")
	p := New(inner)

	reply, err := p.Chat(context.Background(), "", []core.Message{core.UserMessage("hi")}, core.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, "m", p.Name())

	_, ok := p.(core.StreamingProvider)
	assert.True(t, ok, "streaming capability is preserved")
}

func TestBreaker_OpensAfterUpstreamFailures(t *testing.T) {
	inner := &chatOnly{}
	p := New(inner, func(o *Options) {
		o.MaxFailures = 2
		o.Timeout = time.Minute
	})
	_, streams := p.(core.StreamingProvider)
	assert.False(t, streams)

	for i := 0; i < 2; i++ {
		_, err := p.Chat(context.Background(), "", nil, core.CallOptions{})
		assert.ErrorIs(t, err, core.ErrUpstream)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())
	assert.Equal(t, uint32(2), p.Counts().ConsecutiveFailures)

	_, err := p.Chat(context.Background(), "", nil, core.CallOptions{})
	assert.ErrorIs(t, err, core.ErrUpstream)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls, "open circuit must not reach the provider")
}

func TestBreaker_IgnoresNonUpstreamErrors(t *testing.T) {
	inner := mock.New("m")
	p := New(inner, func(o *Options) { o.MaxFailures = 1 })
	for i := 0; i < 3; i++ {
		inner.FailNext(core.NewError("mock", core.ErrConfiguration, "missing key"))
		_, err := p.Chat(context.Background(), "", nil, core.CallOptions{})
		assert.ErrorIs(t, err, core.ErrConfiguration)
	}
	assert.Len(t, inner.Calls(), 3)
}

func TestBreaker_StreamFailsFastWhenOpen(t *testing.T) {
	inner := mock.New("m")
	p := New(inner, func(o *Options) {
		o.MaxFailures = 1
		o.Timeout = time.Minute
	})
	inner.FailNext(core.Upstream("mock", errors.New("down")))
	_, err := p.Chat(context.Background(), "", nil, core.CallOptions{})
	require.Error(t, err)

	sp := p.(core.StreamingProvider)
	frames, errs := sp.StreamChat(context.Background(), "", []core.Message{core.UserMessage("hi")}, core.CallOptions{})
	_, open := <-frames
	assert.False(t, open)
	err = <-errs
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, inner.Calls(), 1)
}

func TestBreaker_StreamStartFailuresOpenCircuit(t *testing.T) {
	inner := mock.New("m")
	p := New(inner, func(o *Options) {
		o.MaxFailures = 2
		o.Timeout = time.Minute
	})
	sp := p.(core.StreamingProvider)
	msgs := []core.Message{core.UserMessage("hi")}

	for i := 0; i < 2; i++ {
		inner.FailNext(core.Upstream("mock", errors.New("connection refused")))
		frames, errs := sp.StreamChat(context.Background(), "", msgs, core.CallOptions{})
		_, open := <-frames
		assert.False(t, open)
		assert.ErrorIs(t, <-errs, core.ErrUpstream)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	inner.FailNext(core.Upstream("mock", errors.New("connection refused")))
	frames, errs := sp.StreamChat(context.Background(), "", msgs, core.CallOptions{})
	_, open := <-frames
	assert.False(t, open)
	assert.ErrorIs(t, <-errs, gobreaker.ErrOpenState)
	assert.Len(t, inner.Calls(), 2, "open circuit must not reach the provider")
}

func TestBreaker_StreamRelaysFrames(t *testing.T) {
	inner := mock.New("m")
	inner.AddResponse("hi", "hello there")
	p := New(inner)

	frames, errs := p.(core.StreamingProvider).StreamChat(context.Background(), "", []core.Message{core.UserMessage("hi")}, core.CallOptions{})
	r := stream.NewReader(frames, errs, nil)
	var text, finish string
	for {
		d, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		text += d.Text
		finish = d.FinishReason
	}
	assert.Equal(t, "hello there", text)
	assert.Equal(t, "stop", finish)
	assert.Equal(t, uint32(0), p.Counts().TotalFailures)
	assert.Equal(t, gobreaker.StateClosed, p.State())
}

func TestBreaker_StreamIgnoresNonUpstreamStartErrors(t *testing.T) {
	inner := mock.New("m")
	p := New(inner, func(o *Options) { o.MaxFailures = 1 })
	inner.FailNext(core.NewError("mock", core.ErrConfiguration, "missing key"))

	_, errs := p.(core.StreamingProvider).StreamChat(context.Background(), "", nil, core.CallOptions{})
	assert.ErrorIs(t, <-errs, core.ErrConfiguration)
	assert.Equal(t, gobreaker.StateClosed, p.State())
}

func TestIsSuccessful(t *testing.T) {
	assert.True(t, isSuccessful(nil))
	assert.True(t, isSuccessful(context.Canceled))
	assert.True(t, isSuccessful(core.ErrMalformedResponse))
	assert.False(t, isSuccessful(core.Upstream("x", errors.New("y"))))
}
