package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentSpec_Validate(t *testing.T) {
	err := AgentSpec{}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	assert.NoError(t, AgentSpec{ID: "a"}.Validate())
}

func TestAgentSpec_DisplayName(t *testing.T) {
	assert.Equal(t, "a", AgentSpec{ID: "a"}.DisplayName())
	assert.Equal(t, "Alpha", AgentSpec{ID: "a", Name: "Alpha"}.DisplayName())
}

func TestError_WrapsSentinel(t *testing.T) {
	err := NewError("AgentRegistry.Get", ErrNotFound, "agent \"x\"")
	assert.Equal(t, "AgentRegistry.Get: agent \"x\": not found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)

	var target *Error
	wrapped := fmt.Errorf("turn: %w", err)
	require.ErrorAs(t, wrapped, &target)
	assert.Equal(t, "AgentRegistry.Get", target.Op)
}

func TestUpstream_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream("openai.Chat", cause)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, cause)
}

func TestNewCallOptions(t *testing.T) {
	opts := NewCallOptions(WithTemperature(0.2), WithMaxTokens(64), WithTimeout(time.Second))
	require.NotNil(t, opts.Temperature)
	assert.InDelta(t, 0.2, *opts.Temperature, 1e-9)
	assert.Equal(t, 64, opts.MaxTokens)
	assert.Equal(t, time.Second, opts.Timeout)

	assert.Equal(t, CallOptions{}, NewCallOptions())
}

func TestLastUserContent(t *testing.T) {
	msgs := []Message{SystemMessage("s"), UserMessage("one"), AssistantMessage("r"), UserMessage("two"), AssistantMessage("r2")}
	assert.Equal(t, "two", LastUserContent(msgs))
	assert.Equal(t, "", LastUserContent([]Message{SystemMessage("s")}))
}

func TestFrameFormat_String(t *testing.T) {
	assert.Equal(t, "openai-sse", FormatOpenAISSE.String())
	assert.Equal(t, "ollama-ndjson", FormatOllamaNDJSON.String())
	assert.Equal(t, "unknown", FrameFormat(42).String())
}
