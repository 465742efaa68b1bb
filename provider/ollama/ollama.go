// Package ollama implements core.StreamingProvider on the native Ollama HTTP
// API: /api/chat for synchronous replies and /api/generate for NDJSON
// streaming.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/stream"
	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is the local Ollama daemon.
	DefaultBaseURL = "http://localhost:11434"
	// DefaultTimeout bounds a whole exchange, including a full stream.
	DefaultTimeout = 120 * time.Second

	maxResponseBody = 10 * 1024 * 1024
)

// Options configures the Ollama provider.
type Options struct {
	// Name is the registry name reported by Name(). Defaults to "ollama".
	Name    string
	BaseURL string
	// Model is the fallback when a call passes an empty model.
	Model   string
	Timeout time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Provider talks to an Ollama daemon.
type Provider struct {
	opts   Options
	client *http.Client
}

// New creates an Ollama provider.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Name:    "ollama",
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Provider{opts: opts, client: client}
}

// Name implements core.Provider.
func (p *Provider) Name() string { return p.opts.Name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []chatMessage   `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *requestOptions `json:"options,omitempty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system,omitempty"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options *requestOptions `json:"options,omitempty"`
}

// Chat implements core.Provider. The reply is read from message.content,
// falling back to the OpenAI-style choices[0].message.content shape.
func (p *Provider) Chat(ctx context.Context, model string, messages []core.Message, opts core.CallOptions) (string, error) {
	const op = "ollama.Chat"
	model, err := p.model(op, model)
	if err != nil {
		return "", err
	}

	msgs := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	body, err := json.Marshal(chatRequest{Model: model, Messages: msgs, Options: requestOpts(opts)})
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", op, err)
	}

	resp, err := p.post(ctx, op, "/api/chat", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", core.Upstream(op, fmt.Errorf("read response: %w", err))
	}
	if !gjson.ValidBytes(data) {
		return "", core.NewError(op, core.ErrMalformedResponse, "invalid json response")
	}

	root := gjson.ParseBytes(data)
	if msg := root.Get("message"); msg.IsObject() {
		return msg.Get("content").String(), nil
	}
	if c := root.Get("choices.0.message.content"); c.Exists() {
		return strings.TrimSpace(c.String()), nil
	}
	return "", core.NewError(op, core.ErrMalformedResponse, "response has no message content")
}

// StreamChat implements core.StreamingProvider via /api/generate. System
// messages are joined into the system prompt and the dialogue is rendered
// as "role: content" lines ending with an open "assistant:" turn.
func (p *Provider) StreamChat(ctx context.Context, model string, messages []core.Message, opts core.CallOptions) (<-chan core.Frame, <-chan error) {
	const op = "ollama.StreamChat"
	model, err := p.model(op, model)
	if err != nil {
		return failed(err)
	}

	system, prompt := renderPrompt(messages)
	body, err := json.Marshal(generateRequest{
		Model:   model,
		System:  system,
		Prompt:  prompt,
		Stream:  true,
		Options: requestOpts(opts),
	})
	if err != nil {
		return failed(fmt.Errorf("%s: marshal request: %w", op, err))
	}

	resp, err := p.post(ctx, op, "/api/generate", body)
	if err != nil {
		return failed(err)
	}
	return stream.ScanNDJSON(ctx, resp.Body, core.FormatOllamaNDJSON)
}

// post sends a JSON request and returns the open response for status 200.
func (p *Provider) post(ctx context.Context, op, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, core.Upstream(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, core.Upstream(op, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	return resp, nil
}

func (p *Provider) model(op, model string) (string, error) {
	if model == "" {
		model = p.opts.Model
	}
	if model == "" {
		return "", core.NewError(op, core.ErrConfiguration, "model is required")
	}
	return model, nil
}

func renderPrompt(messages []core.Message) (string, string) {
	var system []string
	var b strings.Builder
	for _, m := range messages {
		if m.Role == core.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	b.WriteString("assistant:")
	return strings.Join(system, "\n\n"), b.String()
}

func requestOpts(opts core.CallOptions) *requestOptions {
	if opts.Temperature == nil && opts.MaxTokens <= 0 {
		return nil
	}
	return &requestOptions{Temperature: opts.Temperature, NumPredict: max(opts.MaxTokens, 0)}
}

func failed(err error) (<-chan core.Frame, <-chan error) {
	frames := make(chan core.Frame)
	errs := make(chan error, 1)
	errs <- err
	close(frames)
	close(errs)
	return frames, errs
}

var _ core.StreamingProvider = (*Provider)(nil)
