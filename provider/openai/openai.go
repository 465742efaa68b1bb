// Package openai implements core.StreamingProvider on the OpenAI Chat
// Completions API. The same adapter serves any OpenAI-compatible endpoint;
// NewOpenRouter preconfigures it for OpenRouter (the default "qwen" backend).
//
// Streamed frames are the raw JSON payloads of the SSE "data:" lines as
// received, left for the stream package to normalize.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultModel is used when neither the agent nor the provider names one.
	DefaultModel = openai.ChatModelGPT4oMini

	// OpenRouterBaseURL is the OpenRouter OpenAI-compatible endpoint.
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	// OpenRouterDefaultModel is the free model used by the "qwen" provider.
	OpenRouterDefaultModel = "deepseek/deepseek-r1-0528-qwen3-8b:free"
	// OpenRouterTimeout bounds every OpenRouter request by default.
	OpenRouterTimeout = 20 * time.Second
)

// Options configure the OpenAI provider adapter.
type Options struct {
	// Name is the registry name reported by Name(). Defaults to "openai".
	Name    string
	APIKey  string
	BaseURL string
	// Model is the fallback when a call passes an empty model.
	Model string
	// Timeout bounds each request when positive.
	Timeout time.Duration
	// Temperature and MaxTokens apply when the call does not override them.
	Temperature *float64
	MaxTokens   int
	// Headers are sent with every request.
	Headers map[string]string
	// MaxRetries overrides the client's retry count when non-nil.
	MaxRetries *int
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Provider wraps the OpenAI Chat Completions API behind core.StreamingProvider.
type Provider struct {
	client openai.Client
	opts   Options
}

// New creates an OpenAI provider.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Name:   "openai",
		Model:  DefaultModel,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return newProvider(opts)
}

// NewOpenRouter creates a provider for OpenRouter's OpenAI-compatible API,
// registered as "qwen" with the attribution headers OpenRouter expects.
func NewOpenRouter(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Name:    "qwen",
		BaseURL: OpenRouterBaseURL,
		Model:   OpenRouterDefaultModel,
		Timeout: OpenRouterTimeout,
		Headers: map[string]string{
			"HTTP-Referer": "https://github.com/hupe1980/agentrelay",
			"X-Title":      "agentrelay",
		},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return newProvider(opts)
}

func newProvider(opts Options) *Provider {
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.APIKey == "" {
		opts.Logger.Warn("provider has no api key; calls will fail", "provider", opts.Name)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	for k, v := range opts.Headers {
		clientOpts = append(clientOpts, option.WithHeader(k, v))
	}
	if opts.MaxRetries != nil {
		clientOpts = append(clientOpts, option.WithMaxRetries(*opts.MaxRetries))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &Provider{client: openai.NewClient(clientOpts...), opts: opts}
}

// Name implements core.Provider.
func (p *Provider) Name() string { return p.opts.Name }

// Chat implements core.Provider.
func (p *Provider) Chat(ctx context.Context, model string, messages []core.Message, opts core.CallOptions) (string, error) {
	params, err := p.buildParams(model, messages, opts)
	if err != nil {
		return "", err
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", core.Upstream(p.op("Chat"), err)
	}
	if len(resp.Choices) == 0 {
		return "", core.NewError(p.op("Chat"), core.ErrMalformedResponse, "no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamChat implements core.StreamingProvider.
func (p *Provider) StreamChat(ctx context.Context, model string, messages []core.Message, opts core.CallOptions) (<-chan core.Frame, <-chan error) {
	frames := make(chan core.Frame)
	errs := make(chan error, 1)

	params, err := p.buildParams(model, messages, opts)
	if err != nil {
		close(frames)
		errs <- err
		close(errs)
		return frames, errs
	}

	go func() {
		defer close(errs)
		defer close(frames)

		ctx, cancel := p.withTimeout(ctx)
		defer cancel()

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			frame := core.Frame{Format: core.FormatOpenAISSE, Data: []byte(stream.Current().RawJSON())}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			errs <- core.Upstream(p.op("StreamChat"), err)
		}
	}()

	return frames, errs
}

func (p *Provider) buildParams(model string, messages []core.Message, opts core.CallOptions) (openai.ChatCompletionNewParams, error) {
	if p.opts.APIKey == "" {
		return openai.ChatCompletionNewParams{}, core.NewError(p.op("Chat"), core.ErrConfiguration, "missing api key")
	}
	if model == "" {
		model = p.opts.Model
	}
	if model == "" {
		return openai.ChatCompletionNewParams{}, core.NewError(p.op("Chat"), core.ErrConfiguration, "missing model")
	}

	params := openai.ChatCompletionNewParams{
		Messages: buildMessages(messages),
		Model:    model,
	}
	if t := firstTemperature(opts.Temperature, p.opts.Temperature); t != nil {
		params.Temperature = openai.Float(*t)
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.opts.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	return params, nil
}

// buildMessages converts messages to OpenAI chat messages, preserving order.
func buildMessages(messages []core.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.Timeout > 0 {
		return context.WithTimeout(ctx, p.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func (p *Provider) op(method string) string { return fmt.Sprintf("openai(%s).%s", p.opts.Name, method) }

func firstTemperature(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

var _ core.StreamingProvider = (*Provider)(nil)
