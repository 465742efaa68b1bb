// Package anthropic provides a core.Provider for the Anthropic Messages API.
// It is chat only; agents bound to it cannot stream.
package anthropic

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// Options configures the Anthropic provider (model id, max tokens, API key).
type Options struct {
	// Name is the registry name reported by Name(). Defaults to "anthropic".
	Name    string
	APIKey  string
	BaseURL string
	// Model is the fallback when a call passes an empty model.
	Model       string
	Temperature *float64
	// MaxTokens is required by the API; calls without a limit use it.
	MaxTokens  int64
	Timeout    time.Duration
	MaxRetries *int
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Provider wraps the Anthropic Messages API behind core.Provider.
type Provider struct {
	client anthropic.Client
	opts   Options
}

// New creates an Anthropic provider using the official client.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Name:      "anthropic",
		Model:     string(anthropic.ModelClaude3_5Sonnet20241022),
		MaxTokens: 4096,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.APIKey == "" {
		opts.Logger.Warn("provider has no api key; calls will fail", "provider", opts.Name)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.MaxRetries != nil {
		clientOpts = append(clientOpts, option.WithMaxRetries(*opts.MaxRetries))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &Provider{client: anthropic.NewClient(clientOpts...), opts: opts}
}

// Name implements core.Provider.
func (p *Provider) Name() string { return p.opts.Name }

// Chat implements core.Provider. System messages become the request's system
// blocks; the reply is the concatenation of the returned text blocks.
func (p *Provider) Chat(ctx context.Context, model string, messages []core.Message, opts core.CallOptions) (string, error) {
	const op = "anthropic.Chat"
	if p.opts.APIKey == "" {
		return "", core.NewError(op, core.ErrConfiguration, "missing api key")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.opts.Model),
		Messages:  buildMessages(messages),
		MaxTokens: p.opts.MaxTokens,
	}
	if model != "" {
		params.Model = anthropic.Model(model)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = int64(opts.MaxTokens)
	}
	if t := opts.Temperature; t != nil {
		params.Temperature = anthropic.Float(*t)
	} else if p.opts.Temperature != nil {
		params.Temperature = anthropic.Float(*p.opts.Temperature)
	}
	if system := extractSystem(messages); len(system) > 0 {
		params.System = system
	}

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", core.Upstream(op, err)
	}

	var (
		b     strings.Builder
		found bool
	)
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
			found = true
		}
	}
	if !found {
		return "", core.NewError(op, core.ErrMalformedResponse, "no text content returned")
	}
	return b.String(), nil
}

// buildMessages converts non-system messages; consecutive turns keep their order.
func buildMessages(messages []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case core.RoleSystem:
			continue
		case core.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func extractSystem(messages []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range messages {
		if m.Role == core.RoleSystem && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return blocks
}

var _ core.Provider = (*Provider)(nil)
