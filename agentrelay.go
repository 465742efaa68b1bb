// Package agentrelay provides a high-level façade over the registries, the
// conversation store and the provider adapters. Most applications interact
// with this package by:
//  1. Creating a Relay via New() or FromConfig()
//  2. Registering providers and agents (FromConfig does both)
//  3. Opening a session and running turns with Handle or Stream
//
// All defaults are in-memory and safe for local development and testing.
package agentrelay

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/conversation"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/provider/anthropic"
	"github.com/hupe1980/agentrelay/provider/breaker"
	"github.com/hupe1980/agentrelay/provider/mock"
	"github.com/hupe1980/agentrelay/provider/ollama"
	"github.com/hupe1980/agentrelay/provider/openai"
	"github.com/hupe1980/agentrelay/registry"
	"github.com/hupe1980/agentrelay/router"
)

// Options configures the Relay instance.
type Options struct {
	// Router selects the agent per turn. Defaults to router.Sticky().
	Router router.Strategy
	// Memory, when set, is bound to every agent registered through the Relay.
	Memory core.Memory
	// DefaultProvider backs agents whose spec names no provider. Defaults to
	// config.DefaultProvider.
	DefaultProvider string
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Relay aggregates the provider and agent registries with the session store.
type Relay struct {
	opts      Options
	providers *registry.ProviderRegistry
	agents    *registry.AgentRegistry
	sessions  *conversation.Store
}

// New creates an empty Relay. Providers and agents are registered afterwards.
func New(optFns ...func(o *Options)) *Relay {
	opts := Options{
		Router:          router.Sticky(),
		DefaultProvider: config.DefaultProvider,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.DefaultProvider == "" {
		opts.DefaultProvider = config.DefaultProvider
	}

	regLogger := component(opts.Logger, "registry")
	providers := registry.NewProviderRegistry(func(o *registry.Options) { o.Logger = regLogger })
	agents := registry.NewAgentRegistry(func(o *registry.Options) { o.Logger = regLogger })

	return &Relay{
		opts:      opts,
		providers: providers,
		agents:    agents,
		sessions: conversation.NewStore(agents, func(o *conversation.Options) {
			o.Router = opts.Router
			o.Logger = component(opts.Logger, "conversation")
		}),
	}
}

// FromConfig builds a Relay from a parsed configuration: every configured
// provider is constructed and registered, then every agent spec is bound to
// its provider. When optFns set no Logger, one is built from cfg.Logging.
func FromConfig(cfg *config.Config, optFns ...func(o *Options)) (*Relay, error) {
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	base := func(o *Options) {
		o.Logger = logger
		if cfg.DefaultProvider != "" {
			o.DefaultProvider = cfg.DefaultProvider
		}
	}
	r := New(append([]func(o *Options){base}, optFns...)...)

	for _, name := range slices.Sorted(maps.Keys(cfg.Providers)) {
		p, err := BuildProvider(name, cfg.Providers[name], component(r.opts.Logger, "provider"))
		if err != nil {
			return nil, err
		}
		r.RegisterProvider(name, p)
	}

	for _, id := range cfg.DuplicateAgentIDs() {
		r.opts.Logger.Warn("duplicate agent id in config; last definition wins", "agent", id)
	}
	for _, spec := range cfg.Agents {
		if err := r.RegisterAgent(spec); err != nil {
			return nil, err
		}
	}

	r.opts.Logger.Info("relay ready", "providers", r.providers.Len(), "agents", r.agents.Len())
	return r, nil
}

// NewLogger builds a RelayLogger from logging configuration.
func NewLogger(lc config.LoggingConfig) (*logging.RelayLogger, error) {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return nil, core.NewError("agentrelay.NewLogger", core.ErrConfiguration, err.Error())
	}
	return logging.NewSlogLogger(level, lc.Format, false), nil
}

// BuildProvider constructs the provider described by pc, wrapping it in a
// circuit breaker when pc.Breaker is set.
func BuildProvider(name string, pc config.ProviderConfig, logger logging.Logger) (core.Provider, error) {
	var p core.Provider
	switch pc.Type {
	case config.TypeOpenRouter, config.TypeOpenAI:
		set := func(o *openai.Options) {
			o.Name = name
			o.APIKey = pc.APIKey
			if pc.BaseURL != "" {
				o.BaseURL = pc.BaseURL
			}
			if pc.Model != "" {
				o.Model = pc.Model
			}
			if pc.Timeout > 0 {
				o.Timeout = pc.Timeout
			}
			for k, v := range pc.Headers {
				if o.Headers == nil {
					o.Headers = map[string]string{}
				}
				o.Headers[k] = v
			}
			o.Logger = logger
		}
		if pc.Type == config.TypeOpenRouter {
			p = openai.NewOpenRouter(set)
		} else {
			p = openai.New(set)
		}
	case config.TypeAnthropic:
		p = anthropic.New(func(o *anthropic.Options) {
			o.Name = name
			o.APIKey = pc.APIKey
			o.BaseURL = pc.BaseURL
			if pc.Model != "" {
				o.Model = pc.Model
			}
			o.Timeout = pc.Timeout
			o.Logger = logger
		})
	case config.TypeOllama:
		p = ollama.New(func(o *ollama.Options) {
			o.Name = name
			if pc.BaseURL != "" {
				o.BaseURL = pc.BaseURL
			}
			o.Model = pc.Model
			if pc.Timeout > 0 {
				o.Timeout = pc.Timeout
			}
			o.Logger = logger
		})
	case config.TypeMock:
		p = mock.New(name)
	default:
		return nil, core.NewError("agentrelay.BuildProvider", core.ErrConfiguration,
			fmt.Sprintf("provider %q: unknown type %q", name, pc.Type))
	}

	if pc.Breaker != nil {
		p = breaker.New(p, func(o *breaker.Options) {
			o.MaxFailures = pc.Breaker.MaxFailures
			o.Timeout = pc.Breaker.Timeout
			o.Logger = logger
		})
	}
	return p, nil
}

// RegisterProvider adds (or replaces) a provider under name.
func (r *Relay) RegisterProvider(name string, p core.Provider) { r.providers.Register(name, p) }

// RegisterAgent validates spec, resolves its provider and registers the
// resulting agent. A spec without a provider uses Options.DefaultProvider.
// An unknown provider fails with core.ErrNotFound.
func (r *Relay) RegisterAgent(spec core.AgentSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if spec.Provider == "" {
		spec.Provider = r.opts.DefaultProvider
	}
	p, err := r.providers.Get(spec.Provider)
	if err != nil {
		return fmt.Errorf("agent %q: %w", spec.ID, err)
	}
	r.agents.Register(agent.New(spec, p, func(o *agent.Options) {
		o.Memory = r.opts.Memory
		o.Logger = component(r.opts.Logger, "agent")
	}))
	return nil
}

// Providers exposes the provider registry.
func (r *Relay) Providers() *registry.ProviderRegistry { return r.providers }

// Agents exposes the agent registry.
func (r *Relay) Agents() *registry.AgentRegistry { return r.agents }

// NewSession opens an Idle session and returns its id.
func (r *Relay) NewSession() string { return r.sessions.Create() }

// Handle runs a synchronous turn on the session.
func (r *Relay) Handle(ctx context.Context, sessionID, text string, optFns ...func(o *core.CallOptions)) (string, error) {
	return r.sessions.Handle(ctx, sessionID, text, optFns...)
}

// Stream runs a streamed turn on the session, handing each delta to onDelta.
func (r *Relay) Stream(ctx context.Context, sessionID, text string, onDelta conversation.DeltaFunc, optFns ...func(o *core.CallOptions)) (string, error) {
	return r.sessions.Stream(ctx, sessionID, text, onDelta, optFns...)
}

// History returns a copy of the session history.
func (r *Relay) History(sessionID string) ([]core.Message, error) { return r.sessions.History(sessionID) }

// Active returns the session's active agent id.
func (r *Relay) Active(sessionID string) (string, error) { return r.sessions.Active(sessionID) }

// CloseSession drops the session and its history.
func (r *Relay) CloseSession(sessionID string) error { return r.sessions.Delete(sessionID) }

func component(l logging.Logger, name string) logging.Logger {
	return l.With("component", name)
}
