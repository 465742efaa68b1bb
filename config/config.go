// Package config loads the agentrelay YAML configuration: the provider
// table, the default provider and the agent specs.
//
// Environment variables in the form ${VAR_NAME} are expanded before parsing
// and duration strings ("20s", "2m") are parsed into time.Duration values.
package config

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"gopkg.in/yaml.v3"
)

// Provider types understood by the loader.
const (
	TypeOpenRouter = "openrouter"
	TypeOpenAI     = "openai"
	TypeAnthropic  = "anthropic"
	TypeOllama     = "ollama"
	TypeMock       = "mock"
)

// DefaultProvider is used when default_provider is not set.
const DefaultProvider = "qwen"

// Config is the root configuration document.
type Config struct {
	DefaultProvider string                    `yaml:"default_provider"`
	Logging         LoggingConfig             `yaml:"logging"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
	Agents          []core.AgentSpec          `yaml:"agents"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProviderConfig describes one provider registry entry.
type ProviderConfig struct {
	Type    string            `yaml:"type"`
	BaseURL string            `yaml:"base_url"`
	APIKey  string            `yaml:"api_key"`
	Model   string            `yaml:"model"`
	Headers map[string]string `yaml:"headers"`
	Breaker *BreakerConfig    `yaml:"breaker"`

	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

// BreakerConfig enables a circuit breaker in front of a provider.
type BreakerConfig struct {
	MaxFailures uint32 `yaml:"max_failures"`

	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads a configuration file from the given path and returns a parsed Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given: the
// built-in providers and no agents.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to "".
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	for name, p := range cfg.Providers {
		var err error
		if p.TimeoutRaw != "" {
			if p.Timeout, err = time.ParseDuration(p.TimeoutRaw); err != nil {
				return fmt.Errorf("providers.%s.timeout %q: %w", name, p.TimeoutRaw, err)
			}
		}
		if p.Breaker != nil && p.Breaker.TimeoutRaw != "" {
			if p.Breaker.Timeout, err = time.ParseDuration(p.Breaker.TimeoutRaw); err != nil {
				return fmt.Errorf("providers.%s.breaker.timeout %q: %w", name, p.Breaker.TimeoutRaw, err)
			}
		}
		cfg.Providers[name] = p
	}
	return nil
}

// defaultProviders mirrors the three built-in backends, reading credentials
// from the environment.
func defaultProviders() map[string]ProviderConfig {
	ollamaURL := os.Getenv("OLLAMA_BASE_URL")
	return map[string]ProviderConfig{
		"qwen":   {Type: TypeOpenRouter, APIKey: os.Getenv("OPENROUTER_API_KEY"), Model: os.Getenv("MODEL_NAME")},
		"openai": {Type: TypeOpenAI, APIKey: os.Getenv("OPENAI_API_KEY")},
		"ollama": {Type: TypeOllama, BaseURL: ollamaURL},
	}
}

func (c *Config) applyDefaults() {
	if c.DefaultProvider == "" {
		c.DefaultProvider = DefaultProvider
	}
	if len(c.Providers) == 0 {
		c.Providers = defaultProviders()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	for i := range c.Agents {
		if c.Agents[i].Provider == "" {
			c.Agents[i].Provider = c.DefaultProvider
		}
	}
}

// Validate checks provider types, agent ids and agent provider references.
// It returns the first failure encountered.
func (c *Config) Validate() error {
	for _, name := range slices.Sorted(maps.Keys(c.Providers)) {
		switch p := c.Providers[name]; p.Type {
		case TypeOpenRouter, TypeOpenAI, TypeAnthropic, TypeOllama, TypeMock:
		default:
			return core.NewError("config.Validate", core.ErrConfiguration,
				fmt.Sprintf("providers.%s: unknown type %q", name, p.Type))
		}
	}
	for i, spec := range c.Agents {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("agents[%d]: %w", i, err)
		}
		if _, ok := c.Providers[spec.Provider]; !ok {
			return core.NewError("config.Validate", core.ErrConfiguration,
				fmt.Sprintf("agents[%d] (%s): provider %q is not configured", i, spec.ID, spec.Provider))
		}
	}
	return nil
}

// DuplicateAgentIDs lists agent ids that appear more than once, in first
// occurrence order. Later specs win at registration.
func (c *Config) DuplicateAgentIDs() []string {
	seen := make(map[string]int, len(c.Agents))
	var dups []string
	for _, spec := range c.Agents {
		seen[spec.ID]++
		if seen[spec.ID] == 2 {
			dups = append(dups, spec.ID)
		}
	}
	return dups
}
