// Package logging provides a minimal logging interface and adapters for agentrelay.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that registries, agents, providers and conversation managers use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping an existing *slog.Logger
//   - RelayLogger, a slog backed logger built from level and format settings
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	relay := agentrelay.New(func(o *agentrelay.Options) { o.Logger = logger })
//
// Loggers derive children with With; the relay attaches component, agent and
// session_id attributes this way. Every component defaults to NoOpLogger when
// no logger is supplied.
package logging
