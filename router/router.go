// Package router holds the triage strategies that pick which agent handles
// a conversational turn. Strategy is the extension seam: the conversation
// manager depends only on the Select contract, so alternative routers
// (content classification, capability matching) can be swapped in without
// touching it.
package router

import (
	"strings"

	"github.com/hupe1980/agentrelay/core"
)

// Strategy selects an agent id given the input text, the known specs in
// registration order and the currently active agent id ("" when none).
type Strategy interface {
	Select(text string, specs []core.AgentSpec, active string) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Strategies.
type Func func(text string, specs []core.AgentSpec, active string) (string, error)

// Select implements Strategy.
func (f Func) Select(text string, specs []core.AgentSpec, active string) (string, error) {
	return f(text, specs, active)
}

// Sticky returns the default strategy. Once an agent is active it is
// returned for every subsequent input; the text is not consulted. Without
// an active agent the first registered spec wins.
func Sticky() Strategy { return Func(selectSticky) }

func selectSticky(_ string, specs []core.AgentSpec, active string) (string, error) {
	if active != "" {
		return active, nil
	}
	return first(specs)
}

func first(specs []core.AgentSpec) (string, error) {
	if len(specs) == 0 {
		return "", core.NewError("router.Select", core.ErrValidation, "no agents available")
	}
	return specs[0].ID, nil
}

// KeywordsKey is the AgentSpec.Routing entry read by the Keyword strategy.
const KeywordsKey = "keywords"

// Keyword returns a content classifying strategy. It selects the first spec
// whose routing keywords occur in the text (case-insensitive) and otherwise
// delegates to fallback, or to Sticky when fallback is nil. Unlike Sticky it
// can move an in-progress conversation to another agent.
func Keyword(fallback Strategy) Strategy {
	if fallback == nil {
		fallback = Sticky()
	}
	return Func(func(text string, specs []core.AgentSpec, active string) (string, error) {
		lower := strings.ToLower(text)
		for _, s := range specs {
			for _, kw := range keywords(s) {
				if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
					return s.ID, nil
				}
			}
		}
		return fallback.Select(text, specs, active)
	})
}

// keywords reads routing.keywords as either a list or a single string.
func keywords(s core.AgentSpec) []string {
	raw, ok := s.Routing[KeywordsKey]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
