package mock

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentrelay/core"
)

var farewells = map[string]struct{}{
	"bye":     {},
	"goodbye": {},
	"see you": {},
	"see ya":  {},
}

// Infer produces the built-in conversational reply for messages. It greets
// when there is no user input, says goodbye on a farewell and otherwise
// echoes the latest (and the previous) user message.
func Infer(messages []core.Message) string {
	var users []string
	for _, m := range messages {
		if m.Role != core.RoleUser {
			continue
		}
		if c := strings.TrimSpace(m.Content); c != "" {
			users = append(users, c)
		}
	}
	if len(users) == 0 {
		return "[mock] Hello! I'm the built-in assistant. Ask me anything and we'll chat."
	}

	last := users[len(users)-1]
	if _, ok := farewells[strings.TrimRight(strings.ToLower(last), "!.?")]; ok {
		return "[mock] It was nice chatting. Talk soon!"
	}

	parts := make([]string, 0, 3)
	if len(users) > 1 {
		parts = append(parts, fmt.Sprintf("[mock] Earlier you mentioned \"%s\".", users[len(users)-2]))
	} else {
		parts = append(parts, "[mock] Nice to meet you!")
	}
	parts = append(parts, fmt.Sprintf("I hear you saying \"%s\".", last))
	if strings.HasSuffix(last, "?") {
		parts = append(parts, "I can't access real data, but I'd love to hear your thoughts.")
	} else {
		parts = append(parts, "Tell me more so we can keep the conversation going.")
	}
	return strings.Join(parts, " ")
}
