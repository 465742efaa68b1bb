package core

// Role identifies the author of a Message.
type Role string

const (
	// RoleSystem marks instructions injected ahead of the dialogue.
	RoleSystem Role = "system"
	// RoleUser marks text typed by the human side of the conversation.
	RoleUser Role = "user"
	// RoleAssistant marks replies produced by a provider.
	RoleAssistant Role = "assistant"
)

// Message is a single conversation entry. Treat it as immutable once it has
// been appended to a history.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// SystemMessage constructs a system role message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage constructs a user role message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage constructs an assistant role message.
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// LastUserContent returns the content of the most recent user message or ""
// when the sequence holds none.
func LastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
