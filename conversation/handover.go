package conversation

import (
	"strings"

	"github.com/hupe1980/agentrelay/core"
)

const (
	// HandoverWindow is the number of trailing history entries summarized.
	HandoverWindow = 8
	// HandoverMaxRunes caps the summary length; longer summaries keep their tail.
	HandoverMaxRunes = 600
)

// BuildHandover renders the most recent history entries as
// "<role>: <content>" joined by " | ", truncated to the trailing
// HandoverMaxRunes characters.
func BuildHandover(history []core.Message) string {
	start := max(len(history)-HandoverWindow, 0)
	parts := make([]string, 0, len(history)-start)
	for _, m := range history[start:] {
		parts = append(parts, string(m.Role)+": "+m.Content)
	}
	summary := strings.Join(parts, " | ")

	runes := []rune(summary)
	if len(runes) > HandoverMaxRunes {
		return string(runes[len(runes)-HandoverMaxRunes:])
	}
	return summary
}

// needsHandover reports whether a turn routed to selected must carry a summary.
func needsHandover(active, selected string, historyLen int) bool {
	return active != "" && selected != active && historyLen > 0
}
