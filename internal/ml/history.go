package ml

import (
	"strings"

	"github.com/franckalain/dietplanner/internal/models"
)

// HistoryWindow is the number of prior messages sent with a chat turn
const HistoryWindow = 10

// LinearizeHistory renders the last window messages with role labels,
// followed by the new user turn.
func LinearizeHistory(history []models.ChatMessage, prompt string, window int) string {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}

	var b strings.Builder
	for _, msg := range history {
		b.WriteString(roleLabel(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	b.WriteString(roleLabel(models.RoleUser))
	b.WriteString(": ")
	b.WriteString(prompt)
	return b.String()
}

func roleLabel(r models.Role) string {
	if r == models.RoleAssistant {
		return "Assistant"
	}
	return "User"
}
