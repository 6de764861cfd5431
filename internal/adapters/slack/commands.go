package slack

import "strings"

// Command — распознанная команда упоминания бота.
type Command string

const (
	// CommandEOD — запрос сводки за день.
	CommandEOD Command = "eod"
	// CommandEOW — запрос сводки за неделю.
	CommandEOW Command = "eow"
	// CommandSync — запрос бэкфилла истории.
	CommandSync Command = "sync"
	// CommandHelp — запрос справки.
	CommandHelp Command = "help"
	// CommandUnknown — текст вне фиксированного словаря.
	CommandUnknown Command = "unknown"
)

// ParseCommand распознаёт фиксированный словарь summary/sync/help в тексте
// упоминания. Произвольные диалоги не поддерживаются.
func ParseCommand(text string) Command {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "eod", "end of day", "daily report"):
		return CommandEOD
	case containsAny(lower, "eow", "end of week", "weekly report"):
		return CommandEOW
	case strings.Contains(lower, "sync"):
		return CommandSync
	case containsAny(lower, "help", "what can you do", "commands"):
		return CommandHelp
	}
	return CommandUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// HelpText — ответ бота на команду help.
const HelpText = `I can help you with:
• *EOD report* — summarize today's messages
• *EOW report* — summarize this week's messages
• *sync* — backfill recent Slack messages
Ask in natural language and I'll do the rest.`

// DefaultReply — ответ на нераспознанное упоминание.
const DefaultReply = "I'm here to help with team summaries! Try asking for an 'EOD report' or 'EOW report', or say 'help'."
