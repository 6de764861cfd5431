package summary

import (
	"fmt"
	"regexp"
	"strings"

	"slack-summarizer/internal/domain"
)

// DefaultPromptBudget — ограничение суммарной длины транскрипта в символах.
const DefaultPromptBudget = 12000

// DefaultMaxMessages — верхняя граница сообщений в одном промпте.
const DefaultMaxMessages = 50

var sectionHeaders = []string{
	"## 🎯 Key Accomplishments",
	"## 🔧 Technical Updates",
	"## 🚨 Issues & Blockers",
	"## 📋 Upcoming Priorities",
	"## 💬 Notable Discussions",
}

// SectionHeaders возвращает фиксированные заголовки секций сводки.
func SectionHeaders() []string {
	headers := make([]string, len(sectionHeaders))
	copy(headers, sectionHeaders)
	return headers
}

// Prompt — собранный промпт с числом вошедших и отброшенных сообщений.
type Prompt struct {
	Text     string
	Retained int
	Dropped  int
}

// Builder собирает промпт LLM из окна сообщений с учётом бюджета.
type Builder struct {
	budget      int
	maxMessages int
}

// NewBuilder создаёт сборщик промптов.
func NewBuilder(budget, maxMessages int) *Builder {
	if budget <= 0 {
		budget = DefaultPromptBudget
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Builder{budget: budget, maxMessages: maxMessages}
}

// Build собирает промпт. Messages приходят в хронологическом порядке; при
// превышении бюджета отбрасываются самые старые, в транскрипте остаётся
// хвост окна. Строка, которая сама по себе не помещается в остаток бюджета,
// отбрасывается вместе со всеми более старыми и учитывается в Dropped:
// сериализованный транскрипт никогда не превышает бюджет. CustomPrompt
// заменяет штатную инструкцию, структура транскрипта при этом не меняется.
func (b *Builder) Build(typ domain.SummaryType, style domain.SummaryStyle, customPrompt string, messages []domain.Message) Prompt {
	lines := make([]string, 0, len(messages))
	total := 0
	// идём от новых к старым, чтобы в бюджет попал хвост окна; каждая
	// строка сериализуется с завершающим переводом строки, он входит в счёт
	for i := len(messages) - 1; i >= 0 && len(lines) < b.maxMessages; i-- {
		line := transcriptLine(messages[i])
		if total+len(line)+1 > b.budget {
			break
		}
		lines = append(lines, line)
		total += len(line) + 1
	}
	// вернуть хронологический порядок
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	dropped := len(messages) - len(lines)

	var sb strings.Builder
	if customPrompt != "" {
		sb.WriteString("Custom Request: ")
		sb.WriteString(customPrompt)
		sb.WriteString("\n\nBased on the following Slack messages, please fulfill the above request:\n\n")
	} else {
		sb.WriteString(instruction(typ, style))
	}
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if dropped > 0 {
		fmt.Fprintf(&sb, "\n... and %d earlier messages omitted\n", dropped)
	}
	if customPrompt == "" {
		sb.WriteString("\nPlease create a clear, actionable summary that helps the team understand what happened and what's coming next. Use bullet points and clear headings. Keep it concise but informative.\n")
	}
	return Prompt{Text: sb.String(), Retained: len(lines), Dropped: dropped}
}

func instruction(typ domain.SummaryType, style domain.SummaryStyle) string {
	period := "Day"
	if typ == domain.SummaryTypeEOW {
		period = "Week"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an AI assistant that creates %s (End of %s) summaries from Slack messages for engineering teams.\n\n", typ, period)
	sb.WriteString("Your task is to analyze the following Slack messages and create a comprehensive summary that would be useful for team standups and progress tracking.\n\n")
	switch style {
	case domain.StyleExecutive:
		sb.WriteString("Focus on high-level progress, milestones, and business impact.\n")
	case domain.StyleDetailed:
		sb.WriteString("Provide comprehensive details including technical aspects, progress, and context.\n")
	default:
		sb.WriteString("Focus on technical details, code changes, bugs, and implementation specifics.\n")
	}
	sb.WriteString("\nPlease organize the summary into the following sections:\n\n")
	sb.WriteString(sectionHeaders[0] + "\n- List major achievements and completed tasks\n- Highlight important milestones reached\n\n")
	sb.WriteString(sectionHeaders[1] + "\n- Code changes, deployments, and technical work\n- Bug fixes and technical decisions\n- Infrastructure or tooling updates\n\n")
	sb.WriteString(sectionHeaders[2] + "\n- Problems encountered and their resolutions\n- Current blockers and obstacles\n- Items needing attention\n\n")
	sb.WriteString(sectionHeaders[3] + "\n- Next steps and planned work\n- Items to focus on in the next period\n\n")
	sb.WriteString(sectionHeaders[4] + "\n- Important conversations and decisions\n- Team coordination and planning discussions\n\n")
	sb.WriteString("Here are the Slack messages to analyze:\n\n")
	return sb.String()
}

func transcriptLine(msg domain.Message) string {
	channel := msg.ChannelName
	if channel == "" {
		channel = msg.ChannelID
	}
	author := msg.AuthorName
	if author == "" {
		author = msg.AuthorID
	}
	return fmt.Sprintf("[%s] #%s - %s: %s", msg.PostedAt.UTC().Format("2006-01-02 15:04"), channel, author, CleanText(msg.Text))
}

var (
	reUserMention = regexp.MustCompile(`<@U[A-Z0-9]+>`)
	reChannelRef  = regexp.MustCompile(`<#C[A-Z0-9]+\|([^>]+)>`)
	reLinkLabeled = regexp.MustCompile(`<https?://[^|>]+\|([^>]+)>`)
	reLinkBare    = regexp.MustCompile(`<https?://[^>]+>`)
	reEmojiCode   = regexp.MustCompile(`:[a-zA-Z0-9_+-]+:`)
)

// CleanText приводит разметку Slack к читаемому для LLM виду: упоминания,
// ссылки и коды эмодзи заменяются или убираются, пробелы схлопываются.
func CleanText(text string) string {
	text = reUserMention.ReplaceAllString(text, "@user")
	text = reChannelRef.ReplaceAllString(text, "#$1")
	text = reLinkLabeled.ReplaceAllString(text, "$1")
	text = reLinkBare.ReplaceAllString(text, "[link]")
	text = reEmojiCode.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// EmptyBody — текст сводки по окну без сообщений; LLM при этом не вызывается.
func EmptyBody(typ domain.SummaryType, window domain.Window) string {
	return fmt.Sprintf("No messages were found for the %s period %s — %s. Nothing to summarize.",
		typ,
		window.Start.UTC().Format("2006-01-02 15:04"),
		window.End.UTC().Format("2006-01-02 15:04"))
}
