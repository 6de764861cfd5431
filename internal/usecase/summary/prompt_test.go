package summary

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"slack-summarizer/internal/domain"
)

func makeMessages(n int) []domain.Message {
	base := time.Date(2025, 9, 29, 9, 0, 0, 0, time.UTC)
	msgs := make([]domain.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, domain.Message{
			ID:          fmt.Sprintf("C1:%d", i),
			ChannelID:   "C1",
			ChannelName: "eng-backend",
			AuthorID:    fmt.Sprintf("U%d", i),
			AuthorName:  fmt.Sprintf("user%d", i),
			Text:        fmt.Sprintf("message number %d", i),
			PostedAt:    base.Add(time.Duration(i) * time.Minute),
		})
	}
	return msgs
}

func TestBuild_ContainsSectionsAndTranscript(t *testing.T) {
	b := NewBuilder(0, 0)
	p := b.Build(domain.SummaryTypeEOD, domain.StyleTechnical, "", makeMessages(3))

	for _, header := range SectionHeaders() {
		if !strings.Contains(p.Text, header) {
			t.Fatalf("в промпте нет заголовка %q", header)
		}
	}
	if !strings.Contains(p.Text, "[2025-09-29 09:00] #eng-backend - user0: message number 0") {
		t.Fatalf("строка транскрипта не в ожидаемом формате:\n%s", p.Text)
	}
	if p.Retained != 3 || p.Dropped != 0 {
		t.Fatalf("ожидали 3/0, получили %d/%d", p.Retained, p.Dropped)
	}
	// хронологический порядок
	first := strings.Index(p.Text, "message number 0")
	last := strings.Index(p.Text, "message number 2")
	if first < 0 || last < 0 || first > last {
		t.Fatal("транскрипт не в хронологическом порядке")
	}
}

func TestBuild_CapDropsOldest(t *testing.T) {
	b := NewBuilder(0, 0)
	p := b.Build(domain.SummaryTypeEOD, domain.StyleTechnical, "", makeMessages(60))

	if p.Retained != DefaultMaxMessages {
		t.Fatalf("ожидали %d сообщений, получили %d", DefaultMaxMessages, p.Retained)
	}
	if p.Dropped != 10 {
		t.Fatalf("ожидали 10 отброшенных, получили %d", p.Dropped)
	}
	if strings.Contains(p.Text, "message number 0\n") {
		t.Fatal("самое старое сообщение должно быть отброшено")
	}
	if !strings.Contains(p.Text, "message number 59") {
		t.Fatal("самое новое сообщение должно остаться")
	}
	if !strings.Contains(p.Text, "... and 10 earlier messages omitted") {
		t.Fatal("нет пометки об отброшенных сообщениях")
	}
}

func TestBuild_BudgetKeepsTail(t *testing.T) {
	msgs := makeMessages(10)
	// бюджет на две-три строки
	b := NewBuilder(150, 0)
	p := b.Build(domain.SummaryTypeEOD, domain.StyleTechnical, "", msgs)

	if p.Retained >= 10 {
		t.Fatalf("ожидали усечение по бюджету, осталось %d", p.Retained)
	}
	if !strings.Contains(p.Text, "message number 9") {
		t.Fatal("последнее сообщение окна должно остаться в транскрипте")
	}
}

func TestBuild_OversizedMessageDropped(t *testing.T) {
	msg := makeMessages(1)[0]
	msg.Text = strings.Repeat("x", 500)
	b := NewBuilder(100, 0)
	p := b.Build(domain.SummaryTypeEOD, domain.StyleTechnical, "", []domain.Message{msg})

	if p.Retained != 0 || p.Dropped != 1 {
		t.Fatalf("строка больше бюджета должна отбрасываться: %d/%d", p.Retained, p.Dropped)
	}
	if strings.Contains(p.Text, msg.Text) {
		t.Fatal("текст сообщения сверх бюджета не должен попадать в промпт")
	}
}

func TestBuild_SerializedTranscriptWithinBudget(t *testing.T) {
	msgs := makeMessages(2)
	lineLen := 0
	for _, msg := range msgs {
		// каждая строка занимает в транскрипте len(line)+1 байт
		lineLen += len(transcriptLine(msg)) + 1
	}

	// бюджет ровно на обе строки
	p := NewBuilder(lineLen, 0).Build(domain.SummaryTypeEOD, domain.StyleTechnical, "", msgs)
	if p.Retained != 2 || p.Dropped != 0 {
		t.Fatalf("обе строки помещаются в бюджет: %d/%d", p.Retained, p.Dropped)
	}

	// на байт меньше — старая строка отбрасывается
	p = NewBuilder(lineLen-1, 0).Build(domain.SummaryTypeEOD, domain.StyleTechnical, "", msgs)
	if p.Retained != 1 || p.Dropped != 1 {
		t.Fatalf("бюджет без одного байта должен вытеснить старую строку: %d/%d", p.Retained, p.Dropped)
	}
	if !strings.Contains(p.Text, "message number 1") {
		t.Fatal("в транскрипте должно остаться самое новое сообщение")
	}
	if strings.Contains(p.Text, "message number 0\n") {
		t.Fatal("старое сообщение должно быть отброшено")
	}
}

func TestBuild_CustomPromptReplacesInstruction(t *testing.T) {
	b := NewBuilder(0, 0)
	p := b.Build(domain.SummaryTypeEOD, domain.StyleTechnical, "list only deploy events", makeMessages(2))

	if !strings.HasPrefix(p.Text, "Custom Request: list only deploy events") {
		t.Fatalf("промпт не начинается с пользовательского запроса:\n%s", p.Text)
	}
	if strings.Contains(p.Text, sectionHeaders[0]) {
		t.Fatal("штатная инструкция не должна попадать в кастомный промпт")
	}
	if !strings.Contains(p.Text, "message number 1") {
		t.Fatal("транскрипт должен присутствовать и в кастомном промпте")
	}
}

func TestBuild_StyleModifiers(t *testing.T) {
	b := NewBuilder(0, 0)
	msgs := makeMessages(1)

	tech := b.Build(domain.SummaryTypeEOD, domain.StyleTechnical, "", msgs)
	if !strings.Contains(tech.Text, "Focus on technical details") {
		t.Fatal("нет технического модификатора стиля")
	}
	exec := b.Build(domain.SummaryTypeEOD, domain.StyleExecutive, "", msgs)
	if !strings.Contains(exec.Text, "high-level progress, milestones") {
		t.Fatal("нет executive модификатора стиля")
	}
	detailed := b.Build(domain.SummaryTypeEOW, domain.StyleDetailed, "", msgs)
	if !strings.Contains(detailed.Text, "comprehensive details") {
		t.Fatal("нет detailed модификатора стиля")
	}
	if !strings.Contains(detailed.Text, "End of Week") {
		t.Fatal("EOW должен упоминать End of Week")
	}
}

func TestCleanText(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"hey <@U12345> check this", "hey @user check this"},
		{"see <#C98765|eng-infra> please", "see #eng-infra please"},
		{"docs at <https://example.com/wiki|the wiki>", "docs at the wiki"},
		{"raw <https://example.com/page>", "raw [link]"},
		{"done :tada: :+1:", "done"},
		{"  too   many\t spaces \n here ", "too many spaces here"},
	}
	for _, tc := range cases {
		if got := CleanText(tc.in); got != tc.want {
			t.Errorf("CleanText(%q) = %q, ожидали %q", tc.in, got, tc.want)
		}
	}
}
