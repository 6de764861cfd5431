package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"slack-summarizer/internal/domain"
)

type memMessageRepo struct {
	messages []domain.Message
	listErr  error
}

func (r *memMessageRepo) SaveMessage(_ context.Context, msg domain.Message) error {
	r.messages = append(r.messages, msg)
	return nil
}

func (r *memMessageRepo) ListMessages(_ context.Context, channelIDs []string, start, end time.Time) ([]domain.Message, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.Message
	for _, msg := range r.messages {
		if msg.PostedAt.Before(start) || !msg.PostedAt.Before(end) {
			continue
		}
		if len(channelIDs) > 0 && !containsStr(channelIDs, msg.ChannelID) {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r *memMessageRepo) DeleteMessagesBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type memSummaryRepo struct {
	mu        sync.Mutex
	summaries map[string]domain.Summary
	nextID    int
}

func newMemSummaryRepo() *memSummaryRepo {
	return &memSummaryRepo{summaries: make(map[string]domain.Summary)}
}

func (r *memSummaryRepo) CreateSummary(_ context.Context, summary domain.Summary) (domain.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if summary.ID == "" {
		r.nextID++
		summary.ID = fmt.Sprintf("sum-%03d", r.nextID)
	}
	if summary.RenderStatus == "" {
		summary.RenderStatus = domain.RenderPending
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}
	r.summaries[summary.ID] = summary
	return summary, nil
}

func (r *memSummaryRepo) GetSummary(_ context.Context, id string) (domain.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary, ok := r.summaries[id]
	if !ok {
		return domain.Summary{}, domain.ErrSummaryNotFound
	}
	return summary, nil
}

func (r *memSummaryRepo) ListSummaries(context.Context, int, int) ([]domain.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Summary
	for _, s := range r.summaries {
		out = append(out, s)
	}
	return out, nil
}

func (r *memSummaryRepo) UpdateRenderStatus(_ context.Context, id string, status domain.RenderStatus, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary, ok := r.summaries[id]
	if !ok {
		return domain.ErrSummaryNotFound
	}
	summary.RenderStatus = status
	summary.RenderHandle = handle
	r.summaries[id] = summary
	return nil
}

type memPrefsRepo struct {
	prefs domain.Preferences
}

func (r *memPrefsRepo) GetPreferences(context.Context) (domain.Preferences, error) {
	if r.prefs.SummaryStyle == "" {
		return domain.Preferences{SummaryStyle: domain.StyleTechnical, IncludeThreads: true}, nil
	}
	return r.prefs, nil
}

func (r *memPrefsRepo) SavePreferences(_ context.Context, prefs domain.Preferences) error {
	r.prefs = prefs
	return nil
}

type stubCompleter struct {
	calls int
	body  string
	err   error
}

func (c *stubCompleter) Complete(_ context.Context, _ string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.body, nil
}

type stubQueue struct {
	jobs []domain.RenderJob
	err  error
}

func (q *stubQueue) Enqueue(_ context.Context, job domain.RenderJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *stubQueue) Receive(context.Context) (domain.RenderJob, domain.RenderAckFunc, error) {
	return domain.RenderJob{}, nil, errors.New("not implemented")
}

type stubRenderer struct {
	doc []byte
}

func (r *stubRenderer) Render(context.Context, domain.Summary) (string, error) {
	return "handle-1", nil
}

func (r *stubRenderer) Fetch(context.Context, string) ([]byte, error) {
	return r.doc, nil
}

func sectionedBody() string {
	var sb strings.Builder
	for _, header := range SectionHeaders() {
		sb.WriteString(header)
		sb.WriteString("\n- item\n\n")
	}
	return sb.String()
}

func newTestService(msgRepo *memMessageRepo, sumRepo *memSummaryRepo, completer *stubCompleter, queue *stubQueue) *Service {
	svc := NewService(msgRepo, sumRepo, &memPrefsRepo{}, completer, NewBuilder(0, 0), queue, &stubRenderer{doc: []byte("%PDF-1.7")}, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2025, 9, 29, 18, 0, 0, 0, time.UTC) }
	return svc
}

func TestGenerate_EmptyWindowSkipsLLM(t *testing.T) {
	completer := &stubCompleter{body: sectionedBody()}
	queue := &stubQueue{}
	svc := newTestService(&memMessageRepo{}, newMemSummaryRepo(), completer, queue)

	summary, err := svc.Generate(context.Background(), domain.SummaryRequest{Type: domain.SummaryTypeEOD})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if completer.calls != 0 {
		t.Fatalf("LLM не должен вызываться на пустом окне, вызовов: %d", completer.calls)
	}
	if summary.MessageCount != 0 {
		t.Fatalf("ожидали 0 сообщений, получили %d", summary.MessageCount)
	}
	if !strings.Contains(summary.BodyText, "No messages were found") {
		t.Fatalf("неожиданный текст пустой сводки: %s", summary.BodyText)
	}
	if summary.RenderStatus != domain.RenderPending {
		t.Fatalf("ожидали статус pending, получили %s", summary.RenderStatus)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("ожидали одну задачу рендеринга, получили %d", len(queue.jobs))
	}
}

func TestGenerate_EndToEnd(t *testing.T) {
	msgRepo := &memMessageRepo{}
	base := time.Date(2025, 9, 29, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"deployed api v2", "fixed flaky test", "planning sprint"} {
		msgRepo.messages = append(msgRepo.messages, domain.Message{
			ID:        "C1:" + text,
			ChannelID: "C1",
			AuthorID:  "U1",
			Text:      text,
			PostedAt:  base.Add(time.Duration(i) * time.Minute),
		})
	}
	completer := &stubCompleter{body: sectionedBody()}
	queue := &stubQueue{}
	sumRepo := newMemSummaryRepo()
	svc := newTestService(msgRepo, sumRepo, completer, queue)

	summary, err := svc.Generate(context.Background(), domain.SummaryRequest{Type: domain.SummaryTypeEOD})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if completer.calls != 1 {
		t.Fatalf("ожидали один вызов LLM, получили %d", completer.calls)
	}
	if summary.MessageCount != 3 {
		t.Fatalf("ожидали 3 сообщения, получили %d", summary.MessageCount)
	}
	for _, header := range SectionHeaders() {
		if !strings.Contains(summary.BodyText, header) {
			t.Fatalf("в тексте сводки нет секции %q", header)
		}
	}
	if len(queue.jobs) != 1 || queue.jobs[0].SummaryID != summary.ID {
		t.Fatalf("задача рендеринга не привязана к сводке: %+v", queue.jobs)
	}

	got, err := svc.Get(context.Background(), summary.ID)
	if err != nil {
		t.Fatalf("не ожидали ошибку чтения: %v", err)
	}
	if got.BodyText != summary.BodyText {
		t.Fatal("текст сводки изменился при чтении")
	}
}

func TestGenerate_AIFailureLeavesNothing(t *testing.T) {
	msgRepo := &memMessageRepo{}
	msgRepo.messages = append(msgRepo.messages, domain.Message{
		ID:        "C1:1",
		ChannelID: "C1",
		Text:      "hello",
		PostedAt:  time.Date(2025, 9, 29, 10, 0, 0, 0, time.UTC),
	})
	completer := &stubCompleter{err: domain.ErrAIServiceUnavailable}
	sumRepo := newMemSummaryRepo()
	svc := newTestService(msgRepo, sumRepo, completer, &stubQueue{})

	_, err := svc.Generate(context.Background(), domain.SummaryRequest{Type: domain.SummaryTypeEOD})
	if !errors.Is(err, domain.ErrAIServiceUnavailable) {
		t.Fatalf("ожидали ErrAIServiceUnavailable, получили %v", err)
	}
	if len(sumRepo.summaries) != 0 {
		t.Fatalf("после отказа LLM в БД не должно быть сводок, есть %d", len(sumRepo.summaries))
	}
}

func TestGenerate_EnqueueFailureKeepsSummary(t *testing.T) {
	msgRepo := &memMessageRepo{}
	msgRepo.messages = append(msgRepo.messages, domain.Message{
		ID:        "C1:1",
		ChannelID: "C1",
		Text:      "hello",
		PostedAt:  time.Date(2025, 9, 29, 10, 0, 0, 0, time.UTC),
	})
	completer := &stubCompleter{body: sectionedBody()}
	sumRepo := newMemSummaryRepo()
	svc := newTestService(msgRepo, sumRepo, completer, &stubQueue{err: errors.New("broker down")})

	summary, err := svc.Generate(context.Background(), domain.SummaryRequest{Type: domain.SummaryTypeEOD})
	if err != nil {
		t.Fatalf("сбой очереди не должен валить запрос: %v", err)
	}
	if _, err := svc.Get(context.Background(), summary.ID); err != nil {
		t.Fatalf("сводка должна остаться в БД: %v", err)
	}
}

func TestGenerate_InvalidType(t *testing.T) {
	svc := newTestService(&memMessageRepo{}, newMemSummaryRepo(), &stubCompleter{}, &stubQueue{})
	_, err := svc.Generate(context.Background(), domain.SummaryRequest{Type: "monthly"})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("ожидали ErrInvalidRequest, получили %v", err)
	}
}

func TestReport_RenderStates(t *testing.T) {
	sumRepo := newMemSummaryRepo()
	svc := newTestService(&memMessageRepo{}, sumRepo, &stubCompleter{}, &stubQueue{})

	saved, err := sumRepo.CreateSummary(context.Background(), domain.Summary{BodyText: "text", Type: domain.SummaryTypeEOD})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if _, err := svc.Report(context.Background(), saved.ID); !errors.Is(err, domain.ErrRenderNotReady) {
		t.Fatalf("ожидали ErrRenderNotReady, получили %v", err)
	}

	if err := sumRepo.UpdateRenderStatus(context.Background(), saved.ID, domain.RenderFailed, ""); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := svc.Report(context.Background(), saved.ID); !errors.Is(err, domain.ErrRenderFailed) {
		t.Fatalf("ожидали ErrRenderFailed, получили %v", err)
	}
	// текст сводки после провала рендеринга остаётся действительным
	got, err := svc.Get(context.Background(), saved.ID)
	if err != nil || got.BodyText != "text" {
		t.Fatalf("текст сводки должен сохраниться: %v, %q", err, got.BodyText)
	}

	if err := sumRepo.UpdateRenderStatus(context.Background(), saved.ID, domain.RenderAvailable, "handle-1"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	doc, err := svc.Report(context.Background(), saved.ID)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(doc) == 0 {
		t.Fatal("ожидали непустой документ")
	}

	if _, err := svc.Report(context.Background(), "missing"); !errors.Is(err, domain.ErrSummaryNotFound) {
		t.Fatalf("ожидали ErrSummaryNotFound, получили %v", err)
	}
}
