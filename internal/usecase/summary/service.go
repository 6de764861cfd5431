package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"slack-summarizer/internal/domain"
	"slack-summarizer/internal/infra/metrics"
)

// Service — оркестратор построения сводок: окно, промпт, LLM, сохранение,
// постановка задачи рендеринга.
type Service struct {
	messages  domain.MessageRepo
	summaries domain.SummaryRepo
	prefs     domain.PreferencesRepo
	completer domain.Completer
	builder   *Builder
	queue     domain.RenderQueue
	renderer  domain.Renderer
	log       zerolog.Logger
	now       func() time.Time
}

// NewService создаёт сервис сводок.
func NewService(
	messages domain.MessageRepo,
	summaries domain.SummaryRepo,
	prefs domain.PreferencesRepo,
	completer domain.Completer,
	builder *Builder,
	queue domain.RenderQueue,
	renderer domain.Renderer,
	logger zerolog.Logger,
) *Service {
	return &Service{
		messages:  messages,
		summaries: summaries,
		prefs:     prefs,
		completer: completer,
		builder:   builder,
		queue:     queue,
		renderer:  renderer,
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Generate строит сводку по запросу. Пустое окно даёт фиксированный текст
// без вызова LLM; отказ LLM не оставляет в БД ничего. Сбой постановки в
// очередь рендеринга сводку не откатывает: текст уже сохранён и доступен.
func (s *Service) Generate(ctx context.Context, req domain.SummaryRequest) (domain.Summary, error) {
	if req.Type != domain.SummaryTypeEOD && req.Type != domain.SummaryTypeEOW {
		return domain.Summary{}, fmt.Errorf("%w: неизвестный тип сводки %q", domain.ErrInvalidRequest, req.Type)
	}
	metrics.IncSummaryRequest(string(req.Type))
	buildStart := time.Now()
	defer func() {
		metrics.SummaryBuildSeconds.Observe(time.Since(buildStart).Seconds())
	}()

	style := req.Style
	if style == "" {
		prefs, err := s.prefs.GetPreferences(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("summary: настройки недоступны, используем технический стиль")
			style = domain.StyleTechnical
		} else {
			style = prefs.SummaryStyle
		}
	}

	window, err := ResolveWindow(req, s.now())
	if err != nil {
		return domain.Summary{}, err
	}

	messages, err := s.messages.ListMessages(ctx, window.ChannelIDs, window.Start, window.End)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("summary: list messages: %w", err)
	}

	summary := domain.Summary{
		Type:       req.Type,
		RangeStart: window.Start,
		RangeEnd:   window.End,
		ChannelIDs: window.ChannelIDs,
	}

	if len(messages) == 0 {
		metrics.IncEmptyWindow()
		s.log.Info().Str("type", string(req.Type)).Time("start", window.Start).Time("end", window.End).Msg("summary: окно пустое, LLM не вызывается")
		summary.BodyText = EmptyBody(req.Type, window)
	} else {
		prompt := s.builder.Build(req.Type, style, req.CustomPrompt, messages)
		body, err := s.completer.Complete(ctx, prompt.Text)
		if err != nil {
			return domain.Summary{}, err
		}
		summary.BodyText = body
		summary.MessageCount = prompt.Retained
		summary.DroppedCount = prompt.Dropped
	}

	saved, err := s.summaries.CreateSummary(ctx, summary)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("summary: create: %w", err)
	}

	cause := req.Cause
	if cause == "" {
		cause = domain.RenderCauseManual
	}
	job := domain.RenderJob{
		ID:          uuid.NewString(),
		SummaryID:   saved.ID,
		RequestedAt: s.now(),
		Cause:       cause,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		metrics.IncRenderJob("enqueue_error")
		s.log.Error().Err(err).Str("summary_id", saved.ID).Msg("summary: не удалось поставить задачу рендеринга")
	} else {
		metrics.IncRenderJob("enqueued")
	}

	s.log.Info().
		Str("summary_id", saved.ID).
		Str("type", string(saved.Type)).
		Int("message_count", saved.MessageCount).
		Int("dropped_count", saved.DroppedCount).
		Msg("summary: сводка построена")
	return saved, nil
}

// Get возвращает сводку по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.Summary, error) {
	return s.summaries.GetSummary(ctx, id)
}

// History возвращает сводки от новых к старым. Limit ограничивается
// диапазоном 1..100, по умолчанию 10.
func (s *Service) History(ctx context.Context, limit, offset int) ([]domain.Summary, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.summaries.ListSummaries(ctx, limit, offset)
}

// Report возвращает байты готового документа сводки. Пока документ не
// построен — ErrRenderNotReady; после провала рендеринга — ErrRenderFailed.
func (s *Service) Report(ctx context.Context, id string) ([]byte, error) {
	summary, err := s.summaries.GetSummary(ctx, id)
	if err != nil {
		return nil, err
	}
	switch summary.RenderStatus {
	case domain.RenderAvailable:
		return s.renderer.Fetch(ctx, summary.RenderHandle)
	case domain.RenderFailed:
		return nil, domain.ErrRenderFailed
	default:
		return nil, domain.ErrRenderNotReady
	}
}
