package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"slack-summarizer/internal/adapters/slack"
	"slack-summarizer/internal/domain"
	"slack-summarizer/internal/infra/metrics"
)

// Result — итог обработки одного события вебхука.
type Result string

const (
	// ResultStored — сообщение сохранено.
	ResultStored Result = "stored"
	// ResultDuplicate — повторная доставка, подавлена дедупликацией.
	ResultDuplicate Result = "duplicate"
)

// Service принимает разобранные события вебхука: дедуплицирует и сохраняет.
type Service struct {
	dedup    domain.Deduper
	messages domain.MessageRepo
	log      zerolog.Logger
}

// NewService создаёт сервис приёма событий.
func NewService(dedup domain.Deduper, messages domain.MessageRepo, logger zerolog.Logger) *Service {
	return &Service{dedup: dedup, messages: messages, log: logger}
}

// HandleEvent обрабатывает событие: регистрирует отпечаток, сохраняет
// сообщение. При сбое сохранения отпечаток снимается, чтобы повторная
// доставка Slack смогла дообработать событие.
func (s *Service) HandleEvent(ctx context.Context, ev domain.InboundEvent) (Result, error) {
	fp := slack.Fingerprint(ev.ChannelID, ev.Type, ev.MessageID)
	first, err := s.dedup.ShouldProcess(ctx, fp)
	if err != nil {
		return "", fmt.Errorf("ingest: dedup: %w", err)
	}
	if !first {
		metrics.IncWebhookEvent("duplicate")
		s.log.Debug().Str("channel_id", ev.ChannelID).Str("message_id", ev.MessageID).Msg("ingest: повторная доставка подавлена")
		return ResultDuplicate, nil
	}

	msg := domain.Message{
		ID:        ev.ChannelID + ":" + ev.MessageID,
		ChannelID: ev.ChannelID,
		AuthorID:  ev.AuthorID,
		Text:      ev.Text,
		PostedAt:  ev.PostedAt,
		ThreadID:  ev.ThreadID,
	}
	if err := s.messages.SaveMessage(ctx, msg); err != nil {
		if relErr := s.dedup.Release(ctx, fp); relErr != nil {
			s.log.Warn().Err(relErr).Str("message_id", ev.MessageID).Msg("ingest: не удалось снять отпечаток после сбоя")
		}
		metrics.IncWebhookEvent("error")
		return "", fmt.Errorf("ingest: save message: %w", err)
	}
	metrics.IncWebhookEvent("stored")
	metrics.IncMessageIngested()
	return ResultStored, nil
}
