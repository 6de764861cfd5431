package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"slack-summarizer/internal/domain"
	"slack-summarizer/internal/infra/metrics"
)

// DefaultHoursBack — глубина бэкфилла по умолчанию.
const DefaultHoursBack = 24

// Report — итог бэкфилла истории.
type Report struct {
	Channels int       `json:"channels"`
	Messages int       `json:"messages"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Service выполняет бэкфилл истории Slack: дотягивает сообщения, которые
// вебхук мог пропустить. Сохранение идемпотентно, повторный бэкфилл
// безопасен.
type Service struct {
	gateway  domain.SlackGateway
	messages domain.MessageRepo
	prefs    domain.PreferencesRepo
	log      zerolog.Logger
}

// NewService создаёт сервис бэкфилла.
func NewService(gateway domain.SlackGateway, messages domain.MessageRepo, prefs domain.PreferencesRepo, logger zerolog.Logger) *Service {
	return &Service{gateway: gateway, messages: messages, prefs: prefs, log: logger}
}

// SyncWindow бэкфиллит последние hoursBack часов. Ошибка по одному каналу
// не прерывает обход остальных.
func (s *Service) SyncWindow(ctx context.Context, hoursBack int) (Report, error) {
	if hoursBack <= 0 {
		hoursBack = DefaultHoursBack
	}
	end := time.Now().UTC()
	start := end.Add(-time.Duration(hoursBack) * time.Hour)

	channels, err := s.gateway.ListChannels(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("sync: list channels: %w", err)
	}

	prefs, err := s.prefs.GetPreferences(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("sync: настройки недоступны, обходим все каналы")
		prefs = domain.Preferences{}
	}

	report := Report{Start: start, End: end}
	for _, channel := range channels {
		if len(prefs.FilterChannels) > 0 && !contains(prefs.FilterChannels, channel.ID) {
			continue
		}
		history, err := s.gateway.FetchHistory(ctx, channel.ID, start, end)
		if err != nil {
			s.log.Error().Err(err).Str("channel_id", channel.ID).Msg("sync: канал пропущен из-за ошибки истории")
			continue
		}
		report.Channels++
		for _, msg := range history {
			msg.ChannelName = channel.Name
			if err := s.messages.SaveMessage(ctx, msg); err != nil {
				s.log.Error().Err(err).Str("message_id", msg.ID).Msg("sync: сообщение не сохранено")
				continue
			}
			metrics.IncMessageIngested()
			report.Messages++
		}
	}

	s.log.Info().
		Int("channels", report.Channels).
		Int("messages", report.Messages).
		Int("hours_back", hoursBack).
		Msg("sync: бэкфилл завершён")
	return report, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
