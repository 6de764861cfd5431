package domain

import (
	"context"
	"time"
)

// MessageRepo управляет сообщениями.
type MessageRepo interface {
	// SaveMessage сохраняет сообщение. Повторная вставка того же id —
	// безвредный no-op.
	SaveMessage(ctx context.Context, msg Message) error
	// ListMessages возвращает сообщения окна [start, end) в порядке
	// posted_at, при равенстве — id.
	ListMessages(ctx context.Context, channelIDs []string, start, end time.Time) ([]Message, error)
	// DeleteMessagesBefore удаляет сообщения старше отметки.
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SummaryRepo управляет сводками.
type SummaryRepo interface {
	CreateSummary(ctx context.Context, summary Summary) (Summary, error)
	GetSummary(ctx context.Context, id string) (Summary, error)
	ListSummaries(ctx context.Context, limit, offset int) ([]Summary, error)
	// UpdateRenderStatus меняет только статус рендеринга и handle документа.
	UpdateRenderStatus(ctx context.Context, id string, status RenderStatus, handle string) error
}

// PreferencesRepo хранит настройки сводок.
type PreferencesRepo interface {
	GetPreferences(ctx context.Context) (Preferences, error)
	SavePreferences(ctx context.Context, prefs Preferences) error
}

// Deduper подавляет повторные доставки одного логического события.
type Deduper interface {
	// ShouldProcess атомарно регистрирует отпечаток и возвращает true
	// только первому вызвавшему в пределах TTL.
	ShouldProcess(ctx context.Context, fingerprint string) (bool, error)
	// Release снимает регистрацию, чтобы повторная доставка могла
	// обработаться после сбоя сохранения.
	Release(ctx context.Context, fingerprint string) error
}

// Completer выполняет вызов LLM с политикой повторов.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Renderer — внешний сервис построения документов по сводке.
type Renderer interface {
	Render(ctx context.Context, summary Summary) (string, error)
	Fetch(ctx context.Context, handle string) ([]byte, error)
}

// SlackGateway — Web API Slack для бэкфилла истории и ответов в каналы.
type SlackGateway interface {
	ListChannels(ctx context.Context) ([]ChannelInfo, error)
	FetchHistory(ctx context.Context, channelID string, oldest, latest time.Time) ([]Message, error)
	PostMessage(ctx context.Context, channelID, text, threadID string) error
}
