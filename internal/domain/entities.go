package domain

import "time"

// SummaryType определяет период сводки.
type SummaryType string

const (
	// SummaryTypeEOD — сводка за день.
	SummaryTypeEOD SummaryType = "EOD"
	// SummaryTypeEOW — сводка за неделю.
	SummaryTypeEOW SummaryType = "EOW"
)

// SummaryStyle задаёт стиль изложения сводки.
type SummaryStyle string

const (
	// StyleTechnical — упор на технические детали.
	StyleTechnical SummaryStyle = "technical"
	// StyleExecutive — упор на прогресс и бизнес-эффект.
	StyleExecutive SummaryStyle = "executive"
	// StyleDetailed — максимально подробное изложение.
	StyleDetailed SummaryStyle = "detailed"
)

// RenderStatus описывает состояние рендеринга документа сводки.
type RenderStatus string

const (
	// RenderPending — документ ещё не построен.
	RenderPending RenderStatus = "pending"
	// RenderAvailable — документ готов к скачиванию.
	RenderAvailable RenderStatus = "available"
	// RenderFailed — рендеринг завершился ошибкой; текст сводки при этом
	// остаётся действительным.
	RenderFailed RenderStatus = "failed"
)

// Message — сообщение канала Slack. После сохранения не изменяется.
type Message struct {
	ID          string
	ChannelID   string
	ChannelName string
	AuthorID    string
	AuthorName  string
	Text        string
	PostedAt    time.Time
	ThreadID    string
	CreatedAt   time.Time
}

// InboundEvent — разобранное событие вебхука. Живёт только на время
// дедупликации и сохранения, в БД не попадает.
type InboundEvent struct {
	EventID   string
	Type      string
	ChannelID string
	MessageID string
	AuthorID  string
	Text      string
	ThreadID  string
	PostedAt  time.Time
}

// Window — полуинтервал [Start, End) с необязательным фильтром каналов.
type Window struct {
	Start      time.Time
	End        time.Time
	ChannelIDs []string
}

// SummaryRequest — запрос на построение сводки. Явный диапазон полностью
// заменяет вычисляемый по типу.
type SummaryRequest struct {
	Type         SummaryType
	Start        *time.Time
	End          *time.Time
	ChannelIDs   []string
	Style        SummaryStyle
	CustomPrompt string
	Cause        RenderJobCause
}

// Summary — сохранённая сводка. BodyText после вставки не изменяется,
// меняются только RenderStatus и RenderHandle.
type Summary struct {
	ID           string
	Type         SummaryType
	RangeStart   time.Time
	RangeEnd     time.Time
	ChannelIDs   []string
	MessageCount int
	DroppedCount int
	BodyText     string
	RenderStatus RenderStatus
	RenderHandle string
	CreatedAt    time.Time
}

// Preferences — настройки сводок рабочего пространства (одна запись).
type Preferences struct {
	SummaryStyle        SummaryStyle
	IncludeThreads      bool
	FilterChannels      []string
	NotificationChannel string
	UpdatedAt           time.Time
}

// ChannelInfo — метаданные канала Slack из Web API.
type ChannelInfo struct {
	ID          string
	Name        string
	IsPrivate   bool
	MemberCount int
}
