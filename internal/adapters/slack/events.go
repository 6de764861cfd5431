package slack

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"slack-summarizer/internal/domain"
)

// Типы конвертов и событий Events API.
const (
	EnvelopeURLVerification = "url_verification"
	EnvelopeEventCallback   = "event_callback"

	EventTypeMessage    = "message"
	EventTypeAppMention = "app_mention"
)

// EventEnvelope — внешний конверт события Slack Events API.
type EventEnvelope struct {
	Type      string     `json:"type"`
	Challenge string     `json:"challenge,omitempty"`
	EventID   string     `json:"event_id,omitempty"`
	Event     *EventBody `json:"event,omitempty"`
}

// EventBody — вложенное событие конверта.
type EventBody struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype,omitempty"`
	Channel  string `json:"channel"`
	User     string `json:"user"`
	BotID    string `json:"bot_id,omitempty"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// ParseEnvelope разбирает тело вебхука.
func ParseEnvelope(body []byte) (EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return EventEnvelope{}, fmt.Errorf("разбор конверта события: %w", err)
	}
	return env, nil
}

// skippedSubtypes — системные сообщения, которые не попадают в хранилище.
var skippedSubtypes = map[string]struct{}{
	"bot_message":   {},
	"channel_join":  {},
	"channel_leave": {},
}

// ToInboundEvent переводит конверт в доменное событие. Второй результат
// false означает, что событие сохранять не нужно.
func (e EventEnvelope) ToInboundEvent() (domain.InboundEvent, bool) {
	ev := e.Event
	if e.Type != EnvelopeEventCallback || ev == nil || ev.Type != EventTypeMessage {
		return domain.InboundEvent{}, false
	}
	if _, skip := skippedSubtypes[ev.Subtype]; skip || ev.BotID != "" {
		return domain.InboundEvent{}, false
	}
	if ev.Channel == "" || ev.TS == "" {
		return domain.InboundEvent{}, false
	}
	posted, err := ParseTS(ev.TS)
	if err != nil {
		return domain.InboundEvent{}, false
	}
	return domain.InboundEvent{
		EventID:   e.EventID,
		Type:      ev.Type,
		ChannelID: ev.Channel,
		MessageID: ev.TS,
		AuthorID:  ev.User,
		Text:      ev.Text,
		ThreadID:  ev.ThreadTS,
		PostedAt:  posted,
	}, true
}

// Fingerprint строит отпечаток логической идентичности события. Счётчики
// повторной доставки и прочие транспортные метаданные в отпечаток не входят.
func Fingerprint(channelID, eventType, messageID string) string {
	h := sha256.Sum256([]byte(channelID + "\n" + eventType + "\n" + messageID))
	return hex.EncodeToString(h[:])
}

// ParseTS переводит Slack ts вида "1727629380.000200" во время UTC.
func ParseTS(ts string) (time.Time, error) {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("разбор ts %q: %w", ts, err)
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), nil
}
