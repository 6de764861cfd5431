package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"slack-summarizer/internal/domain"
)

// MaxSkew — допустимое расхождение метки времени запроса. Защита от
// воспроизведения старых запросов.
const MaxSkew = 5 * time.Minute

const signaturePrefix = "v0="

// Verifier проверяет подлинность вебхуков Slack.
type Verifier struct {
	secret []byte
}

// NewVerifier создаёт верификатор с секретом подписи.
func NewVerifier(signingSecret string) *Verifier {
	return &Verifier{secret: []byte(signingSecret)}
}

// Verify сверяет подпись запроса. Базовая строка: "v0:<timestamp>:<body>",
// подпись — hex HMAC-SHA256 с префиксом "v0=". Чистая функция, отказ
// никогда не повторяется.
func (v *Verifier) Verify(body []byte, timestamp, signature string, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: некорректная метка времени %q", domain.ErrStaleRequest, timestamp)
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxSkew {
		return domain.ErrStaleRequest
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	expected := signaturePrefix + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.ErrInvalidSignature
	}
	return nil
}
