package dedup

import (
	"context"
	"time"

	"slack-summarizer/internal/domain"
)

// DefaultTTL покрывает реалистичное окно повторной доставки вебхуков.
const DefaultTTL = 15 * time.Minute

// Store описывает атомарную запись с TTL. Реализуется Redis-кэшем.
type Store interface {
	PutNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

// Deduper реализует domain.Deduper поверх TTL-хранилища. Вставка
// отпечатка — одна неделимая операция, гонка двух одновременных доставок
// даёт ровно одного победителя.
type Deduper struct {
	store Store
	ttl   time.Duration
}

var _ domain.Deduper = (*Deduper)(nil)

// New создаёт дедупликатор.
func New(store Store, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Deduper{store: store, ttl: ttl}
}

// ShouldProcess возвращает true только первому вызвавшему для отпечатка
// в пределах TTL.
func (d *Deduper) ShouldProcess(ctx context.Context, fingerprint string) (bool, error) {
	return d.store.PutNX(ctx, key(fingerprint), []byte("1"), d.ttl)
}

// Release снимает регистрацию отпечатка после сбоя сохранения, чтобы
// следующая доставка события смогла обработаться.
func (d *Deduper) Release(ctx context.Context, fingerprint string) error {
	return d.store.Del(ctx, key(fingerprint))
}

func key(fingerprint string) string {
	return "dedup:" + fingerprint
}
