package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"slack-summarizer/internal/adapters/slack"
)

type stubDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (d *stubDeduper) ShouldProcess(_ context.Context, fingerprint string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[fingerprint] {
		return false, nil
	}
	d.seen[fingerprint] = true
	return true, nil
}

func (d *stubDeduper) Release(_ context.Context, fingerprint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, fingerprint)
	return nil
}

func TestShouldHandleMention_RedeliverySuppressed(t *testing.T) {
	mention := slack.EventBody{Type: slack.EventTypeAppMention, Channel: "C1", User: "U1", Text: "<@UBOT> eod", TS: "1727629380.000200"}
	deduper := &stubDeduper{}

	if !shouldHandleMention(context.Background(), deduper, zerolog.Nop(), mention) {
		t.Fatal("первая доставка упоминания должна обрабатываться")
	}
	if shouldHandleMention(context.Background(), deduper, zerolog.Nop(), mention) {
		t.Fatal("повторная доставка упоминания должна подавляться")
	}

	other := mention
	other.TS = "1727629390.000100"
	if !shouldHandleMention(context.Background(), deduper, zerolog.Nop(), other) {
		t.Fatal("другое упоминание не должно задеваться чужим отпечатком")
	}
}

func TestShouldHandleMention_DedupErrorFallsOpen(t *testing.T) {
	mention := slack.EventBody{Type: slack.EventTypeAppMention, Channel: "C1", TS: "1727629380.000200"}
	deduper := &stubDeduper{err: errors.New("redis down")}

	if !shouldHandleMention(context.Background(), deduper, zerolog.Nop(), mention) {
		t.Fatal("при недоступной дедупликации упоминание обрабатывается")
	}
}
