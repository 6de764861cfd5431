package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"slack-summarizer/internal/domain"
	openai "slack-summarizer/internal/infra/openai"
)

type scriptedClient struct {
	responses []response
	calls     int
}

type response struct {
	body string
	err  error
}

func (c *scriptedClient) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	idx := c.calls
	c.calls++
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	r := c.responses[idx]
	if r.err != nil {
		return openai.ChatCompletionResponse{}, r.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Content: r.body}}},
	}, nil
}

func newTestCompleter(client chatClient) (*Completer, *[]time.Duration) {
	c := NewCompleter(client, "gpt-4o-mini", time.Second, DefaultRetryPolicy(), zerolog.Nop())
	sleeps := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return c, sleeps
}

func TestComplete_RetriesTransientThenSucceeds(t *testing.T) {
	client := &scriptedClient{responses: []response{
		{err: &openai.APIError{Status: http.StatusBadGateway, Message: "bad gateway"}},
		{err: &openai.APIError{Status: http.StatusServiceUnavailable, Message: "overloaded"}},
		{body: "## summary"},
	}}
	c, sleeps := newTestCompleter(client)

	body, err := c.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if body != "## summary" {
		t.Fatalf("неожиданное тело: %q", body)
	}
	if client.calls != 3 {
		t.Fatalf("ожидали 3 попытки, получили %d", client.calls)
	}
	if len(*sleeps) != 2 {
		t.Fatalf("ожидали 2 паузы, получили %d", len(*sleeps))
	}
}

func TestComplete_RateLimitHonorsRetryAfter(t *testing.T) {
	client := &scriptedClient{responses: []response{
		{err: &openai.APIError{Status: http.StatusTooManyRequests, Message: "rate limited", RetryAfter: 2 * time.Second}},
		{body: "ok"},
	}}
	c, sleeps := newTestCompleter(client)

	if _, err := c.Complete(context.Background(), "prompt"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(*sleeps) != 1 {
		t.Fatalf("ожидали одну паузу, получили %d", len(*sleeps))
	}
	if (*sleeps)[0] < 2*time.Second {
		t.Fatalf("пауза короче подсказки Retry-After: %v", (*sleeps)[0])
	}
}

func TestComplete_TerminalErrorDoesNotRetry(t *testing.T) {
	client := &scriptedClient{responses: []response{
		{err: &openai.APIError{Status: http.StatusUnauthorized, Message: "invalid key"}},
	}}
	c, _ := newTestCompleter(client)

	_, err := c.Complete(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrAIRequestRejected) {
		t.Fatalf("ожидали ErrAIRequestRejected, получили %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("терминальный отказ не должен повторяться, попыток: %d", client.calls)
	}
}

func TestComplete_ExhaustedRetries(t *testing.T) {
	client := &scriptedClient{responses: []response{
		{err: &openai.APIError{Status: http.StatusInternalServerError, Message: "boom"}},
	}}
	c, sleeps := newTestCompleter(client)

	_, err := c.Complete(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrAIServiceUnavailable) {
		t.Fatalf("ожидали ErrAIServiceUnavailable, получили %v", err)
	}
	if client.calls != 3 {
		t.Fatalf("ожидали 3 попытки, получили %d", client.calls)
	}
	if len(*sleeps) != 2 {
		t.Fatalf("после последней попытки паузы не нужно, пауз: %d", len(*sleeps))
	}
}

func TestComplete_ContextCancelStops(t *testing.T) {
	client := &scriptedClient{responses: []response{
		{err: &openai.APIError{Status: http.StatusInternalServerError, Message: "boom"}},
	}}
	c, _ := newTestCompleter(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Complete(ctx, "prompt")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидали context.Canceled, получили %v", err)
	}
}
