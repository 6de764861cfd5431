package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"slack-summarizer/internal/domain"
	"slack-summarizer/internal/infra/metrics"
	openai "slack-summarizer/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// RetryPolicy задаёт единую кривую повторов для вызова LLM.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// DefaultRetryPolicy — три попытки, экспоненциальная пауза с джиттером.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		Multiplier:      2,
		MaxInterval:     8 * time.Second,
	}
}

const systemPrompt = "You are a helpful assistant that creates clear, actionable summaries from Slack messages for engineering teams."

// Completer реализует domain.Completer поверх Chat Completions с повторами
// на временных сбоях.
type Completer struct {
	client  chatClient
	model   string
	timeout time.Duration
	policy  RetryPolicy
	log     zerolog.Logger
	sleep   func(context.Context, time.Duration) error
}

var _ domain.Completer = (*Completer)(nil)

// NewCompleter создаёт клиента LLM.
func NewCompleter(client chatClient, model string, timeout time.Duration, policy RetryPolicy, logger zerolog.Logger) *Completer {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &Completer{
		client:  client,
		model:   model,
		timeout: timeout,
		policy:  policy,
		log:     logger,
		sleep:   sleepCtx,
	}
}

// Complete выполняет вызов LLM. Терминальные отказы не повторяются и сразу
// всплывают как ErrAIRequestRejected; исчерпание попыток даёт
// ErrAIServiceUnavailable. Текст промпта в логи и ошибки не попадает:
// транскрипт считается чувствительным.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.policy.InitialInterval
	bo.Multiplier = c.policy.Multiplier
	bo.MaxInterval = c.policy.MaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		body, err := c.callOnce(ctx, prompt)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		retryable, hint := classify(err)
		if !retryable {
			return "", fmt.Errorf("%w: %v", domain.ErrAIRequestRejected, err)
		}
		lastErr = err
		if attempt == c.policy.MaxAttempts {
			break
		}
		metrics.IncAIRetry()
		wait := bo.NextBackOff()
		// подсказка Retry-After сервера важнее вычисленной паузы,
		// если она больше
		if hint > wait {
			wait = hint
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("llm: повтор после временного сбоя")
		if err := c.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %v", domain.ErrAIServiceUnavailable, lastErr)
}

func (c *Completer) callOnce(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.3,
		MaxTokens:   2000,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemPrompt},
			{Role: openai.RoleUser, Content: prompt},
		},
	}
	resp, err := c.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: пустой ответ")
	}
	body := strings.TrimSpace(resp.Choices[0].Message.Content)
	if body == "" {
		return "", errors.New("llm: пустой ответ")
	}
	return body, nil
}

// classify отделяет временные сбои (сеть, таймаут, ограничение частоты,
// 5xx) от терминальных отказов, по которым повтор не поможет.
func classify(err error) (retryable bool, hint time.Duration) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusTooManyRequests:
			return true, apiErr.RetryAfter
		case apiErr.Status >= 500:
			return true, 0
		default:
			return false, 0
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true, 0
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true, 0
	}
	return false, 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
