package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	WebhookEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "События вебхука по результату обработки",
	}, []string{"result"})

	MessagesIngestedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_ingested_total",
		Help: "Сохранённые входящие сообщения",
	})

	SummaryRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "summary_requests_total",
		Help: "Запросы на построение сводки по типу",
	}, []string{"type"})

	SummaryBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "summary_build_seconds",
		Help:    "Время построения сводки",
		Buckets: prometheus.DefBuckets,
	})

	EmptyWindowsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "summary_empty_windows_total",
		Help: "Сводки по пустому окну (без вызова LLM)",
	})

	AIRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ai_retries_total",
		Help: "Повторы вызова LLM после временных сбоев",
	})

	RenderJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "render_jobs_total",
		Help: "Обработанные задачи рендеринга по итогу",
	}, []string{"status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		WebhookEventsTotal,
		MessagesIngestedTotal,
		SummaryRequestsTotal,
		SummaryBuildSeconds,
		EmptyWindowsTotal,
		AIRetriesTotal,
		RenderJobsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// IncWebhookEvent увеличивает счётчик событий вебхука.
func IncWebhookEvent(result string) {
	WebhookEventsTotal.WithLabelValues(result).Inc()
}

// IncMessageIngested увеличивает счётчик сохранённых сообщений.
func IncMessageIngested() {
	MessagesIngestedTotal.Inc()
}

// IncSummaryRequest увеличивает счётчик запросов на сводку.
func IncSummaryRequest(summaryType string) {
	SummaryRequestsTotal.WithLabelValues(summaryType).Inc()
}

// IncEmptyWindow увеличивает счётчик пустых окон.
func IncEmptyWindow() {
	EmptyWindowsTotal.Inc()
}

// IncAIRetry увеличивает счётчик повторов вызова LLM.
func IncAIRetry() {
	AIRetriesTotal.Inc()
}

// IncRenderJob увеличивает счётчик задач рендеринга.
func IncRenderJob(status string) {
	RenderJobsTotal.WithLabelValues(status).Inc()
}
