package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slack-summarizer/internal/adapters/ai"
	"slack-summarizer/internal/adapters/dedup"
	"slack-summarizer/internal/adapters/renderer"
	"slack-summarizer/internal/adapters/repo"
	"slack-summarizer/internal/adapters/slack"
	"slack-summarizer/internal/domain"
	"slack-summarizer/internal/infra/cache"
	"slack-summarizer/internal/infra/config"
	"slack-summarizer/internal/infra/db"
	httpinfra "slack-summarizer/internal/infra/http"
	applog "slack-summarizer/internal/infra/log"
	"slack-summarizer/internal/infra/metrics"
	"slack-summarizer/internal/infra/openai"
	"slack-summarizer/internal/infra/queue"
	ingestusecase "slack-summarizer/internal/usecase/ingest"
	summaryusecase "slack-summarizer/internal/usecase/summary"
	syncusecase "slack-summarizer/internal/usecase/sync"
)

const maxWebhookBody = 1 << 20

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("api: не указан адрес Redis (REDIS_ADDR)")
	}
	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	deduper := dedup.New(cache.NewRedis(redisClient), cfg.Limits.DedupTTL)

	if cfg.Slack.SigningSecret == "" {
		logger.Fatal().Msg("api: не указан секрет подписи Slack (SLACK_SIGNING_SECRET)")
	}
	verifier := slack.NewVerifier(cfg.Slack.SigningSecret)
	slackClient := slack.NewClient(cfg.Slack.BotToken, cfg.Slack.BaseURL, 15*time.Second)

	completer := ai.NewCompleter(
		openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout),
		cfg.OpenAI.Model,
		cfg.OpenAI.Timeout,
		ai.DefaultRetryPolicy(),
		logger.With().Str("component", "llm").Logger(),
	)
	rendererClient := renderer.NewClient(cfg.Renderer.BaseURL, cfg.Renderer.Timeout)

	var renderQueue domain.RenderQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitRenderQueue(cfg.RabbitURL, cfg.Queues.Render)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbit.Close()
		renderQueue = rabbit
	} else {
		logger.Warn().Msg("api: RabbitMQ не настроен, очередь рендеринга работает на Redis")
		renderQueue = queue.NewRedisRenderQueue(redisClient, cfg.Queues.Render)
	}

	builder := summaryusecase.NewBuilder(cfg.Limits.PromptBudget, cfg.Limits.MaxMessages)
	summarySvc := summaryusecase.NewService(repoAdapter, repoAdapter, repoAdapter, completer, builder, renderQueue, rendererClient, logger.With().Str("component", "summary").Logger())
	ingestSvc := ingestusecase.NewService(deduper, repoAdapter, logger.With().Str("component", "ingest").Logger())
	syncSvc := syncusecase.NewService(slackClient, repoAdapter, repoAdapter, logger.With().Str("component", "sync").Logger())

	srv := httpinfra.NewServer(logger)
	r := srv.Router

	r.Post("/api/v1/slack/events", func(w http.ResponseWriter, req *http.Request) {
		defer req.Body.Close()
		body, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		timestamp := req.Header.Get("X-Slack-Request-Timestamp")
		signature := req.Header.Get("X-Slack-Signature")
		if err := verifier.Verify(body, timestamp, signature, time.Now()); err != nil {
			metrics.IncWebhookEvent("rejected")
			logger.Warn().Str("remote", req.RemoteAddr).Str("reason", domain.ErrorKind(err)).Msg("api: вебхук отклонён")
			writeError(w, http.StatusUnauthorized, "signature verification failed")
			return
		}

		env, err := slack.ParseEnvelope(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid event payload")
			return
		}
		if env.Type == slack.EnvelopeURLVerification {
			writeJSON(w, map[string]string{"challenge": env.Challenge})
			return
		}
		if env.Type == slack.EnvelopeEventCallback && env.Event != nil && env.Event.Type == slack.EventTypeAppMention {
			mention := *env.Event
			// упоминания тоже доставляются как минимум однажды; повтор
			// не должен строить вторую сводку и дублировать ответ в тред
			if !shouldHandleMention(req.Context(), deduper, logger, mention) {
				metrics.IncWebhookEvent("duplicate")
				writeJSON(w, map[string]string{"status": "duplicate"})
				return
			}
			// ответ в Slack уходит асинхронно, вебхук подтверждаем сразу
			go handleMention(summarySvc, syncSvc, slackClient, logger, mention)
			writeJSON(w, map[string]string{"status": "accepted"})
			return
		}

		ev, ok := env.ToInboundEvent()
		if !ok {
			metrics.IncWebhookEvent("ignored")
			writeJSON(w, map[string]string{"status": "ignored"})
			return
		}
		result, err := ingestSvc.HandleEvent(req.Context(), ev)
		if err != nil {
			logger.Error().Err(err).Msg("api: обработка события не удалась")
			writeError(w, http.StatusInternalServerError, "failed to process event")
			return
		}
		writeJSON(w, map[string]string{"status": string(result)})
	})

	r.Post("/api/v1/summaries", func(w http.ResponseWriter, req *http.Request) {
		defer req.Body.Close()
		var body generateRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		summaryReq := domain.SummaryRequest{
			Type:         domain.SummaryType(body.Type),
			ChannelIDs:   body.Channels,
			Style:        domain.SummaryStyle(body.Style),
			CustomPrompt: body.CustomPrompt,
			Cause:        domain.RenderCauseManual,
		}
		if body.DateRange != nil {
			summaryReq.Start = body.DateRange.Start
			summaryReq.End = body.DateRange.End
		}
		summary, err := summarySvc.Generate(req.Context(), summaryReq)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, toSummaryResponse(summary))
	})

	r.Get("/api/v1/summaries", func(w http.ResponseWriter, req *http.Request) {
		limit := queryInt(req, "limit", 10)
		offset := queryInt(req, "offset", 0)
		summaries, err := summarySvc.History(req.Context(), limit, offset)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		out := make([]summaryResponse, 0, len(summaries))
		for _, s := range summaries {
			out = append(out, toSummaryResponse(s))
		}
		writeJSON(w, map[string]any{"summaries": out})
	})

	r.Get("/api/v1/summaries/{id}", func(w http.ResponseWriter, req *http.Request) {
		summary, err := summarySvc.Get(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, toSummaryResponse(summary))
	})

	r.Get("/api/v1/summaries/{id}/report", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		doc, err := summarySvc.Report(req.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrRenderNotReady):
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusAccepted)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
			case errors.Is(err, domain.ErrRenderFailed):
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadGateway)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "failed"})
			default:
				writeDomainError(w, logger, err)
			}
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "summary-"+id+".pdf"))
		_, _ = w.Write(doc)
	})

	r.Post("/api/v1/slack/sync", func(w http.ResponseWriter, req *http.Request) {
		var body syncRequest
		if req.Body != nil {
			_ = json.NewDecoder(req.Body).Decode(&body)
			_ = req.Body.Close()
		}
		go func() {
			syncCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if _, err := syncSvc.SyncWindow(syncCtx, body.HoursBack); err != nil {
				logger.Error().Err(err).Msg("api: фоновый бэкфилл не удался")
			}
		}()
		writeJSON(w, map[string]string{"status": "started"})
	})

	r.Get("/api/v1/preferences", func(w http.ResponseWriter, req *http.Request) {
		prefs, err := repoAdapter.GetPreferences(req.Context())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, toPreferencesResponse(prefs))
	})

	r.Put("/api/v1/preferences", func(w http.ResponseWriter, req *http.Request) {
		defer req.Body.Close()
		var body preferencesRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		style := domain.SummaryStyle(body.SummaryStyle)
		switch style {
		case domain.StyleTechnical, domain.StyleExecutive, domain.StyleDetailed:
		default:
			writeError(w, http.StatusBadRequest, "unknown summary style")
			return
		}
		prefs := domain.Preferences{
			SummaryStyle:        style,
			IncludeThreads:      body.IncludeThreads,
			FilterChannels:      body.FilterChannels,
			NotificationChannel: body.NotificationChannel,
		}
		if err := repoAdapter.SavePreferences(req.Context(), prefs); err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	})

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// shouldHandleMention регистрирует отпечаток упоминания. При недоступном
// хранилище дедупликации упоминание обрабатывается: двойной ответ лучше
// молчания.
func shouldHandleMention(ctx context.Context, deduper domain.Deduper, logger zerolog.Logger, mention slack.EventBody) bool {
	fp := slack.Fingerprint(mention.Channel, mention.Type, mention.TS)
	first, err := deduper.ShouldProcess(ctx, fp)
	if err != nil {
		logger.Warn().Err(err).Str("channel", mention.Channel).Msg("api: дедупликация упоминания недоступна")
		return true
	}
	return first
}

// handleMention обрабатывает упоминание бота: распознанная команда строит
// сводку или запускает бэкфилл, результат уходит ответом в тред.
func handleMention(
	summarySvc *summaryusecase.Service,
	syncSvc *syncusecase.Service,
	gateway domain.SlackGateway,
	logger zerolog.Logger,
	mention slack.EventBody,
) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	threadTS := mention.ThreadTS
	if threadTS == "" {
		threadTS = mention.TS
	}
	reply := func(text string) {
		if err := gateway.PostMessage(ctx, mention.Channel, text, threadTS); err != nil {
			logger.Error().Err(err).Str("channel", mention.Channel).Msg("api: ответ на упоминание не отправлен")
		}
	}

	cmd := slack.ParseCommand(mention.Text)
	switch cmd {
	case slack.CommandEOD, slack.CommandEOW:
		typ := domain.SummaryTypeEOD
		if cmd == slack.CommandEOW {
			typ = domain.SummaryTypeEOW
		}
		summary, err := summarySvc.Generate(ctx, domain.SummaryRequest{Type: typ, Cause: domain.RenderCauseManual})
		if err != nil {
			logger.Error().Err(err).Str("type", string(typ)).Msg("api: сводка по упоминанию не построена")
			reply("Sorry, I couldn't generate the summary right now. Please try again later.")
			return
		}
		reply(summary.BodyText)
	case slack.CommandSync:
		report, err := syncSvc.SyncWindow(ctx, 0)
		if err != nil {
			reply("Sync failed, please try again later.")
			return
		}
		reply(fmt.Sprintf("Synced %d messages from %d channels.", report.Messages, report.Channels))
	case slack.CommandHelp:
		reply(slack.HelpText)
	default:
		reply(slack.DefaultReply)
	}
}

type generateRequest struct {
	Type         string     `json:"type"`
	DateRange    *dateRange `json:"date_range,omitempty"`
	Channels     []string   `json:"channels,omitempty"`
	Style        string     `json:"style,omitempty"`
	CustomPrompt string     `json:"custom_prompt,omitempty"`
}

type dateRange struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

type syncRequest struct {
	HoursBack int `json:"hours_back,omitempty"`
}

type preferencesRequest struct {
	SummaryStyle        string   `json:"summary_style"`
	IncludeThreads      bool     `json:"include_threads"`
	FilterChannels      []string `json:"filter_channels,omitempty"`
	NotificationChannel string   `json:"notification_channel,omitempty"`
}

type summaryResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	SummaryText  string    `json:"summary_text"`
	RenderStatus string    `json:"render_status"`
	RenderHandle string    `json:"render_handle,omitempty"`
	GeneratedAt  time.Time `json:"generated_at"`
	MessageCount int       `json:"message_count"`
	DroppedCount int       `json:"dropped_count,omitempty"`
	RangeStart   time.Time `json:"range_start"`
	RangeEnd     time.Time `json:"range_end"`
	Channels     []string  `json:"channels,omitempty"`
}

func toSummaryResponse(s domain.Summary) summaryResponse {
	return summaryResponse{
		ID:           s.ID,
		Type:         string(s.Type),
		SummaryText:  s.BodyText,
		RenderStatus: string(s.RenderStatus),
		RenderHandle: s.RenderHandle,
		GeneratedAt:  s.CreatedAt,
		MessageCount: s.MessageCount,
		DroppedCount: s.DroppedCount,
		RangeStart:   s.RangeStart,
		RangeEnd:     s.RangeEnd,
		Channels:     s.ChannelIDs,
	}
}

func toPreferencesResponse(p domain.Preferences) map[string]any {
	return map[string]any{
		"summary_style":        p.SummaryStyle,
		"include_threads":      p.IncludeThreads,
		"filter_channels":      p.FilterChannels,
		"notification_channel": p.NotificationChannel,
		"updated_at":           p.UpdatedAt,
	}
}

func queryInt(req *http.Request, name string, def int) int {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}

// writeDomainError переводит доменную ошибку в HTTP-статус и стабильный код.
func writeDomainError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	kind := domain.ErrorKind(err)
	status := http.StatusInternalServerError
	switch kind {
	case "unauthorized":
		status = http.StatusUnauthorized
	case "invalid_request", "ai_rejected":
		status = http.StatusBadRequest
	case "ai_unavailable", "render_failed":
		status = http.StatusBadGateway
	case "not_found":
		status = http.StatusNotFound
	case "render_pending":
		status = http.StatusAccepted
	}
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("api: внутренняя ошибка")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": kind, "detail": err.Error()})
}
