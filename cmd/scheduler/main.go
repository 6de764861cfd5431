package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"slack-summarizer/internal/adapters/ai"
	"slack-summarizer/internal/adapters/renderer"
	"slack-summarizer/internal/adapters/repo"
	"slack-summarizer/internal/adapters/slack"
	"slack-summarizer/internal/domain"
	"slack-summarizer/internal/infra/config"
	"slack-summarizer/internal/infra/db"
	applog "slack-summarizer/internal/infra/log"
	"slack-summarizer/internal/infra/metrics"
	"slack-summarizer/internal/infra/openai"
	"slack-summarizer/internal/infra/queue"
	summaryusecase "slack-summarizer/internal/usecase/summary"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "scheduler")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var renderQueue domain.RenderQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitRenderQueue(cfg.RabbitURL, cfg.Queues.Render)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbit.Close()
		renderQueue = rabbit
	} else {
		if cfg.RedisAddr == "" {
			logger.Fatal().Msg("scheduler: не настроен ни RabbitMQ, ни Redis")
		}
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		renderQueue = queue.NewRedisRenderQueue(redisClient, cfg.Queues.Render)
	}

	completer := ai.NewCompleter(
		openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout),
		cfg.OpenAI.Model,
		cfg.OpenAI.Timeout,
		ai.DefaultRetryPolicy(),
		logger.With().Str("component", "llm").Logger(),
	)
	builder := summaryusecase.NewBuilder(cfg.Limits.PromptBudget, cfg.Limits.MaxMessages)
	rendererClient := renderer.NewClient(cfg.Renderer.BaseURL, cfg.Renderer.Timeout)
	summarySvc := summaryusecase.NewService(repoAdapter, repoAdapter, repoAdapter, completer, builder, renderQueue, rendererClient, logger.With().Str("component", "summary").Logger())
	slackClient := slack.NewClient(cfg.Slack.BotToken, cfg.Slack.BaseURL, 15*time.Second)

	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule.EODSpec, func() {
		runScheduled(ctx, summarySvc, repoAdapter, slackClient, logger, domain.SummaryTypeEOD)
	}); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.Schedule.EODSpec).Msg("scheduler: некорректное расписание EOD")
	}
	if _, err := c.AddFunc(cfg.Schedule.EOWSpec, func() {
		runScheduled(ctx, summarySvc, repoAdapter, slackClient, logger, domain.SummaryTypeEOW)
	}); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.Schedule.EOWSpec).Msg("scheduler: некорректное расписание EOW")
	}
	if cfg.Limits.RetentionDays > 0 {
		if _, err := c.AddFunc("30 3 * * *", func() {
			pruneMessages(ctx, repoAdapter, logger, cfg.Limits.RetentionDays)
		}); err != nil {
			logger.Fatal().Err(err).Msg("scheduler: некорректное расписание ретенции")
		}
	}

	logger.Info().
		Str("eod", cfg.Schedule.EODSpec).
		Str("eow", cfg.Schedule.EOWSpec).
		Int("retention_days", cfg.Limits.RetentionDays).
		Msg("scheduler: старт")
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	logger.Info().Msg("scheduler: остановка")
}

// runScheduled строит сводку по расписанию и при настроенном канале
// уведомлений публикует её текст в Slack.
func runScheduled(
	ctx context.Context,
	summarySvc *summaryusecase.Service,
	prefs domain.PreferencesRepo,
	gateway domain.SlackGateway,
	logger zerolog.Logger,
	typ domain.SummaryType,
) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	summary, err := summarySvc.Generate(runCtx, domain.SummaryRequest{Type: typ, Cause: domain.RenderCauseScheduled})
	if err != nil {
		logger.Error().Err(err).Str("type", string(typ)).Msg("scheduler: плановая сводка не построена")
		return
	}
	logger.Info().Str("summary_id", summary.ID).Str("type", string(typ)).Int("message_count", summary.MessageCount).Msg("scheduler: плановая сводка построена")

	settings, err := prefs.GetPreferences(runCtx)
	if err != nil || settings.NotificationChannel == "" {
		return
	}
	if err := gateway.PostMessage(runCtx, settings.NotificationChannel, summary.BodyText, ""); err != nil {
		logger.Error().Err(err).Str("channel", settings.NotificationChannel).Msg("scheduler: уведомление не отправлено")
	}
}

// pruneMessages удаляет сообщения старше окна ретенции. Сводки при этом
// не трогаются, они живут отдельно от исходных сообщений.
func pruneMessages(ctx context.Context, messages domain.MessageRepo, logger zerolog.Logger, retentionDays int) {
	pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	deleted, err := messages.DeleteMessagesBefore(pruneCtx, cutoff)
	if err != nil {
		logger.Error().Err(err).Msg("scheduler: очистка сообщений не удалась")
		return
	}
	logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("scheduler: старые сообщения удалены")
}
