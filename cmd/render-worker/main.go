package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slack-summarizer/internal/adapters/renderer"
	"slack-summarizer/internal/adapters/repo"
	"slack-summarizer/internal/domain"
	"slack-summarizer/internal/infra/config"
	"slack-summarizer/internal/infra/db"
	applog "slack-summarizer/internal/infra/log"
	"slack-summarizer/internal/infra/metrics"
	"slack-summarizer/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "render-worker")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("render-worker: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var renderQueue domain.RenderQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitRenderQueue(cfg.RabbitURL, cfg.Queues.Render)
		if err != nil {
			logger.Fatal().Err(err).Msg("render-worker: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbit.Close()
		renderQueue = rabbit
	} else {
		if cfg.RedisAddr == "" {
			logger.Fatal().Msg("render-worker: не настроен ни RabbitMQ, ни Redis")
		}
		logger.Warn().Msg("render-worker: RabbitMQ не настроен, очередь рендеринга работает на Redis")
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		renderQueue = queue.NewRedisRenderQueue(redisClient, cfg.Queues.Render)
	}

	worker := &jobWorker{
		log:       logger,
		queue:     renderQueue,
		summaries: repoAdapter,
		renderer:  renderer.NewClient(cfg.Renderer.BaseURL, cfg.Renderer.Timeout),
	}
	logger.Info().Msg("render-worker: старт")
	worker.Run(ctx)
	logger.Info().Msg("render-worker: остановка")
}

type jobWorker struct {
	log       zerolog.Logger
	queue     domain.RenderQueue
	summaries domain.SummaryRepo
	renderer  domain.Renderer
}

// Run читает задачи из очереди до отмены контекста.
func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.log.Error().Err(err).Msg("render-worker: приём задачи не удался")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		w.process(ctx, job, ack)
	}
}

// process рендерит документ и обновляет статус сводки. Провал рендеринга
// фиксируется как failed и задачу не возвращает: текст сводки остаётся
// действительным, повтор ничего не изменит.
func (w *jobWorker) process(ctx context.Context, job domain.RenderJob, ack domain.RenderAckFunc) {
	summary, err := w.summaries.GetSummary(ctx, job.SummaryID)
	if err != nil {
		if errors.Is(err, domain.ErrSummaryNotFound) {
			// битая задача, повторная доставка не поможет
			w.log.Warn().Str("summary_id", job.SummaryID).Msg("render-worker: сводка не найдена, задача отброшена")
			_ = ack(true)
			return
		}
		w.log.Error().Err(err).Str("summary_id", job.SummaryID).Msg("render-worker: чтение сводки не удалось")
		_ = ack(false)
		return
	}

	handle, err := w.renderer.Render(ctx, summary)
	if err != nil {
		metrics.IncRenderJob("failed")
		w.log.Error().Err(err).Str("summary_id", summary.ID).Msg("render-worker: рендеринг не удался")
		if err := w.summaries.UpdateRenderStatus(ctx, summary.ID, domain.RenderFailed, ""); err != nil {
			w.log.Error().Err(err).Str("summary_id", summary.ID).Msg("render-worker: статус failed не записан")
		}
		_ = ack(true)
		return
	}

	if err := w.summaries.UpdateRenderStatus(ctx, summary.ID, domain.RenderAvailable, handle); err != nil {
		w.log.Error().Err(err).Str("summary_id", summary.ID).Msg("render-worker: статус available не записан")
		_ = ack(false)
		return
	}
	metrics.IncRenderJob("available")
	w.log.Info().Str("summary_id", summary.ID).Str("handle", handle).Str("cause", string(job.Cause)).Msg("render-worker: документ готов")
	_ = ack(true)
}
