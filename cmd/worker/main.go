package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"brodi-nudge/internal/adapters/generator"
	"brodi-nudge/internal/adapters/notifier"
	"brodi-nudge/internal/adapters/repo"
	"brodi-nudge/internal/domain"
	"brodi-nudge/internal/infra/config"
	"brodi-nudge/internal/infra/db"
	applog "brodi-nudge/internal/infra/log"
	"brodi-nudge/internal/infra/metrics"
	openaiinfra "brodi-nudge/internal/infra/openai"
	"brodi-nudge/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv).With().Str("component", "worker").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	store := repo.NewPostgres(pool)

	var nudgeQueue domain.NudgeQueue
	if cfg.AMQP.URL != "" {
		amqpQueue, err := queue.NewAMQPNudgeQueue(cfg.AMQP.URL, cfg.Queues.Nudges)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: нет подключения к AMQP")
		}
		defer amqpQueue.Close()
		nudgeQueue = amqpQueue
	} else {
		nudgeQueue = queue.NewRedisNudgeQueue(redisClient, cfg.Queues.Nudges)
	}

	var messages domain.MessageGenerator
	if cfg.OpenAI.APIKey != "" {
		client := openaiinfra.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		messages = generator.NewOpenAI(client, cfg.OpenAI.Model, cfg.OpenAI.Timeout)
	} else {
		logger.Warn().Msg("worker: ключ OpenAI не задан, используются шаблоны")
		messages = generator.NewSimple()
	}

	companion, err := notifier.NewWebhook(cfg.Companion.WebhookURL, cfg.Companion.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не настроен webhook компаньона")
	}

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	logger.Info().Msg("worker: старт")

	for {
		job, ack, err := nudgeQueue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				logger.Info().Msg("worker: остановка")
				return
			}
			logger.Error().Err(err).Msg("worker: ошибка получения задачи")
			continue
		}
		processJob(ctx, logger, job, ack, store, messages, companion, cfg.Worker.MaxAttempts)
	}
}

func processJob(
	ctx context.Context,
	logger zerolog.Logger,
	job domain.NudgeJob,
	ack domain.NudgeAckFunc,
	statuses domain.NudgeJobStatusRepo,
	messages domain.MessageGenerator,
	companion domain.Notifier,
	maxAttempts int,
) {
	jobLog := logger.With().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("nudge_type", string(job.NudgeType)).
		Logger()

	delivered, attempt, err := statuses.EnsureNudgeJob(ctx, job.ID)
	if err != nil {
		jobLog.Error().Err(err).Msg("worker: статус задачи недоступен")
		_ = ack(false)
		return
	}
	if delivered {
		jobLog.Debug().Msg("worker: задача уже доставлена, пропуск")
		_ = ack(true)
		return
	}
	if maxAttempts > 0 && attempt > maxAttempts {
		jobLog.Error().Int("attempt", attempt).Msg("worker: исчерпаны попытки доставки, задача отброшена")
		metrics.DeliveryErrors.Inc()
		_ = ack(true)
		return
	}

	if wait := time.Until(job.ScheduledAt); wait > 0 {
		jobLog.Info().Dur("wait", wait).Msg("worker: ожидание запланированного времени")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = ack(false)
			return
		case <-timer.C:
		}
	}

	text, err := messages.Compose(ctx, job.UserID, job.NudgeType)
	if err != nil {
		jobLog.Error().Err(err).Msg("worker: ошибка генерации сообщения")
		metrics.DeliveryErrors.Inc()
		_ = ack(false)
		return
	}
	if err := companion.Notify(ctx, job.UserID, job.NudgeType, text); err != nil {
		jobLog.Error().Err(err).Msg("worker: ошибка доставки сообщения")
		metrics.DeliveryErrors.Inc()
		_ = ack(false)
		return
	}
	if err := statuses.MarkNudgeJobDelivered(ctx, job.ID); err != nil {
		jobLog.Error().Err(err).Msg("worker: не удалось отметить доставку")
	}
	jobLog.Info().Int("attempt", attempt).Msg("worker: сообщение доставлено")
	_ = ack(true)
}
