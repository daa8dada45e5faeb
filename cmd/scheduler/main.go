package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"

	"brodi-nudge/internal/adapters/repo"
	"brodi-nudge/internal/domain"
	"brodi-nudge/internal/infra/cache"
	"brodi-nudge/internal/infra/config"
	"brodi-nudge/internal/infra/db"
	applog "brodi-nudge/internal/infra/log"
	"brodi-nudge/internal/infra/metrics"
	"brodi-nudge/internal/infra/queue"
	"brodi-nudge/internal/usecase/dispatch"
	"brodi-nudge/internal/usecase/timing"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv).With().Str("component", "scheduler").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	store := repo.NewPostgres(pool)
	redisCache := cache.NewRedis(redisClient)

	var nudgeQueue domain.NudgeQueue
	if cfg.AMQP.URL != "" {
		amqpQueue, err := queue.NewAMQPNudgeQueue(cfg.AMQP.URL, cfg.Queues.Nudges)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: нет подключения к AMQP")
		}
		defer amqpQueue.Close()
		nudgeQueue = amqpQueue
	} else {
		nudgeQueue = queue.NewRedisNudgeQueue(redisClient, cfg.Queues.Nudges)
	}

	optimizer := timing.NewService(store, store, store, store)
	planner := dispatch.NewService(optimizer, store, nudgeQueue, redisCache, logger.With().Str("component", "dispatch").Logger())

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	logger.Info().Dur("interval", cfg.Sweep.Interval).Msg("scheduler: старт")

	ticker := time.NewTicker(cfg.Sweep.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановка")
			return
		case <-ticker.C:
			if err := planner.RunSweep(ctx, store, time.Now().UTC()); err != nil {
				logger.Error().Err(err).Msg("scheduler: ошибка обхода пользователей")
			}
		}
	}
}
