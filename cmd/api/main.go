package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"

	"brodi-nudge/internal/adapters/repo"
	"brodi-nudge/internal/domain"
	"brodi-nudge/internal/infra/cache"
	"brodi-nudge/internal/infra/config"
	"brodi-nudge/internal/infra/db"
	httpinfra "brodi-nudge/internal/infra/http"
	applog "brodi-nudge/internal/infra/log"
	"brodi-nudge/internal/infra/metrics"
	"brodi-nudge/internal/infra/queue"
	"brodi-nudge/internal/usecase/dispatch"
	"brodi-nudge/internal/usecase/timing"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv).With().Str("component", "api").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
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
			logger.Fatal().Err(err).Msg("api: нет подключения к AMQP")
		}
		defer amqpQueue.Close()
		nudgeQueue = amqpQueue
	} else {
		nudgeQueue = queue.NewRedisNudgeQueue(redisClient, cfg.Queues.Nudges)
	}

	optimizer := timing.NewService(store, store, store, store)
	planner := dispatch.NewService(optimizer, store, nudgeQueue, redisCache, logger.With().Str("component", "dispatch").Logger())

	server := httpinfra.NewServer(logger)
	server.Router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpinfra.WriteJSON(w, map[string]string{"status": "ok"})
	})

	server.Router.Group(func(protected chi.Router) {
		protected.Use(httpinfra.ServiceAuthMiddleware(cfg.ServiceToken))

		protected.Post("/v1/optimize-timing", func(w http.ResponseWriter, r *http.Request) {
			defer r.Body.Close()
			var req domain.OptimizationRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			decision, err := planner.ScheduleNow(r.Context(), req, time.Now().UTC())
			if err != nil {
				if errors.Is(err, timing.ErrEmptyUserID) || errors.Is(err, timing.ErrUnknownInteractionType) {
					httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
					return
				}
				logger.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("api: оценка момента")
				httpinfra.WriteError(w, http.StatusInternalServerError, "failed to optimize timing")
				return
			}
			httpinfra.WriteJSON(w, decision)
		})

		protected.Post("/v1/interactions", func(w http.ResponseWriter, r *http.Request) {
			defer r.Body.Close()
			var req recordInteractionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if req.UserID == "" {
				httpinfra.WriteError(w, http.StatusBadRequest, "userId is required")
				return
			}
			interactionType, ok := domain.ParseInteractionType(req.InteractionType)
			if !ok {
				httpinfra.WriteError(w, http.StatusBadRequest, "unknown interactionType")
				return
			}
			if req.Effectiveness != nil && (*req.Effectiveness < 0 || *req.Effectiveness > 10) {
				httpinfra.WriteError(w, http.StatusBadRequest, "effectiveness must be between 0 and 10")
				return
			}
			rec := domain.InteractionRecord{
				UserID:        req.UserID,
				Type:          interactionType,
				OccurredAt:    req.OccurredAt,
				Effectiveness: req.Effectiveness,
			}
			saved, err := store.AppendInteraction(r.Context(), rec)
			if err != nil {
				logger.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("api: запись взаимодействия")
				httpinfra.WriteError(w, http.StatusInternalServerError, "failed to record interaction")
				return
			}
			httpinfra.WriteJSON(w, map[string]any{"id": saved.ID, "occurredAt": saved.OccurredAt})
		})

		protected.Get("/v1/users/{userID}/optimal-hour", func(w http.ResponseWriter, r *http.Request) {
			userID := chi.URLParam(r, "userID")
			typeParam := r.URL.Query().Get("type")
			if typeParam == "" {
				typeParam = string(domain.InteractionNudge)
			}
			interactionType, ok := domain.ParseInteractionType(typeParam)
			if !ok {
				httpinfra.WriteError(w, http.StatusBadRequest, "unknown interaction type")
				return
			}
			hour, err := optimizer.BestHourFor(r.Context(), userID, interactionType)
			if err != nil {
				logger.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("api: оптимальный час")
				httpinfra.WriteError(w, http.StatusInternalServerError, "failed to compute optimal hour")
				return
			}
			httpinfra.WriteJSON(w, map[string]any{
				"userId":          userID,
				"interactionType": interactionType,
				"optimalHour":     hour,
			})
		})
	})

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	go func() {
		logger.Info().Msg("api: старт")
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

type recordInteractionRequest struct {
	UserID          string    `json:"userId"`
	InteractionType string    `json:"interactionType"`
	OccurredAt      time.Time `json:"occurredAt"`
	Effectiveness   *float64  `json:"effectiveness"`
}
