package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"brodi-nudge/internal/domain"
	"brodi-nudge/internal/infra/metrics"
)

// Окно блокировки перекрывает один цикл "прочитал лимит — записал решение".
const evaluationLockTTL = 5 * time.Second

const reasonEvaluationInProgress = "another evaluation for this user is in progress"

// Service фиксирует решения оптимизатора: блокировка на пару (пользователь, тип),
// запись в историю и постановка задачи доставки. Блокировка закрывает гонку,
// при которой два одновременных запроса читают лимит до того, как один из них
// успеет записать своё решение.
type Service struct {
	optimizer domain.TimingOptimizer
	history   domain.NudgeHistoryRepo
	queue     domain.NudgeQueue
	cache     domain.Cache
	log       zerolog.Logger
}

var _ domain.NudgePlanner = (*Service)(nil)

// NewService создаёт планировщик.
func NewService(optimizer domain.TimingOptimizer, history domain.NudgeHistoryRepo, queue domain.NudgeQueue, cache domain.Cache, log zerolog.Logger) *Service {
	return &Service{optimizer: optimizer, history: history, queue: queue, cache: cache, log: log}
}

// ScheduleNow оценивает момент и при положительном решении записывает его в
// историю и ставит задачу доставки. Повторный вызов для той же пары
// (пользователь, тип) внутри окна блокировки получает отказ без оценки.
func (s *Service) ScheduleNow(ctx context.Context, req domain.OptimizationRequest, now time.Time) (domain.OptimizationDecision, error) {
	return s.schedule(ctx, req, now, domain.NudgeCauseRequest)
}

func (s *Service) schedule(ctx context.Context, req domain.OptimizationRequest, now time.Time, cause domain.NudgeJobCause) (domain.OptimizationDecision, error) {
	var (
		decision domain.OptimizationDecision
		innerErr error
	)
	key := fmt.Sprintf("timing:lock:%s:%s", req.UserID, req.InteractionType)
	ran, err := s.cache.Once(ctx, key, evaluationLockTTL, func() error {
		decision, innerErr = s.evaluateAndCommit(ctx, req, now, cause)
		return innerErr
	})
	if err != nil {
		return domain.OptimizationDecision{}, fmt.Errorf("блокировка оценки: %w", err)
	}
	if !ran {
		return domain.OptimizationDecision{
			ShouldSchedule: false,
			ScheduledAt:    now,
			Reasoning:      reasonEvaluationInProgress,
		}, nil
	}
	return decision, innerErr
}

func (s *Service) evaluateAndCommit(ctx context.Context, req domain.OptimizationRequest, now time.Time, cause domain.NudgeJobCause) (domain.OptimizationDecision, error) {
	decision, err := s.optimizer.Evaluate(ctx, req, now)
	if err != nil {
		return domain.OptimizationDecision{}, err
	}
	if !decision.ShouldSchedule {
		return decision, nil
	}

	entry := domain.NudgeHistoryEntry{
		UserID:       req.UserID,
		NudgeType:    req.InteractionType,
		ScheduledAt:  decision.ScheduledAt,
		ContextScore: decision.ContextScore,
	}
	if _, err := s.history.AppendNudge(ctx, entry); err != nil {
		return domain.OptimizationDecision{}, fmt.Errorf("запись решения: %w", err)
	}

	job := domain.NudgeJob{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		NudgeType:    req.InteractionType,
		ScheduledAt:  decision.ScheduledAt,
		ContextScore: decision.ContextScore,
		RequestedAt:  now,
		Cause:        cause,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return domain.OptimizationDecision{}, fmt.Errorf("постановка задачи доставки: %w", err)
	}
	s.log.Debug().
		Str("user_id", req.UserID).
		Str("nudge_type", string(req.InteractionType)).
		Str("job_id", job.ID).
		Time("scheduled_at", decision.ScheduledAt).
		Float64("context_score", decision.ContextScore).
		Msg("nudge scheduled")
	return decision, nil
}

// RunSweep обходит пользователей с включёнными проактивными сообщениями и
// планирует базовый nudge. Жёсткие фильтры оптимизатора сами отсеивают тех,
// кому сейчас писать не стоит.
func (s *Service) RunSweep(ctx context.Context, prefs domain.PreferencesRepo, now time.Time) error {
	users, err := prefs.ListProactiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("выборка пользователей: %w", err)
	}
	for _, user := range users {
		metrics.SweepUsersTotal.Inc()
		req := domain.OptimizationRequest{UserID: user.UserID, InteractionType: domain.InteractionNudge}
		decision, err := s.schedule(ctx, req, now, domain.NudgeCauseSweep)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", user.UserID).Msg("sweep: evaluation failed")
			continue
		}
		if decision.ShouldSchedule {
			s.log.Info().
				Str("user_id", user.UserID).
				Time("scheduled_at", decision.ScheduledAt).
				Msg("sweep: nudge scheduled")
		}
	}
	return nil
}
