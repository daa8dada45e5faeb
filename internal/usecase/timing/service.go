package timing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"brodi-nudge/internal/domain"
	"brodi-nudge/internal/infra/metrics"
)

// ErrEmptyUserID возвращается для запроса без идентификатора пользователя.
var ErrEmptyUserID = errors.New("user id is empty")

// ErrUnknownInteractionType возвращается для неизвестного типа сообщения.
var ErrUnknownInteractionType = errors.New("unknown interaction type")

const reasonQuietHours = "user is in quiet hours"

// Service реализует эвристику выбора момента для проактивного сообщения.
type Service struct {
	prefs        domain.PreferencesRepo
	interactions domain.InteractionRepo
	history      domain.NudgeHistoryRepo
	patterns     domain.PatternRepo
}

var _ domain.TimingOptimizer = (*Service)(nil)

// NewService создаёт оптимизатор.
func NewService(prefs domain.PreferencesRepo, interactions domain.InteractionRepo, history domain.NudgeHistoryRepo, patterns domain.PatternRepo) *Service {
	return &Service{prefs: prefs, interactions: interactions, history: history, patterns: patterns}
}

// Evaluate решает, отправлять ли проактивное сообщение сейчас, позже или никогда.
// Момент now передаётся явно; побочных эффектов нет — запись решения в историю
// лежит на вызывающем.
func (s *Service) Evaluate(ctx context.Context, req domain.OptimizationRequest, now time.Time) (domain.OptimizationDecision, error) {
	start := time.Now()
	decision, err := s.evaluate(ctx, req, now)
	metrics.ObserveEvaluation(string(req.InteractionType), decisionOutcome(decision, err), time.Since(start))
	return decision, err
}

func (s *Service) evaluate(ctx context.Context, req domain.OptimizationRequest, now time.Time) (domain.OptimizationDecision, error) {
	if req.UserID == "" {
		return domain.OptimizationDecision{}, ErrEmptyUserID
	}
	if _, ok := domain.ParseInteractionType(string(req.InteractionType)); !ok {
		return domain.OptimizationDecision{}, ErrUnknownInteractionType
	}

	prefs, _, err := s.prefs.GetPreferences(ctx, req.UserID)
	if err != nil {
		return domain.OptimizationDecision{}, fmt.Errorf("настройки пользователя: %w", err)
	}

	local := now.In(prefs.Location())
	hour := local.Hour()

	// Шаг 1: тихие часы — жёсткий стоп без скоринга.
	if prefs.HasQuietHours() && InQuietWindow(hour, *prefs.QuietStartHour, *prefs.QuietEndHour) {
		return decline(now, 0, reasonQuietHours), nil
	}

	// Шаг 2: дневной лимит по типу за скользящие 24 часа.
	recent, err := s.history.ListRecentNudges(ctx, req.UserID, now.Add(-frequencyWindow))
	if err != nil {
		return domain.OptimizationDecision{}, fmt.Errorf("история решений: %w", err)
	}
	limit := DailyCap(prefs.Frequency)
	sameType := 0
	hadRecent := false
	for _, entry := range recent {
		if entry.NudgeType == req.InteractionType {
			sameType++
		}
		if !entry.ScheduledAt.Before(now.Add(-recencyWindow)) && !entry.ScheduledAt.After(now) {
			hadRecent = true
		}
	}
	if sameType >= limit {
		return decline(now, 0, fmt.Sprintf("daily %s limit reached: %d of %d in the last 24 hours", req.InteractionType, sameType, limit)), nil
	}

	// Шаг 3: исторически лучший час по журналу взаимодействий.
	records, err := s.interactions.ListRecentInteractions(ctx, req.UserID, req.InteractionType, historySampleLimit)
	if err != nil {
		return domain.OptimizationDecision{}, fmt.Errorf("журнал взаимодействий: %w", err)
	}
	optimal := OptimalHour(records)

	patterns, err := s.patterns.ListPatterns(ctx, req.UserID)
	if err != nil {
		return domain.OptimizationDecision{}, fmt.Errorf("паттерны пользователя: %w", err)
	}

	// Шаг 4: контекстный скоринг.
	score := baseScore
	score += hourProximityWeight * proximity(hour, optimal)
	if engagement, ok := firstPattern(patterns, domain.PatternEngagement); ok {
		if weight, ok := engagement.WeekdayWeight(local.Weekday()); ok {
			score += weight * weekdayPatternWeight
		}
	}
	if req.InteractionType == domain.InteractionMoodReminder && req.Context != nil && req.Context.RecentMoodScore != nil && *req.Context.RecentMoodScore <= lowMoodCeiling {
		score += lowMoodBoost
	}
	if req.InteractionType == domain.InteractionTaskReminder {
		if task, ok := firstPattern(patterns, domain.PatternTaskCompletion); ok {
			if best, ok := task.BestHour(); ok && best == hour {
				score += taskHourBoost
			}
		}
	}
	if hadRecent {
		score -= recencyPenalty
	}

	// Шаг 5: порог с поправкой на частоту.
	threshold := acceptThreshold(req.InteractionType, prefs.Frequency)
	if score < threshold {
		switch {
		case hadRecent:
			return decline(now, score, "a nudge was sent recently, backing off to avoid fatigue"), nil
		case threshold-score > marginalBand:
			return decline(now, score, fmt.Sprintf("context score %.2f is below the %s threshold %.2f", score, req.InteractionType, threshold)), nil
		default:
			return decline(now, score, "not optimal timing"), nil
		}
	}

	// Шаг 6: на грани порога отправку сдвигаем к лучшему часу.
	delay := 0
	if score-threshold < marginalBand && circularHourDistance(hour, optimal) > immediateHourRadius {
		delay = deferMinutes(local, optimal)
	}

	decision := domain.OptimizationDecision{
		ShouldSchedule: true,
		ScheduledAt:    now.Add(time.Duration(delay) * time.Minute),
		ContextScore:   round2(score),
		DelayMinutes:   delay,
	}
	if delay > 0 {
		decision.Reasoning = fmt.Sprintf("good moment soon: deferring %d minutes toward the optimal hour %02d:00", delay, deferTarget(optimal))
	} else {
		decision.Reasoning = fmt.Sprintf("favorable timing: context score %.2f meets the %s threshold %.2f", score, req.InteractionType, threshold)
	}
	return decision, nil
}

// BestHourFor возвращает исторически лучший час для пары (пользователь, тип).
func (s *Service) BestHourFor(ctx context.Context, userID string, t domain.InteractionType) (int, error) {
	records, err := s.interactions.ListRecentInteractions(ctx, userID, t, historySampleLimit)
	if err != nil {
		return 0, fmt.Errorf("журнал взаимодействий: %w", err)
	}
	return OptimalHour(records), nil
}

// InQuietWindow сообщает, попадает ли час в окно тишины. Окно полуоткрытое
// [start, end) и может переходить через полночь.
func InQuietWindow(hour, start, end int) bool {
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// OptimalHour находит час суток с лучшим сочетанием эффективности и частоты:
// avg/10 * ln(n+1). Логарифм гасит влияние единичных удачных отправок.
// При пустой истории возвращается 14:00.
func OptimalHour(records []domain.InteractionRecord) int {
	if len(records) == 0 {
		return defaultOptimalHour
	}
	var counts [24]int
	var sums [24]float64
	for _, rec := range records {
		h := rec.OccurredAt.Hour()
		eff := defaultEffectiveness
		if rec.Effectiveness != nil {
			eff = *rec.Effectiveness
		}
		counts[h]++
		sums[h] += eff
	}
	best := defaultOptimalHour
	bestScore := -1.0
	for h := 0; h < 24; h++ {
		if counts[h] == 0 {
			continue
		}
		avg := sums[h] / float64(counts[h])
		blended := avg / 10 * math.Log(float64(counts[h])+1)
		if blended > bestScore {
			bestScore = blended
			best = h
		}
	}
	return best
}

// proximity оценивает близость текущего часа к лучшему: 1 при совпадении,
// 0 при расстоянии от шести часов.
func proximity(hour, optimal int) float64 {
	d := float64(circularHourDistance(hour, optimal))
	return math.Max(0, 1-d/6)
}

func circularHourDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 12 {
		d = 24 - d
	}
	return d
}

// deferTarget выбирает ограниченный целевой час: слишком ранний лучший час
// сдвигается на 9:00, поздний остаётся как есть (следующий день), остальные
// не позже 18:00.
func deferTarget(optimal int) int {
	switch {
	case optimal < earlyHourCutoff:
		return earlyDeferHour
	case optimal > lateHourCutoff:
		return optimal
	case optimal > maxDeferHour:
		return maxDeferHour
	default:
		return optimal
	}
}

// deferMinutes считает движение вперёд до целевого часа, с переносом на
// следующий день при отрицательной разнице.
func deferMinutes(local time.Time, optimal int) int {
	target := deferTarget(optimal)
	minutes := (target-local.Hour())*60 - local.Minute()
	if minutes <= 0 {
		minutes += 24 * 60
	}
	return minutes
}

func firstPattern(patterns []domain.PatternAnalysis, t domain.PatternType) (domain.PatternAnalysis, bool) {
	for _, p := range patterns {
		if p.Type == t {
			return p, true
		}
	}
	return domain.PatternAnalysis{}, false
}

func decline(now time.Time, score float64, reasoning string) domain.OptimizationDecision {
	return domain.OptimizationDecision{
		ShouldSchedule: false,
		ScheduledAt:    now,
		ContextScore:   round2(score),
		Reasoning:      reasoning,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func decisionOutcome(decision domain.OptimizationDecision, err error) string {
	switch {
	case err != nil:
		return "error"
	case decision.ShouldSchedule && decision.DelayMinutes > 0:
		return "deferred"
	case decision.ShouldSchedule:
		return "scheduled"
	default:
		return "declined"
	}
}
