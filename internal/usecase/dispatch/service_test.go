package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"brodi-nudge/internal/domain"
)

type fakeOptimizer struct {
	decision domain.OptimizationDecision
	calls    int
}

func (f *fakeOptimizer) Evaluate(_ context.Context, _ domain.OptimizationRequest, _ time.Time) (domain.OptimizationDecision, error) {
	f.calls++
	return f.decision, nil
}

type fakeHistory struct {
	entries []domain.NudgeHistoryEntry
}

func (f *fakeHistory) ListRecentNudges(context.Context, string, time.Time) ([]domain.NudgeHistoryEntry, error) {
	return f.entries, nil
}

func (f *fakeHistory) AppendNudge(_ context.Context, entry domain.NudgeHistoryEntry) (domain.NudgeHistoryEntry, error) {
	f.entries = append(f.entries, entry)
	return entry, nil
}

type fakeQueue struct {
	jobs []domain.NudgeJob
}

func (f *fakeQueue) Enqueue(_ context.Context, job domain.NudgeJob) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) Receive(context.Context) (domain.NudgeJob, domain.NudgeAckFunc, error) {
	return domain.NudgeJob{}, nil, nil
}

// fakeCache повторяет семантику Redis SetNX: второй захват ключа не проходит.
type fakeCache struct {
	held map[string]bool
}

func (f *fakeCache) Once(_ context.Context, key string, _ time.Duration, fn func() error) (bool, error) {
	if f.held == nil {
		f.held = make(map[string]bool)
	}
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	if err := fn(); err != nil {
		delete(f.held, key)
		return true, err
	}
	return true, nil
}

func (f *fakeCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (f *fakeCache) Get(context.Context, string) ([]byte, error)             { return nil, nil }

func TestScheduleNowPersistsAndEnqueues(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	optimizer := &fakeOptimizer{decision: domain.OptimizationDecision{
		ShouldSchedule: true,
		ScheduledAt:    now,
		ContextScore:   0.65,
		Reasoning:      "favorable timing",
	}}
	history := &fakeHistory{}
	queue := &fakeQueue{}
	svc := NewService(optimizer, history, queue, &fakeCache{}, zerolog.Nop())

	req := domain.OptimizationRequest{UserID: "u1", InteractionType: domain.InteractionNudge}
	decision, err := svc.ScheduleNow(context.Background(), req, now)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !decision.ShouldSchedule {
		t.Fatalf("ожидали планирование")
	}
	if len(history.entries) != 1 {
		t.Fatalf("ожидали одну запись в истории, получили %d", len(history.entries))
	}
	if history.entries[0].ContextScore != 0.65 {
		t.Fatalf("в историю должна попасть оценка решения")
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("ожидали одну задачу доставки, получили %d", len(queue.jobs))
	}
	if queue.jobs[0].ID == "" {
		t.Fatalf("задача должна получить идентификатор")
	}
	if queue.jobs[0].Cause != domain.NudgeCauseRequest {
		t.Fatalf("ожидали причину request, получили %s", queue.jobs[0].Cause)
	}
}

func TestScheduleNowDeclineLeavesNoTrace(t *testing.T) {
	optimizer := &fakeOptimizer{decision: domain.OptimizationDecision{
		ShouldSchedule: false,
		Reasoning:      "user is in quiet hours",
	}}
	history := &fakeHistory{}
	queue := &fakeQueue{}
	svc := NewService(optimizer, history, queue, &fakeCache{}, zerolog.Nop())

	req := domain.OptimizationRequest{UserID: "u1", InteractionType: domain.InteractionNudge}
	decision, err := svc.ScheduleNow(context.Background(), req, time.Now())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if decision.ShouldSchedule {
		t.Fatalf("ожидали отказ")
	}
	if len(history.entries) != 0 || len(queue.jobs) != 0 {
		t.Fatalf("отказ не должен оставлять записей и задач")
	}
}

func TestScheduleNowSerializesPerUserAndType(t *testing.T) {
	optimizer := &fakeOptimizer{decision: domain.OptimizationDecision{ShouldSchedule: true, ContextScore: 0.7}}
	cache := &fakeCache{}
	svc := NewService(optimizer, &fakeHistory{}, &fakeQueue{}, cache, zerolog.Nop())

	req := domain.OptimizationRequest{UserID: "u1", InteractionType: domain.InteractionNudge}
	now := time.Now()
	if _, err := svc.ScheduleNow(context.Background(), req, now); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	second, err := svc.ScheduleNow(context.Background(), req, now)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if second.ShouldSchedule {
		t.Fatalf("повторный вызов под блокировкой должен получить отказ")
	}
	if optimizer.calls != 1 {
		t.Fatalf("оптимизатор должен быть вызван один раз, вызван %d", optimizer.calls)
	}

	// Другой тип сообщения блокировкой не задет.
	other := domain.OptimizationRequest{UserID: "u1", InteractionType: domain.InteractionCelebration}
	if _, err := svc.ScheduleNow(context.Background(), other, now); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if optimizer.calls != 2 {
		t.Fatalf("другой тип должен оцениваться независимо")
	}
}

func TestRunSweepSchedulesForProactiveUsers(t *testing.T) {
	optimizer := &fakeOptimizer{decision: domain.OptimizationDecision{ShouldSchedule: true, ContextScore: 0.8}}
	history := &fakeHistory{}
	queue := &fakeQueue{}
	svc := NewService(optimizer, history, queue, &fakeCache{}, zerolog.Nop())

	prefs := &fakePrefs{users: []domain.UserPreferences{
		{UserID: "u1", ProactiveNudges: true},
		{UserID: "u2", ProactiveNudges: true},
	}}
	if err := svc.RunSweep(context.Background(), prefs, time.Now()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(queue.jobs) != 2 {
		t.Fatalf("ожидали задачи для обоих пользователей, получили %d", len(queue.jobs))
	}
	for _, job := range queue.jobs {
		if job.Cause != domain.NudgeCauseSweep {
			t.Fatalf("ожидали причину sweep, получили %s", job.Cause)
		}
	}
}

type fakePrefs struct {
	users []domain.UserPreferences
}

func (f *fakePrefs) GetPreferences(context.Context, string) (domain.UserPreferences, bool, error) {
	return domain.UserPreferences{}, false, nil
}

func (f *fakePrefs) ListProactiveUsers(context.Context) ([]domain.UserPreferences, error) {
	return f.users, nil
}
