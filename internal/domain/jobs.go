package domain

import (
	"context"
	"time"
)

// NudgeJobCause описывает источник задачи доставки.
type NudgeJobCause string

const (
	// NudgeCauseRequest — решение принято по внешнему запросу оптимизатора.
	NudgeCauseRequest NudgeJobCause = "request"
	// NudgeCauseSweep — решение принято фоновым обходом пользователей.
	NudgeCauseSweep NudgeJobCause = "sweep"
)

// NudgeJob содержит информацию о задаче доставки проактивного сообщения.
type NudgeJob struct {
	ID           string          `json:"job_id"`
	UserID       string          `json:"user_id"`
	NudgeType    InteractionType `json:"nudge_type"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	ContextScore float64         `json:"context_score"`
	RequestedAt  time.Time       `json:"requested_at"`
	Cause        NudgeJobCause   `json:"cause"`
}

// NudgeAckFunc подтверждает обработку задачи или запрашивает повтор доставки.
type NudgeAckFunc func(success bool) error

// NudgeQueue описывает очередь задач доставки.
type NudgeQueue interface {
	Enqueue(ctx context.Context, job NudgeJob) error
	Receive(ctx context.Context) (NudgeJob, NudgeAckFunc, error)
}

// NudgeJobStatusRepo отвечает за идемпотентность обработки задач доставки.
type NudgeJobStatusRepo interface {
	// EnsureNudgeJob регистрирует попытку обработки и возвращает признак
	// завершённой доставки и номер текущей попытки.
	EnsureNudgeJob(ctx context.Context, jobID string) (delivered bool, attempt int, err error)
	// MarkNudgeJobDelivered помечает задачу как окончательно доставленную.
	MarkNudgeJobDelivered(ctx context.Context, jobID string) error
}
