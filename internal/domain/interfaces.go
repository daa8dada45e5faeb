package domain

import (
	"context"
	"time"
)

// PreferencesRepo читает настройки проактивных сообщений.
type PreferencesRepo interface {
	// GetPreferences возвращает настройки пользователя и признак их наличия.
	// Отсутствие записи — не ошибка: действуют значения по умолчанию.
	GetPreferences(ctx context.Context, userID string) (UserPreferences, bool, error)
	// ListProactiveUsers возвращает пользователей с включёнными проактивными сообщениями.
	ListProactiveUsers(ctx context.Context) ([]UserPreferences, error)
}

// InteractionRepo управляет журналом отправленных сообщений.
type InteractionRepo interface {
	// ListRecentInteractions возвращает не более limit последних записей
	// указанного типа, от новых к старым.
	ListRecentInteractions(ctx context.Context, userID string, t InteractionType, limit int) ([]InteractionRecord, error)
	// AppendInteraction добавляет запись журнала.
	AppendInteraction(ctx context.Context, rec InteractionRecord) (InteractionRecord, error)
}

// NudgeHistoryRepo управляет историей решений планирования.
type NudgeHistoryRepo interface {
	// ListRecentNudges возвращает решения пользователя начиная с since,
	// от новых к старым, независимо от типа.
	ListRecentNudges(ctx context.Context, userID string, since time.Time) ([]NudgeHistoryEntry, error)
	// AppendNudge сохраняет принятое решение планирования.
	AppendNudge(ctx context.Context, entry NudgeHistoryEntry) (NudgeHistoryEntry, error)
}

// PatternRepo читает предвычисленные поведенческие паттерны.
type PatternRepo interface {
	// ListPatterns возвращает паттерны пользователя по убыванию уверенности.
	ListPatterns(ctx context.Context, userID string) ([]PatternAnalysis, error)
}

// Cache используется для простых TTL-хранилищ и коротких блокировок.
type Cache interface {
	// Once выполняет функцию, только если ключ ещё не занят; ключ
	// освобождается при ошибке функции либо по истечении ttl.
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// TimingOptimizer принимает решение о моменте проактивного сообщения.
// Момент "сейчас" передаётся явно: функция детерминирована относительно входа
// и прочитанных данных.
type TimingOptimizer interface {
	Evaluate(ctx context.Context, req OptimizationRequest, now time.Time) (OptimizationDecision, error)
}

// NudgePlanner оценивает момент и фиксирует положительное решение:
// запись в историю и постановка задачи доставки.
type NudgePlanner interface {
	ScheduleNow(ctx context.Context, req OptimizationRequest, now time.Time) (OptimizationDecision, error)
}

// MessageGenerator сочиняет текст проактивного сообщения. Текст на входе и
// выходе непрозрачен: промпты и модель — забота реализации.
type MessageGenerator interface {
	Compose(ctx context.Context, userID string, t InteractionType) (string, error)
}

// Notifier передаёт готовое сообщение приложению-компаньону для доставки.
type Notifier interface {
	Notify(ctx context.Context, userID string, t InteractionType, text string) error
}
