package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// InteractionType описывает тип проактивного сообщения компаньона.
type InteractionType string

const (
	InteractionNudge        InteractionType = "nudge"
	InteractionCelebration  InteractionType = "celebration"
	InteractionRandom       InteractionType = "random"
	InteractionMoodReminder InteractionType = "mood_reminder"
	InteractionTaskReminder InteractionType = "task_reminder"
)

// ParseInteractionType нормализует строку и проверяет её на допустимость.
func ParseInteractionType(raw string) (InteractionType, bool) {
	t := InteractionType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case InteractionNudge, InteractionCelebration, InteractionRandom, InteractionMoodReminder, InteractionTaskReminder:
		return t, true
	}
	return "", false
}

// FrequencyPreference задаёт, сколько проактивных сообщений в день терпит пользователь.
type FrequencyPreference string

const (
	FrequencyMinimal  FrequencyPreference = "minimal"
	FrequencyNormal   FrequencyPreference = "normal"
	FrequencyFrequent FrequencyPreference = "frequent"
)

// ParseFrequencyPreference нормализует настройку частоты, по умолчанию normal.
func ParseFrequencyPreference(raw string) FrequencyPreference {
	switch FrequencyPreference(strings.ToLower(strings.TrimSpace(raw))) {
	case FrequencyMinimal:
		return FrequencyMinimal
	case FrequencyFrequent:
		return FrequencyFrequent
	default:
		return FrequencyNormal
	}
}

// UserPreferences хранит настройки проактивных сообщений одного пользователя.
// Тихие часы либо заданы оба, либо не заданы вовсе; окно может переходить через полночь.
type UserPreferences struct {
	UserID          string
	QuietStartHour  *int
	QuietEndHour    *int
	Frequency       FrequencyPreference
	Timezone        string
	ProactiveNudges bool
	UpdatedAt       time.Time
}

// HasQuietHours сообщает, настроены ли тихие часы.
func (p UserPreferences) HasQuietHours() bool {
	return p.QuietStartHour != nil && p.QuietEndHour != nil
}

// Location возвращает часовой пояс пользователя, UTC при отсутствии или ошибке.
func (p UserPreferences) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// InteractionRecord — запись журнала об отправленном проактивном сообщении.
// Append-only: после создания не изменяется.
type InteractionRecord struct {
	ID            int64
	UserID        string
	Type          InteractionType
	OccurredAt    time.Time
	Effectiveness *float64
}

// NudgeHistoryEntry — запись о принятом решении планирования (не обязательно о доставке).
// Создаётся один раз, читается по окну давности для лимитов частоты.
type NudgeHistoryEntry struct {
	ID           int64
	UserID       string
	NudgeType    InteractionType
	ScheduledAt  time.Time
	ContextScore float64
	CreatedAt    time.Time
}

// PatternType именует вид предвычисленного поведенческого паттерна.
type PatternType string

const (
	PatternEngagement     PatternType = "engagement"
	PatternTaskCompletion PatternType = "task_completion"
)

// PatternAnalysis — предвычисленный внешней системой поведенческий паттерн пользователя.
// Payload непрозрачен для хранилища; типизированный доступ — только через методы ниже.
type PatternAnalysis struct {
	UserID     string
	Type       PatternType
	Confidence float64
	Payload    []byte
	ComputedAt time.Time
}

// WeekdayWeight возвращает вес вовлечённости для дня недели из payload паттерна.
func (p PatternAnalysis) WeekdayWeight(day time.Weekday) (float64, bool) {
	if len(p.Payload) == 0 {
		return 0, false
	}
	var body struct {
		WeekdayWeights map[string]float64 `json:"weekday_weights"`
	}
	if err := json.Unmarshal(p.Payload, &body); err != nil {
		return 0, false
	}
	w, ok := body.WeekdayWeights[strings.ToLower(day.String())]
	return w, ok
}

// BestHour возвращает лучший час из payload паттерна, если он записан и валиден.
func (p PatternAnalysis) BestHour() (int, bool) {
	if len(p.Payload) == 0 {
		return 0, false
	}
	var body struct {
		BestHour *int `json:"best_hour"`
	}
	if err := json.Unmarshal(p.Payload, &body); err != nil {
		return 0, false
	}
	if body.BestHour == nil || *body.BestHour < 0 || *body.BestHour > 23 {
		return 0, false
	}
	return *body.BestHour, true
}

// SituationContext — опциональный ситуативный контекст запроса.
type SituationContext struct {
	TimeOfDay       string   `json:"timeOfDay,omitempty"`
	DayOfWeek       string   `json:"dayOfWeek,omitempty"`
	UserActivity    string   `json:"userActivity,omitempty"`
	RecentMoodScore *float64 `json:"recentMoodScore,omitempty"`
}

// OptimizationRequest — запрос на оценку момента для проактивного сообщения.
type OptimizationRequest struct {
	UserID          string            `json:"userId"`
	InteractionType InteractionType   `json:"interactionType"`
	Context         *SituationContext `json:"currentContext,omitempty"`
}

// OptimizationDecision — результат оценки. ContextScore округлён до двух знаков.
type OptimizationDecision struct {
	ShouldSchedule bool      `json:"shouldSchedule"`
	ScheduledAt    time.Time `json:"scheduledTime"`
	ContextScore   float64   `json:"contextScore"`
	Reasoning      string    `json:"reasoning"`
	DelayMinutes   int       `json:"delayMinutes,omitempty"`
}
