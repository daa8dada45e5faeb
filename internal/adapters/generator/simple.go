package generator

import (
	"context"
	"fmt"

	"brodi-nudge/internal/domain"
)

// Simple возвращает фиксированные шаблоны без обращения к LLM.
type Simple struct{}

// NewSimple создаёт шаблонный генератор.
func NewSimple() *Simple {
	return &Simple{}
}

var _ domain.MessageGenerator = (*Simple)(nil)

var templateByType = map[domain.InteractionType]string{
	domain.InteractionNudge:        "Hey, just checking in. How are you feeling today?",
	domain.InteractionCelebration:  "Congratulations on your progress! That's worth celebrating.",
	domain.InteractionRandom:       "Thinking of you! Hope your day is going well.",
	domain.InteractionMoodReminder: "A quick moment for yourself: how's your mood right now?",
	domain.InteractionTaskReminder: "A gentle nudge: your tasks for today are waiting when you're ready.",
}

// Compose возвращает шаблонный текст по типу сообщения.
func (g *Simple) Compose(_ context.Context, _ string, t domain.InteractionType) (string, error) {
	text, ok := templateByType[t]
	if !ok {
		return "", fmt.Errorf("generator: неизвестный тип сообщения %q", t)
	}
	return text, nil
}
