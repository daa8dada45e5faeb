package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"brodi-nudge/internal/domain"
	openai "brodi-nudge/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI генерирует текст сообщения через OpenAI Chat Completions.
type OpenAI struct {
	client  chatClient
	model   string
	timeout time.Duration
}

// NewOpenAI создаёт LLM-генератор сообщений.
func NewOpenAI(client chatClient, model string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAI{client: client, model: model, timeout: timeout}
}

var _ domain.MessageGenerator = (*OpenAI)(nil)

var promptByType = map[domain.InteractionType]string{
	domain.InteractionNudge:        "Write a short, warm check-in message asking how the person is doing right now.",
	domain.InteractionCelebration:  "Write a short, genuine congratulation for a recent personal win.",
	domain.InteractionRandom:       "Write a short, light spontaneous message to brighten the person's day.",
	domain.InteractionMoodReminder: "Write a short, gentle reminder to log today's mood.",
	domain.InteractionTaskReminder: "Write a short, encouraging reminder to look at today's tasks.",
}

// Compose строит текст проактивного сообщения для пользователя.
func (g *OpenAI) Compose(ctx context.Context, userID string, t domain.InteractionType) (string, error) {
	prompt, ok := promptByType[t]
	if !ok {
		return "", fmt.Errorf("generator: неизвестный тип сообщения %q", t)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0.7,
		MaxTokens:   120,
		Messages: []openai.ChatMessage{
			{
				Role:    openai.RoleSystem,
				Content: "You are a supportive AI companion in a mental wellness app. Keep messages to one or two sentences, caring and never pushy. Do not give medical advice.",
			},
			{
				Role:    openai.RoleUser,
				Content: prompt,
			},
		},
	}
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: пустой ответ")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai completion: пустой текст")
	}
	return text, nil
}
