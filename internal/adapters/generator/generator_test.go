package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"brodi-nudge/internal/domain"
	openai "brodi-nudge/internal/infra/openai"
)

func TestSimpleComposeCoversKnownTypes(t *testing.T) {
	g := NewSimple()
	types := []domain.InteractionType{
		domain.InteractionNudge,
		domain.InteractionCelebration,
		domain.InteractionRandom,
		domain.InteractionMoodReminder,
		domain.InteractionTaskReminder,
	}
	for _, typ := range types {
		text, err := g.Compose(context.Background(), "user-1", typ)
		if err != nil {
			t.Fatalf("неожиданная ошибка для %s: %v", typ, err)
		}
		if strings.TrimSpace(text) == "" {
			t.Fatalf("пустой текст для %s", typ)
		}
	}
}

func TestSimpleComposeRejectsUnknownType(t *testing.T) {
	g := NewSimple()
	if _, err := g.Compose(context.Background(), "user-1", domain.InteractionType("spam")); err == nil {
		t.Fatal("ожидалась ошибка для неизвестного типа")
	}
}

type stubChatClient struct {
	lastReq openai.ChatCompletionRequest
	resp    openai.ChatCompletionResponse
	err     error
}

func (s *stubChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = req
	return s.resp, s.err
}

func TestOpenAIComposeReturnsTrimmedContent(t *testing.T) {
	client := &stubChatClient{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Content: "  How was your day?  "}}},
	}}
	g := NewOpenAI(client, "test-model", 0)
	text, err := g.Compose(context.Background(), "user-1", domain.InteractionNudge)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if text != "How was your day?" {
		t.Fatalf("неожиданный текст: %q", text)
	}
	if client.lastReq.Model != "test-model" {
		t.Fatalf("неожиданная модель: %q", client.lastReq.Model)
	}
	if len(client.lastReq.Messages) != 2 {
		t.Fatalf("ожидалось 2 сообщения, получено %d", len(client.lastReq.Messages))
	}
}

func TestOpenAIComposePropagatesError(t *testing.T) {
	client := &stubChatClient{err: errors.New("boom")}
	g := NewOpenAI(client, "", 0)
	if _, err := g.Compose(context.Background(), "user-1", domain.InteractionNudge); err == nil {
		t.Fatal("ожидалась ошибка клиента")
	}
}

func TestOpenAIComposeRejectsEmptyResponse(t *testing.T) {
	client := &stubChatClient{}
	g := NewOpenAI(client, "", 0)
	if _, err := g.Compose(context.Background(), "user-1", domain.InteractionCelebration); err == nil {
		t.Fatal("ожидалась ошибка на пустой ответ")
	}
}
