package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"brodi-nudge/internal/domain"
)

func TestWebhookNotifyPostsPayload(t *testing.T) {
	var got deliveryPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("неожиданный метод: %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("распаковка тела: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w, err := NewWebhook(srv.URL, 0)
	if err != nil {
		t.Fatalf("создание нотификатора: %v", err)
	}
	if err := w.Notify(context.Background(), "user-1", domain.InteractionCelebration, "Congrats!"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if got.UserID != "user-1" || got.InteractionType != "celebration" || got.Message != "Congrats!" {
		t.Fatalf("неожиданный payload: %+v", got)
	}
}

func TestWebhookNotifyFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w, err := NewWebhook(srv.URL, 0)
	if err != nil {
		t.Fatalf("создание нотификатора: %v", err)
	}
	if err := w.Notify(context.Background(), "user-1", domain.InteractionNudge, "hi"); err == nil {
		t.Fatal("ожидалась ошибка на статус 502")
	}
}

func TestNewWebhookRequiresURL(t *testing.T) {
	if _, err := NewWebhook("", 0); err == nil {
		t.Fatal("ожидалась ошибка без URL")
	}
}
