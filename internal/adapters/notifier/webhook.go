package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"brodi-nudge/internal/domain"
	"brodi-nudge/internal/infra/metrics"
)

// Webhook доставляет сообщения в приложение-компаньон по HTTP.
type Webhook struct {
	url        string
	httpClient *http.Client
}

// NewWebhook создаёт HTTP-нотификатор.
func NewWebhook(url string, timeout time.Duration) (*Webhook, error) {
	if url == "" {
		return nil, fmt.Errorf("notifier: webhook url is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

var _ domain.Notifier = (*Webhook)(nil)

type deliveryPayload struct {
	UserID          string `json:"userId"`
	InteractionType string `json:"interactionType"`
	Message         string `json:"message"`
	SentAt          string `json:"sentAt"`
}

// Notify отправляет готовое сообщение пользователю.
func (w *Webhook) Notify(ctx context.Context, userID string, t domain.InteractionType, text string) error {
	payload := deliveryPayload{
		UserID:          userID,
		InteractionType: string(t),
		Message:         text,
		SentAt:          time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notifier: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := w.httpClient.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("companion", "notify", string(t), start, err)
		return fmt.Errorf("notifier: do request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= 400 {
		err = fmt.Errorf("notifier: unexpected status %d", resp.StatusCode)
		metrics.ObserveNetworkRequest("companion", "notify", string(t), start, err)
		return err
	}
	metrics.ObserveNetworkRequest("companion", "notify", string(t), start, nil)
	return nil
}
