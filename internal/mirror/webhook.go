package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookSink posts each Notice as JSON to a fixed URL, such as a chat
// channel's incoming webhook.
type WebhookSink struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookSink creates a WebhookSink. A zero timeout means 10s.
func NewWebhookSink(url string, timeout time.Duration, logger *zap.Logger) *WebhookSink {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Name identifies the sink in logs and metrics.
func (s *WebhookSink) Name() string { return "webhook" }

// Forward posts n to the webhook URL.
func (s *WebhookSink) Forward(ctx context.Context, n Notice) error {
	body, err := json.Marshal(webhookBody{
		Text:   fmt.Sprintf("%s\n%s", n.Title, n.Body),
		Notice: n,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pushwatch/1.0")
	req.Header.Set("X-Pushwatch-Tag", n.Tag)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d, body: %s", resp.StatusCode, string(preview))
	}

	s.logger.Debug("notice mirrored to webhook",
		zap.String("tag", n.Tag),
		zap.Int("status_code", resp.StatusCode),
	)

	return nil
}

// webhookBody carries a "text" field most chat webhooks render, plus the
// structured notice for anything else.
type webhookBody struct {
	Text string `json:"text"`
	Notice
}
