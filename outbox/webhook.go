package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anovik/eventflow"
)

// WebhookItem is the wire representation of an outbox item pushed to a
// webhook destination
type WebhookItem struct {
	Sequence      uint64          `json:"sequence"`
	StreamID      string          `json:"stream_id"`
	CorrelationID string          `json:"correlation_id"`
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data"`
	CreatedAt     string          `json:"created_at"`
}

// WebhookCfg (configure using WebhookOpt)
type WebhookCfg struct {
	client *http.Client
}

// WebhookOpt represents a webhook sender configuration option
type WebhookOpt func(WebhookCfg) WebhookCfg

// WithHTTPClient overrides the http client used for delivery
func WithHTTPClient(client *http.Client) WebhookOpt {
	return func(cfg WebhookCfg) WebhookCfg {
		cfg.client = client

		return cfg
	}
}

// NewWebhookSender constructs a sender which POSTs outbox item batches as
// json to the provided url. A non-2xx response fails the batch so that the
// relay re-delivers it
func NewWebhookSender(url string, opts ...WebhookOpt) *WebhookSender {
	cfg := WebhookCfg{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		cfg = opt(cfg)
	}

	return &WebhookSender{
		url:    url,
		client: cfg.client,
	}
}

// WebhookSender delivers outbox items over http
type WebhookSender struct {
	url    string
	client *http.Client
}

// Send implements Sender
func (w *WebhookSender) Send(ctx context.Context, items []eventflow.OutboxItem) error {
	payload := make([]WebhookItem, len(items))

	for i, item := range items {
		data, err := json.Marshal(item.Notification)
		if err != nil {
			return err
		}

		payload[i] = WebhookItem{
			Sequence:      item.Sequence,
			StreamID:      item.StreamID,
			CorrelationID: item.CorrelationID,
			Type:          item.Type,
			Data:          data,
			CreatedAt:     item.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook destination responded with %s", resp.Status)
	}

	return nil
}
