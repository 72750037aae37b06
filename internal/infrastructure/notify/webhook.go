package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/domain"
	"github.com/lookout/backend/internal/infrastructure/logger"
)

// WebhookDispatcher POSTs the notification event as JSON to a configured
// endpoint. Fire-and-confirm: a non-2xx response is an error for the
// caller to log; there is no retry here.
type WebhookDispatcher struct {
	url    string
	client *http.Client
	log    *logger.Logger
}

func NewWebhookDispatcher(url string, timeout time.Duration, log *logger.Logger) ports.NotificationDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookDispatcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (d *WebhookDispatcher) Deliver(ctx context.Context, event domain.NotificationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	// Per-task channel hints can override the destination.
	url := d.url
	if hint, ok := event.Channels["webhook_url"].(string); ok && hint != "" {
		url = hint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}

	d.log.Infow("webhook_delivered", "task_id", event.TaskID, "execution_id", event.ExecutionID)
	return nil
}
