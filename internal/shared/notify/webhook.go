// Package notify delivers pipeline events to a configured webhook.
// Delivery is fire-and-forget: failures are logged by the caller and never
// block or roll back a pipeline transaction.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Event is one pipeline notification.
type Event struct {
	Type      string                 `json:"type"` // quotation_converted, parts_dispatched, invoice_issued
	TenantID  string                 `json:"tenant_id"`
	ActorID   string                 `json:"actor_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Notifier posts events to a webhook URL. A zero-value URL disables it.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one event. Errors are returned for logging only.
func (n *Notifier) Send(ctx context.Context, event Event) error {
	if n == nil || n.webhookURL == "" {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	body, _ := json.Marshal(event)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
