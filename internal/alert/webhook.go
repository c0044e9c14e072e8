// File: internal/alert/webhook.go
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// WebhookAlerter posts alerts to an external HTTP endpoint
type WebhookAlerter struct {
	url        string
	httpClient *http.Client
}

// webhookPayload is the wire shape posted to the webhook endpoint
type webhookPayload struct {
	Source    string                 `json:"source"`
	Kind      string                 `json:"kind"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewWebhookAlerter creates a webhook-channel alerter
func NewWebhookAlerter(url string, timeout time.Duration) *WebhookAlerter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookAlerter{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

func (a *WebhookAlerter) Name() string {
	return "webhook"
}

func (a *WebhookAlerter) Send(ctx context.Context, event *Event) error {
	payload := webhookPayload{
		Source:    "signal-engine",
		Kind:      event.Kind,
		Severity:  event.Severity,
		Message:   event.Message,
		Details:   event.Details,
		Timestamp: event.Timestamp,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to encode alert payload", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to build alert request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Alert webhook request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return utils.NewAppError(utils.ErrCodeInternal,
			fmt.Sprintf("Alert webhook returned status %d", resp.StatusCode), "")
	}
	return nil
}
