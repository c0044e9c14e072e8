// File: internal/alert/alert.go
package alert

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// Event severity levels
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Event kinds
const (
	KindStaleSignals       = "stale_signals"
	KindPersistenceFailure = "persistence_failure"
	KindProviderFailure    = "provider_failure"
)

// Event is one operational alert
type Event struct {
	Kind      string                 `json:"kind"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Alerter delivers operational alerts over one channel
type Alerter interface {
	Name() string
	Send(ctx context.Context, event *Event) error
}

// Dispatcher fans an event out to every configured channel. Delivery
// failures are logged, never propagated; alerting must not break the
// pipeline.
type Dispatcher struct {
	alerters []Alerter
	logger   *logrus.Logger
}

// NewDispatcher builds the alert fan-out from configuration
func NewDispatcher(cfg *config.AlertConfig) *Dispatcher {
	d := &Dispatcher{logger: utils.GetLogger()}
	if !cfg.Enabled {
		return d
	}

	d.alerters = append(d.alerters, NewLogAlerter())
	if cfg.WebhookURL != "" {
		d.alerters = append(d.alerters, NewWebhookAlerter(cfg.WebhookURL, cfg.Timeout))
	}
	return d
}

// Notify sends the event on every channel
func (d *Dispatcher) Notify(ctx context.Context, event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, alerter := range d.alerters {
		if err := alerter.Send(ctx, event); err != nil {
			d.logger.WithFields(logrus.Fields{
				"alerter": alerter.Name(),
				"kind":    event.Kind,
				"error":   err.Error(),
			}).Warn("Alert delivery failed")
		}
	}
}
