// File: internal/alert/logger.go
package alert

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// LogAlerter writes alerts to the application log
type LogAlerter struct {
	logger *logrus.Logger
}

// NewLogAlerter creates a log-channel alerter
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{logger: utils.GetLogger()}
}

func (a *LogAlerter) Name() string {
	return "log"
}

func (a *LogAlerter) Send(_ context.Context, event *Event) error {
	entry := a.logger.WithFields(logrus.Fields{
		"alert_kind": event.Kind,
		"details":    event.Details,
	})
	switch event.Severity {
	case SeverityError:
		entry.Error(event.Message)
	case SeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}
	return nil
}
