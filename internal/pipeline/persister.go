// File: internal/pipeline/persister.go
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/chainsight-io/signal-engine/internal/alert"
	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/metrics"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/internal/storage"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

const persistMaxAttempts = 3

// Persister writes accepted signal candidates as one batch per block.
// Transient store failures are retried with exponential backoff
// (1s, 2s); after the attempts are exhausted the batch is dropped
// and logged so block ingestion never stalls on the store.
type Persister struct {
	store      storage.Store
	logger     *logrus.Logger
	metrics    *metrics.Manager
	dispatcher *alert.Dispatcher

	// baseDelay is the first retry delay; tests shrink it
	baseDelay time.Duration
}

// NewPersister creates a signal persister
func NewPersister(store storage.Store, metricsManager *metrics.Manager, dispatcher *alert.Dispatcher) *Persister {
	return &Persister{
		store:      store,
		logger:     utils.GetLogger(),
		metrics:    metricsManager,
		dispatcher: dispatcher,
		baseDelay:  time.Second,
	}
}

// Persist filters candidates against the confidence floors, assigns fresh
// ids, and writes the batch. Returns the number of signals accepted into
// the batch; zero with no logging when nothing survives filtering.
func (p *Persister) Persist(ctx context.Context, correlationID string, candidates []*models.Signal, cfg *config.ProcessorsConfig) int {
	accepted := p.filter(candidates, cfg)
	if len(accepted) == 0 {
		return 0
	}

	// Ids are assigned here, never by callers
	for _, signal := range accepted {
		signal.ID = uuid.NewString()
	}

	batchLog := p.logger.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"batch_size":     len(accepted),
	})

	var lastErr error
	for attempt := 1; attempt <= persistMaxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.baseDelay << uint(attempt-2)
			if p.metrics != nil {
				p.metrics.GetPrometheusMetrics().PersistenceRetriesTotal.Inc()
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				batchLog.Warn("Persistence abandoned, context cancelled")
				return 0
			}
		}

		lastErr = p.store.SaveSignals(ctx, accepted)
		if lastErr == nil {
			if p.metrics != nil {
				pm := p.metrics.GetPrometheusMetrics()
				for _, s := range accepted {
					pm.SignalsPersistedTotal.WithLabelValues(string(s.Type)).Inc()
				}
			}
			batchLog.WithField("attempt", attempt).Debug("Signal batch persisted")
			return len(accepted)
		}

		batchLog.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   lastErr.Error(),
		}).Warn("Signal batch write failed")
	}

	// Exhausted: log and move on so the next block is never blocked
	if p.metrics != nil {
		p.metrics.GetPrometheusMetrics().PersistenceFailuresTotal.Inc()
	}
	batchLog.WithFields(logrus.Fields{
		"attempts": persistMaxAttempts,
		"error":    lastErr.Error(),
	}).Error("Signal batch abandoned after retry exhaustion")
	if p.dispatcher != nil {
		p.dispatcher.Notify(ctx, &alert.Event{
			Kind:     alert.KindPersistenceFailure,
			Severity: alert.SeverityError,
			Message:  "Signal batch dropped after retry exhaustion",
			Details: map[string]interface{}{
				"correlation_id": correlationID,
				"batch_size":     len(accepted),
				"error":          lastErr.Error(),
			},
		})
	}
	return 0
}

// filter drops candidates outside [0,1] or below the effective floor for
// their type. Predictive additionally honors its own minimum confidence.
func (p *Persister) filter(candidates []*models.Signal, cfg *config.ProcessorsConfig) []*models.Signal {
	var accepted []*models.Signal
	for _, signal := range candidates {
		if signal.Confidence < 0 || signal.Confidence > 1 || !signal.Type.Valid() {
			p.reject(signal)
			continue
		}
		if signal.Confidence < p.effectiveFloor(signal.Type, cfg) {
			p.reject(signal)
			continue
		}
		accepted = append(accepted, signal)
	}
	return accepted
}

func (p *Persister) reject(signal *models.Signal) {
	if p.metrics != nil {
		p.metrics.GetPrometheusMetrics().SignalsRejectedTotal.
			WithLabelValues(string(signal.Type)).Inc()
	}
}

func (p *Persister) effectiveFloor(t models.SignalType, cfg *config.ProcessorsConfig) float64 {
	var perType float64
	switch t {
	case models.SignalTypeMempool:
		perType = cfg.Mempool.ConfidenceThreshold
	case models.SignalTypeExchange:
		perType = cfg.Exchange.ConfidenceThreshold
	case models.SignalTypeMiner:
		perType = cfg.Miner.ConfidenceThreshold
	case models.SignalTypeWhale:
		perType = cfg.Whale.ConfidenceThreshold
	case models.SignalTypeTreasury:
		perType = cfg.Treasury.ConfidenceThreshold
	case models.SignalTypePredictive:
		perType = cfg.Predictive.ConfidenceThreshold
		if cfg.Predictive.MinConfidence > perType {
			perType = cfg.Predictive.MinConfidence
		}
	}
	return cfg.EffectiveThreshold(perType)
}
