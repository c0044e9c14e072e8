// File: internal/insight/poller.go
package insight

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/chainsight-io/signal-engine/internal/alert"
	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/metrics"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/internal/storage"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// staleAlertCooldown throttles repeated stale-signal alerts so a backlog
// does not flood the alert channels every poll cycle.
const staleAlertCooldown = 15 * time.Minute

// groupKey identifies one provider call worth of signals
type groupKey struct {
	Type        models.SignalType
	BlockHeight uint64
}

// Poller drains unprocessed high-confidence signals into insights. It is
// decoupled from block processing: the two stages share only the signal
// store, so a slow or failing provider never stalls the pipeline.
type Poller struct {
	configManager *config.Manager
	store         storage.Store
	generator     *Generator
	dispatcher    *alert.Dispatcher
	logger        *logrus.Logger
	metrics       *metrics.Manager

	mu             sync.RWMutex
	running        bool
	lastStaleAlert time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates an insight poller
func NewPoller(
	configManager *config.Manager,
	store storage.Store,
	generator *Generator,
	dispatcher *alert.Dispatcher,
	metricsManager *metrics.Manager,
) *Poller {
	return &Poller{
		configManager: configManager,
		store:         store,
		generator:     generator,
		dispatcher:    dispatcher,
		logger:        utils.GetLogger(),
		metrics:       metricsManager,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the poll loop
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("insight poller is already running")
	}
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.pollLoop(ctx)

	p.logger.WithField("provider", p.generator.ProviderName()).Info("Insight poller started")
	return nil
}

// Stop stops the poll loop and waits for it to exit
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()

	p.logger.Info("Insight poller stopped")
	return nil
}

// IsRunning reports whether the poll loop is active
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	interval := p.configManager.Current().Insight.PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.RunCycle(ctx)
		}
	}
}

// RunCycle executes one poll cycle: fetch eligible signals, generate
// insights per (type, block height) group, and mark each signal processed
// only after its insight is durably written. A failed group stays
// unprocessed and is retried next cycle.
func (p *Poller) RunCycle(ctx context.Context) {
	cfg := p.configManager.Current()

	if p.metrics != nil {
		p.metrics.GetPrometheusMetrics().PollCyclesTotal.Inc()
	}

	unprocessed := false
	signals, err := p.store.GetSignals(ctx, models.SignalFilter{
		Types:         models.AllSignalTypes(),
		Processed:     &unprocessed,
		MinConfidence: &cfg.Insight.ConfidenceFloor,
		Limit:         cfg.Insight.BatchLimit,
	})
	if err != nil {
		p.logger.WithError(err).Error("Failed to fetch unprocessed signals")
		return
	}

	if len(signals) > 0 {
		groups := groupSignals(signals)
		for _, key := range sortedGroupKeys(groups) {
			select {
			case <-ctx.Done():
				return
			case <-p.stopChan:
				return
			default:
			}
			p.processGroup(ctx, cfg, key, groups[key])
		}
	}

	p.checkStaleSignals(ctx, cfg)
}

func (p *Poller) processGroup(ctx context.Context, cfg *config.Config, key groupKey, signals []*models.Signal) {
	groupLog := p.logger.WithFields(logrus.Fields{
		"signal_type":  key.Type,
		"block_height": key.BlockHeight,
		"signals":      len(signals),
	})

	genCtx, cancel := context.WithTimeout(ctx, cfg.Insight.RequestTimeout)
	defer cancel()

	providerStart := time.Now()
	insights, err := p.generator.Generate(genCtx, key.Type, key.BlockHeight, signals)
	providerElapsed := time.Since(providerStart)

	if p.metrics != nil {
		p.metrics.GetPrometheusMetrics().ProviderDuration.
			WithLabelValues(p.generator.ProviderName()).Observe(providerElapsed.Seconds())
	}

	if err != nil {
		if p.metrics != nil {
			p.metrics.GetPrometheusMetrics().ProviderFailuresTotal.
				WithLabelValues(p.generator.ProviderName(), failureReason(err)).Inc()
		}
		groupLog.WithError(err).Warn("Insight generation failed, group will be retried")
		if p.dispatcher != nil {
			p.dispatcher.Notify(ctx, &alert.Event{
				Kind:     alert.KindProviderFailure,
				Severity: alert.SeverityWarning,
				Message:  "Insight provider call failed",
				Details: map[string]interface{}{
					"provider":     p.generator.ProviderName(),
					"signal_type":  string(key.Type),
					"block_height": key.BlockHeight,
					"reason":       failureReason(err),
				},
			})
		}
		return
	}

	signalsByID := make(map[string]*models.Signal, len(signals))
	for _, s := range signals {
		signalsByID[s.ID] = s
	}

	for _, ins := range insights {
		if err := p.store.SaveInsight(ctx, ins); err != nil {
			// A prior cycle may have written the insight and then failed
			// to mark the signal; one insight per signal is enforced by
			// the store, so the existing row counts as success and the
			// mark below completes the interrupted cycle.
			existing, lookupErr := p.store.GetInsightBySignal(ctx, ins.SignalID)
			if lookupErr != nil || existing == nil {
				groupLog.WithFields(logrus.Fields{
					"signal_id": ins.SignalID,
					"error":     err.Error(),
				}).Error("Failed to persist insight, signal stays unprocessed")
				continue
			}
			groupLog.WithField("signal_id", ins.SignalID).Info("Insight already persisted, completing interrupted cycle")
		}
		if err := p.store.MarkSignalProcessed(ctx, ins.SignalID, time.Now()); err != nil {
			groupLog.WithFields(logrus.Fields{
				"signal_id": ins.SignalID,
				"error":     err.Error(),
			}).Error("Failed to mark signal processed")
			continue
		}
		if p.metrics != nil {
			p.metrics.GetPrometheusMetrics().InsightsGeneratedTotal.
				WithLabelValues(string(ins.Category)).Inc()
		}
		if _, ok := signalsByID[ins.SignalID]; !ok {
			groupLog.WithField("signal_id", ins.SignalID).Warn("Insight references a signal outside the group")
		}
	}

	groupLog.WithField("insights", len(insights)).Debug("Signal group processed")
}

// checkStaleSignals alerts when unprocessed signals have been waiting
// longer than the configured horizon
func (p *Poller) checkStaleSignals(ctx context.Context, cfg *config.Config) {
	if cfg.Insight.StaleAfter <= 0 {
		return
	}

	cutoff := time.Now().Add(-cfg.Insight.StaleAfter)
	unprocessed := false
	count, err := p.store.CountSignals(ctx, models.SignalFilter{
		Processed:     &unprocessed,
		CreatedBefore: &cutoff,
	})
	if err != nil {
		p.logger.WithError(err).Error("Failed to count stale signals")
		return
	}
	if count == 0 {
		return
	}

	p.mu.Lock()
	throttled := time.Since(p.lastStaleAlert) < staleAlertCooldown
	if !throttled {
		p.lastStaleAlert = time.Now()
	}
	p.mu.Unlock()
	if throttled {
		return
	}

	if p.metrics != nil {
		p.metrics.GetPrometheusMetrics().StaleSignalsTotal.Inc()
	}
	if p.dispatcher != nil {
		p.dispatcher.Notify(ctx, &alert.Event{
			Kind:     alert.KindStaleSignals,
			Severity: alert.SeverityWarning,
			Message:  "Unprocessed signals are past the staleness horizon",
			Details: map[string]interface{}{
				"count":       count,
				"stale_after": cfg.Insight.StaleAfter.String(),
			},
		})
	}
}

// groupSignals buckets signals by (type, block height)
func groupSignals(signals []*models.Signal) map[groupKey][]*models.Signal {
	groups := make(map[groupKey][]*models.Signal)
	for _, s := range signals {
		key := groupKey{Type: s.Type, BlockHeight: s.BlockHeight}
		groups[key] = append(groups[key], s)
	}
	return groups
}

// sortedGroupKeys returns group keys in deterministic order, oldest
// blocks first
func sortedGroupKeys(groups map[groupKey][]*models.Signal) []groupKey {
	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].BlockHeight != keys[j].BlockHeight {
			return keys[i].BlockHeight < keys[j].BlockHeight
		}
		return keys[i].Type < keys[j].Type
	})
	return keys
}

// failureReason maps an error to a coarse metric label
func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	if appErr, ok := err.(*utils.AppError); ok {
		switch appErr.Code {
		case utils.ErrCodeProvider:
			return "provider"
		case utils.ErrCodeConfiguration:
			return "configuration"
		}
	}
	return "internal"
}
