// File: internal/pipeline/watcher.go
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/chainsight-io/signal-engine/internal/chain"
	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// Watcher polls the chain source for new blocks and feeds each new height
// through the orchestrator exactly once. Heights are processed in order;
// a failed height is retried on the next poll tick rather than skipped.
type Watcher struct {
	configManager *config.Manager
	source        chain.Source
	orchestrator  *Orchestrator
	logger        *logrus.Logger

	mu            sync.RWMutex
	running       bool
	lastProcessed uint64
	hasBaseline   bool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher creates a block watcher
func NewWatcher(
	configManager *config.Manager,
	source chain.Source,
	orchestrator *Orchestrator,
) *Watcher {
	return &Watcher{
		configManager: configManager,
		source:        source,
		orchestrator:  orchestrator,
		logger:        utils.GetLogger(),
		stopChan:      make(chan struct{}),
	}
}

// Start begins watching for new blocks
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	w.mu.Unlock()

	// Start from the current tip; earlier heights belong to backfill
	if height, err := w.source.LatestHeight(ctx); err != nil {
		w.logger.WithError(err).Warn("Could not read chain tip at startup, will retry on first tick")
	} else {
		w.mu.Lock()
		w.lastProcessed = height
		w.hasBaseline = true
		w.mu.Unlock()
		w.logger.WithField("height", height).Info("Watching for blocks above current tip")
	}

	w.wg.Add(1)
	go w.watchLoop(ctx)

	return nil
}

// Stop stops the watcher and waits for the loop to exit
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()

	w.logger.Info("Block watcher stopped")
	return nil
}

// IsRunning reports whether the watch loop is active
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// LastProcessedHeight returns the highest height the watcher has completed
func (w *Watcher) LastProcessedHeight() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastProcessed
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	interval := w.configManager.Current().Pipeline.BlockPollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.WithField("interval", interval).Info("Block watcher started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.checkForNewBlocks(ctx)
		}
	}
}

// checkForNewBlocks processes every height above the last processed one,
// in ascending order, stopping at the first failure so the failed height
// is retried next tick.
func (w *Watcher) checkForNewBlocks(ctx context.Context) {
	tip, err := w.source.LatestHeight(ctx)
	if err != nil {
		w.logger.WithError(err).Error("Failed to read chain tip")
		return
	}

	w.mu.Lock()
	if !w.hasBaseline {
		w.lastProcessed = tip
		w.hasBaseline = true
		w.mu.Unlock()
		w.logger.WithField("height", tip).Info("Watching for blocks above current tip")
		return
	}
	from := w.lastProcessed + 1
	w.mu.Unlock()

	if tip < from {
		return
	}

	timeout := w.configManager.Current().Pipeline.ProcessTimeout
	for height := from; height <= tip; height++ {
		blockCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := w.orchestrator.ProcessHeight(blockCtx, height, RunOptions{})
		cancel()
		if err != nil {
			w.logger.WithFields(logrus.Fields{
				"height": height,
				"error":  err.Error(),
			}).Error("Block processing failed, will retry next tick")
			return
		}

		w.mu.Lock()
		w.lastProcessed = height
		w.mu.Unlock()

		w.logger.WithFields(logrus.Fields{
			"correlation_id":    result.CorrelationID,
			"height":            height,
			"signals_persisted": result.SignalsPersisted,
		}).Debug("Block processed")

		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		default:
		}
	}
}
