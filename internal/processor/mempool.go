// File: internal/processor/mempool.go
package processor

import (
	"context"

	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// MempoolProcessor detects fee-rate spikes by comparing the current
// mempool median against the historical median over its window
type MempoolProcessor struct {
	config    config.MempoolProcessorConfig
	threshold float64
}

// NewMempoolProcessor creates a mempool processor bound to one config snapshot
func NewMempoolProcessor(cfg config.MempoolProcessorConfig, threshold float64) *MempoolProcessor {
	return &MempoolProcessor{config: cfg, threshold: threshold}
}

func (p *MempoolProcessor) Type() models.SignalType {
	return models.SignalTypeMempool
}

func (p *MempoolProcessor) Process(ctx context.Context, bc *BlockContext) ([]*models.Signal, error) {
	// No mempool sample during backfill; nothing to compare
	if bc.Mempool == nil || len(bc.Mempool.FeeRates) == 0 {
		return nil, nil
	}

	histMedians, err := bc.History.MedianFeeRates(ctx, p.config.TimeWindow)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeExtraction, "Failed to load historical fee medians", err.Error())
	}
	if len(histMedians) == 0 {
		return nil, nil
	}

	currentMedian := median(bc.Mempool.FeeRates)
	baseline := median(histMedians)
	if baseline <= 0 {
		return nil, nil
	}

	change := (currentMedian - baseline) / baseline
	if change < p.config.SpikeMultiplier {
		return nil, nil
	}

	confidence := p.calculateConfidence(change)
	if confidence < p.threshold {
		return nil, nil
	}

	metadata := map[string]interface{}{
		"fee_rate_median":     currentMedian,
		"fee_rate_change_pct": change * 100,
		"mempool_size_mb":     bc.Mempool.SizeMB,
		"tx_count":            bc.Mempool.TxCount,
		"fee_rate_p10":        quantile(bc.Mempool.FeeRates, 0.10),
		"fee_rate_p25":        quantile(bc.Mempool.FeeRates, 0.25),
		"fee_rate_p75":        quantile(bc.Mempool.FeeRates, 0.75),
		"fee_rate_p90":        quantile(bc.Mempool.FeeRates, 0.90),
	}

	return []*models.Signal{candidate(models.SignalTypeMempool, bc, confidence, metadata)}, nil
}

// calculateConfidence scores a spike by how far the relative change moved:
// a change equal to the spike multiplier starts near the floor and larger
// moves approach 1
func (p *MempoolProcessor) calculateConfidence(change float64) float64 {
	return clamp01(0.5 + change)
}
