// File: internal/processor/miner.go
package processor

import (
	"context"
	"math"
	"time"

	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// MinerProcessor attributes the coinbase to a mining pool and tracks
// day-over-day movement of the pool's treasury balance
type MinerProcessor struct {
	config    config.MinerProcessorConfig
	threshold float64
}

// NewMinerProcessor creates a miner processor bound to one config snapshot
func NewMinerProcessor(cfg config.MinerProcessorConfig, threshold float64) *MinerProcessor {
	return &MinerProcessor{config: cfg, threshold: threshold}
}

func (p *MinerProcessor) Type() models.SignalType {
	return models.SignalTypeMiner
}

func (p *MinerProcessor) Process(ctx context.Context, bc *BlockContext) ([]*models.Signal, error) {
	pool := bc.CoinbasePool
	if pool.IsUnknown() {
		return nil, nil
	}

	day := bc.Block.Timestamp.Truncate(24 * time.Hour)
	today, err := bc.History.PoolBalance(ctx, pool.EntityName, day)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeExtraction, "Failed to load pool balance", err.Error())
	}
	yesterday, err := bc.History.PoolBalance(ctx, pool.EntityName, day.Add(-24*time.Hour))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeExtraction, "Failed to load prior pool balance", err.Error())
	}

	delta := today - yesterday
	if math.Abs(delta) < p.config.MinBalanceDelta {
		return nil, nil
	}

	confidence := p.calculateConfidence(delta)
	if confidence < p.threshold {
		return nil, nil
	}

	metadata := map[string]interface{}{
		"pool_name":               pool.EntityName,
		"amount":                  bc.Block.CoinbaseValue,
		"treasury_balance_change": delta,
	}

	return []*models.Signal{candidate(models.SignalTypeMiner, bc, confidence, metadata)}, nil
}

// calculateConfidence scores the move by its size relative to the
// configured minimum delta
func (p *MinerProcessor) calculateConfidence(delta float64) float64 {
	if p.config.MinBalanceDelta <= 0 {
		return 0
	}
	ratio := math.Abs(delta) / p.config.MinBalanceDelta
	return clamp01(0.5 + ratio*0.1)
}
