// File: internal/processor/processor.go
package processor

import (
	"context"
	"time"

	"github.com/chainsight-io/signal-engine/internal/chain"
	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/models"
)

// BlockContext bundles the read-only inputs for one block's run. It is
// shared by all processors in a run; nothing in it may be mutated.
type BlockContext struct {
	Block        *models.BlockFacts
	Mempool      *models.MempoolStats
	Flows        []*models.EntityFlow
	CoinbasePool *models.EntityRecord
	History      chain.History
	Balances     chain.BalanceSource

	// SignalTime becomes created_at on every candidate: wall clock for
	// live blocks, the original block timestamp for backfill.
	SignalTime time.Time
}

// Processor turns one block's context into zero or more signal candidates.
// Implementations are pure functions of the context plus their own config;
// they hold no cross-call state.
type Processor interface {
	Type() models.SignalType
	Process(ctx context.Context, bc *BlockContext) ([]*models.Signal, error)
}

// NewEnabled builds the processor set enabled by one configuration
// snapshot. The snapshot is read once here, at the start of a run, and the
// returned processors carry their values for the whole run.
func NewEnabled(cfg *config.ProcessorsConfig) []Processor {
	var processors []Processor
	if cfg.Mempool.Enabled {
		processors = append(processors, NewMempoolProcessor(cfg.Mempool, cfg.EffectiveThreshold(cfg.Mempool.ConfidenceThreshold)))
	}
	if cfg.Exchange.Enabled {
		processors = append(processors, NewExchangeProcessor(cfg.Exchange, cfg.EffectiveThreshold(cfg.Exchange.ConfidenceThreshold)))
	}
	if cfg.Miner.Enabled {
		processors = append(processors, NewMinerProcessor(cfg.Miner, cfg.EffectiveThreshold(cfg.Miner.ConfidenceThreshold)))
	}
	if cfg.Whale.Enabled {
		processors = append(processors, NewWhaleProcessor(cfg.Whale, cfg.EffectiveThreshold(cfg.Whale.ConfidenceThreshold)))
	}
	if cfg.Treasury.Enabled {
		processors = append(processors, NewTreasuryProcessor(cfg.Treasury, cfg.EffectiveThreshold(cfg.Treasury.ConfidenceThreshold)))
	}
	if cfg.Predictive.Enabled {
		processors = append(processors, NewPredictiveProcessor(cfg.Predictive, cfg.EffectiveThreshold(cfg.Predictive.ConfidenceThreshold)))
	}
	return processors
}

// candidate builds an unpersisted signal. IDs are assigned at persistence
// time, never here.
func candidate(t models.SignalType, bc *BlockContext, confidence float64, metadata map[string]interface{}) *models.Signal {
	return &models.Signal{
		Type:        t,
		BlockHeight: bc.Block.Height,
		Confidence:  confidence,
		Metadata:    metadata,
		CreatedAt:   bc.SignalTime,
	}
}
