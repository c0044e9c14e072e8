// File: internal/processor/whale.go
package processor

import (
	"context"
	"sort"

	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// WhaleProcessor flags large-balance addresses transacting in the block
// and tracks their accumulation streak over the window
type WhaleProcessor struct {
	config    config.WhaleProcessorConfig
	threshold float64
}

// NewWhaleProcessor creates a whale processor bound to one config snapshot
func NewWhaleProcessor(cfg config.WhaleProcessorConfig, threshold float64) *WhaleProcessor {
	return &WhaleProcessor{config: cfg, threshold: threshold}
}

func (p *WhaleProcessor) Type() models.SignalType {
	return models.SignalTypeWhale
}

func (p *WhaleProcessor) Process(ctx context.Context, bc *BlockContext) ([]*models.Signal, error) {
	// One candidate per sending address per block; repeat activity within
	// the window extends the streak rather than duplicating
	sent := make(map[string]float64)
	txIDs := make(map[string][]string)
	for _, tx := range bc.Block.Transactions {
		seen := make(map[string]bool)
		for _, in := range tx.Inputs {
			if in.Address == "" {
				continue
			}
			sent[in.Address] += in.Amount
			if !seen[in.Address] {
				txIDs[in.Address] = append(txIDs[in.Address], tx.TxID)
				seen[in.Address] = true
			}
		}
	}

	addresses := make([]string, 0, len(sent))
	for addr := range sent {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	var signals []*models.Signal
	for _, addr := range addresses {
		balance, err := bc.Balances.AddressBalance(ctx, addr)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeExtraction, "Failed to look up address balance", err.Error())
		}
		if balance < p.config.MinBalance {
			continue
		}

		activity, err := bc.History.AddressActivity(ctx, addr, p.config.TimeWindow)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeExtraction, "Failed to load address activity", err.Error())
		}
		streak := len(activity) + 1 // prior blocks in window plus this one

		confidence := p.calculateConfidence(balance, streak)
		if confidence < p.threshold {
			continue
		}

		metadata := map[string]interface{}{
			"whale_address":       addr,
			"amount":              sent[addr],
			"balance":             balance,
			"accumulation_streak": streak,
			"tx_ids":              txIDs[addr],
		}

		signals = append(signals, candidate(models.SignalTypeWhale, bc, confidence, metadata))
	}

	return signals, nil
}

// calculateConfidence scores by balance multiple over the floor, with a
// small bonus per streak block
func (p *WhaleProcessor) calculateConfidence(balance float64, streak int) float64 {
	if p.config.MinBalance <= 0 {
		return 0
	}
	ratio := balance / p.config.MinBalance
	return clamp01(0.5 + ratio*0.1 + float64(streak-1)*0.05)
}
