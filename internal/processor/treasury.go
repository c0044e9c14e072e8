// File: internal/processor/treasury.go
package processor

import (
	"context"
	"math"

	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// TreasuryProcessor applies the exchange deviation logic to public-company
// treasury entities and relates the move to their disclosed holdings
type TreasuryProcessor struct {
	config    config.TreasuryProcessorConfig
	threshold float64
}

// NewTreasuryProcessor creates a treasury processor bound to one config
// snapshot
func NewTreasuryProcessor(cfg config.TreasuryProcessorConfig, threshold float64) *TreasuryProcessor {
	return &TreasuryProcessor{config: cfg, threshold: threshold}
}

func (p *TreasuryProcessor) Type() models.SignalType {
	return models.SignalTypeTreasury
}

func (p *TreasuryProcessor) Process(ctx context.Context, bc *BlockContext) ([]*models.Signal, error) {
	var signals []*models.Signal

	for _, flow := range bc.Flows {
		if flow.Entity.IsUnknown() || flow.Entity.Kind != models.EntityKindTreasuryCompany {
			continue
		}

		history, err := bc.History.EntityFlowTotals(ctx, flow.Entity.EntityName, flow.FlowType, p.config.TimeWindow)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeExtraction, "Failed to load treasury flow history", err.Error())
		}
		if len(history) < 2 {
			continue
		}

		z := zScore(flow.Amount, history)
		if math.Abs(z) < p.config.ZScoreThreshold {
			continue
		}

		confidence := p.calculateConfidence(z)
		if confidence < p.threshold {
			continue
		}

		var holdingsChangePct float64
		if flow.Entity.KnownHoldings > 0 {
			holdingsChangePct = flow.Amount / flow.Entity.KnownHoldings * 100
			if flow.FlowType == models.FlowOutflow {
				holdingsChangePct = -holdingsChangePct
			}
		}

		metadata := map[string]interface{}{
			"entity_name":         flow.Entity.EntityName,
			"ticker":              flow.Entity.Ticker,
			"flow_type":           string(flow.FlowType),
			"amount":              flow.Amount,
			"known_holdings":      flow.Entity.KnownHoldings,
			"holdings_change_pct": holdingsChangePct,
			"tx_ids":              flow.TxIDs,
			"zscore":              z,
		}

		signals = append(signals, candidate(models.SignalTypeTreasury, bc, confidence, metadata))
	}

	return signals, nil
}

func (p *TreasuryProcessor) calculateConfidence(z float64) float64 {
	return clamp01(0.4 + math.Abs(z)*0.1)
}
