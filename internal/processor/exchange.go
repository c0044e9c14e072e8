// File: internal/processor/exchange.go
package processor

import (
	"context"
	"math"

	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// ExchangeProcessor flags per-entity flow volumes that deviate from their
// historical baseline
type ExchangeProcessor struct {
	config    config.ExchangeProcessorConfig
	threshold float64
}

// NewExchangeProcessor creates an exchange-flow processor bound to one
// config snapshot
func NewExchangeProcessor(cfg config.ExchangeProcessorConfig, threshold float64) *ExchangeProcessor {
	return &ExchangeProcessor{config: cfg, threshold: threshold}
}

func (p *ExchangeProcessor) Type() models.SignalType {
	return models.SignalTypeExchange
}

func (p *ExchangeProcessor) Process(ctx context.Context, bc *BlockContext) ([]*models.Signal, error) {
	var signals []*models.Signal

	for _, flow := range bc.Flows {
		if flow.Entity.IsUnknown() || flow.Entity.Kind != models.EntityKindExchange {
			continue
		}

		history, err := bc.History.EntityFlowTotals(ctx, flow.Entity.EntityName, flow.FlowType, p.config.TimeWindow)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeExtraction, "Failed to load entity flow history", err.Error())
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

		metadata := map[string]interface{}{
			"entity_id":   flow.Entity.EntityID,
			"entity_name": flow.Entity.EntityName,
			"flow_type":   string(flow.FlowType),
			"amount":      flow.Amount,
			"tx_count":    len(flow.TxIDs),
			"tx_ids":      flow.TxIDs,
			"zscore":      z,
		}

		signals = append(signals, candidate(models.SignalTypeExchange, bc, confidence, metadata))
	}

	return signals, nil
}

// calculateConfidence maps the deviation z-score onto 0..1: the
// configured threshold lands near the default floor and each further
// standard deviation adds a tenth
func (p *ExchangeProcessor) calculateConfidence(z float64) float64 {
	return clamp01(0.4 + math.Abs(z)*0.1)
}
