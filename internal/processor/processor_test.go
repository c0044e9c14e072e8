// File: internal/processor/processor_test.go
package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chainsight-io/signal-engine/internal/chain"
	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/models"
)

// testProcessorsConfig returns an enabled-everything config with the
// documented defaults
func testProcessorsConfig() *config.ProcessorsConfig {
	base := func(window time.Duration) config.ProcessorConfig {
		return config.ProcessorConfig{Enabled: true, ConfidenceThreshold: 0.6, TimeWindow: window}
	}
	return &config.ProcessorsConfig{
		ConfidenceThreshold: 0.6,
		Mempool: config.MempoolProcessorConfig{
			ProcessorConfig: base(24 * time.Hour),
			SpikeMultiplier: 0.2,
		},
		Exchange: config.ExchangeProcessorConfig{
			ProcessorConfig: base(168 * time.Hour),
			ZScoreThreshold: 2.0,
		},
		Miner: config.MinerProcessorConfig{
			ProcessorConfig: base(48 * time.Hour),
			MinBalanceDelta: 10,
		},
		Whale: config.WhaleProcessorConfig{
			ProcessorConfig: base(72 * time.Hour),
			MinBalance:      1000,
		},
		Treasury: config.TreasuryProcessorConfig{
			ProcessorConfig: base(168 * time.Hour),
			ZScoreThreshold: 2.0,
		},
		Predictive: config.PredictiveProcessorConfig{
			ProcessorConfig:   base(24 * time.Hour),
			MinConfidence:     0.5,
			SmoothingConstant: 0.3,
			ForecastHorizon:   1,
		},
	}
}

// testBlockContext builds a context over a synthetic source
func testBlockContext(block *models.BlockFacts, source *chain.SyntheticSource) *BlockContext {
	return &BlockContext{
		Block:        block,
		CoinbasePool: models.UnknownEntity(),
		History:      source,
		Balances:     source,
		SignalTime:   time.Now(),
	}
}

func testBlock(height uint64) *models.BlockFacts {
	return &models.BlockFacts{
		Height:    height,
		Hash:      "hash-test",
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewEnabledHonorsEnabledFlags(t *testing.T) {
	cfg := testProcessorsConfig()
	assert.Len(t, NewEnabled(cfg), 6)

	cfg.Exchange.Enabled = false
	cfg.Predictive.Enabled = false
	processors := NewEnabled(cfg)
	assert.Len(t, processors, 4)
	for _, p := range processors {
		assert.NotEqual(t, models.SignalTypeExchange, p.Type())
		assert.NotEqual(t, models.SignalTypePredictive, p.Type())
	}
}

func TestCandidateCarriesSignalTime(t *testing.T) {
	source := chain.NewSyntheticSource()
	bc := testBlockContext(testBlock(850000), source)
	bc.SignalTime = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	s := candidate(models.SignalTypeWhale, bc, 0.9, map[string]interface{}{"whale_address": "addr"})
	assert.Equal(t, bc.SignalTime, s.CreatedAt)
	assert.Equal(t, uint64(850000), s.BlockHeight)
	assert.Empty(t, s.ID, "ids are assigned at persistence, not extraction")
}
