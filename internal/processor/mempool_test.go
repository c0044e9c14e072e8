// File: internal/processor/mempool_test.go
package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight-io/signal-engine/internal/chain"
	"github.com/chainsight-io/signal-engine/internal/models"
)

func flatRates(value float64, n int) []float64 {
	rates := make([]float64, n)
	for i := range rates {
		rates[i] = value
	}
	return rates
}

func TestMempoolProcessorDetectsFeeSpike(t *testing.T) {
	cfg := testProcessorsConfig()
	p := NewMempoolProcessor(cfg.Mempool, 0.6)

	source := chain.NewSyntheticSource()
	source.SetFeeMedianHistory(flatRates(20, 12))

	bc := testBlockContext(testBlock(850000), source)
	// 26 against a 20 baseline is a 30% move
	bc.Mempool = &models.MempoolStats{FeeRates: flatRates(26, 100), SizeMB: 55, TxCount: 100}

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	s := signals[0]
	assert.Equal(t, models.SignalTypeMempool, s.Type)
	assert.InDelta(t, 0.8, s.Confidence, 0.001)
	assert.InDelta(t, 26.0, s.Metadata["fee_rate_median"].(float64), 0.001)
	assert.InDelta(t, 30.0, s.Metadata["fee_rate_change_pct"].(float64), 0.001)
	assert.Equal(t, 100, s.Metadata["tx_count"])
}

func TestMempoolProcessorIgnoresSmallMoves(t *testing.T) {
	cfg := testProcessorsConfig()
	p := NewMempoolProcessor(cfg.Mempool, 0.6)

	source := chain.NewSyntheticSource()
	source.SetFeeMedianHistory(flatRates(20, 12))

	bc := testBlockContext(testBlock(850000), source)
	bc.Mempool = &models.MempoolStats{FeeRates: flatRates(21, 100), TxCount: 100}

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMempoolProcessorSkipsWithoutSample(t *testing.T) {
	cfg := testProcessorsConfig()
	p := NewMempoolProcessor(cfg.Mempool, 0.6)

	source := chain.NewSyntheticSource()
	source.SetFeeMedianHistory(flatRates(20, 12))

	// Backfill runs carry no mempool sample
	bc := testBlockContext(testBlock(820000), source)
	bc.Mempool = nil

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMempoolProcessorSkipsWithoutBaseline(t *testing.T) {
	cfg := testProcessorsConfig()
	p := NewMempoolProcessor(cfg.Mempool, 0.6)

	source := chain.NewSyntheticSource()

	bc := testBlockContext(testBlock(850000), source)
	bc.Mempool = &models.MempoolStats{FeeRates: flatRates(40, 100), TxCount: 100}

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	assert.Empty(t, signals)
}
