// File: internal/processor/miner_test.go
package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight-io/signal-engine/internal/chain"
	"github.com/chainsight-io/signal-engine/internal/models"
)

func antPool() *models.EntityRecord {
	return &models.EntityRecord{
		EntityID:     "pool-1",
		EntityName:   "AntPool",
		Kind:         models.EntityKindMiningPool,
		CoinbaseTags: []string{"antpool"},
	}
}

func TestMinerProcessorFlagsTreasuryDelta(t *testing.T) {
	cfg := testProcessorsConfig()
	p := NewMinerProcessor(cfg.Miner, 0.6)

	block := testBlock(850000)
	block.CoinbaseValue = 3.125
	day := block.Timestamp.Truncate(24 * time.Hour)

	source := chain.NewSyntheticSource()
	source.SetPoolBalance("AntPool", day, 520)
	source.SetPoolBalance("AntPool", day.Add(-24*time.Hour), 500)

	bc := testBlockContext(block, source)
	bc.CoinbasePool = antPool()

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	s := signals[0]
	assert.Equal(t, models.SignalTypeMiner, s.Type)
	assert.Equal(t, "AntPool", s.Metadata["pool_name"])
	assert.InDelta(t, 3.125, s.Metadata["amount"].(float64), 0.001)
	assert.InDelta(t, 20.0, s.Metadata["treasury_balance_change"].(float64), 0.001)
	assert.InDelta(t, 0.7, s.Confidence, 0.001)
}

func TestMinerProcessorIgnoresSmallDelta(t *testing.T) {
	cfg := testProcessorsConfig()
	p := NewMinerProcessor(cfg.Miner, 0.6)

	block := testBlock(850000)
	day := block.Timestamp.Truncate(24 * time.Hour)

	source := chain.NewSyntheticSource()
	source.SetPoolBalance("AntPool", day, 505)
	source.SetPoolBalance("AntPool", day.Add(-24*time.Hour), 500)

	bc := testBlockContext(block, source)
	bc.CoinbasePool = antPool()

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMinerProcessorSkipsUnknownPool(t *testing.T) {
	cfg := testProcessorsConfig()
	p := NewMinerProcessor(cfg.Miner, 0.6)

	source := chain.NewSyntheticSource()
	bc := testBlockContext(testBlock(850000), source)

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	assert.Empty(t, signals)
}
