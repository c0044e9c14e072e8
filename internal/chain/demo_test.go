// File: internal/chain/demo_test.go
package chain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight-io/signal-engine/internal/models"
)

func TestDemoSourceFactsAreStablePerHeight(t *testing.T) {
	d := NewDemoSource(850000, time.Second)
	ctx := context.Background()

	first, err := d.BlockFacts(ctx, 850005)
	require.NoError(t, err)
	again, err := d.BlockFacts(ctx, 850005)
	require.NoError(t, err)

	assert.Equal(t, first.Hash, again.Hash)
	assert.Len(t, again.Transactions, len(first.Transactions))
	assert.Equal(t, first.Transactions[0].TxID, again.Transactions[0].TxID)
}

func TestDemoSourceRoutesEntityTraffic(t *testing.T) {
	d := NewDemoSource(850000, time.Second)
	ctx := context.Background()

	// Heights divisible by 5 deposit to the demo exchange
	facts, err := d.BlockFacts(ctx, 850005)
	require.NoError(t, err)

	var sawExchange bool
	for _, tx := range facts.Transactions {
		for _, out := range tx.Outputs {
			if out.Address == DemoExchangeAddress {
				sawExchange = true
			}
		}
	}
	assert.True(t, sawExchange)

	balance, err := d.AddressBalance(ctx, DemoWhaleAddress)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, balance)

	medians, err := d.MedianFeeRates(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, medians)
}

func TestDemoEntitiesMatchGeneratedAddresses(t *testing.T) {
	entities := DemoEntities()
	require.Len(t, entities, 3)

	var addresses []string
	var tags []string
	for _, e := range entities {
		addresses = append(addresses, e.Addresses...)
		tags = append(tags, e.CoinbaseTags...)
	}
	assert.Contains(t, addresses, DemoExchangeAddress)
	assert.Contains(t, addresses, DemoTreasuryAddress)
	assert.Contains(t, tags, DemoPoolTag)
}

func TestSyntheticHeightsInRange(t *testing.T) {
	s := NewSyntheticSource()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{0, 10 * time.Minute, 20 * time.Minute} {
		s.AddBlock(&models.BlockFacts{
			Height:    uint64(820000 + i),
			Hash:      "synthetic-hash",
			Timestamp: base.Add(offset),
		})
	}

	heights, err := s.HeightsInRange(context.Background(), base, base.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []uint64{820000, 820001}, heights)
}
