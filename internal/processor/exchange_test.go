// File: internal/processor/exchange_test.go
package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight-io/signal-engine/internal/chain"
	"github.com/chainsight-io/signal-engine/internal/models"
)

func exchangeEntity() *models.EntityRecord {
	return &models.EntityRecord{
		EntityID:   "ex-1",
		EntityName: "Coinbase",
		Kind:       models.EntityKindExchange,
	}
}

func TestExchangeProcessorFlagsDeviantFlow(t *testing.T) {
	cfg := testProcessorsConfig()
	p := NewExchangeProcessor(cfg.Exchange, 0.6)

	source := chain.NewSyntheticSource()
	source.SetEntityFlowHistory("Coinbase", models.FlowInflow, []float64{10, 12, 11, 13, 12, 11})

	bc := testBlockContext(testBlock(850000), source)
	bc.Flows = []*models.EntityFlow{{
		Entity:   exchangeEntity(),
		FlowType: models.FlowInflow,
		Amount:   50,
		TxIDs:    []string{"tx-1", "tx-2"},
	}}

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	s := signals[0]
	assert.Equal(t, models.SignalTypeExchange, s.Type)
	assert.Equal(t, "Coinbase", s.Metadata["entity_name"])
	assert.Equal(t, "inflow", s.Metadata["flow_type"])
	assert.Equal(t, 2, s.Metadata["tx_count"])
	assert.Greater(t, s.Metadata["zscore"].(float64), 2.0)
	assert.InDelta(t, 1.0, s.Confidence, 0.001, "a far outlier saturates the score")
}

func TestExchangeProcessorIgnoresNormalFlow(t *testing.T) {
	cfg := testProcessorsConfig()
	p := NewExchangeProcessor(cfg.Exchange, 0.6)

	source := chain.NewSyntheticSource()
	source.SetEntityFlowHistory("Coinbase", models.FlowInflow, []float64{10, 12, 11, 13, 12, 11})

	bc := testBlockContext(testBlock(850000), source)
	bc.Flows = []*models.EntityFlow{{
		Entity:   exchangeEntity(),
		FlowType: models.FlowInflow,
		Amount:   12,
	}}

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestExchangeProcessorSkipsNonExchangeAndThinHistory(t *testing.T) {
	cfg := testProcessorsConfig()
	p := NewExchangeProcessor(cfg.Exchange, 0.6)

	source := chain.NewSyntheticSource()
	source.SetEntityFlowHistory("Coinbase", models.FlowOutflow, []float64{10})

	bc := testBlockContext(testBlock(850000), source)
	bc.Flows = []*models.EntityFlow{
		{Entity: models.UnknownEntity(), FlowType: models.FlowInflow, Amount: 500},
		{
			Entity:   &models.EntityRecord{EntityID: "t-1", EntityName: "Strategy", Kind: models.EntityKindTreasuryCompany},
			FlowType: models.FlowInflow,
			Amount:   500,
		},
		// Known exchange but fewer than two historical points
		{Entity: exchangeEntity(), FlowType: models.FlowOutflow, Amount: 500},
	}

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestTreasuryProcessorRelatesMoveToHoldings(t *testing.T) {
	cfg := testProcessorsConfig()
	p := NewTreasuryProcessor(cfg.Treasury, 0.6)

	treasury := &models.EntityRecord{
		EntityID:      "t-1",
		EntityName:    "Strategy",
		Kind:          models.EntityKindTreasuryCompany,
		Ticker:        "MSTR",
		KnownHoldings: 10000,
	}

	source := chain.NewSyntheticSource()
	source.SetEntityFlowHistory("Strategy", models.FlowOutflow, []float64{10, 12, 11, 13, 12, 11})

	bc := testBlockContext(testBlock(850000), source)
	bc.Flows = []*models.EntityFlow{{
		Entity:   treasury,
		FlowType: models.FlowOutflow,
		Amount:   500,
		TxIDs:    []string{"tx-t"},
	}}

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	s := signals[0]
	assert.Equal(t, models.SignalTypeTreasury, s.Type)
	assert.Equal(t, "MSTR", s.Metadata["ticker"])
	// An outflow shrinks holdings: 500 of 10000 is -5%
	assert.InDelta(t, -5.0, s.Metadata["holdings_change_pct"].(float64), 0.001)
}
