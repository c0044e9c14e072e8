// File: internal/pipeline/orchestrator_test.go
package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight-io/signal-engine/internal/chain"
	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/entity"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/internal/storage"
)

// faultyHistory fails the fee-median query, breaking the mempool and
// predictive processors while leaving the rest healthy
type faultyHistory struct {
	*chain.SyntheticSource
}

func (h *faultyHistory) MedianFeeRates(_ context.Context, _ time.Duration) ([]float64, error) {
	return nil, errors.New("history backend down")
}

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewStore(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "signals.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestResolver(t *testing.T, store storage.Store, entities ...*models.EntityRecord) *entity.Resolver {
	t.Helper()
	if len(entities) > 0 {
		require.NoError(t, store.SaveEntities(context.Background(), entities))
	}
	resolver, err := entity.NewResolver(context.Background(), store, time.Hour)
	require.NoError(t, err)
	return resolver
}

func exchangeBlock(height uint64) *models.BlockFacts {
	return &models.BlockFacts{
		Height:    height,
		Hash:      "hash-orch",
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Transactions: []models.TxFact{{
			TxID:    "tx-deposit",
			Inputs:  []models.TxOutput{{Address: "bc1qsender", Amount: 50}},
			Outputs: []models.TxOutput{{Address: "bc1qexchange", Amount: 50}},
		}},
	}
}

func TestOrchestratorIsolatesProcessorFailures(t *testing.T) {
	store := newTestStore(t)
	resolver := newTestResolver(t, store, &models.EntityRecord{
		EntityID:   "ex-1",
		EntityName: "Coinbase",
		Kind:       models.EntityKindExchange,
		Addresses:  []string{"bc1qexchange"},
	})

	source := chain.NewSyntheticSource()
	source.SetMempool(&models.MempoolStats{FeeRates: []float64{20, 21, 22}, TxCount: 3})
	source.SetEntityFlowHistory("Coinbase", models.FlowInflow, []float64{10, 12, 11, 13, 12, 11})

	configManager, err := config.NewManager("")
	require.NoError(t, err)

	persister := NewPersister(store, nil, nil)
	persister.baseDelay = time.Millisecond

	o := NewOrchestrator(configManager, resolver, source, &faultyHistory{source}, persister, nil)

	result, err := o.ProcessBlock(context.Background(), exchangeBlock(850000), RunOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, result.CorrelationID)
	assert.Contains(t, result.ProcessorErrors, models.SignalTypeMempool)
	assert.Contains(t, result.ProcessorErrors, models.SignalTypePredictive)
	assert.NotContains(t, result.ProcessorErrors, models.SignalTypeExchange)

	// The exchange signal survives its siblings' failures
	require.Equal(t, 1, result.SignalsPersisted)
	assert.Equal(t, 1, result.SignalsByType[models.SignalTypeExchange])

	signals, err := store.GetSignals(context.Background(), models.SignalFilter{})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, models.SignalTypeExchange, signals[0].Type)
	assert.NotEmpty(t, signals[0].ID)
	assert.False(t, signals[0].Processed)
}

func TestOrchestratorTypeSubset(t *testing.T) {
	store := newTestStore(t)
	resolver := newTestResolver(t, store, &models.EntityRecord{
		EntityID:   "ex-1",
		EntityName: "Coinbase",
		Kind:       models.EntityKindExchange,
		Addresses:  []string{"bc1qexchange"},
	})

	source := chain.NewSyntheticSource()
	source.SetEntityFlowHistory("Coinbase", models.FlowInflow, []float64{10, 12, 11, 13, 12, 11})

	configManager, err := config.NewManager("")
	require.NoError(t, err)

	persister := NewPersister(store, nil, nil)
	persister.baseDelay = time.Millisecond

	o := NewOrchestrator(configManager, resolver, source, &faultyHistory{source}, persister, nil)

	result, err := o.ProcessBlock(context.Background(), exchangeBlock(850001), RunOptions{
		Types: []models.SignalType{models.SignalTypeExchange},
	})
	require.NoError(t, err)

	// The faulty processors never ran
	assert.Empty(t, result.ProcessorErrors)
	assert.Equal(t, 1, result.SignalsPersisted)
}

func TestOrchestratorDedupesAcrossRuns(t *testing.T) {
	store := newTestStore(t)
	resolver := newTestResolver(t, store, &models.EntityRecord{
		EntityID:   "ex-1",
		EntityName: "Coinbase",
		Kind:       models.EntityKindExchange,
		Addresses:  []string{"bc1qexchange"},
	})

	source := chain.NewSyntheticSource()
	source.SetEntityFlowHistory("Coinbase", models.FlowInflow, []float64{10, 12, 11, 13, 12, 11})

	configManager, err := config.NewManager("")
	require.NoError(t, err)

	persister := NewPersister(store, nil, nil)
	persister.baseDelay = time.Millisecond

	o := NewOrchestrator(configManager, resolver, source, &faultyHistory{source}, persister, nil)

	opts := RunOptions{Types: []models.SignalType{models.SignalTypeExchange}}
	_, err = o.ProcessBlock(context.Background(), exchangeBlock(850002), opts)
	require.NoError(t, err)
	_, err = o.ProcessBlock(context.Background(), exchangeBlock(850002), opts)
	require.NoError(t, err)

	// The natural key (type, height, entity) collapses the replay
	count, err := store.CountSignals(context.Background(), models.SignalFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
