// File: internal/pipeline/persister_test.go
package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/internal/storage"
)

// captureStore records SaveSignals calls and can be made to fail. Only
// the methods the persister touches are implemented.
type captureStore struct {
	storage.Store

	saveCalls int
	saved     [][]*models.Signal
	failUntil int // fail attempts up to and including this call number
}

func (s *captureStore) SaveSignals(_ context.Context, signals []*models.Signal) error {
	s.saveCalls++
	if s.saveCalls <= s.failUntil {
		return errors.New("store unavailable")
	}
	batch := make([]*models.Signal, len(signals))
	copy(batch, signals)
	s.saved = append(s.saved, batch)
	return nil
}

func testCandidates(confidences ...float64) []*models.Signal {
	signals := make([]*models.Signal, 0, len(confidences))
	for _, c := range confidences {
		signals = append(signals, &models.Signal{
			Type:        models.SignalTypeWhale,
			BlockHeight: 850000,
			Confidence:  c,
			Metadata:    map[string]interface{}{"whale_address": "bc1qwhale"},
			CreatedAt:   time.Now(),
		})
	}
	return signals
}

func newTestPersister(store storage.Store) *Persister {
	p := NewPersister(store, nil, nil)
	p.baseDelay = time.Millisecond
	return p
}

func TestPersisterAssignsFreshIDs(t *testing.T) {
	store := &captureStore{}
	p := newTestPersister(store)

	persisted := p.Persist(context.Background(), "corr-1", testCandidates(0.8, 0.9), testProcessorsConfig())
	require.Equal(t, 2, persisted)
	require.Len(t, store.saved, 1)

	ids := map[string]bool{}
	for _, s := range store.saved[0] {
		assert.NotEmpty(t, s.ID)
		ids[s.ID] = true
	}
	assert.Len(t, ids, 2, "every signal gets its own id")
}

func TestPersisterRetriesThenAbandons(t *testing.T) {
	store := &captureStore{failUntil: 10}
	p := newTestPersister(store)

	start := time.Now()
	persisted := p.Persist(context.Background(), "corr-2", testCandidates(0.8), testProcessorsConfig())
	assert.Equal(t, 0, persisted)
	assert.Equal(t, 3, store.saveCalls, "three attempts, then drop")
	assert.Less(t, time.Since(start), time.Second, "test delay stays short")
}

func TestPersisterRecoversOnRetry(t *testing.T) {
	store := &captureStore{failUntil: 2}
	p := newTestPersister(store)

	persisted := p.Persist(context.Background(), "corr-3", testCandidates(0.8), testProcessorsConfig())
	assert.Equal(t, 1, persisted)
	assert.Equal(t, 3, store.saveCalls)
}

func TestPersisterFiltersConfidence(t *testing.T) {
	store := &captureStore{}
	p := newTestPersister(store)

	candidates := testCandidates(0.8, 0.5, 1.2, -0.1)
	persisted := p.Persist(context.Background(), "corr-4", candidates, testProcessorsConfig())
	require.Equal(t, 1, persisted)
	assert.InDelta(t, 0.8, store.saved[0][0].Confidence, 0.001)
}

func TestPersisterRejectsInvalidType(t *testing.T) {
	store := &captureStore{}
	p := newTestPersister(store)

	candidates := testCandidates(0.9)
	candidates[0].Type = models.SignalType("bogus")
	persisted := p.Persist(context.Background(), "corr-5", candidates, testProcessorsConfig())
	assert.Equal(t, 0, persisted)
	assert.Zero(t, store.saveCalls, "an empty batch never reaches the store")
}

func TestPersisterPredictiveMinConfidenceBinds(t *testing.T) {
	store := &captureStore{}
	p := newTestPersister(store)

	cfg := testProcessorsConfig()
	cfg.ConfidenceThreshold = 0.3
	cfg.Predictive.ConfidenceThreshold = 0.2
	cfg.Predictive.MinConfidence = 0.5

	candidates := []*models.Signal{
		{Type: models.SignalTypePredictive, BlockHeight: 850000, Confidence: 0.45,
			Metadata: map[string]interface{}{"forecast_kind": "fee_forecast"}},
		{Type: models.SignalTypePredictive, BlockHeight: 850000, Confidence: 0.55,
			Metadata: map[string]interface{}{"forecast_kind": "liquidity_pressure"}},
	}
	persisted := p.Persist(context.Background(), "corr-6", candidates, cfg)
	require.Equal(t, 1, persisted)
	assert.InDelta(t, 0.55, store.saved[0][0].Confidence, 0.001)
}

// testProcessorsConfig mirrors the documented defaults
func testProcessorsConfig() *config.ProcessorsConfig {
	base := func() config.ProcessorConfig {
		return config.ProcessorConfig{Enabled: true, ConfidenceThreshold: 0.6, TimeWindow: 24 * time.Hour}
	}
	return &config.ProcessorsConfig{
		ConfidenceThreshold: 0.6,
		Mempool:             config.MempoolProcessorConfig{ProcessorConfig: base(), SpikeMultiplier: 0.2},
		Exchange:            config.ExchangeProcessorConfig{ProcessorConfig: base(), ZScoreThreshold: 2.0},
		Miner:               config.MinerProcessorConfig{ProcessorConfig: base(), MinBalanceDelta: 10},
		Whale:               config.WhaleProcessorConfig{ProcessorConfig: base(), MinBalance: 1000},
		Treasury:            config.TreasuryProcessorConfig{ProcessorConfig: base(), ZScoreThreshold: 2.0},
		Predictive: config.PredictiveProcessorConfig{
			ProcessorConfig: base(), MinConfidence: 0.5, SmoothingConstant: 0.3, ForecastHorizon: 1,
		},
	}
}
