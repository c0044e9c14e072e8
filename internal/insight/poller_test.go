// File: internal/insight/poller_test.go
package insight

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/internal/storage"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

func newPollerFixture(t *testing.T, provider Provider) (*Poller, storage.Store) {
	t.Helper()

	store, err := storage.NewStore(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "insight.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	configManager, err := config.NewManager("")
	require.NoError(t, err)

	poller := NewPoller(configManager, store, NewGenerator(provider), nil, nil)
	return poller, store
}

func storedSignal(t *testing.T, store storage.Store, signalType models.SignalType, height uint64, confidence float64) *models.Signal {
	t.Helper()
	s := &models.Signal{
		ID:          uuid.NewString(),
		Type:        signalType,
		BlockHeight: height,
		Confidence:  confidence,
		Metadata: map[string]interface{}{
			"whale_address": uuid.NewString(),
			"tx_ids":        []interface{}{"tx-1"},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.SaveSignals(context.Background(), []*models.Signal{s}))
	return s
}

func TestPollerGeneratesAndMarksProcessed(t *testing.T) {
	provider := &cannedProvider{response: &Response{
		Headline:              "Whale accumulation at 850000",
		Summary:               "Summary.",
		ConfidenceExplanation: "Explanation.",
	}}
	poller, store := newPollerFixture(t, provider)

	eligible := storedSignal(t, store, models.SignalTypeWhale, 850000, 0.9)
	sameGroup := storedSignal(t, store, models.SignalTypeWhale, 850000, 0.85)
	lowConfidence := storedSignal(t, store, models.SignalTypeWhale, 850000, 0.5)

	poller.RunCycle(context.Background())

	// Both eligible signals share one provider call
	require.Len(t, provider.requests, 1)
	assert.Len(t, provider.requests[0].Signals, 2)

	for _, id := range []string{eligible.ID, sameGroup.ID} {
		s, err := store.GetSignal(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, s.Processed)
		require.NotNil(t, s.ProcessedAt)

		ins, err := store.GetInsightBySignal(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "Whale accumulation at 850000", ins.Headline)
		assert.Equal(t, s.Confidence, ins.Confidence)
	}

	// Below the confidence floor: untouched
	s, err := store.GetSignal(context.Background(), lowConfidence.ID)
	require.NoError(t, err)
	assert.False(t, s.Processed)
	_, err = store.GetInsightBySignal(context.Background(), lowConfidence.ID)
	assert.Error(t, err)
}

func TestPollerCompletesInterruptedMark(t *testing.T) {
	provider := &cannedProvider{response: &Response{
		Headline:              "Fresh headline",
		Summary:               "s",
		ConfidenceExplanation: "c",
	}}
	poller, store := newPollerFixture(t, provider)

	// A prior cycle persisted the insight but crashed before marking
	// the signal processed
	interrupted := storedSignal(t, store, models.SignalTypeWhale, 850000, 0.9)
	require.NoError(t, store.SaveInsight(context.Background(), &models.Insight{
		ID:         uuid.NewString(),
		SignalID:   interrupted.ID,
		Category:   models.SignalTypeWhale,
		Headline:   "Original headline",
		Summary:    "Original summary.",
		Confidence: interrupted.Confidence,
		CreatedAt:  time.Now(),
	}))

	poller.RunCycle(context.Background())

	s, err := store.GetSignal(context.Background(), interrupted.ID)
	require.NoError(t, err)
	assert.True(t, s.Processed, "existing insight counts as success")

	// The earlier insight stands, no duplicate row
	ins, err := store.GetInsightBySignal(context.Background(), interrupted.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original headline", ins.Headline)

	// Subsequent cycles leave the signal alone
	provider.requests = nil
	poller.RunCycle(context.Background())
	assert.Empty(t, provider.requests)
}

func TestPollerSkipsUnknownSignalTypes(t *testing.T) {
	provider := &cannedProvider{response: &Response{Headline: "h", Summary: "s", ConfidenceExplanation: "c"}}
	poller, store := newPollerFixture(t, provider)

	storedSignal(t, store, models.SignalType("mystery"), 850000, 0.95)

	poller.RunCycle(context.Background())

	assert.Empty(t, provider.requests, "unrecognized types never reach the provider")
}

func TestPollerGroupsByTypeAndHeight(t *testing.T) {
	provider := &cannedProvider{response: &Response{
		Headline:              "h",
		Summary:               "s",
		ConfidenceExplanation: "c",
	}}
	poller, store := newPollerFixture(t, provider)

	storedSignal(t, store, models.SignalTypeWhale, 850000, 0.9)
	storedSignal(t, store, models.SignalTypeWhale, 850001, 0.9)
	storedSignal(t, store, models.SignalTypeExchange, 850000, 0.9)

	poller.RunCycle(context.Background())

	require.Len(t, provider.requests, 3, "one call per (type, height) group")
}

func TestPollerLeavesSignalsOnProviderFailure(t *testing.T) {
	provider := &cannedProvider{err: utils.NewAppError(utils.ErrCodeProvider, "provider down")}
	poller, store := newPollerFixture(t, provider)

	failed := storedSignal(t, store, models.SignalTypeWhale, 850000, 0.9)

	poller.RunCycle(context.Background())

	s, err := store.GetSignal(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.False(t, s.Processed, "a failed group is retried next cycle")

	// A recovered provider picks the signal up again
	provider.err = nil
	provider.response = &Response{Headline: "h", Summary: "s", ConfidenceExplanation: "c"}
	poller.RunCycle(context.Background())

	s, err = store.GetSignal(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.True(t, s.Processed)
}

func TestPollerStartStop(t *testing.T) {
	provider := &cannedProvider{response: &Response{Headline: "h", Summary: "s", ConfidenceExplanation: "c"}}
	poller, _ := newPollerFixture(t, provider)

	require.NoError(t, poller.Start(context.Background()))
	assert.True(t, poller.IsRunning())
	assert.Error(t, poller.Start(context.Background()), "double start is rejected")

	require.NoError(t, poller.Stop())
	assert.False(t, poller.IsRunning())
	require.NoError(t, poller.Stop(), "stop is idempotent")
}
