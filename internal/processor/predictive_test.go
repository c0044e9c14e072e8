// File: internal/processor/predictive_test.go
package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight-io/signal-engine/internal/chain"
	"github.com/chainsight-io/signal-engine/internal/models"
)

func signalsByKind(signals []*models.Signal) map[string]*models.Signal {
	byKind := make(map[string]*models.Signal)
	for _, s := range signals {
		byKind[s.Metadata["forecast_kind"].(string)] = s
	}
	return byKind
}

func TestPredictiveProcessorEmitsBothForecasts(t *testing.T) {
	cfg := testProcessorsConfig()
	p := NewPredictiveProcessor(cfg.Predictive, 0.6)

	source := chain.NewSyntheticSource()
	// A noiseless fee series: the smoother fits perfectly
	source.SetFeeMedianHistory([]float64{20, 20, 20, 20, 20, 20})
	// The latest magnitude is a strong outlier against its baseline
	source.SetFlowMagnitudeHistory([]float64{40, 42, 41, 43, 40, 60})

	bc := testBlockContext(testBlock(850000), source)

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	require.Len(t, signals, 2)

	byKind := signalsByKind(signals)

	fee := byKind["fee_forecast"]
	require.NotNil(t, fee)
	assert.Equal(t, models.SignalTypePredictive, fee.Type)
	assert.InDelta(t, 20.0, fee.Metadata["predicted_value"].(float64), 0.001)
	assert.InDelta(t, 20.0, fee.Metadata["confidence_interval_lower"].(float64), 0.001)
	assert.InDelta(t, 20.0, fee.Metadata["confidence_interval_upper"].(float64), 0.001)
	assert.Equal(t, "ewma-1.0", fee.Metadata["model_version"])
	assert.InDelta(t, 1.0, fee.Confidence, 0.001)

	pressure := byKind["liquidity_pressure"]
	require.NotNil(t, pressure)
	assert.Greater(t, pressure.Metadata["predicted_value"].(float64), 2.0)
	assert.Equal(t, "zscore-1.0", pressure.Metadata["model_version"])
	assert.Equal(t, 1, pressure.Metadata["forecast_horizon"])
}

func TestPredictiveProcessorDropsNoisyForecast(t *testing.T) {
	cfg := testProcessorsConfig()
	p := NewPredictiveProcessor(cfg.Predictive, 0.6)

	source := chain.NewSyntheticSource()
	// Wild swings make the residual spread comparable to the mean
	source.SetFeeMedianHistory([]float64{10, 40, 5, 35, 8, 38})

	bc := testBlockContext(testBlock(850000), source)

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestPredictiveMinConfidenceBindsBelowThreshold(t *testing.T) {
	cfg := testProcessorsConfig()
	cfg.Predictive.MinConfidence = 0.5
	// A permissive generic threshold must not admit weak forecasts
	p := NewPredictiveProcessor(cfg.Predictive, 0.3)

	source := chain.NewSyntheticSource()
	// Quiet baseline, quiet latest: pressure index near zero
	source.SetFlowMagnitudeHistory([]float64{40, 42, 41, 43, 40, 41})

	bc := testBlockContext(testBlock(850000), source)

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	for _, s := range signals {
		assert.NotEqual(t, "liquidity_pressure", s.Metadata["forecast_kind"])
	}
}

func TestPredictiveProcessorNeedsHistory(t *testing.T) {
	cfg := testProcessorsConfig()
	p := NewPredictiveProcessor(cfg.Predictive, 0.6)

	source := chain.NewSyntheticSource()
	source.SetFeeMedianHistory([]float64{20, 21})
	source.SetFlowMagnitudeHistory([]float64{40, 41})

	bc := testBlockContext(testBlock(850000), source)

	signals, err := p.Process(context.Background(), bc)
	require.NoError(t, err)
	assert.Empty(t, signals)
}
