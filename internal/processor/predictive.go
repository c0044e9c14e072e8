// File: internal/processor/predictive.go
package processor

import (
	"context"
	"math"

	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

const (
	feeForecastModelVersion       = "ewma-1.0"
	liquidityPressureModelVersion = "zscore-1.0"
)

// PredictiveProcessor produces two independent forecasts: a next-block fee
// forecast via exponential smoothing and a liquidity-pressure index via
// z-score normalization of recent exchange-flow magnitude. Forecasts below
// the processor's own minimum confidence are discarded regardless of the
// generic threshold.
type PredictiveProcessor struct {
	config    config.PredictiveProcessorConfig
	threshold float64
}

// NewPredictiveProcessor creates a predictive processor bound to one
// config snapshot
func NewPredictiveProcessor(cfg config.PredictiveProcessorConfig, threshold float64) *PredictiveProcessor {
	return &PredictiveProcessor{config: cfg, threshold: threshold}
}

func (p *PredictiveProcessor) Type() models.SignalType {
	return models.SignalTypePredictive
}

// effectiveFloor is the stricter of the generic threshold and the
// predictive minimum confidence
func (p *PredictiveProcessor) effectiveFloor() float64 {
	if p.config.MinConfidence > p.threshold {
		return p.config.MinConfidence
	}
	return p.threshold
}

func (p *PredictiveProcessor) Process(ctx context.Context, bc *BlockContext) ([]*models.Signal, error) {
	var signals []*models.Signal

	if s, err := p.feeForecast(ctx, bc); err != nil {
		return nil, err
	} else if s != nil {
		signals = append(signals, s)
	}

	if s, err := p.liquidityPressure(ctx, bc); err != nil {
		return nil, err
	} else if s != nil {
		signals = append(signals, s)
	}

	return signals, nil
}

// feeForecast smooths the historical fee-median series and projects the
// next block's fee rate
func (p *PredictiveProcessor) feeForecast(ctx context.Context, bc *BlockContext) (*models.Signal, error) {
	series, err := bc.History.MedianFeeRates(ctx, p.config.TimeWindow)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeExtraction, "Failed to load fee series", err.Error())
	}
	if len(series) < 3 {
		return nil, nil
	}

	alpha := p.config.SmoothingConstant
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}

	// Exponential smoothing; residuals give the interval width
	smoothed := series[0]
	var residuals []float64
	for _, v := range series[1:] {
		residuals = append(residuals, v-smoothed)
		smoothed = alpha*v + (1-alpha)*smoothed
	}

	predicted := smoothed
	residSD := stdDev(residuals)
	confidence := p.calculateForecastConfidence(residSD, mean(series))
	if confidence < p.effectiveFloor() {
		return nil, nil
	}

	horizon := p.config.ForecastHorizon
	if horizon <= 0 {
		horizon = 1
	}

	metadata := map[string]interface{}{
		"forecast_kind":             "fee_forecast",
		"predicted_value":           predicted,
		"confidence_interval_lower": predicted - 1.96*residSD,
		"confidence_interval_upper": predicted + 1.96*residSD,
		"forecast_horizon":          horizon,
		"model_version":             feeForecastModelVersion,
	}

	return candidate(models.SignalTypePredictive, bc, confidence, metadata), nil
}

// liquidityPressure normalizes the latest exchange-flow magnitude against
// its historical distribution
func (p *PredictiveProcessor) liquidityPressure(ctx context.Context, bc *BlockContext) (*models.Signal, error) {
	magnitudes, err := bc.History.ExchangeFlowMagnitudes(ctx, p.config.TimeWindow)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeExtraction, "Failed to load flow magnitudes", err.Error())
	}
	if len(magnitudes) < 3 {
		return nil, nil
	}

	latest := magnitudes[len(magnitudes)-1]
	baseline := magnitudes[:len(magnitudes)-1]
	index := zScore(latest, baseline)

	confidence := p.calculatePressureConfidence(index)
	if confidence < p.effectiveFloor() {
		return nil, nil
	}

	sd := stdDev(baseline)
	horizon := p.config.ForecastHorizon
	if horizon <= 0 {
		horizon = 1
	}

	metadata := map[string]interface{}{
		"forecast_kind":             "liquidity_pressure",
		"predicted_value":           index,
		"confidence_interval_lower": index - sd,
		"confidence_interval_upper": index + sd,
		"forecast_horizon":          horizon,
		"model_version":             liquidityPressureModelVersion,
	}

	return candidate(models.SignalTypePredictive, bc, confidence, metadata), nil
}

// calculateForecastConfidence scores the fit by the residual coefficient
// of variation: tight residuals approach 1, noisy series approach 0
func (p *PredictiveProcessor) calculateForecastConfidence(residSD, seriesMean float64) float64 {
	if seriesMean <= 0 {
		return 0
	}
	return clamp01(1 - residSD/seriesMean)
}

// calculatePressureConfidence scores by how pronounced the pressure
// reading is
func (p *PredictiveProcessor) calculatePressureConfidence(index float64) float64 {
	return clamp01(0.4 + math.Abs(index)*0.15)
}
