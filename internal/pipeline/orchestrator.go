// File: internal/pipeline/orchestrator.go
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/chainsight-io/signal-engine/internal/chain"
	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/entity"
	"github.com/chainsight-io/signal-engine/internal/metrics"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/internal/processor"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// RunOptions adjusts one pipeline run
type RunOptions struct {
	// Backfill makes created_at the block's original timestamp instead of
	// the wall clock
	Backfill bool

	// Types restricts the run to a subset of processors; empty means all
	// enabled
	Types []models.SignalType

	// CorrelationID overrides the generated id, used by backfill to tie a
	// whole range to one run
	CorrelationID string
}

// PipelineResult summarizes one block's run
type PipelineResult struct {
	CorrelationID    string                          `json:"correlation_id"`
	BlockHeight      uint64                          `json:"block_height"`
	SignalsGenerated int                             `json:"signals_generated"`
	SignalsPersisted int                             `json:"signals_persisted"`
	ProcessorErrors  map[models.SignalType]string    `json:"processor_errors,omitempty"`
	GenerationTime   time.Duration                   `json:"generation_time"`
	PersistenceTime  time.Duration                   `json:"persistence_time"`
	TotalTime        time.Duration                   `json:"total_time"`
	SignalsByType    map[models.SignalType]int       `json:"signals_by_type"`
}

// Orchestrator drives the per-block fan-out across signal processors and
// hands the aggregated candidates to the persister. It never blocks the
// next block on insight generation; those stages only share the signal
// store.
type Orchestrator struct {
	configManager *config.Manager
	resolver      *entity.Resolver
	source        chain.Source
	history       chain.History
	persister     *Persister
	logger        *logrus.Logger
	metrics       *metrics.Manager
}

// NewOrchestrator creates a pipeline orchestrator
func NewOrchestrator(
	configManager *config.Manager,
	resolver *entity.Resolver,
	source chain.Source,
	history chain.History,
	persister *Persister,
	metricsManager *metrics.Manager,
) *Orchestrator {
	return &Orchestrator{
		configManager: configManager,
		resolver:      resolver,
		source:        source,
		history:       history,
		persister:     persister,
		logger:        utils.GetLogger(),
		metrics:       metricsManager,
	}
}

// ProcessHeight fetches a block's facts and runs the pipeline over them
func (o *Orchestrator) ProcessHeight(ctx context.Context, height uint64, opts RunOptions) (*PipelineResult, error) {
	facts, err := o.source.BlockFacts(ctx, height)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeExtraction, "Failed to fetch block facts", err.Error())
	}
	return o.ProcessBlock(ctx, facts, opts)
}

// ProcessBlock runs all enabled processors concurrently over one block and
// persists the surviving candidates. A failing processor is isolated: its
// error is logged and the siblings' results still persist.
func (o *Orchestrator) ProcessBlock(ctx context.Context, facts *models.BlockFacts, opts RunOptions) (*PipelineResult, error) {
	startTime := time.Now()

	correlationID := opts.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	// One consistent config snapshot for the whole run
	cfg := o.configManager.Current()
	processors := o.selectProcessors(&cfg.Processors, opts.Types)

	result := &PipelineResult{
		CorrelationID:   correlationID,
		BlockHeight:     facts.Height,
		ProcessorErrors: make(map[models.SignalType]string),
		SignalsByType:   make(map[models.SignalType]int),
	}

	runLog := o.logger.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"block_height":   facts.Height,
	})
	runLog.WithField("processors", len(processors)).Debug("Starting pipeline run")

	bc, err := o.buildContext(ctx, facts, opts)
	if err != nil {
		return nil, err
	}

	// Fan out; each processor failure is contained to its own slot
	generationStart := time.Now()
	type outcome struct {
		signalType models.SignalType
		signals    []*models.Signal
		err        error
	}
	outcomes := make([]outcome, len(processors))

	var wg sync.WaitGroup
	for i, proc := range processors {
		wg.Add(1)
		go func(i int, proc processor.Processor) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = outcome{
						signalType: proc.Type(),
						err:        fmt.Errorf("panic: %v", r),
					}
				}
			}()
			signals, err := proc.Process(ctx, bc)
			outcomes[i] = outcome{signalType: proc.Type(), signals: signals, err: err}
		}(i, proc)
	}
	wg.Wait()
	result.GenerationTime = time.Since(generationStart)

	var candidates []*models.Signal
	for _, out := range outcomes {
		if out.err != nil {
			result.ProcessorErrors[out.signalType] = out.err.Error()
			runLog.WithFields(logrus.Fields{
				"processor": string(out.signalType),
				"error":     out.err.Error(),
			}).Error("Processor failed, siblings unaffected")
			if o.metrics != nil {
				o.metrics.GetPrometheusMetrics().ProcessorErrorsTotal.
					WithLabelValues(string(out.signalType)).Inc()
			}
			continue
		}
		for _, s := range out.signals {
			result.SignalsByType[s.Type]++
			if o.metrics != nil {
				o.metrics.GetPrometheusMetrics().SignalsGeneratedTotal.
					WithLabelValues(string(s.Type)).Inc()
			}
		}
		candidates = append(candidates, out.signals...)
	}
	result.SignalsGenerated = len(candidates)

	// Persist the aggregated batch; retry policy lives in the persister
	persistStart := time.Now()
	persisted := o.persister.Persist(ctx, correlationID, candidates, &cfg.Processors)
	result.SignalsPersisted = persisted
	result.PersistenceTime = time.Since(persistStart)
	result.TotalTime = time.Since(startTime)

	if o.metrics != nil {
		pm := o.metrics.GetPrometheusMetrics()
		pm.RecordBlockProcessed(facts.Height, result.TotalTime)
		pm.RecordStageDuration("generation", result.GenerationTime)
		pm.RecordStageDuration("persistence", result.PersistenceTime)
	}

	runLog.WithFields(logrus.Fields{
		"signals_generated": result.SignalsGenerated,
		"signals_persisted": result.SignalsPersisted,
		"processor_errors":  len(result.ProcessorErrors),
		"generation_time":   result.GenerationTime,
		"persistence_time":  result.PersistenceTime,
		"total_time":        result.TotalTime,
	}).Info("Pipeline run completed")

	return result, nil
}

// buildContext assembles the shared read-only context for one run
func (o *Orchestrator) buildContext(ctx context.Context, facts *models.BlockFacts, opts RunOptions) (*processor.BlockContext, error) {
	bc := &processor.BlockContext{
		Block:        facts,
		Flows:        resolveFlows(o.resolver, facts),
		CoinbasePool: o.resolver.ResolveCoinbase(facts.CoinbaseScript),
		History:      o.history,
		Balances:     o.source,
		SignalTime:   time.Now(),
	}

	if opts.Backfill {
		// Backfilled signals keep the original block time
		bc.SignalTime = facts.Timestamp
	} else {
		stats, err := o.source.MempoolStats(ctx)
		if err != nil {
			// Mempool facts are optional; the mempool processor simply
			// produces nothing without them
			o.logger.WithError(err).Warn("Mempool stats unavailable for run")
		} else {
			bc.Mempool = stats
		}
	}

	return bc, nil
}

// selectProcessors builds the run's processor set from one config
// snapshot, optionally restricted to a type subset
func (o *Orchestrator) selectProcessors(cfg *config.ProcessorsConfig, only []models.SignalType) []processor.Processor {
	enabled := processor.NewEnabled(cfg)
	if len(only) == 0 {
		return enabled
	}

	allowed := make(map[models.SignalType]bool, len(only))
	for _, t := range only {
		allowed[t] = true
	}

	var selected []processor.Processor
	for _, p := range enabled {
		if allowed[p.Type()] {
			selected = append(selected, p)
		}
	}
	return selected
}
