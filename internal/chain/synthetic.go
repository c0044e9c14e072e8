// File: internal/chain/synthetic.go
package chain

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// SyntheticSource is an in-memory Source and History used by tests and
// local runs. No external calls.
type SyntheticSource struct {
	mu sync.RWMutex

	blocks   map[uint64]*models.BlockFacts
	mempool  *models.MempoolStats
	balances map[string]float64

	feeMedians    []float64
	entityFlows   map[string][]float64 // "name/inflow" -> per-block totals
	flowMagnitude []float64
	poolBalances  map[string]map[int64]float64 // pool -> day unix -> balance
	activity      map[string][]uint64
}

// NewSyntheticSource creates an empty synthetic source
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{
		blocks:       make(map[uint64]*models.BlockFacts),
		mempool:      &models.MempoolStats{},
		balances:     make(map[string]float64),
		entityFlows:  make(map[string][]float64),
		poolBalances: make(map[string]map[int64]float64),
		activity:     make(map[string][]uint64),
	}
}

// AddBlock registers a block's facts
func (s *SyntheticSource) AddBlock(facts *models.BlockFacts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[facts.Height] = facts
}

// SetMempool replaces the mempool sample
func (s *SyntheticSource) SetMempool(stats *models.MempoolStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mempool = stats
}

// SetBalance registers an address balance
func (s *SyntheticSource) SetBalance(address string, balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[address] = balance
}

// SetFeeMedianHistory seeds the historical per-block fee medians
func (s *SyntheticSource) SetFeeMedianHistory(medians []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeMedians = medians
}

// SetEntityFlowHistory seeds per-block flow totals for one entity/direction
func (s *SyntheticSource) SetEntityFlowHistory(entityName string, flow models.FlowType, totals []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entityFlows[entityName+"/"+string(flow)] = totals
}

// SetFlowMagnitudeHistory seeds aggregate exchange flow magnitudes
func (s *SyntheticSource) SetFlowMagnitudeHistory(magnitudes []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flowMagnitude = magnitudes
}

// SetPoolBalance seeds a pool treasury balance for one day
func (s *SyntheticSource) SetPoolBalance(poolName string, day time.Time, balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poolBalances[poolName] == nil {
		s.poolBalances[poolName] = make(map[int64]float64)
	}
	s.poolBalances[poolName][day.Truncate(24*time.Hour).Unix()] = balance
}

// SetAddressActivity seeds the heights at which an address transacted
func (s *SyntheticSource) SetAddressActivity(address string, heights []uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity[address] = heights
}

func (s *SyntheticSource) LatestHeight(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max uint64
	for h := range s.blocks {
		if h > max {
			max = h
		}
	}
	return max, nil
}

func (s *SyntheticSource) BlockFacts(ctx context.Context, height uint64) (*models.BlockFacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	facts, ok := s.blocks[height]
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "block not found")
	}
	return facts, nil
}

func (s *SyntheticSource) MempoolStats(ctx context.Context) (*models.MempoolStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mempool, nil
}

func (s *SyntheticSource) AddressBalance(ctx context.Context, address string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[address], nil
}

func (s *SyntheticSource) HeightsInRange(ctx context.Context, from, to time.Time) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	heights := make([]uint64, 0, len(s.blocks))
	for h, facts := range s.blocks {
		if !facts.Timestamp.Before(from) && facts.Timestamp.Before(to) {
			heights = append(heights, h)
		}
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights, nil
}

func (s *SyntheticSource) MedianFeeRates(ctx context.Context, window time.Duration) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeMedians, nil
}

func (s *SyntheticSource) EntityFlowTotals(ctx context.Context, entityName string, flow models.FlowType, window time.Duration) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entityFlows[entityName+"/"+string(flow)], nil
}

func (s *SyntheticSource) ExchangeFlowMagnitudes(ctx context.Context, window time.Duration) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flowMagnitude, nil
}

func (s *SyntheticSource) PoolBalance(ctx context.Context, poolName string, asOf time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	days := s.poolBalances[poolName]
	if days == nil {
		return 0, nil
	}
	return days[asOf.Truncate(24*time.Hour).Unix()], nil
}

func (s *SyntheticSource) AddressActivity(ctx context.Context, address string, window time.Duration) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activity[address], nil
}
