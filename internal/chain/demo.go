// File: internal/chain/demo.go
package chain

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chainsight-io/signal-engine/internal/models"
)

// Demo catalog addresses. The seed command writes matching entity
// records so the resolver recognizes these in demo runs.
const (
	DemoExchangeAddress = "bc1qdemo-exchange-hotwallet-0"
	DemoWhaleAddress    = "bc1qdemo-whale-coldstore-0"
	DemoTreasuryAddress = "bc1qdemo-treasury-custody-0"
	DemoPoolTag         = "demopool"
)

// DemoEntities returns the catalog records matching the demo source's
// generated traffic
func DemoEntities() []*models.EntityRecord {
	return []*models.EntityRecord{
		{
			EntityID:   "demo-exchange",
			EntityName: "Demo Exchange",
			Kind:       models.EntityKindExchange,
			Addresses:  []string{DemoExchangeAddress},
		},
		{
			EntityID:     "demo-pool",
			EntityName:   "Demo Pool",
			Kind:         models.EntityKindMiningPool,
			CoinbaseTags: []string{DemoPoolTag},
		},
		{
			EntityID:      "demo-treasury",
			EntityName:    "Demo Treasury Co",
			Kind:          models.EntityKindTreasuryCompany,
			Addresses:     []string{DemoTreasuryAddress},
			Ticker:        "DMO",
			KnownHoldings: 5000,
		},
	}
}

// DemoSource fabricates a moving chain for local runs without RPC
// access. Heights advance on the wall clock; facts for a height are
// generated deterministically from the height, so repeated fetches
// agree. History queries return plausible baselines so every processor
// has something to compare against.
type DemoSource struct {
	inner         *SyntheticSource
	baseHeight    uint64
	start         time.Time
	blockInterval time.Duration

	mu sync.Mutex
}

// NewDemoSource creates a demo source starting at baseHeight and
// producing one block per interval
func NewDemoSource(baseHeight uint64, blockInterval time.Duration) *DemoSource {
	d := &DemoSource{
		inner:         NewSyntheticSource(),
		baseHeight:    baseHeight,
		start:         time.Now(),
		blockInterval: blockInterval,
	}

	// Stable baselines for the statistical processors
	medians := make([]float64, 24)
	magnitudes := make([]float64, 24)
	flows := make([]float64, 24)
	for i := range medians {
		medians[i] = 18 + float64(i%5)
		magnitudes[i] = 40 + float64(i%7)*3
		flows[i] = 45 + float64(i%4)*4
	}
	d.inner.SetFeeMedianHistory(medians)
	d.inner.SetFlowMagnitudeHistory(magnitudes)
	d.inner.SetEntityFlowHistory("Demo Exchange", models.FlowInflow, flows)
	d.inner.SetEntityFlowHistory("Demo Exchange", models.FlowOutflow, flows)
	d.inner.SetEntityFlowHistory("Demo Treasury Co", models.FlowInflow, flows)
	d.inner.SetEntityFlowHistory("Demo Treasury Co", models.FlowOutflow, flows)

	now := time.Now()
	d.inner.SetPoolBalance("Demo Pool", now.Add(-24*time.Hour), 480)
	d.inner.SetPoolBalance("Demo Pool", now, 500)
	d.inner.SetBalance(DemoWhaleAddress, 1500)
	d.inner.SetAddressActivity(DemoWhaleAddress, []uint64{baseHeight - 20, baseHeight - 10})

	return d
}

func (d *DemoSource) LatestHeight(_ context.Context) (uint64, error) {
	elapsed := time.Since(d.start)
	return d.baseHeight + uint64(elapsed/d.blockInterval), nil
}

func (d *DemoSource) BlockFacts(ctx context.Context, height uint64) (*models.BlockFacts, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if facts, err := d.inner.BlockFacts(ctx, height); err == nil {
		return facts, nil
	}

	facts := d.generateBlock(height)
	d.inner.AddBlock(facts)
	d.refreshMempool(height)
	return facts, nil
}

func (d *DemoSource) MempoolStats(ctx context.Context) (*models.MempoolStats, error) {
	return d.inner.MempoolStats(ctx)
}

func (d *DemoSource) AddressBalance(ctx context.Context, address string) (float64, error) {
	return d.inner.AddressBalance(ctx, address)
}

func (d *DemoSource) HeightsInRange(ctx context.Context, from, to time.Time) ([]uint64, error) {
	return d.inner.HeightsInRange(ctx, from, to)
}

// History delegates to the seeded baselines
func (d *DemoSource) MedianFeeRates(ctx context.Context, window time.Duration) ([]float64, error) {
	return d.inner.MedianFeeRates(ctx, window)
}

func (d *DemoSource) EntityFlowTotals(ctx context.Context, entityName string, flow models.FlowType, window time.Duration) ([]float64, error) {
	return d.inner.EntityFlowTotals(ctx, entityName, flow, window)
}

func (d *DemoSource) ExchangeFlowMagnitudes(ctx context.Context, window time.Duration) ([]float64, error) {
	return d.inner.ExchangeFlowMagnitudes(ctx, window)
}

func (d *DemoSource) PoolBalance(ctx context.Context, poolName string, asOf time.Time) (float64, error) {
	return d.inner.PoolBalance(ctx, poolName, asOf)
}

func (d *DemoSource) AddressActivity(ctx context.Context, address string, window time.Duration) ([]uint64, error) {
	return d.inner.AddressActivity(ctx, address, window)
}

// generateBlock fabricates deterministic facts for one height
func (d *DemoSource) generateBlock(height uint64) *models.BlockFacts {
	rng := rand.New(rand.NewSource(int64(height)))

	txCount := 4 + rng.Intn(6)
	txs := make([]models.TxFact, 0, txCount)
	for i := 0; i < txCount; i++ {
		amount := 0.5 + rng.Float64()*5
		txs = append(txs, models.TxFact{
			TxID:    fmt.Sprintf("demo-%d-%d", height, i),
			Inputs:  []models.TxOutput{{Address: fmt.Sprintf("bc1qdemo-retail-%d", rng.Intn(50)), Amount: amount}},
			Outputs: []models.TxOutput{{Address: fmt.Sprintf("bc1qdemo-retail-%d", rng.Intn(50)), Amount: amount}},
			FeeRate: 15 + rng.Float64()*20,
		})
	}

	// Every few blocks route a large deposit to the demo exchange, and
	// occasionally move the demo whale
	if height%5 == 0 {
		amount := 80 + rng.Float64()*40
		txs = append(txs, models.TxFact{
			TxID:    fmt.Sprintf("demo-%d-exch", height),
			Inputs:  []models.TxOutput{{Address: fmt.Sprintf("bc1qdemo-retail-%d", rng.Intn(50)), Amount: amount}},
			Outputs: []models.TxOutput{{Address: DemoExchangeAddress, Amount: amount}},
			FeeRate: 25,
		})
	}
	if height%7 == 0 {
		amount := 20 + rng.Float64()*30
		txs = append(txs, models.TxFact{
			TxID:    fmt.Sprintf("demo-%d-whale", height),
			Inputs:  []models.TxOutput{{Address: DemoWhaleAddress, Amount: amount}},
			Outputs: []models.TxOutput{{Address: fmt.Sprintf("bc1qdemo-retail-%d", rng.Intn(50)), Amount: amount}},
			FeeRate: 30,
		})
	}

	return &models.BlockFacts{
		Height:         height,
		Hash:           fmt.Sprintf("demo-hash-%d", height),
		Timestamp:      time.Now(),
		CoinbaseScript: "/" + DemoPoolTag + "/",
		CoinbaseValue:  3.125,
		Transactions:   txs,
	}
}

// refreshMempool fluctuates the mempool sample, spiking roughly every
// tenth block
func (d *DemoSource) refreshMempool(height uint64) {
	rng := rand.New(rand.NewSource(int64(height) * 31))

	base := 18.0
	if height%10 == 0 {
		base = 28.0
	}
	rates := make([]float64, 200)
	for i := range rates {
		rates[i] = base + rng.Float64()*8
	}
	d.inner.SetMempool(&models.MempoolStats{
		FeeRates: rates,
		SizeMB:   40 + rng.Float64()*30,
		TxCount:  len(rates),
	})
}
