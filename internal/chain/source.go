// File: internal/chain/source.go
package chain

import (
	"context"
	"time"

	"github.com/chainsight-io/signal-engine/internal/models"
)

// Source is the chain-data collaborator. The engine never fetches or
// validates raw blockchain data itself; it consumes facts an upstream
// extractor has already produced.
type Source interface {
	// LatestHeight returns the current chain tip height
	LatestHeight(ctx context.Context) (uint64, error)

	// BlockFacts returns the extracted facts for a single block
	BlockFacts(ctx context.Context, height uint64) (*models.BlockFacts, error)

	// MempoolStats returns the current mempool sample
	MempoolStats(ctx context.Context) (*models.MempoolStats, error)

	// AddressBalance returns the confirmed balance of an address in BTC
	AddressBalance(ctx context.Context, address string) (float64, error)

	// HeightsInRange returns block heights whose timestamps fall inside
	// [from, to), in ascending order. Used by backfill.
	HeightsInRange(ctx context.Context, from, to time.Time) ([]uint64, error)
}

// BalanceSource is the slice of Source the processors need for balance
// lookups
type BalanceSource interface {
	AddressBalance(ctx context.Context, address string) (float64, error)
}

// History gives processors bounded lookback over already-extracted facts.
// Every accessor is scoped by a window so a processor only sees the span
// its configuration allows.
type History interface {
	// MedianFeeRates returns per-block median fee rates (sat/vB) over the
	// window ending at the reference block, oldest first
	MedianFeeRates(ctx context.Context, window time.Duration) ([]float64, error)

	// EntityFlowTotals returns per-block flow totals (BTC) for one entity
	// and direction over the window, oldest first
	EntityFlowTotals(ctx context.Context, entityName string, flow models.FlowType, window time.Duration) ([]float64, error)

	// ExchangeFlowMagnitudes returns per-block aggregate exchange flow
	// magnitudes (BTC, both directions) over the window, oldest first
	ExchangeFlowMagnitudes(ctx context.Context, window time.Duration) ([]float64, error)

	// PoolBalance returns the total balance (BTC) of a mining pool's known
	// addresses as of the given time
	PoolBalance(ctx context.Context, poolName string, asOf time.Time) (float64, error)

	// AddressActivity returns the heights at which an address transacted
	// within the window, ascending
	AddressActivity(ctx context.Context, address string, window time.Duration) ([]uint64, error)
}
