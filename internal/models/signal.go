package models

import (
	"time"
)

// SignalType identifies the processor family that produced a signal
type SignalType string

const (
	SignalTypeMempool    SignalType = "mempool"
	SignalTypeExchange   SignalType = "exchange"
	SignalTypeMiner      SignalType = "miner"
	SignalTypeWhale      SignalType = "whale"
	SignalTypeTreasury   SignalType = "treasury"
	SignalTypePredictive SignalType = "predictive"
)

// AllSignalTypes returns every known signal type
func AllSignalTypes() []SignalType {
	return []SignalType{
		SignalTypeMempool,
		SignalTypeExchange,
		SignalTypeMiner,
		SignalTypeWhale,
		SignalTypeTreasury,
		SignalTypePredictive,
	}
}

// Valid reports whether the signal type is a known type
func (t SignalType) Valid() bool {
	switch t {
	case SignalTypeMempool, SignalTypeExchange, SignalTypeMiner,
		SignalTypeWhale, SignalTypeTreasury, SignalTypePredictive:
		return true
	}
	return false
}

// Signal represents a scored observation derived from one block's data
type Signal struct {
	ID          string                 `json:"id" db:"signal_id"`
	Type        SignalType             `json:"signal_type" db:"signal_type"`
	BlockHeight uint64                 `json:"block_height" db:"block_height"`
	Confidence  float64                `json:"confidence" db:"confidence"`
	Metadata    map[string]interface{} `json:"metadata" db:"metadata"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
	Processed   bool                   `json:"processed" db:"processed"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty" db:"processed_at"`
}

// EntityKey returns the metadata field that identifies the subject of the
// signal, used as part of the (type, block_height, entity) dedup key.
// Mempool and predictive signals describe the block as a whole and key on
// the empty string.
func (s *Signal) EntityKey() string {
	for _, field := range []string{"entity_name", "whale_address", "pool_name", "forecast_kind"} {
		if v, ok := s.Metadata[field].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// SignalFilter for querying persisted signals
type SignalFilter struct {
	Types         []SignalType `json:"types,omitempty"`
	Processed     *bool        `json:"processed,omitempty"`
	MinConfidence *float64     `json:"min_confidence,omitempty"`
	FromHeight    *uint64      `json:"from_height,omitempty"`
	ToHeight      *uint64      `json:"to_height,omitempty"`
	CreatedBefore *time.Time   `json:"created_before,omitempty"`
	Limit         int          `json:"limit,omitempty"`
	Offset        int          `json:"offset,omitempty"`
}
