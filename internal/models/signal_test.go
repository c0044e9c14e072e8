// File: internal/models/signal_test.go
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalTypeValid(t *testing.T) {
	for _, st := range AllSignalTypes() {
		assert.True(t, st.Valid(), string(st))
	}
	assert.False(t, SignalType("bogus").Valid())
	assert.False(t, SignalType("").Valid())
}

func TestEntityKey(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]interface{}
		want     string
	}{
		{"exchange", map[string]interface{}{"entity_name": "Coinbase", "amount": 50.0}, "Coinbase"},
		{"whale", map[string]interface{}{"whale_address": "bc1qwhale"}, "bc1qwhale"},
		{"miner", map[string]interface{}{"pool_name": "AntPool"}, "AntPool"},
		{"predictive", map[string]interface{}{"forecast_kind": "fee_forecast"}, "fee_forecast"},
		{"mempool keys on the block alone", map[string]interface{}{"fee_rate_median": 26.0}, ""},
		{"nil metadata", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Signal{Metadata: tt.metadata}
			assert.Equal(t, tt.want, s.EntityKey())
		})
	}
}

func TestUnknownEntitySentinel(t *testing.T) {
	u := UnknownEntity()
	assert.True(t, u.IsUnknown())
	assert.Equal(t, EntityKindUnknown, u.Kind)

	known := &EntityRecord{EntityID: "ex-1", Kind: EntityKindExchange}
	assert.False(t, known.IsUnknown())
}
