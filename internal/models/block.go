package models

import "time"

// TxOutput is one address/amount leg of a transaction
type TxOutput struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"` // BTC
}

// TxFact is a pre-extracted transaction from the chain-data collaborator
type TxFact struct {
	TxID    string     `json:"tx_id"`
	Inputs  []TxOutput `json:"inputs"`
	Outputs []TxOutput `json:"outputs"`
	FeeRate float64    `json:"fee_rate"` // sat/vB
}

// Amount returns the total output value of the transaction
func (t *TxFact) Amount() float64 {
	var total float64
	for _, out := range t.Outputs {
		total += out.Amount
	}
	return total
}

// BlockFacts bundles the already-extracted facts for one block
type BlockFacts struct {
	Height         uint64    `json:"height"`
	Hash           string    `json:"hash"`
	Timestamp      time.Time `json:"timestamp"`
	CoinbaseScript string    `json:"coinbase_script"`
	CoinbaseValue  float64   `json:"coinbase_value"` // BTC
	Transactions   []TxFact  `json:"transactions"`
}

// MempoolStats is a point-in-time sample of the mempool
type MempoolStats struct {
	FeeRates []float64 `json:"fee_rates"` // sat/vB sample
	SizeMB   float64   `json:"size_mb"`
	TxCount  int       `json:"tx_count"`
}

// FlowType distinguishes entity inflows from outflows
type FlowType string

const (
	FlowInflow  FlowType = "inflow"
	FlowOutflow FlowType = "outflow"
)

// EntityFlow is the aggregate of one block's transactions touching one
// resolved entity in one direction
type EntityFlow struct {
	Entity   *EntityRecord `json:"entity"`
	FlowType FlowType      `json:"flow_type"`
	Amount   float64       `json:"amount"` // BTC
	TxIDs    []string      `json:"tx_ids"`
}
