package models

import "time"

// Evidence links an insight back to the on-chain facts that produced it
type Evidence struct {
	BlockHeights []uint64 `json:"block_heights"`
	TxIDs        []string `json:"tx_ids"`
}

// Insight is a generated natural-language explanation of one signal
type Insight struct {
	ID         string     `json:"id" db:"insight_id"`
	SignalID   string     `json:"signal_id" db:"signal_id"`
	Category   SignalType `json:"category" db:"category"`
	Headline   string     `json:"headline" db:"headline"`
	Summary    string     `json:"summary" db:"summary"`
	Confidence float64    `json:"confidence" db:"confidence"`
	Evidence   Evidence   `json:"evidence" db:"evidence"`
	ChartURL   *string    `json:"chart_url,omitempty" db:"chart_url"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
