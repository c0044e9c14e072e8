package models

// EntityKind classifies a resolved on-chain actor
type EntityKind string

const (
	EntityKindExchange        EntityKind = "exchange"
	EntityKindMiningPool      EntityKind = "mining_pool"
	EntityKindTreasuryCompany EntityKind = "treasury_company"
	EntityKindUnknown         EntityKind = "unknown"
)

// EntityRecord is a named real-world actor resolved from addresses
type EntityRecord struct {
	EntityID      string     `json:"entity_id" db:"entity_id"`
	EntityName    string     `json:"entity_name" db:"entity_name"`
	Kind          EntityKind `json:"kind" db:"kind"`
	Addresses     []string   `json:"addresses" db:"addresses"`
	CoinbaseTags  []string   `json:"coinbase_tags,omitempty" db:"coinbase_tags"`
	Ticker        string     `json:"ticker,omitempty" db:"ticker"`
	KnownHoldings float64    `json:"known_holdings,omitempty" db:"known_holdings"`
}

// IsUnknown reports whether the record is the unknown sentinel
func (e *EntityRecord) IsUnknown() bool {
	return e == nil || e.Kind == EntityKindUnknown
}

// UnknownEntity returns the sentinel record for an unresolvable address
func UnknownEntity() *EntityRecord {
	return &EntityRecord{
		EntityID:   "unknown",
		EntityName: "unknown",
		Kind:       EntityKindUnknown,
	}
}
