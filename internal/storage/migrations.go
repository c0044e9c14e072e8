package storage

import (
	"time"
)

// Migration represents a database migration
type Migration struct {
	ID          int       `db:"id"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create signals table",
			SQL: `
				CREATE TABLE IF NOT EXISTS signals (
					signal_id TEXT PRIMARY KEY,
					signal_type TEXT NOT NULL,
					block_height INTEGER NOT NULL,
					entity_key TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL,
					metadata TEXT NOT NULL, -- JSON
					created_at DATETIME NOT NULL,
					processed BOOLEAN DEFAULT FALSE,
					processed_at DATETIME
				);

				CREATE INDEX IF NOT EXISTS idx_signals_block_height ON signals(block_height);
				CREATE INDEX IF NOT EXISTS idx_signals_type ON signals(signal_type);
				CREATE INDEX IF NOT EXISTS idx_signals_processed ON signals(processed, confidence);
				CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_signals_natural_key
					ON signals(signal_type, block_height, entity_key);
			`,
		},
		{
			Version:     "002",
			Description: "Create insights table",
			SQL: `
				CREATE TABLE IF NOT EXISTS insights (
					insight_id TEXT PRIMARY KEY,
					signal_id TEXT NOT NULL UNIQUE,
					category TEXT NOT NULL,
					headline TEXT NOT NULL,
					summary TEXT NOT NULL,
					confidence REAL NOT NULL,
					evidence TEXT NOT NULL, -- JSON
					chart_url TEXT,
					created_at DATETIME NOT NULL,
					FOREIGN KEY (signal_id) REFERENCES signals (signal_id)
				);

				CREATE INDEX IF NOT EXISTS idx_insights_category ON insights(category);
				CREATE INDEX IF NOT EXISTS idx_insights_created_at ON insights(created_at);
			`,
		},
		{
			Version:     "003",
			Description: "Create entities table",
			SQL: `
				CREATE TABLE IF NOT EXISTS entities (
					entity_id TEXT PRIMARY KEY,
					entity_name TEXT NOT NULL,
					kind TEXT NOT NULL,
					addresses TEXT NOT NULL, -- JSON array
					coinbase_tags TEXT, -- JSON array
					ticker TEXT,
					known_holdings REAL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
				CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(entity_name);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create signals table",
			SQL: `
				CREATE TABLE IF NOT EXISTS signals (
					signal_id TEXT PRIMARY KEY,
					signal_type TEXT NOT NULL,
					block_height BIGINT NOT NULL,
					entity_key TEXT NOT NULL DEFAULT '',
					confidence DOUBLE PRECISION NOT NULL,
					metadata JSONB NOT NULL,
					created_at TIMESTAMPTZ NOT NULL,
					processed BOOLEAN DEFAULT FALSE,
					processed_at TIMESTAMPTZ
				);

				CREATE INDEX IF NOT EXISTS idx_signals_block_height ON signals(block_height);
				CREATE INDEX IF NOT EXISTS idx_signals_type ON signals(signal_type);
				CREATE INDEX IF NOT EXISTS idx_signals_processed ON signals(processed, confidence);
				CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_signals_natural_key
					ON signals(signal_type, block_height, entity_key);
			`,
		},
		{
			Version:     "002",
			Description: "Create insights table",
			SQL: `
				CREATE TABLE IF NOT EXISTS insights (
					insight_id TEXT PRIMARY KEY,
					signal_id TEXT NOT NULL UNIQUE REFERENCES signals (signal_id),
					category TEXT NOT NULL,
					headline TEXT NOT NULL,
					summary TEXT NOT NULL,
					confidence DOUBLE PRECISION NOT NULL,
					evidence JSONB NOT NULL,
					chart_url TEXT,
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_insights_category ON insights(category);
				CREATE INDEX IF NOT EXISTS idx_insights_created_at ON insights(created_at);
			`,
		},
		{
			Version:     "003",
			Description: "Create entities table",
			SQL: `
				CREATE TABLE IF NOT EXISTS entities (
					entity_id TEXT PRIMARY KEY,
					entity_name TEXT NOT NULL,
					kind TEXT NOT NULL,
					addresses JSONB NOT NULL,
					coinbase_tags JSONB,
					ticker TEXT,
					known_holdings DOUBLE PRECISION,
					updated_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
				CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(entity_name);
			`,
		},
	}
}
