// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/chainsight-io/signal-engine/internal/models"
)

// Store defines the interface to the analytical store
type Store interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Signal operations
	SaveSignals(ctx context.Context, signals []*models.Signal) error
	GetSignal(ctx context.Context, id string) (*models.Signal, error)
	GetSignals(ctx context.Context, filter models.SignalFilter) ([]*models.Signal, error)
	CountSignals(ctx context.Context, filter models.SignalFilter) (int64, error)
	MarkSignalProcessed(ctx context.Context, id string, processedAt time.Time) error

	// Insight operations
	SaveInsight(ctx context.Context, insight *models.Insight) error
	GetInsight(ctx context.Context, id string) (*models.Insight, error)
	GetInsightBySignal(ctx context.Context, signalID string) (*models.Insight, error)
	SetInsightChartURL(ctx context.Context, id string, chartURL string) error

	// Entity catalog operations
	LoadEntities(ctx context.Context) ([]*models.EntityRecord, error)
	SaveEntities(ctx context.Context, entities []*models.EntityRecord) error

	// Statistics and maintenance
	GetStorageStats(ctx context.Context) (*StorageStats, error)
	Cleanup(ctx context.Context, retentionDays int) error
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalSignals       int64      `json:"total_signals"`
	UnprocessedSignals int64      `json:"unprocessed_signals"`
	TotalInsights      int64      `json:"total_insights"`
	TotalEntities      int64      `json:"total_entities"`
	OldestSignal       *time.Time `json:"oldest_signal,omitempty"`
	LatestSignal       *time.Time `json:"latest_signal,omitempty"`
	LatestBlockHeight  uint64     `json:"latest_block_height"`
}

// StoreConfig holds storage configuration
type StoreConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
	RetentionDays    int           `json:"retention_days"`
}
