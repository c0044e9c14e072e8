// File: internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db         *sql.DB
	config     *StoreConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgresStore creates a new PostgreSQL store instance
func NewPostgresStore(config *StoreConfig) *PostgresStore {
	return &PostgresStore{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes database connection
func (s *PostgresStore) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// SaveSignals saves a batch of signals in one transaction, skipping
// natural-key duplicates
func (s *PostgresStore) SaveSignals(ctx context.Context, signals []*models.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signals
		(signal_id, signal_type, block_height, entity_key, confidence, metadata,
		 created_at, processed, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (signal_type, block_height, entity_key) DO NOTHING
	`)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to prepare statement", err.Error())
	}
	defer stmt.Close()

	for _, signal := range signals {
		metadataJSON, err := json.Marshal(signal.Metadata)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal signal metadata", err.Error())
		}

		_, err = stmt.ExecContext(ctx,
			signal.ID, string(signal.Type), signal.BlockHeight, signal.EntityKey(),
			signal.Confidence, string(metadataJSON), signal.CreatedAt,
			signal.Processed, signal.ProcessedAt)

		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save signal in batch", err.Error())
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit transaction", err.Error())
	}

	return nil
}

// GetSignal retrieves a single signal by id
func (s *PostgresStore) GetSignal(ctx context.Context, id string) (*models.Signal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT signal_id, signal_type, block_height, confidence, metadata,
		       created_at, processed, processed_at
		FROM signals WHERE signal_id = $1
	`, id)

	signal, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Signal not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get signal", err.Error())
	}
	return signal, nil
}

// GetSignals retrieves signals matching the filter
func (s *PostgresStore) GetSignals(ctx context.Context, filter models.SignalFilter) ([]*models.Signal, error) {
	query := `
		SELECT signal_id, signal_type, block_height, confidence, metadata,
		       created_at, processed, processed_at
		FROM signals
	`
	where, args := buildSignalWhere(filter, "$")
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY block_height ASC, created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query signals", err.Error())
	}
	defer rows.Close()

	var signals []*models.Signal
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan signal row", err.Error())
		}
		signals = append(signals, signal)
	}
	return signals, rows.Err()
}

// CountSignals counts signals matching the filter
func (s *PostgresStore) CountSignals(ctx context.Context, filter models.SignalFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM signals"
	where, args := buildSignalWhere(filter, "$")
	if where != "" {
		query += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count signals", err.Error())
	}
	return count, nil
}

// MarkSignalProcessed flips a signal to processed with the given timestamp
func (s *PostgresStore) MarkSignalProcessed(ctx context.Context, id string, processedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE signals SET processed = TRUE, processed_at = $1 WHERE signal_id = $2
	`, processedAt, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to mark signal processed", err.Error())
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Signal not found", id)
	}
	return nil
}

// SaveInsight persists a generated insight
func (s *PostgresStore) SaveInsight(ctx context.Context, insight *models.Insight) error {
	evidenceJSON, err := json.Marshal(insight.Evidence)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal insight evidence", err.Error())
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO insights
		(insight_id, signal_id, category, headline, summary, confidence,
		 evidence, chart_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, insight.ID, insight.SignalID, string(insight.Category), insight.Headline,
		insight.Summary, insight.Confidence, string(evidenceJSON),
		insight.ChartURL, insight.CreatedAt)

	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save insight", err.Error())
	}
	return nil
}

// GetInsight retrieves an insight by id
func (s *PostgresStore) GetInsight(ctx context.Context, id string) (*models.Insight, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT insight_id, signal_id, category, headline, summary, confidence,
		       evidence, chart_url, created_at
		FROM insights WHERE insight_id = $1
	`, id)
	return scanInsight(row, id)
}

// GetInsightBySignal retrieves the insight generated for one signal
func (s *PostgresStore) GetInsightBySignal(ctx context.Context, signalID string) (*models.Insight, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT insight_id, signal_id, category, headline, summary, confidence,
		       evidence, chart_url, created_at
		FROM insights WHERE signal_id = $1
	`, signalID)
	return scanInsight(row, signalID)
}

// SetInsightChartURL attaches a chart URL produced by a downstream collaborator
func (s *PostgresStore) SetInsightChartURL(ctx context.Context, id string, chartURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE insights SET chart_url = $1 WHERE insight_id = $2
	`, chartURL, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set insight chart URL", err.Error())
	}
	return nil
}

// LoadEntities loads the entire entity catalog
func (s *PostgresStore) LoadEntities(ctx context.Context) ([]*models.EntityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, entity_name, kind, addresses, coinbase_tags, ticker, known_holdings
		FROM entities
	`)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to load entities", err.Error())
	}
	defer rows.Close()

	var entities []*models.EntityRecord
	for rows.Next() {
		var rec models.EntityRecord
		var addressesJSON []byte
		var tagsJSON []byte
		var ticker sql.NullString
		var holdings sql.NullFloat64

		if err := rows.Scan(&rec.EntityID, &rec.EntityName, &rec.Kind,
			&addressesJSON, &tagsJSON, &ticker, &holdings); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan entity row", err.Error())
		}

		if err := json.Unmarshal(addressesJSON, &rec.Addresses); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal entity addresses", err.Error())
		}
		if len(tagsJSON) > 0 {
			if err := json.Unmarshal(tagsJSON, &rec.CoinbaseTags); err != nil {
				return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal coinbase tags", err.Error())
			}
		}
		rec.Ticker = ticker.String
		rec.KnownHoldings = holdings.Float64

		entities = append(entities, &rec)
	}
	return entities, rows.Err()
}

// SaveEntities upserts entity catalog records
func (s *PostgresStore) SaveEntities(ctx context.Context, entities []*models.EntityRecord) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities
		(entity_id, entity_name, kind, addresses, coinbase_tags, ticker, known_holdings, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (entity_id) DO UPDATE SET
			entity_name = EXCLUDED.entity_name,
			kind = EXCLUDED.kind,
			addresses = EXCLUDED.addresses,
			coinbase_tags = EXCLUDED.coinbase_tags,
			ticker = EXCLUDED.ticker,
			known_holdings = EXCLUDED.known_holdings,
			updated_at = NOW()
	`)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to prepare statement", err.Error())
	}
	defer stmt.Close()

	for _, rec := range entities {
		addressesJSON, err := json.Marshal(rec.Addresses)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal entity addresses", err.Error())
		}
		tagsJSON, err := json.Marshal(rec.CoinbaseTags)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal coinbase tags", err.Error())
		}

		_, err = stmt.ExecContext(ctx, rec.EntityID, rec.EntityName, string(rec.Kind),
			string(addressesJSON), string(tagsJSON), rec.Ticker, rec.KnownHoldings)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save entity", err.Error())
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit transaction", err.Error())
	}
	return nil
}

// GetStorageStats returns storage statistics
func (s *PostgresStore) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM signals").Scan(&stats.TotalSignals); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count signals", err.Error())
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM signals WHERE processed = FALSE").Scan(&stats.UnprocessedSignals); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count unprocessed signals", err.Error())
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM insights").Scan(&stats.TotalInsights); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count insights", err.Error())
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities").Scan(&stats.TotalEntities); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count entities", err.Error())
	}

	var oldest, latest sql.NullTime
	var height sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		"SELECT MIN(created_at), MAX(created_at), MAX(block_height) FROM signals").
		Scan(&oldest, &latest, &height); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get signal bounds", err.Error())
	}
	if oldest.Valid {
		stats.OldestSignal = &oldest.Time
	}
	if latest.Valid {
		stats.LatestSignal = &latest.Time
	}
	if height.Valid {
		stats.LatestBlockHeight = uint64(height.Int64)
	}

	return stats, nil
}

// Cleanup removes processed signals and their insights older than the
// retention period
func (s *PostgresStore) Cleanup(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM insights WHERE signal_id IN
			(SELECT signal_id FROM signals WHERE processed = TRUE AND created_at < $1)
	`, cutoff); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean up insights", err.Error())
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM signals WHERE processed = TRUE AND created_at < $1
	`, cutoff)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean up signals", err.Error())
	}

	removed, _ := result.RowsAffected()
	s.logger.WithFields(logrus.Fields{
		"removed":        removed,
		"retention_days": retentionDays,
	}).Info("Storage cleanup completed")

	return nil
}
