// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/pkg/utils"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db         *sql.DB
	config     *StoreConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(config *StoreConfig) *SQLiteStore {
	return &SQLiteStore{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStore) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable foreign keys", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStore) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate() error {
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

// SaveSignals saves a batch of signals in one transaction. A signal whose
// natural key (type, block_height, entity_key) already exists is skipped,
// so replaying a block cannot double-write.
func (s *SQLiteStore) SaveSignals(ctx context.Context, signals []*models.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO signals
		(signal_id, signal_type, block_height, entity_key, confidence, metadata,
		 created_at, processed, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
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
func (s *SQLiteStore) GetSignal(ctx context.Context, id string) (*models.Signal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT signal_id, signal_type, block_height, confidence, metadata,
		       created_at, processed, processed_at
		FROM signals WHERE signal_id = ?
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
func (s *SQLiteStore) GetSignals(ctx context.Context, filter models.SignalFilter) ([]*models.Signal, error) {
	query := `
		SELECT signal_id, signal_type, block_height, confidence, metadata,
		       created_at, processed, processed_at
		FROM signals
	`
	where, args := buildSignalWhere(filter, "?")
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
func (s *SQLiteStore) CountSignals(ctx context.Context, filter models.SignalFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM signals"
	where, args := buildSignalWhere(filter, "?")
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
func (s *SQLiteStore) MarkSignalProcessed(ctx context.Context, id string, processedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE signals SET processed = TRUE, processed_at = ? WHERE signal_id = ?
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
func (s *SQLiteStore) SaveInsight(ctx context.Context, insight *models.Insight) error {
	evidenceJSON, err := json.Marshal(insight.Evidence)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal insight evidence", err.Error())
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO insights
		(insight_id, signal_id, category, headline, summary, confidence,
		 evidence, chart_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, insight.ID, insight.SignalID, string(insight.Category), insight.Headline,
		insight.Summary, insight.Confidence, string(evidenceJSON),
		insight.ChartURL, insight.CreatedAt)

	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save insight", err.Error())
	}
	return nil
}

// GetInsight retrieves an insight by id
func (s *SQLiteStore) GetInsight(ctx context.Context, id string) (*models.Insight, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT insight_id, signal_id, category, headline, summary, confidence,
		       evidence, chart_url, created_at
		FROM insights WHERE insight_id = ?
	`, id)
	return scanInsight(row, id)
}

// GetInsightBySignal retrieves the insight generated for one signal
func (s *SQLiteStore) GetInsightBySignal(ctx context.Context, signalID string) (*models.Insight, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT insight_id, signal_id, category, headline, summary, confidence,
		       evidence, chart_url, created_at
		FROM insights WHERE signal_id = ?
	`, signalID)
	return scanInsight(row, signalID)
}

// SetInsightChartURL attaches a chart URL produced by a downstream collaborator
func (s *SQLiteStore) SetInsightChartURL(ctx context.Context, id string, chartURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE insights SET chart_url = ? WHERE insight_id = ?
	`, chartURL, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set insight chart URL", err.Error())
	}
	return nil
}

// LoadEntities loads the entire entity catalog
func (s *SQLiteStore) LoadEntities(ctx context.Context) ([]*models.EntityRecord, error) {
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
		var addressesJSON string
		var tagsJSON, ticker sql.NullString
		var holdings sql.NullFloat64

		if err := rows.Scan(&rec.EntityID, &rec.EntityName, &rec.Kind,
			&addressesJSON, &tagsJSON, &ticker, &holdings); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan entity row", err.Error())
		}

		if err := json.Unmarshal([]byte(addressesJSON), &rec.Addresses); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal entity addresses", err.Error())
		}
		if tagsJSON.Valid && tagsJSON.String != "" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &rec.CoinbaseTags); err != nil {
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
func (s *SQLiteStore) SaveEntities(ctx context.Context, entities []*models.EntityRecord) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO entities
		(entity_id, entity_name, kind, addresses, coinbase_tags, ticker, known_holdings, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
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
func (s *SQLiteStore) GetStorageStats(ctx context.Context) (*StorageStats, error) {
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
func (s *SQLiteStore) Cleanup(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM insights WHERE signal_id IN
			(SELECT signal_id FROM signals WHERE processed = TRUE AND created_at < ?)
	`, cutoff); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean up insights", err.Error())
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM signals WHERE processed = TRUE AND created_at < ?
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

// rowScanner abstracts sql.Row and sql.Rows for shared scanning
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(row rowScanner) (*models.Signal, error) {
	var signal models.Signal
	var signalType, metadataJSON string
	var processedAt sql.NullTime

	if err := row.Scan(&signal.ID, &signalType, &signal.BlockHeight,
		&signal.Confidence, &metadataJSON, &signal.CreatedAt,
		&signal.Processed, &processedAt); err != nil {
		return nil, err
	}

	signal.Type = models.SignalType(signalType)
	if err := json.Unmarshal([]byte(metadataJSON), &signal.Metadata); err != nil {
		return nil, err
	}
	if processedAt.Valid {
		signal.ProcessedAt = &processedAt.Time
	}
	return &signal, nil
}

func scanInsight(row rowScanner, id string) (*models.Insight, error) {
	var insight models.Insight
	var category, evidenceJSON string
	var chartURL sql.NullString

	err := row.Scan(&insight.ID, &insight.SignalID, &category, &insight.Headline,
		&insight.Summary, &insight.Confidence, &evidenceJSON, &chartURL, &insight.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Insight not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan insight row", err.Error())
	}

	insight.Category = models.SignalType(category)
	if err := json.Unmarshal([]byte(evidenceJSON), &insight.Evidence); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal insight evidence", err.Error())
	}
	if chartURL.Valid {
		insight.ChartURL = &chartURL.String
	}
	return &insight, nil
}

// buildSignalWhere builds a WHERE clause for a signal filter. The
// placeholder argument is "?" for SQLite and ignored for Postgres, which
// numbers its own placeholders.
func buildSignalWhere(filter models.SignalFilter, placeholder string) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	// ph must be called immediately after appending the matching arg
	ph := func() string {
		if placeholder == "?" {
			return "?"
		}
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Types) > 0 {
		var marks []string
		for _, t := range filter.Types {
			args = append(args, string(t))
			marks = append(marks, ph())
		}
		clauses = append(clauses, fmt.Sprintf("signal_type IN (%s)", strings.Join(marks, ", ")))
	}
	if filter.Processed != nil {
		args = append(args, *filter.Processed)
		clauses = append(clauses, "processed = "+ph())
	}
	if filter.MinConfidence != nil {
		args = append(args, *filter.MinConfidence)
		clauses = append(clauses, "confidence >= "+ph())
	}
	if filter.FromHeight != nil {
		args = append(args, *filter.FromHeight)
		clauses = append(clauses, "block_height >= "+ph())
	}
	if filter.ToHeight != nil {
		args = append(args, *filter.ToHeight)
		clauses = append(clauses, "block_height <= "+ph())
	}
	if filter.CreatedBefore != nil {
		args = append(args, *filter.CreatedBefore)
		clauses = append(clauses, "created_at < "+ph())
	}

	return strings.Join(clauses, " AND "), args
}
