// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application. A loaded Config is
// immutable; hot reload builds a new one and swaps it (see Manager).
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Processors ProcessorsConfig `mapstructure:"processors"`
	Entity     EntityConfig     `mapstructure:"entity"`
	Insight    InsightConfig    `mapstructure:"insight"`
	Backfill   BackfillConfig   `mapstructure:"backfill"`
	Alerts     AlertConfig      `mapstructure:"alerts"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name           string        `mapstructure:"name"`
	Version        string        `mapstructure:"version"`
	Environment    string        `mapstructure:"environment"`
	Debug          bool          `mapstructure:"debug"`
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

// PipelineConfig contains the live block watcher configuration
type PipelineConfig struct {
	BlockPollInterval time.Duration `mapstructure:"block_poll_interval"`
	ProcessTimeout    time.Duration `mapstructure:"process_timeout"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
	RetentionDays    int           `mapstructure:"retention_days"`
}

// ProcessorConfig is the common per-processor configuration
type ProcessorConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	TimeWindow          time.Duration `mapstructure:"time_window"`
}

// MempoolProcessorConfig adds mempool-specific tunables
type MempoolProcessorConfig struct {
	ProcessorConfig `mapstructure:",squash"`
	SpikeMultiplier float64 `mapstructure:"spike_multiplier"` // relative change, 0.2 = +20%
}

// ExchangeProcessorConfig adds exchange-flow tunables
type ExchangeProcessorConfig struct {
	ProcessorConfig `mapstructure:",squash"`
	ZScoreThreshold float64 `mapstructure:"zscore_threshold"`
}

// MinerProcessorConfig adds miner tunables
type MinerProcessorConfig struct {
	ProcessorConfig `mapstructure:",squash"`
	MinBalanceDelta float64 `mapstructure:"min_balance_delta"` // BTC
}

// WhaleProcessorConfig adds whale tunables
type WhaleProcessorConfig struct {
	ProcessorConfig `mapstructure:",squash"`
	MinBalance float64 `mapstructure:"min_balance"` // BTC floor
}

// TreasuryProcessorConfig adds treasury tunables
type TreasuryProcessorConfig struct {
	ProcessorConfig `mapstructure:",squash"`
	ZScoreThreshold float64 `mapstructure:"zscore_threshold"`
}

// PredictiveProcessorConfig adds forecasting tunables
type PredictiveProcessorConfig struct {
	ProcessorConfig   `mapstructure:",squash"`
	MinConfidence     float64 `mapstructure:"min_confidence"` // stricter floor, independent of threshold
	SmoothingConstant float64 `mapstructure:"smoothing_constant"`
	ForecastHorizon   int     `mapstructure:"forecast_horizon"` // blocks
}

// ProcessorsConfig groups all processor configuration
type ProcessorsConfig struct {
	ConfidenceThreshold float64                   `mapstructure:"confidence_threshold"` // global floor
	Mempool             MempoolProcessorConfig    `mapstructure:"mempool"`
	Exchange            ExchangeProcessorConfig   `mapstructure:"exchange"`
	Miner               MinerProcessorConfig      `mapstructure:"miner"`
	Whale               WhaleProcessorConfig      `mapstructure:"whale"`
	Treasury            TreasuryProcessorConfig   `mapstructure:"treasury"`
	Predictive          PredictiveProcessorConfig `mapstructure:"predictive"`
}

// EntityConfig contains entity resolver configuration
type EntityConfig struct {
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

// InsightConfig contains the poller and text-generation configuration
type InsightConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ConfidenceFloor float64       `mapstructure:"confidence_floor"`
	BatchLimit      int           `mapstructure:"batch_limit"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	Provider        string        `mapstructure:"provider"` // anthropic, openai, template
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	BaseURL         string        `mapstructure:"base_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// BackfillConfig contains historical backfill configuration
type BackfillConfig struct {
	BlocksPerMinute float64 `mapstructure:"blocks_per_minute"`
	Burst           int     `mapstructure:"burst"`
}

// AlertConfig contains alerting configuration
type AlertConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ServerConfig contains admin HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./internal/config")
	}

	// Set environment variable prefix
	v.SetEnvPrefix("SIGNAL_ENGINE")
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}
	if apiKey := os.Getenv("TEXTGEN_API_KEY"); apiKey != "" {
		config.Insight.APIKey = apiKey
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "signal-engine")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.reload_interval", "5m")

	// Pipeline defaults
	v.SetDefault("pipeline.block_poll_interval", "5s")
	v.SetDefault("pipeline.process_timeout", "60s")

	// Storage defaults
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/signals.db")
	v.SetDefault("storage.max_connections", 25)
	v.SetDefault("storage.max_idle_time", "15m")
	v.SetDefault("storage.retention_days", 90)

	// Processor defaults
	v.SetDefault("processors.confidence_threshold", 0.6)

	v.SetDefault("processors.mempool.enabled", true)
	v.SetDefault("processors.mempool.confidence_threshold", 0.6)
	v.SetDefault("processors.mempool.time_window", "24h")
	v.SetDefault("processors.mempool.spike_multiplier", 0.2)

	v.SetDefault("processors.exchange.enabled", true)
	v.SetDefault("processors.exchange.confidence_threshold", 0.6)
	v.SetDefault("processors.exchange.time_window", "168h")
	v.SetDefault("processors.exchange.zscore_threshold", 2.0)

	v.SetDefault("processors.miner.enabled", true)
	v.SetDefault("processors.miner.confidence_threshold", 0.6)
	v.SetDefault("processors.miner.time_window", "48h")
	v.SetDefault("processors.miner.min_balance_delta", 10.0)

	v.SetDefault("processors.whale.enabled", true)
	v.SetDefault("processors.whale.confidence_threshold", 0.6)
	v.SetDefault("processors.whale.time_window", "72h")
	v.SetDefault("processors.whale.min_balance", 1000.0)

	v.SetDefault("processors.treasury.enabled", true)
	v.SetDefault("processors.treasury.confidence_threshold", 0.6)
	v.SetDefault("processors.treasury.time_window", "168h")
	v.SetDefault("processors.treasury.zscore_threshold", 2.0)

	v.SetDefault("processors.predictive.enabled", true)
	v.SetDefault("processors.predictive.confidence_threshold", 0.6)
	v.SetDefault("processors.predictive.time_window", "24h")
	v.SetDefault("processors.predictive.min_confidence", 0.5)
	v.SetDefault("processors.predictive.smoothing_constant", 0.3)
	v.SetDefault("processors.predictive.forecast_horizon", 1)

	// Entity defaults
	v.SetDefault("entity.reload_interval", "5m")

	// Insight defaults
	v.SetDefault("insight.poll_interval", "10s")
	v.SetDefault("insight.confidence_floor", 0.7)
	v.SetDefault("insight.batch_limit", 50)
	v.SetDefault("insight.stale_after", "1h")
	v.SetDefault("insight.provider", "template")
	v.SetDefault("insight.request_timeout", "30s")

	// Backfill defaults
	v.SetDefault("backfill.blocks_per_minute", 100.0)
	v.SetDefault("backfill.burst", 5)

	// Alert defaults
	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.timeout", "10s")

	// Server defaults
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Processors.ConfidenceThreshold < 0 || c.Processors.ConfidenceThreshold > 1 {
		return fmt.Errorf("global confidence threshold must be in [0, 1]")
	}
	for name, pc := range map[string]ProcessorConfig{
		"mempool":    c.Processors.Mempool.ProcessorConfig,
		"exchange":   c.Processors.Exchange.ProcessorConfig,
		"miner":      c.Processors.Miner.ProcessorConfig,
		"whale":      c.Processors.Whale.ProcessorConfig,
		"treasury":   c.Processors.Treasury.ProcessorConfig,
		"predictive": c.Processors.Predictive.ProcessorConfig,
	} {
		if pc.ConfidenceThreshold < 0 || pc.ConfidenceThreshold > 1 {
			return fmt.Errorf("%s confidence threshold must be in [0, 1]", name)
		}
		if pc.Enabled && pc.TimeWindow <= 0 {
			return fmt.Errorf("%s time window must be positive", name)
		}
	}
	if c.Pipeline.BlockPollInterval <= 0 {
		return fmt.Errorf("pipeline block poll interval must be positive")
	}
	if c.Insight.PollInterval <= 0 {
		return fmt.Errorf("insight poll interval must be positive")
	}
	if c.Insight.ConfidenceFloor < 0 || c.Insight.ConfidenceFloor > 1 {
		return fmt.Errorf("insight confidence floor must be in [0, 1]")
	}
	if c.Backfill.BlocksPerMinute <= 0 {
		return fmt.Errorf("backfill blocks per minute must be positive")
	}
	return nil
}

// EffectiveThreshold returns the stricter of the global and per-type
// confidence floors for a processor
func (p *ProcessorsConfig) EffectiveThreshold(perType float64) float64 {
	if perType > p.ConfidenceThreshold {
		return perType
	}
	return p.ConfidenceThreshold
}
