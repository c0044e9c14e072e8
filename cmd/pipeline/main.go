// File: cmd/pipeline/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainsight-io/signal-engine/internal/alert"
	"github.com/chainsight-io/signal-engine/internal/backfill"
	"github.com/chainsight-io/signal-engine/internal/chain"
	"github.com/chainsight-io/signal-engine/internal/config"
	"github.com/chainsight-io/signal-engine/internal/entity"
	"github.com/chainsight-io/signal-engine/internal/insight"
	"github.com/chainsight-io/signal-engine/internal/metrics"
	"github.com/chainsight-io/signal-engine/internal/models"
	"github.com/chainsight-io/signal-engine/internal/pipeline"
	"github.com/chainsight-io/signal-engine/internal/server"
	"github.com/chainsight-io/signal-engine/internal/storage"
	"github.com/chainsight-io/signal-engine/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires the pipeline components together
type Application struct {
	configManager *config.Manager
	storage       storage.Store
	resolver      *entity.Resolver
	source        chain.Source
	history       chain.History
	orchestrator  *pipeline.Orchestrator
	watcher       *pipeline.Watcher
	poller        *insight.Poller
	dispatcher    *alert.Dispatcher
	metrics       *metrics.Manager
	server        *server.HTTPServer
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewApplication builds the application from a loaded configuration
func NewApplication(configPath string) (*Application, error) {
	configManager, err := config.NewManager(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := configManager.Current()

	if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := utils.GetLogger()
	logger.WithField("version", AppVersion).Info("Starting signal engine")

	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		configManager: configManager,
		ctx:           ctx,
		cancel:        cancel,
	}

	if err := app.initialize(cfg); err != nil {
		cancel()
		return nil, err
	}
	return app, nil
}

func (app *Application) initialize(cfg *config.Config) error {
	store, err := storage.NewStore(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	app.storage = store

	resolver, err := entity.NewResolver(app.ctx, store, cfg.Entity.ReloadInterval)
	if err != nil {
		return fmt.Errorf("failed to load entity catalog: %w", err)
	}
	app.resolver = resolver

	// The demo source fabricates a moving chain. A production deployment
	// substitutes an RPC-backed Source here.
	demo := chain.NewDemoSource(850000, cfg.Pipeline.BlockPollInterval)
	app.source = demo
	app.history = demo

	app.metrics = metrics.NewManager()
	app.dispatcher = alert.NewDispatcher(&cfg.Alerts)

	persister := pipeline.NewPersister(store, app.metrics, app.dispatcher)
	app.orchestrator = pipeline.NewOrchestrator(app.configManager, resolver, app.source, app.history, persister, app.metrics)
	app.watcher = pipeline.NewWatcher(app.configManager, app.source, app.orchestrator)

	provider, err := insight.NewProvider(&cfg.Insight)
	if err != nil {
		return fmt.Errorf("failed to create insight provider: %w", err)
	}
	generator := insight.NewGenerator(provider)
	app.poller = insight.NewPoller(app.configManager, store, generator, app.dispatcher, app.metrics)

	app.server = server.NewHTTPServer(&cfg.Server, AppVersion, store, app.watcher, app.poller, app.metrics)
	return nil
}

// Start starts the long-running components
func (app *Application) Start() error {
	logger := utils.GetLogger()

	app.configManager.Start(app.ctx)
	app.resolver.Start(app.ctx)
	app.metrics.StartSystemMetricsLoop(app.ctx, 30*time.Second)

	if err := app.watcher.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start block watcher: %w", err)
	}
	if err := app.poller.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start insight poller: %w", err)
	}
	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	logger.Info("Signal engine started")
	return nil
}

// Stop shuts everything down in reverse dependency order
func (app *Application) Stop() {
	logger := utils.GetLogger()
	logger.Info("Shutting down signal engine")

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			logger.WithError(err).Warn("HTTP server shutdown error")
		}
	}
	if app.poller != nil {
		app.poller.Stop()
	}
	if app.watcher != nil {
		app.watcher.Stop()
	}
	if app.resolver != nil {
		app.resolver.Stop()
	}
	if app.configManager != nil {
		app.configManager.Stop()
	}
	app.cancel()

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			logger.WithError(err).Warn("Storage close error")
		}
	}
	logger.Info("Shutdown complete")
}

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "signal-engine",
		Short:   "Blockchain signal extraction and insight pipeline",
		Version: AppVersion,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the live pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApplication(configPath)
			if err != nil {
				return err
			}
			if err := app.Start(); err != nil {
				app.Stop()
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan

			app.Stop()
			return nil
		},
	}

	var (
		backfillFrom  string
		backfillTo    string
		backfillTypes []string
	)
	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Replay historical blocks through the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := time.Parse(time.RFC3339, backfillFrom)
			if err != nil {
				return fmt.Errorf("invalid --from timestamp: %w", err)
			}
			to, err := time.Parse(time.RFC3339, backfillTo)
			if err != nil {
				return fmt.Errorf("invalid --to timestamp: %w", err)
			}
			if !to.After(from) {
				return fmt.Errorf("--to must be after --from")
			}

			types, err := parseSignalTypes(backfillTypes)
			if err != nil {
				return err
			}

			app, err := NewApplication(configPath)
			if err != nil {
				return err
			}
			defer app.Stop()

			runner := backfill.NewRunner(&app.configManager.Current().Backfill, app.source, app.orchestrator, app.metrics)

			ctx, stop := signal.NotifyContext(app.ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, err := runner.Run(ctx, backfill.Options{From: from, To: to, Types: types})
			if err != nil {
				return err
			}
			fmt.Printf("Backfill %s: %d blocks replayed, %d failed, %d signals persisted in %s\n",
				result.CorrelationID, result.BlocksReplayed, result.BlocksFailed,
				result.SignalsPersisted, result.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "window start, RFC 3339")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "window end, RFC 3339")
	backfillCmd.Flags().StringSliceVar(&backfillTypes, "types", nil, "signal types to replay (default all enabled)")
	backfillCmd.MarkFlagRequired("from")
	backfillCmd.MarkFlagRequired("to")

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo entity catalog into storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApplication(configPath)
			if err != nil {
				return err
			}
			defer app.Stop()

			entities := chain.DemoEntities()
			if err := app.storage.SaveEntities(app.ctx, entities); err != nil {
				return fmt.Errorf("failed to seed entities: %w", err)
			}
			fmt.Printf("Seeded %d entities\n", len(entities))
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, backfillCmd, seedCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Command failed: %v", err)
	}
}

// parseSignalTypes validates a type subset from the command line
func parseSignalTypes(raw []string) ([]models.SignalType, error) {
	types := make([]models.SignalType, 0, len(raw))
	for _, item := range raw {
		t := models.SignalType(strings.ToLower(strings.TrimSpace(item)))
		if !t.Valid() {
			return nil, fmt.Errorf("unknown signal type: %s", item)
		}
		types = append(types, t)
	}
	return types, nil
}
