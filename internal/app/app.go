package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/handlers"
	"github.com/ternarybob/playforge/internal/interfaces"
	"github.com/ternarybob/playforge/internal/queue"
	"github.com/ternarybob/playforge/internal/services/artifacts"
	"github.com/ternarybob/playforge/internal/services/broadcast"
	"github.com/ternarybob/playforge/internal/services/ingestion"
	"github.com/ternarybob/playforge/internal/services/intake"
	"github.com/ternarybob/playforge/internal/services/llm"
	"github.com/ternarybob/playforge/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Storage
	DB              *badger.BadgerDB
	ArtifactStorage interfaces.ArtifactStorage

	// Pipeline
	Generator   interfaces.Generator
	Artifacts   *artifacts.Service
	Retention   *artifacts.Retention
	Broadcaster *broadcast.Broadcaster
	Scheduler   *queue.Scheduler
	Intake      *intake.Service
	Ingestion   *ingestion.Manager

	// HTTP handlers
	WSHandler    *handlers.WebSocketHandler
	APIHandler   *handlers.APIHandler
	GamesHandler *handlers.GamesHandler
}

// New initializes the application with all dependencies and starts the
// scheduler and the ingestion feeds
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	if err := app.initDatabase(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	app.Scheduler.Run(app.ctx)
	app.Ingestion.Start(app.ctx)

	status := app.Ingestion.Status()
	logger.Info().
		Str("provider", string(cfg.Generation.Provider)).
		Str("model", app.Generator.Model()).
		Bool("chat_feed", status.Chat).
		Bool("market_feed", status.Market).
		Bool("trade_feed", status.Trades).
		Bool("test_input", cfg.Ingestion.TestInput).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.DB = db
	a.ArtifactStorage = badger.NewArtifactStorage(db, a.Logger)

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices wires the pipeline in dependency order. The hub is created
// here because the broadcaster emits through it.
func (a *App) initServices() error {
	var err error

	a.Artifacts = artifacts.NewService(&a.Config.Artifacts, a.ArtifactStorage, a.Logger)
	a.Retention = artifacts.NewRetention(a.Artifacts, a.Logger)
	if err := a.Retention.Start(a.Config.Artifacts.RetentionSchedule); err != nil {
		return fmt.Errorf("failed to start artifact retention: %w", err)
	}

	a.Generator, err = llm.NewGenerator(a.ctx, a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	a.WSHandler = handlers.NewWebSocketHandler(a.Logger, &a.Config.WebSocket)
	a.Broadcaster = broadcast.NewBroadcaster(a.WSHandler, broadcast.SettingsFromConfig(a.Config), a.Logger)

	a.Scheduler = queue.NewScheduler(
		a.Generator,
		a.Artifacts,
		a.Broadcaster,
		queue.NewTickerClock(a.Config.TickDuration()),
		queue.OptionsFromConfig(&a.Config.Queue),
		a.Logger,
	)
	a.Artifacts.SetHistoryLookup(a.Scheduler)

	a.Intake = intake.NewService(a.Scheduler, a.Broadcaster, a.Logger)
	a.Ingestion = ingestion.NewManager(&a.Config.Ingestion, a.Intake, a.Broadcaster, a.Logger)

	return nil
}

func (a *App) initHandlers() {
	a.WSHandler.Bind(a.Scheduler, a.Broadcaster, a.Intake)
	a.APIHandler = handlers.NewAPIHandler(a.Scheduler, a.WSHandler, a.Logger)
	a.GamesHandler = handlers.NewGamesHandler(a.Artifacts, a.Logger)
}

// Close closes all application resources
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.Logger.Info().Msg("Cancelling background goroutines")
		a.cancelCtx()
	}

	// Feeds first so no new submissions arrive while the scheduler drains
	if a.Ingestion != nil {
		a.Ingestion.Stop()
	}

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.Retention != nil {
		a.Retention.Stop()
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.Generator != nil {
		if err := a.Generator.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close generator")
		} else {
			a.Logger.Info().Msg("Generator closed")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
