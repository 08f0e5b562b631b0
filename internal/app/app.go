// -----------------------------------------------------------------------
// App - Composition root wiring storage, queue, processors and handlers
// -----------------------------------------------------------------------

package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/agents"
	"github.com/ternarybob/opero/internal/common"
	"github.com/ternarybob/opero/internal/events"
	"github.com/ternarybob/opero/internal/handlers"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/llm"
	"github.com/ternarybob/opero/internal/logs"
	"github.com/ternarybob/opero/internal/models"
	"github.com/ternarybob/opero/internal/processors"
	"github.com/ternarybob/opero/internal/queue"
	"github.com/ternarybob/opero/internal/reports"
	"github.com/ternarybob/opero/internal/scheduler"
	"github.com/ternarybob/opero/internal/storage"
	"github.com/ternarybob/opero/internal/tools"
)

// App holds the wired application: storage, event bus, job queue with its
// processors, and the HTTP handlers the server mounts.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService
	LogConsumer    *logs.Consumer
	Queue          interfaces.JobQueue
	Tools          interfaces.ToolRegistry
	LLMFactory     *llm.ProviderFactory
	Scheduler      *scheduler.Service

	BatchHandler  *handlers.BatchHandler
	JobHandler    *handlers.JobHandler
	StatusHandler *handlers.StatusHandler
	WSHandler     *handlers.WebSocketHandler
}

// New creates a fully wired application. The queue and scheduler are not
// started; call Start once the caller is ready to take work.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Event bus and WebSocket handler come up before the log consumer so
	// log_event republishing has somewhere to go
	app.EventService = events.NewService(app.Logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, app.Logger, &cfg.WebSocket)

	logConsumer := logs.NewConsumer(
		app.StorageManager.JobLogStorage(),
		app.EventService,
		app.Logger,
		cfg.Logging.MinEventLevel,
	)
	if err := logConsumer.Start(); err != nil {
		return nil, fmt.Errorf("failed to start log consumer: %w", err)
	}
	app.LogConsumer = logConsumer

	// Route correlation-scoped logs through the consumer. Workers derive
	// per-job loggers with the job ID as correlation ID, so everything a
	// job logs lands in its persistent history.
	app.Logger.SetChannel("context", logConsumer.GetChannel())

	if err := app.initQueue(); err != nil {
		return nil, err
	}

	app.initHandlers()

	app.Scheduler = scheduler.NewService(app.StorageManager, cfg.Scheduler.GetRetention(), app.Logger)

	return app, nil
}

// initDatabase opens the configured job store backend
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.StorageManager = storageManager

	a.Logger.Info().
		Str("type", a.Config.Storage.Type).
		Msg("Storage initialized")

	return nil
}

// initQueue builds the worker pool and registers the batch processors
func (a *App) initQueue() error {
	commandRunner := tools.NewShellRunner(a.Config.Batch.GetCommandTimeout(), a.Logger)

	registry, err := tools.NewLocalRegistry(a.Config.Batch.ToolRoot, commandRunner, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create tool registry: %w", err)
	}
	a.Tools = registry

	a.LLMFactory = llm.NewProviderFactory(&a.Config.LLM, &a.Config.Claude, &a.Config.Gemini, a.Logger)

	agentRunner := a.buildAgentRunner(registry, commandRunner)

	q := queue.NewService(a.StorageManager.JobStorage(), a.EventService, a.Logger, a.Config)
	q.RegisterProcessor(models.JobTypeAgentTasks, processors.NewAgentTasksProcessor(agentRunner, a.Logger).Process)
	q.RegisterProcessor(models.JobTypeValidation, processors.NewValidationProcessor(commandRunner, a.Logger).Process)
	q.RegisterProcessor(models.JobTypeTests, processors.NewTestsProcessor(commandRunner, a.Logger).Process)
	q.RegisterProcessor(models.JobTypeMCP, processors.NewMCPProcessor(registry, a.Logger).Process)
	a.Queue = q

	return nil
}

// buildAgentRunner selects the LLM-backed runner when credentials are
// configured, falling back to the stub so agent-task jobs still complete
// with per-task skip results on a bare install.
func (a *App) buildAgentRunner(registry interfaces.ToolRegistry, commandRunner interfaces.CommandRunner) interfaces.AgentRunner {
	if !a.LLMFactory.Available() {
		a.Logger.Warn().Msg("No LLM credentials configured, agent tasks use the stub runner")
		return agents.NewStubRunner(a.Logger)
	}

	defaults := agents.DefaultRunOptions()
	switch a.Config.LLM.DefaultProvider {
	case common.LLMProviderGemini:
		defaults.LLMTimeout = a.Config.Gemini.GetTimeout()
	default:
		defaults.LLMTimeout = a.Config.Claude.GetTimeout()
	}

	return agents.NewRunner(a.LLMFactory, registry, commandRunner, defaults, a.Logger)
}

// initHandlers creates the HTTP handlers the server mounts
func (a *App) initHandlers() {
	reportService := reports.NewService(a.Logger)

	a.BatchHandler = handlers.NewBatchHandler(a.Queue, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.Queue, a.StorageManager.JobLogStorage(), reportService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Config, a.Logger)
}

// Start launches the worker pool and, when enabled, the purge scheduler
func (a *App) Start() error {
	if err := a.Queue.Start(); err != nil {
		return fmt.Errorf("failed to start job queue: %w", err)
	}

	if a.Config.Scheduler.Enabled {
		if err := a.Scheduler.Start(a.Config.Scheduler.PurgeSchedule); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	return nil
}

// Close shuts the application down in reverse dependency order
func (a *App) Close() error {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}

	if a.Queue != nil {
		if err := a.Queue.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop job queue")
		}
	}

	if a.LogConsumer != nil {
		if err := a.LogConsumer.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop log consumer")
		}
	}

	if a.LLMFactory != nil {
		if err := a.LLMFactory.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM provider factory")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
			return err
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
