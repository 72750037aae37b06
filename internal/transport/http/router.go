package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/lookout/backend/internal/config"
	"github.com/lookout/backend/internal/core/services"
	"github.com/lookout/backend/internal/infrastructure/db"
	"github.com/lookout/backend/internal/infrastructure/logger"
	"github.com/lookout/backend/internal/infrastructure/notify"
	"github.com/lookout/backend/internal/infrastructure/search"
	"github.com/lookout/backend/internal/transport/http/handlers"
	httpmw "github.com/lookout/backend/internal/transport/http/middleware"
	"gorm.io/gorm"
)

type RouterConfig struct {
	DB     *gorm.DB
	Logger *logger.Logger
	Config *config.Config
}

// Runtime holds the long-running engine pieces the server process has to
// start and stop around the HTTP listener.
type Runtime struct {
	Scheduler   *services.Scheduler
	Coordinator *services.Coordinator
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) *Runtime {
	// Repositories
	taskRepo := db.NewTaskRepository(cfg.DB, cfg.Logger)
	execRepo := db.NewExecutionRepository(cfg.DB, cfg.Logger)
	eventRepo := db.NewEventRepository(cfg.DB, cfg.Logger)
	settingRepo := db.NewSystemSettingRepository(cfg.DB, cfg.Logger)

	// Infrastructure adapters
	executor := search.NewHTTPExecutor(search.Config{
		BaseURL: cfg.Config.Executor.BaseURL,
		APIKey:  cfg.Config.Executor.APIKey,
		Timeout: cfg.Config.Executor.Timeout,
	}, cfg.Logger)

	dispatcher := notify.NewLogDispatcher(cfg.Logger)
	if cfg.Config.Notifier.WebhookURL != "" {
		dispatcher = notify.NewWebhookDispatcher(cfg.Config.Notifier.WebhookURL, cfg.Config.Notifier.Timeout, cfg.Logger)
	}

	// Services
	bus := services.NewEventBus()

	coordinator := services.NewCoordinator(services.CoordinatorDeps{
		TaskRepo:      taskRepo,
		ExecutionRepo: execRepo,
		EventRepo:     eventRepo,
		Executor:      executor,
		Dispatcher:    dispatcher,
		Bus:           bus,
		Logger:        cfg.Logger,
		Config: services.CoordinatorConfig{
			MaxAttempts:     cfg.Config.Engine.MaxAttempts,
			BackoffBase:     cfg.Config.Engine.BackoffBase,
			ExecutorTimeout: cfg.Config.Engine.ExecutorTimeout,
		},
	})

	scheduler := services.NewScheduler(taskRepo, coordinator, cfg.Logger, services.SchedulerConfig{
		TickInterval: cfg.Config.Engine.TickInterval,
		Workers:      cfg.Config.Engine.Workers,
		QueueSize:    cfg.Config.Engine.QueueSize,
	})

	taskService := services.NewTaskService(services.TaskServiceConfig{
		Repository:  taskRepo,
		Coordinator: coordinator,
		Logger:      cfg.Logger,
	})

	settingService := services.NewSystemSettingService(settingRepo, cfg.Logger, cfg.Config.Security.EncryptionKey)

	// Handlers
	taskHandler := handlers.NewTaskHandler(taskService, cfg.Logger)
	execHandler := handlers.NewExecutionHandler(execRepo, cfg.Logger)
	eventHandler := handlers.NewEventHandler(eventRepo)
	settingHandler := handlers.NewSettingHandler(settingService, cfg.Logger)
	streamHandler := handlers.NewStreamHandler(bus, cfg.Logger)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Websocket event stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/events", websocket.New(streamHandler.Handle))

	// API v1 routes
	api := app.Group("/api/v1")

	tasks := api.Group("/tasks", httpmw.AdminAuth(cfg.Config))
	tasks.Post("/", taskHandler.CreateTask)
	tasks.Get("/", taskHandler.GetTasks)
	tasks.Get("/:id", taskHandler.GetTask)
	tasks.Put("/:id", taskHandler.UpdateTask)
	tasks.Delete("/:id", taskHandler.DeleteTask)
	tasks.Post("/:id/pause", taskHandler.PauseTask)
	tasks.Post("/:id/resume", taskHandler.ResumeTask)
	tasks.Post("/:id/run", taskHandler.RunTask)
	tasks.Get("/:id/executions", execHandler.GetByTask)

	executions := api.Group("/executions", httpmw.AdminAuth(cfg.Config))
	executions.Get("/:id", execHandler.GetExecution)

	events := api.Group("/events", httpmw.AdminAuth(cfg.Config))
	events.Get("/", eventHandler.GetEvents)

	settings := api.Group("/settings", httpmw.AdminAuth(cfg.Config))
	settings.Get("/", settingHandler.GetSettings)
	settings.Put("/", settingHandler.UpdateSetting)

	return &Runtime{Scheduler: scheduler, Coordinator: coordinator}
}
