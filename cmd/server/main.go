package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/ethan-huo/automation-chatbot/internal/client"
	"github.com/ethan-huo/automation-chatbot/internal/config"
	"github.com/ethan-huo/automation-chatbot/internal/handler"
	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/middleware"
	"github.com/ethan-huo/automation-chatbot/internal/model"
	"github.com/ethan-huo/automation-chatbot/internal/service"
	"github.com/ethan-huo/automation-chatbot/internal/store"
	ws "github.com/ethan-huo/automation-chatbot/internal/websocket"
	"github.com/ethan-huo/automation-chatbot/internal/worker"
	"github.com/ethan-huo/automation-chatbot/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		stdlog.Fatalf("Failed to init logger: %v", err)
	}
	defer log.Sync()

	// Background work outlives requests; it stops when this is cancelled.
	baseCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()

	db, err := store.Open(cfg.Database, log)
	if err != nil {
		log.Fatal("failed to open database", "driver", cfg.Database.Driver, "error", err)
	}
	repo := store.NewTaskRepo(db, log)

	storage, closeStorage := openStorage(baseCtx, cfg, log)
	defer closeStorage()

	registry := client.NewRegistry(cfg, log)

	hub := ws.NewHub(log)
	go hub.Run()
	defer hub.Stop()

	assetWorker := worker.NewAssetWorker(repo, registry, storage, hub, worker.OptionsFromConfig(cfg.Generation), log)
	reaper := worker.NewReaper(repo, hub, cfg.Generation.StaleAfter, log)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	redisUp := redisClient.Ping(baseCtx).Err() == nil
	if !redisUp {
		log.Warn("redis not available, rate limiting disabled", "addr", cfg.Redis.Addr)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	var dispatcher service.Dispatcher
	var shutdownWorkers func()
	switch cfg.Dispatch.Mode {
	case "inline":
		inline := worker.NewInlineDispatcher(baseCtx, assetWorker, log)
		if _, err := inline.Resume(baseCtx); err != nil {
			log.Error("failed to resume unfinished tasks", "error", err)
		}
		go reaper.Run(baseCtx, cfg.Generation.ReapInterval)
		dispatcher = inline
		shutdownWorkers = func() {
			stopWork()
			inline.Wait()
		}
	default:
		asynqClient := asynq.NewClient(redisOpt)
		dispatcher = worker.NewAsynqDispatcher(asynqClient, cfg.Dispatch.Queue, log)
		srv, scheduler := startWorkerServer(cfg, redisOpt, assetWorker, reaper, log)
		shutdownWorkers = func() {
			scheduler.Shutdown()
			srv.Shutdown()
			_ = asynqClient.Close()
		}
	}

	svc := service.NewAssetService(repo, dispatcher, service.Defaults{
		VoiceID: cfg.Generation.DefaultVoiceID,
		BotType: model.BotType(cfg.Generation.DefaultBotType),
	}, log)

	validate := validator.New()
	assetHandler := handler.NewAssetHandler(svc, validate, log)
	streamHandler := handler.NewStreamHandler(hub, svc, cfg.Generation.SnapshotPollInterval, log)
	authHandler := handler.NewAuthHandler(cfg.JWT.Secret)

	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		log.Info("gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}

	var limiterRedis *redis.Client
	if redisUp {
		limiterRedis = redisClient
	}
	rateLimiter := middleware.NewRateLimiter(limiterRedis, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    4 * 1024 * 1024,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{Format: logFormat}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/health", handler.Health(handler.HealthInfo{
		Providers:    registry.Names(),
		Storage:      cfg.Storage.Driver,
		Database:     cfg.Database.Driver,
		DispatchMode: cfg.Dispatch.Mode,
	}))

	// ForwardAuth verification endpoint (internal, called by the gateway)
	app.Get("/auth/verify", authHandler.Verify)

	api := app.Group("/api", apiAuthMiddleware)

	stories := api.Group("/stories")
	stories.Post("/:storyId/assets", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), assetHandler.GenerateStory)
	stories.Get("/:storyId/assets", assetHandler.StorySnapshot)
	stories.Post("/:storyId/composition", rateLimiter.AnimationLimit(cfg.RateLimit.AnimationPerHour), assetHandler.ComposeStory)

	assets := api.Group("/assets")
	assets.Post("/audio", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), assetHandler.CreateAudio)
	assets.Post("/image", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), assetHandler.CreateImage)
	assets.Post("/animation", rateLimiter.AnimationLimit(cfg.RateLimit.AnimationPerHour), assetHandler.CreateAnimation)
	assets.Get("/:taskId", assetHandler.GetTask)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/stories/:storyId", websocket.New(streamHandler.Story))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info("server starting", "addr", addr, "dispatch", cfg.Dispatch.Mode, "providers", registry.Names())
	if err := app.Listen(addr); err != nil {
		log.Error("server error", "error", err)
	}

	shutdownWorkers()
	log.Info("server stopped")
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (client.StorageClient, func()) {
	switch cfg.Storage.Driver {
	case "r2":
		r2, err := client.NewR2Client(cfg.R2)
		if err != nil {
			log.Fatal("failed to init R2 storage", "error", err)
		}
		return r2, func() {}
	case "gcs":
		gcs, err := client.NewGCSClient(ctx, cfg.GCS, log)
		if err != nil {
			log.Fatal("failed to init GCS storage", "error", err)
		}
		return gcs, func() {
			if err := gcs.Close(); err != nil {
				log.Warn("failed to close GCS client", "error", err)
			}
		}
	default:
		log.Warn("using in-memory object storage, results are lost on restart")
		return client.NewMemoryStorage(""), func() {}
	}
}

func startWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, assetWorker *worker.AssetWorker, reaper *worker.Reaper, log *logger.Logger) (*asynq.Server, *asynq.Scheduler) {
	asynqLogLevel := asynq.InfoLevel
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug":
		asynqLogLevel = asynq.DebugLevel
	case "warn":
		asynqLogLevel = asynq.WarnLevel
	case "error":
		asynqLogLevel = asynq.ErrorLevel
	}
	asynqLog := logger.AsynqLogger{L: log.With("component", "asynq")}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Dispatch.Concurrency,
		Queues:      map[string]int{cfg.Dispatch.Queue: 1},
		Logger:      asynqLog,
		LogLevel:    asynqLogLevel,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeProcessAsset, assetWorker.ProcessTask)
	mux.HandleFunc(worker.TaskTypeReapStale, reaper.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Fatal("failed to start asynq worker", "error", err)
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger:   asynqLog,
		LogLevel: asynqLogLevel,
	})
	cronspec := fmt.Sprintf("@every %s", cfg.Generation.ReapInterval)
	if _, err := scheduler.Register(cronspec, worker.NewReapTask(), asynq.Queue(cfg.Dispatch.Queue), asynq.MaxRetry(0)); err != nil {
		log.Error("failed to schedule reaper", "error", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Error("failed to start asynq scheduler", "error", err)
	}

	return srv, scheduler
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
