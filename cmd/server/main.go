package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/podcast-studio/configs"
	"github.com/maheshrc27/podcast-studio/internal/api/handlers"
	"github.com/maheshrc27/podcast-studio/internal/api/middleware"
	job "github.com/maheshrc27/podcast-studio/internal/jobs"
	"github.com/maheshrc27/podcast-studio/internal/models"
	"github.com/maheshrc27/podcast-studio/internal/queue"
	"github.com/maheshrc27/podcast-studio/internal/repository"
	"github.com/maheshrc27/podcast-studio/internal/service"
	"github.com/maheshrc27/podcast-studio/pkg/slug"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)})))

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := sqlx.Connect("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // 1 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
			}
			slog.Error("request failed", "path", c.Path(), "status", code, "error", err)
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Api-Key",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	showRepo := repository.NewShowRepository(db)
	episodeRepo := repository.NewEpisodeRepository(db)
	taskRepo := repository.NewExternalTaskRepository(db)

	var storage service.ObjectStorage
	if cfg.R2.Enabled() {
		r2Service, err := service.NewR2Service(context.Background(), cfg.R2)
		if err != nil {
			log.Fatalf("Failed to configure object storage: %v", err)
		}
		storage = r2Service
	}

	policy := service.NewRetryPolicy(cfg.Retry)
	computeClient := service.NewComputeClient(cfg.Compute)
	dispatchService := service.NewDispatchService(*cfg, db, episodeRepo, taskRepo, computeClient, storage, policy)
	callbackService := service.NewCallbackService(*cfg, db, episodeRepo, taskRepo, storage, queue.NewNotifier(client), policy)
	catalogService := service.NewCatalogService(showRepo, episodeRepo, slug.NewAllocator(db))

	callback := handlers.NewCallbackHandler(callbackService)
	app.All(cfg.GenerationCallbackPath, callback.Handle(models.GenerationLane))
	app.All(cfg.UploadCallbackPath, callback.Handle(models.UploadLane))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	catalog := handlers.NewCatalogHandler(catalogService)
	api.Post("/shows", catalog.CreateShow)
	api.Post("/shows/:id/episodes", catalog.CreateEpisode)
	api.Put("/episodes/:id/title", catalog.RenameEpisode)
	api.Get("/episodes/:id", catalog.GetEpisode)
	api.Post("/episodes/:id/requeue", catalog.RequeueEpisode)

	api.Post("/tokens", handlers.NewTokenHandler(*cfg).Issue)

	// cron jobs
	dispatchJob := job.NewDispatchJob(client)
	staleReaperJob := job.NewStaleReaperJob(dispatchService, cfg.Retry.StaleAfter)

	c := cron.New()
	if err := c.AddFunc(cfg.DispatchSchedule, dispatchJob.Run); err != nil {
		log.Fatalf("Invalid DISPATCH_SCHEDULE: %v", err)
	}
	if err := c.AddFunc(cfg.StaleReaperSchedule, staleReaperJob.Run); err != nil {
		log.Fatalf("Invalid STALE_REAPER_SCHEDULE: %v", err)
	}
	if cfg.Youtube.Enabled() {
		youtubeService, err := service.NewYoutubeService(context.Background(), cfg.Youtube, episodeRepo)
		if err != nil {
			log.Fatalf("Failed to configure YouTube client: %v", err)
		}
		publicationSyncJob := job.NewPublicationSyncJob(episodeRepo, youtubeService)
		if err := c.AddFunc(cfg.PublicationSyncSchedule, publicationSyncJob.SyncStatuses); err != nil {
			log.Fatalf("Invalid PUBLICATION_SYNC_SCHEDULE: %v", err)
		}
	}
	c.Start()

	//queue
	queueW := queue.NewQueue(dispatchService)

	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{queue.DispatchQueue: 1},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeDispatch, queueW.HandleDispatchTask)

	log.Println("Starting the Asynq server...")
	if err := server.Start(mux); err != nil {
		log.Fatalf("Could not start Asynq server: %v", err)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on port %s", cfg.Port)

	gracefulShutdown(app, c, server, db)
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func closeDB(db *sqlx.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, c *cron.Cron, server *asynq.Server, db *sqlx.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	c.Stop()
	server.Shutdown()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
