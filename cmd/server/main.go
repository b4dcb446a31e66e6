package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"
	config "github.com/rovelin/postpilot/configs"
	"github.com/rovelin/postpilot/internal/api/handlers"
	"github.com/rovelin/postpilot/internal/api/middleware"
	job "github.com/rovelin/postpilot/internal/jobs"
	"github.com/rovelin/postpilot/internal/platform"
	"github.com/rovelin/postpilot/internal/queue"
	"github.com/rovelin/postpilot/internal/repository"
	"github.com/rovelin/postpilot/internal/scheduler"
	"github.com/rovelin/postpilot/internal/service"
	"github.com/rovelin/postpilot/internal/vault"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	asynqClient := asynq.NewClient(redisConn)
	defer asynqClient.Close()
	inspector := asynq.NewInspector(redisConn)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	credentialVault := vault.New(cfg.EncryptionKey, cfg.EncryptionKeyID)
	codec := vault.NewCodec(credentialVault)

	postRepo := repository.NewPostRepository(db)
	accountRepo := repository.NewAccountRepository(db, codec)
	publishedRepo := repository.NewPublishedPostRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	platformClient := platform.NewClient(cfg.Platform.BaseURL)

	queueClient := queue.NewClient(asynqClient, inspector)
	mediaService := service.NewMediaService(*cfg)
	platformService := service.NewPlatformService(*cfg, accountRepo)
	postService := service.NewPostService(postRepo, accountRepo, auditRepo, mediaService, queueClient)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	poller := scheduler.New(postRepo, auditRepo, queueClient, cfg.SchedulerBatchSize)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(postService)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/cancel", post.CancelPost)
	api.Post("/posts/remove", post.RemovePost)
	api.Post("/posts/remove_bulk", post.RemovePosts)

	sched := handlers.NewSchedulerHandler(poller)
	api.Get("/scheduler/status", sched.Status)

	// cron jobs
	tokenHealthJob := job.NewTokenHealthJob(accountRepo, auditRepo, platformClient, platformService)

	c := cron.New()
	c.AddFunc("@every 1m0s", poller.PollAndDispatch)
	c.AddFunc("@hourly", poller.CleanupOld)
	c.AddFunc("@daily", poller.DailyReport)
	c.AddFunc("@hourly", tokenHealthJob.SweepExpiring)
	c.AddFunc("@daily", tokenHealthJob.ValidateAll)
	c.Start()

	// run a poll immediately so work due during downtime goes out now
	go poller.PollAndDispatch()

	// queue workers
	queueW := queue.NewQueue(postRepo, accountRepo, publishedRepo, auditRepo, platformClient, mediaService)

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency:    10,
			RetryDelayFunc: queue.RetryDelay,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, queueW.HandlePublishTask)
		mux.HandleFunc(queue.TaskTypeDeletePost, queueW.HandleDeleteTask)
		mux.HandleFunc(queue.TaskTypeBulkDelete, queueW.HandleBulkDeleteTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
