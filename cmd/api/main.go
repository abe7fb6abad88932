package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/papergrade/papergrade-api/internal/config"
	"github.com/papergrade/papergrade-api/internal/database"
	"github.com/papergrade/papergrade-api/internal/handler"
	"github.com/papergrade/papergrade-api/internal/middleware"
	"github.com/papergrade/papergrade-api/internal/models"
	"github.com/papergrade/papergrade-api/internal/pipeline"
	"github.com/papergrade/papergrade-api/internal/progress"
	"github.com/papergrade/papergrade-api/internal/repository"
	"github.com/papergrade/papergrade-api/internal/router"
	"github.com/papergrade/papergrade-api/internal/service"
	"github.com/papergrade/papergrade-api/pkg/ai"
	"github.com/papergrade/papergrade-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Assignment{}, &models.Submission{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	store, err := storage.New(storage.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create object storage client: %v", err)
	}

	aiClient, err := ai.NewClient(ai.Config{
		APIKey:      cfg.OpenAIAPIKey,
		VisionModel: cfg.VisionModel,
		TextModel:   cfg.TextModel,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("failed to create ai client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	processor := pipeline.NewProcessor(assignmentRepo, submissionRepo, store, aiClient, aiClient, aiClient, pipeline.Options{
		MaxRetries:    cfg.PipelineMaxRetries,
		UploadTimeout: cfg.UploadTimeout,
		ModelTimeout:  cfg.ModelTimeout,
		SignedURLTTL:  cfg.SignedURLTTL,
	}, logger)

	broker := progress.NewBroker(redisClient, natsConn, "papergrade", logger)

	rootCtx, stopBroker := context.WithCancel(context.Background())
	defer stopBroker()
	broker.Start(rootCtx)

	assignmentService := service.NewAssignmentService(assignmentRepo, validate, logger)
	reviewService := service.NewReviewService(submissionRepo, store, cfg.SignedURLTTL, redisClient, cfg.StatsCacheTTL, logger)

	assignmentHandler := handler.NewAssignmentHandler(assignmentService, reviewService, validate, logger)
	submissionHandler := handler.NewSubmissionHandler(processor, reviewService, broker, validate, cfg.PipelineWorkerCount, logger)
	progressHandler := handler.NewProgressHandler(broker, 30*time.Second, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    64 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler: assignmentHandler,
		SubmissionHandler: submissionHandler,
		ProgressHandler:   progressHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
