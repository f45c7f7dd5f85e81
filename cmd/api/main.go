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

	"github.com/kelasku-dev/kelasku-go-api/internal/config"
	"github.com/kelasku-dev/kelasku-go-api/internal/database"
	"github.com/kelasku-dev/kelasku-go-api/internal/handler"
	"github.com/kelasku-dev/kelasku-go-api/internal/middleware"
	"github.com/kelasku-dev/kelasku-go-api/internal/models"
	"github.com/kelasku-dev/kelasku-go-api/internal/repository"
	"github.com/kelasku-dev/kelasku-go-api/internal/router"
	"github.com/kelasku-dev/kelasku-go-api/internal/service"
	"github.com/kelasku-dev/kelasku-go-api/pkg/ai"
	"github.com/kelasku-dev/kelasku-go-api/pkg/githubapi"
	"github.com/kelasku-dev/kelasku-go-api/pkg/retryutil"
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

	if err := db.AutoMigrate(
		&models.Student{},
		&models.Course{},
		&models.Assignment{},
		&models.Submission{},
		&models.FeedbackItem{},
		&models.WebhookDelivery{},
	); err != nil {
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
		defer natsConn.Drain()
	}

	reviewer, err := ai.NewOpenAIReviewer(ai.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		MaxTokens:   cfg.OpenAIMaxTokens,
		Temperature: float32(cfg.OpenAITemperature),
		FileDelay:   cfg.AIFileDelay,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("failed to create ai reviewer: %v", err)
	}

	fetcher := githubapi.NewClient(githubapi.Config{
		Token:  cfg.GitHubToken,
		Logger: logger,
	})

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	deliveryRepo := repository.NewWebhookDeliveryRepository(db)

	statsCache := service.NewStatsCache(redisClient, cfg.StatsCacheTTL, logger)
	liveUpdates := service.NewLiveUpdateService(natsConn, "", logger)

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	liveUpdates.Start(runCtx)

	assignmentService := service.NewAssignmentService(assignmentRepo, validate, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, studentRepo, feedbackRepo, validate, logger)
	pipeline := service.NewReviewPipelineService(
		submissionRepo,
		feedbackRepo,
		deliveryRepo,
		fetcher,
		reviewer,
		statsCache,
		liveUpdates,
		logger,
		service.ReviewPipelineConfig{
			FetchTimeout:    cfg.FetchTimeout,
			AnalysisTimeout: cfg.AnalysisTimeout,
			FetchRetry:      retryutil.Config{MaxAttempts: cfg.FetchRetries},
			AnalysisRetry:   retryutil.Config{MaxAttempts: cfg.AnalysisRetries},
			FailedWindow:    cfg.FailedWindow,
		},
	)

	assignmentHandler := handler.NewAssignmentHandler(assignmentService, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, logger)
	webhookHandler := handler.NewWebhookHandler(pipeline, deliveryRepo, logger)
	liveUpdateHandler := handler.NewLiveUpdateHandler(liveUpdates, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler: assignmentHandler,
		SubmissionHandler: submissionHandler,
		WebhookHandler:    webhookHandler,
		LiveUpdateHandler: liveUpdateHandler,
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
