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
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/config"
	"github.com/noah-isme/gema-exam-api/internal/database"
	"github.com/noah-isme/gema-exam-api/internal/events"
	"github.com/noah-isme/gema-exam-api/internal/execution"
	"github.com/noah-isme/gema-exam-api/internal/handler"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/repository"
	"github.com/noah-isme/gema-exam-api/internal/router"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/pkg/docker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.IsProduction() {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := repository.AutoMigrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	channel, closeChannel, err := buildChannel(cfg, redisClient, natsConn, logger)
	if err != nil {
		log.Fatalf("failed to build execution channel: %v", err)
	}
	defer closeChannel()

	validate := validator.New(validator.WithRequiredStructEnabled())
	bus := events.NewLocalBus(logger)
	services := service.NewServices(db, bus, validate, logger)

	executionService := service.NewExecutionService(channel, bus, logger)
	go func() {
		if err := executionService.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("execution responses stopped")
		}
	}()

	feed := service.NewResultFeed(bus, redisClient, natsConn, cfg.FeedChannel, logger)
	feed.Run(ctx)

	examHandler := handler.NewExamHandler(services.Exams, logger)
	exerciseHandler := handler.NewExerciseHandler(services.Exercises, services.TestCases, logger)
	submissionHandler := handler.NewSubmissionHandler(services.Solutions, middleware.RateLimit("submit", cfg.SubmitRateLimit, cfg.SubmitRateWindow), logger)
	resultHandler := handler.NewResultHandler(services.Results, feed, cfg.StreamPingInterval, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ExamHandler:       examHandler,
		ExerciseHandler:   exerciseHandler,
		SubmissionHandler: submissionHandler,
		ResultHandler:     resultHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("addr", cfg.HTTPAddress()).Str("transport", cfg.ExecutionTransport).Msg("exam api started")
	waitForShutdown(ctx, app)
}

// buildChannel selects the execution transport. The local transport runs the
// docker sandbox inside this process.
func buildChannel(cfg config.Config, redisClient *redis.Client, natsConn *nats.Conn, logger zerolog.Logger) (execution.Channel, func(), error) {
	switch cfg.ExecutionTransport {
	case config.TransportNATS:
		return execution.NewNATSChannel(natsConn, execution.SubjectsFor(cfg.NATSSubjectPrefix), "gema-exam-api", logger), func() {}, nil
	case config.TransportRedis:
		return execution.NewRedisChannel(redisClient, execution.QueuesFor(cfg.RedisQueuePrefix), logger), func() {}, nil
	}

	sandbox, err := docker.NewDockerSandbox(docker.Config{
		Host:          cfg.DockerHost,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		PidsLimit:     int64(cfg.CodeRunPidsLimit),
		OutputLimit:   1 << 20,
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, err
	}

	runner := execution.NewSandboxRunner(sandbox, execution.SandboxRunnerConfig{
		WorkRoot:       cfg.SandboxWorkDir,
		CompileTimeout: cfg.CompileTimeout,
		Logger:         logger,
	})
	channel := execution.NewLocalChannel(runner, int64(cfg.ExecutionConcurrency), logger)

	return channel, func() {
		_ = channel.Close()
		_ = sandbox.Close()
	}, nil
}

func waitForShutdown(ctx context.Context, app *fiber.App) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
