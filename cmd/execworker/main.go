package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-exam-api/internal/config"
	"github.com/noah-isme/gema-exam-api/internal/database"
	"github.com/noah-isme/gema-exam-api/internal/execution"
	"github.com/noah-isme/gema-exam-api/pkg/docker"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := command().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func command() *cli.Command {
	return &cli.Command{
		Name:  "execworker",
		Usage: "run exam solutions in docker sandboxes on behalf of the exam api",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "transport",
				Usage:   "queue transport to serve: nats or redis",
				Value:   config.TransportNATS,
				Sources: cli.EnvVars("GEMA_EXECUTION_TRANSPORT"),
			},
			&cli.StringFlag{Name: "nats-url", Sources: cli.EnvVars("GEMA_NATS_URL")},
			&cli.StringFlag{Name: "redis-url", Sources: cli.EnvVars("GEMA_REDIS_URL")},
			&cli.StringFlag{
				Name:    "nats-prefix",
				Value:   "gema.exam.execution",
				Sources: cli.EnvVars("GEMA_EXECUTION_NATS_PREFIX"),
			},
			&cli.StringFlag{
				Name:    "redis-prefix",
				Value:   "gema:exam:execution",
				Sources: cli.EnvVars("GEMA_EXECUTION_REDIS_PREFIX"),
			},
			&cli.StringFlag{
				Name:    "queue",
				Usage:   "nats queue group shared by workers",
				Value:   "gema-exam-execworkers",
				Sources: cli.EnvVars("GEMA_EXECUTION_QUEUE"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Value:   4,
				Sources: cli.EnvVars("GEMA_EXECUTION_CONCURRENCY"),
			},
			&cli.StringFlag{Name: "docker-host", Sources: cli.EnvVars("GEMA_DOCKER_HOST")},
			&cli.StringFlag{
				Name:    "workdir",
				Usage:   "host directory holding per-run workspaces",
				Sources: cli.EnvVars("GEMA_SANDBOX_WORKDIR"),
			},
			&cli.DurationFlag{
				Name:    "compile-timeout",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("GEMA_SANDBOX_COMPILE_TIMEOUT"),
			},
			&cli.IntFlag{Name: "memory-mb", Value: 256, Sources: cli.EnvVars("GEMA_CODE_RUN_MEMORY_MB")},
			&cli.IntFlag{Name: "cpu-shares", Value: 512, Sources: cli.EnvVars("GEMA_CODE_RUN_CPU_SHARES")},
			&cli.IntFlag{Name: "pids-limit", Value: 64, Sources: cli.EnvVars("GEMA_CODE_RUN_PIDS_LIMIT")},
			&cli.BoolFlag{Name: "debug", Sources: cli.EnvVars("GEMA_DEBUG")},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	level := zerolog.InfoLevel
	if cmd.Bool("debug") {
		level = zerolog.DebugLevel
	}
	workerID := uuid.NewString()
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "execworker").Logger()

	concurrency := cmd.Int("concurrency")
	if concurrency <= 0 {
		concurrency = 1
	}

	sandbox, err := docker.NewDockerSandbox(docker.Config{
		Host:          cmd.String("docker-host"),
		MemoryLimitMB: int64(cmd.Int("memory-mb")),
		CPUShares:     int64(cmd.Int("cpu-shares")),
		PidsLimit:     int64(cmd.Int("pids-limit")),
		OutputLimit:   1 << 20,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer sandbox.Close()

	runner := execution.NewSandboxRunner(sandbox, execution.SandboxRunnerConfig{
		WorkRoot:       cmd.String("workdir"),
		CompileTimeout: cmd.Duration("compile-timeout"),
		Logger:         logger,
	})

	group, groupCtx := errgroup.WithContext(ctx)

	switch transport := cmd.String("transport"); transport {
	case config.TransportNATS:
		conn, err := database.ConnectNATS(cmd.String("nats-url"), "gema-execworker-"+workerID)
		if err != nil {
			return err
		}
		defer conn.Close()

		worker := execution.NewNATSWorker(conn, execution.SubjectsFor(cmd.String("nats-prefix")), cmd.String("queue"), runner, int64(concurrency), workerID, logger)
		group.Go(func() error { return worker.Run(groupCtx) })
	case config.TransportRedis:
		client, err := database.ConnectRedis(cmd.String("redis-url"))
		if err != nil {
			return err
		}
		defer client.Close()

		queues := execution.QueuesFor(cmd.String("redis-prefix"))
		for i := 0; i < concurrency; i++ {
			worker := execution.NewRedisWorker(client, queues, runner, fmt.Sprintf("%s-%d", workerID, i), logger)
			group.Go(func() error { return worker.Run(groupCtx) })
		}
	default:
		return fmt.Errorf("unsupported transport %q", transport)
	}

	logger.Info().Str("worker_id", workerID).Int("concurrency", concurrency).Msg("execution worker started")
	return group.Wait()
}
