package main

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/actflow/actflow/pkg/log"
	"github.com/actflow/actflow/pkg/otelhelper"
	"github.com/actflow/actflow/pkg/runner"
	"github.com/actflow/actflow/pkg/web"
	"github.com/actflow/actflow/pkg/worker"
	"github.com/actflow/actflow/pkg/worker/store"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 5002

func main() {
	cmd := &cli.Command{
		Name:                  "actflow-worker",
		Usage:                 "Run the in-container workflow execution service",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the execution API on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "artifact-id",
				Usage:   "Artifact id this worker executes for",
				Sources: cli.EnvVars("ARTIFACT_ID"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for execution persistence (in-memory when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Emit OpenTelemetry spans for node execution",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.WithModule("worker").Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	// Logs are teed into the ring buffer that backs the /logs endpoint.
	buffer := worker.NewLogBuffer(0)
	log.SetupWithWriter(command.String("log-level"), io.MultiWriter(os.Stderr, buffer))

	logger := log.WithModule("worker")
	artifactID := command.String("artifact-id")
	port := command.Int("port")

	logger.InfoContext(ctx, "Initializing actflow worker", "artifact_id", artifactID, "port", port)

	executionStore, err := newStore(ctx, command.String("redis-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := executionStore.Close(); err != nil {
			logger.Error("failed to close execution store", "error", err)
		}
	}()

	documentRunner := runner.NewRunner(runner.DefaultRegistry(logger), logger)

	if command.Bool("tracing") {
		tracer, err := otelhelper.NewTracer(ctx, "actflow-worker")
		if err != nil {
			return err
		}

		documentRunner = documentRunner.WithTracer(tracer)
	}

	executor := worker.ExecutorFunc(func(ctx context.Context, content string) (any, error) {
		return documentRunner.RunText(ctx, content)
	})

	service := worker.NewService(worker.Config{ArtifactID: artifactID}, executionStore, executor, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := service.Run(runCtx); err != nil && runCtx.Err() == nil {
			logger.Error("execution queue stopped", "error", err)
		}
	}()

	handlers := web.NewWorkerHandlers(service, buffer, artifactID, port, logger)
	app := web.NewWorkerApp(handlers)

	return app.Listen(":" + strconv.Itoa(port))
}

func newStore(ctx context.Context, redisURL string) (store.Store, error) {
	if redisURL == "" {
		return store.NewMemoryStore(), nil
	}

	return store.NewRedisStore(ctx, redisURL)
}
