package main

import (
	"context"
	"os"
	"strconv"

	"github.com/actflow/actflow/pkg/log"
	"github.com/actflow/actflow/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 5001

func main() {
	logger := log.WithModule("manager")

	cmd := &cli.Command{
		Name:                  "actflow-manager",
		Usage:                 "Manage workflow execution containers",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the manager service on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.IntFlag{
				Name:    "base-port",
				Usage:   "First host port to allocate to worker containers",
				Value:   5002,
				Sources: cli.EnvVars("BASE_PORT"),
			},
			&cli.StringFlag{
				Name:    "worker-image",
				Usage:   "Container image to run workers from",
				Value:   "flow-runner",
				Sources: cli.EnvVars("WORKER_IMAGE"),
			},
			&cli.StringFlag{
				Name:    "network",
				Usage:   "Container network to attach workers to",
				Value:   "act-network",
				Sources: cli.EnvVars("CONTAINER_NETWORK"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing actflow manager")

			runtime := web.NewDockerRuntime(
				command.String("worker-image"),
				command.String("network"),
				0,
			)

			handlers := web.NewManagerHandlers(runtime, command.Int("base-port"), logger)
			app := web.NewManagerApp(handlers)

			return app.Listen(":" + strconv.Itoa(command.Int("port")))
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("manager exited", "error", err)
		os.Exit(1)
	}
}
