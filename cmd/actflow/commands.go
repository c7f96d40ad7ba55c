package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/actflow/actflow/pkg/codec"
	"github.com/actflow/actflow/pkg/graph"
	"github.com/actflow/actflow/pkg/log"
	"github.com/actflow/actflow/pkg/models"
	cli "github.com/urfave/cli/v3"
)

func readDocument(command *cli.Command) (string, error) {
	path := command.Args().First()
	if path == "" {
		return "", fmt.Errorf("usage: actflow %s <file.act>", command.Name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	return string(data), nil
}

// validateCommand strict-parses a document and reports every problem found.
func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Strictly validate an ACT document",
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			text, err := readDocument(command)
			if err != nil {
				return err
			}

			if _, err := codec.ParseStrict(text); err != nil {
				validationErr, ok := codec.AsValidationError(err)
				if !ok {
					return err
				}

				for _, reason := range validationErr.Reasons {
					fmt.Fprintln(os.Stderr, "invalid:", reason)
				}

				return fmt.Errorf("document is invalid (%d problems)", len(validationErr.Reasons))
			}

			fmt.Println("document is valid")

			return nil
		},
	}
}

// fmtCommand repairs and canonicalizes a document, printing the result.
func fmtCommand() *cli.Command {
	return &cli.Command{
		Name:  "fmt",
		Usage: "Repair and canonicalize an ACT document",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "write",
				Aliases: []string{"w"},
				Usage:   "Rewrite the file in place instead of printing",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			text, err := readDocument(command)
			if err != nil {
				return err
			}

			result := codec.ParseLenient(text)
			if !result.Valid {
				return fmt.Errorf("cannot format unparseable document: %v", result.Problems)
			}

			formatted := codec.Serialize(result.Doc)

			if command.Bool("write") {
				return os.WriteFile(command.Args().First(), []byte(formatted), 0o644)
			}

			fmt.Print(formatted)

			return nil
		},
	}
}

// graphCommand prints the positioned graph derived from a document.
func graphCommand() *cli.Command {
	return &cli.Command{
		Name:  "graph",
		Usage: "Print the node/edge graph derived from an ACT document",
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			text, err := readDocument(command)
			if err != nil {
				return err
			}

			result := codec.ParseLenient(text)
			if !result.Valid {
				return fmt.Errorf("cannot build graph from unparseable document: %v", result.Problems)
			}

			nodes, edges := graph.ToGraph(result.Doc)

			output, err := json.MarshalIndent(map[string]any{
				"nodes": nodes,
				"edges": edges,
			}, "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(output))

			return nil
		},
	}
}

// executeCommand drives a document through a running manager service: start
// the artifact's container, submit the document, poll to a terminal state,
// then optionally stop the container again.
func executeCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "execute",
		Usage: "Execute an ACT document through the manager service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "service-url",
				Usage:   "Base URL of the manager service",
				Value:   "http://localhost:5001",
				Sources: cli.EnvVars("ACTFLOW_SERVICE_URL"),
			},
			&cli.StringFlag{
				Name:    "artifact-id",
				Usage:   "Artifact id to execute under",
				Value:   "default",
				Sources: cli.EnvVars("ARTIFACT_ID"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.BoolFlag{
				Name:  "keep-running",
				Usage: "Leave the container running after the execution finishes",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Maximum time to wait for a terminal state",
				Value: defaultExecuteTimeout,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			text, err := readDocument(command)
			if err != nil {
				return err
			}

			return runExecute(ctx, logger, command, text)
		},
	}
}

// ensureStrict rejects documents the runner would refuse before any
// container is started for them.
func ensureStrict(text string) (*models.Workflow, error) {
	workflow, err := codec.ParseStrict(text)
	if err != nil {
		return nil, fmt.Errorf("document rejected: %w", err)
	}

	return workflow, nil
}
