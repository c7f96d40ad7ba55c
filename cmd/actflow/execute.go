package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/actflow/actflow/pkg/cmd"
	"github.com/actflow/actflow/pkg/lifecycle"
	"github.com/actflow/actflow/pkg/models"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultExecuteTimeout = 5 * time.Minute
	terminalPollInterval  = time.Second
)

func runExecute(ctx context.Context, logger *slog.Logger, command *cli.Command, text string) error {
	workflow, err := ensureStrict(text)
	if err != nil {
		return err
	}

	artifactID := command.String("artifact-id")

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("failed to close event bus", "error", err)
		}
	}()

	manager := lifecycle.NewManager(lifecycle.Config{
		ServiceURL: command.String("service-url"),
	}, eventBus, logger)
	defer manager.Close()

	info, err := manager.StartContainer(ctx, artifactID)
	if err != nil {
		return err
	}

	if info.Status != models.ContainerStatusRunning {
		return fmt.Errorf("container did not start: %s", info.LastError)
	}

	logger.Info("container ready", "artifact_id", artifactID, "container_id", info.ContainerID, "port", info.Port)

	if !command.Bool("keep-running") {
		defer func() {
			if _, err := manager.StopContainer(context.Background(), artifactID); err != nil {
				logger.Error("failed to stop container", "artifact_id", artifactID, "error", err)
			}
		}()
	}

	status, err := manager.ExecuteWorkflow(ctx, artifactID, text)
	if err != nil {
		return err
	}

	if status.Status == models.ExecutionStateFailed {
		return fmt.Errorf("execution refused: %s", status.Error)
	}

	logger.Info("execution submitted", "workflow_id", workflow.WorkflowID, "execution_id", status.ExecutionID)

	final, err := waitForTerminal(ctx, manager, artifactID, command.Duration("timeout"))
	if err != nil {
		return err
	}

	if final.Status == models.ExecutionStateFailed {
		return fmt.Errorf("execution failed: %s", final.Error)
	}

	fmt.Printf("execution %s completed\n", final.ExecutionID)

	return nil
}

func waitForTerminal(ctx context.Context, manager *lifecycle.Manager, artifactID string, timeout time.Duration) (models.ExecutionStatus, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(terminalPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.ExecutionStatus{}, ctx.Err()
		case <-deadline.C:
			return models.ExecutionStatus{}, fmt.Errorf("timed out waiting for execution to finish after %s", timeout)
		case <-ticker.C:
			if status, ok := manager.GetExecutionStatus(artifactID); ok && status.Status.Terminal() {
				return status, nil
			}
		}
	}
}
