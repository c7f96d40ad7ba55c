// Package worker runs the in-container execution service: a queue-backed
// executor with per-execution progress logs and retention.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/actflow/actflow/pkg/models"
	"github.com/actflow/actflow/pkg/worker/store"
	"github.com/google/uuid"
)

const (
	defaultQueueSize       = 64
	defaultHistoryLimit    = 20
	defaultRetentionPeriod = time.Hour
	recentFailureWindow    = 10 * time.Minute
)

// ErrQueueFull is returned when a submission cannot be accepted.
var ErrQueueFull = errors.New("execution queue is full")

// Executor runs one workflow document given its serialized text.
type Executor interface {
	Execute(ctx context.Context, content string) (any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, content string) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, content string) (any, error) {
	return f(ctx, content)
}

// Config tunes the worker service.
type Config struct {
	ArtifactID      string
	QueueSize       int
	HistoryLimit    int
	RetentionPeriod time.Duration
}

// Stats summarizes the execution table for the health endpoint.
type Stats struct {
	Active            int  `json:"active"`
	Completed         int  `json:"completed"`
	Pending           int  `json:"pending"`
	QueueSize         int  `json:"queue_size"`
	HasRecentFailures bool `json:"has_recent_failures"`
}

type job struct {
	executionID string
	content     string
}

// Service accepts workflow submissions and processes them sequentially off
// an internal queue. Run must be started for submissions to make progress.
type Service struct {
	logger   *slog.Logger
	store    store.Store
	executor Executor
	queue    chan job
	config   Config
}

func NewService(config Config, executionStore store.Store, executor Executor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}

	if config.HistoryLimit <= 0 {
		config.HistoryLimit = defaultHistoryLimit
	}

	if config.RetentionPeriod <= 0 {
		config.RetentionPeriod = defaultRetentionPeriod
	}

	return &Service{
		logger:   logger.With("module", "worker", "artifact_id", config.ArtifactID),
		store:    executionStore,
		executor: executor,
		queue:    make(chan job, config.QueueSize),
		config:   config,
	}
}

// Submit registers a new execution and queues it. The returned id can be
// polled through Status immediately.
func (s *Service) Submit(ctx context.Context, content string) (string, error) {
	if content == "" {
		return "", errors.New("missing workflow content")
	}

	executionID := uuid.New().String()

	info := &models.ExecutionInfo{
		ID:        executionID,
		Status:    models.ExecutionStateQueued,
		StartTime: time.Now().UTC(),
	}
	appendLog(info, models.ExecutionStateQueued, "workflow queued for execution")

	if err := s.store.Save(ctx, info); err != nil {
		return "", fmt.Errorf("failed to register execution: %w", err)
	}

	select {
	case s.queue <- job{executionID: executionID, content: content}:
	default:
		info.Status = models.ExecutionStateFailed
		info.Error = ErrQueueFull.Error()
		appendLog(info, models.ExecutionStateFailed, ErrQueueFull.Error())
		_ = s.store.Save(ctx, info)

		return "", ErrQueueFull
	}

	s.logger.Info("queued execution", "execution_id", executionID, "content_bytes", len(content))

	return executionID, nil
}

// Run processes the queue until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next := <-s.queue:
			s.process(ctx, next)
			s.cleanup(ctx)
		}
	}
}

// Status returns the record for one execution.
func (s *Service) Status(ctx context.Context, executionID string) (*models.ExecutionInfo, bool, error) {
	return s.store.Get(ctx, executionID)
}

// History returns all tracked executions, oldest first.
func (s *Service) History(ctx context.Context) ([]*models.ExecutionInfo, error) {
	return s.store.List(ctx)
}

// Stats summarizes the execution table.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{QueueSize: len(s.queue)}
	now := time.Now().UTC()

	for _, info := range records {
		stats.Active++

		if info.Status.Terminal() {
			stats.Completed++
		} else {
			stats.Pending++
		}

		if info.Status == models.ExecutionStateFailed && now.Sub(info.StartTime) < recentFailureWindow {
			stats.HasRecentFailures = true
		}
	}

	return stats, nil
}

func (s *Service) process(ctx context.Context, next job) {
	info, ok, err := s.store.Get(ctx, next.executionID)
	if err != nil || !ok {
		s.logger.Warn("dropping queued execution with no record", "execution_id", next.executionID, "error", err)

		return
	}

	s.logger.Info("starting execution", "execution_id", info.ID)

	info.Status = models.ExecutionStateRunning
	appendLog(info, models.ExecutionStateRunning, fmt.Sprintf("starting execution with %d characters", len(next.content)))

	if err := s.store.Save(ctx, info); err != nil {
		s.logger.Error("failed to persist execution state", "execution_id", info.ID, "error", err)
	}

	result, err := s.executor.Execute(ctx, next.content)
	if err != nil {
		info.Status = models.ExecutionStateFailed
		info.Error = err.Error()
		appendLog(info, models.ExecutionStateFailed, "execution failed: "+err.Error())
		s.logger.Error("execution failed", "execution_id", info.ID, "error", err)
	} else {
		info.Status = models.ExecutionStateCompleted
		info.Result = result
		appendLog(info, models.ExecutionStateCompleted, "execution completed")
		s.logger.Info("execution completed", "execution_id", info.ID)
	}

	if err := s.store.Save(ctx, info); err != nil {
		s.logger.Error("failed to persist execution result", "execution_id", info.ID, "error", err)
	}
}

// cleanup drops terminal executions past the retention period and trims the
// table to the history limit, oldest terminal records first.
func (s *Service) cleanup(ctx context.Context) {
	records, err := s.store.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list executions for cleanup", "error", err)

		return
	}

	now := time.Now().UTC()
	kept := records[:0]

	for _, info := range records {
		if info.Status.Terminal() && now.Sub(info.StartTime) > s.config.RetentionPeriod {
			if err := s.store.Delete(ctx, info.ID); err != nil {
				s.logger.Warn("failed to delete expired execution", "execution_id", info.ID, "error", err)
			}

			continue
		}

		kept = append(kept, info)
	}

	overflow := len(kept) - s.config.HistoryLimit
	if overflow <= 0 {
		return
	}

	// List returns records oldest first.
	for _, info := range kept {
		if overflow == 0 {
			break
		}

		if !info.Status.Terminal() {
			continue
		}

		if err := s.store.Delete(ctx, info.ID); err != nil {
			s.logger.Warn("failed to trim execution history", "execution_id", info.ID, "error", err)

			continue
		}

		overflow--
	}
}

func appendLog(info *models.ExecutionInfo, status models.ExecutionState, message string) {
	info.Logs = append(info.Logs, models.ExecutionLog{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Message:   message,
	})
}
