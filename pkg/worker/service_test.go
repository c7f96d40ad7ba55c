package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/actflow/actflow/pkg/models"
	"github.com/actflow/actflow/pkg/worker/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startService(t *testing.T, executor Executor, config Config) (*Service, store.Store) {
	t.Helper()

	executionStore := store.NewMemoryStore()
	service := NewService(config, executionStore, executor, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		_ = service.Run(ctx)
	}()

	return service, executionStore
}

func waitForStatus(t *testing.T, service *Service, executionID string, want models.ExecutionState) *models.ExecutionInfo {
	t.Helper()

	var info *models.ExecutionInfo

	require.Eventually(t, func() bool {
		record, ok, err := service.Status(context.Background(), executionID)
		if err != nil || !ok {
			return false
		}

		info = record

		return record.Status == want
	}, 2*time.Second, 10*time.Millisecond)

	return info
}

func TestSubmitDrivesExecutionToCompletion(t *testing.T) {
	executor := ExecutorFunc(func(_ context.Context, content string) (any, error) {
		return map[string]any{"echo": content}, nil
	})

	service, _ := startService(t, executor, Config{ArtifactID: "artifact-1"})

	executionID, err := service.Submit(context.Background(), "[workflow]\nname = \"x\"\n")
	require.NoError(t, err)
	require.NotEmpty(t, executionID)

	info := waitForStatus(t, service, executionID, models.ExecutionStateCompleted)
	assert.NotNil(t, info.Result)
	assert.Empty(t, info.Error)

	// The progress log walks queued -> running -> completed.
	statuses := make([]models.ExecutionState, 0, len(info.Logs))
	for _, entry := range info.Logs {
		statuses = append(statuses, entry.Status)
	}

	assert.Equal(t, []models.ExecutionState{
		models.ExecutionStateQueued,
		models.ExecutionStateRunning,
		models.ExecutionStateCompleted,
	}, statuses)
}

func TestSubmitRecordsExecutorFailure(t *testing.T) {
	executor := ExecutorFunc(func(_ context.Context, _ string) (any, error) {
		return nil, errors.New("node n2 exploded")
	})

	service, _ := startService(t, executor, Config{ArtifactID: "artifact-1"})

	executionID, err := service.Submit(context.Background(), "content")
	require.NoError(t, err)

	info := waitForStatus(t, service, executionID, models.ExecutionStateFailed)
	assert.Contains(t, info.Error, "exploded")
}

func TestSubmitRejectsEmptyContent(t *testing.T) {
	service, _ := startService(t, ExecutorFunc(func(_ context.Context, _ string) (any, error) {
		return nil, nil
	}), Config{})

	_, err := service.Submit(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing workflow content")
}

func TestSubmitQueueFull(t *testing.T) {
	executionStore := store.NewMemoryStore()
	service := NewService(Config{QueueSize: 1}, executionStore, ExecutorFunc(func(_ context.Context, _ string) (any, error) {
		return nil, nil
	}), testLogger())

	// Run is intentionally not started, so the queue never drains.
	_, err := service.Submit(context.Background(), "first")
	require.NoError(t, err)

	_, err = service.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestCleanupDropsExpiredTerminalExecutions(t *testing.T) {
	executionStore := store.NewMemoryStore()
	service := NewService(Config{RetentionPeriod: time.Hour}, executionStore, nil, testLogger())

	old := &models.ExecutionInfo{
		ID:        "old",
		Status:    models.ExecutionStateCompleted,
		StartTime: time.Now().UTC().Add(-2 * time.Hour),
	}
	fresh := &models.ExecutionInfo{
		ID:        "fresh",
		Status:    models.ExecutionStateCompleted,
		StartTime: time.Now().UTC(),
	}
	running := &models.ExecutionInfo{
		ID:        "running",
		Status:    models.ExecutionStateRunning,
		StartTime: time.Now().UTC().Add(-3 * time.Hour),
	}

	for _, info := range []*models.ExecutionInfo{old, fresh, running} {
		require.NoError(t, executionStore.Save(context.Background(), info))
	}

	service.cleanup(context.Background())

	_, ok, err := executionStore.Get(context.Background(), "old")
	require.NoError(t, err)
	assert.False(t, ok, "expired terminal execution must be dropped")

	_, ok, _ = executionStore.Get(context.Background(), "fresh")
	assert.True(t, ok)

	_, ok, _ = executionStore.Get(context.Background(), "running")
	assert.True(t, ok, "non-terminal executions are never dropped")
}

func TestCleanupEnforcesHistoryLimit(t *testing.T) {
	executionStore := store.NewMemoryStore()
	service := NewService(Config{HistoryLimit: 2, RetentionPeriod: 24 * time.Hour}, executionStore, nil, testLogger())

	base := time.Now().UTC().Add(-10 * time.Minute)
	for index, id := range []string{"e1", "e2", "e3", "e4"} {
		require.NoError(t, executionStore.Save(context.Background(), &models.ExecutionInfo{
			ID:        id,
			Status:    models.ExecutionStateCompleted,
			StartTime: base.Add(time.Duration(index) * time.Minute),
		}))
	}

	service.cleanup(context.Background())

	records, err := executionStore.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "e3", records[0].ID, "oldest terminal records are trimmed first")
	assert.Equal(t, "e4", records[1].ID)
}

func TestStatsCountsExecutions(t *testing.T) {
	executionStore := store.NewMemoryStore()
	service := NewService(Config{}, executionStore, nil, testLogger())

	require.NoError(t, executionStore.Save(context.Background(), &models.ExecutionInfo{
		ID: "done", Status: models.ExecutionStateCompleted, StartTime: time.Now().UTC(),
	}))
	require.NoError(t, executionStore.Save(context.Background(), &models.ExecutionInfo{
		ID: "waiting", Status: models.ExecutionStateQueued, StartTime: time.Now().UTC(),
	}))
	require.NoError(t, executionStore.Save(context.Background(), &models.ExecutionInfo{
		ID: "broken", Status: models.ExecutionStateFailed, StartTime: time.Now().UTC(),
	}))

	stats, err := service.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Active)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Pending)
	assert.True(t, stats.HasRecentFailures)
}

func TestLogBufferKeepsMostRecentLines(t *testing.T) {
	buffer := NewLogBuffer(3)

	for _, line := range []string{"one", "two", "three", "four"} {
		_, err := buffer.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, buffer.Len())
	assert.Equal(t, "two\nthree\nfour", buffer.Dump())
}

func TestLogBufferSplitsMultilineWrites(t *testing.T) {
	buffer := NewLogBuffer(10)

	_, err := buffer.Write([]byte("alpha\nbeta\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, strings.Split(buffer.Dump(), "\n"))
}
