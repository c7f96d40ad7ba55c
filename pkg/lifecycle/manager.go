// Package lifecycle manages per-artifact execution containers: start,
// health-check, execute, track and stop, against the backing execution
// service's HTTP surface.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/actflow/actflow/pkg/eventbus"
	"github.com/actflow/actflow/pkg/events"
	"github.com/actflow/actflow/pkg/models"
	"github.com/robfig/cron/v3"
)

const (
	defaultHealthSpec    = "@every 10s"
	defaultExecutionSpec = "@every 1s"
	defaultHTTPTimeout   = 5 * time.Second
	defaultProbeTimeout  = 2 * time.Second
)

// ErrArtifactIDRequired is the one programmer-misuse failure that is
// returned as an error instead of being captured into container state.
var ErrArtifactIDRequired = errors.New("artifact id is required")

// Config wires a Manager to its backing execution service.
type Config struct {
	// ServiceURL is the base URL of the execution service that starts and
	// stops containers, e.g. http://localhost:5001.
	ServiceURL string

	// HealthSpec and ExecutionSpec are cron specs for the two per-artifact
	// polls. Defaults: every 10s for health, every 1s for execution status.
	HealthSpec    string
	ExecutionSpec string

	HTTPTimeout  time.Duration
	ProbeTimeout time.Duration
}

// Manager owns the container state table keyed by artifact id. It is
// constructed once by the host process and handed to callers; there is no
// process-global registry. All exported methods are safe for concurrent use;
// operations for the same artifact id are serialized, operations for
// different ids run in parallel.
type Manager struct {
	logger        *slog.Logger
	bus           eventbus.EventPublisher
	client        *http.Client
	probeClient   *http.Client
	serviceURL    string
	containerHost string
	scheduler     *cron.Cron
	healthSpec    string
	executionSpec string

	mu      sync.Mutex
	records map[string]*record
}

// record is the per-artifact state. opMu serializes lifecycle operations
// (start/stop/execute); mu guards the fields and is never held across
// network I/O, so a slow probe cannot starve a concurrent stop.
type record struct {
	opMu sync.Mutex
	mu   sync.Mutex

	info           models.ContainerInfo
	lastExecution  models.ExecutionStatus
	healthEntry    cron.EntryID
	executionEntry cron.EntryID
}

func NewManager(config Config, bus eventbus.EventPublisher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	if config.HealthSpec == "" {
		config.HealthSpec = defaultHealthSpec
	}

	if config.ExecutionSpec == "" {
		config.ExecutionSpec = defaultExecutionSpec
	}

	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = defaultHTTPTimeout
	}

	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = defaultProbeTimeout
	}

	manager := &Manager{
		logger:        logger.With("module", "lifecycle"),
		bus:           bus,
		client:        &http.Client{Timeout: config.HTTPTimeout},
		probeClient:   &http.Client{Timeout: config.ProbeTimeout},
		serviceURL:    config.ServiceURL,
		containerHost: containerHost(config.ServiceURL),
		scheduler:     cron.New(),
		healthSpec:    config.HealthSpec,
		executionSpec: config.ExecutionSpec,
		records:       make(map[string]*record),
	}

	manager.scheduler.Start()

	return manager
}

// Close stops all polling. In-flight probes finish on their own timeout.
func (m *Manager) Close() {
	m.scheduler.Stop()
}

// CheckHealth is a stateless probe of the backing service's availability.
func (m *Manager) CheckHealth(ctx context.Context) error {
	var response struct {
		Status string `json:"status"`
	}

	if err := getJSON(ctx, m.client, m.serviceURL+"/health", &response); err != nil {
		return fmt.Errorf("execution service unreachable: %w", err)
	}

	if response.Status != "healthy" {
		return fmt.Errorf("execution service unhealthy: %s", response.Status)
	}

	return nil
}

// StartContainer ensures a container is running for the artifact. Calling it
// while one is already running is a no-op success. Expected failures (service
// down, start refused) are captured into the record's status and last error,
// not returned as errors.
func (m *Manager) StartContainer(ctx context.Context, artifactID string) (models.ContainerInfo, error) {
	if artifactID == "" {
		return models.ContainerInfo{}, ErrArtifactIDRequired
	}

	rec := m.record(artifactID)

	rec.opMu.Lock()
	defer rec.opMu.Unlock()

	rec.mu.Lock()
	if rec.info.Status == models.ContainerStatusRunning {
		info := rec.info
		rec.mu.Unlock()

		return info, nil
	}

	rec.info.Status = models.ContainerStatusPending
	rec.info.LastError = ""
	rec.mu.Unlock()

	if err := m.CheckHealth(ctx); err != nil {
		return m.failRecord(rec, err), nil
	}

	var response struct {
		Status      string `json:"status"`
		ContainerID string `json:"containerId"`
		Port        int    `json:"port"`
		Error       string `json:"error"`
	}

	err := postJSON(ctx, m.client, m.serviceURL+"/container/start", map[string]string{"artifactId": artifactID}, &response)
	if err != nil {
		return m.failRecord(rec, fmt.Errorf("container start request failed: %w", err)), nil
	}

	if response.Status != "success" {
		return m.failRecord(rec, fmt.Errorf("container start refused: %s", startError(response.Status, response.Error))), nil
	}

	now := time.Now().UTC()

	rec.mu.Lock()
	rec.info.Status = models.ContainerStatusRunning
	rec.info.ContainerID = response.ContainerID
	rec.info.Port = response.Port
	rec.info.StartTime = &now
	rec.info.LastError = ""
	info := rec.info
	m.scheduleHealthPollLocked(rec, artifactID)
	rec.mu.Unlock()

	m.logger.Info("container started", "artifact_id", artifactID, "container_id", info.ContainerID, "port", info.Port)
	m.publish(ctx, artifactID, events.ContainerStarted{
		BaseEvent:   events.NewBaseEvent(events.ContainerStartedEvent, artifactID),
		ContainerID: info.ContainerID,
		Port:        info.Port,
	})

	return info, nil
}

// StopContainer tears down the artifact's container. Stopping what is not
// running is a no-op success. Polling for the artifact is cancelled
// synchronously before the stop request is issued.
func (m *Manager) StopContainer(ctx context.Context, artifactID string) (models.ContainerInfo, error) {
	if artifactID == "" {
		return models.ContainerInfo{}, ErrArtifactIDRequired
	}

	rec, ok := m.lookup(artifactID)
	if !ok {
		return stoppedInfo(artifactID), nil
	}

	rec.opMu.Lock()
	defer rec.opMu.Unlock()

	rec.mu.Lock()
	m.cancelPollingLocked(rec)

	containerID := rec.info.ContainerID
	rec.mu.Unlock()

	if containerID == "" {
		rec.mu.Lock()
		rec.info = stoppedInfo(artifactID)
		info := rec.info
		rec.mu.Unlock()

		return info, nil
	}

	var response struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}

	err := postJSON(ctx, m.client, m.serviceURL+"/container/stop", map[string]string{"artifactId": artifactID}, &response)
	if err != nil {
		return m.failRecord(rec, fmt.Errorf("container stop request failed: %w", err)), nil
	}

	rec.mu.Lock()
	rec.info = stoppedInfo(artifactID)
	info := rec.info
	rec.mu.Unlock()

	m.logger.Info("container stopped", "artifact_id", artifactID, "container_id", containerID)
	m.publish(ctx, artifactID, events.ContainerStopped{
		BaseEvent:   events.NewBaseEvent(events.ContainerStoppedEvent, artifactID),
		ContainerID: containerID,
	})

	return info, nil
}

// CheckContainerHealth probes the artifact's container: directly against its
// own port first (cheap, short timeout), falling back to the managing
// service when the direct path fails. The container may be unreachable
// directly for reasons unrelated to true health, which the service can still
// resolve.
func (m *Manager) CheckContainerHealth(ctx context.Context, artifactID string) models.ContainerInfo {
	rec, ok := m.lookup(artifactID)
	if !ok {
		return stoppedInfo(artifactID)
	}

	rec.mu.Lock()
	containerID := rec.info.ContainerID
	port := rec.info.Port
	rec.mu.Unlock()

	if containerID == "" {
		return m.GetContainerStatus(artifactID)
	}

	status, probeErr := m.probeContainer(ctx, artifactID, port)

	rec.mu.Lock()

	// The container changed under us while the probe was in flight
	// (explicit stop or restart); discard the stale result.
	if rec.info.ContainerID != containerID {
		info := rec.info
		rec.mu.Unlock()

		return info
	}

	unhealthy := false

	switch status {
	case models.ContainerStatusRunning:
		rec.info.Status = models.ContainerStatusRunning
		rec.info.LastError = ""
	case models.ContainerStatusStopped:
		rec.info.Status = models.ContainerStatusStopped
	default:
		rec.info.Status = models.ContainerStatusError
		rec.info.LastError = probeErr.Error()
		unhealthy = true
	}

	info := rec.info
	rec.mu.Unlock()

	// Publish after the commit; the bus may be backed by a network broker
	// and must not hold up concurrent operations on the same artifact.
	if unhealthy {
		m.publish(ctx, artifactID, events.ContainerUnhealthy{
			BaseEvent: events.NewBaseEvent(events.ContainerUnhealthyEvent, artifactID),
			Error:     probeErr.Error(),
		})
	}

	return info
}

// probeContainer runs the two-tier health probe outside any record lock.
func (m *Manager) probeContainer(ctx context.Context, artifactID string, port int) (models.ContainerStatus, error) {
	if port > 0 {
		var direct struct {
			Status string `json:"status"`
		}

		err := getJSON(ctx, m.probeClient, fmt.Sprintf("http://%s:%d/health", m.containerHost, port), &direct)
		if err == nil && direct.Status == "healthy" {
			return models.ContainerStatusRunning, nil
		}
	}

	var indirect struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}

	err := postJSON(ctx, m.client, m.serviceURL+"/container/health", map[string]string{"artifactId": artifactID}, &indirect)
	if err != nil {
		return models.ContainerStatusError, fmt.Errorf("container health probe failed: %w", err)
	}

	switch indirect.Status {
	case "healthy", "running":
		return models.ContainerStatusRunning, nil
	case "stopped", "not found":
		return models.ContainerStatusStopped, nil
	default:
		reason := indirect.Error
		if reason == "" {
			reason = indirect.Status
		}

		return models.ContainerStatusError, fmt.Errorf("container unhealthy: %s", reason)
	}
}

// ExecuteWorkflow submits serialized workflow text to the artifact's
// container and starts tracking the execution until it reaches a terminal
// state. The container must be running; anything else is reported as a
// failed status, not an error.
func (m *Manager) ExecuteWorkflow(ctx context.Context, artifactID, content string) (models.ExecutionStatus, error) {
	if artifactID == "" {
		return models.ExecutionStatus{}, ErrArtifactIDRequired
	}

	rec, ok := m.lookup(artifactID)
	if !ok {
		return executionFailure("container not running for artifact " + artifactID), nil
	}

	rec.opMu.Lock()
	defer rec.opMu.Unlock()

	rec.mu.Lock()
	status := rec.info.Status
	port := rec.info.Port
	rec.mu.Unlock()

	if status != models.ContainerStatusRunning {
		return executionFailure("container not running for artifact " + artifactID), nil
	}

	var response struct {
		Status      string `json:"status"`
		ExecutionID string `json:"executionId"`
		Error       string `json:"error"`
	}

	endpoint := fmt.Sprintf("http://%s:%d/execute", m.containerHost, port)

	err := postJSON(ctx, m.client, endpoint, map[string]string{"content": content}, &response)
	if err != nil {
		rec.mu.Lock()
		rec.info.Status = models.ContainerStatusError
		rec.info.LastError = err.Error()
		rec.mu.Unlock()

		return executionFailure("execution submit failed: " + err.Error()), nil
	}

	if response.Status != "accepted" {
		return executionFailure("execution refused: " + startError(response.Status, response.Error)), nil
	}

	queued := models.ExecutionStatus{
		ExecutionID: response.ExecutionID,
		Status:      models.ExecutionStateQueued,
	}

	rec.mu.Lock()
	rec.info.ExecutionID = response.ExecutionID
	rec.lastExecution = queued
	m.scheduleExecutionPollLocked(rec, artifactID)
	rec.mu.Unlock()

	m.logger.Info("execution queued", "artifact_id", artifactID, "execution_id", response.ExecutionID)
	m.publish(ctx, artifactID, events.ExecutionQueued{
		BaseEvent:   events.NewBaseEvent(events.ExecutionQueuedEvent, artifactID),
		ExecutionID: response.ExecutionID,
	})

	return queued, nil
}

// GetContainerStatus is a pure read. Unknown artifact ids yield a
// synthesized stopped record; it never fails.
func (m *Manager) GetContainerStatus(artifactID string) models.ContainerInfo {
	rec, ok := m.lookup(artifactID)
	if !ok {
		return stoppedInfo(artifactID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	return rec.info
}

// GetExecutionStatus reports the last tracked execution for the artifact.
func (m *Manager) GetExecutionStatus(artifactID string) (models.ExecutionStatus, bool) {
	rec, ok := m.lookup(artifactID)
	if !ok {
		return models.ExecutionStatus{}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.lastExecution.ExecutionID == "" {
		return models.ExecutionStatus{}, false
	}

	return rec.lastExecution, true
}

func (m *Manager) record(artifactID string) *record {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[artifactID]
	if !ok {
		rec = &record{info: stoppedInfo(artifactID)}
		m.records[artifactID] = rec
	}

	return rec
}

func (m *Manager) lookup(artifactID string) (*record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[artifactID]

	return rec, ok
}

// scheduleHealthPollLocked replaces any existing health poll entry for the
// record. At most one health poll timer exists per artifact id.
func (m *Manager) scheduleHealthPollLocked(rec *record, artifactID string) {
	if rec.healthEntry != 0 {
		m.scheduler.Remove(rec.healthEntry)
		rec.healthEntry = 0
	}

	entry, err := m.scheduler.AddFunc(m.healthSpec, func() {
		m.CheckContainerHealth(context.Background(), artifactID)
	})
	if err != nil {
		m.logger.Error("failed to schedule health poll", "artifact_id", artifactID, "error", err)

		return
	}

	rec.healthEntry = entry
}

// scheduleExecutionPollLocked replaces any existing execution poll entry.
func (m *Manager) scheduleExecutionPollLocked(rec *record, artifactID string) {
	if rec.executionEntry != 0 {
		m.scheduler.Remove(rec.executionEntry)
		rec.executionEntry = 0
	}

	entry, err := m.scheduler.AddFunc(m.executionSpec, func() {
		m.pollExecution(context.Background(), artifactID)
	})
	if err != nil {
		m.logger.Error("failed to schedule execution poll", "artifact_id", artifactID, "error", err)

		return
	}

	rec.executionEntry = entry
}

func (m *Manager) cancelPollingLocked(rec *record) {
	if rec.healthEntry != 0 {
		m.scheduler.Remove(rec.healthEntry)
		rec.healthEntry = 0
	}

	if rec.executionEntry != 0 {
		m.scheduler.Remove(rec.executionEntry)
		rec.executionEntry = 0
	}
}

// pollExecution drives one tick of execution tracking: fetch status from the
// container, commit it, and on a terminal state cancel the poll and clear
// the in-flight execution id.
func (m *Manager) pollExecution(ctx context.Context, artifactID string) {
	rec, ok := m.lookup(artifactID)
	if !ok {
		return
	}

	rec.mu.Lock()
	executionID := rec.info.ExecutionID
	port := rec.info.Port
	rec.mu.Unlock()

	if executionID == "" {
		return
	}

	var response struct {
		Status string `json:"status"`
		Result any    `json:"result"`
		Error  string `json:"error"`
	}

	endpoint := fmt.Sprintf("http://%s:%d/status/%s", m.containerHost, port, executionID)

	err := getJSON(ctx, m.client, endpoint, &response)

	rec.mu.Lock()

	if rec.info.ExecutionID != executionID {
		rec.mu.Unlock()

		return
	}

	if err != nil {
		rec.info.LastError = err.Error()
		rec.mu.Unlock()
		m.logger.Warn("execution status poll failed", "artifact_id", artifactID, "execution_id", executionID, "error", err)

		return
	}

	state := models.ExecutionState(response.Status)
	rec.lastExecution = models.ExecutionStatus{
		ExecutionID: executionID,
		Status:      state,
		Result:      response.Result,
		Error:       response.Error,
	}

	if !state.Terminal() {
		rec.mu.Unlock()

		return
	}

	if rec.executionEntry != 0 {
		m.scheduler.Remove(rec.executionEntry)
		rec.executionEntry = 0
	}

	rec.info.ExecutionID = ""
	last := rec.lastExecution
	rec.mu.Unlock()

	m.logger.Info("execution finished", "artifact_id", artifactID, "execution_id", executionID, "status", string(state))

	if state == models.ExecutionStateCompleted {
		m.publish(ctx, artifactID, events.ExecutionCompleted{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, artifactID),
			ExecutionID: executionID,
			Result:      last.Result,
		})
	} else {
		m.publish(ctx, artifactID, events.ExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, artifactID),
			ExecutionID: executionID,
			Error:       last.Error,
		})
	}
}

// failRecord captures an expected failure into the record and returns the
// resulting state.
func (m *Manager) failRecord(rec *record, cause error) models.ContainerInfo {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.info.Status = models.ContainerStatusError
	rec.info.LastError = cause.Error()

	m.logger.Warn("lifecycle operation failed", "artifact_id", rec.info.ArtifactID, "error", cause)

	return rec.info
}

func (m *Manager) publish(ctx context.Context, key string, event eventbus.Event) {
	if m.bus == nil {
		return
	}

	if err := m.bus.Publish(ctx, key, event); err != nil {
		m.logger.Warn("failed to publish event", "event_type", string(event.GetType()), "error", err)
	}
}

func stoppedInfo(artifactID string) models.ContainerInfo {
	return models.ContainerInfo{ArtifactID: artifactID, Status: models.ContainerStatusStopped}
}

func executionFailure(reason string) models.ExecutionStatus {
	return models.ExecutionStatus{Status: models.ExecutionStateFailed, Error: reason}
}

func startError(status, detail string) string {
	if detail != "" {
		return detail
	}

	return status
}

func containerHost(serviceURL string) string {
	parsed, err := url.Parse(serviceURL)
	if err != nil || parsed.Hostname() == "" {
		return "localhost"
	}

	return parsed.Hostname()
}
