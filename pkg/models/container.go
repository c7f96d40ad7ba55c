package models

import "time"

// ContainerStatus is the lifecycle state of a workflow's execution container.
type ContainerStatus string

const (
	ContainerStatusStopped ContainerStatus = "stopped"
	ContainerStatusPending ContainerStatus = "pending"
	ContainerStatusRunning ContainerStatus = "running"
	ContainerStatusError   ContainerStatus = "error"
)

// ContainerInfo is the lifecycle record tracked per artifact id.
type ContainerInfo struct {
	ArtifactID  string          `json:"artifact_id"`
	Status      ContainerStatus `json:"status"`
	ContainerID string          `json:"container_id,omitempty"`
	Port        int             `json:"port,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	StartTime   *time.Time      `json:"start_time,omitempty"`
	ExecutionID string          `json:"execution_id,omitempty"`
}

// ExecutionState is the sub-state of an in-flight execution request.
type ExecutionState string

const (
	ExecutionStateQueued    ExecutionState = "queued"
	ExecutionStateRunning   ExecutionState = "running"
	ExecutionStateCompleted ExecutionState = "completed"
	ExecutionStateFailed    ExecutionState = "failed"
)

// Terminal reports whether the state will no longer change.
func (s ExecutionState) Terminal() bool {
	return s == ExecutionStateCompleted || s == ExecutionStateFailed
}

// ExecutionStatus is the caller-facing view of a tracked execution.
type ExecutionStatus struct {
	ExecutionID string         `json:"execution_id,omitempty"`
	Status      ExecutionState `json:"status"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// ExecutionLog is one timestamped progress entry for an execution.
type ExecutionLog struct {
	Timestamp time.Time      `json:"timestamp"`
	Status    ExecutionState `json:"status"`
	Message   string         `json:"message"`
}

// ExecutionInfo is the worker-side record of a submitted execution,
// including its progress log.
type ExecutionInfo struct {
	ID        string         `json:"id"`
	Status    ExecutionState `json:"status"`
	StartTime time.Time      `json:"start_time"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Logs      []ExecutionLog `json:"logs,omitempty"`
}
