// Package events defines event types for container lifecycle and execution
// tracking notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries all lifecycle and execution events.
const Topic = "actflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Container lifecycle events.
	ContainerStartedEvent   EventType = "container.started"
	ContainerStoppedEvent   EventType = "container.stopped"
	ContainerUnhealthyEvent EventType = "container.unhealthy"

	// Execution tracking events.
	ExecutionQueuedEvent    EventType = "execution.queued"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	ArtifactID string    `json:"artifact_id"`
}

func NewBaseEvent(eventType EventType, artifactID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		ArtifactID: artifactID,
	}
}

type ContainerStarted struct {
	BaseEvent

	ContainerID string `json:"container_id"`
	Port        int    `json:"port"`
}

func (c ContainerStarted) GetType() EventType {
	return ContainerStartedEvent
}

type ContainerStopped struct {
	BaseEvent

	ContainerID string `json:"container_id"`
}

func (c ContainerStopped) GetType() EventType {
	return ContainerStoppedEvent
}

type ContainerUnhealthy struct {
	BaseEvent

	Error string `json:"error"`
}

func (c ContainerUnhealthy) GetType() EventType {
	return ContainerUnhealthyEvent
}

type ExecutionQueued struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionQueued) GetType() EventType {
	return ExecutionQueuedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Result      any    `json:"result,omitempty"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Error       string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}
