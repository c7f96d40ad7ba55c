package web

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Container states reported by a Runtime.
const (
	RuntimeStateRunning  = "running"
	RuntimeStateStopped  = "stopped"
	RuntimeStateNotFound = "not found"
)

// Runtime abstracts the container engine behind the manager service so
// handlers can be tested without Docker.
type Runtime interface {
	Ping(ctx context.Context) error
	Start(ctx context.Context, artifactID string, port int) (string, error)
	Stop(ctx context.Context, containerID string) error
	Status(ctx context.Context, containerID string) (string, error)
}

// DockerRuntime shells out to the docker CLI. Worker containers expose the
// execution API on workerPort inside the container; the given host port is
// published onto it.
type DockerRuntime struct {
	Image      string
	Network    string
	WorkerPort int
}

func NewDockerRuntime(image, network string, workerPort int) *DockerRuntime {
	if workerPort <= 0 {
		workerPort = 5002
	}

	return &DockerRuntime{Image: image, Network: network, WorkerPort: workerPort}
}

func (r *DockerRuntime) Ping(ctx context.Context) error {
	if output, err := exec.CommandContext(ctx, "docker", "version", "--format", "{{.Server.Version}}").CombinedOutput(); err != nil {
		return fmt.Errorf("docker unavailable: %s", strings.TrimSpace(string(output)))
	}

	return nil
}

func (r *DockerRuntime) Start(ctx context.Context, artifactID string, port int) (string, error) {
	args := []string{
		"run", "-d",
		"--name", "flow-" + artifactID,
		"-p", fmt.Sprintf("%d:%d", port, r.WorkerPort),
		"-e", fmt.Sprintf("PORT=%d", r.WorkerPort),
		"-e", "ARTIFACT_ID=" + artifactID,
	}

	if r.Network != "" {
		args = append(args, "--network", r.Network)
	}

	args = append(args, r.Image)

	output, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker run failed: %s", strings.TrimSpace(string(output)))
	}

	return strings.TrimSpace(string(output)), nil
}

func (r *DockerRuntime) Stop(ctx context.Context, containerID string) error {
	if output, err := exec.CommandContext(ctx, "docker", "rm", "-f", containerID).CombinedOutput(); err != nil {
		return fmt.Errorf("docker rm failed: %s", strings.TrimSpace(string(output)))
	}

	return nil
}

func (r *DockerRuntime) Status(ctx context.Context, containerID string) (string, error) {
	output, err := exec.CommandContext(ctx, "docker", "inspect", "-f", "{{.State.Status}}", containerID).CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "No such object") {
			return RuntimeStateNotFound, nil
		}

		return "", fmt.Errorf("docker inspect failed: %s", strings.TrimSpace(string(output)))
	}

	switch state := strings.TrimSpace(string(output)); state {
	case "running":
		return RuntimeStateRunning, nil
	case "exited", "created", "dead", "removing":
		return RuntimeStateStopped, nil
	default:
		return state, nil
	}
}
