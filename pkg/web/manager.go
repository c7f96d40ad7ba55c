// Package web provides the HTTP surfaces of the manager and worker services.
package web

import (
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

const defaultBasePort = 5002

// managedContainer tracks one worker container owned by the manager.
type managedContainer struct {
	ContainerID string
	Port        int
}

// ManagerHandlers implements the backing execution service: it starts, stops
// and inspects worker containers through a Runtime.
type ManagerHandlers struct {
	logger   *slog.Logger
	runtime  Runtime
	basePort int

	mu         sync.Mutex
	containers map[string]managedContainer
}

func NewManagerHandlers(runtime Runtime, basePort int, logger *slog.Logger) *ManagerHandlers {
	if logger == nil {
		logger = slog.Default()
	}

	if basePort <= 0 {
		basePort = defaultBasePort
	}

	return &ManagerHandlers{
		logger:     logger.With("module", "manager"),
		runtime:    runtime,
		basePort:   basePort,
		containers: make(map[string]managedContainer),
	}
}

// NewManagerApp assembles the manager service's fiber application.
func NewManagerApp(handlers *ManagerHandlers) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/health", handlers.HealthCheck)

	container := app.Group("/container")
	container.Post("/start", handlers.StartContainer)
	container.Post("/stop", handlers.StopContainer)
	container.Post("/health", handlers.ContainerHealth)

	return app
}

type artifactRequest struct {
	ArtifactID string `json:"artifactId"`
}

// HealthCheck reports whether the container engine is reachable.
func (h *ManagerHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.runtime.Ping(c.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "actflow-manager",
	})
}

// StartContainer starts a worker container for the artifact, replacing any
// container already recorded for it.
func (h *ManagerHandlers) StartContainer(c fiber.Ctx) error {
	var req artifactRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if req.ArtifactID == "" {
		return badRequest(c, "missing artifactId")
	}

	// Replace semantics: a stale container for this artifact is torn down
	// first, best effort.
	h.mu.Lock()
	existing, hadExisting := h.containers[req.ArtifactID]
	h.mu.Unlock()

	if hadExisting {
		if err := h.runtime.Stop(c.Context(), existing.ContainerID); err != nil {
			h.logger.Warn("failed to remove stale container", "artifact_id", req.ArtifactID, "container_id", existing.ContainerID, "error", err)
		}
	}

	port := h.allocatePort(req.ArtifactID)

	containerID, err := h.runtime.Start(c.Context(), req.ArtifactID, port)
	if err != nil {
		h.logger.Error("failed to start container", "artifact_id", req.ArtifactID, "error", err)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": "error",
			"error":  err.Error(),
		})
	}

	h.mu.Lock()
	h.containers[req.ArtifactID] = managedContainer{ContainerID: containerID, Port: port}
	h.mu.Unlock()

	h.logger.Info("container started", "artifact_id", req.ArtifactID, "container_id", containerID, "port", port)

	return c.JSON(fiber.Map{
		"status":      "success",
		"containerId": containerID,
		"port":        port,
	})
}

// StopContainer tears down the artifact's container. Unknown artifacts and
// runtime removal failures both report success, matching the service's
// best-effort contract.
func (h *ManagerHandlers) StopContainer(c fiber.Ctx) error {
	var req artifactRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if req.ArtifactID == "" {
		return badRequest(c, "missing artifactId")
	}

	h.mu.Lock()
	existing, ok := h.containers[req.ArtifactID]
	delete(h.containers, req.ArtifactID)
	h.mu.Unlock()

	if ok {
		if err := h.runtime.Stop(c.Context(), existing.ContainerID); err != nil {
			h.logger.Warn("failed to stop container", "artifact_id", req.ArtifactID, "container_id", existing.ContainerID, "error", err)
		} else {
			h.logger.Info("container stopped", "artifact_id", req.ArtifactID, "container_id", existing.ContainerID)
		}
	}

	return c.JSON(fiber.Map{"status": "success"})
}

// ContainerHealth reports the runtime state of the artifact's container.
func (h *ManagerHandlers) ContainerHealth(c fiber.Ctx) error {
	var req artifactRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if req.ArtifactID == "" {
		return badRequest(c, "missing artifactId")
	}

	h.mu.Lock()
	existing, ok := h.containers[req.ArtifactID]
	h.mu.Unlock()

	if !ok {
		return c.JSON(fiber.Map{"status": RuntimeStateStopped})
	}

	state, err := h.runtime.Status(c.Context(), existing.ContainerID)
	if err != nil {
		h.logger.Error("failed to inspect container", "artifact_id", req.ArtifactID, "container_id", existing.ContainerID, "error", err)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": "error",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": state})
}

// allocatePort hands out host ports sequentially, skipping ports already
// assigned to live containers.
func (h *ManagerHandlers) allocatePort(artifactID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	inUse := make(map[int]bool, len(h.containers))
	for id, container := range h.containers {
		if id != artifactID {
			inUse[container.Port] = true
		}
	}

	port := h.basePort
	for inUse[port] {
		port++
	}

	return port
}
