package web

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/actflow/actflow/pkg/models"
	"github.com/actflow/actflow/pkg/worker"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// WorkerHandlers expose the in-container execution API backed by a
// worker.Service.
type WorkerHandlers struct {
	logger     *slog.Logger
	service    *worker.Service
	buffer     *worker.LogBuffer
	artifactID string
	port       int
	started    time.Time
}

func NewWorkerHandlers(service *worker.Service, buffer *worker.LogBuffer, artifactID string, port int, logger *slog.Logger) *WorkerHandlers {
	if logger == nil {
		logger = slog.Default()
	}

	return &WorkerHandlers{
		logger:     logger.With("module", "worker_api"),
		service:    service,
		buffer:     buffer,
		artifactID: artifactID,
		port:       port,
		started:    time.Now().UTC(),
	}
}

// NewWorkerApp assembles the worker service's fiber application.
func NewWorkerApp(handlers *WorkerHandlers) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Post("/execute", handlers.Execute)
	app.Get("/status/:id", handlers.ExecutionStatus)
	app.Get("/logs", handlers.Logs)
	app.Get("/health", handlers.HealthCheck)

	return app
}

type executeRequest struct {
	Content string `json:"content"`
}

// Execute accepts a workflow document and queues it for execution.
func (h *WorkerHandlers) Execute(c fiber.Ctx) error {
	var req executeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status": "error",
			"error":  "missing workflow content",
		})
	}

	executionID, err := h.service.Submit(c.Context(), req.Content)
	if err != nil {
		if errors.Is(err, worker.ErrQueueFull) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "error",
				"error":  err.Error(),
			})
		}

		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":      "accepted",
		"executionId": executionID,
		"message":     "workflow queued for execution",
	})
}

// ExecutionStatus reports the state of one tracked execution.
func (h *WorkerHandlers) ExecutionStatus(c fiber.Ctx) error {
	executionID := c.Params("id")

	info, ok, err := h.service.Status(c.Context(), executionID)
	if err != nil {
		return internalError(c, err)
	}

	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status": "error",
			"error":  "execution not found",
		})
	}

	response := fiber.Map{
		"executionId": info.ID,
		"status":      info.Status,
		"startTime":   info.StartTime,
	}

	switch info.Status {
	case models.ExecutionStateCompleted:
		response["result"] = info.Result
	case models.ExecutionStateFailed:
		response["error"] = info.Error
	}

	return c.JSON(response)
}

// Logs dumps the in-memory log ring as plain text, falling back to
// per-execution progress logs when the ring is empty.
func (h *WorkerHandlers) Logs(c fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)

	if h.buffer != nil && h.buffer.Len() > 0 {
		return c.SendString(h.buffer.Dump())
	}

	text := ""

	stats, err := h.service.Stats(c.Context())
	if err == nil && stats.Active > 0 {
		text = h.executionHistoryText(c)
	}

	if text == "" {
		text = fmt.Sprintf("artifact: %s\nno logs available, worker may be newly started", h.artifactID)
	}

	return c.SendString(text)
}

func (h *WorkerHandlers) executionHistoryText(c fiber.Ctx) string {
	records, err := h.service.History(c.Context())
	if err != nil {
		return ""
	}

	text := ""

	for _, info := range records {
		for _, entry := range info.Logs {
			text += fmt.Sprintf("%s - execution %s - %s - %s\n", entry.Timestamp.Format(time.DateTime), info.ID, entry.Status, entry.Message)
		}
	}

	return text
}

// HealthCheck reports worker liveness plus execution statistics.
func (h *WorkerHandlers) HealthCheck(c fiber.Ctx) error {
	stats, err := h.service.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": "error",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status":         "healthy",
		"service":        "actflow-worker-" + h.artifactID,
		"port":           h.port,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"executions":     stats,
	})
}
