package runner

import (
	"log/slog"

	"github.com/actflow/actflow/pkg/models"
)

// LogMessageOperation writes a message from node params to the run logger.
type LogMessageOperation struct{}

func NewLogMessageOperation() *LogMessageOperation {
	return &LogMessageOperation{}
}

func (o *LogMessageOperation) ID() string {
	return "log.message"
}

func (o *LogMessageOperation) Execute(execCtx ExecutionContext, node *models.Node, _ map[string]any) (map[string]any, error) {
	message, _ := node.Params["message"].(string)
	level, _ := node.Params["level"].(string)

	logger := execCtx.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("node_id", node.ID, "workflow_id", execCtx.WorkflowID)

	switch level {
	case "debug":
		logger.Debug(message)
	case "warn":
		logger.Warn(message)
	case "error":
		logger.Error(message)
	default:
		logger.Info(message)
	}

	return map[string]any{"logged": true, "message": message}, nil
}

func logMessageSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log",
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
		"required": []string{"message"},
	}
}
