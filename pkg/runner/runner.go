// Package runner executes parsed workflow documents node by node through a
// registry of operations.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/actflow/actflow/pkg/codec"
	"github.com/actflow/actflow/pkg/models"
	"github.com/actflow/actflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ExecutionContext carries per-run state into operations.
type ExecutionContext struct {
	context.Context

	WorkflowID string
	Env        map[string]string
	Logger     *slog.Logger
}

// NodeResult records the outcome of a single node execution.
type NodeResult struct {
	NodeID    string         `json:"node_id"`
	Operation string         `json:"operation"`
	Status    string         `json:"status"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
}

const (
	NodeStatusCompleted = "completed"
	NodeStatusFailed    = "failed"
)

// Result is the outcome of a whole document run.
type Result struct {
	WorkflowID string                `json:"workflow_id,omitempty"`
	Executed   []string              `json:"executed"`
	Results    map[string]NodeResult `json:"results"`
}

// Runner drives document execution. A nil tracer disables span emission.
type Runner struct {
	logger   *slog.Logger
	registry *Registry
	tracer   trace.Tracer
}

func NewRunner(registry *Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		logger:   logger.With("module", "runner"),
		registry: registry,
	}
}

// WithTracer enables per-node span emission.
func (r *Runner) WithTracer(tracer trace.Tracer) *Runner {
	r.tracer = tracer

	return r
}

// RunText strict-parses ACT text and executes the resulting document.
func (r *Runner) RunText(ctx context.Context, text string) (*Result, error) {
	workflow, err := codec.ParseStrict(text)
	if err != nil {
		return nil, fmt.Errorf("document rejected: %w", err)
	}

	return r.Run(ctx, workflow)
}

// Run executes every schedulable node of the document in derived order.
// The first node failure stops the run; the partial result is returned
// alongside the error so callers can report what did execute.
func (r *Runner) Run(ctx context.Context, workflow *models.Workflow) (*Result, error) {
	order := ExecutionOrder(workflow)

	result := &Result{
		WorkflowID: workflow.WorkflowID,
		Executed:   make([]string, 0, len(order)),
		Results:    make(map[string]NodeResult, len(order)),
	}

	execCtx := ExecutionContext{
		Context:    ctx,
		WorkflowID: workflow.WorkflowID,
		Env:        workflow.Env,
		Logger:     r.logger,
	}

	inputs := make(map[string]any, len(order))

	r.logger.Info("starting document execution", "workflow_id", workflow.WorkflowID, "nodes", len(order))

	for _, nodeID := range order {
		node := workflow.Nodes[nodeID]
		operation := r.registry.Resolve(node.Operation)

		nodeResult, err := r.executeNode(execCtx, node, operation, inputs)
		result.Results[nodeID] = nodeResult

		if err != nil {
			r.logger.Error("node execution failed", "workflow_id", workflow.WorkflowID, "node_id", nodeID, "error", err)

			return result, fmt.Errorf("node %s: %w", nodeID, err)
		}

		result.Executed = append(result.Executed, nodeID)
		inputs[nodeID] = nodeResult.Output
	}

	return result, nil
}

func (r *Runner) executeNode(execCtx ExecutionContext, node *models.Node, operation Operation, inputs map[string]any) (NodeResult, error) {
	if r.tracer != nil {
		spanCtx, span := otelhelper.StartSpan(execCtx.Context, r.tracer, "runner.execute_node",
			attribute.String(otelhelper.WorkflowIDKey, execCtx.WorkflowID),
			attribute.String(otelhelper.NodeIDKey, node.ID),
			attribute.String(otelhelper.NodeTypeKey, node.Type),
			attribute.String(otelhelper.OperationKey, node.Operation),
		)
		defer span.End()

		execCtx.Context = spanCtx

		nodeResult, err := r.runOperation(execCtx, node, operation, inputs)
		if err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, node.ID))
		}

		return nodeResult, err
	}

	return r.runOperation(execCtx, node, operation, inputs)
}

func (r *Runner) runOperation(execCtx ExecutionContext, node *models.Node, operation Operation, inputs map[string]any) (NodeResult, error) {
	r.logger.Info("executing node", "node_id", node.ID, "operation", node.Operation)

	if err := r.registry.ValidateParams(node.Operation, node.Params); err != nil {
		return NodeResult{
			NodeID:    node.ID,
			Operation: node.Operation,
			Status:    NodeStatusFailed,
			Error:     err.Error(),
		}, err
	}

	output, err := operation.Execute(execCtx, node, inputs)
	if err != nil {
		return NodeResult{
			NodeID:    node.ID,
			Operation: node.Operation,
			Status:    NodeStatusFailed,
			Error:     err.Error(),
		}, err
	}

	return NodeResult{
		NodeID:    node.ID,
		Operation: node.Operation,
		Status:    NodeStatusCompleted,
		Output:    output,
	}, nil
}
