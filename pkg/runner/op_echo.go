package runner

import (
	"fmt"

	"github.com/actflow/actflow/pkg/models"
)

// EchoOperation is the fallback for operation names with no registered
// implementation. It reports what would have run instead of failing, so
// documents authored against richer deployments still execute end to end.
type EchoOperation struct{}

func (o *EchoOperation) ID() string {
	return "noop"
}

func (o *EchoOperation) Execute(_ ExecutionContext, node *models.Node, _ map[string]any) (map[string]any, error) {
	return map[string]any{
		"output": fmt.Sprintf("executed %s with params %v", node.Operation, node.Params),
		"params": node.Params,
	}, nil
}
