package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/actflow/actflow/pkg/models"
	"github.com/go-playground/validator/v10"
)

// ValidationError reports why a document was refused by the strict path.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "workflow validation failed: " + strings.Join(e.Reasons, "; ")
}

// IsValidationError reports whether err is a strict-path validation failure.
func IsValidationError(err error) bool {
	var target *ValidationError

	return errors.As(err, &target)
}

// AsValidationError unwraps err into a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var target *ValidationError
	if errors.As(err, &target) {
		return target, true
	}

	return nil, false
}

// Normalize applies the lenient repairs in place: workflow and node defaults,
// the params mapping invariant, dropping edges with unknown endpoints and
// rewriting a dangling start node to the first declared node. It never fails;
// the editing path must not block on incomplete content.
func Normalize(doc *models.Workflow) {
	if doc.Name == "" {
		doc.Name = models.DefaultWorkflowName
	}

	if doc.Description == "" {
		doc.Description = models.DefaultWorkflowDescription
	}

	for _, node := range doc.Nodes {
		node.ApplyDefaults()
	}

	doc.Edges = doc.ValidEdges()

	if doc.StartNode == "" || !doc.HasNode(doc.StartNode) {
		doc.StartNode = doc.FirstNodeID()
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStrict enforces the execution-gating schema: at least one node,
// every node carrying a type and app name, a resolvable start node and
// referentially valid edges. Callers run it on documents that already went
// through the lenient path, so failures here mean the content is genuinely
// incomplete rather than merely unrepaired.
func ValidateStrict(doc *models.Workflow) error {
	var reasons []string

	if len(doc.Nodes) == 0 {
		reasons = append(reasons, "workflow defines no nodes")
	}

	if err := validate.Struct(doc); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			for _, fieldError := range fieldErrors {
				reasons = append(reasons, fmt.Sprintf("%s failed %s validation", fieldError.Namespace(), fieldError.Tag()))
			}
		} else {
			reasons = append(reasons, err.Error())
		}
	}

	if doc.StartNode != "" && !doc.HasNode(doc.StartNode) {
		reasons = append(reasons, fmt.Sprintf("start_node %q does not resolve to a defined node", doc.StartNode))
	}

	for _, node := range doc.Nodes {
		if node.Params == nil {
			reasons = append(reasons, fmt.Sprintf("node %q has no params mapping", node.ID))
		}
	}

	for _, edge := range doc.Edges {
		if !doc.HasNode(edge.Source) || !doc.HasNode(edge.Target) {
			reasons = append(reasons, fmt.Sprintf("edge %s -> %s references an undefined node", edge.Source, edge.Target))
		}
	}

	if len(reasons) > 0 {
		return &ValidationError{Reasons: reasons}
	}

	return nil
}
