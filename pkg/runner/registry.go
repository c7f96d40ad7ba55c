package runner

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/actflow/actflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// Operation executes one node of a workflow document. Implementations read
// the node's params and the outputs of previously executed nodes.
type Operation interface {
	ID() string
	Execute(ctx ExecutionContext, node *models.Node, inputs map[string]any) (map[string]any, error)
}

// Registry maps operation names to implementations and their params schemas.
type Registry struct {
	logger     *slog.Logger
	operations map[string]Operation
	schemas    map[string]map[string]any
	fallback   Operation
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger:     logger.With("module", "runner"),
		operations: make(map[string]Operation),
		schemas:    make(map[string]map[string]any),
		fallback:   &EchoOperation{},
	}
}

// DefaultRegistry returns a registry with all built-in operations installed.
func DefaultRegistry(logger *slog.Logger) *Registry {
	registry := NewRegistry(logger)
	registry.Register(NewHTTPRequestOperation(), httpRequestSchema())
	registry.Register(NewLogMessageOperation(), logMessageSchema())
	registry.Register(NewDataTransformOperation(), dataTransformSchema())

	return registry
}

// Register installs an operation with an optional JSON schema for its params.
func (r *Registry) Register(operation Operation, schema map[string]any) {
	r.operations[operation.ID()] = operation

	if schema != nil {
		r.schemas[operation.ID()] = schema
	}
}

// Resolve returns the operation registered under the given name, falling
// back to the echo operation for unknown names so every node can run.
func (r *Registry) Resolve(name string) Operation {
	if operation, ok := r.operations[name]; ok {
		return operation
	}

	return r.fallback
}

// ValidateParams checks node params against the operation's registered
// schema. Operations without a schema accept anything.
func (r *Registry) ValidateParams(name string, params map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(params)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("params schema validation failed for %s: %w", name, err)
	}

	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, issue := range result.Errors() {
			reasons = append(reasons, issue.String())
		}

		return fmt.Errorf("invalid params for %s: %s", name, strings.Join(reasons, "; "))
	}

	return nil
}
