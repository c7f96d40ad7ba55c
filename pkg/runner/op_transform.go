package runner

import (
	"fmt"

	"github.com/actflow/actflow/pkg/models"
)

// DataTransformOperation picks and renames fields from a prior node's
// output. Params: source (node id), fields (output key -> source key).
type DataTransformOperation struct{}

func NewDataTransformOperation() *DataTransformOperation {
	return &DataTransformOperation{}
}

func (o *DataTransformOperation) ID() string {
	return "data.transform"
}

func (o *DataTransformOperation) Execute(_ ExecutionContext, node *models.Node, inputs map[string]any) (map[string]any, error) {
	sourceID, _ := node.Params["source"].(string)
	if sourceID == "" {
		return nil, fmt.Errorf("node %s: missing required param 'source'", node.ID)
	}

	sourceOutput, ok := inputs[sourceID].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("node %s: no output available from source node %s", node.ID, sourceID)
	}

	fields, ok := node.Params["fields"].(map[string]any)
	if !ok || len(fields) == 0 {
		// Without a field mapping the transform passes the source through.
		return sourceOutput, nil
	}

	output := make(map[string]any, len(fields))

	for outputKey, mapping := range fields {
		sourceKey, ok := mapping.(string)
		if !ok {
			return nil, fmt.Errorf("node %s: field mapping for %q must be a string", node.ID, outputKey)
		}

		value, ok := sourceOutput[sourceKey]
		if !ok {
			return nil, fmt.Errorf("node %s: source node %s has no field %q", node.ID, sourceID, sourceKey)
		}

		output[outputKey] = value
	}

	return output, nil
}

func dataTransformSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source": map[string]any{
				"type":        "string",
				"description": "Node id whose output feeds the transform",
			},
			"fields": map[string]any{
				"type":        "object",
				"description": "Output key to source key mapping",
			},
		},
		"required": []string{"source"},
	}
}
