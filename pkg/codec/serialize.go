package codec

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/actflow/actflow/pkg/models"
)

// Serialize renders a document back to ACT text: the [workflow] header, one
// [node:ID] block per node in declaration order, [edges] limited to
// referentially valid pairs, and [env] when non-empty. Output is not
// byte-identical to the original input, but re-parsing it yields an equal
// document.
func Serialize(doc *models.Workflow) string {
	var b strings.Builder

	b.WriteString("[workflow]\n")

	if doc.WorkflowID != "" {
		writeAssignment(&b, "workflow_id", doc.WorkflowID)
	}

	writeAssignment(&b, "name", doc.Name)
	writeAssignment(&b, "description", doc.Description)

	if doc.StartNode != "" {
		writeAssignment(&b, "start_node", doc.StartNode)
	}

	for _, node := range doc.OrderedNodes() {
		b.WriteString("\n[node:" + node.ID + "]\n")
		writeNode(&b, node)
	}

	validEdges := doc.ValidEdges()
	if len(validEdges) > 0 {
		b.WriteString("\n[edges]\n")

		for _, edge := range validEdges {
			writeAssignment(&b, edge.Source, edge.Target)
		}
	}

	if len(doc.Env) > 0 {
		b.WriteString("\n[env]\n")

		for _, key := range sortedKeys(doc.Env) {
			writeAssignment(&b, key, doc.Env[key])
		}
	}

	return b.String()
}

// writeNode emits the modeled keys in a fixed order, then optional fields
// and unknown keys. The synthetic id key is never written; empty values are
// skipped.
func writeNode(b *strings.Builder, node *models.Node) {
	writeAssignment(b, "type", node.Type)
	writeAssignment(b, "label", node.Label)
	writeAssignment(b, "positionX", node.Position.X)
	writeAssignment(b, "positionY", node.Position.Y)
	writeAssignment(b, "operation", node.Operation)
	writeAssignment(b, "operationName", node.OperationName)
	writeAssignment(b, "appName", node.AppName)
	writeAssignment(b, "mode", node.Mode)
	writeAssignment(b, "params", node.Params)

	if node.APIKey != "" {
		writeAssignment(b, "apiKey", node.APIKey)
	}

	if node.Token != "" {
		writeAssignment(b, "token", node.Token)
	}

	if node.Method != "" {
		writeAssignment(b, "method", node.Method)
	}

	if len(node.FormData) > 0 {
		writeAssignment(b, "formData", node.FormData)
	}

	for _, key := range sortedAnyKeys(node.Extra) {
		writeAssignment(b, key, node.Extra[key])
	}
}

func writeAssignment(b *strings.Builder, key string, value any) {
	b.WriteString(key)
	b.WriteString(" = ")
	b.WriteString(formatValue(value))
	b.WriteString("\n")
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return strconv.Quote(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "{}"
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "{}"
		}

		return string(encoded)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

func sortedAnyKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
