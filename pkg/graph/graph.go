// Package graph keeps a positioned node/edge graph and the textual document
// model consistent under edits originating from either side.
package graph

import (
	"math"

	"github.com/actflow/actflow/pkg/codec"
	"github.com/actflow/actflow/pkg/models"
)

// Data keys that exist only in the editor and are stripped when converting a
// graph back to a document.
var derivedDataKeys = map[string]struct{}{
	models.GraphDataRole: {},
	"onChange":           {},
	"sourceConnections":  {},
	"targetConnections":  {},
}

// ToGraph converts a document into graph nodes and edges. Roles are derived
// from connectivity on every call, never stored, so repeated conversions of
// the same document always agree. Edge handles follow the fixed
// output-right/input-left convention.
func ToGraph(doc *models.Workflow) ([]models.GraphNode, []models.GraphEdge) {
	roles := deriveRoles(doc)

	nodes := make([]models.GraphNode, 0, len(doc.Nodes))

	for _, node := range doc.OrderedNodes() {
		nodeType := node.Type
		if nodeType == "" {
			nodeType = models.NodeTypeDefault
		}

		data := map[string]any{
			"label":         node.Label,
			"operation":     node.Operation,
			"operationName": node.OperationName,
			"appName":       node.AppName,
			"mode":          node.Mode,
			"params":        codec.NormalizeParams(node.Params),
		}
		data[models.GraphDataRole] = string(roles[node.ID])

		if node.APIKey != "" {
			data["apiKey"] = node.APIKey
		}

		if node.Token != "" {
			data["token"] = node.Token
		}

		if node.Method != "" {
			data["method"] = node.Method
		}

		if len(node.FormData) > 0 {
			data["formData"] = node.FormData
		}

		for key, value := range node.Extra {
			data[key] = value
		}

		nodes = append(nodes, models.GraphNode{
			ID:       node.ID,
			Type:     nodeType,
			Position: node.Position,
			Data:     data,
		})
	}

	edges := make([]models.GraphEdge, 0, len(doc.Edges))

	for _, edge := range doc.ValidEdges() {
		edges = append(edges, models.GraphEdge{
			ID:           edgeKey(edge.Source, edge.Target),
			Source:       edge.Source,
			Target:       edge.Target,
			SourceHandle: models.HandleSourceRight,
			TargetHandle: models.HandleTargetLeft,
		})
	}

	return nodes, edges
}

// deriveRoles classifies every node: the start node and pure sources are
// inputs, pure sinks are outputs, nodes with traffic in both directions are
// core, and isolated nodes fall through to default.
func deriveRoles(doc *models.Workflow) map[string]models.Role {
	incoming := make(map[string]int)
	outgoing := make(map[string]int)

	for _, edge := range doc.ValidEdges() {
		outgoing[edge.Source]++
		incoming[edge.Target]++
	}

	roles := make(map[string]models.Role, len(doc.Nodes))

	for id := range doc.Nodes {
		in, out := incoming[id], outgoing[id]

		switch {
		case id == doc.StartNode || (out > 0 && in == 0):
			roles[id] = models.RoleInput
		case in > 0 && out == 0:
			roles[id] = models.RoleOutput
		case in > 0 && out > 0:
			roles[id] = models.RoleCore
		default:
			roles[id] = models.RoleDefault
		}
	}

	return roles
}

// BuildDocument converts graph state back into a document. base, when
// non-nil, supplies the workflow metadata (id, name, description, env) that
// the graph does not carry; the workflow id in particular must survive every
// conversion. Positions are rounded to integers and params re-normalized;
// derived editor keys are excluded.
func BuildDocument(base *models.Workflow, nodes []models.GraphNode, edges []models.GraphEdge) *models.Workflow {
	doc := models.NewWorkflow()

	if base != nil {
		doc.WorkflowID = base.WorkflowID
		doc.Name = base.Name
		doc.Description = base.Description
		doc.StartNode = base.StartNode

		for key, value := range base.Env {
			doc.Env[key] = value
		}
	}

	for _, graphNode := range nodes {
		doc.AddNode(documentNode(graphNode))
	}

	for _, graphEdge := range edges {
		doc.Edges = append(doc.Edges, models.Edge{Source: graphEdge.Source, Target: graphEdge.Target})
	}

	codec.Normalize(doc)

	return doc
}

func documentNode(graphNode models.GraphNode) *models.Node {
	node := models.NewNode(graphNode.ID)

	if graphNode.Type != "" {
		node.Type = graphNode.Type
	}

	node.Position = models.Position{
		X: math.Round(graphNode.Position.X),
		Y: math.Round(graphNode.Position.Y),
	}

	for key, value := range graphNode.Data {
		if _, derived := derivedDataKeys[key]; derived {
			continue
		}

		switch key {
		case "label":
			node.Label = coerceString(value)
		case "operation":
			node.Operation = coerceString(value)
		case "operationName":
			node.OperationName = coerceString(value)
		case "appName":
			node.AppName = coerceString(value)
		case "mode":
			node.Mode = coerceString(value)
		case "params":
			node.Params = codec.NormalizeParams(value)
		case "apiKey":
			node.APIKey = coerceString(value)
		case "token":
			node.Token = coerceString(value)
		case "method":
			node.Method = coerceString(value)
		case "formData":
			node.FormData = codec.NormalizeParams(value)
		default:
			if node.Extra == nil {
				node.Extra = make(map[string]any)
			}

			node.Extra[key] = value
		}
	}

	node.ApplyDefaults()

	return node
}

func coerceString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}

	return ""
}

func edgeKey(source, target string) string {
	return source + "->" + target
}
