package runner

import (
	"github.com/actflow/actflow/pkg/models"
)

// ExecutionOrder derives the node execution order for a document: a
// depth-first traversal from every root (nodes with no incoming edge) in
// declaration order, emitted in reverse post-order so parents run before
// their children. Nodes only reachable through a cycle are never scheduled.
func ExecutionOrder(workflow *models.Workflow) []string {
	edges := workflow.ValidEdges()

	targets := make(map[string]bool, len(edges))
	for _, edge := range edges {
		targets[edge.Target] = true
	}

	children := make(map[string][]string, len(edges))
	for _, edge := range edges {
		children[edge.Source] = append(children[edge.Source], edge.Target)
	}

	visited := make(map[string]bool, len(workflow.Nodes))
	order := make([]string, 0, len(workflow.Nodes))

	var visit func(nodeID string)
	visit = func(nodeID string) {
		if visited[nodeID] {
			return
		}

		visited[nodeID] = true

		for _, child := range children[nodeID] {
			visit(child)
		}

		order = append(order, nodeID)
	}

	for _, node := range workflow.OrderedNodes() {
		if !targets[node.ID] {
			visit(node.ID)
		}
	}

	for left, right := 0, len(order)-1; left < right; left, right = left+1, right-1 {
		order[left], order[right] = order[right], order[left]
	}

	return order
}
