// Package models defines the document model for ACT workflow definitions.
package models

// Workflow is the root document model produced by parsing ACT text.
//
// Nodes are keyed by node id; NodeOrder records declaration order so
// serialization stays stable across parse/serialize cycles.
type Workflow struct {
	WorkflowID  string            `json:"workflow_id,omitempty"`
	Name        string            `json:"name"        validate:"required"`
	Description string            `json:"description" validate:"required"`
	StartNode   string            `json:"start_node"  validate:"required"`
	Nodes       map[string]*Node  `json:"nodes"       validate:"required,min=1,dive,required"`
	NodeOrder   []string          `json:"node_order"`
	Edges       []Edge            `json:"edges"`
	Env         map[string]string `json:"env,omitempty"`
}

// Edge is a directed connection between two nodes. It is only valid when
// both endpoints exist in the owning workflow's node table.
type Edge struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// NewWorkflow returns an empty document with all collections initialized.
func NewWorkflow() *Workflow {
	return &Workflow{
		Nodes:     make(map[string]*Node),
		NodeOrder: make([]string, 0),
		Edges:     make([]Edge, 0),
		Env:       make(map[string]string),
	}
}

// AddNode inserts a node, appending to the declaration order on first sight.
// Re-adding an existing id replaces the record but keeps its position in the
// order.
func (w *Workflow) AddNode(node *Node) {
	if _, exists := w.Nodes[node.ID]; !exists {
		w.NodeOrder = append(w.NodeOrder, node.ID)
	}

	w.Nodes[node.ID] = node
}

// HasNode reports whether the id resolves to a defined node.
func (w *Workflow) HasNode(id string) bool {
	_, ok := w.Nodes[id]

	return ok
}

// OrderedNodes returns nodes in declaration order, skipping ids whose
// records have been removed.
func (w *Workflow) OrderedNodes() []*Node {
	nodes := make([]*Node, 0, len(w.NodeOrder))

	for _, id := range w.NodeOrder {
		if node, ok := w.Nodes[id]; ok {
			nodes = append(nodes, node)
		}
	}

	return nodes
}

// FirstNodeID returns the first declared node id, or "" for an empty document.
func (w *Workflow) FirstNodeID() string {
	for _, id := range w.NodeOrder {
		if _, ok := w.Nodes[id]; ok {
			return id
		}
	}

	return ""
}

// ValidEdges filters the edge list down to pairs whose endpoints both exist.
func (w *Workflow) ValidEdges() []Edge {
	edges := make([]Edge, 0, len(w.Edges))

	for _, edge := range w.Edges {
		if w.HasNode(edge.Source) && w.HasNode(edge.Target) {
			edges = append(edges, edge)
		}
	}

	return edges
}
