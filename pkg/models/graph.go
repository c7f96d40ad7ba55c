package models

// Role classifies a node by its connectivity. Roles are derived on every
// conversion and never persisted.
type Role string

const (
	RoleInput   Role = "input"   // start node, or sources with no inbound edges
	RoleOutput  Role = "output"  // sinks with no outbound edges
	RoleCore    Role = "core"    // both inbound and outbound edges
	RoleDefault Role = "default" // isolated nodes
)

// Handle identifiers used for deterministic edge attachment: edges always
// leave a node on the right and enter on the left.
const (
	HandleSourceRight = "right-source"
	HandleTargetLeft  = "left-target"
)

// Data keys that are derived or editor-internal and must not be written
// back into the document when converting a graph to text.
const (
	GraphDataRole = "role"
)

// GraphNode is the positioned editor representation of a document node.
type GraphNode struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data"`
}

// GraphEdge is a rendered connection between two graph nodes.
type GraphEdge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle"`
	TargetHandle string `json:"targetHandle"`
}
