package models

// Defaults applied by the lenient codec path when a node omits a field.
const (
	DefaultWorkflowName        = "Untitled Workflow"
	DefaultWorkflowDescription = "No description provided"
	DefaultNodeType            = "process"
	DefaultOperation           = "noop"
	DefaultOperationName       = "No Operation"
	DefaultAppName             = "System"
	DefaultMode                = "UC"
)

// NodeType categories understood by the editor. The codec does not enforce
// membership; unknown types render as "default" in the graph.
const (
	NodeTypeStart    = "start"
	NodeTypeProcess  = "process"
	NodeTypeDecision = "decision"
	NodeTypeEnd      = "end"
	NodeTypeError    = "error"
	NodeTypeDefault  = "default"
)

// Position holds editor layout coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single step in a workflow document.
//
// Params is always a mapping after validation, never a bare string or nil;
// execution reads configuration straight out of it. Extra carries keys the
// codec does not model so unknown assignments survive a round-trip.
type Node struct {
	ID            string            `json:"id"             validate:"required"`
	Type          string            `json:"type"           validate:"required"`
	Label         string            `json:"label"`
	Position      Position          `json:"position"`
	Operation     string            `json:"operation"`
	OperationName string            `json:"operation_name"`
	AppName       string            `json:"app_name"       validate:"required"`
	Mode          string            `json:"mode"`
	Params        map[string]any    `json:"params"`
	APIKey        string            `json:"api_key,omitempty"`
	Token         string            `json:"token,omitempty"`
	Method        string            `json:"method,omitempty"`
	FormData      map[string]any    `json:"form_data,omitempty"`
	Extra         map[string]any    `json:"extra,omitempty"`
}

// NewNode builds a node seeded with the documented defaults for the id.
func NewNode(id string) *Node {
	return &Node{
		ID:            id,
		Type:          DefaultNodeType,
		Label:         id,
		Operation:     DefaultOperation,
		OperationName: DefaultOperationName,
		AppName:       DefaultAppName,
		Mode:          DefaultMode,
		Params:        make(map[string]any),
	}
}

// ApplyDefaults fills any unset field in place. Params is reset to an empty
// mapping when nil so the params invariant holds even for hand-built nodes.
func (n *Node) ApplyDefaults() {
	if n.Type == "" {
		n.Type = DefaultNodeType
	}

	if n.Label == "" {
		n.Label = n.ID
	}

	if n.Operation == "" {
		n.Operation = DefaultOperation
	}

	if n.OperationName == "" {
		n.OperationName = DefaultOperationName
	}

	if n.AppName == "" {
		n.AppName = DefaultAppName
	}

	if n.Mode == "" {
		n.Mode = DefaultMode
	}

	if n.Params == nil {
		n.Params = make(map[string]any)
	}
}
