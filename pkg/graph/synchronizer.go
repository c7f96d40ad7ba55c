package graph

import (
	"errors"
	"log/slog"

	"github.com/actflow/actflow/pkg/codec"
	"github.com/actflow/actflow/pkg/models"
)

// ErrInvalidContent is returned when a conversion fails. The synchronizer's
// prior state is left untouched so the editor keeps showing the last good
// graph instead of clearing the view.
var ErrInvalidContent = errors.New("invalid workflow content")

// Synchronizer keeps one workflow's text and graph representations
// consistent under edits from either side. It remembers the last good
// document, the raw edge set known from text, and explicit edge deletions.
// Not safe for concurrent use; callers own one synchronizer per document.
type Synchronizer struct {
	logger   *slog.Logger
	doc      *models.Workflow
	rawEdges []models.Edge
	deleted  map[string]struct{}
	invalid  bool
}

func NewSynchronizer(logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Synchronizer{
		logger:  logger.With("module", "graph_sync"),
		doc:     models.NewWorkflow(),
		deleted: make(map[string]struct{}),
	}
}

// Document returns the last good document.
func (s *Synchronizer) Document() *models.Workflow {
	return s.doc
}

// Text serializes the last good document.
func (s *Synchronizer) Text() string {
	return codec.Serialize(s.doc)
}

// ContentInvalid reports whether the most recent conversion failed.
func (s *Synchronizer) ContentInvalid() bool {
	return s.invalid
}

// SyncText replaces the document from authoritative text and returns the
// resulting graph. Edge deletion tombstones are reset: the full text is the
// source of truth for which edges exist.
func (s *Synchronizer) SyncText(text string) ([]models.GraphNode, []models.GraphEdge, error) {
	result := codec.ParseLenient(text)
	if !result.Valid {
		s.invalid = true
		s.logger.Warn("text conversion failed, keeping prior graph", "problems", result.Problems)

		return nil, nil, ErrInvalidContent
	}

	if result.Doc.WorkflowID == "" {
		result.Doc.WorkflowID = s.doc.WorkflowID
	}

	s.doc = result.Doc
	s.rawEdges = cloneEdges(result.Doc.Edges)
	s.deleted = make(map[string]struct{})
	s.invalid = false

	nodes, edges := ToGraph(s.doc)

	return nodes, edges, nil
}

// SyncPartialText merges a partial re-parse into the known document. Node
// records the new text does not mention keep their positions and extra
// fields, so a partially streamed edit updates the graph without unrelated
// nodes flickering back to defaults.
func (s *Synchronizer) SyncPartialText(text string) ([]models.GraphNode, []models.GraphEdge, error) {
	result := codec.ParseLenient(text)
	if !result.Valid {
		s.invalid = true

		return nil, nil, ErrInvalidContent
	}

	merged := s.mergeDocuments(s.doc, result.Doc)

	s.doc = merged
	s.rawEdges = cloneEdges(merged.Edges)
	s.invalid = false

	nodes, edges := ToGraph(s.doc)

	return nodes, edges, nil
}

// SyncGraph converts graph state back to text. Emitted edges are the union
// of the current graph edges and previously known raw edges that were never
// explicitly removed: an edge present in persisted text but absent from a
// stale partial view must not be dropped by the next save. Explicit
// deletions recorded through RemoveEdge beat the union.
func (s *Synchronizer) SyncGraph(nodes []models.GraphNode, edges []models.GraphEdge) (string, error) {
	for _, node := range nodes {
		if node.ID == "" {
			s.invalid = true
			s.logger.Warn("graph conversion failed: node without id, keeping prior text")

			return "", ErrInvalidContent
		}
	}

	union := make([]models.Edge, 0, len(edges)+len(s.rawEdges))
	seen := make(map[string]struct{}, len(edges))

	for _, graphEdge := range edges {
		key := edgeKey(graphEdge.Source, graphEdge.Target)
		if _, dup := seen[key]; dup {
			continue
		}

		seen[key] = struct{}{}
		// An edge present in the current graph was put there on purpose;
		// it clears any stale deletion record.
		delete(s.deleted, key)

		union = append(union, models.Edge{Source: graphEdge.Source, Target: graphEdge.Target})
	}

	for _, raw := range s.rawEdges {
		key := edgeKey(raw.Source, raw.Target)
		if _, dup := seen[key]; dup {
			continue
		}

		if _, removed := s.deleted[key]; removed {
			continue
		}

		seen[key] = struct{}{}

		union = append(union, raw)
	}

	doc := BuildDocument(s.doc, nodes, nil)
	doc.Edges = union
	codec.Normalize(doc)

	s.doc = doc
	s.rawEdges = cloneEdges(doc.Edges)
	s.invalid = false

	return codec.Serialize(doc), nil
}

// RemoveEdge records an explicit edge deletion. The deletion is
// authoritative: it also invalidates the matching raw-edge entry so a later
// save cannot resurrect the edge through the union rule.
func (s *Synchronizer) RemoveEdge(source, target string) {
	key := edgeKey(source, target)
	s.deleted[key] = struct{}{}

	kept := s.rawEdges[:0]

	for _, raw := range s.rawEdges {
		if edgeKey(raw.Source, raw.Target) != key {
			kept = append(kept, raw)
		}
	}

	s.rawEdges = kept

	docEdges := s.doc.Edges[:0]

	for _, edge := range s.doc.Edges {
		if edgeKey(edge.Source, edge.Target) != key {
			docEdges = append(docEdges, edge)
		}
	}

	s.doc.Edges = docEdges
}

// mergeDocuments folds a partial parse into the prior document: new records
// win, unmentioned prior records survive, and defaulted metadata in the new
// parse does not clobber real prior values.
func (s *Synchronizer) mergeDocuments(prior, next *models.Workflow) *models.Workflow {
	merged := models.NewWorkflow()

	merged.WorkflowID = next.WorkflowID
	if merged.WorkflowID == "" {
		merged.WorkflowID = prior.WorkflowID
	}

	merged.Name = next.Name
	if merged.Name == models.DefaultWorkflowName && prior.Name != "" {
		merged.Name = prior.Name
	}

	merged.Description = next.Description
	if merged.Description == models.DefaultWorkflowDescription && prior.Description != "" {
		merged.Description = prior.Description
	}

	for _, node := range prior.OrderedNodes() {
		merged.AddNode(node)
	}

	for _, node := range next.OrderedNodes() {
		if existing, ok := merged.Nodes[node.ID]; ok {
			merged.Nodes[node.ID] = mergeNode(existing, node)
		} else {
			merged.AddNode(node)
		}
	}

	for key, value := range prior.Env {
		merged.Env[key] = value
	}

	for key, value := range next.Env {
		merged.Env[key] = value
	}

	seen := make(map[string]struct{})

	for _, edge := range append(cloneEdges(prior.Edges), next.Edges...) {
		key := edgeKey(edge.Source, edge.Target)
		if _, dup := seen[key]; dup {
			continue
		}

		if _, removed := s.deleted[key]; removed {
			continue
		}

		seen[key] = struct{}{}

		merged.Edges = append(merged.Edges, edge)
	}

	// A partial parse defaults start_node to its own first node, which says
	// nothing about the full document. Only an explicitly different value
	// overrides the prior start node.
	merged.StartNode = prior.StartNode
	if next.StartNode != "" && next.StartNode != next.FirstNodeID() {
		merged.StartNode = next.StartNode
	}

	codec.Normalize(merged)

	return merged
}

// mergeNode overlays a re-parsed node onto its prior record. The new parse
// wins except where it carries only defaults and the prior record had real
// data: an unmentioned position would otherwise snap the node back to the
// origin mid-stream.
func mergeNode(prior, next *models.Node) *models.Node {
	merged := *next

	if merged.Position == (models.Position{}) && prior.Position != (models.Position{}) {
		merged.Position = prior.Position
	}

	if len(merged.Params) == 0 && len(prior.Params) > 0 {
		merged.Params = prior.Params
	}

	if len(prior.Extra) > 0 {
		extra := make(map[string]any, len(prior.Extra)+len(merged.Extra))

		for key, value := range prior.Extra {
			extra[key] = value
		}

		for key, value := range next.Extra {
			extra[key] = value
		}

		merged.Extra = extra
	}

	return &merged
}

func cloneEdges(edges []models.Edge) []models.Edge {
	clone := make([]models.Edge, len(edges))
	copy(clone, edges)

	return clone
}
