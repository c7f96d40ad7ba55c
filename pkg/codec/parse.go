package codec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/actflow/actflow/pkg/models"
)

var sectionRe = regexp.MustCompile(`^\[([^\[\]]+)\]$`)

const nodeSectionPrefix = "node:"

// Result is the outcome of a lenient parse. Valid is false only when parsing
// failed catastrophically, in which case Doc is an empty fallback document.
// Problems lists the individual lines that were skipped or repaired; they
// never abort the parse.
type Result struct {
	Doc      *models.Workflow
	Valid    bool
	Problems []string
}

// ParseLenient parses ACT text for the editing path. Missing fields are
// defaulted, the params invariant is enforced, dangling edges are dropped
// and a dangling start node is rewritten to the first declared node.
// In-progress or partially malformed content never blocks the caller.
func ParseLenient(text string) Result {
	result := Result{Doc: models.NewWorkflow(), Valid: true}

	defer func() {
		if r := recover(); r != nil {
			result.Doc = models.NewWorkflow()
			result.Valid = false
			result.Problems = append(result.Problems, fmt.Sprintf("parser failure: %v", r))
		}
	}()

	parseInto(result.Doc, Repair(text), &result.Problems)
	Normalize(result.Doc)

	return result
}

// ParseStrict parses ACT text for the execution path. It applies the same
// lenient parse, then refuses documents that fail schema validation: at
// least one node, every node with a type and app name, and a resolvable
// start node. The returned error is a *ValidationError listing the reasons.
func ParseStrict(text string) (*models.Workflow, error) {
	result := ParseLenient(text)
	if !result.Valid {
		return nil, &ValidationError{Reasons: result.Problems}
	}

	if err := ValidateStrict(result.Doc); err != nil {
		return nil, err
	}

	return result.Doc, nil
}

// parseInto walks trimmed lines, tracking the current section. A malformed
// line is recorded and skipped; it never aborts the rest of the document.
func parseInto(doc *models.Workflow, text string, problems *[]string) {
	section := ""

	var node *models.Node

	for number, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if match := sectionRe.FindStringSubmatch(line); match != nil {
			section, node = openSection(doc, strings.TrimSpace(match[1]))

			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			*problems = append(*problems, fmt.Sprintf("line %d: not an assignment: %s", number+1, line))

			continue
		}

		key = strings.TrimSpace(key)
		if key == "" {
			*problems = append(*problems, fmt.Sprintf("line %d: empty key", number+1))

			continue
		}

		if err := assign(doc, section, node, key, strings.TrimSpace(value)); err != nil {
			*problems = append(*problems, fmt.Sprintf("line %d: %v", number+1, err))
		}
	}
}

// openSection enters a section header. Re-entering an existing node section
// merges into the same record instead of resetting it.
func openSection(doc *models.Workflow, name string) (string, *models.Node) {
	if strings.HasPrefix(name, nodeSectionPrefix) {
		id := strings.TrimSpace(strings.TrimPrefix(name, nodeSectionPrefix))
		if id == "" {
			return "", nil
		}

		if existing, ok := doc.Nodes[id]; ok {
			return "node", existing
		}

		node := models.NewNode(id)
		doc.AddNode(node)

		return "node", node
	}

	return name, nil
}

func assign(doc *models.Workflow, section string, node *models.Node, key, raw string) error {
	switch section {
	case "workflow":
		return assignWorkflow(doc, key, raw)
	case "node":
		if node == nil {
			return fmt.Errorf("assignment outside a named node section: %s", key)
		}

		return assignNode(node, key, raw)
	case "edges":
		value, err := parseValue(raw)
		if err != nil {
			return fmt.Errorf("edge %s: %w", key, err)
		}

		doc.Edges = append(doc.Edges, models.Edge{Source: key, Target: coerceString(value)})

		return nil
	case "env":
		value, err := parseValue(raw)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}

		doc.Env[key] = coerceString(value)

		return nil
	default:
		return fmt.Errorf("assignment outside a known section: %s", key)
	}
}

func assignWorkflow(doc *models.Workflow, key, raw string) error {
	value, err := parseValue(raw)
	if err != nil {
		return fmt.Errorf("workflow %s: %w", key, err)
	}

	switch key {
	case "workflow_id":
		doc.WorkflowID = coerceString(value)
	case "name":
		doc.Name = coerceString(value)
	case "description":
		doc.Description = coerceString(value)
	case "start_node":
		doc.StartNode = coerceString(value)
	default:
		return fmt.Errorf("unknown workflow key: %s", key)
	}

	return nil
}

func assignNode(node *models.Node, key, raw string) error {
	// params never fails: whatever the value parses to is forced through
	// the normalization ladder so the mapping invariant holds.
	if key == "params" {
		value, err := parseValue(raw)
		if err != nil {
			node.Params = NormalizeParams(raw)

			return nil
		}

		node.Params = NormalizeParams(value)

		return nil
	}

	// positions are always numeric, defaulting to 0 on any failure.
	switch key {
	case "positionX":
		value, _ := parseValue(raw)
		node.Position.X = coerceFloat(value)

		return nil
	case "positionY":
		value, _ := parseValue(raw)
		node.Position.Y = coerceFloat(value)

		return nil
	}

	value, err := parseValue(raw)
	if err != nil {
		return fmt.Errorf("node %s key %s: %w", node.ID, key, err)
	}

	switch key {
	case "type":
		node.Type = coerceString(value)
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
	case "apiKey":
		node.APIKey = coerceString(value)
	case "token":
		node.Token = coerceString(value)
	case "method":
		node.Method = coerceString(value)
	case "formData":
		node.FormData = NormalizeParams(value)
	default:
		if node.Extra == nil {
			node.Extra = make(map[string]any)
		}

		node.Extra[key] = value
	}

	return nil
}
