package codec

import (
	"testing"

	"github.com/actflow/actflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleText = `# sample pipeline
[workflow]
workflow_id = "wf-123"
name = "Order Sync"
description = "Syncs orders downstream"
start_node = "fetch"

[node:fetch]
type = "start"
label = "Fetch Orders"
positionX = 100
positionY = 200
operation = "http.request"
operationName = "HTTP Request"
appName = "System"
mode = "UC"
params = {"url": "https://example.com/orders", "method": "GET"}

[node:store]
type = "end"
label = "Store"
params = {}

[edges]
fetch = "store"

[env]
API_BASE = "https://example.com"
`

func TestParseLenient_FullDocument(t *testing.T) {
	result := ParseLenient(sampleText)
	require.True(t, result.Valid)

	doc := result.Doc
	assert.Equal(t, "wf-123", doc.WorkflowID)
	assert.Equal(t, "Order Sync", doc.Name)
	assert.Equal(t, "fetch", doc.StartNode)
	assert.Equal(t, []string{"fetch", "store"}, doc.NodeOrder)
	assert.Equal(t, []models.Edge{{Source: "fetch", Target: "store"}}, doc.Edges)
	assert.Equal(t, "https://example.com", doc.Env["API_BASE"])

	fetch := doc.Nodes["fetch"]
	require.NotNil(t, fetch)
	assert.Equal(t, "start", fetch.Type)
	assert.Equal(t, 100.0, fetch.Position.X)
	assert.Equal(t, 200.0, fetch.Position.Y)
	assert.Equal(t, "https://example.com/orders", fetch.Params["url"])
}

func TestParseLenient_DefaultsForMissingFields(t *testing.T) {
	result := ParseLenient("[node:alpha]\n")
	require.True(t, result.Valid)

	doc := result.Doc
	assert.Equal(t, models.DefaultWorkflowName, doc.Name)
	assert.Equal(t, models.DefaultWorkflowDescription, doc.Description)

	alpha := doc.Nodes["alpha"]
	require.NotNil(t, alpha)
	assert.Equal(t, models.DefaultNodeType, alpha.Type)
	assert.Equal(t, "alpha", alpha.Label)
	assert.Equal(t, models.DefaultAppName, alpha.AppName)
	assert.Equal(t, models.DefaultMode, alpha.Mode)
	assert.NotNil(t, alpha.Params)
}

func TestParseLenient_EmptyParamsBecomesMapping(t *testing.T) {
	text := "[node:n1]\nparams = \"\"\n"

	result := ParseLenient(text)
	require.True(t, result.Valid)
	assert.Equal(t, map[string]any{}, result.Doc.Nodes["n1"].Params)
}

func TestParseLenient_ParamsNeverString(t *testing.T) {
	inputs := []string{
		`params = "just some text"`,
		`params = 42`,
		`params = true`,
		`params = "{\"url\": \"https://x\"}"`,
		`params = url:https://x,method:GET`,
	}

	for _, line := range inputs {
		result := ParseLenient("[node:n1]\n" + line + "\n")
		require.True(t, result.Valid, line)

		params := result.Doc.Nodes["n1"].Params
		require.NotNil(t, params, line)
	}
}

func TestParseLenient_DoublyQuotedParams(t *testing.T) {
	text := "[node:n1]\nparams = \"{\\\"url\\\": \\\"https://x\\\"}\"\n"

	result := ParseLenient(text)
	require.True(t, result.Valid)
	assert.Equal(t, "https://x", result.Doc.Nodes["n1"].Params["url"])
}

func TestParseLenient_TokenPairParams(t *testing.T) {
	text := "[node:n1]\nparams = url:https://x,method:GET\n"

	result := ParseLenient(text)
	require.True(t, result.Valid)

	params := result.Doc.Nodes["n1"].Params
	assert.Equal(t, "https://x", params["url"])
	assert.Equal(t, "GET", params["method"])
}

func TestParseLenient_DanglingEdgeDropped(t *testing.T) {
	text := "[node:a]\n[edges]\na = \"z\"\n"

	result := ParseLenient(text)
	require.True(t, result.Valid)
	assert.Empty(t, result.Doc.Edges)

	serialized := Serialize(result.Doc)
	assert.NotContains(t, serialized, `a = "z"`)
}

func TestParseLenient_MissingStartNodeUsesFirstNode(t *testing.T) {
	text := "[node:n1]\n[node:n2]\n"

	result := ParseLenient(text)
	require.True(t, result.Valid)
	assert.Equal(t, "n1", result.Doc.StartNode)
}

func TestParseLenient_DanglingStartNodeRewritten(t *testing.T) {
	text := "[workflow]\nstart_node = \"ghost\"\n[node:n1]\n"

	result := ParseLenient(text)
	require.True(t, result.Valid)
	assert.Equal(t, "n1", result.Doc.StartNode)
}

func TestParseLenient_MalformedLineDoesNotAbortParse(t *testing.T) {
	text := "[node:n1]\nlabel = {not json\n[node:n2]\nlabel = \"ok\"\n"

	result := ParseLenient(text)
	require.True(t, result.Valid)
	assert.NotEmpty(t, result.Problems)
	assert.Equal(t, "n1", result.Doc.Nodes["n1"].Label) // default kept
	assert.Equal(t, "ok", result.Doc.Nodes["n2"].Label)
}

func TestParseLenient_NodeSectionReentryMerges(t *testing.T) {
	text := "[node:n1]\nlabel = \"first\"\n[node:n2]\n[node:n1]\npositionX = 50\n"

	result := ParseLenient(text)
	require.True(t, result.Valid)
	assert.Equal(t, []string{"n1", "n2"}, result.Doc.NodeOrder)

	n1 := result.Doc.Nodes["n1"]
	assert.Equal(t, "first", n1.Label)
	assert.Equal(t, 50.0, n1.Position.X)
}

func TestParseLenient_QuotedPositionsCoerced(t *testing.T) {
	text := "[node:n1]\npositionX = \"120\"\npositionY = \"-35.5\"\n"

	result := ParseLenient(text)
	require.True(t, result.Valid)

	n1 := result.Doc.Nodes["n1"]
	assert.Equal(t, 120.0, n1.Position.X)
	assert.Equal(t, -35.5, n1.Position.Y)
}

func TestParseLenient_UnknownKeysPreserved(t *testing.T) {
	text := "[node:n1]\nretryCount = 3\n"

	result := ParseLenient(text)
	require.True(t, result.Valid)
	assert.Equal(t, 3.0, result.Doc.Nodes["n1"].Extra["retryCount"])
}

func TestRepair_Idempotent(t *testing.T) {
	inputs := []string{
		sampleText,
		"[node:n1]\nparams = \"\"\n",
		"[node:n1]\nparams = broken scalar\n",
		"[node:n1]\npositionX = \"100\"\npositionY = \"-2.5\"\n",
		"",
	}

	for _, text := range inputs {
		once := Repair(text)
		assert.Equal(t, once, Repair(once))
	}
}

func TestRepair_EmptyParamsRewritten(t *testing.T) {
	repaired := Repair("[node:n1]\nparams = \"\"\n")
	assert.Contains(t, repaired, "params = {}")
}

func TestRepair_ValidParamsUntouched(t *testing.T) {
	line := `params = {"url": "https://x"}`
	repaired := Repair("[node:n1]\n" + line + "\n")
	assert.Contains(t, repaired, line)
}

func TestRepair_QuotedPositionsUnquoted(t *testing.T) {
	repaired := Repair("positionX = \"100\"\npositionY = \"200\"")
	assert.Equal(t, "positionX = 100\npositionY = 200", repaired)
}

func TestSerialize_RoundTrip(t *testing.T) {
	original := ParseLenient(sampleText)
	require.True(t, original.Valid)

	reparsed := ParseLenient(Serialize(original.Doc))
	require.True(t, reparsed.Valid)

	assert.Equal(t, original.Doc, reparsed.Doc)
}

func TestSerialize_RoundTripWithExtrasAndEnv(t *testing.T) {
	doc := models.NewWorkflow()
	doc.WorkflowID = "wf-9"
	doc.Name = "Extras"
	doc.Description = "carries unknown keys"

	node := models.NewNode("n1")
	node.Params = map[string]any{"nested": map[string]any{"a": 1.0}, "list": []any{"x", "y"}}
	node.Extra = map[string]any{"custom": "kept", "weight": 2.5}
	node.APIKey = "secret"
	node.Method = "POST"
	doc.AddNode(node)
	doc.AddNode(models.NewNode("n2"))
	doc.Edges = append(doc.Edges, models.Edge{Source: "n1", Target: "n2"})
	doc.Env["TOKEN"] = "abc"
	doc.StartNode = "n1"

	reparsed := ParseLenient(Serialize(doc))
	require.True(t, reparsed.Valid)
	assert.Equal(t, doc, reparsed.Doc)
}

func TestSerialize_OmitsInvalidEdges(t *testing.T) {
	doc := models.NewWorkflow()
	doc.AddNode(models.NewNode("a"))
	doc.Edges = append(doc.Edges, models.Edge{Source: "a", Target: "missing"})

	assert.NotContains(t, Serialize(doc), "[edges]")
}

func TestParseStrict_RejectsEmptyDocument(t *testing.T) {
	_, err := ParseStrict("# nothing here\n")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestParseStrict_AcceptsRepairedDocument(t *testing.T) {
	doc, err := ParseStrict(sampleText)
	require.NoError(t, err)
	assert.Equal(t, "fetch", doc.StartNode)
}

func TestValidateStrict_ReportsDanglingStartNode(t *testing.T) {
	doc := models.NewWorkflow()
	doc.Name = "x"
	doc.Description = "y"
	doc.AddNode(models.NewNode("n1"))
	doc.StartNode = "ghost"

	err := ValidateStrict(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestNormalizeParams_StrategyLadder(t *testing.T) {
	t.Run("mapping passes through", func(t *testing.T) {
		params := map[string]any{"a": 1}
		assert.Equal(t, params, NormalizeParams(params))
	})

	t.Run("json string parsed", func(t *testing.T) {
		assert.Equal(t, map[string]any{"a": 1.0}, NormalizeParams(`{"a": 1}`))
	})

	t.Run("doubly quoted json unescaped", func(t *testing.T) {
		assert.Equal(t, map[string]any{"a": "b"}, NormalizeParams(`"{\"a\": \"b\"}"`))
	})

	t.Run("token pairs split", func(t *testing.T) {
		assert.Equal(t, map[string]any{"a": "b", "c": "d"}, NormalizeParams("a:b,c:d"))
	})

	t.Run("scalar falls back to empty mapping", func(t *testing.T) {
		assert.Equal(t, map[string]any{}, NormalizeParams("plain text"))
		assert.Equal(t, map[string]any{}, NormalizeParams(42.0))
		assert.Equal(t, map[string]any{}, NormalizeParams(nil))
	})
}
