package runner

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/actflow/actflow/pkg/codec"
	"github.com/actflow/actflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildWorkflow(t *testing.T, text string) *models.Workflow {
	t.Helper()

	workflow, err := codec.ParseStrict(text)
	require.NoError(t, err)

	return workflow
}

const chainText = `[workflow]
name = "Chain"
description = "three nodes in a row"
start_node = "a"

[node:a]
type = "process"
operation = "noop"
appName = "System"

[node:b]
type = "process"
operation = "noop"
appName = "System"

[node:c]
type = "process"
operation = "noop"
appName = "System"

[edges]
a = "b"
b = "c"
`

func TestExecutionOrderChain(t *testing.T) {
	workflow := buildWorkflow(t, chainText)

	assert.Equal(t, []string{"a", "b", "c"}, ExecutionOrder(workflow))
}

func TestExecutionOrderDiamond(t *testing.T) {
	workflow := models.NewWorkflow()
	for _, id := range []string{"top", "left", "right", "bottom"} {
		workflow.AddNode(models.NewNode(id))
	}

	workflow.Edges = []models.Edge{
		{Source: "top", Target: "left"},
		{Source: "top", Target: "right"},
		{Source: "left", Target: "bottom"},
		{Source: "right", Target: "bottom"},
	}

	order := ExecutionOrder(workflow)
	require.Len(t, order, 4)
	assert.Equal(t, "top", order[0])

	position := make(map[string]int, len(order))
	for index, id := range order {
		position[id] = index
	}

	assert.Less(t, position["left"], position["bottom"])
	assert.Less(t, position["right"], position["bottom"])
}

func TestExecutionOrderIncludesIsolatedNodes(t *testing.T) {
	workflow := models.NewWorkflow()
	workflow.AddNode(models.NewNode("a"))
	workflow.AddNode(models.NewNode("island"))
	workflow.AddNode(models.NewNode("b"))
	workflow.Edges = []models.Edge{{Source: "a", Target: "b"}}

	order := ExecutionOrder(workflow)
	assert.ElementsMatch(t, []string{"a", "island", "b"}, order)
}

func TestExecutionOrderIsDeterministic(t *testing.T) {
	workflow := buildWorkflow(t, chainText)

	first := ExecutionOrder(workflow)
	for range 10 {
		assert.Equal(t, first, ExecutionOrder(workflow))
	}
}

func TestRunExecutesEveryNode(t *testing.T) {
	workflow := buildWorkflow(t, chainText)

	runner := NewRunner(DefaultRegistry(testLogger()), testLogger())

	result, err := runner.Run(context.Background(), workflow)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, result.Executed)
	assert.Equal(t, NodeStatusCompleted, result.Results["b"].Status)
}

func TestRunTextRejectsInvalidDocument(t *testing.T) {
	runner := NewRunner(DefaultRegistry(testLogger()), testLogger())

	_, err := runner.RunText(context.Background(), "[workflow]\nname = \"empty\"\n")
	require.Error(t, err)
	assert.True(t, codec.IsValidationError(err))
}

func TestRunValidatesParamsAgainstSchema(t *testing.T) {
	workflow := models.NewWorkflow()
	node := models.NewNode("fetch")
	node.Operation = "http.request"
	// url is required by the http.request schema and deliberately absent.
	node.Params = map[string]any{"method": "GET"}
	workflow.AddNode(node)

	runner := NewRunner(DefaultRegistry(testLogger()), testLogger())

	result, err := runner.Run(context.Background(), workflow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node fetch")
	assert.Equal(t, NodeStatusFailed, result.Results["fetch"].Status)
	assert.Empty(t, result.Executed)
}

func TestHTTPRequestOperation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	workflow := models.NewWorkflow()
	node := models.NewNode("fetch")
	node.Operation = "http.request"
	node.Params = map[string]any{
		"url":    server.URL,
		"method": "POST",
		"body":   `{"ping": 1}`,
	}
	workflow.AddNode(node)

	runner := NewRunner(DefaultRegistry(testLogger()), testLogger())

	result, err := runner.Run(context.Background(), workflow)
	require.NoError(t, err)

	output := result.Results["fetch"].Output
	assert.Equal(t, 200, output["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, output["json"])
}

func TestHTTPRequestOperationServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	workflow := models.NewWorkflow()
	node := models.NewNode("fetch")
	node.Operation = "http.request"
	node.Params = map[string]any{"url": server.URL}
	workflow.AddNode(node)

	runner := NewRunner(DefaultRegistry(testLogger()), testLogger())

	result, err := runner.Run(context.Background(), workflow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node fetch")
	assert.Equal(t, NodeStatusFailed, result.Results["fetch"].Status)
}

func TestDataTransformPicksFields(t *testing.T) {
	workflow := models.NewWorkflow()

	producer := models.NewNode("producer")
	producer.Operation = "custom.op"
	workflow.AddNode(producer)

	transform := models.NewNode("shape")
	transform.Operation = "data.transform"
	transform.Params = map[string]any{
		"source": "producer",
		"fields": map[string]any{"text": "output"},
	}
	workflow.AddNode(transform)

	workflow.Edges = []models.Edge{{Source: "producer", Target: "shape"}}

	runner := NewRunner(DefaultRegistry(testLogger()), testLogger())

	result, err := runner.Run(context.Background(), workflow)
	require.NoError(t, err)

	output := result.Results["shape"].Output
	require.Contains(t, output, "text")
	assert.Contains(t, output["text"], "custom.op")
}

func TestDataTransformUnknownSourceFails(t *testing.T) {
	workflow := models.NewWorkflow()
	transform := models.NewNode("shape")
	transform.Operation = "data.transform"
	transform.Params = map[string]any{"source": "ghost"}
	workflow.AddNode(transform)

	runner := NewRunner(DefaultRegistry(testLogger()), testLogger())

	_, err := runner.Run(context.Background(), workflow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestUnknownOperationFallsBackToEcho(t *testing.T) {
	workflow := models.NewWorkflow()
	node := models.NewNode("mystery")
	node.Operation = "vendor.custom"
	workflow.AddNode(node)

	runner := NewRunner(DefaultRegistry(testLogger()), testLogger())

	result, err := runner.Run(context.Background(), workflow)
	require.NoError(t, err)
	assert.Contains(t, result.Results["mystery"].Output["output"], "vendor.custom")
}

func TestLogMessageOperation(t *testing.T) {
	workflow := models.NewWorkflow()
	node := models.NewNode("announce")
	node.Operation = "log.message"
	node.Params = map[string]any{"message": "hello", "level": "warn"}
	workflow.AddNode(node)

	runner := NewRunner(DefaultRegistry(testLogger()), testLogger())

	result, err := runner.Run(context.Background(), workflow)
	require.NoError(t, err)
	assert.Equal(t, true, result.Results["announce"].Output["logged"])
}
