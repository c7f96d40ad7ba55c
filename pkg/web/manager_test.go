package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuntime is an in-memory process table standing in for Docker.
type fakeRuntime struct {
	mu sync.Mutex

	pingErr  error
	startErr error

	counter int
	states  map[string]string
	stopped []string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{states: make(map[string]string)}
}

func (r *fakeRuntime) Ping(_ context.Context) error {
	return r.pingErr
}

func (r *fakeRuntime) Start(_ context.Context, _ string, _ int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.startErr != nil {
		return "", r.startErr
	}

	r.counter++
	containerID := fmt.Sprintf("container-%d", r.counter)
	r.states[containerID] = RuntimeStateRunning

	return containerID, nil
}

func (r *fakeRuntime) Stop(_ context.Context, containerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, containerID)
	r.stopped = append(r.stopped, containerID)

	return nil
}

func (r *fakeRuntime) Status(_ context.Context, containerID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[containerID]
	if !ok {
		return RuntimeStateNotFound, nil
	}

	return state, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManagerApp(runtime Runtime) *fiber.App {
	return NewManagerApp(NewManagerHandlers(runtime, 0, discardLogger()))
}

func postJSON(t *testing.T, app *fiber.App, path string, body map[string]any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return body
}

func TestManagerHealthCheck(t *testing.T) {
	app := newManagerApp(newFakeRuntime())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "healthy", body["status"])
}

func TestManagerHealthCheckEngineDown(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.pingErr = fmt.Errorf("cannot connect to docker daemon")

	app := newManagerApp(runtime)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Contains(t, body["error"], "docker daemon")
}

func TestStartContainerSuccess(t *testing.T) {
	app := newManagerApp(newFakeRuntime())

	resp := postJSON(t, app, "/container/start", map[string]any{"artifactId": "artifact-1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "container-1", body["containerId"])
	assert.Equal(t, float64(defaultBasePort), body["port"])
}

func TestStartContainerMissingArtifactID(t *testing.T) {
	app := newManagerApp(newFakeRuntime())

	resp := postJSON(t, app, "/container/start", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartContainerReplacesExisting(t *testing.T) {
	runtime := newFakeRuntime()
	app := newManagerApp(runtime)

	first := decodeBody(t, postJSON(t, app, "/container/start", map[string]any{"artifactId": "artifact-1"}))
	second := decodeBody(t, postJSON(t, app, "/container/start", map[string]any{"artifactId": "artifact-1"}))

	assert.NotEqual(t, first["containerId"], second["containerId"])
	assert.Contains(t, runtime.stopped, first["containerId"], "stale container must be torn down")
}

func TestStartContainerAllocatesDistinctPorts(t *testing.T) {
	app := newManagerApp(newFakeRuntime())

	first := decodeBody(t, postJSON(t, app, "/container/start", map[string]any{"artifactId": "artifact-1"}))
	second := decodeBody(t, postJSON(t, app, "/container/start", map[string]any{"artifactId": "artifact-2"}))

	assert.NotEqual(t, first["port"], second["port"])
}

func TestStartContainerRuntimeFailure(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.startErr = fmt.Errorf("image not found")

	app := newManagerApp(runtime)

	resp := postJSON(t, app, "/container/start", map[string]any{"artifactId": "artifact-1"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["error"], "image not found")
}

func TestStopContainer(t *testing.T) {
	runtime := newFakeRuntime()
	app := newManagerApp(runtime)

	postJSON(t, app, "/container/start", map[string]any{"artifactId": "artifact-1"})

	resp := postJSON(t, app, "/container/stop", map[string]any{"artifactId": "artifact-1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", decodeBody(t, resp)["status"])

	// Once stopped, health reports the container gone.
	health := decodeBody(t, postJSON(t, app, "/container/health", map[string]any{"artifactId": "artifact-1"}))
	assert.Equal(t, RuntimeStateStopped, health["status"])
}

func TestStopContainerUnknownArtifact(t *testing.T) {
	app := newManagerApp(newFakeRuntime())

	resp := postJSON(t, app, "/container/stop", map[string]any{"artifactId": "ghost"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", decodeBody(t, resp)["status"])
}

func TestContainerHealthRunning(t *testing.T) {
	app := newManagerApp(newFakeRuntime())

	postJSON(t, app, "/container/start", map[string]any{"artifactId": "artifact-1"})

	resp := postJSON(t, app, "/container/health", map[string]any{"artifactId": "artifact-1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, RuntimeStateRunning, decodeBody(t, resp)["status"])
}

func TestContainerHealthUnknownArtifact(t *testing.T) {
	app := newManagerApp(newFakeRuntime())

	resp := postJSON(t, app, "/container/health", map[string]any{"artifactId": "ghost"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, RuntimeStateStopped, decodeBody(t, resp)["status"])
}
