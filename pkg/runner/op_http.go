package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/actflow/actflow/pkg/models"
)

const defaultHTTPRequestTimeout = 30

// HTTPRequestOperation performs an HTTP request described by node params:
// url (required), method, headers, body, timeout in seconds.
type HTTPRequestOperation struct{}

func NewHTTPRequestOperation() *HTTPRequestOperation {
	return &HTTPRequestOperation{}
}

func (o *HTTPRequestOperation) ID() string {
	return "http.request"
}

func (o *HTTPRequestOperation) Execute(execCtx ExecutionContext, node *models.Node, _ map[string]any) (map[string]any, error) {
	url, _ := node.Params["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("node %s: missing required param 'url'", node.ID)
	}

	method := http.MethodGet
	if value, ok := node.Params["method"].(string); ok && value != "" {
		method = strings.ToUpper(value)
	}

	body, _ := node.Params["body"].(string)

	timeout := defaultHTTPRequestTimeout
	if value, ok := node.Params["timeout"].(float64); ok && value > 0 {
		timeout = int(value)
	}

	var requestBody io.Reader
	if body != "" {
		requestBody = strings.NewReader(body)
	}

	request, err := http.NewRequestWithContext(execCtx.Context, method, url, requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if headers, ok := node.Params["headers"].(map[string]any); ok {
		for key, value := range headers {
			if text, ok := value.(string); ok {
				request.Header.Set(key, text)
			}
		}
	}

	if body != "" && request.Header.Get("Content-Type") == "" {
		request.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: time.Duration(timeout) * time.Second}

	response, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if response.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", response.StatusCode, string(responseBody))
	}

	output := map[string]any{
		"status_code": response.StatusCode,
		"body":        string(responseBody),
	}

	// Surface JSON bodies as structured data when they parse.
	var jsonBody any
	if err := json.Unmarshal(responseBody, &jsonBody); err == nil {
		output["json"] = jsonBody
	}

	return output, nil
}

func httpRequestSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "HTTP URL to request",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
				"default":     30,
				"minimum":     1,
				"maximum":     300,
			},
		},
		"required": []string{"url"},
	}
}
