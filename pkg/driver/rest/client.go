// Package rest implements core.API against the external orchestration
// system's JSON HTTP interface.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/logger"
)

// DefaultTimeout bounds a single HTTP call.
const DefaultTimeout = 60 * time.Second

// APIError is a non-2xx response from the external system.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Client handles HTTP communication with the external system.
type Client struct {
	serverURL string
	token     string
	client    *http.Client
}

// NewClient creates a new client. A zero timeout uses DefaultTimeout.
func NewClient(serverURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		client:    &http.Client{Timeout: timeout},
	}
}

// SetToken sets a bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.token = token
}

// ServerURL returns the base URL requests are sent to.
func (c *Client) ServerURL() string {
	return c.serverURL
}

// TargetPaths fetches the path tree snapshot of an instance.
func (c *Client) TargetPaths(ctx context.Context, instanceID string) ([]core.TargetPath, error) {
	var paths []core.TargetPath
	if _, err := c.request(ctx, http.MethodGet, instancePath(instanceID, "target-paths"), nil, &paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// DeploymentSettings fetches the base paths of an instance.
func (c *Client) DeploymentSettings(ctx context.Context, instanceID string) (*core.DeploymentSettings, error) {
	var settings core.DeploymentSettings
	if _, err := c.request(ctx, http.MethodGet, instancePath(instanceID, "deployment-settings"), nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Deploy creates a target. HTTP 409 carries the conflict body and is not
// an error.
func (c *Client) Deploy(ctx context.Context, instanceID string, req core.DeployRequest) (*core.DeployResponse, error) {
	var resp core.DeployResponse
	status, err := c.request(ctx, http.MethodPost, instancePath(instanceID, "deploy"), req, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusConflict && resp.Conflict == nil {
		return nil, &APIError{Method: http.MethodPost, Path: instancePath(instanceID, "deploy"), StatusCode: status,
			Message: "conflict response without conflict details"}
	}
	return &resp, nil
}

// ResolveConflict applies a conflict resolution action.
func (c *Client) ResolveConflict(ctx context.Context, instanceID string, req core.ResolveRequest) (*core.ResolveResponse, error) {
	var resp core.ResolveResponse
	if _, err := c.request(ctx, http.MethodPost, instancePath(instanceID, "resolve-conflict"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func instancePath(instanceID, action string) string {
	return "/instances/" + url.PathEscape(instanceID) + "/" + action
}

// request sends body as JSON and decodes a 2xx or 409 response into out.
func (c *Client) request(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, bodyReader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	logger.Debug("%s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok && resp.StatusCode != http.StatusConflict {
		return resp.StatusCode, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// errorMessage extracts "error" or "message" from a JSON error body, falling
// back to the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(body))
}

var _ core.API = (*Client)(nil)
