package transport

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

	"easel/internal/registry"
)

const defaultRequestTimeout = 30 * time.Second

// Health is the server's liveness report.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ModelInfo describes a model the server can load.
type ModelInfo struct {
	Name      string `json:"name"`
	Kind      string `json:"kind,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Installed bool   `json:"installed"`
}

// Options is the server's capability catalog: installed models, the model
// currently loaded, and the presets and upscalers available for job
// parameters.
type Options struct {
	Models       []ModelInfo `json:"models"`
	CurrentModel string      `json:"current_model,omitempty"`
	Upscalers    []string    `json:"upscalers,omitempty"`
	Presets      []string    `json:"presets,omitempty"`
}

// JobRequest submits new work to the server queue.
type JobRequest struct {
	Kind   registry.Kind  `json:"kind"`
	Params map[string]any `json:"params,omitempty"`
}

// SubmitResult is the server's acknowledgement of a queued job.
type SubmitResult struct {
	JobID string `json:"job_id"`
}

// SettingUpdate changes one named server setting.
type SettingUpdate struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Client talks to the inference server's HTTP API. All methods honor the
// request context and return decoded payloads or an error carrying the HTTP
// status and a snippet of the body.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithClientHTTPClient overrides the underlying HTTP client, primarily for
// tests.
func WithClientHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient builds a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// GetHealth checks server liveness.
func (c *Client) GetHealth(ctx context.Context) (Health, error) {
	var health Health
	if err := c.getJSON(ctx, "/api/health", &health); err != nil {
		return Health{}, fmt.Errorf("get health: %w", err)
	}
	return health, nil
}

// GetQueue fetches the authoritative queue snapshot.
func (c *Client) GetQueue(ctx context.Context) ([]registry.Job, error) {
	var payload struct {
		Jobs []registry.Job `json:"jobs"`
	}
	if err := c.getJSON(ctx, "/api/queue", &payload); err != nil {
		return nil, fmt.Errorf("get queue: %w", err)
	}
	return payload.Jobs, nil
}

// GetJob fetches one job's full detail.
func (c *Client) GetJob(ctx context.Context, jobID string) (registry.Job, error) {
	var job registry.Job
	if err := c.getJSON(ctx, "/api/jobs/"+url.PathEscape(jobID), &job); err != nil {
		return registry.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// GetOptions fetches the server capability catalog.
func (c *Client) GetOptions(ctx context.Context) (Options, error) {
	var options Options
	if err := c.getJSON(ctx, "/api/options", &options); err != nil {
		return Options{}, fmt.Errorf("get options: %w", err)
	}
	return options, nil
}

// SubmitJob queues new work and returns the assigned job id.
func (c *Client) SubmitJob(ctx context.Context, req JobRequest) (SubmitResult, error) {
	var result SubmitResult
	if err := c.postJSON(ctx, "/api/jobs", req, &result); err != nil {
		return SubmitResult{}, fmt.Errorf("submit job: %w", err)
	}
	return result, nil
}

// CancelJob asks the server to cancel a queued or processing job.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	if err := c.postJSON(ctx, "/api/jobs/"+url.PathEscape(jobID)+"/cancel", nil, nil); err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	return nil
}

// LoadModel asks the server to load the named model. The call returns once
// the server accepts the request; loading completes asynchronously.
func (c *Client) LoadModel(ctx context.Context, name string) error {
	payload := map[string]string{"name": name}
	if err := c.postJSON(ctx, "/api/models/load", payload, nil); err != nil {
		return fmt.Errorf("load model %s: %w", name, err)
	}
	return nil
}

// UnloadModel asks the server to unload the current model.
func (c *Client) UnloadModel(ctx context.Context) error {
	if err := c.postJSON(ctx, "/api/models/unload", nil, nil); err != nil {
		return fmt.Errorf("unload model: %w", err)
	}
	return nil
}

// SetSetting changes one server setting.
func (c *Client) SetSetting(ctx context.Context, update SettingUpdate) error {
	if err := c.postJSON(ctx, "/api/settings", update, nil); err != nil {
		return fmt.Errorf("set setting %s: %w", update.Key, err)
	}
	return nil
}

// DownloadModel asks the server to fetch a model from its source URL. The
// download runs as a queue job; the returned id tracks it.
func (c *Client) DownloadModel(ctx context.Context, source string) (SubmitResult, error) {
	payload := map[string]string{"source": source}
	var result SubmitResult
	if err := c.postJSON(ctx, "/api/models/download", payload, &result); err != nil {
		return SubmitResult{}, fmt.Errorf("download model: %w", err)
	}
	return result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
