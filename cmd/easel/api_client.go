package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"easel/internal/config"
)

// engineClient talks to a running engine's HTTP API.
type engineClient struct {
	base       string
	httpClient *http.Client
}

func newEngineClient(cfg *config.Config) (*engineClient, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api_bind is not configured; set [paths] api_bind and start the engine with `easel run`")
	}
	if host, port, err := net.SplitHostPort(bind); err == nil && (host == "" || host == "0.0.0.0" || host == "::") {
		bind = net.JoinHostPort("127.0.0.1", port)
	}
	return &engineClient{
		base:       "http://" + bind,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (c *engineClient) get(path string, out any) error {
	resp, err := c.httpClient.Get(c.base + path)
	if err != nil {
		return wrapDialError(err, c.base)
	}
	return decodeAPIResponse(resp, out)
}

func (c *engineClient) post(path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.httpClient.Post(c.base+path, "application/json", bytes.NewReader(encoded))
	if err != nil {
		return wrapDialError(err, c.base)
	}
	return decodeAPIResponse(resp, out)
}

func decodeAPIResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if json.Unmarshal(snippet, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("engine returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
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

func wrapDialError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to engine at %s: connection refused; start it with `easel run`", base)
	}
	return fmt.Errorf("connect to engine at %s: %w", base, err)
}
