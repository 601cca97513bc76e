package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"easel/internal/registry"
)

func TestClientGetQueue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/queue" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jobs":[{"id":"job-1","kind":"txt2img","status":"pending"},{"id":"job-2","kind":"upscale","status":"processing","progress":{"step":4,"total_steps":20}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	jobs, err := client.GetQueue(context.Background())
	if err != nil {
		t.Fatalf("GetQueue: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != "job-1" || jobs[0].Status != registry.StatusPending {
		t.Fatalf("unexpected first job: %+v", jobs[0])
	}
	if jobs[1].Progress == nil || jobs[1].Progress.Step != 4 {
		t.Fatalf("progress not decoded: %+v", jobs[1])
	}
}

func TestClientSubmitJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/jobs" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req JobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Kind != registry.KindTextToImage {
			t.Fatalf("kind = %s, want txt2img", req.Kind)
		}
		if req.Params["prompt"] != "a red fox" {
			t.Fatalf("params not forwarded: %+v", req.Params)
		}
		w.Write([]byte(`{"job_id":"job-42"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	result, err := client.SubmitJob(context.Background(), JobRequest{
		Kind:   registry.KindTextToImage,
		Params: map[string]any{"prompt": "a red fox"},
	})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if result.JobID != "job-42" {
		t.Fatalf("job id = %q, want job-42", result.JobID)
	}
}

func TestClientCancelJobEscapesID(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	if err := client.CancelJob(context.Background(), "job/odd id"); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if gotPath != "/api/jobs/job%2Fodd%20id/cancel" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestClientGetOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"flux-dev","installed":true}],"current_model":"flux-dev","presets":["fast","quality"]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	options, err := client.GetOptions(context.Background())
	if err != nil {
		t.Fatalf("GetOptions: %v", err)
	}
	if options.CurrentModel != "flux-dev" {
		t.Fatalf("current model = %q", options.CurrentModel)
	}
	if len(options.Models) != 1 || !options.Models[0].Installed {
		t.Fatalf("models not decoded: %+v", options.Models)
	}
	if len(options.Presets) != 2 {
		t.Fatalf("presets = %v", options.Presets)
	}
}

func TestClientErrorIncludesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("model loading in progress"))
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	_, err := client.GetHealth(context.Background())
	if err == nil {
		t.Fatal("expected error from 503")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("error missing status or body: %v", err)
	}
}

func TestClientLoadModelSendsName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/models/load" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if payload["name"] != "sdxl-base" {
			t.Fatalf("name = %q", payload["name"])
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	if err := client.LoadModel(context.Background(), "sdxl-base"); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
}

func TestClientDownloadModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/models/download" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"job_id":"dl-7"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	result, err := client.DownloadModel(context.Background(), "https://example.com/model.safetensors")
	if err != nil {
		t.Fatalf("DownloadModel: %v", err)
	}
	if result.JobID != "dl-7" {
		t.Fatalf("job id = %q", result.JobID)
	}
}
