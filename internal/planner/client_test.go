package planner_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"easel/internal/planner"
)

func completionBody(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	encoded, _ := json.Marshal(payload)
	return string(encoded)
}

func newClient(t *testing.T, handler http.HandlerFunc) *planner.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return planner.NewClient(
		planner.Config{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"},
		planner.WithSleeper(func(time.Duration) {}),
	)
}

func TestChatDecodesPlan(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		plan := `{"message":"Loading the model now.","actions":[{"type":"load_model","parameters":{"name":"sdxl"}}]}`
		fmt.Fprint(w, completionBody(plan))
	})

	resp, err := client.Chat(context.Background(), "load sdxl", planner.Context{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message != "Loading the model now." {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
	if len(resp.Actions) != 1 || resp.Actions[0].Type != "load_model" {
		t.Fatalf("unexpected actions: %+v", resp.Actions)
	}
	if resp.Actions[0].Parameters["name"] != "sdxl" {
		t.Fatalf("unexpected parameters: %+v", resp.Actions[0].Parameters)
	}
}

func TestChatStripsCodeFences(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		plan := "```json\n{\"message\":\"ok\",\"actions\":[]}\n```"
		fmt.Fprint(w, completionBody(plan))
	})

	resp, err := client.Chat(context.Background(), "hello", planner.Context{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message != "ok" || len(resp.Actions) != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestChatRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, completionBody(`{"message":"recovered","actions":[]}`))
	})

	resp, err := client.Chat(context.Background(), "hello", planner.Context{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message != "recovered" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestChatDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	if _, err := client.Chat(context.Background(), "hello", planner.Context{}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single attempt, got %d", calls.Load())
	}
}

func TestChatRequiresMessageAndKey(t *testing.T) {
	client := planner.NewClient(planner.Config{APIKey: "k"})
	if _, err := client.Chat(context.Background(), "   ", planner.Context{}); err == nil {
		t.Fatal("expected error for empty message")
	}
	client = planner.NewClient(planner.Config{})
	if _, err := client.Chat(context.Background(), "hi", planner.Context{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestChatStreamDeliversFragments(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("expected stream=true request")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"reasoning":"planning"}}]}`,
			`{"choices":[{"delta":{"content":"{\"message\":\"done\","}}]}`,
			`{"choices":[{"delta":{"content":"\"actions\":[]}"}}]}`,
		}
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var events []planner.StreamEvent
	resp, err := client.ChatStream(context.Background(), "hello", planner.Context{}, func(ev planner.StreamEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if resp.Message != "done" {
		t.Fatalf("unexpected final message: %q", resp.Message)
	}

	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, string(ev.Type))
	}
	joined := strings.Join(kinds, ",")
	if !strings.Contains(joined, "thinking") || !strings.Contains(joined, "content") || !strings.HasSuffix(joined, "done") {
		t.Fatalf("unexpected event sequence: %s", joined)
	}
}

func TestDecodePlannerJSONExtractsEmbeddedObject(t *testing.T) {
	var out struct {
		Message string `json:"message"`
	}
	content := "Here is the plan: {\"message\":\"hi\"} hope that helps"
	if err := planner.DecodePlannerJSON(content, &out); err != nil {
		t.Fatalf("DecodePlannerJSON: %v", err)
	}
	if out.Message != "hi" {
		t.Fatalf("unexpected message: %q", out.Message)
	}
}
