package planner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JobSummary is the compact job shape included in planner context.
type JobSummary struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Context is the snapshot of client state assembled for one planner turn.
type Context struct {
	RecentErrors    []string       `json:"recent_errors,omitempty"`
	RecentJobs      []JobSummary   `json:"recent_jobs,omitempty"`
	QueueStats      map[string]int `json:"queue_stats,omitempty"`
	Presets         []string       `json:"architecture_presets,omitempty"`
	Models          []string       `json:"available_models,omitempty"`
	CurrentModel    string         `json:"current_model,omitempty"`
	PreviousResults []string       `json:"previous_action_results,omitempty"`
}

const systemPrompt = `You are the assistant inside a client for a local generative-media server.
You receive one user message plus a JSON context block describing recent errors,
recent jobs, queue statistics, available models, and the results of your
previous actions.

Respond with a single JSON object:
{"message": "<prose for the user, may be empty>",
 "actions": [{"type": "<action type>", "parameters": {...}}, ...]}

Actions execute strictly in order. Valid action types: generate_image,
generate_video, transform_image, upscale_image, cancel_job, get_job_detail,
load_model, unload_model, set_setting, list_models, download_model, ask_user.
When an earlier action failed, read the error text carefully; it names the
missing field or the valid values. Return an empty actions array when no
operation is needed.`

func buildUserPrompt(message string, pctx Context) string {
	encoded, err := json.MarshalIndent(pctx, "", "  ")
	if err != nil {
		encoded = []byte("{}")
	}
	var b strings.Builder
	b.WriteString("Context:\n")
	b.Write(encoded)
	b.WriteString("\n\nMessage: ")
	b.WriteString(message)
	return b.String()
}

// SystemPrompt exposes the instruction block, primarily for tests.
func SystemPrompt() string { return systemPrompt }

// Summarize renders a context as a short human-readable line for logging.
func (c Context) Summarize() string {
	return fmt.Sprintf("errors=%d jobs=%d results=%d models=%d",
		len(c.RecentErrors), len(c.RecentJobs), len(c.PreviousResults), len(c.Models))
}
