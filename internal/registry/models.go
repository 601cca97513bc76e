package registry

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status represents the lifecycle of a job on the inference server.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Valid reports whether the status is one the server can report.
func (s Status) Valid() bool {
	_, ok := statusSet[s]
	return ok
}

// IsTerminal reports whether the status ends a job's lifecycle. A terminal
// status is never followed by a transition back to pending or processing.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Kind identifies the type of work a job performs.
type Kind string

const (
	KindTextToImage   Kind = "txt2img"
	KindImageToImage  Kind = "img2img"
	KindTextToVideo   Kind = "txt2vid"
	KindUpscale       Kind = "upscale"
	KindConvert       Kind = "convert"
	KindModelDownload Kind = "model-download"
	KindModelHash     Kind = "model-hash"
)

var kindLabels = map[Kind]string{
	KindTextToImage:   "Image generation",
	KindImageToImage:  "Image transform",
	KindTextToVideo:   "Video generation",
	KindUpscale:       "Upscale",
	KindConvert:       "Convert",
	KindModelDownload: "Model download",
	KindModelHash:     "Model hash",
}

var titleCaser = cases.Title(language.English)

// Label returns a human-readable name for the kind, used in toasts and tables.
func (k Kind) Label() string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	cleaned := strings.ReplaceAll(strings.ReplaceAll(string(k), "-", " "), "_", " ")
	return titleCaser.String(cleaned)
}

// Progress reports step counts while a job is processing.
type Progress struct {
	Step       int `json:"step"`
	TotalSteps int `json:"total_steps"`
}

// Job is one unit of queued work as reported by the server. Progress is only
// meaningful while processing; Error only when failed; Outputs only when
// completed.
type Job struct {
	ID            string         `json:"id"`
	Kind          Kind           `json:"kind"`
	Status        Status         `json:"status"`
	Progress      *Progress      `json:"progress,omitempty"`
	Error         string         `json:"error,omitempty"`
	Outputs       []string       `json:"outputs,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
	ModelSettings map[string]any `json:"model_settings,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Counters aggregates live jobs by status bucket.
type Counters struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// QueueView is the externally observed registry state. Items are ordered as
// the server reports them; counters are recomputable from Items at any time.
type QueueView struct {
	Items    []Job    `json:"items"`
	Counters Counters `json:"counters"`
}

func countersFor(jobs []Job) Counters {
	var c Counters
	for _, job := range jobs {
		c.bump(job.Status, 1)
	}
	c.Total = len(jobs)
	return c
}

// bump adjusts the bucket for a status, clamping at zero so out-of-order
// delivery cannot drive a counter negative.
func (c *Counters) bump(status Status, delta int) {
	adjust := func(value int) int {
		value += delta
		if value < 0 {
			return 0
		}
		return value
	}
	switch status {
	case StatusPending:
		c.Pending = adjust(c.Pending)
	case StatusProcessing:
		c.Processing = adjust(c.Processing)
	case StatusCompleted:
		c.Completed = adjust(c.Completed)
	case StatusFailed:
		c.Failed = adjust(c.Failed)
	}
}
