package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"easel/internal/logging"
	"easel/internal/planner"
	"easel/internal/question"
	"easel/internal/registry"
	"easel/internal/transport"
)

// ErrUnknownAction is wrapped into batch errors for action types outside the
// command table.
var ErrUnknownAction = errors.New("unknown action type")

// continuationMarker is registered in the ledger after a clean batch so the
// job's terminal transition resumes the conversation.
type continuationMarker struct {
	jobID   string
	context string
}

// yieldRequest suspends the current turn. resolve blocks until the answer is
// available; the orchestrator then feeds it back as a synthetic turn.
type yieldRequest struct {
	action  string
	resolve func(ctx context.Context) (string, error)
}

// batchOutcome is everything one action batch produced.
type batchOutcome struct {
	results       []string
	errors        []string
	continuations []continuationMarker
	yield         *yieldRequest
}

type handlerResult struct {
	summary      string
	continuation *continuationMarker
	yield        *yieldRequest
}

type actionHandler func(ctx context.Context, o *Orchestrator, action planner.Action) (handlerResult, error)

var actionHandlers = map[string]actionHandler{
	"generate_image":  handleGenerateImage,
	"generate_video":  handleGenerateVideo,
	"transform_image": handleTransformImage,
	"upscale_image":   handleUpscaleImage,
	"cancel_job":      handleCancelJob,
	"get_job_detail":  handleGetJobDetail,
	"load_model":      handleLoadModel,
	"unload_model":    handleUnloadModel,
	"set_setting":     handleSetSetting,
	"list_models":     handleListModels,
	"download_model":  handleDownloadModel,
	"ask_user":        handleAskUser,
}

func validActionTypes() string {
	types := make([]string, 0, len(actionHandlers))
	for name := range actionHandlers {
		types = append(types, name)
	}
	sort.Strings(types)
	return strings.Join(types, ", ")
}

// executeActions runs the batch strictly in order. Errors are collected, not
// fatal; a yielding action ends the batch early with the remainder dropped.
func (o *Orchestrator) executeActions(ctx context.Context, actions []planner.Action) batchOutcome {
	var outcome batchOutcome
	for _, action := range actions {
		handler, ok := actionHandlers[action.Type]
		if !ok {
			outcome.errors = append(outcome.errors,
				fmt.Sprintf("%s: %v (valid types: %s)", action.Type, ErrUnknownAction, validActionTypes()))
			continue
		}
		result, err := handler(ctx, o, action)
		if err != nil {
			o.logger.Warn("action failed", logging.String("action", action.Type), logging.Error(err))
			outcome.errors = append(outcome.errors, fmt.Sprintf("%s: %v", action.Type, err))
			continue
		}
		if result.summary != "" {
			outcome.results = append(outcome.results, result.summary)
		}
		if result.continuation != nil {
			outcome.continuations = append(outcome.continuations, *result.continuation)
		}
		if result.yield != nil {
			outcome.yield = result.yield
			break
		}
	}
	return outcome
}

func stringParam(action planner.Action, key string) (string, error) {
	raw, ok := action.Parameters[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	value, ok := raw.(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return value, nil
}

func optionalStringParam(action planner.Action, key string) string {
	if raw, ok := action.Parameters[key]; ok {
		if value, ok := raw.(string); ok {
			return value
		}
	}
	return ""
}

// submitGeneration queues one generation job and hands back a marker so the
// terminal transition loops back into the conversation.
func submitGeneration(ctx context.Context, o *Orchestrator, action planner.Action, kind registry.Kind, required ...string) (handlerResult, error) {
	for _, key := range required {
		if _, err := stringParam(action, key); err != nil {
			return handlerResult{}, err
		}
	}
	result, err := o.server.SubmitJob(ctx, transport.JobRequest{Kind: kind, Params: action.Parameters})
	if err != nil {
		return handlerResult{}, err
	}
	summary := fmt.Sprintf("%s: queued job %s", action.Type, result.JobID)
	return handlerResult{
		summary: summary,
		continuation: &continuationMarker{
			jobID:   result.JobID,
			context: fmt.Sprintf("%s %q", action.Type, optionalStringParam(action, "prompt")),
		},
	}, nil
}

func handleGenerateImage(ctx context.Context, o *Orchestrator, action planner.Action) (handlerResult, error) {
	return submitGeneration(ctx, o, action, registry.KindTextToImage, "prompt")
}

func handleGenerateVideo(ctx context.Context, o *Orchestrator, action planner.Action) (handlerResult, error) {
	return submitGeneration(ctx, o, action, registry.KindTextToVideo, "prompt")
}

func handleTransformImage(ctx context.Context, o *Orchestrator, action planner.Action) (handlerResult, error) {
	return submitGeneration(ctx, o, action, registry.KindImageToImage, "prompt", "source_image")
}

func handleUpscaleImage(ctx context.Context, o *Orchestrator, action planner.Action) (handlerResult, error) {
	return submitGeneration(ctx, o, action, registry.KindUpscale, "source_image")
}

func handleCancelJob(ctx context.Context, o *Orchestrator, action planner.Action) (handlerResult, error) {
	jobID, err := stringParam(action, "job_id")
	if err != nil {
		return handlerResult{}, err
	}
	if err := o.server.CancelJob(ctx, jobID); err != nil {
		return handlerResult{}, err
	}
	return handlerResult{summary: fmt.Sprintf("cancel_job: requested cancellation of %s", jobID)}, nil
}

// handleGetJobDetail yields: the detail fetch resolves immediately, but its
// content goes back through the planner so the reply can incorporate it.
func handleGetJobDetail(ctx context.Context, o *Orchestrator, action planner.Action) (handlerResult, error) {
	jobID, err := stringParam(action, "job_id")
	if err != nil {
		return handlerResult{}, err
	}
	return handlerResult{yield: &yieldRequest{
		action: action.Type,
		resolve: func(ctx context.Context) (string, error) {
			job, err := o.server.GetJob(ctx, jobID)
			if err != nil {
				return "", fmt.Errorf("get job detail: %w", err)
			}
			return fmt.Sprintf("Detail for job %s: %s. Answer the user's question using it.", jobID, describeJob(job)), nil
		},
	}}, nil
}

func describeJob(job registry.Job) string {
	parts := []string{
		fmt.Sprintf("kind=%s", job.Kind),
		fmt.Sprintf("status=%s", job.Status),
	}
	if job.Progress != nil {
		parts = append(parts, fmt.Sprintf("progress=%d/%d", job.Progress.Step, job.Progress.TotalSteps))
	}
	if job.Error != "" {
		parts = append(parts, fmt.Sprintf("error=%q", job.Error))
	}
	if len(job.Outputs) > 0 {
		parts = append(parts, fmt.Sprintf("outputs=%s", strings.Join(job.Outputs, ",")))
	}
	if len(job.Params) > 0 {
		if prompt, ok := job.Params["prompt"].(string); ok && prompt != "" {
			parts = append(parts, fmt.Sprintf("prompt=%q", prompt))
		}
	}
	return strings.Join(parts, " ")
}

// handleLoadModel blocks until the server reports the model loaded, checking
// once a second against a hard deadline.
func handleLoadModel(ctx context.Context, o *Orchestrator, action planner.Action) (handlerResult, error) {
	name, err := stringParam(action, "model")
	if err != nil {
		return handlerResult{}, err
	}
	if known := o.installedModels(); len(known) > 0 && !containsFold(known, name) {
		return handlerResult{}, fmt.Errorf("model %q is not installed (installed: %s)", name, strings.Join(known, ", "))
	}
	if err := o.server.LoadModel(ctx, name); err != nil {
		return handlerResult{}, err
	}
	if err := o.waitForModel(ctx, name); err != nil {
		return handlerResult{}, err
	}
	o.invalidateCatalog()
	return handlerResult{summary: fmt.Sprintf("load_model: %s is loaded", name)}, nil
}

func (o *Orchestrator) waitForModel(ctx context.Context, name string) error {
	deadline := o.now().Add(o.waitTimeout)
	ticker := time.NewTicker(o.waitPoll)
	defer ticker.Stop()
	for {
		if strings.EqualFold(o.models.CurrentModel(), name) && !o.models.Loading() {
			return nil
		}
		if !o.now().Before(deadline) {
			return fmt.Errorf("load model %s: %w after %s", name, ErrWaitTimeout, o.waitTimeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("load model %s: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) installedModels() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.catalog.Models))
	for _, model := range o.catalog.Models {
		if model.Installed {
			names = append(names, model.Name)
		}
	}
	return names
}

func (o *Orchestrator) invalidateCatalog() {
	o.mu.Lock()
	o.catalogAt = time.Time{}
	o.mu.Unlock()
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(value, target) {
			return true
		}
	}
	return false
}

func handleUnloadModel(ctx context.Context, o *Orchestrator, action planner.Action) (handlerResult, error) {
	if err := o.server.UnloadModel(ctx); err != nil {
		return handlerResult{}, err
	}
	o.invalidateCatalog()
	return handlerResult{summary: "unload_model: done"}, nil
}

func handleSetSetting(ctx context.Context, o *Orchestrator, action planner.Action) (handlerResult, error) {
	key, err := stringParam(action, "key")
	if err != nil {
		return handlerResult{}, err
	}
	value, ok := action.Parameters["value"]
	if !ok {
		return handlerResult{}, fmt.Errorf("missing required parameter %q", "value")
	}
	if err := o.server.SetSetting(ctx, transport.SettingUpdate{Key: key, Value: value}); err != nil {
		return handlerResult{}, err
	}
	return handlerResult{summary: fmt.Sprintf("set_setting: %s updated", key)}, nil
}

func handleListModels(ctx context.Context, o *Orchestrator, action planner.Action) (handlerResult, error) {
	options, err := o.server.GetOptions(ctx)
	if err != nil {
		return handlerResult{}, err
	}
	o.setCatalog(options)

	names := make([]string, 0, len(options.Models))
	for _, model := range options.Models {
		suffix := ""
		if !model.Installed {
			suffix = " (not installed)"
		}
		names = append(names, model.Name+suffix)
	}
	if len(names) == 0 {
		return handlerResult{summary: "list_models: no models available"}, nil
	}
	summary := fmt.Sprintf("list_models: %s", strings.Join(names, ", "))
	if options.CurrentModel != "" {
		summary += fmt.Sprintf(" (current: %s)", options.CurrentModel)
	}
	return handlerResult{summary: summary}, nil
}

func handleDownloadModel(ctx context.Context, o *Orchestrator, action planner.Action) (handlerResult, error) {
	source, err := stringParam(action, "source")
	if err != nil {
		return handlerResult{}, err
	}
	result, err := o.server.DownloadModel(ctx, source)
	if err != nil {
		return handlerResult{}, err
	}
	return handlerResult{
		summary: fmt.Sprintf("download_model: queued as job %s", result.JobID),
		continuation: &continuationMarker{
			jobID:   result.JobID,
			context: fmt.Sprintf("download_model from %s", source),
		},
	}, nil
}

// handleAskUser yields through the question gate; the turn resumes with the
// user's answer once they respond or dismiss.
func handleAskUser(ctx context.Context, o *Orchestrator, action planner.Action) (handlerResult, error) {
	prompt, err := stringParam(action, "prompt")
	if err != nil {
		return handlerResult{}, err
	}
	q := question.Question{
		Title:         optionalStringParam(action, "title"),
		Prompt:        prompt,
		Options:       stringSliceParam(action, "options"),
		AllowFreeform: freeformParam(action),
	}
	return handlerResult{yield: &yieldRequest{
		action: action.Type,
		resolve: func(ctx context.Context) (string, error) {
			answer, err := o.gate.Ask(ctx, q)
			if err != nil {
				return "", fmt.Errorf("ask user: %w", err)
			}
			return fmt.Sprintf("The user answered %q to your question %q. Continue.", answer, prompt), nil
		},
	}}, nil
}

func stringSliceParam(action planner.Action, key string) []string {
	raw, ok := action.Parameters[key]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	values := make([]string, 0, len(items))
	for _, item := range items {
		if value, ok := item.(string); ok {
			values = append(values, value)
		}
	}
	return values
}

func freeformParam(action planner.Action) bool {
	if raw, ok := action.Parameters["allow_freeform"]; ok {
		if value, ok := raw.(bool); ok {
			return value
		}
	}
	return true
}
