package engine

import (
	"context"
	"encoding/json"

	"easel/internal/logging"
	"easel/internal/registry"
	"easel/internal/transport"
)

// Push event names emitted by the inference server.
const (
	eventJobAdded         = "job_added"
	eventJobStatusChanged = "job_status_changed"
	eventJobProgress      = "job_progress"
	eventJobCancelled     = "job_cancelled"
	eventModelLoading     = "model_loading_progress"
	eventModelLoaded      = "model_loaded"
	eventModelUnloaded    = "model_unloaded"
	eventUpscalerLoaded   = "upscaler_loaded"
	eventUpscalerUnloaded = "upscaler_unloaded"
)

type jobStatusEvent struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Error   string   `json:"error,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
}

type jobProgressEvent struct {
	ID         string `json:"id"`
	Step       int    `json:"step"`
	TotalSteps int    `json:"total_steps"`
}

type jobCancelledEvent struct {
	ID string `json:"id"`
}

type modelEvent struct {
	Model string `json:"model"`
}

// HandleEvent routes one push event. Status and cancel events are
// pre-registered in the status history before the delta applies so the
// fallback poll cannot re-announce a transition the push channel already
// delivered. Malformed payloads are dropped at debug; the poll snapshot
// repairs any gap.
func (e *Engine) HandleEvent(evt transport.PushEvent) {
	switch evt.Name {
	case eventJobAdded:
		var job registry.Job
		if err := json.Unmarshal(evt.Payload, &job); err != nil {
			e.logger.Debug("malformed job_added payload", logging.Error(err))
			return
		}
		// No MarkSeen here: DeltaAdded records the sighting itself, and a
		// pre-registration would suppress the arrival announcement.
		e.reg.ApplyDelta(registry.Delta{Kind: registry.DeltaAdded, Job: &job})

	case eventJobStatusChanged:
		var payload jobStatusEvent
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			e.logger.Debug("malformed job_status_changed payload", logging.Error(err))
			return
		}
		e.reg.MarkSeen(payload.ID, registry.Status(payload.Status))
		e.reg.ApplyDelta(registry.Delta{
			Kind:    registry.DeltaStatusChanged,
			JobID:   payload.ID,
			Status:  registry.Status(payload.Status),
			Error:   payload.Error,
			Outputs: payload.Outputs,
		})

	case eventJobProgress:
		var payload jobProgressEvent
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			e.logger.Debug("malformed job_progress payload", logging.Error(err))
			return
		}
		e.reg.ApplyDelta(registry.Delta{
			Kind:       registry.DeltaProgress,
			JobID:      payload.ID,
			Step:       payload.Step,
			TotalSteps: payload.TotalSteps,
		})

	case eventJobCancelled:
		var payload jobCancelledEvent
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			e.logger.Debug("malformed job_cancelled payload", logging.Error(err))
			return
		}
		e.reg.MarkSeen(payload.ID, registry.StatusCancelled)
		e.reg.ApplyDelta(registry.Delta{Kind: registry.DeltaCancelled, JobID: payload.ID})

	case eventModelLoading:
		var payload modelEvent
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			e.logger.Debug("malformed model_loading_progress payload", logging.Error(err))
			return
		}
		e.models.beginLoading(payload.Model)

	case eventModelLoaded:
		var payload modelEvent
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			e.logger.Debug("malformed model_loaded payload", logging.Error(err))
			return
		}
		e.models.loaded(payload.Model)

	case eventModelUnloaded:
		e.models.unloaded()

	case eventUpscalerLoaded:
		e.models.setUpscaler(true)

	case eventUpscalerUnloaded:
		e.models.setUpscaler(false)

	default:
		e.logger.Debug("ignoring unknown push event", logging.String("event", evt.Name))
	}
}

// HandleConnectionState forwards push channel transitions to the arbiter. A
// freshly connected channel triggers one immediate snapshot so anything that
// happened while disconnected is reconciled right away.
func (e *Engine) HandleConnectionState(state transport.ConnectionState) {
	ctx := e.runCtx()
	if ctx == nil {
		return
	}
	e.arbiter.SetState(ctx, state)
	if state == transport.StateConnected {
		go e.poll(ctx)
	}
}

// poll is the arbiter's fallback tick: fetch a snapshot and reconcile.
func (e *Engine) poll(ctx context.Context) {
	jobs, err := e.client.GetQueue(ctx)
	if err != nil {
		e.logger.Debug("queue poll failed", logging.Error(err))
		return
	}
	e.reg.ApplySnapshot(jobs)
}
