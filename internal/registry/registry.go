package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"easel/internal/logging"
	"easel/internal/notify"
)

// DeltaKind names the push events the registry can apply incrementally.
type DeltaKind string

const (
	DeltaAdded         DeltaKind = "added"
	DeltaStatusChanged DeltaKind = "statusChanged"
	DeltaProgress      DeltaKind = "progress"
	DeltaCancelled     DeltaKind = "cancelled"
)

// Delta is one incremental mutation addressed at a single job.
type Delta struct {
	Kind DeltaKind

	// Job is set for DeltaAdded.
	Job *Job

	// JobID addresses the remaining kinds.
	JobID   string
	Status  Status
	Error   string
	Outputs []string

	Step       int
	TotalSteps int
}

// Transition describes a notification-worthy status change observed by the
// registry. From is empty when the job was seen for the first time.
type Transition struct {
	Job  Job
	From Status
	To   Status
}

// Registry is the canonical, deduplicated store of job records. It consumes
// snapshots from the poll fallback and deltas from the push channel, keeps
// aggregate counters, and surfaces each status transition exactly once
// regardless of which transport delivered it first.
type Registry struct {
	logger   *slog.Logger
	notifier *notify.Center

	mu        sync.Mutex
	jobs      map[string]*Job
	order     []string
	counters  Counters
	history   *statusHistory
	listeners []func(Transition)
	everHad   bool
}

// New constructs a registry. historyCapacity bounds the status history map;
// values <= 0 fall back to the default of 200.
func New(logger *slog.Logger, notifier *notify.Center, historyCapacity int) *Registry {
	return &Registry{
		logger:   logging.NewComponentLogger(logger, "registry"),
		notifier: notifier,
		jobs:     make(map[string]*Job),
		history:  newStatusHistory(historyCapacity),
	}
}

// Subscribe registers a listener invoked after every apply for each terminal
// transition (completed, failed, cancelled). Listeners run outside the
// registry lock and must not block.
func (r *Registry) Subscribe(fn func(Transition)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// View returns a copy of the externally observed state.
func (r *Registry) View() QueueView {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]Job, 0, len(r.order))
	for _, id := range r.order {
		items = append(items, *r.jobs[id])
	}
	return QueueView{Items: items, Counters: r.counters}
}

// Job returns the live record for an id.
func (r *Registry) Job(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// ApplySnapshot replaces the live set wholesale, recomputes counters from
// scratch, and runs the same change-detection pass as deltas over every item
// so notifications stay consistent across transports. Transitions the push
// channel already recorded in the status history are not re-announced.
func (r *Registry) ApplySnapshot(items []Job) {
	r.mu.Lock()

	hadJobs := r.everHad
	var terminal []Transition

	jobs := make(map[string]*Job, len(items))
	order := make([]string, 0, len(items))
	for i := range items {
		item := items[i]
		if item.ID == "" || !item.Status.Valid() {
			r.logger.Debug("dropping malformed snapshot item", logging.String("job_id", item.ID), logging.String("status", string(item.Status)))
			continue
		}
		if _, dup := jobs[item.ID]; dup {
			continue
		}

		prior, seen := r.priorStatus(item.ID)
		if seen && prior.IsTerminal() && !item.Status.IsTerminal() {
			// Never resurrect a terminal job; keep the terminal record.
			item.Status = prior
			if existing, ok := r.jobs[item.ID]; ok {
				item.Error = existing.Error
				item.Outputs = existing.Outputs
			}
		}
		r.reconcileExclusive(&item)

		jobs[item.ID] = &item
		order = append(order, item.ID)

		switch {
		case !seen:
			r.history.set(item.ID, item.Status)
			if hadJobs && item.Status == StatusPending {
				r.announceLocked(item, "", item.Status)
			}
			// Failures enter the error log even when the toast is suppressed,
			// so the planner still sees them as context.
			if item.Status == StatusFailed {
				r.appendFailureLocked(item)
			}
		case prior != item.Status:
			r.history.set(item.ID, item.Status)
			r.announceLocked(item, prior, item.Status)
			if item.Status.IsTerminal() {
				terminal = append(terminal, Transition{Job: item, From: prior, To: item.Status})
			}
		}
	}

	r.jobs = jobs
	r.order = order
	r.counters = countersFor(itemsOf(jobs, order))
	if len(order) > 0 {
		r.everHad = true
	}
	r.compactLocked()

	listeners := append([]func(Transition){}, r.listeners...)
	r.mu.Unlock()

	dispatch(listeners, terminal)
}

// ApplyDelta mutates exactly the addressed job. Counter adjustments use the
// live record's current status so out-of-order delivery cannot drive a
// bucket negative. Deltas for unknown job ids (other than added) are dropped
// silently; they indicate benign staleness, not an error.
func (r *Registry) ApplyDelta(delta Delta) {
	r.mu.Lock()

	var terminal []Transition

	switch delta.Kind {
	case DeltaAdded:
		if delta.Job == nil || delta.Job.ID == "" || !delta.Job.Status.Valid() {
			r.logger.Debug("dropping malformed added delta")
			break
		}
		job := *delta.Job
		if _, exists := r.jobs[job.ID]; exists {
			break
		}
		_, seen := r.priorStatus(job.ID)
		r.reconcileExclusive(&job)
		r.jobs[job.ID] = &job
		r.order = append(r.order, job.ID)
		r.counters.bump(job.Status, 1)
		r.counters.Total++
		if !seen && r.everHad && job.Status == StatusPending {
			r.announceLocked(job, "", job.Status)
		}
		if job.Status == StatusFailed {
			r.appendFailureLocked(job)
		}
		r.history.set(job.ID, job.Status)
		r.everHad = true

	case DeltaStatusChanged, DeltaCancelled:
		status := delta.Status
		if delta.Kind == DeltaCancelled {
			status = StatusCancelled
		}
		if !status.Valid() {
			r.logger.Debug("dropping delta with unknown status", logging.String("status", string(delta.Status)))
			break
		}
		job, ok := r.jobs[delta.JobID]
		if !ok {
			r.logger.Debug("dropping delta for unknown job", logging.String("job_id", delta.JobID))
			break
		}
		if job.Status.IsTerminal() {
			break
		}
		// The live record is authoritative for deltas. The history may
		// already hold the destination status (the push path records the
		// sighting before applying); it only suppresses cross-transport
		// re-announcement in the snapshot pass.
		prior := job.Status
		if prior == status {
			r.history.set(job.ID, status)
			break
		}

		r.counters.bump(prior, -1)
		r.counters.bump(status, 1)

		job.Status = status
		job.UpdatedAt = time.Now()
		if delta.Error != "" {
			job.Error = delta.Error
		}
		if len(delta.Outputs) > 0 {
			job.Outputs = append([]string{}, delta.Outputs...)
		}
		r.reconcileExclusive(job)

		r.history.set(job.ID, status)
		r.announceLocked(*job, prior, status)
		if status.IsTerminal() {
			terminal = append(terminal, Transition{Job: *job, From: prior, To: status})
		}

	case DeltaProgress:
		job, ok := r.jobs[delta.JobID]
		if !ok {
			r.logger.Debug("dropping progress for unknown job", logging.String("job_id", delta.JobID))
			break
		}
		if job.Status != StatusProcessing {
			break
		}
		job.Progress = &Progress{Step: delta.Step, TotalSteps: delta.TotalSteps}
		job.UpdatedAt = time.Now()

	default:
		r.logger.Debug("dropping delta of unknown kind", logging.String("kind", string(delta.Kind)))
	}

	r.compactLocked()

	listeners := append([]func(Transition){}, r.listeners...)
	r.mu.Unlock()

	dispatch(listeners, terminal)
}

// MarkSeen records a push-delivered status in the history without touching
// the live set. The push event path calls this before the poll snapshot
// containing the same transition lands, so the snapshot pass treats it as
// already announced. Unknown-id deltas are dropped by ApplyDelta, but the
// sighting still counts.
func (r *Registry) MarkSeen(jobID string, status Status) {
	if jobID == "" || !status.Valid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prior, ok := r.history.get(jobID); ok && prior.IsTerminal() {
		return
	}
	// No compaction here: the id may not be live yet, and pruning would
	// discard the sighting before the snapshot lands. The next apply re-caps.
	r.history.set(jobID, status)
}

func (r *Registry) priorStatus(id string) (Status, bool) {
	if status, ok := r.history.get(id); ok {
		return status, true
	}
	if job, ok := r.jobs[id]; ok {
		return job.Status, true
	}
	return "", false
}

// announceLocked emits the single toast a transition earns, chosen by the
// destination status. Failures reach the error log even when the toast itself
// was already announced by the push channel.
func (r *Registry) announceLocked(job Job, from, to Status) {
	if r.notifier == nil {
		return
	}
	label := job.Kind.Label()
	if label == "" {
		label = "Job"
	}
	switch to {
	case StatusPending:
		r.notifier.Post(fmt.Sprintf("%s queued", label), notify.SeverityInfo)
	case StatusProcessing:
		r.notifier.Post(fmt.Sprintf("%s started", label), notify.SeverityInfo)
	case StatusCompleted:
		r.notifier.Post(fmt.Sprintf("%s completed", label), notify.SeveritySuccess)
	case StatusFailed:
		message := fmt.Sprintf("%s failed", label)
		if job.Error != "" {
			message = fmt.Sprintf("%s failed: %s", label, job.Error)
		}
		r.notifier.Post(message, notify.SeverityError)
	case StatusCancelled:
		r.notifier.Post(fmt.Sprintf("%s cancelled", label), notify.SeverityWarning)
	}
}

func (r *Registry) appendFailureLocked(job Job) {
	if r.notifier == nil {
		return
	}
	message := fmt.Sprintf("%s failed", job.Kind.Label())
	if job.Error != "" {
		message = fmt.Sprintf("%s failed: %s", job.Kind.Label(), job.Error)
	}
	r.notifier.AppendError(message)
}

func (r *Registry) compactLocked() {
	live := make(map[string]struct{}, len(r.jobs))
	for id := range r.jobs {
		live[id] = struct{}{}
	}
	r.history.compact(live)
}

// reconcileExclusive enforces the status exclusivity invariant: progress only
// while processing, error only when failed, outputs only when completed.
func (r *Registry) reconcileExclusive(job *Job) {
	if job.Status != StatusProcessing {
		job.Progress = nil
	}
	if job.Status != StatusFailed {
		job.Error = ""
	}
	if job.Status != StatusCompleted {
		job.Outputs = nil
	}
}

func itemsOf(jobs map[string]*Job, order []string) []Job {
	items := make([]Job, 0, len(order))
	for _, id := range order {
		items = append(items, *jobs[id])
	}
	return items
}

func dispatch(listeners []func(Transition), transitions []Transition) {
	for _, transition := range transitions {
		for _, listener := range listeners {
			listener(transition)
		}
	}
}
