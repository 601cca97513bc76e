package registry_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"easel/internal/logging"
	"easel/internal/notify"
	"easel/internal/registry"
)

func newRegistry(t *testing.T) (*registry.Registry, *notify.Center) {
	t.Helper()
	center := notify.NewCenter(logging.NewNop(), notify.Options{TTL: time.Minute})
	t.Cleanup(center.Close)
	return registry.New(logging.NewNop(), center, 0), center
}

func job(id string, status registry.Status) registry.Job {
	return registry.Job{ID: id, Kind: registry.KindTextToImage, Status: status}
}

func TestFirstSnapshotSuppressesToasts(t *testing.T) {
	reg, center := newRegistry(t)
	reg.ApplySnapshot([]registry.Job{job("j1", registry.StatusPending)})

	view := reg.View()
	if view.Counters.Pending != 1 || view.Counters.Total != 1 {
		t.Fatalf("unexpected counters: %+v", view.Counters)
	}
	if len(center.Active()) != 0 {
		t.Fatal("first load must not produce toasts")
	}
}

func TestDeltaLifecycleAnnouncesEachTransitionOnce(t *testing.T) {
	reg, center := newRegistry(t)
	reg.ApplySnapshot([]registry.Job{job("j1", registry.StatusPending)})

	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaAdded, Job: &registry.Job{ID: "j2", Kind: registry.KindTextToImage, Status: registry.StatusPending}})
	if got := reg.View().Counters; got.Pending != 2 {
		t.Fatalf("expected pending=2, got %+v", got)
	}
	if len(center.Active()) != 1 {
		t.Fatalf("expected queued toast, got %d", len(center.Active()))
	}

	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaStatusChanged, JobID: "j2", Status: registry.StatusProcessing})
	got := reg.View().Counters
	if got.Pending != 1 || got.Processing != 1 {
		t.Fatalf("expected pending=1 processing=1, got %+v", got)
	}
	if len(center.Active()) != 2 {
		t.Fatalf("expected processing toast, got %d toasts", len(center.Active()))
	}

	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaStatusChanged, JobID: "j2", Status: registry.StatusCompleted, Outputs: []string{"out.png"}})
	got = reg.View().Counters
	if got.Pending != 1 || got.Processing != 0 || got.Completed != 1 {
		t.Fatalf("unexpected counters after completion: %+v", got)
	}
	if len(center.Active()) != 3 {
		t.Fatalf("expected completion toast, got %d toasts", len(center.Active()))
	}
}

func TestCountersAlwaysRecomputable(t *testing.T) {
	reg, _ := newRegistry(t)
	reg.ApplySnapshot([]registry.Job{job("a", registry.StatusPending), job("b", registry.StatusProcessing)})
	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaStatusChanged, JobID: "a", Status: registry.StatusProcessing})
	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaStatusChanged, JobID: "b", Status: registry.StatusFailed, Error: "oom"})
	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaAdded, Job: &registry.Job{ID: "c", Kind: registry.KindUpscale, Status: registry.StatusPending}})
	reg.ApplySnapshot([]registry.Job{job("a", registry.StatusProcessing), job("b", registry.StatusFailed), job("c", registry.StatusPending)})

	view := reg.View()
	fresh := struct{ pending, processing, completed, failed int }{}
	for _, item := range view.Items {
		switch item.Status {
		case registry.StatusPending:
			fresh.pending++
		case registry.StatusProcessing:
			fresh.processing++
		case registry.StatusCompleted:
			fresh.completed++
		case registry.StatusFailed:
			fresh.failed++
		}
	}
	c := view.Counters
	if c.Pending != fresh.pending || c.Processing != fresh.processing || c.Completed != fresh.completed || c.Failed != fresh.failed || c.Total != len(view.Items) {
		t.Fatalf("incremental counters %+v diverge from recomputation %+v", c, fresh)
	}
}

func TestTerminalStatusNeverResurrected(t *testing.T) {
	reg, _ := newRegistry(t)
	reg.ApplySnapshot([]registry.Job{job("j1", registry.StatusProcessing)})
	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaStatusChanged, JobID: "j1", Status: registry.StatusCompleted})

	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaStatusChanged, JobID: "j1", Status: registry.StatusPending})
	if got, _ := reg.Job("j1"); got.Status != registry.StatusCompleted {
		t.Fatalf("delta resurrected terminal job: %s", got.Status)
	}

	reg.ApplySnapshot([]registry.Job{job("j1", registry.StatusProcessing)})
	if got, _ := reg.Job("j1"); got.Status != registry.StatusCompleted {
		t.Fatalf("snapshot resurrected terminal job: %s", got.Status)
	}
}

func TestPushAnnouncedTransitionNotRepeatedBySnapshot(t *testing.T) {
	reg, center := newRegistry(t)
	reg.ApplySnapshot([]registry.Job{job("j1", registry.StatusPending)})

	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaStatusChanged, JobID: "j1", Status: registry.StatusProcessing})
	if len(center.Active()) != 1 {
		t.Fatalf("expected exactly one toast from push, got %d", len(center.Active()))
	}

	reg.ApplySnapshot([]registry.Job{job("j1", registry.StatusProcessing)})
	if len(center.Active()) != 1 {
		t.Fatalf("snapshot re-announced push transition: %d toasts", len(center.Active()))
	}
}

func TestUnknownDeltaDroppedSilently(t *testing.T) {
	reg, center := newRegistry(t)
	reg.ApplySnapshot([]registry.Job{job("j1", registry.StatusPending)})
	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaStatusChanged, JobID: "ghost", Status: registry.StatusCompleted})

	if len(center.Active()) != 0 {
		t.Fatal("unknown-id delta must not toast")
	}
	if got := reg.View().Counters; got.Completed != 0 || got.Total != 1 {
		t.Fatalf("unknown-id delta mutated counters: %+v", got)
	}
}

func TestFailureReachesErrorLogEvenWhenToastSuppressed(t *testing.T) {
	reg, center := newRegistry(t)
	// First load: no toasts, but the failed job still enters the error log.
	reg.ApplySnapshot([]registry.Job{{ID: "j1", Kind: registry.KindTextToVideo, Status: registry.StatusFailed, Error: "cuda out of memory"}})

	if len(center.Active()) != 0 {
		t.Fatal("first load must not toast")
	}
	errs := center.RecentErrors()
	if len(errs) != 1 || !strings.Contains(errs[0], "cuda out of memory") {
		t.Fatalf("expected failure in error log, got %v", errs)
	}
}

func TestProgressOnlyWhileProcessing(t *testing.T) {
	reg, _ := newRegistry(t)
	reg.ApplySnapshot([]registry.Job{job("j1", registry.StatusPending)})

	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaProgress, JobID: "j1", Step: 5, TotalSteps: 20})
	if got, _ := reg.Job("j1"); got.Progress != nil {
		t.Fatal("progress applied to pending job")
	}

	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaStatusChanged, JobID: "j1", Status: registry.StatusProcessing})
	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaProgress, JobID: "j1", Step: 5, TotalSteps: 20})
	got, _ := reg.Job("j1")
	if got.Progress == nil || got.Progress.Step != 5 || got.Progress.TotalSteps != 20 {
		t.Fatalf("expected progress recorded, got %+v", got.Progress)
	}

	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaStatusChanged, JobID: "j1", Status: registry.StatusCompleted})
	got, _ = reg.Job("j1")
	if got.Progress != nil {
		t.Fatal("progress must clear on terminal status")
	}
}

func TestCancelledDeltaWarnsOnce(t *testing.T) {
	reg, center := newRegistry(t)
	reg.ApplySnapshot([]registry.Job{job("j1", registry.StatusProcessing)})
	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaCancelled, JobID: "j1"})

	active := center.Active()
	if len(active) != 1 || active[0].Severity != notify.SeverityWarning {
		t.Fatalf("expected one warning toast, got %+v", active)
	}
	if got, _ := reg.Job("j1"); got.Status != registry.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", got.Status)
	}
}

func TestSubscribersSeeTerminalTransitions(t *testing.T) {
	reg, _ := newRegistry(t)
	var mu sync.Mutex
	var seen []registry.Transition
	reg.Subscribe(func(tr registry.Transition) {
		mu.Lock()
		seen = append(seen, tr)
		mu.Unlock()
	})

	reg.ApplySnapshot([]registry.Job{job("j1", registry.StatusProcessing)})
	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaStatusChanged, JobID: "j1", Status: registry.StatusFailed, Error: "boom"})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("expected one terminal transition, got %d", len(seen))
	}
	if seen[0].To != registry.StatusFailed || seen[0].Job.Error != "boom" {
		t.Fatalf("unexpected transition: %+v", seen[0])
	}
}

func TestStatusHistoryBounded(t *testing.T) {
	center := notify.NewCenter(logging.NewNop(), notify.Options{TTL: time.Minute})
	defer center.Close()
	reg := registry.New(logging.NewNop(), center, 10)

	// Churn many short-lived jobs through snapshots; the live set stays small
	// and history must not grow past its cap.
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("job-%d", i)
		reg.ApplySnapshot([]registry.Job{job(id, registry.StatusPending)})
	}

	// The final snapshot holds one job; prior ids are pruned so a re-observed
	// old id counts as first-seen again and does not toast on its own.
	view := reg.View()
	if view.Counters.Total != 1 {
		t.Fatalf("expected single live job, got %+v", view.Counters)
	}
}

func TestMarkSeenSuppressesSnapshotReannouncement(t *testing.T) {
	reg, center := newRegistry(t)
	reg.ApplySnapshot([]registry.Job{job("a", registry.StatusPending)})

	// Push channel sighted j2 as queued before the fallback poll caught up.
	reg.MarkSeen("j2", registry.StatusPending)
	reg.ApplySnapshot([]registry.Job{job("a", registry.StatusPending), job("j2", registry.StatusPending)})
	if got := len(center.Active()); got != 0 {
		t.Fatalf("pre-registered job re-toasted by snapshot: %d toasts", got)
	}

	// The same sighting must not block announcing a real later transition.
	reg.ApplySnapshot([]registry.Job{job("a", registry.StatusPending), job("j2", registry.StatusProcessing)})
	if got := len(center.Active()); got != 1 {
		t.Fatalf("expected processing toast after real transition, got %d", got)
	}
}

func TestMarkSeenNeverDowngradesTerminal(t *testing.T) {
	reg, _ := newRegistry(t)
	reg.ApplySnapshot([]registry.Job{job("a", registry.StatusCompleted)})

	reg.MarkSeen("a", registry.StatusProcessing)
	reg.ApplySnapshot([]registry.Job{job("a", registry.StatusProcessing)})
	if got, _ := reg.Job("a"); got.Status != registry.StatusCompleted {
		t.Fatalf("terminal job downgraded via MarkSeen: %s", got.Status)
	}
}

func TestMarkSeenBeforeDeltaStillAppliesTransition(t *testing.T) {
	reg, center := newRegistry(t)
	reg.ApplySnapshot([]registry.Job{job("j1", registry.StatusPending)})

	var mu sync.Mutex
	var transitions []registry.Transition
	reg.Subscribe(func(tr registry.Transition) {
		mu.Lock()
		transitions = append(transitions, tr)
		mu.Unlock()
	})

	// Push path: the sighting lands in the history first, then the delta for
	// the same event. The delta must still mutate the live record.
	reg.MarkSeen("j1", registry.StatusProcessing)
	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaStatusChanged, JobID: "j1", Status: registry.StatusProcessing})

	if got, _ := reg.Job("j1"); got.Status != registry.StatusProcessing {
		t.Fatalf("live status = %s, want processing", got.Status)
	}
	view := reg.View()
	if view.Counters.Processing != 1 || view.Counters.Pending != 0 {
		t.Fatalf("unexpected counters: %+v", view.Counters)
	}
	if got := len(center.Active()); got != 1 {
		t.Fatalf("expected exactly one toast, got %d", got)
	}

	// The poll snapshot carrying the same transition stays silent.
	reg.ApplySnapshot([]registry.Job{job("j1", registry.StatusProcessing)})
	if got := len(center.Active()); got != 1 {
		t.Fatalf("snapshot re-announced push transition: %d toasts", got)
	}

	// Terminal transitions delivered this way still reach subscribers.
	reg.MarkSeen("j1", registry.StatusCompleted)
	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaStatusChanged, JobID: "j1", Status: registry.StatusCompleted})

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 1 || transitions[0].To != registry.StatusCompleted {
		t.Fatalf("expected one completed transition, got %+v", transitions)
	}
}

func TestPushAddedDeltaAnnouncesArrival(t *testing.T) {
	reg, center := newRegistry(t)
	reg.ApplySnapshot([]registry.Job{job("j1", registry.StatusProcessing)})

	added := job("j2", registry.StatusPending)
	reg.ApplyDelta(registry.Delta{Kind: registry.DeltaAdded, Job: &added})
	if got := len(center.Active()); got != 1 {
		t.Fatalf("expected queued toast for push-added job, got %d", got)
	}

	// The snapshot that follows must not repeat it.
	reg.ApplySnapshot([]registry.Job{job("j1", registry.StatusProcessing), job("j2", registry.StatusPending)})
	if got := len(center.Active()); got != 1 {
		t.Fatalf("snapshot re-announced push-added job: %d toasts", got)
	}
}
