package notify_test

import (
	"fmt"
	"testing"
	"time"

	"easel/internal/logging"
	"easel/internal/notify"
)

func newCenter(t *testing.T, opts notify.Options) *notify.Center {
	t.Helper()
	center := notify.NewCenter(logging.NewNop(), opts)
	t.Cleanup(center.Close)
	return center
}

func TestPostAssignsMonotonicIDs(t *testing.T) {
	center := newCenter(t, notify.Options{TTL: time.Minute})
	first := center.Post("one", notify.SeverityInfo)
	second := center.Post("two", notify.SeverityInfo)
	if second.ID <= first.ID {
		t.Fatalf("expected increasing ids, got %d then %d", first.ID, second.ID)
	}
	if first.Handle == second.Handle {
		t.Fatal("expected distinct handles")
	}
}

func TestPostEvictsOldestBeyondCap(t *testing.T) {
	center := newCenter(t, notify.Options{TTL: time.Minute, MaxToasts: 3})
	for i := 0; i < 5; i++ {
		center.Post(fmt.Sprintf("toast %d", i), notify.SeverityInfo)
	}
	active := center.Active()
	if len(active) != 3 {
		t.Fatalf("expected 3 live toasts, got %d", len(active))
	}
	if active[0].Message != "toast 2" {
		t.Fatalf("expected oldest survivors evicted first, got %q", active[0].Message)
	}
}

func TestToastExpiresAfterTTL(t *testing.T) {
	center := newCenter(t, notify.Options{TTL: 20 * time.Millisecond})
	center.Post("short lived", notify.SeverityInfo)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(center.Active()) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("toast never expired")
}

func TestDismissRemovesImmediately(t *testing.T) {
	center := newCenter(t, notify.Options{TTL: time.Minute})
	toast := center.Post("dismiss me", notify.SeverityWarning)
	if !center.Dismiss(toast.ID) {
		t.Fatal("expected dismiss to report removal")
	}
	if center.Dismiss(toast.ID) {
		t.Fatal("second dismiss should be a no-op")
	}
	if len(center.Active()) != 0 {
		t.Fatal("expected no live toasts")
	}
}

func TestErrorPostsMirroredNewestFirst(t *testing.T) {
	center := newCenter(t, notify.Options{TTL: time.Minute, MaxRecentErrors: 2})
	center.Post("first failure", notify.SeverityError)
	center.Post("not an error", notify.SeverityInfo)
	center.Post("second failure", notify.SeverityError)
	center.AppendError("suppressed failure")

	errs := center.RecentErrors()
	if len(errs) != 2 {
		t.Fatalf("expected error log capped at 2, got %d", len(errs))
	}
	if errs[0] != "suppressed failure" || errs[1] != "second failure" {
		t.Fatalf("unexpected error log order: %v", errs)
	}
}

func TestCloseCancelsTimers(t *testing.T) {
	center := notify.NewCenter(logging.NewNop(), notify.Options{TTL: time.Minute})
	center.Post("live", notify.SeverityInfo)
	center.Close()
	if len(center.Active()) != 0 {
		t.Fatal("expected no live toasts after close")
	}
	// Posting after close must not schedule timers but still feeds the log.
	center.Post("late failure", notify.SeverityError)
	if len(center.RecentErrors()) != 1 {
		t.Fatal("expected error log append after close")
	}
}
