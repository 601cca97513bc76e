package continuation_test

import (
	"context"
	"testing"
	"time"

	"easel/internal/continuation"
	"easel/internal/logging"
)

func TestRegisterThenResolveReturnsContextOnce(t *testing.T) {
	ledger := continuation.NewLedger(logging.NewNop(), continuation.Options{})

	ledger.Register("j1", "generating a sunset image")
	entry, ok := ledger.Resolve("j1")
	if !ok {
		t.Fatal("expected continuation")
	}
	if entry.Context != "generating a sunset image" {
		t.Fatalf("unexpected context: %q", entry.Context)
	}

	if _, ok := ledger.Resolve("j1"); ok {
		t.Fatal("second resolve must return none")
	}
}

func TestRegisterOverwritesExisting(t *testing.T) {
	ledger := continuation.NewLedger(logging.NewNop(), continuation.Options{})
	ledger.Register("j1", "first")
	ledger.Register("j1", "second")
	if ledger.Len() != 1 {
		t.Fatalf("expected single entry, got %d", ledger.Len())
	}
	entry, _ := ledger.Resolve("j1")
	if entry.Context != "second" {
		t.Fatalf("expected overwrite, got %q", entry.Context)
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	ledger := continuation.NewLedger(logging.NewNop(), continuation.Options{TTL: time.Hour})
	ledger.Register("old", "stale work")
	ledger.Register("new", "fresh work")

	// An entry registered now is not yet expired; advance the clock instead.
	removed := ledger.Sweep(time.Now().Add(2 * time.Hour))
	if removed != 2 {
		t.Fatalf("expected both entries swept at +2h, got %d", removed)
	}
	if ledger.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d", ledger.Len())
	}
}

func TestSweepKeepsFreshEntries(t *testing.T) {
	ledger := continuation.NewLedger(logging.NewNop(), continuation.Options{TTL: time.Hour})
	ledger.Register("j1", "work")
	if removed := ledger.Sweep(time.Now()); removed != 0 {
		t.Fatalf("fresh entry swept: %d", removed)
	}
}

func TestStartAndCloseLeaveNoGoroutine(t *testing.T) {
	ledger := continuation.NewLedger(logging.NewNop(), continuation.Options{TTL: time.Millisecond, SweepInterval: time.Millisecond})
	ledger.Register("j1", "work")
	ledger.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ledger.Len() == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if ledger.Len() != 0 {
		t.Fatal("sweep never removed the expired entry")
	}
	ledger.Close()
}
