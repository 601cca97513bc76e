package transcript_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"easel/internal/transcript"
)

func openStore(t *testing.T) *transcript.Store {
	t.Helper()
	store, err := transcript.OpenPath(filepath.Join(t.TempDir(), "transcript.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	store := openStore(t)
	entry, err := store.Append(context.Background(), transcript.Entry{Role: transcript.RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if entry.ID == "" {
		t.Fatal("expected assigned id")
	}
	if entry.CreatedAt.IsZero() {
		t.Fatal("expected assigned timestamp")
	}
}

func TestVisibleExcludesHiddenEntries(t *testing.T) {
	store := openStore(t)
	base := time.Now().UTC()
	seed := []transcript.Entry{
		{Role: transcript.RoleUser, Content: "make me a sunset", CreatedAt: base},
		{Role: transcript.RoleUser, Content: "continuation: job done", Hidden: true, CreatedAt: base.Add(time.Second)},
		{Role: transcript.RoleAssistant, Content: "Your image is ready.", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, entry := range seed {
		if _, err := store.Append(context.Background(), entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	visible, err := store.Visible(context.Background(), 0)
	if err != nil {
		t.Fatalf("Visible: %v", err)
	}
	if len(visible) != 2 {
		t.Fatalf("expected 2 visible entries, got %d", len(visible))
	}
	if visible[0].Content != "make me a sunset" || visible[1].Content != "Your image is ready." {
		t.Fatalf("unexpected order: %q, %q", visible[0].Content, visible[1].Content)
	}

	all, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries including hidden, got %d", len(all))
	}
}

func TestRecentHonorsLimitChronologically(t *testing.T) {
	store := openStore(t)
	base := time.Now().UTC()
	for i, content := range []string{"one", "two", "three"} {
		if _, err := store.Append(context.Background(), transcript.Entry{Role: transcript.RoleUser, Content: content, CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recent, err := store.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].Content != "two" || recent[1].Content != "three" {
		t.Fatalf("expected newest two in order, got %q, %q", recent[0].Content, recent[1].Content)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	store := openStore(t)
	for _, content := range []string{"a", "b"} {
		if _, err := store.Append(context.Background(), transcript.Entry{Content: content}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	removed, err := store.Clear(context.Background())
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	remaining, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected empty transcript, got %d", len(remaining))
	}
}
