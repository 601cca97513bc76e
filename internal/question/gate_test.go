package question_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"easel/internal/question"
)

func TestAskResolvedByAnswer(t *testing.T) {
	gate := question.NewGate()
	result := make(chan string, 1)

	go func() {
		answer, err := gate.Ask(context.Background(), question.Question{Prompt: "Which model?", Options: []string{"a", "b"}})
		if err != nil {
			t.Errorf("Ask: %v", err)
		}
		result <- answer
	}()

	waitForPending(t, gate)
	if !gate.Answer("a") {
		t.Fatal("expected Answer to resolve the question")
	}

	select {
	case answer := <-result:
		if answer != "a" {
			t.Fatalf("unexpected answer: %q", answer)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Ask never returned")
	}

	if gate.Answer("late") {
		t.Fatal("answering after resolution must be a no-op")
	}
}

func TestDismissResolvesWithSentinel(t *testing.T) {
	gate := question.NewGate()
	result := make(chan string, 1)

	go func() {
		answer, _ := gate.Ask(context.Background(), question.Question{Prompt: "Continue?"})
		result <- answer
	}()

	waitForPending(t, gate)
	gate.Dismiss()

	select {
	case answer := <-result:
		if answer != question.DismissedAnswer {
			t.Fatalf("expected dismissal sentinel, got %q", answer)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Ask never returned")
	}
}

func TestSecondAskRejected(t *testing.T) {
	gate := question.NewGate()
	go func() {
		_, _ = gate.Ask(context.Background(), question.Question{Prompt: "first"})
	}()
	waitForPending(t, gate)

	if _, err := gate.Ask(context.Background(), question.Question{Prompt: "second"}); !errors.Is(err, question.ErrQuestionPending) {
		t.Fatalf("expected ErrQuestionPending, got %v", err)
	}
	gate.Dismiss()
}

func TestAskHonorsContextCancellation(t *testing.T) {
	gate := question.NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)

	go func() {
		_, err := gate.Ask(ctx, question.Question{Prompt: "cancelled"})
		errc <- err
	}()

	waitForPending(t, gate)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Ask never returned after cancel")
	}

	// The slot must be free again.
	if _, ok := gate.Pending(); ok {
		t.Fatal("expected empty slot after cancellation")
	}
}

func waitForPending(t *testing.T, gate *question.Gate) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := gate.Pending(); ok {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("question never became pending")
}
