package question

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrQuestionPending is returned when Ask is called while another question is
// still unanswered. Concurrent asks are rejected rather than queued so the
// first caller can never be silently stalled.
var ErrQuestionPending = errors.New("a question is already pending")

// DismissedAnswer is the sentinel answer delivered when the user dismisses a
// question without answering. Dismissal resolves rather than fails so the
// orchestrator's wait path has exactly one case.
const DismissedAnswer = "(user dismissed the question)"

// Question is a prompt for the human, optionally with fixed choices.
type Question struct {
	ID            string   `json:"id"`
	Title         string   `json:"title,omitempty"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options,omitempty"`
	AllowFreeform bool     `json:"allow_freeform"`
}

type pending struct {
	question Question
	answer   chan string
}

// Gate is the single-slot blocking rendezvous between the orchestrator and a
// human. Ask blocks until Answer or Dismiss resolves the slot.
type Gate struct {
	mu      sync.Mutex
	current *pending
}

// NewGate constructs an empty gate.
func NewGate() *Gate {
	return &Gate{}
}

// Ask publishes a question and blocks until it is answered, dismissed, or the
// context ends. A second concurrent Ask returns ErrQuestionPending.
func (g *Gate) Ask(ctx context.Context, q Question) (string, error) {
	g.mu.Lock()
	if g.current != nil {
		g.mu.Unlock()
		return "", ErrQuestionPending
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	slot := &pending{question: q, answer: make(chan string, 1)}
	g.current = slot
	g.mu.Unlock()

	select {
	case answer := <-slot.answer:
		return answer, nil
	case <-ctx.Done():
		g.clear(slot)
		return "", ctx.Err()
	}
}

// Pending returns the outstanding question, if any.
func (g *Gate) Pending() (Question, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return Question{}, false
	}
	return g.current.question, true
}

// Answer resolves the outstanding question with the given text. It reports
// whether a question was resolved; answering an already-resolved question is
// a no-op.
func (g *Gate) Answer(text string) bool {
	return g.resolve(text)
}

// Dismiss resolves the outstanding question with the dismissal sentinel.
func (g *Gate) Dismiss() bool {
	return g.resolve(DismissedAnswer)
}

func (g *Gate) resolve(text string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return false
	}
	g.current.answer <- text
	g.current = nil
	return true
}

func (g *Gate) clear(slot *pending) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == slot {
		g.current = nil
	}
}
