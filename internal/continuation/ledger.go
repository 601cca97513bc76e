package continuation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"easel/internal/logging"
)

const (
	defaultTTL           = time.Hour
	defaultSweepInterval = 5 * time.Minute
)

// Continuation records what the orchestrator was doing when it submitted a
// job whose outcome should resume the conversation.
type Continuation struct {
	JobID     string
	Context   string
	StartedAt time.Time
}

// Options configures ledger expiry.
type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// Ledger maps in-flight job ids to orchestrator context. Entries expire after
// a TTL regardless of whether their job ever resolves, bounding memory when a
// job id vanishes from the server's own history.
type Ledger struct {
	logger        *slog.Logger
	ttl           time.Duration
	sweepInterval time.Duration

	mu      sync.Mutex
	entries map[string]Continuation

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLedger constructs a ledger. Zero option fields fall back to the package
// defaults (1 hour TTL, 5 minute sweep).
func NewLedger(logger *slog.Logger, opts Options) *Ledger {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	return &Ledger{
		logger:        logging.NewComponentLogger(logger, "continuation"),
		ttl:           opts.TTL,
		sweepInterval: opts.SweepInterval,
		entries:       make(map[string]Continuation),
	}
}

// Register inserts or overwrites the continuation for a job id. At most one
// continuation exists per id.
func (l *Ledger) Register(jobID, contextText string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[jobID] = Continuation{
		JobID:     jobID,
		Context:   contextText,
		StartedAt: time.Now(),
	}
}

// Resolve returns and removes the continuation for a job id.
func (l *Ledger) Resolve(jobID string) (Continuation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[jobID]
	if ok {
		delete(l.entries, jobID)
	}
	return entry, ok
}

// Len returns the number of registered continuations.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Start launches the periodic sweep. It is safe to call once per ledger.
func (l *Ledger) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := l.Sweep(time.Now()); removed > 0 {
					l.logger.Debug("swept expired continuations", logging.Int("removed", removed))
				}
			}
		}
	}()
}

// Sweep removes entries older than the TTL relative to now and reports how
// many were removed.
func (l *Ledger) Sweep(now time.Time) int {
	cutoff := now.Add(-l.ttl)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, entry := range l.entries {
		if entry.StartedAt.Before(cutoff) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// Close stops the sweep goroutine.
func (l *Ledger) Close() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.wg.Wait()
}
