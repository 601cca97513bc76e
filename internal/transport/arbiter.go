package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"easel/internal/logging"
)

const defaultPollInterval = 2 * time.Second

// PollFunc fetches a queue snapshot and applies it downstream. Errors are the
// poll function's own concern; the arbiter only schedules it.
type PollFunc func(ctx context.Context)

// Arbiter decides whether the system is push-driven or poll-driven. While the
// push channel is down it runs the fallback poll at a fixed interval; the
// moment the channel is connected the poll stops. Connecting and reconnecting
// leave the poll untouched so reconnect backoff cannot thundering-herd the
// server.
type Arbiter struct {
	logger       *slog.Logger
	pollInterval time.Duration
	poll         PollFunc

	mu             sync.Mutex
	state          ConnectionState
	lastDisconnect time.Time
	pollCancel     context.CancelFunc
	wg             sync.WaitGroup
	closed         bool
}

// NewArbiter constructs an arbiter in the disconnected state without arming
// the poll; SetState drives everything after Start.
func NewArbiter(logger *slog.Logger, pollInterval time.Duration, poll PollFunc) *Arbiter {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Arbiter{
		logger:       logging.NewComponentLogger(logger, "transport"),
		pollInterval: pollInterval,
		poll:         poll,
		state:        StateDisconnected,
	}
}

// State returns the current connection state.
func (a *Arbiter) State() ConnectionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// LastDisconnect returns when the channel last dropped; zero if it never has.
func (a *Arbiter) LastDisconnect() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastDisconnect
}

// SetState applies a connection-state transition and arms or disarms the
// fallback poll accordingly. Arming is idempotent; at most one poll loop
// exists at a time. Transport errors never propagate past this method; they
// arrive as transitions.
func (a *Arbiter) SetState(ctx context.Context, state ConnectionState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if state == a.state {
		// The arbiter starts disconnected with the poll unarmed, so
		// re-entering disconnected must still arm it. startPollLocked is
		// idempotent; every other repeat is a no-op.
		if state == StateDisconnected {
			a.startPollLocked(ctx)
		}
		return
	}

	previous := a.state
	a.state = state
	a.logger.Info("connection state changed",
		logging.String("from", string(previous)),
		logging.String("to", string(state)))

	switch state {
	case StateConnected:
		a.stopPollLocked()
	case StateDisconnected:
		a.lastDisconnect = time.Now()
		a.startPollLocked(ctx)
	case StateConnecting, StateReconnecting:
		// Leave the poll as-is during backoff.
		if previous == StateConnected {
			a.lastDisconnect = time.Now()
		}
	}
}

// Close stops any running poll loop. The arbiter ignores transitions after
// close.
func (a *Arbiter) Close() {
	a.mu.Lock()
	a.closed = true
	a.stopPollLocked()
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Arbiter) startPollLocked(ctx context.Context) {
	if a.pollCancel != nil || a.poll == nil {
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	a.pollCancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				a.poll(pollCtx)
			}
		}
	}()
	a.logger.Debug("fallback poll armed", logging.Duration("interval", a.pollInterval))
}

func (a *Arbiter) stopPollLocked() {
	if a.pollCancel == nil {
		return
	}
	a.pollCancel()
	a.pollCancel = nil
	a.logger.Debug("fallback poll disarmed")
}
