package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"easel/internal/config"
	"easel/internal/continuation"
	"easel/internal/logging"
	"easel/internal/notify"
	"easel/internal/orchestrator"
	"easel/internal/planner"
	"easel/internal/question"
	"easel/internal/registry"
	"easel/internal/transcript"
	"easel/internal/transport"
)

// Engine wires the client together and enforces single-instance execution.
// The push transport is injected; when nil the engine runs poll-only.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	center  *notify.Center
	reg     *registry.Registry
	ledger  *continuation.Ledger
	gate    *question.Gate
	client  *transport.Client
	arbiter *transport.Arbiter
	push    transport.PushTransport
	store   *transcript.Store
	orch    *orchestrator.Orchestrator
	models  *modelState
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status is the engine's runtime summary.
type Status struct {
	Running        bool                      `json:"running"`
	Connection     transport.ConnectionState `json:"connection"`
	CurrentModel   string                    `json:"current_model,omitempty"`
	ModelLoading   bool                      `json:"model_loading"`
	Counters       registry.Counters         `json:"counters"`
	PendingAsk     bool                      `json:"pending_question"`
	Continuations  int                       `json:"continuations"`
	TranscriptPath string                    `json:"transcript_path"`
	LockFilePath   string                    `json:"lock_file_path"`

	// ServerStatus and ServerVersion come from an on-demand health probe,
	// not the engine's own state; the status API fills them in.
	ServerStatus  string `json:"server_status,omitempty"`
	ServerVersion string `json:"server_version,omitempty"`
}

// New constructs an engine with initialized components. push may be nil.
func New(cfg *config.Config, logger *slog.Logger, push transport.PushTransport) (*Engine, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("engine requires config and logger")
	}

	center := notify.NewCenter(logger, notify.Options{
		TTL:             time.Duration(cfg.Notifications.ToastTTLSeconds) * time.Second,
		MaxToasts:       cfg.Notifications.MaxToasts,
		MaxRecentErrors: cfg.Notifications.MaxRecentErrors,
	})
	reg := registry.New(logger, center, cfg.History.StatusCapacity)
	ledger := continuation.NewLedger(logger, continuation.Options{
		TTL:           time.Duration(cfg.History.ContinuationTTLMinutes) * time.Minute,
		SweepInterval: time.Duration(cfg.History.ContinuationSweepMinute) * time.Minute,
	})
	gate := question.NewGate()
	client := transport.NewClient(cfg.Server.BaseURL, time.Duration(cfg.Server.RequestTimeout)*time.Second)
	store, err := transcript.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}

	pcfg := cfg.GetPlanner()
	plan := planner.NewClient(planner.Config{
		APIKey:         pcfg.APIKey,
		BaseURL:        pcfg.BaseURL,
		Model:          pcfg.Model,
		Referer:        pcfg.Referer,
		Title:          pcfg.Title,
		TimeoutSeconds: pcfg.TimeoutSeconds,
	})

	models := &modelState{}
	orch := orchestrator.New(orchestrator.Options{
		Logger:     logger,
		Server:     client,
		Planner:    plan,
		Registry:   reg,
		Ledger:     ledger,
		Gate:       gate,
		Transcript: store,
		Notifier:   center,
		Models:     models,
		OnCatalog:  models.applyOptions,
		Assistant:  cfg.Assistant,
	})
	reg.Subscribe(orch.HandleTransition)

	lockPath := filepath.Join(cfg.Paths.DataDir, "easel.lock")
	e := &Engine{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "engine"),
		center:   center,
		reg:      reg,
		ledger:   ledger,
		gate:     gate,
		client:   client,
		push:     push,
		store:    store,
		orch:     orch,
		models:   models,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	e.arbiter = transport.NewArbiter(logger, time.Duration(cfg.Server.PollInterval)*time.Second, e.poll)
	e.api = newAPIServer(cfg, e, logger)
	return e, nil
}

// Start acquires the instance lock, starts the sweep and fallback poll, and
// connects the push channel when one was provided.
func (e *Engine) Start(ctx context.Context) error {
	if e.running.Load() {
		return errors.New("engine already running")
	}

	ok, err := e.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another easel instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.ctx, e.cancel = runCtx, cancel
	e.mu.Unlock()

	e.ledger.Start(runCtx)

	if e.push != nil {
		e.arbiter.SetState(runCtx, transport.StateConnecting)
		if err := e.push.Connect(runCtx, e); err != nil {
			e.logger.Warn("push connect failed, running poll-only", logging.Error(err))
			e.arbiter.SetState(runCtx, transport.StateDisconnected)
		}
	} else {
		e.arbiter.SetState(runCtx, transport.StateDisconnected)
	}

	// Prime the registry before the first tick.
	go e.poll(runCtx)

	if err := e.api.start(runCtx); err != nil {
		e.teardown()
		return err
	}

	e.running.Store(true)
	e.logger.Info("engine started",
		logging.String("server", e.cfg.Server.BaseURL),
		logging.String("lock", e.lockPath))
	return nil
}

// Stop halts background work and releases the instance lock. The transcript
// store stays open; Close finishes the job.
func (e *Engine) Stop() {
	if !e.running.Load() {
		return
	}
	e.teardown()
	e.running.Store(false)
	e.logger.Info("engine stopped")
}

func (e *Engine) teardown() {
	e.mu.Lock()
	cancel := e.cancel
	e.ctx, e.cancel = nil, nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if e.push != nil {
		if err := e.push.Close(); err != nil {
			e.logger.Warn("push close failed", logging.Error(err))
		}
	}
	e.api.stop()
	e.arbiter.Close()
	e.orch.Close()
	e.ledger.Close()
	if err := e.lock.Unlock(); err != nil {
		e.logger.Warn("failed to release instance lock", logging.Error(err))
	}
}

// Close stops the engine and releases remaining resources.
func (e *Engine) Close() error {
	e.Stop()
	e.center.Close()
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

func (e *Engine) runCtx() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx
}

// Queue returns the current queue view.
func (e *Engine) Queue() registry.QueueView {
	return e.reg.View()
}

// ConnectionState reports the push channel state.
func (e *Engine) ConnectionState() transport.ConnectionState {
	return e.arbiter.State()
}

// Toasts returns the active toasts.
func (e *Engine) Toasts() []notify.Toast {
	return e.center.Active()
}

// DismissToast removes one toast by id.
func (e *Engine) DismissToast(id int64) bool {
	return e.center.Dismiss(id)
}

// RecentErrors returns the newest-first error log.
func (e *Engine) RecentErrors() []string {
	return e.center.RecentErrors()
}

// Transcript returns the visible conversation, oldest first.
func (e *Engine) Transcript(ctx context.Context, limit int) ([]transcript.Entry, error) {
	return e.store.Visible(ctx, limit)
}

// SendMessage runs one assistant turn.
func (e *Engine) SendMessage(ctx context.Context, text string) error {
	return e.orch.SendMessage(ctx, text)
}

// PendingQuestion returns the outstanding question, if any.
func (e *Engine) PendingQuestion() (question.Question, bool) {
	return e.gate.Pending()
}

// AnswerQuestion resolves the outstanding question.
func (e *Engine) AnswerQuestion(text string) bool {
	return e.gate.Answer(text)
}

// DismissQuestion resolves the outstanding question with the dismissal
// sentinel.
func (e *Engine) DismissQuestion() bool {
	return e.gate.Dismiss()
}

// Suggestion returns the proactive suggestion slot.
func (e *Engine) Suggestion() (string, bool) {
	return e.orch.Suggestion()
}

// DismissSuggestion clears the suggestion slot.
func (e *Engine) DismissSuggestion() {
	e.orch.DismissSuggestion()
}

// SetChatOpen records conversation-surface visibility for suggestion gating.
func (e *Engine) SetChatOpen(open bool) {
	e.orch.SetChatOpen(open)
}

// Status returns the engine runtime summary.
func (e *Engine) Status() Status {
	_, pendingAsk := e.gate.Pending()
	return Status{
		Running:        e.running.Load(),
		Connection:     e.arbiter.State(),
		CurrentModel:   e.models.CurrentModel(),
		ModelLoading:   e.models.Loading(),
		Counters:       e.reg.View().Counters,
		PendingAsk:     pendingAsk,
		Continuations:  e.ledger.Len(),
		TranscriptPath: e.store.Path(),
		LockFilePath:   e.lockPath,
	}
}

// ServerHealth probes the inference server's health endpoint on demand.
func (e *Engine) ServerHealth(ctx context.Context) (transport.Health, error) {
	return e.client.GetHealth(ctx)
}

// APIAddr returns the bound status API address, empty when disabled or not
// started.
func (e *Engine) APIAddr() string {
	return e.api.addr()
}
