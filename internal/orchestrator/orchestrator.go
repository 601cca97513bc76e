package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"easel/internal/config"
	"easel/internal/continuation"
	"easel/internal/logging"
	"easel/internal/notify"
	"easel/internal/planner"
	"easel/internal/question"
	"easel/internal/registry"
	"easel/internal/transcript"
	"easel/internal/transport"
)

var (
	// ErrBusy is returned when a turn is already in flight.
	ErrBusy = errors.New("assistant is busy with another request")

	// ErrWaitTimeout is returned when a blocking action outlives its deadline.
	ErrWaitTimeout = errors.New("timed out waiting for server")
)

const (
	defaultMaxRetries     = 2
	defaultWaitTimeout    = 5 * time.Minute
	defaultWaitPoll       = time.Second
	defaultCatalogTTL     = 5 * time.Minute
	defaultSuggestionCool = 60 * time.Second

	recentJobLimit = 10
)

// ServerAPI is the slice of the server client the orchestrator drives.
type ServerAPI interface {
	SubmitJob(ctx context.Context, req transport.JobRequest) (transport.SubmitResult, error)
	CancelJob(ctx context.Context, jobID string) error
	GetJob(ctx context.Context, jobID string) (registry.Job, error)
	GetOptions(ctx context.Context) (transport.Options, error)
	LoadModel(ctx context.Context, name string) error
	UnloadModel(ctx context.Context) error
	SetSetting(ctx context.Context, update transport.SettingUpdate) error
	DownloadModel(ctx context.Context, source string) (transport.SubmitResult, error)
}

// Planner produces a plan for one turn.
type Planner interface {
	Chat(ctx context.Context, message string, pctx planner.Context) (planner.Response, error)
}

// ModelState reports what the server currently has loaded. The engine owns
// the underlying struct and keeps it current from push events.
type ModelState interface {
	CurrentModel() string
	Loading() bool
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Logger     *slog.Logger
	Server     ServerAPI
	Planner    Planner
	Registry   *registry.Registry
	Ledger     *continuation.Ledger
	Gate       *question.Gate
	Transcript *transcript.Store
	Notifier   *notify.Center
	Models     ModelState

	// OnCatalog is invoked with every fresh option catalog so the embedder
	// can reconcile its own model-state view. Optional.
	OnCatalog func(transport.Options)

	Assistant config.Assistant
}

// Orchestrator turns user messages into plans and plans into server calls.
// One turn runs at a time; SendMessage during a turn fails fast with ErrBusy
// rather than queueing.
type Orchestrator struct {
	logger     *slog.Logger
	server     ServerAPI
	planner    Planner
	registry   *registry.Registry
	ledger     *continuation.Ledger
	gate       *question.Gate
	transcript *transcript.Store
	notifier   *notify.Center
	models     ModelState
	onCatalog  func(transport.Options)

	maxRetries         int
	waitTimeout        time.Duration
	waitPoll           time.Duration
	catalogTTL         time.Duration
	suggestionsEnabled bool
	suggestionCooldown time.Duration

	now func() time.Time

	mu             sync.Mutex
	loading        bool
	chatOpen       bool
	prevResults    []string
	catalog        transport.Options
	catalogAt      time.Time
	suggestion     string
	lastSuggestion time.Time

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New constructs an orchestrator. Zero-valued Assistant fields fall back to
// the stock tuning (two retries, 1s checks against a 5-minute wait deadline,
// 60s suggestion cooldown, 5-minute catalog staleness).
func New(opts Options) *Orchestrator {
	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		logger:     logging.NewComponentLogger(opts.Logger, "orchestrator"),
		server:     opts.Server,
		planner:    opts.Planner,
		registry:   opts.Registry,
		ledger:     opts.Ledger,
		gate:       opts.Gate,
		transcript: opts.Transcript,
		notifier:   opts.Notifier,
		models:     opts.Models,
		onCatalog:  opts.OnCatalog,

		maxRetries:         defaultMaxRetries,
		waitTimeout:        defaultWaitTimeout,
		waitPoll:           defaultWaitPoll,
		catalogTTL:         defaultCatalogTTL,
		suggestionsEnabled: opts.Assistant.ProactiveSuggestions,
		suggestionCooldown: defaultSuggestionCool,

		now:        time.Now,
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
	}
	if opts.Assistant.MaxRetries > 0 {
		o.maxRetries = opts.Assistant.MaxRetries
	}
	if opts.Assistant.ModelWaitTimeout > 0 {
		o.waitTimeout = time.Duration(opts.Assistant.ModelWaitTimeout) * time.Second
	}
	if opts.Assistant.ModelWaitPollInterval > 0 {
		o.waitPoll = time.Duration(opts.Assistant.ModelWaitPollInterval) * time.Second
	}
	if opts.Assistant.SuggestionCooldown > 0 {
		o.suggestionCooldown = time.Duration(opts.Assistant.SuggestionCooldown) * time.Second
	}
	if opts.Assistant.CatalogTTLSeconds > 0 {
		o.catalogTTL = time.Duration(opts.Assistant.CatalogTTLSeconds) * time.Second
	}
	return o
}

// Close cancels pending continuation turns and waits for them to drain.
func (o *Orchestrator) Close() {
	o.lifeCancel()
	o.wg.Wait()
}

// Loading reports whether a turn is in flight.
func (o *Orchestrator) Loading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading
}

// SetChatOpen records whether the conversation surface is visible. Proactive
// suggestions only fire while it is closed.
func (o *Orchestrator) SetChatOpen(open bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.chatOpen = open
}

// Suggestion returns the current proactive suggestion, if any.
func (o *Orchestrator) Suggestion() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.suggestion, o.suggestion != ""
}

// DismissSuggestion clears the suggestion slot.
func (o *Orchestrator) DismissSuggestion() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.suggestion = ""
}

type sendOptions struct {
	hidden bool
}

// SendMessage runs one user-visible turn.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) error {
	return o.send(ctx, text, sendOptions{})
}

func (o *Orchestrator) send(ctx context.Context, text string, opts sendOptions) error {
	if !o.beginTurn() {
		return ErrBusy
	}
	yield, err := o.run(ctx, text, opts, 0)
	o.endTurn()
	// Spawn only after the turn lock is released so an instantly resolving
	// yield does not trip the busy guard.
	if yield != nil {
		o.spawnYield(yield)
	}
	return err
}

func (o *Orchestrator) beginTurn() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.loading {
		return false
	}
	o.loading = true
	return true
}

func (o *Orchestrator) endTurn() {
	o.mu.Lock()
	o.loading = false
	o.mu.Unlock()
}

// run executes one planner turn: refresh the catalog if stale, persist the
// user message, call the planner, persist its reply, execute its actions in
// order, then either register continuations (clean batch) or burn one retry
// on a synthetic correction turn.
func (o *Orchestrator) run(ctx context.Context, text string, opts sendOptions, retriesUsed int) (*yieldRequest, error) {
	o.refreshCatalog(ctx)

	if _, err := o.transcript.Append(ctx, transcript.Entry{
		Role:    transcript.RoleUser,
		Content: text,
		Hidden:  opts.hidden,
	}); err != nil {
		return nil, fmt.Errorf("record message: %w", err)
	}

	pctx := o.assembleContext()
	response, err := o.planner.Chat(ctx, text, pctx)
	if err != nil {
		// Synthetic turns have no caller watching the error return, so the
		// toast is the only surface the failure reaches.
		if o.notifier != nil {
			o.notifier.Post("Assistant request failed", notify.SeverityError)
		}
		return nil, fmt.Errorf("plan turn: %w", err)
	}

	if response.Message != "" {
		if _, err := o.transcript.Append(ctx, transcript.Entry{
			Role:    transcript.RoleAssistant,
			Content: response.Message,
		}); err != nil {
			return nil, fmt.Errorf("record reply: %w", err)
		}
	}

	outcome := o.executeActions(ctx, response.Actions)
	o.storeResults(outcome.results, outcome.errors)

	if len(outcome.errors) > 0 {
		// Visible on purpose: the user sees the failures even when a retry
		// turn recovers from them.
		summary := "Action errors:\n- " + strings.Join(outcome.errors, "\n- ")
		if _, err := o.transcript.Append(ctx, transcript.Entry{
			Role:    transcript.RoleSystem,
			Content: summary,
		}); err != nil {
			o.logger.Warn("recording action errors failed", logging.Error(err))
		}
		if retriesUsed < o.maxRetries {
			o.logger.Info("retrying after action errors",
				logging.Int("errors", len(outcome.errors)),
				logging.Int("attempt", retriesUsed+1))
			return o.run(ctx, retryPrompt, sendOptions{hidden: true}, retriesUsed+1)
		}
		o.logger.Warn("retry budget exhausted", logging.Int("errors", len(outcome.errors)))
		return nil, nil
	}

	for _, marker := range outcome.continuations {
		o.ledger.Register(marker.jobID, marker.context)
	}
	return outcome.yield, nil
}

const retryPrompt = "Some of your actions failed. The errors are listed in " +
	"previous_action_results; correct the failing actions and try again, or " +
	"explain the problem to the user."

// assembleContext snapshots client state for the planner. The previous-results
// slot is read-and-clear: each turn consumes what the prior turn produced.
func (o *Orchestrator) assembleContext() planner.Context {
	o.mu.Lock()
	previous := o.prevResults
	o.prevResults = nil
	catalog := o.catalog
	o.mu.Unlock()

	view := o.registry.View()
	items := view.Items
	if len(items) > recentJobLimit {
		items = items[len(items)-recentJobLimit:]
	}
	jobs := make([]planner.JobSummary, 0, len(items))
	for _, item := range items {
		jobs = append(jobs, planner.JobSummary{
			ID:     item.ID,
			Kind:   string(item.Kind),
			Status: string(item.Status),
			Error:  item.Error,
		})
	}

	models := make([]string, 0, len(catalog.Models))
	for _, model := range catalog.Models {
		if model.Installed {
			models = append(models, model.Name)
		}
	}

	return planner.Context{
		RecentErrors: o.notifier.RecentErrors(),
		RecentJobs:   jobs,
		QueueStats: map[string]int{
			"pending":    view.Counters.Pending,
			"processing": view.Counters.Processing,
			"completed":  view.Counters.Completed,
			"failed":     view.Counters.Failed,
			"total":      view.Counters.Total,
		},
		Presets:         catalog.Presets,
		Models:          models,
		CurrentModel:    catalog.CurrentModel,
		PreviousResults: previous,
	}
}

func (o *Orchestrator) storeResults(results, errors []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prevResults = append(o.prevResults, results...)
	for _, message := range errors {
		o.prevResults = append(o.prevResults, "ERROR: "+message)
	}
}

// refreshCatalog fetches the server option catalog when the cached copy is
// older than the staleness bound. Fetch failures keep the stale copy; the
// planner works with what it has.
func (o *Orchestrator) refreshCatalog(ctx context.Context) {
	o.mu.Lock()
	fresh := !o.catalogAt.IsZero() && o.now().Sub(o.catalogAt) < o.catalogTTL
	o.mu.Unlock()
	if fresh {
		return
	}

	options, err := o.server.GetOptions(ctx)
	if err != nil {
		o.logger.Warn("catalog refresh failed", logging.Error(err))
		return
	}
	o.setCatalog(options)
}

// setCatalog stores a fresh option catalog and forwards it downstream.
func (o *Orchestrator) setCatalog(options transport.Options) {
	o.mu.Lock()
	o.catalog = options
	o.catalogAt = o.now()
	o.mu.Unlock()
	if o.onCatalog != nil {
		o.onCatalog(options)
	}
}

// spawnYield resumes the conversation once a yielding action resolves. The
// resumed turn runs against the orchestrator's lifetime context, not the
// originating request's, so it survives the caller returning.
func (o *Orchestrator) spawnYield(y *yieldRequest) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		text, err := y.resolve(o.lifeCtx)
		if err != nil {
			o.logger.Warn("yielding action failed", logging.String("action", y.action), logging.Error(err))
			return
		}
		if err := o.send(o.lifeCtx, text, sendOptions{hidden: true}); err != nil {
			o.logger.Warn("continuation turn failed", logging.String("action", y.action), logging.Error(err))
		}
	}()
}

// HandleTransition reacts to terminal job transitions: resolve a registered
// continuation into a synthetic turn, or consider a proactive suggestion for
// an unsolicited failure. Subscribed on the registry; must not block.
func (o *Orchestrator) HandleTransition(t registry.Transition) {
	if t.To == registry.StatusCancelled {
		// Cancellation does not resume the conversation; the ledger entry
		// ages out on its own.
		return
	}
	if !t.To.IsTerminal() {
		return
	}

	if marker, ok := o.ledger.Resolve(t.Job.ID); ok {
		text := continuationText(t, marker)
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.send(o.lifeCtx, text, sendOptions{hidden: true}); err != nil {
				o.logger.Warn("continuation turn failed", logging.String("job_id", t.Job.ID), logging.Error(err))
			}
		}()
		return
	}

	if t.To == registry.StatusFailed {
		o.maybeSuggest(t)
	}
}

func continuationText(t registry.Transition, marker continuation.Continuation) string {
	switch t.To {
	case registry.StatusCompleted:
		outputs := strings.Join(t.Job.Outputs, ", ")
		if outputs == "" {
			outputs = "(none reported)"
		}
		return fmt.Sprintf("Job %s from your earlier action (%s) completed. Outputs: %s. Summarize the result for the user.",
			t.Job.ID, marker.Context, outputs)
	default:
		reason := t.Job.Error
		if reason == "" {
			reason = "no error reported"
		}
		return fmt.Sprintf("Job %s from your earlier action (%s) failed: %s. Tell the user and suggest a fix.",
			t.Job.ID, marker.Context, reason)
	}
}

// maybeSuggest runs a one-shot planner call for an unsolicited failure. The
// result lands in the suggestion slot only; it never touches the transcript.
func (o *Orchestrator) maybeSuggest(t registry.Transition) {
	o.mu.Lock()
	eligible := o.suggestionsEnabled &&
		!o.loading &&
		!o.chatOpen &&
		(o.lastSuggestion.IsZero() || o.now().Sub(o.lastSuggestion) >= o.suggestionCooldown)
	if eligible {
		// Stamp at send start so overlapping failures share one cooldown
		// window even if the planner call is slow.
		o.lastSuggestion = o.now()
	}
	o.mu.Unlock()
	if !eligible {
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		prompt := fmt.Sprintf("A %s job just failed: %s. In one or two sentences, suggest what the user could do about it. Do not emit actions.",
			t.Job.Kind.Label(), failureReason(t.Job))
		response, err := o.planner.Chat(o.lifeCtx, prompt, planner.Context{
			RecentErrors: o.notifier.RecentErrors(),
		})
		if err != nil {
			o.logger.Warn("suggestion call failed", logging.Error(err))
			return
		}
		if response.Message == "" {
			return
		}
		o.mu.Lock()
		o.suggestion = response.Message
		o.mu.Unlock()
	}()
}

func failureReason(job registry.Job) string {
	if job.Error != "" {
		return job.Error
	}
	return "no error reported"
}
