package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"easel/internal/logging"
)

// Severity classifies a toast for presentation and error-log mirroring.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Toast is one transient user-visible notification.
type Toast struct {
	ID        int64     `json:"id"`
	Handle    string    `json:"handle"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// Options configures center capacities and expiry.
type Options struct {
	TTL             time.Duration
	MaxToasts       int
	MaxRecentErrors int
}

const (
	defaultTTL             = 4 * time.Second
	defaultMaxToasts       = 10
	defaultMaxRecentErrors = 20
)

// Center is a bounded, self-expiring toast queue. Error-class posts are also
// mirrored into a capped recent-errors log consumed as planner context.
// A Center cannot fail; it only degrades by capacity.
type Center struct {
	logger *slog.Logger

	ttl       time.Duration
	maxToasts int
	maxErrors int

	mu           sync.Mutex
	nextID       int64
	toasts       []Toast
	timers       map[int64]*time.Timer
	recentErrors []string
	closed       bool
}

// NewCenter constructs a notification center. Zero option fields fall back to
// the package defaults.
func NewCenter(logger *slog.Logger, opts Options) *Center {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MaxToasts <= 0 {
		opts.MaxToasts = defaultMaxToasts
	}
	if opts.MaxRecentErrors <= 0 {
		opts.MaxRecentErrors = defaultMaxRecentErrors
	}
	return &Center{
		logger:    logging.NewComponentLogger(logger, "notify"),
		ttl:       opts.TTL,
		maxToasts: opts.MaxToasts,
		maxErrors: opts.MaxRecentErrors,
		timers:    make(map[int64]*time.Timer),
	}
}

// Post appends a toast, schedules its expiry, and evicts the oldest live toast
// when the cap is exceeded. Error-class posts are mirrored into the recent
// errors log.
func (c *Center) Post(message string, severity Severity) Toast {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	toast := Toast{
		ID:        c.nextID,
		Handle:    uuid.NewString(),
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now(),
	}

	if severity == SeverityError {
		c.appendErrorLocked(message)
	}

	if c.closed {
		return toast
	}

	c.toasts = append(c.toasts, toast)
	id := toast.ID
	c.timers[id] = time.AfterFunc(c.ttl, func() {
		c.Dismiss(id)
	})

	for len(c.toasts) > c.maxToasts {
		oldest := c.toasts[0]
		c.removeLocked(oldest.ID)
	}

	return toast
}

// AppendError records a message in the recent-errors log without posting a
// toast. Used when a transition's toast is suppressed but the failure must
// still reach planner context.
func (c *Center) AppendError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendErrorLocked(message)
}

// Dismiss cancels the expiry timer and removes the toast immediately.
// It reports whether the toast was still live.
func (c *Center) Dismiss(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(id)
}

// Active returns the live toasts in posting order.
func (c *Center) Active() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Toast, len(c.toasts))
	copy(out, c.toasts)
	return out
}

// RecentErrors returns the capped error log, newest first.
func (c *Center) RecentErrors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.recentErrors))
	copy(out, c.recentErrors)
	return out
}

// Close cancels every live toast timer. Subsequent posts still feed the error
// log but no longer schedule timers.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, timer := range c.timers {
		timer.Stop()
		delete(c.timers, id)
	}
	c.toasts = nil
}

func (c *Center) appendErrorLocked(message string) {
	c.recentErrors = append([]string{message}, c.recentErrors...)
	if len(c.recentErrors) > c.maxErrors {
		c.recentErrors = c.recentErrors[:c.maxErrors]
	}
}

func (c *Center) removeLocked(id int64) bool {
	timer, ok := c.timers[id]
	if ok {
		timer.Stop()
		delete(c.timers, id)
	}
	for i, toast := range c.toasts {
		if toast.ID == id {
			c.toasts = append(c.toasts[:i], c.toasts[i+1:]...)
			return true
		}
	}
	return ok
}
