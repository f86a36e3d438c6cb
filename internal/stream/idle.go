package stream

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultGracePeriod is how long the last observer may be gone before the
// idle callback runs.
const DefaultGracePeriod = 2 * time.Second

// IdleTimer runs a callback once the observer count has stayed at zero for
// a grace period. At most one timer is pending at a time; when it fires it
// re-reads the count instead of relying on cancellation, so an observer that
// connects during the grace window simply turns the fire into a no-op.
type IdleTimer struct {
	grace  time.Duration
	size   func() int
	logger *slog.Logger

	mu       sync.Mutex
	callback func()
	pending  bool
	stopped  bool
}

// NewIdleTimer creates a timer that consults size when it fires.
func NewIdleTimer(grace time.Duration, size func() int, logger *slog.Logger) *IdleTimer {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdleTimer{grace: grace, size: size, logger: logger}
}

// SetCallback replaces the idle callback.
func (t *IdleTimer) SetCallback(cb func()) {
	t.mu.Lock()
	t.callback = cb
	t.mu.Unlock()
}

// Arm starts the grace timer unless one is already pending. It reports
// whether a new timer was started.
func (t *IdleTimer) Arm() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending || t.stopped {
		return false
	}
	t.pending = true
	time.AfterFunc(t.grace, t.fire)
	t.logger.Debug("idle timer armed", "grace", t.grace)
	return true
}

// Pending reports whether a grace timer is outstanding.
func (t *IdleTimer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Stop disables the timer. A pending fire becomes a no-op.
func (t *IdleTimer) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *IdleTimer) fire() {
	t.mu.Lock()
	t.pending = false
	cb := t.callback
	stopped := t.stopped
	t.mu.Unlock()

	if stopped {
		return
	}
	if n := t.size(); n != 0 {
		t.logger.Debug("observer reconnected during grace period", "observers", n)
		return
	}
	t.logger.Info("all observers disconnected after grace period")
	if cb != nil {
		cb()
	}
}
