// Package procwatch notices when the process that launched the viewer goes
// away, so an orphaned viewer does not linger after its host exits.
package procwatch

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const DefaultInterval = 2 * time.Second

// Watcher polls for the parent process. The parent is considered gone when
// the reported parent pid changes (the process was re-parented) or the
// original parent pid no longer exists.
type Watcher struct {
	parent   int
	interval time.Duration
	logger   *slog.Logger

	ppid   func() int
	exists func(ctx context.Context, pid int32) (bool, error)
}

// New watches the current process's parent.
func New(interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		parent:   os.Getppid(),
		interval: interval,
		logger:   logger.With("component", "procwatch"),
		ppid:     os.Getppid,
		exists:   process.PidExistsWithContext,
	}
}

// Parent returns the pid being watched.
func (w *Watcher) Parent() int {
	return w.parent
}

// Run blocks until the parent is gone, calling onExit once, or until ctx is
// done. It reports whether the parent exited.
func (w *Watcher) Run(ctx context.Context, onExit func()) bool {
	if name := parentName(ctx, w.parent); name != "" {
		w.logger.Debug("watching parent process", "pid", w.parent, "name", name)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}

		if w.alive(ctx) {
			continue
		}
		w.logger.Info("parent process exited", "pid", w.parent)
		if onExit != nil {
			onExit()
		}
		return true
	}
}

func (w *Watcher) alive(ctx context.Context) bool {
	if w.parent <= 1 {
		// Already orphaned at start; nothing meaningful to watch.
		return true
	}
	if w.ppid() != w.parent {
		return false
	}
	ok, err := w.exists(ctx, int32(w.parent))
	if err != nil {
		w.logger.Debug("parent existence check failed", "pid", w.parent, "error", err)
		return true
	}
	return ok
}

func parentName(ctx context.Context, pid int) string {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return ""
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return ""
	}
	return name
}
