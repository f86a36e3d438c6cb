package viewer

import (
	"sync"

	"github.com/cliagent/liveview/internal/event"
	"github.com/cliagent/liveview/internal/hostevent"
)

// Stats aggregates status bar values across host events. Every field is
// last-write-wins. The tool count prefers an explicit tool_calls counter on
// the event; only when the event carries none does an operation in running
// status add one.
type Stats struct {
	mu     sync.Mutex
	status event.Status
}

// Apply folds ev into the aggregate and reports whether anything changed,
// including the transient streaming flag.
func (s *Stats) Apply(ev hostevent.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.status
	st := &s.status

	if ev.Model != "" {
		st.Model = ev.Model
	}
	if sid := ev.Session(); sid != "" {
		st.Session = sid
	}

	explicitTools := false
	if in := ev.Stats; in != nil {
		switch {
		case in.TotalTokens > 0:
			st.Tokens = in.TotalTokens
		case in.InputTokens > 0 || in.OutputTokens > 0:
			st.Tokens = in.InputTokens + in.OutputTokens
		}
		if in.DurationMs > 0 {
			st.Duration = in.DurationMs / 1000
		}
		if in.ToolCalls > 0 {
			st.Tools = in.ToolCalls
			explicitTools = true
		}
	}
	if !explicitTools && ev.Category == hostevent.CategoryOperation && ev.Status == hostevent.StatusRunning {
		st.Tools++
	}

	st.Streaming = ev.IsDelta || ev.Status == hostevent.StatusRunning

	return *st != before
}

// Status returns a snapshot of the aggregate.
func (s *Stats) Status() event.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
