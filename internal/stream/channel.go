package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cliagent/liveview/internal/event"
	"github.com/google/uuid"
)

// DefaultQueueSize is the per-observer queue capacity.
const DefaultQueueSize = 500

// ErrNoEvent is returned by Dequeue when the timeout elapses with nothing
// queued. Callers write a heartbeat instead.
var ErrNoEvent = errors.New("stream: no event before timeout")

// Channel is the bounded queue between the broadcaster and one observer
// connection. Enqueue is called from the broadcasting goroutine only and
// Dequeue from the owning connection's write loop only.
type Channel struct {
	id     string
	queue  chan event.Event
	logger *slog.Logger
}

// NewChannel creates a channel holding at most capacity pending events.
func NewChannel(capacity int, logger *slog.Logger) *Channel {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Channel{
		id:     id,
		queue:  make(chan event.Event, capacity),
		logger: logger.With("channel", id),
	}
}

// ID returns the channel's opaque identity.
func (c *Channel) ID() string {
	return c.id
}

// Enqueue never blocks. When the queue is full the event is dropped for
// this observer only and false is returned.
func (c *Channel) Enqueue(ev event.Event) bool {
	select {
	case c.queue <- ev:
		return true
	default:
		c.logger.Debug("observer queue full, dropping event", "kind", ev.Kind)
		return false
	}
}

// Dequeue waits up to timeout for the next event. It returns ErrNoEvent on
// timeout and ctx.Err() when ctx is done first.
func (c *Channel) Dequeue(ctx context.Context, timeout time.Duration) (event.Event, error) {
	select {
	case ev := <-c.queue:
		return ev, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-c.queue:
		return ev, nil
	case <-timer.C:
		return event.Event{}, ErrNoEvent
	case <-ctx.Done():
		return event.Event{}, ctx.Err()
	}
}

// Len reports the number of queued events.
func (c *Channel) Len() int {
	return len(c.queue)
}
