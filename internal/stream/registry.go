package stream

import (
	"log/slog"
	"sync"

	"github.com/cliagent/liveview/internal/event"
)

// DefaultMaxClients caps concurrent observers when no limit is configured.
const DefaultMaxClients = 10

// Registry is the set of active observer channels. It is the only structure
// shared between connection handlers and the broadcasting goroutine, and all
// access goes through its lock.
type Registry struct {
	mu         sync.RWMutex
	clients    map[string]*Channel
	maxClients int
	logger     *slog.Logger
}

// NewRegistry returns a registry admitting at most maxClients channels.
// Non-positive limits fall back to DefaultMaxClients.
func NewRegistry(maxClients int, logger *slog.Logger) *Registry {
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		clients:    make(map[string]*Channel),
		maxClients: maxClients,
		logger:     logger,
	}
}

// Register admits c unless the registry is full. The size check and the
// insert happen under one lock so concurrent connects cannot both pass a
// stale check.
func (r *Registry) Register(c *Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.clients) >= r.maxClients {
		r.logger.Warn("max observers reached, refusing connection", "max", r.maxClients)
		return false
	}
	r.clients[c.ID()] = c
	r.logger.Debug("observer registered", "channel", c.ID(), "total", len(r.clients))
	return true
}

// Unregister removes c if present and returns the remaining count.
func (r *Registry) Unregister(c *Channel) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, c.ID())
	remaining := len(r.clients)
	r.logger.Debug("observer unregistered", "channel", c.ID(), "remaining", remaining)
	return remaining
}

// Broadcast enqueues ev on every registered channel and returns how many
// accepted it. A full queue drops the event for that observer only.
func (r *Registry) Broadcast(ev event.Event) int {
	r.mu.RLock()
	clients := make([]*Channel, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if c.Enqueue(ev) {
			delivered++
		}
	}
	return delivered
}

// Size returns the number of registered channels.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// MaxClients returns the admission limit.
func (r *Registry) MaxClients() int {
	return r.maxClients
}
