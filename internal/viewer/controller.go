// Package viewer drives the live viewer's lifecycle: it binds the broadcast
// server, optionally opens a native display surface, drains host events
// into rendered fragments and status updates, and shuts everything down
// when the surface closes or every observer has gone idle.
package viewer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cliagent/liveview/internal/event"
	"github.com/cliagent/liveview/internal/hostevent"
)

const (
	DefaultQueueSize    = 5000
	DefaultBatchSize    = 100
	DefaultPollInterval = 50 * time.Millisecond
)

var (
	// ErrNativeUnavailable is reported by a Display whose surface cannot
	// be created in this environment.
	ErrNativeUnavailable = errors.New("viewer: native display unavailable")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("viewer: already started")
)

// Server is the broadcast surface the controller drives.
type Server interface {
	Start() (int, error)
	Stop() error
	Broadcast(ev event.Event) int
	OnIdle(cb func())
	URL() string
}

// Renderer turns a host event into an HTML fragment.
type Renderer interface {
	Render(ev hostevent.Event) string
}

// Display is an optional native surface pointed at the server URL. Open
// returns only once the surface is running. The returned channel yields nil
// when the user dismisses the surface, or the error that stopped it.
type Display interface {
	Probe() ProbeResult
	Open(url string) (<-chan error, error)
	Close() error
}

// Config tunes the controller. Zero values fall back to defaults.
type Config struct {
	QueueSize    int
	BatchSize    int
	PollInterval time.Duration
	// Announce pushes a system event carrying the viewer URL on start.
	Announce bool
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Controller owns one viewer session. It is safe for concurrent use.
type Controller struct {
	cfg      Config
	server   Server
	display  Display
	renderer Renderer
	logger   *slog.Logger
	stats    Stats

	// queue carries host events to the drain loop; nil is the stop sentinel.
	queue chan *hostevent.Event

	mu         sync.Mutex
	state      State
	launching  bool
	url        string
	native     bool
	onURL      []func(string)
	onShutdown []func(reason string)

	// launched is closed once Start has bound the server and finished the
	// native attempt, successfully or not.
	launched chan struct{}
	quit     chan struct{}
	drained  chan struct{}
	done     chan struct{}
}

// New creates a controller. display may be nil for web-only operation.
func New(cfg Config, server Server, display Display, renderer Renderer, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:      cfg,
		server:   server,
		display:  display,
		renderer: renderer,
		logger:   logger.With("component", "viewer"),
		queue:    make(chan *hostevent.Event, cfg.QueueSize),
		state:    StateStarting,
		launched: make(chan struct{}),
		quit:     make(chan struct{}),
		drained:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnURL registers a callback run with the viewer URL once the server is
// bound. Must be called before Start. Callbacks run inside Start and must
// not call Close.
func (c *Controller) OnURL(cb func(url string)) {
	c.mu.Lock()
	c.onURL = append(c.onURL, cb)
	c.mu.Unlock()
}

// OnShutdown registers a callback run once the controller has stopped.
func (c *Controller) OnShutdown(cb func(reason string)) {
	c.mu.Lock()
	c.onShutdown = append(c.onShutdown, cb)
	c.mu.Unlock()
}

// Start binds the server, picks a display mode, and starts draining. It
// returns the viewer URL. Native display failures never surface here; they
// fall back to web-only mode. A shutdown requested while Start is running
// takes effect as soon as Start has finished launching.
func (c *Controller) Start() (string, error) {
	c.mu.Lock()
	if c.state != StateStarting || c.launching {
		c.mu.Unlock()
		return "", ErrAlreadyStarted
	}
	c.launching = true
	c.mu.Unlock()

	go c.drain()

	url, closed, err := c.launch()
	close(c.launched)
	if err != nil {
		c.shutdown("start failed")
		return "", err
	}

	if closed != nil {
		go c.watchDisplay(closed)
	}

	if state := c.State(); state.Active() {
		c.logger.Info("live viewer started", "url", url, "state", state)
	}
	return url, nil
}

func (c *Controller) launch() (string, <-chan error, error) {
	if _, err := c.server.Start(); err != nil {
		return "", nil, fmt.Errorf("start broadcast server: %w", err)
	}
	url := c.server.URL()
	c.server.OnIdle(func() { c.shutdown("idle") })

	c.mu.Lock()
	c.url = url
	callbacks := append([]func(string){}, c.onURL...)
	c.mu.Unlock()

	if c.cfg.Announce {
		c.Push(announcement(url))
	}
	for _, cb := range callbacks {
		cb(url)
	}

	return url, c.openDisplay(url), nil
}

// openDisplay runs the capability probe and the native attempt, moving to
// NativeActive or WebOnlyActive. It returns the surface's close channel, or
// nil in web-only mode. Nothing is attempted once shutdown has begun.
func (c *Controller) openDisplay(url string) <-chan error {
	if c.display == nil {
		c.advance(StateStarting, StateWebOnlyActive)
		return nil
	}

	probe := c.probe()
	if probe != ProbeAvailable {
		c.logger.Info("native display not available, serving web only", "probe", probe)
		c.advance(StateStarting, StateWebOnlyActive)
		return nil
	}

	if !c.advance(StateStarting, StateNativeAttempt) {
		return nil
	}
	closed, err := c.attemptNative(url)
	if err != nil {
		c.logger.Warn("native display failed, falling back to web only", "error", err)
		c.advance(StateNativeAttempt, StateWebOnlyActive)
		return nil
	}

	// A surface opened after shutdown began is still recorded so that
	// shutdown closes it.
	c.mu.Lock()
	c.native = true
	c.mu.Unlock()
	if !c.advance(StateNativeAttempt, StateNativeActive) {
		return nil
	}
	return closed
}

// watchDisplay shuts down when the user closes the surface and falls back to
// web-only mode when the surface fails on its own.
func (c *Controller) watchDisplay(closed <-chan error) {
	select {
	case err := <-closed:
		if err == nil {
			c.shutdown("window closed")
			return
		}
		c.mu.Lock()
		fellBack := c.state == StateNativeActive
		if fellBack {
			c.state = StateWebOnlyActive
			c.native = false
		}
		c.mu.Unlock()
		if fellBack {
			c.logger.Warn("native display stopped, serving web only", "error", err)
		}
	case <-c.quit:
	}
}

func (c *Controller) probe() (result ProbeResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("display probe panicked", "panic", r)
			result = ProbeFailed
		}
	}()
	return c.display.Probe()
}

func (c *Controller) attemptNative(url string) (closed <-chan error, err error) {
	defer func() {
		if r := recover(); r != nil {
			closed, err = nil, fmt.Errorf("native display panicked: %v", r)
		}
	}()
	closed, err = c.display.Open(url)
	if err == nil && closed == nil {
		err = ErrNativeUnavailable
	}
	return closed, err
}

// Push queues a host event for rendering without blocking. It returns false
// when the queue is full or the controller is shutting down.
func (c *Controller) Push(ev hostevent.Event) bool {
	c.mu.Lock()
	stopping := c.state == StateShuttingDown || c.state == StateStopped
	c.mu.Unlock()
	if stopping {
		return false
	}

	select {
	case c.queue <- &ev:
		return true
	default:
		c.logger.Debug("host event queue full, dropping event", "category", ev.Category)
		return false
	}
}

// PushAll queues events in order and returns how many were accepted.
func (c *Controller) PushAll(events []hostevent.Event) int {
	n := 0
	for _, ev := range events {
		if c.Push(ev) {
			n++
		}
	}
	return n
}

// Close shuts the controller down and waits for it to stop.
func (c *Controller) Close() {
	c.shutdown("closed")
	<-c.done
}

// Done is closed once the controller reaches StateStopped.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// URL returns the viewer URL, or "" before Start.
func (c *Controller) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Status returns the current aggregate stats.
func (c *Controller) Status() event.Status {
	return c.stats.Status()
}

// advance moves from one state to the next only if the controller is still
// in from. It reports whether the transition happened.
func (c *Controller) advance(from, to State) bool {
	c.mu.Lock()
	ok := c.state == from
	if ok {
		c.state = to
	}
	c.mu.Unlock()
	if ok {
		c.logger.Debug("state change", "from", from, "to", to)
	}
	return ok
}

// shutdown moves to ShuttingDown exactly once, lets the drain loop flush
// what is already queued, stops the server and the native surface, and
// marks the controller Stopped.
func (c *Controller) shutdown(reason string) {
	c.mu.Lock()
	switch {
	case c.state == StateShuttingDown || c.state == StateStopped:
		c.mu.Unlock()
		return
	case c.state == StateStarting && !c.launching:
		// Never started: nothing to drain or stop.
		c.state = StateStopped
		c.mu.Unlock()
		close(c.quit)
		close(c.drained)
		close(c.done)
		return
	}
	prev := c.state
	c.state = StateShuttingDown
	c.mu.Unlock()

	c.logger.Info("live viewer shutting down", "reason", reason, "from", prev)

	// Let an in-flight Start finish binding and its native attempt first.
	<-c.launched

	select {
	case c.queue <- nil:
	default:
	}
	close(c.quit)
	<-c.drained

	if err := c.server.Stop(); err != nil {
		c.logger.Warn("stop broadcast server", "error", err)
	}

	c.mu.Lock()
	native := c.native
	c.mu.Unlock()
	if native {
		if err := c.display.Close(); err != nil {
			c.logger.Warn("close native display", "error", err)
		}
	}

	c.mu.Lock()
	c.state = StateStopped
	callbacks := append([]func(string){}, c.onShutdown...)
	c.mu.Unlock()
	for _, cb := range callbacks {
		cb(reason)
	}
	close(c.done)
}

// drain moves host events from the queue to the server in batches. It does
// not depend on the native surface: observers may be browsers only.
func (c *Controller) drain() {
	defer close(c.drained)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if stop := c.drainBatch(); stop {
			return
		}
		select {
		case <-ticker.C:
		case <-c.quit:
			// Flush whatever was queued before shutdown.
			for {
				if stop := c.drainBatch(); stop || len(c.queue) == 0 {
					return
				}
			}
		}
	}
}

// drainBatch processes up to BatchSize queued events without blocking. It
// reports whether the stop sentinel was seen.
func (c *Controller) drainBatch() bool {
	for i := 0; i < c.cfg.BatchSize; i++ {
		select {
		case ev := <-c.queue:
			if ev == nil {
				return true
			}
			c.process(*ev)
		default:
			return false
		}
	}
	return false
}

func (c *Controller) process(ev hostevent.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("render failed", "category", ev.Category, "panic", r)
		}
	}()

	c.server.Broadcast(event.NewFragment(event.Fragment{
		HTML:     c.renderer.Render(ev),
		Session:  ev.Session(),
		Source:   ev.SourceName(),
		TaskNote: ev.Note(),
	}))

	if c.stats.Apply(ev) {
		c.server.Broadcast(event.NewStatus(c.stats.Status()))
	}
}

func announcement(url string) hostevent.Event {
	raw, _ := json.Marshal(map[string]string{"type": "system", "subtype": "viewer_url", "url": url})
	return hostevent.Event{
		Category:  hostevent.CategorySystem,
		Source:    "server",
		Severity:  "info",
		Message:   "Live viewer: " + url,
		Timestamp: hostevent.Timestamp{Time: time.Now()},
		Raw:       raw,
	}
}
