// Package observer is a Go client for the live viewer stream. An Agent
// connects to the server, dispatches each message by type, and reconnects
// with linear backoff until it gives up.
package observer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cliagent/liveview/internal/event"
	"github.com/gorilla/websocket"
)

const (
	DefaultMaxAttempts = 10
	DefaultStep        = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
)

// ErrRefused is returned when the server is at its observer limit.
var ErrRefused = errors.New("observer: server refused connection")

// State is the agent's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateGivingUp
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateGivingUp:
		return "giving_up"
	default:
		return "unknown"
	}
}

// Transport selects the streaming endpoint.
type Transport string

const (
	TransportSSE       Transport = "sse"
	TransportWebSocket Transport = "ws"
)

// Handlers receive dispatched messages. Any of them may be nil. They are
// called from the agent's goroutine.
type Handlers struct {
	OnEvent  func(event.Fragment)
	OnStatus func(event.Status)
	OnState  func(State)
}

// Config controls the agent. URL is the viewer base URL (http://host:port).
type Config struct {
	URL         string
	Transport   Transport
	MaxAttempts int
	Step        time.Duration
	MaxDelay    time.Duration
	Client      *http.Client
}

// Agent is a reconnecting stream observer.
type Agent struct {
	cfg      Config
	handlers Handlers
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error

	mu       sync.Mutex
	state    State
	attempts int
}

func New(cfg Config, h Handlers, logger *slog.Logger) *Agent {
	if cfg.Transport == "" {
		cfg.Transport = TransportSSE
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		cfg:      cfg,
		handlers: h,
		logger:   logger.With("component", "observer"),
		sleep:    sleepCtx,
	}
}

// Backoff returns the delay before reconnect attempt n (1-based): n*step,
// capped at max.
func Backoff(n int, step, max time.Duration) time.Duration {
	return min(time.Duration(n)*step, max)
}

// State returns the current connection state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Attempts returns the number of consecutive failed connections.
func (a *Agent) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	changed := a.state != s
	a.state = s
	a.mu.Unlock()
	if changed && a.handlers.OnState != nil {
		a.handlers.OnState(s)
	}
}

// Run connects and keeps reconnecting until ctx is done or the attempt
// limit is exceeded. Giving up is not an error.
func (a *Agent) Run(ctx context.Context) error {
	for {
		a.setState(StateConnecting)
		err := a.stream(ctx)
		if ctx.Err() != nil {
			a.setState(StateDisconnected)
			return ctx.Err()
		}
		a.logger.Debug("stream ended", "error", err)

		a.mu.Lock()
		if a.attempts >= a.cfg.MaxAttempts {
			a.mu.Unlock()
			a.setState(StateGivingUp)
			a.logger.Info("giving up on live viewer stream", "attempts", a.cfg.MaxAttempts)
			return nil
		}
		a.attempts++
		n := a.attempts
		a.mu.Unlock()

		a.setState(StateDisconnected)
		delay := Backoff(n, a.cfg.Step, a.cfg.MaxDelay)
		a.logger.Debug("reconnecting", "attempt", n, "delay", delay)
		if err := a.sleep(ctx, delay); err != nil {
			a.setState(StateDisconnected)
			return err
		}
	}
}

// connected resets the attempt counter, as a successful open does.
func (a *Agent) connected() {
	a.mu.Lock()
	a.attempts = 0
	a.mu.Unlock()
	a.setState(StateConnected)
}

func (a *Agent) stream(ctx context.Context) error {
	if a.cfg.Transport == TransportWebSocket {
		return a.streamWS(ctx)
	}
	return a.streamSSE(ctx)
}

func (a *Agent) streamSSE(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(a.cfg.URL, "/")+"/sse", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.cfg.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		return ErrRefused
	default:
		return fmt.Errorf("observer: unexpected status %s", resp.Status)
	}

	a.connected()
	return a.readSSE(resp.Body)
}

// readSSE consumes frames until the body ends. Comment lines are
// heartbeats; multiple data lines in one frame are joined with newlines.
func (a *Agent) readSSE(body io.Reader) error {
	r := bufio.NewReader(body)
	var data []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if len(data) > 0 {
				a.dispatch([]byte(strings.Join(data, "\n")))
				data = data[:0]
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

func (a *Agent) streamWS(ctx context.Context) error {
	u := strings.TrimSuffix(a.cfg.URL, "/") + "/ws"
	u = "ws" + strings.TrimPrefix(u, "http")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusServiceUnavailable {
			return ErrRefused
		}
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	a.connected()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		a.dispatch(data)
	}
}

// dispatch routes one payload. Malformed payloads are logged and skipped.
func (a *Agent) dispatch(data []byte) {
	var ev event.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		a.logger.Warn("skipping malformed stream message", "error", err)
		return
	}
	switch ev.Kind {
	case event.KindEvent:
		if a.handlers.OnEvent != nil {
			a.handlers.OnEvent(ev.Fragment)
		}
	case event.KindStatus:
		if a.handlers.OnStatus != nil {
			a.handlers.OnStatus(ev.Status)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
