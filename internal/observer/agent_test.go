package observer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cliagent/liveview/internal/event"
	"github.com/cliagent/liveview/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{9, 9 * time.Second},
		{10, 10 * time.Second},
		{25, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(tt.attempt, DefaultStep, DefaultMaxDelay))
		})
	}
}

// collector gathers dispatched messages.
type collector struct {
	mu       sync.Mutex
	events   []event.Fragment
	statuses []event.Status
	states   []State
}

func (c *collector) handlers() Handlers {
	return Handlers{
		OnEvent: func(f event.Fragment) {
			c.mu.Lock()
			c.events = append(c.events, f)
			c.mu.Unlock()
		},
		OnStatus: func(s event.Status) {
			c.mu.Lock()
			c.statuses = append(c.statuses, s)
			c.mu.Unlock()
		},
		OnState: func(s State) {
			c.mu.Lock()
			c.states = append(c.states, s)
			c.mu.Unlock()
		},
	}
}

func (c *collector) eventCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) statusCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.statuses)
}

func TestAgent_GivesUpAfterMaxAttempts(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "too many clients", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var c collector
	a := New(Config{URL: srv.URL, MaxAttempts: 3}, c.handlers(), nil)
	var delays []time.Duration
	a.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, StateGivingUp, a.State())
	assert.Equal(t, int32(4), requests.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, delays)
	assert.NotContains(t, c.states, StateConnected)
}

func TestAgent_DispatchesAndSkipsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprint(w, "data: {not json\n\n")
		fmt.Fprint(w, `data: {"type":"mystery"}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"event","html":"<p>hi</p>","session":"s1","source":"tool","task_note":""}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"status","status":{"model":"m","tokens":5}}`+"\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	var c collector
	a := New(Config{URL: srv.URL}, c.handlers(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	require.Eventually(t, func() bool { return c.statusCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateConnected, a.State())

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.events, 1)
	assert.Equal(t, event.Fragment{HTML: "<p>hi</p>", Session: "s1", Source: "tool"}, c.events[0])
	assert.Equal(t, event.Status{Model: "m", Tokens: 5}, c.statuses[0])
}

func TestAgent_ReconnectResetsAttempts(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		if n == 1 {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: {\"type\":\"event\",\"html\":\"%d\"}\n\n", n)
		w.(http.Flusher).Flush()
		if n == 2 {
			return // drop the stream
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	var c collector
	a := New(Config{URL: srv.URL}, c.handlers(), nil)
	a.sleep = func(context.Context, time.Duration) error { return nil }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	require.Eventually(t, func() bool { return c.eventCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, a.Attempts())
	assert.Equal(t, StateConnected, a.State())
}

func TestAgent_RunStopsOnCancel(t *testing.T) {
	s := stream.NewServer(stream.Config{Host: "127.0.0.1"}, nil, nil)
	_, err := s.Start()
	require.NoError(t, err)
	defer s.Stop()

	a := New(Config{URL: s.URL()}, Handlers{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateDisconnected, a.State())
}

func TestAgent_LiveServerTransports(t *testing.T) {
	for _, transport := range []Transport{TransportSSE, TransportWebSocket} {
		t.Run(string(transport), func(t *testing.T) {
			s := stream.NewServer(stream.Config{Host: "127.0.0.1"}, nil, nil)
			_, err := s.Start()
			require.NoError(t, err)
			defer s.Stop()

			var c collector
			a := New(Config{URL: s.URL(), Transport: transport}, c.handlers(), nil)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go a.Run(ctx)

			require.Eventually(t, func() bool { return s.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
			s.Broadcast(event.NewFragment(event.Fragment{HTML: "<b>x</b>", Source: "claude"}))
			s.Broadcast(event.NewStatus(event.Status{Tools: 3, Streaming: true}))

			require.Eventually(t, func() bool { return c.eventCount() == 1 && c.statusCount() == 1 }, 2*time.Second, 10*time.Millisecond)
			c.mu.Lock()
			assert.Equal(t, "<b>x</b>", c.events[0].HTML)
			assert.Equal(t, 3, c.statuses[0].Tools)
			c.mu.Unlock()
		})
	}
}
