// Package mock generates a synthetic stream of host events for demoing the
// viewer without a real agent attached.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/cliagent/liveview/internal/hostevent"
)

const DefaultInterval = 500 * time.Millisecond

// Sink receives generated events. It reports whether the event was accepted.
type Sink func(hostevent.Event) bool

type mockSession struct {
	id            string
	source        string
	model         string
	note          string
	pattern       string
	tokensPerTick int
	maxTokens     int
	errorAt       float64
	tools         []mockTool

	tokens    int
	toolCalls int
	toolIdx   int
	started   time.Time
	completed bool
}

type mockTool struct {
	opType string
	name   string
	input  string
	output string
}

var commonTools = []mockTool{
	{"file", "Read", `{"file_path":"internal/stream/server.go"}`, "package stream\n\nimport (\n\t\"net/http\"\n)"},
	{"search", "Grep", `{"pattern":"Broadcast"}`, "server.go:88\nregistry.go:61"},
	{"command", "Bash", `{"command":"go test ./..."}`, "ok  \tliveview/internal/stream\t0.41s"},
	{"file", "Edit", `{"file_path":"internal/render/render.go"}`, "applied 1 edit"},
	{"mcp", "fetch", `{"url":"https://example.com"}`, "200 OK"},
}

var thoughts = []string{
	"Looking at how the registry hands events to each channel.",
	"The idle timer should only fire when no observer reconnected.",
	"Checking whether the flush happens before the heartbeat.",
}

var replies = []string{
	"I've updated the **broadcast** path:\n\n- snapshot under the read lock\n- enqueue without blocking",
	"Tests pass. Next I'll look at the `Dequeue` timeout.",
	"Here is the plan:\n\n1. bind the port\n2. open the viewer\n3. drain events",
}

// Generator emits scripted agent sessions on a ticker.
type Generator struct {
	sink     Sink
	interval time.Duration
	rng      *rand.Rand
	now      func() time.Time
	sessions []*mockSession
}

// NewGenerator creates a generator that feeds sink every interval.
func NewGenerator(sink Sink, interval time.Duration) *Generator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Generator{
		sink:     sink,
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

func (g *Generator) seed() {
	now := g.now()
	g.sessions = []*mockSession{
		{
			id: "mock-claude-refactor", source: "claude", model: "claude-sonnet-4-20250514",
			note: "refactor broadcast server", pattern: "steady",
			tokensPerTick: 1200, maxTokens: 24000, tools: commonTools, started: now,
		},
		{
			id: "mock-codex-tests", source: "codex", model: "o3",
			pattern: "burst", tokensPerTick: 2000, maxTokens: 30000,
			tools: []mockTool{commonTools[2], commonTools[0], commonTools[2]}, started: now,
		},
		{
			id: "mock-gemini-debug", source: "gemini", model: "gemini-2.5-pro",
			note: "investigate reconnect loop", pattern: "error",
			tokensPerTick: 1500, maxTokens: 40000, errorAt: 0.6,
			tools: []mockTool{commonTools[1], commonTools[0], commonTools[4]}, started: now,
		},
	}
}

// Start emits a session_start for every mock session, then advances them on
// a ticker until ctx is done or all sessions complete. It blocks.
func (g *Generator) Start(ctx context.Context) {
	g.seed()
	for _, ms := range g.sessions {
		g.emit(ms, hostevent.Event{
			Category:      hostevent.CategoryLifecycle,
			LifecycleType: "session_start",
			Model:         ms.model,
		})
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			active := 0
			for _, ms := range g.sessions {
				if ms.completed {
					continue
				}
				g.advance(ms, tick)
				active++
			}
			if active == 0 {
				return
			}
		}
	}
}

func (g *Generator) advance(ms *mockSession, tick int) {
	switch ms.pattern {
	case "burst":
		growth := ms.tokensPerTick
		if tick%8 < 3 {
			growth = int(float64(growth) * 2.5)
			g.operation(ms)
		} else {
			g.message(ms, tick)
		}
		ms.tokens += growth + g.rng.Intn(500)
	case "error":
		ms.tokens += ms.tokensPerTick + g.rng.Intn(400)
		if float64(ms.tokens) >= float64(ms.maxTokens)*ms.errorAt {
			g.emit(ms, hostevent.Event{
				Category: hostevent.CategorySystem,
				Severity: "error",
				Message:  "rate limit exceeded (429)",
			})
			g.finish(ms, hostevent.StatusFailed)
			return
		}
		g.step(ms, tick)
	default:
		ms.tokens += ms.tokensPerTick + g.rng.Intn(400) - 200
		g.step(ms, tick)
	}

	if ms.tokens >= ms.maxTokens {
		ms.tokens = ms.maxTokens
		g.finish(ms, hostevent.StatusSuccess)
		return
	}
	g.emit(ms, hostevent.Event{
		Category:      hostevent.CategoryLifecycle,
		LifecycleType: "turn_end",
		Stats:         g.stats(ms),
	})
}

// step alternates messages and tool calls.
func (g *Generator) step(ms *mockSession, tick int) {
	if tick%3 == 0 {
		g.operation(ms)
		return
	}
	g.message(ms, tick)
}

func (g *Generator) message(ms *mockSession, tick int) {
	if tick%2 == 0 {
		g.emit(ms, hostevent.Event{
			Category:    hostevent.CategoryMessage,
			Role:        "assistant",
			ContentType: "reasoning",
			Text:        thoughts[g.rng.Intn(len(thoughts))],
		})
		return
	}
	g.emit(ms, hostevent.Event{
		Category:    hostevent.CategoryMessage,
		Role:        "assistant",
		ContentType: "text",
		Text:        replies[g.rng.Intn(len(replies))],
	})
}

func (g *Generator) operation(ms *mockSession) {
	tool := ms.tools[ms.toolIdx%len(ms.tools)]
	ms.toolIdx++
	ms.toolCalls++
	ev := hostevent.Event{
		Category:      hostevent.CategoryOperation,
		OperationType: tool.opType,
		Name:          tool.name,
		Input:         hostevent.Text(tool.input),
		Status:        hostevent.StatusRunning,
	}
	g.emit(ms, ev)
	ev.Status = hostevent.StatusSuccess
	ev.Output = hostevent.Text(tool.output)
	g.emit(ms, ev)
}

func (g *Generator) finish(ms *mockSession, status string) {
	ms.completed = true
	g.emit(ms, hostevent.Event{
		Category:      hostevent.CategoryLifecycle,
		LifecycleType: "session_end",
		Status:        status,
		Stats:         g.stats(ms),
	})
}

func (g *Generator) stats(ms *mockSession) *hostevent.Stats {
	in := ms.tokens * 3 / 4
	return &hostevent.Stats{
		TotalTokens:  ms.tokens,
		InputTokens:  in,
		OutputTokens: ms.tokens - in,
		DurationMs:   float64(g.now().Sub(ms.started).Milliseconds()),
		ToolCalls:    ms.toolCalls,
		TotalCostUSD: float64(ms.tokens) * 0.000003,
	}
}

func (g *Generator) emit(ms *mockSession, ev hostevent.Event) {
	ev.EventID = fmt.Sprintf("%s-%d", ms.id, g.rng.Int63())
	ev.Source = ms.source
	ev.SessionID = ms.id
	ev.Timestamp = hostevent.Timestamp{Time: g.now()}
	if ms.note != "" {
		ev.Metadata.TaskNote = ms.note
	}
	if ev.Model == "" {
		ev.Model = ms.model
	}
	g.sink(ev)
}
