package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistry_MaxClients(t *testing.T) {
	const maxClients = 2
	r := NewRegistry(maxClients, nil)

	for i := 0; i < maxClients; i++ {
		if !r.Register(NewChannel(1, nil)) {
			t.Fatalf("Register[%d] refused below the limit", i)
		}
	}

	if r.Register(NewChannel(1, nil)) {
		t.Fatal("expected registration beyond the limit to be refused")
	}
	if got := r.Size(); got != maxClients {
		t.Fatalf("Size() = %d, want %d", got, maxClients)
	}
}

func TestRegistry_DefaultLimit(t *testing.T) {
	tests := []struct {
		name string
		max  int
		want int
	}{
		{"zero", 0, DefaultMaxClients},
		{"negative", -3, DefaultMaxClients},
		{"explicit", 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewRegistry(tt.max, nil).MaxClients(); got != tt.want {
				t.Errorf("MaxClients() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry(3, nil)
	a, b := NewChannel(1, nil), NewChannel(1, nil)
	r.Register(a)
	r.Register(b)

	if n := r.Unregister(a); n != 1 {
		t.Fatalf("Unregister(a) = %d, want 1", n)
	}
	if n := r.Unregister(a); n != 1 {
		t.Fatalf("second Unregister(a) = %d, want 1", n)
	}
	if n := r.Unregister(b); n != 0 {
		t.Fatalf("Unregister(b) = %d, want 0", n)
	}
}

func TestRegistry_ConcurrentRegisterNeverExceedsLimit(t *testing.T) {
	const maxClients = 5
	r := NewRegistry(maxClients, nil)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Register(NewChannel(1, nil)) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != maxClients {
		t.Fatalf("admitted %d, want %d", admitted.Load(), maxClients)
	}
	if r.Size() != maxClients {
		t.Fatalf("Size() = %d, want %d", r.Size(), maxClients)
	}
}

func TestRegistry_ConnectDisconnectSequence(t *testing.T) {
	r := NewRegistry(4, nil)
	var live []*Channel

	ops := []bool{true, true, false, true, true, true, false, false, true}
	for i, connect := range ops {
		if connect {
			c := NewChannel(1, nil)
			if r.Register(c) {
				live = append(live, c)
			}
		} else if len(live) > 0 {
			r.Unregister(live[0])
			live = live[1:]
		}
		if r.Size() != len(live) {
			t.Fatalf("step %d: Size() = %d, want %d", i, r.Size(), len(live))
		}
		if r.Size() > r.MaxClients() {
			t.Fatalf("step %d: size %d exceeds limit", i, r.Size())
		}
	}
}

func TestRegistry_BroadcastOneCopyEach(t *testing.T) {
	r := NewRegistry(3, nil)
	chans := []*Channel{NewChannel(8, nil), NewChannel(8, nil), NewChannel(8, nil)}
	for _, c := range chans {
		r.Register(c)
	}

	r.Broadcast(fragment("first"))
	r.Broadcast(fragment("second"))

	for i, c := range chans {
		if c.Len() != 2 {
			t.Fatalf("channel %d holds %d events, want 2", i, c.Len())
		}
		for _, want := range []string{"first", "second"} {
			ev, err := c.Dequeue(context.Background(), time.Second)
			if err != nil {
				t.Fatalf("channel %d: %v", i, err)
			}
			if ev.Fragment.HTML != want {
				t.Errorf("channel %d: got %q, want %q", i, ev.Fragment.HTML, want)
			}
		}
	}
}

func TestRegistry_BroadcastSkipsSaturatedObserver(t *testing.T) {
	r := NewRegistry(2, nil)
	slow, fast := NewChannel(1, nil), NewChannel(8, nil)
	r.Register(slow)
	r.Register(fast)

	r.Broadcast(fragment("a"))
	if n := r.Broadcast(fragment("b")); n != 1 {
		t.Fatalf("Broadcast delivered to %d, want 1", n)
	}
	if fast.Len() != 2 {
		t.Errorf("fast observer holds %d events, want 2", fast.Len())
	}
	if slow.Len() != 1 {
		t.Errorf("slow observer holds %d events, want 1", slow.Len())
	}
}
