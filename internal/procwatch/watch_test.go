package procwatch

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatcher_ReparentedParent(t *testing.T) {
	w := New(5*time.Millisecond, nil)
	w.parent = 4242
	var current atomic.Int32
	current.Store(4242)
	w.ppid = func() int { return int(current.Load()) }
	w.exists = func(context.Context, int32) (bool, error) { return true, nil }

	var calls atomic.Int32
	go func() {
		time.Sleep(30 * time.Millisecond)
		current.Store(1)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.True(t, w.Run(ctx, func() { calls.Add(1) }))
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcher_ParentPidGone(t *testing.T) {
	w := New(5*time.Millisecond, nil)
	w.parent = 4242
	w.ppid = func() int { return 4242 }
	w.exists = func(_ context.Context, pid int32) (bool, error) {
		assert.Equal(t, int32(4242), pid)
		return false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.True(t, w.Run(ctx, nil))
}

func TestWatcher_CheckErrorsKeepWatching(t *testing.T) {
	w := New(5*time.Millisecond, nil)
	w.parent = 4242
	w.ppid = func() int { return 4242 }
	w.exists = func(context.Context, int32) (bool, error) { return false, errors.New("permission denied") }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.False(t, w.Run(ctx, func() { t.Error("onExit must not run") }))
}

func TestWatcher_LiveParent(t *testing.T) {
	w := New(5*time.Millisecond, nil)
	assert.Equal(t, os.Getppid(), w.Parent())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.False(t, w.Run(ctx, func() { t.Error("the test runner is still alive") }))
}
