//go:build unix

package tui

import (
	"io"
	"os"
	"syscall"
	"testing"
	"time"
)

// socketTTY stands in for a terminal with one end of a socket pair. The
// other end is drained so the renderer never blocks.
func socketTTY(t *testing.T) func() (*os.File, error) {
	t.Helper()
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Skipf("socketpair: %v", err)
	}
	local := os.NewFile(uintptr(fds[0]), "tty")
	remote := os.NewFile(uintptr(fds[1]), "remote")
	go func() { _, _ = io.Copy(io.Discard, remote) }()
	t.Cleanup(func() { remote.Close() })
	return func() (*os.File, error) { return local, nil }
}

func TestDisplayOpenWaitsForProgramAndQuitsCleanly(t *testing.T) {
	d := NewDisplay(Options{Title: "test"}, nil)
	d.openTTY = socketTTY(t)

	closed, err := d.Open("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := d.Open("http://127.0.0.1:1"); err == nil {
		t.Error("second Open() succeeded")
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case err, ok := <-closed:
		if !ok || err != nil {
			t.Fatalf("close channel = (%v, %v), want (nil, true)", err, ok)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("close channel never fired")
	}
}
