package tui

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cliagent/liveview/internal/render"
	"github.com/cliagent/liveview/internal/stream"
	"github.com/cliagent/liveview/internal/viewer"
)

func TestDisplayProbe(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "tty")
	if err := os.WriteFile(tmp, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	openFile := func() (*os.File, error) { return os.Open(tmp) }

	tests := []struct {
		name       string
		native     string
		open       func() (*os.File, error)
		isTerminal bool
		want       viewer.ProbeResult
	}{
		{"never", NativeNever, openFile, true, viewer.ProbeUnavailable},
		{"terminal", NativeAuto, openFile, true, viewer.ProbeAvailable},
		{"not a terminal", NativeAuto, openFile, false, viewer.ProbeUnavailable},
		{"no tty", NativeAuto, func() (*os.File, error) { return nil, os.ErrNotExist }, true, viewer.ProbeUnavailable},
		{"odd error", NativeAuto, func() (*os.File, error) { return nil, errors.New("boom") }, true, viewer.ProbeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDisplay(Options{Native: tt.native}, nil)
			d.openTTY = tt.open
			d.isTerminal = func(int) bool { return tt.isTerminal }
			if got := d.Probe(); got != tt.want {
				t.Errorf("Probe() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDisplayOpenWithoutTTY(t *testing.T) {
	d := NewDisplay(Options{}, nil)
	d.openTTY = func() (*os.File, error) { return nil, os.ErrNotExist }

	_, err := d.Open("http://127.0.0.1:1")
	if !errors.Is(err, viewer.ErrNativeUnavailable) {
		t.Fatalf("Open() error = %v, want ErrNativeUnavailable", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() on an unopened display: %v", err)
	}
}

// brokenTTY returns a file that passes the terminal check but cannot be
// read, so the program fails while starting its input reader.
func brokenTTY(t *testing.T) func() (*os.File, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tty")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	return func() (*os.File, error) {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		f.Close()
		return f, nil
	}
}

func TestDisplayOpenReportsStartupFailure(t *testing.T) {
	d := NewDisplay(Options{}, nil)
	d.openTTY = brokenTTY(t)
	d.isTerminal = func(int) bool { return true }

	closed, err := d.Open("http://127.0.0.1:1")
	if !errors.Is(err, viewer.ErrNativeUnavailable) {
		t.Fatalf("Open() error = %v, want ErrNativeUnavailable", err)
	}
	if closed != nil {
		t.Fatal("Open() returned a close channel for a program that never started")
	}
}

func TestControllerFallsBackWhenTerminalFailsToStart(t *testing.T) {
	d := NewDisplay(Options{}, nil)
	d.openTTY = brokenTTY(t)
	d.isTerminal = func(int) bool { return true }

	srv := stream.NewServer(stream.Config{Host: "127.0.0.1"}, []byte("doc"), nil)
	c := viewer.New(viewer.Config{}, srv, d, render.New(render.DefaultConfig(), srv.RegisterFile), nil)
	defer c.Close()

	if _, err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := c.State(); got != viewer.StateWebOnlyActive {
		t.Fatalf("state after Start = %v, want %v", got, viewer.StateWebOnlyActive)
	}

	select {
	case <-c.Done():
		t.Fatal("viewer stopped after the terminal failed to start")
	case <-time.After(200 * time.Millisecond):
	}
}
