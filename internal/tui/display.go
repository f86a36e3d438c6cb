package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cliagent/liveview/internal/event"
	"github.com/cliagent/liveview/internal/observer"
	"github.com/cliagent/liveview/internal/viewer"
	"golang.org/x/term"
)

// Native modes.
const (
	NativeAuto  = "auto"
	NativeNever = "never"
)

const (
	ttyPath = "/dev/tty"

	// DefaultStartTimeout bounds how long Open waits for the program to
	// come up.
	DefaultStartTimeout = 5 * time.Second
)

// Options configure the terminal display.
type Options struct {
	Title  string
	Native string // auto or never
}

// Display runs the terminal viewer on the controlling terminal. The host's
// stdin and stdout are left alone; the program reads and draws on /dev/tty.
type Display struct {
	opts   Options
	logger *slog.Logger

	openTTY      func() (*os.File, error)
	isTerminal   func(fd int) bool
	startTimeout time.Duration

	mu   sync.Mutex
	prog *tea.Program
	done chan struct{}
}

func NewDisplay(opts Options, logger *slog.Logger) *Display {
	if opts.Native == "" {
		opts.Native = NativeAuto
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Display{
		opts:         opts,
		logger:       logger.With("component", "tui"),
		openTTY:      func() (*os.File, error) { return os.OpenFile(ttyPath, os.O_RDWR, 0) },
		isTerminal:   term.IsTerminal,
		startTimeout: DefaultStartTimeout,
	}
}

// Probe reports whether a controlling terminal is available.
func (d *Display) Probe() viewer.ProbeResult {
	if d.opts.Native == NativeNever {
		return viewer.ProbeUnavailable
	}
	tty, err := d.openTTY()
	if err != nil {
		// ENXIO: the process has no controlling terminal.
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.ENXIO) {
			return viewer.ProbeUnavailable
		}
		d.logger.Debug("tty probe failed", "error", err)
		return viewer.ProbeFailed
	}
	defer tty.Close()
	if !d.isTerminal(int(tty.Fd())) {
		return viewer.ProbeUnavailable
	}
	return viewer.ProbeAvailable
}

// Open starts the terminal program and an observer agent feeding it. It
// returns once the program is running; a program that dies during startup
// is reported as ErrNativeUnavailable. The returned channel yields nil when
// the user quits, or the error the program stopped with.
func (d *Display) Open(url string) (<-chan error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.prog != nil {
		return nil, errors.New("tui: already open")
	}

	tty, err := d.openTTY()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", viewer.ErrNativeUnavailable, err)
	}

	started := make(chan struct{})
	var once sync.Once
	model := NewModel(d.opts.Title, url)
	model.onStart = func() { once.Do(func() { close(started) }) }

	prog := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithInput(tty),
		tea.WithOutput(tty),
	)

	exited := make(chan error, 1)
	go func() {
		_, err := prog.Run()
		_ = tty.Close()
		exited <- err
	}()

	select {
	case <-started:
	case err := <-exited:
		if err == nil {
			err = errors.New("terminal program exited during startup")
		}
		return nil, fmt.Errorf("%w: %v", viewer.ErrNativeUnavailable, err)
	case <-time.After(d.startTimeout):
		prog.Kill()
		<-exited
		return nil, fmt.Errorf("%w: terminal program did not start within %s", viewer.ErrNativeUnavailable, d.startTimeout)
	}

	ctx, cancel := context.WithCancel(context.Background())
	agent := observer.New(observer.Config{URL: url}, observer.Handlers{
		OnEvent:  func(f event.Fragment) { prog.Send(FragmentMsg{Fragment: f}) },
		OnStatus: func(s event.Status) { prog.Send(StatusMsg{Status: s}) },
		OnState:  func(s observer.State) { prog.Send(ConnMsg{State: s}) },
	}, d.logger)
	go func() {
		_ = agent.Run(ctx)
	}()

	closed := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := <-exited
		cancel()
		if errors.Is(err, tea.ErrInterrupted) {
			err = nil
		}
		if err != nil {
			d.logger.Warn("terminal viewer exited", "error", err)
		}
		closed <- err
		close(closed)
	}()

	d.prog = prog
	d.done = done
	return closed, nil
}

// Close quits the terminal program and waits for it to restore the
// terminal.
func (d *Display) Close() error {
	d.mu.Lock()
	prog, done := d.prog, d.done
	d.mu.Unlock()
	if prog == nil {
		return nil
	}
	prog.Quit()
	<-done
	return nil
}
