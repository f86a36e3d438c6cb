// Command liveview serves a live HTML view of an agent's event stream. Host
// events arrive as newline-delimited JSON on stdin; the viewer URL is printed
// to stderr.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cliagent/liveview/internal/config"
	"github.com/cliagent/liveview/internal/frontend"
	"github.com/cliagent/liveview/internal/hostevent"
	"github.com/cliagent/liveview/internal/logging"
	"github.com/cliagent/liveview/internal/mock"
	"github.com/cliagent/liveview/internal/procwatch"
	"github.com/cliagent/liveview/internal/render"
	"github.com/cliagent/liveview/internal/stream"
	"github.com/cliagent/liveview/internal/tui"
	"github.com/cliagent/liveview/internal/viewer"
	flag "github.com/spf13/pflag"
)

// maxLine bounds a single NDJSON host event.
const maxLine = 8 << 20

func main() {
	configPath := flag.String("config", "liveview.yaml", "Path to config file")
	port := flag.Int("port", -1, "Override server port (0 picks a free port)")
	host := flag.String("host", "", "Override bind host")
	mockMode := flag.Bool("mock", false, "Feed synthetic agent events instead of stdin")
	native := flag.String("native", "", "Terminal viewer mode: auto or never")
	title := flag.String("title", "", "Document title")
	multi := flag.Bool("multi-source", false, "Label events by source")
	keep := flag.Bool("keep", false, "Keep running after the parent process exits")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "liveview: %v\n", err)
		os.Exit(1)
	}
	if *port >= 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *native != "" {
		cfg.Viewer.Native = *native
	}
	if *title != "" {
		cfg.Viewer.Title = *title
	}
	if *multi || *mockMode {
		cfg.Viewer.MultiSource = true
	}
	if *keep {
		cfg.Viewer.WatchParent = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "liveview: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "liveview: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	if err := run(cfg, *mockMode, logger); err != nil {
		logger.Error("liveview failed", "error", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, mockMode bool, logger *slog.Logger) error {
	doc, err := frontend.Render(frontend.Options{
		Title:       cfg.Viewer.Title,
		MultiSource: cfg.Viewer.MultiSource,
	})
	if err != nil {
		return fmt.Errorf("render document: %w", err)
	}

	srv := stream.NewServer(stream.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		GracePeriod:       cfg.Server.GracePeriod,
		MaxClients:        cfg.Server.MaxClients,
		QueueSize:         cfg.Server.QueueSize,
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}, doc, logger)

	renderer := render.New(render.Config{
		MultiSource:      cfg.Viewer.MultiSource,
		MaxOutputChars:   cfg.Render.MaxOutputChars,
		MaxOutputLines:   cfg.Render.MaxOutputLines,
		ShowRawOnUnknown: cfg.Render.ShowRawOnUnknown,
		Markdown:         cfg.Render.Markdown,
	}, srv.RegisterFile)

	display := tui.NewDisplay(tui.Options{Title: cfg.Viewer.Title, Native: cfg.Viewer.Native}, logger)

	ctrl := viewer.New(viewer.Config{
		QueueSize:    cfg.Viewer.QueueSize,
		BatchSize:    cfg.Viewer.BatchSize,
		PollInterval: cfg.Viewer.PollInterval,
		Announce:     true,
	}, srv, display, renderer, logger)
	ctrl.OnURL(func(url string) {
		fmt.Fprintf(os.Stderr, "Live viewer: %s\n", url)
	})
	ctrl.OnShutdown(func(reason string) {
		logger.Info("live viewer stopped", "reason", reason)
	})

	if _, err := ctrl.Start(); err != nil {
		return err
	}
	defer ctrl.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if mockMode {
		go mock.NewGenerator(ctrl.Push, mock.DefaultInterval).Start(ctx)
	} else {
		go readHostEvents(os.Stdin, ctrl.Push, logger)
	}

	if cfg.Viewer.WatchParent {
		w := procwatch.New(cfg.Viewer.ParentPollInterval, logger)
		go w.Run(ctx, cancel)
	}

	select {
	case <-ctrl.Done():
	case <-ctx.Done():
		logger.Info("shutting down")
	}
	return nil
}

// readHostEvents feeds NDJSON host events from r until EOF. Malformed lines
// are logged and skipped.
func readHostEvents(r io.Reader, push func(hostevent.Event) bool, logger *slog.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		data := sc.Bytes()
		if len(data) == 0 {
			continue
		}
		ev, err := hostevent.Parse(data)
		if err != nil {
			logger.Warn("skipping malformed host event", "line", line, "error", err)
			continue
		}
		if !push(ev) {
			logger.Debug("host event not queued", "line", line)
		}
	}
	if err := sc.Err(); err != nil {
		logger.Warn("reading host events", "error", err)
		return
	}
	logger.Debug("host event input closed", "lines", line)
}
