// Package config loads the viewer's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Viewer ViewerConfig `yaml:"viewer"`
	Render RenderConfig `yaml:"render"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	GracePeriod       time.Duration `yaml:"grace_period"`
	MaxClients        int           `yaml:"max_clients"`
	QueueSize         int           `yaml:"queue_size"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

type ViewerConfig struct {
	Title       string `yaml:"title"`
	MultiSource bool   `yaml:"multi_source"`
	// Native is "auto" or "never".
	Native             string        `yaml:"native"`
	QueueSize          int           `yaml:"queue_size"`
	BatchSize          int           `yaml:"batch_size"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	WatchParent        bool          `yaml:"watch_parent"`
	ParentPollInterval time.Duration `yaml:"parent_poll_interval"`
}

type RenderConfig struct {
	MaxOutputChars   int  `yaml:"max_output_chars"`
	MaxOutputLines   int  `yaml:"max_output_lines"`
	ShowRawOnUnknown bool `yaml:"show_raw_on_unknown"`
	Markdown         bool `yaml:"markdown"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

const (
	NativeAuto  = "auto"
	NativeNever = "never"
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              0,
			GracePeriod:       2 * time.Second,
			MaxClients:        10,
			QueueSize:         500,
			HeartbeatInterval: 25 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		Viewer: ViewerConfig{
			Title:              "CLI Agent Live Output",
			Native:             NativeAuto,
			QueueSize:          5000,
			BatchSize:          100,
			PollInterval:       50 * time.Millisecond,
			WatchParent:        true,
			ParentPollInterval: 2 * time.Second,
		},
		Render: RenderConfig{
			MaxOutputChars:   2000,
			MaxOutputLines:   50,
			ShowRawOnUnknown: true,
			Markdown:         true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("LIVEVIEW_HOST"); ok {
		c.Server.Host = v
	}
	if v, ok := lookup("LIVEVIEW_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LIVEVIEW_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("LIVEVIEW_NATIVE"); ok {
		c.Viewer.Native = strings.ToLower(v)
	}
	if v, ok := lookup("LIVEVIEW_KEEP"); ok {
		keep, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LIVEVIEW_KEEP: %w", err)
		}
		c.Viewer.WatchParent = !keep
	}
	if v, ok := lookup("LIVEVIEW_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	return nil
}

// Validate rejects values that cannot work and replaces non-positive limits
// with their defaults.
func (c *Config) Validate() error {
	def := defaultConfig()

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Viewer.Native {
	case "":
		c.Viewer.Native = NativeAuto
	case NativeAuto, NativeNever:
	default:
		return fmt.Errorf("viewer.native must be %q or %q, got %q", NativeAuto, NativeNever, c.Viewer.Native)
	}

	positiveInt(&c.Server.MaxClients, def.Server.MaxClients)
	positiveInt(&c.Server.QueueSize, def.Server.QueueSize)
	positiveDur(&c.Server.GracePeriod, def.Server.GracePeriod)
	positiveDur(&c.Server.HeartbeatInterval, def.Server.HeartbeatInterval)
	positiveDur(&c.Server.WriteTimeout, def.Server.WriteTimeout)

	positiveInt(&c.Viewer.QueueSize, def.Viewer.QueueSize)
	positiveInt(&c.Viewer.BatchSize, def.Viewer.BatchSize)
	positiveDur(&c.Viewer.PollInterval, def.Viewer.PollInterval)
	positiveDur(&c.Viewer.ParentPollInterval, def.Viewer.ParentPollInterval)
	if c.Viewer.Title == "" {
		c.Viewer.Title = def.Viewer.Title
	}

	positiveInt(&c.Render.MaxOutputChars, def.Render.MaxOutputChars)
	positiveInt(&c.Render.MaxOutputLines, def.Render.MaxOutputLines)
	return nil
}

func positiveInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func positiveDur(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}
