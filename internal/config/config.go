package config

import (
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/replay/internal/errors"
	"github.com/vango-dev/replay/pkg/upgrade"
)

// FileNames are the configuration file names tried by Load, in order.
var FileNames = []string{"replay.yaml", "replay.yml", "replay.json"}

const (
	DefaultAddress        = ":8080"
	DefaultReadTimeout    = "60s"
	DefaultWriteTimeout   = "10s"
	DefaultShutdown       = "15s"
	DefaultConnectTimeout = "30s"
	DefaultMaxMessageSize = 64 * 1024
	DefaultEventQueueSize = 64
	DefaultNamespace      = "vg"
	DefaultJournalDir     = "journals"
	DefaultJournalMaxAge  = "168h"
	DefaultTracer         = "replay"
	DefaultMetrics        = "replay"
)

// Journal sinks.
const (
	SinkNone   = "none"
	SinkMemory = "memory"
	SinkDisk   = "disk"
	SinkS3     = "s3"
)

// Config is the complete replay configuration.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Replay    ReplayConfig    `json:"replay" yaml:"replay"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Log       LogConfig       `json:"log" yaml:"log"`

	// configPath stores the path the config was loaded from.
	configPath string
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address         string `json:"address,omitempty" yaml:"address,omitempty"`
	ReadTimeout     string `json:"readTimeout,omitempty" yaml:"readTimeout,omitempty"`
	WriteTimeout    string `json:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty"`
	ShutdownTimeout string `json:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`
	ConnectTimeout  string `json:"connectTimeout,omitempty" yaml:"connectTimeout,omitempty"`
	MaxMessageSize  int64  `json:"maxMessageSize,omitempty" yaml:"maxMessageSize,omitempty"`

	// MaxPages caps the hosted pages. 0 means no limit.
	MaxPages       int    `json:"maxPages,omitempty" yaml:"maxPages,omitempty"`
	EventQueueSize int    `json:"eventQueueSize,omitempty" yaml:"eventQueueSize,omitempty"`
	Title          string `json:"title,omitempty" yaml:"title,omitempty"`
	ClientScript   string `json:"clientScript,omitempty" yaml:"clientScript,omitempty"`

	// AllowedOrigins lists websocket origins accepted besides the page's
	// own. "*" accepts any origin.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`
}

// ReplayConfig configures capture and replay.
type ReplayConfig struct {
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`

	// Resolution is "positional" or "verified".
	Resolution string `json:"resolution,omitempty" yaml:"resolution,omitempty"`

	// DisableContract renders pages without early event capture.
	DisableContract bool `json:"disableContract,omitempty" yaml:"disableContract,omitempty"`

	// JournalLimit caps the entries kept in memory per page.
	JournalLimit int `json:"journalLimit,omitempty" yaml:"journalLimit,omitempty"`
}

// JournalConfig configures where page journals are persisted.
type JournalConfig struct {
	Sink      string `json:"sink,omitempty" yaml:"sink,omitempty"`
	Dir       string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	PathStyle bool   `json:"pathStyle,omitempty" yaml:"pathStyle,omitempty"`

	// MaxAge is how long journals are kept by the cleanup command.
	MaxAge string `json:"maxAge,omitempty" yaml:"maxAge,omitempty"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Tracer    string `json:"tracer,omitempty" yaml:"tracer,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the first configuration file found in dir.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E200").
		WithDetail("No " + strings.Join(FileNames, ", ") + " found in " + dir).
		WithSuggestion("Create replay.yaml or run without --config to use the defaults")
}

// LoadOrDefault behaves like Load but returns the defaults when dir holds
// no configuration file.
func LoadOrDefault(dir string) (*Config, error) {
	cfg, err := Load(dir)
	if errors.Code(err) == "E200" {
		return New(), nil
	}
	return cfg, err
}

// LoadFile reads configuration from path. Files ending in .json are parsed
// as JSON, everything else as YAML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E200").
				WithDetail("No configuration file at " + path)
		}
		return nil, errors.New("E201").Wrap(err)
	}

	cfg := &Config{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("E201").
			Wrap(err).
			WithLocationFromError(path, err).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid")
	}

	cfg.configPath = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration to path, as JSON when the extension is
// .json and as YAML otherwise.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.New("E201").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E201").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path the config was loaded from, or "".
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	s := &c.Server
	if s.Address == "" {
		s.Address = DefaultAddress
	}
	if s.ReadTimeout == "" {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == "" {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.ShutdownTimeout == "" {
		s.ShutdownTimeout = DefaultShutdown
	}
	if s.ConnectTimeout == "" {
		s.ConnectTimeout = DefaultConnectTimeout
	}
	if s.MaxMessageSize == 0 {
		s.MaxMessageSize = DefaultMaxMessageSize
	}
	if s.EventQueueSize == 0 {
		s.EventQueueSize = DefaultEventQueueSize
	}

	if c.Replay.Namespace == "" {
		c.Replay.Namespace = DefaultNamespace
	}
	if c.Replay.Resolution == "" {
		c.Replay.Resolution = upgrade.ResolvePositional.String()
	}

	j := &c.Journal
	if j.Sink == "" {
		j.Sink = SinkNone
	}
	if j.Sink == SinkDisk && j.Dir == "" {
		j.Dir = DefaultJournalDir
	}
	if j.MaxAge == "" {
		j.MaxAge = DefaultJournalMaxAge
	}

	if c.Telemetry.Namespace == "" {
		c.Telemetry.Namespace = DefaultMetrics
	}
	if c.Telemetry.Tracer == "" {
		c.Telemetry.Tracer = DefaultTracer
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		return errors.New("E202").
			Wrap(err).
			WithSuggestion(`Use ":8080" or "127.0.0.1:8080"`)
	}

	durations := []struct{ name, value string }{
		{"server.readTimeout", c.Server.ReadTimeout},
		{"server.writeTimeout", c.Server.WriteTimeout},
		{"server.shutdownTimeout", c.Server.ShutdownTimeout},
		{"server.connectTimeout", c.Server.ConnectTimeout},
		{"journal.maxAge", c.Journal.MaxAge},
	}
	for _, d := range durations {
		if v, err := time.ParseDuration(d.value); err != nil || v <= 0 {
			return errors.New("E203").
				WithDetail(d.name + " is " + quote(d.value) + ", not a positive Go duration").
				WithSuggestion(`Durations look like "500ms", "30s" or "24h"`)
		}
	}

	if c.Server.MaxMessageSize < 0 || c.Server.MaxPages < 0 ||
		c.Server.EventQueueSize < 0 || c.Replay.JournalLimit < 0 {
		return errors.New("E207")
	}

	if _, err := upgrade.ParseResolution(c.Replay.Resolution); err != nil {
		return errors.New("E204").
			Wrap(err).
			WithSuggestion(`Set replay.resolution to "positional" or "verified"`)
	}

	switch c.Journal.Sink {
	case SinkNone, SinkMemory:
	case SinkDisk:
		if c.Journal.Dir == "" {
			return errors.New("E206").WithSuggestion("Set journal.dir")
		}
	case SinkS3:
		if c.Journal.Bucket == "" {
			return errors.New("E206").WithSuggestion("Set journal.bucket")
		}
	default:
		return errors.New("E205").
			WithDetail("journal.sink is " + quote(c.Journal.Sink))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		return errors.New("E208").WithDetail("log.format is " + quote(f))
	}
	return nil
}

// Durations returns the parsed server timeouts: read, write, shutdown and
// connect. Call it on a validated config.
func (s ServerConfig) Durations() (read, write, shutdown, connect time.Duration) {
	read, _ = time.ParseDuration(s.ReadTimeout)
	write, _ = time.ParseDuration(s.WriteTimeout)
	shutdown, _ = time.ParseDuration(s.ShutdownTimeout)
	connect, _ = time.ParseDuration(s.ConnectTimeout)
	return
}

// ResolutionMode returns the parsed resolution mode.
func (r ReplayConfig) ResolutionMode() upgrade.Resolution {
	m, _ := upgrade.ParseResolution(r.Resolution)
	return m
}

// MaxAgeDuration returns the parsed journal retention.
func (j JournalConfig) MaxAgeDuration() time.Duration {
	d, _ := time.ParseDuration(j.MaxAge)
	return d
}

// SlogLevel returns the configured log level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, errors.New("E208").WithDetail("log.level is " + quote(l.Level))
	}
	return level, nil
}

func quote(s string) string {
	return `"` + s + `"`
}
