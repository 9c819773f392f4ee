package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/replay/pkg/journal"
	"github.com/vango-dev/replay/pkg/jsaction"
	"github.com/vango-dev/replay/pkg/telemetry"
	"github.com/vango-dev/replay/pkg/upgrade"
)

// Config holds configuration for the HTTP/WebSocket server.
type Config struct {
	// Address is the address to listen on (e.g., ":8080").
	// Default: ":8080".
	Address string

	// Timeouts

	// ReadTimeout is the maximum time to wait for a stream message.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a frame.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// ConnectTimeout closes a rendered page whose client never opened its
	// stream. Default: 30 seconds.
	ConnectTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 15 seconds.
	ShutdownTimeout time.Duration

	// Limits

	// MaxMessageSize is the maximum size of an incoming WebSocket message.
	// Default: 64KB.
	MaxMessageSize int64

	// MaxPages is the maximum number of hosted pages. 0 means no limit.
	MaxPages int

	// EventQueueSize is the task buffer of every page loop.
	// Default: 64.
	EventQueueSize int

	// WebSocket

	// ReadBufferSize and WriteBufferSize size the websocket buffers.
	// Default: 4096.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates the websocket request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// Pages

	// Title is the document title of hosted pages.
	Title string

	// ClientScript is the path of the client bootstrap script.
	ClientScript string

	// Namespace is the jsaction namespace. Default: "vg".
	Namespace string

	// Resolution selects how upgrade adapters resolve their locators.
	Resolution upgrade.Resolution

	// DisableContract renders pages without the early event contract.
	DisableContract bool

	// JournalLimit caps the journal entries kept per page.
	// Default: journal.DefaultLimit.
	JournalLimit int

	// Observability

	// Journal receives the journal of every page when it closes. Nil
	// disables persistence.
	Journal journal.Store

	// Metrics exports page activity. Nil disables metrics.
	Metrics *telemetry.Metrics

	// Gatherer serves /metrics. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// TracerName names the OpenTelemetry tracer. Default: "replay".
	TracerName string

	// Logger is the base logger. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:         ":8080",
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		ConnectTimeout:  30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxMessageSize:  64 * 1024,
		EventQueueSize:  64,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     SameOriginCheck,
		Namespace:       jsaction.DefaultNamespace,
		Gatherer:        prometheus.DefaultGatherer,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// withDefaults returns a copy with every unset field defaulted.
func (c *Config) withDefaults() *Config {
	defaults := DefaultConfig()
	if c == nil {
		return defaults
	}
	out := c.Clone()
	if out.Address == "" {
		out.Address = defaults.Address
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = defaults.ReadTimeout
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = defaults.WriteTimeout
	}
	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = defaults.ConnectTimeout
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if out.MaxMessageSize == 0 {
		out.MaxMessageSize = defaults.MaxMessageSize
	}
	if out.EventQueueSize == 0 {
		out.EventQueueSize = defaults.EventQueueSize
	}
	if out.ReadBufferSize == 0 {
		out.ReadBufferSize = defaults.ReadBufferSize
	}
	if out.WriteBufferSize == 0 {
		out.WriteBufferSize = defaults.WriteBufferSize
	}
	if out.CheckOrigin == nil {
		out.CheckOrigin = defaults.CheckOrigin
	}
	if out.Namespace == "" {
		out.Namespace = defaults.Namespace
	}
	if out.Gatherer == nil {
		out.Gatherer = defaults.Gatherer
	}
	return out
}

// SameOriginCheck accepts websocket requests without an Origin header or
// whose Origin host matches the request host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
