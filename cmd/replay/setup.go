package main

import (
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/vango-dev/replay/internal/config"
	"github.com/vango-dev/replay/internal/demo"
	"github.com/vango-dev/replay/internal/errors"
	"github.com/vango-dev/replay/pkg/journal"
	"github.com/vango-dev/replay/pkg/server"
	"github.com/vango-dev/replay/pkg/telemetry"
)

// loadConfig resolves --config: a file, a directory, or the working
// directory when empty. A directory without a config file yields the
// defaults.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	path := flags.config
	var (
		cfg *config.Config
		err error
	)
	switch fi, statErr := os.Stat(path); {
	case path == "":
		cfg, err = config.LoadOrDefault(".")
	case statErr == nil && fi.IsDir():
		cfg, err = config.LoadOrDefault(path)
	default:
		cfg, err = config.LoadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
		if _, err := cfg.Log.SlogLevel(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section.
func newLogger(c config.LogConfig) *slog.Logger {
	level, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openJournal opens the configured journal store. The none sink returns a
// nil store.
func openJournal(c config.JournalConfig) (journal.Store, error) {
	switch c.Sink {
	case config.SinkMemory:
		return journal.NewMemoryStore(), nil
	case config.SinkDisk:
		s, err := journal.NewDiskStore(c.Dir)
		if err != nil {
			return nil, errors.New("E240").Wrap(err).
				WithSuggestion("Check that " + c.Dir + " is writable")
		}
		return s, nil
	case config.SinkS3:
		client := journal.NewS3Client(journal.S3Config{
			Region:          c.Region,
			Endpoint:        c.Endpoint,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			UsePathStyle:    c.PathStyle,
		})
		return journal.NewS3Store(client, c.Bucket, c.Prefix), nil
	}
	return nil, nil
}

// serverConfig maps the loaded configuration onto the server's.
func serverConfig(cfg *config.Config, logger *slog.Logger, store journal.Store, metrics *telemetry.Metrics) *server.Config {
	read, write, shutdown, connect := cfg.Server.Durations()
	sc := server.DefaultConfig()
	sc.Address = cfg.Server.Address
	sc.ReadTimeout = read
	sc.WriteTimeout = write
	sc.ShutdownTimeout = shutdown
	sc.ConnectTimeout = connect
	sc.MaxMessageSize = cfg.Server.MaxMessageSize
	sc.MaxPages = cfg.Server.MaxPages
	sc.EventQueueSize = cfg.Server.EventQueueSize
	sc.Title = cfg.Server.Title
	sc.ClientScript = cfg.Server.ClientScript
	sc.CheckOrigin = originCheck(cfg.Server.AllowedOrigins)
	sc.Namespace = cfg.Replay.Namespace
	sc.Resolution = cfg.Replay.ResolutionMode()
	sc.DisableContract = cfg.Replay.DisableContract
	sc.JournalLimit = cfg.Replay.JournalLimit
	sc.Journal = store
	sc.Metrics = metrics
	sc.TracerName = cfg.Telemetry.Tracer
	sc.Logger = logger
	return sc
}

// originCheck accepts same-origin requests and the listed origins.
func originCheck(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return server.SameOriginCheck
	}
	hosts := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts[strings.ToLower(u.Host)] = true
		}
	}
	return func(r *http.Request) bool {
		if server.SameOriginCheck(r) {
			return true
		}
		u, err := url.Parse(r.Header.Get("Origin"))
		return err == nil && hosts[strings.ToLower(u.Host)]
	}
}

// shopFactory returns a fresh demo shop per page.
func shopFactory() server.App {
	return demo.NewShop(nil, nil)
}
