package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-dev/replay/internal/config"
	"github.com/vango-dev/replay/pkg/journal"
	"github.com/vango-dev/replay/pkg/page"
	"github.com/vango-dev/replay/pkg/upgrade"
)

func TestOriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"same origin", nil, "http://shop.test", true},
		{"foreign origin", nil, "http://evil.test", false},
		{"listed", []string{"https://cdn.test"}, "https://cdn.test", true},
		{"not listed", []string{"https://cdn.test"}, "https://evil.test", false},
		{"wildcard", []string{"*"}, "https://evil.test", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://shop.test/ws/x", nil)
			r.Header.Set("Origin", tt.origin)
			if got := originCheck(tt.allowed)(r); got != tt.want {
				t.Errorf("originCheck(%v)(%q) = %v, want %v", tt.allowed, tt.origin, got, tt.want)
			}
		})
	}
}

func TestServerConfigMapping(t *testing.T) {
	cfg := config.New()
	cfg.Server.MaxPages = 12
	cfg.Replay.Resolution = "verified"
	cfg.Replay.DisableContract = true

	sc := serverConfig(cfg, nil, nil, nil)
	if sc.MaxPages != 12 || sc.Resolution != upgrade.ResolveVerified || !sc.DisableContract {
		t.Errorf("serverConfig() = %+v", sc)
	}
	if sc.ReadTimeout.String() != "1m0s" {
		t.Errorf("ReadTimeout = %v, want 1m0s", sc.ReadTimeout)
	}
}

func TestOpenJournal(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.JournalConfig
		want string
	}{
		{"none", config.JournalConfig{Sink: config.SinkNone}, "<nil>"},
		{"memory", config.JournalConfig{Sink: config.SinkMemory}, "*journal.MemoryStore"},
		{"disk", config.JournalConfig{Sink: config.SinkDisk, Dir: t.TempDir()}, "*journal.DiskStore"},
		{"s3", config.JournalConfig{Sink: config.SinkS3, Bucket: "b", Region: "eu-west-1"}, "*journal.S3Store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openJournal(tt.cfg)
			if err != nil {
				t.Fatalf("openJournal() error: %v", err)
			}
			if got := typeName(store); got != tt.want {
				t.Errorf("openJournal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "<nil>"
	case *journal.MemoryStore:
		return "*journal.MemoryStore"
	case *journal.DiskStore:
		return "*journal.DiskStore"
	case *journal.S3Store:
		return "*journal.S3Store"
	}
	return "unknown"
}

func TestSimulatePage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := journal.NewMemoryStore()
	opts := simulateOptions{clicks: 2, products: []string{"tee", "mug"}}

	res, err := simulatePage(context.Background(), []page.Option{page.WithLogger(logger)}, opts, store)
	if err != nil {
		t.Fatalf("simulatePage() error: %v", err)
	}
	if res.cart["tee"] != 1 || res.cart["mug"] != 1 || res.cart["plush"] != 0 {
		t.Errorf("cart = %v, want one tee and one mug", res.cart)
	}
	if res.pending != 0 {
		t.Errorf("pending = %d, want 0", res.pending)
	}
	if _, err := store.Load(context.Background(), res.pageID); err != nil {
		t.Errorf("journal not flushed: %v", err)
	}

	opts.products = []string{"nope"}
	if _, err := simulatePage(context.Background(), []page.Option{page.WithLogger(logger)}, opts, nil); err == nil {
		t.Error("simulatePage() with unknown product succeeded")
	}
}
