package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/replay/internal/demo"
	"github.com/vango-dev/replay/pkg/protocol"
	"github.com/vango-dev/replay/pkg/server"
)

var pageMeta = regexp.MustCompile(`<meta name="replay-page" content="([^"]+)">`)

// TestChiRouterIntegration mounts the replay server next to ordinary API
// routes and runs a full early-click page load through the router.
func TestChiRouterIntegration(t *testing.T) {
	var (
		mu    sync.Mutex
		shops []*demo.Shop
	)
	config := server.DefaultConfig()
	config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	app := server.New(func() server.App {
		shop := demo.NewShop(nil, nil)
		mu.Lock()
		shops = append(shops, shop)
		mu.Unlock()
		return shop
	}, config)
	defer app.Shutdown(context.Background())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Mount("/", app.Handler())

	ts := httptest.NewServer(r)
	defer ts.Close()

	t.Run("API route", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/health")
		if err != nil {
			t.Fatalf("GET error: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != "OK" {
			t.Errorf("body = %q, want OK", body)
		}
	})

	t.Run("early clicks replayed", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/")
		if err != nil {
			t.Fatalf("GET / error: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		m := pageMeta.FindSubmatch(body)
		if m == nil {
			t.Fatalf("no page id in:\n%s", body)
		}

		wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + string(m[1])
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("Dial() error: %v", err)
		}
		defer conn.Close()

		exchange := func(msg protocol.Message, flags protocol.FrameFlags) *protocol.Ack {
			t.Helper()
			data, err := protocol.Marshal(msg, flags)
			if err != nil {
				t.Fatalf("Marshal() error: %v", err)
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				t.Fatalf("WriteMessage() error: %v", err)
			}
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, reply, err := conn.ReadMessage()
			if err != nil {
				t.Fatalf("ReadMessage() error: %v", err)
			}
			got, _, err := protocol.Unmarshal(reply)
			if err != nil {
				t.Fatalf("Unmarshal() error: %v", err)
			}
			ack, ok := got.(*protocol.Ack)
			if !ok {
				t.Fatalf("reply = %#v, want ack", got)
			}
			return ack
		}

		tee := []int{0, 1, 0, 0, 2}
		mug := []int{0, 1, 1, 0, 2}
		exchange(&protocol.Event{Seq: 1, Type: "click", Path: tee}, protocol.FlagEarly)
		if ack := exchange(&protocol.Event{Seq: 2, Type: "click", Path: mug}, protocol.FlagEarly); ack.Pending != 2 {
			t.Errorf("Pending before boot = %d, want 2", ack.Pending)
		}
		if ack := exchange(&protocol.Control{Type: protocol.ControlBoot}, 0); ack.Pending != 0 || !ack.Booted {
			t.Errorf("boot ack = %+v, want nothing pending", ack)
		}

		mu.Lock()
		cart := shops[0].Cart()
		mu.Unlock()
		if cart.Quantity("tee") != 1 || cart.Quantity("mug") != 1 {
			t.Errorf("cart tee=%d mug=%d, want 1 and 1", cart.Quantity("tee"), cart.Quantity("mug"))
		}
	})
}
