package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vango-dev/replay/internal/errors"
	"github.com/vango-dev/replay/pkg/protocol"
	"github.com/vango-dev/replay/pkg/server"
	"github.com/vango-dev/replay/pkg/telemetry"
)

type benchConfig struct {
	Clients      int
	EarlyClicks  int
	LiveClicks   int
	EventTimeout time.Duration
	JSONOutput   string
}

type benchCounters struct {
	pagesOpened   atomic.Uint64
	eventsSent    atomic.Uint64
	acks          atomic.Uint64
	replayedPages atomic.Uint64
}

type benchErrors struct {
	pageFailures      atomic.Uint64
	handshakeFailures atomic.Uint64
	writeFailures     atomic.Uint64
	decodeFailures    atomic.Uint64
	serverErrorFrames atomic.Uint64
	leftPending       atomic.Uint64
}

type latencyStats struct {
	Count int     `json:"count"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
	Max   float64 `json:"max_ms"`
}

type benchReport struct {
	Clients       int          `json:"clients"`
	EarlyClicks   int          `json:"early_clicks"`
	LiveClicks    int          `json:"live_clicks"`
	DurationMS    float64      `json:"duration_ms"`
	PagesOpened   uint64       `json:"pages_opened"`
	EventsSent    uint64       `json:"events_sent"`
	Acks          uint64       `json:"acks"`
	ReplayedPages uint64       `json:"replayed_pages"`
	Boot          latencyStats `json:"boot"`
	Click         latencyStats `json:"click"`
	Errors        struct {
		Page      uint64 `json:"page"`
		Handshake uint64 `json:"handshake"`
		Write     uint64 `json:"write"`
		Decode    uint64 `json:"decode"`
		Server    uint64 `json:"server"`
		Pending   uint64 `json:"left_pending"`
	} `json:"errors"`
}

func benchCmd(flags *globalFlags) *cobra.Command {
	var cfg benchConfig

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark early capture and replay over WebSocket",
		Long: `Start an in-process server and drive concurrent clients against it.

Every client loads a page, sends early clicks before booting, boots and
then sends live clicks. Boot and click round trips are reported.

Examples:
  replay bench
  replay bench --clients 200 --early 3 --live 20
  replay bench --json bench.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd.Context(), flags, cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.Clients, "clients", 50, "Concurrent clients")
	cmd.Flags().IntVar(&cfg.EarlyClicks, "early", 2, "Clicks sent before boot")
	cmd.Flags().IntVar(&cfg.LiveClicks, "live", 10, "Clicks sent after boot")
	cmd.Flags().DurationVar(&cfg.EventTimeout, "event-timeout", 5*time.Second, "Per-message timeout")
	cmd.Flags().StringVar(&cfg.JSONOutput, "json", "", "Write the report as JSON to this file")
	return cmd
}

func runBench(ctx context.Context, flags *globalFlags, cfg benchConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Clients < 1 || cfg.EarlyClicks < 0 || cfg.LiveClicks < 0 {
		return errors.New("E260").WithDetail("--clients must be positive and click counts not negative")
	}
	rc, err := loadConfig(flags)
	if err != nil {
		return err
	}

	// The bench keeps its own registry so repeated runs do not collide.
	reg := prometheus.NewRegistry()
	sc := serverConfig(rc, slog.New(slog.NewTextHandler(io.Discard, nil)), nil,
		telemetry.NewMetrics(telemetry.WithRegistry(reg), telemetry.WithNamespace(rc.Telemetry.Namespace)))
	sc.Gatherer = reg
	sc.MaxPages = 0
	sc.CheckOrigin = func(*http.Request) bool { return true }
	srv := server.New(shopFactory, sc)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return errors.New("E220").Wrap(err)
	}
	httpServer := &http.Server{Handler: srv.Handler()}
	go httpServer.Serve(ln)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
		srv.Shutdown(shutdownCtx)
	}()
	base := "http://" + ln.Addr().String()

	var (
		counters benchCounters
		errCount benchErrors
		mu       sync.Mutex
		boots    []time.Duration
		clicks   []time.Duration
		wg       sync.WaitGroup
	)
	start := time.Now()
	for i := 0; i < cfg.Clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := &benchClient{cfg: cfg, base: base, counters: &counters, errs: &errCount}
			boot, rtts := b.run(ctx)
			mu.Lock()
			if boot > 0 {
				boots = append(boots, boot)
			}
			clicks = append(clicks, rtts...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	report := benchReport{
		Clients:       cfg.Clients,
		EarlyClicks:   cfg.EarlyClicks,
		LiveClicks:    cfg.LiveClicks,
		DurationMS:    ms(time.Since(start)),
		PagesOpened:   counters.pagesOpened.Load(),
		EventsSent:    counters.eventsSent.Load(),
		Acks:          counters.acks.Load(),
		ReplayedPages: counters.replayedPages.Load(),
		Boot:          summarize(boots),
		Click:         summarize(clicks),
	}
	report.Errors.Page = errCount.pageFailures.Load()
	report.Errors.Handshake = errCount.handshakeFailures.Load()
	report.Errors.Write = errCount.writeFailures.Load()
	report.Errors.Decode = errCount.decodeFailures.Load()
	report.Errors.Server = errCount.serverErrorFrames.Load()
	report.Errors.Pending = errCount.leftPending.Load()

	printReport(report)
	if cfg.JSONOutput != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(cfg.JSONOutput, append(data, '\n'), 0644); err != nil {
			return errors.New("E260").Wrap(err)
		}
		info("report written to %s", cfg.JSONOutput)
	}
	return nil
}

var benchPageMeta = regexp.MustCompile(`<meta name="replay-page" content="([^"]+)">`)

// Path of the first add button below the body of the demo shop.
var benchTarget = []int{0, 1, 0, 0, 2}

type benchClient struct {
	cfg      benchConfig
	base     string
	counters *benchCounters
	errs     *benchErrors
	conn     *websocket.Conn
	seq      uint64
}

// run plays one page load and returns the boot round trip and the live
// click round trips.
func (b *benchClient) run(ctx context.Context) (time.Duration, []time.Duration) {
	id, err := b.openPage(ctx)
	if err != nil {
		b.errs.pageFailures.Add(1)
		return 0, nil
	}
	b.counters.pagesOpened.Add(1)

	wsURL := "ws" + b.base[len("http"):] + "/ws/" + id
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		b.errs.handshakeFailures.Add(1)
		return 0, nil
	}
	defer conn.Close()
	b.conn = conn

	for i := 0; i < b.cfg.EarlyClicks; i++ {
		if _, ok := b.click(protocol.FlagEarly); !ok {
			return 0, nil
		}
	}

	start := time.Now()
	ack, ok := b.roundTrip(&protocol.Control{Type: protocol.ControlBoot}, 0)
	if !ok {
		return 0, nil
	}
	boot := time.Since(start)
	if ack.Pending != 0 {
		b.errs.leftPending.Add(1)
	} else if b.cfg.EarlyClicks > 0 {
		b.counters.replayedPages.Add(1)
	}

	rtts := make([]time.Duration, 0, b.cfg.LiveClicks)
	for i := 0; i < b.cfg.LiveClicks; i++ {
		rtt, ok := b.click(0)
		if !ok {
			break
		}
		rtts = append(rtts, rtt)
	}
	b.roundTripClose()
	return boot, rtts
}

func (b *benchClient) openPage(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.base+"/", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	m := benchPageMeta.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("no page id")
	}
	return string(m[1]), nil
}

func (b *benchClient) click(flags protocol.FrameFlags) (time.Duration, bool) {
	b.seq++
	start := time.Now()
	_, ok := b.roundTrip(&protocol.Event{Seq: b.seq, Type: "click", Path: benchTarget}, flags)
	return time.Since(start), ok
}

// roundTrip sends msg and waits for its ack.
func (b *benchClient) roundTrip(msg protocol.Message, flags protocol.FrameFlags) (*protocol.Ack, bool) {
	data, err := protocol.Marshal(msg, flags)
	if err != nil {
		b.errs.writeFailures.Add(1)
		return nil, false
	}
	b.conn.SetWriteDeadline(time.Now().Add(b.cfg.EventTimeout))
	if err := b.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		b.errs.writeFailures.Add(1)
		return nil, false
	}
	b.counters.eventsSent.Add(1)

	b.conn.SetReadDeadline(time.Now().Add(b.cfg.EventTimeout))
	_, reply, err := b.conn.ReadMessage()
	if err != nil {
		b.errs.decodeFailures.Add(1)
		return nil, false
	}
	resp, _, err := protocol.Unmarshal(reply)
	if err != nil {
		b.errs.decodeFailures.Add(1)
		return nil, false
	}
	switch m := resp.(type) {
	case *protocol.Ack:
		b.counters.acks.Add(1)
		return m, true
	case *protocol.ErrorMessage:
		b.errs.serverErrorFrames.Add(1)
		return nil, false
	}
	b.errs.decodeFailures.Add(1)
	return nil, false
}

func (b *benchClient) roundTripClose() {
	data, err := protocol.Marshal(&protocol.Control{Type: protocol.ControlClose, Reason: protocol.CloseNormal}, 0)
	if err == nil {
		b.conn.WriteMessage(websocket.BinaryMessage, data)
	}
}

func summarize(samples []time.Duration) latencyStats {
	if len(samples) == 0 {
		return latencyStats{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	pct := func(p float64) float64 {
		idx := int(math.Ceil(p*float64(len(samples)))) - 1
		if idx < 0 {
			idx = 0
		}
		return ms(samples[idx])
	}
	return latencyStats{
		Count: len(samples),
		P50:   pct(0.50),
		P95:   pct(0.95),
		P99:   pct(0.99),
		Max:   ms(samples[len(samples)-1]),
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func printReport(r benchReport) {
	success("%d clients in %.1fms", r.Clients, r.DurationMS)
	info("pages opened:   %d", r.PagesOpened)
	info("events sent:    %d (%d acked)", r.EventsSent, r.Acks)
	info("pages replayed: %d", r.ReplayedPages)
	info("boot  p50 %.2fms  p95 %.2fms  p99 %.2fms  max %.2fms", r.Boot.P50, r.Boot.P95, r.Boot.P99, r.Boot.Max)
	info("click p50 %.2fms  p95 %.2fms  p99 %.2fms  max %.2fms", r.Click.P50, r.Click.P95, r.Click.P99, r.Click.Max)
	e := r.Errors
	if total := e.Page + e.Handshake + e.Write + e.Decode + e.Server + e.Pending; total > 0 {
		warn("%d errors: page=%d handshake=%d write=%d decode=%d server=%d pending=%d",
			total, e.Page, e.Handshake, e.Write, e.Decode, e.Server, e.Pending)
	}
}
