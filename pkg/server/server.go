// Package server hosts replay pages over HTTP.
//
// GET / renders a fresh page with its early event contract installed. The
// client then opens /ws/{pageID} and streams its clicks and a boot control
// once its code has loaded; the server mirrors them onto the hosted page and
// answers every event with an ack carrying the number of clicks still
// waiting for a handler.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/replay/pkg/annotate"
	"github.com/vango-dev/replay/pkg/dom"
	"github.com/vango-dev/replay/pkg/journal"
	"github.com/vango-dev/replay/pkg/page"
	"github.com/vango-dev/replay/pkg/telemetry"
	"github.com/vango-dev/replay/pkg/upgrade"
)

// Server errors.
var (
	ErrTooManyPages = errors.New("server: page limit reached")
	ErrServerClosed = errors.New("server: closed")
)

// App renders the server markup of a page and defines its components.
type App interface {
	Render(em *annotate.EventManager) (*dom.Node, error)
	Define(reg *upgrade.Registry, native *annotate.EventManager) error
}

// AppFactory returns the App for a new page.
type AppFactory func() App

type hostedPage struct {
	page      *page.Page
	app       App
	timer     *time.Timer
	connected bool
	closing   bool
	conn      *websocket.Conn
}

// Server hosts pages and their event streams.
type Server struct {
	config   *Config
	factory  AppFactory
	logger   *slog.Logger
	observer *telemetry.Observer
	upgrader websocket.Upgrader
	router   chi.Router

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu         sync.Mutex
	pages      map[string]*hostedPage
	closed     bool
	httpServer *http.Server
}

// New creates a server. A nil config uses DefaultConfig.
func New(factory AppFactory, config *Config) *Server {
	config = config.withDefaults()

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   config,
		factory:  factory,
		logger:   logger,
		observer: telemetry.NewObserver(config.Metrics, config.TracerName),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		baseCtx: ctx,
		cancel:  cancel,
		pages:   make(map[string]*hostedPage),
	}
	s.router = s.routes()
	return s
}

// Config returns the effective configuration.
func (s *Server) Config() *Config {
	return s.config
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/", s.handleIndex)
	r.Get("/ws/{pageID}", s.handleStream)
	r.Get("/pages/{pageID}/journal", s.handleJournal)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"took", time.Since(start))
	})
}

// Pages returns the number of hosted pages.
func (s *Server) Pages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// Page returns the hosted page with the given ID.
func (s *Server) Page(id string) (*page.Page, bool) {
	hp := s.lookup(id)
	if hp == nil {
		return nil, false
	}
	return hp.page, true
}

func (s *Server) lookup(id string) *hostedPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[id]
}

// OpenPage creates, starts and mounts a new page.
func (s *Server) OpenPage(ctx context.Context) (*page.Page, error) {
	hp, err := s.openPage(ctx)
	if err != nil {
		return nil, err
	}
	return hp.page, nil
}

func (s *Server) openPage(ctx context.Context) (*hostedPage, error) {
	opts := []page.Option{
		page.WithTitle(s.config.Title),
		page.WithLogger(s.logger),
		page.WithNamespace(s.config.Namespace),
		page.WithResolution(s.config.Resolution),
		page.WithQueueSize(s.config.EventQueueSize),
		page.WithObserver(s.observer),
		page.WithJournalLimit(s.config.JournalLimit),
	}
	if s.config.DisableContract {
		opts = append(opts, page.WithoutContract())
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServerClosed
	}
	if s.config.MaxPages > 0 && len(s.pages) >= s.config.MaxPages {
		s.mu.Unlock()
		return nil, ErrTooManyPages
	}
	hp := &hostedPage{page: page.New(opts...), app: s.factory()}
	id := hp.page.ID()
	s.pages[id] = hp
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := hp.page.Run(s.baseCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("page loop stopped", "page_id", id, "error", err)
		}
	}()

	if err := hp.page.Mount(ctx, hp.app.Render); err != nil {
		s.closePage(id, "mount failed")
		return nil, err
	}

	s.mu.Lock()
	if !hp.connected {
		hp.timer = time.AfterFunc(s.config.ConnectTimeout, func() {
			s.mu.Lock()
			connected := hp.connected
			s.mu.Unlock()
			if !connected {
				s.closePage(id, "connect timeout")
			}
		})
	}
	s.mu.Unlock()
	return hp, nil
}

// closePage stops hosting id. The journal is flushed to the configured
// store before the loop is closed and the page forgotten.
func (s *Server) closePage(id, reason string) {
	s.mu.Lock()
	hp, ok := s.pages[id]
	if !ok || hp.closing {
		s.mu.Unlock()
		return
	}
	hp.closing = true
	conn := hp.conn
	s.mu.Unlock()

	if hp.timer != nil {
		hp.timer.Stop()
	}
	if s.config.Journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
		if err := hp.page.Flush(ctx, s.config.Journal); err != nil {
			s.logger.Warn("journal flush failed", "page_id", id, "error", err)
		}
		cancel()
	}
	hp.page.Close()
	if conn != nil {
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, reason), deadline)
		conn.Close()
	}

	s.mu.Lock()
	delete(s.pages, id)
	s.mu.Unlock()
	s.logger.Info("page closed", "page_id", id, "reason", reason)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	hp, err := s.openPage(r.Context())
	switch {
	case errors.Is(err, ErrTooManyPages), errors.Is(err, ErrServerClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		s.logger.Error("open page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	html, err := hp.page.HTML(r.Context(), s.config.ClientScript)
	if err != nil {
		s.logger.Error("render page", "page_id", hp.page.ID(), "error", err)
		s.closePage(hp.page.ID(), "render failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	io.WriteString(w, html)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pageID")

	s.mu.Lock()
	hp := s.pages[id]
	if hp == nil || hp.closing {
		s.mu.Unlock()
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	if hp.connected {
		s.mu.Unlock()
		http.Error(w, "page already connected", http.StatusConflict)
		return
	}
	hp.connected = true
	if hp.timer != nil {
		hp.timer.Stop()
	}
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.logger.Warn("websocket upgrade failed", "page_id", id, "error", err)
		s.closePage(id, "upgrade failed")
		return
	}
	defer conn.Close()
	defer s.closePage(id, "disconnected")

	s.mu.Lock()
	hp.conn = conn
	s.mu.Unlock()

	st := newStream(s, hp, conn)
	if err := st.serve(s.baseCtx); err != nil {
		s.logger.Warn("stream ended with error", "page_id", id, "error", err)
	}
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pageID")

	var entries []journal.Entry
	if hp := s.lookup(id); hp != nil {
		entries = hp.page.Journal().Entries()
	} else if s.config.Journal != nil {
		var err error
		entries, err = s.config.Journal.Load(r.Context(), id)
		switch {
		case errors.Is(err, journal.ErrNotFound):
			http.Error(w, "journal not found", http.StatusNotFound)
			return
		case err != nil:
			s.logger.Error("load journal", "page_id", id, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	} else {
		http.Error(w, "journal not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	if err := journal.Encode(w, entries); err != nil {
		s.logger.Warn("write journal", "page_id", id, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"pages":  s.Pages(),
	})
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting requests, closes every hosted page and waits for
// their loops to stop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.httpServer
	ids := make([]string, 0, len(s.pages))
	for id := range s.pages {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	s.logger.Info("server shutting down", "pages", len(ids))

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	for _, id := range ids {
		s.closePage(id, "shutdown")
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
