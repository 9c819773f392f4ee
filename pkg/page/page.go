// Package page hosts one server-held mirror of a browser document.
//
// A Page owns a dom.Document, an event loop and the replay runtime. Every
// mutation happens on the loop goroutine; the exported methods post work to
// the loop and wait for it, so Run must be active while they are called.
//
// The lifecycle mirrors a page load:
//
//	p := page.New()
//	go p.Run(ctx)
//	p.Mount(ctx, shop.Render)  // server markup arrives, event contract installed
//	p.Click(ctx, button)       // early click: captured and queued
//	p.Boot(ctx, shop.Define)   // client code loaded: upgrade and replay
package page

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vango-dev/replay/pkg/annotate"
	"github.com/vango-dev/replay/pkg/dom"
	"github.com/vango-dev/replay/pkg/eventloop"
	"github.com/vango-dev/replay/pkg/journal"
	"github.com/vango-dev/replay/pkg/jsaction"
	"github.com/vango-dev/replay/pkg/nodepath"
	"github.com/vango-dev/replay/pkg/render"
	"github.com/vango-dev/replay/pkg/telemetry"
	"github.com/vango-dev/replay/pkg/upgrade"
)

// Page errors.
var (
	ErrNotMounted     = errors.New("page: not mounted")
	ErrAlreadyMounted = errors.New("page: already mounted")
	ErrAlreadyBooted  = errors.New("page: already booted")
	ErrNoTarget       = errors.New("page: click target not found")
	ErrTaskPanicked   = errors.New("page: task panicked")
)

// PageError wraps an error with the page and operation it came from.
type PageError struct {
	PageID string
	Op     string // Operation that failed
	Err    error  // Underlying error
}

// Error returns the error message with page context.
func (e *PageError) Error() string {
	if e.PageID == "" {
		return fmt.Sprintf("page: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("page %s: %s: %v", e.PageID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *PageError) Unwrap() error {
	return e.Err
}

// RenderFunc builds the page body. em instruments click listeners.
type RenderFunc func(em *annotate.EventManager) (*dom.Node, error)

// DefineFunc registers custom elements. native attaches real listeners.
type DefineFunc func(reg *upgrade.Registry, native *annotate.EventManager) error

// Page is one hosted document.
type Page struct {
	id         string
	title      string
	namespace  string
	resolution upgrade.Resolution
	contract   bool
	queueSize  int
	logger     *slog.Logger
	observer   *telemetry.Observer
	limit      int

	doc      *dom.Document
	loop     *eventloop.Loop
	runtime  *jsaction.Runtime
	registry *upgrade.Registry
	recorder *journal.Recorder
	renderer *render.Renderer

	mounted bool
	booted  bool

	navMu       sync.Mutex
	navigations []string
	closeOnce   sync.Once
}

// Option configures a Page.
type Option func(*Page)

// WithID sets the page ID instead of generating a UUID.
func WithID(id string) Option {
	return func(p *Page) {
		if id != "" {
			p.id = id
		}
	}
}

// WithTitle sets the document title used by HTML.
func WithTitle(title string) Option {
	return func(p *Page) {
		p.title = title
	}
}

// WithLogger sets the base logger. The page adds its ID.
func WithLogger(l *slog.Logger) Option {
	return func(p *Page) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithNamespace sets the jsaction namespace.
func WithNamespace(ns string) Option {
	return func(p *Page) {
		if ns != "" {
			p.namespace = ns
		}
	}
}

// WithResolution sets how upgrade adapters resolve their locators.
func WithResolution(r upgrade.Resolution) Option {
	return func(p *Page) {
		p.resolution = r
	}
}

// WithoutContract skips the early event contract. Clicks before Boot are
// lost and components upgrade without replay.
func WithoutContract() Option {
	return func(p *Page) {
		p.contract = false
	}
}

// WithQueueSize sets the event loop task buffer.
func WithQueueSize(n int) Option {
	return func(p *Page) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithObserver exports the page activity as metrics and spans.
func WithObserver(o *telemetry.Observer) Option {
	return func(p *Page) {
		p.observer = o
	}
}

// WithJournalLimit bounds the journal entries kept between flushes.
func WithJournalLimit(n int) Option {
	return func(p *Page) {
		p.limit = n
	}
}

// New creates a page with an empty document.
func New(opts ...Option) *Page {
	p := &Page{
		id:        uuid.NewString(),
		namespace: jsaction.DefaultNamespace,
		contract:  true,
		queueSize: 64,
		logger:    slog.Default(),
		renderer:  render.NewRenderer(render.RendererConfig{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("page_id", p.id)

	p.doc = dom.NewDocument()
	p.doc.OnNavigate(func(href string) {
		p.navMu.Lock()
		p.navigations = append(p.navigations, href)
		p.navMu.Unlock()
		p.logger.Debug("page: navigate", "href", href)
	})
	p.loop = eventloop.New(p.queueSize, eventloop.WithLogger(p.logger))
	p.recorder = journal.NewRecorder(p.id, journal.WithLimit(p.limit))

	hooks := p.recorder.DispatcherHooks()
	if p.observer != nil {
		hooks = jsaction.ChainHooks(p.observer.DispatcherHooks(p.id), hooks)
		p.observer.Metrics().PageOpened()
	}
	p.runtime = jsaction.NewRuntime(
		jsaction.WithLogger(p.logger),
		jsaction.WithNamespace(p.namespace),
		jsaction.WithRuntimeHooks(hooks),
	)
	return p
}

// ID returns the page ID.
func (p *Page) ID() string {
	return p.id
}

// Logger returns the page logger.
func (p *Page) Logger() *slog.Logger {
	return p.logger
}

// Journal returns the page journal.
func (p *Page) Journal() *journal.Recorder {
	return p.recorder
}

// Runtime returns the replay runtime. Use it on the loop only.
func (p *Page) Runtime() *jsaction.Runtime {
	return p.runtime
}

// Run processes page work until ctx is done or the page is closed.
func (p *Page) Run(ctx context.Context) error {
	return p.loop.Run(ctx)
}

// Close stops the loop. Work posted afterwards fails with
// eventloop.ErrClosed.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		p.loop.Close()
		if p.observer != nil {
			p.observer.Metrics().PageClosed()
		}
		p.logger.Debug("page: closed")
	})
}

// Done is closed when the page is closed.
func (p *Page) Done() <-chan struct{} {
	return p.loop.Done()
}

type result[T any] struct {
	value T
	err   error
}

// call runs fn on the loop and hands its result back over a channel. fn may
// still run after ctx ends and call has returned.
func call[T any](ctx context.Context, p *Page, op string, fn func() (T, error)) (T, error) {
	var zero T
	ch := make(chan result[T], 1)
	if err := p.loop.Do(ctx, func() {
		v, err := fn()
		ch <- result[T]{value: v, err: err}
	}); err != nil {
		return zero, &PageError{PageID: p.id, Op: op, Err: err}
	}
	select {
	case r := <-ch:
		if r.err != nil {
			return zero, &PageError{PageID: p.id, Op: op, Err: r.err}
		}
		return r.value, nil
	default:
		// The task ran but never sent: it panicked.
		return zero, &PageError{PageID: p.id, Op: op, Err: ErrTaskPanicked}
	}
}

// do runs fn on the loop and wraps the error it returns.
func (p *Page) do(ctx context.Context, op string, fn func() error) error {
	_, err := call(ctx, p, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Mount renders the server markup into the body and, unless disabled,
// installs the event contract on it. From here on clicks on instrumented
// elements are captured.
func (p *Page) Mount(ctx context.Context, fn RenderFunc) error {
	return p.do(ctx, "mount", func() error {
		if p.mounted {
			return ErrAlreadyMounted
		}
		em := annotate.NewEventManager(p.doc, annotate.NewServerPlugin(p.namespace, dom.NewTokenGenerator()))
		root, err := fn(em)
		if err != nil {
			return err
		}
		body := p.doc.Body()
		body.ReplaceChildren(root)

		n := annotate.Decode(body, p.runtime.Table(), p.namespace)
		if p.contract {
			p.runtime.InitEventContract(body)
		}
		p.mounted = true
		p.logger.Info("page: mounted", "instrumented", n, "contract", p.contract)
		return nil
	})
}

// Boot runs the client code: components are defined and every defined
// element in the body is upgraded. Queued clicks are replayed as their
// components register.
func (p *Page) Boot(ctx context.Context, define DefineFunc) error {
	return p.do(ctx, "boot", func() error {
		if !p.mounted {
			return ErrNotMounted
		}
		if p.booted {
			return ErrAlreadyBooted
		}
		p.booted = true

		hooks := p.recorder.UpgradeHooks()
		if p.observer != nil {
			hooks = upgrade.ChainHooks(p.observer.UpgradeHooks(p.id), hooks)
		}
		p.registry = upgrade.NewRegistry(p.runtime, p.loop,
			upgrade.WithRegistryResolution(p.resolution),
			upgrade.WithRegistryHooks(hooks),
			upgrade.WithRegistryLogger(p.logger))

		native := annotate.NewEventManager(p.doc, annotate.NativePlugin{})
		if define != nil {
			if err := define(p.registry, native); err != nil {
				return err
			}
		}
		err := p.registry.UpgradeAll(p.doc.Body())
		p.logger.Info("page: booted",
			"capability", p.registry.Capability().String(),
			"resolution", p.resolution.String())
		return err
	})
}

// Click clicks target as a user would.
func (p *Page) Click(ctx context.Context, target *dom.Node) error {
	return p.do(ctx, "click", func() error {
		if target == nil || !target.IsConnected() {
			return ErrNoTarget
		}
		target.Click()
		return nil
	})
}

// ClickPath clicks the element at path below the body.
func (p *Page) ClickPath(ctx context.Context, path nodepath.Path) error {
	return p.do(ctx, "click", func() error {
		target, ok := nodepath.Resolve(p.doc.Body(), path)
		if !ok {
			return fmt.Errorf("%w: path %s", ErrNoTarget, path)
		}
		target.Click()
		return nil
	})
}

// ClickToken clicks the element carrying hydration token tok.
func (p *Page) ClickToken(ctx context.Context, tok string) error {
	return p.do(ctx, "click", func() error {
		target := dom.FindByToken(p.doc.Body(), tok)
		if target == nil {
			return fmt.Errorf("%w: token %q", ErrNoTarget, tok)
		}
		target.Click()
		return nil
	})
}

// Do runs fn on the loop with the document.
func (p *Page) Do(ctx context.Context, fn func(doc *dom.Document)) error {
	return p.do(ctx, "do", func() error {
		fn(p.doc)
		return nil
	})
}

// HTML renders the current document.
func (p *Page) HTML(ctx context.Context, clientScript string) (string, error) {
	return call(ctx, p, "render", func() (string, error) {
		var buf bytes.Buffer
		err := p.renderer.RenderPage(&buf, render.PageData{
			Body:         p.doc.Body(),
			Title:        p.title,
			PageID:       p.id,
			StreamPath:   "/ws/" + p.id,
			ClientScript: clientScript,
		})
		return buf.String(), err
	})
}

// Navigations returns the hrefs followed by anchor clicks, in order.
func (p *Page) Navigations() []string {
	p.navMu.Lock()
	defer p.navMu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Pending returns the number of events waiting for a handler, counting
// those the contract still buffers. It changes nothing on the page.
func (p *Page) Pending(ctx context.Context) (int, error) {
	return call(ctx, p, "pending", func() (int, error) {
		return p.runtime.Pending(), nil
	})
}

// Flush saves the journal to store.
func (p *Page) Flush(ctx context.Context, store journal.Store) error {
	if err := p.recorder.Flush(ctx, store); err != nil {
		return &PageError{PageID: p.id, Op: "flush", Err: err}
	}
	return nil
}

// Booted reports whether Boot has run.
func (p *Page) Booted(ctx context.Context) (bool, error) {
	return call(ctx, p, "booted", func() (bool, error) {
		return p.booted, nil
	})
}
