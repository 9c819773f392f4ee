package jsaction

import (
	"errors"
	"log/slog"

	"github.com/vango-dev/replay/pkg/dom"
)

// Runtime errors.
var (
	// ErrNotReady is returned when the dispatcher is requested before an
	// event contract was initialized.
	ErrNotReady = errors.New("jsaction: event contract not initialized")
)

// Runtime is the per-page replay state: one side table, one contract and a
// lazily built dispatcher.
type Runtime struct {
	namespace  string
	table      *Table
	logger     *slog.Logger
	hooks      Hooks
	container  *dom.Node
	contract   *Contract
	dispatcher *Dispatcher
	unregister func()
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithLogger sets the logger shared by the contract and dispatcher.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRuntimeHooks sets the hooks given to the dispatcher.
func WithRuntimeHooks(h Hooks) RuntimeOption {
	return func(r *Runtime) {
		r.hooks = h
	}
}

// WithNamespace overrides DefaultNamespace.
func WithNamespace(ns string) RuntimeOption {
	return func(r *Runtime) {
		if ns != "" {
			r.namespace = ns
		}
	}
}

// NewRuntime creates a runtime with an empty table and no contract.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		namespace: DefaultNamespace,
		table:     NewTable(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Namespace returns the namespace of server-instrumented actions.
func (r *Runtime) Namespace() string {
	return r.namespace
}

// Table returns the side table of instrumented elements.
func (r *Runtime) Table() *Table {
	return r.table
}

// InitEventContract creates the contract with container as its only
// container, capturing clicks. Calling it again returns the existing
// contract.
func (r *Runtime) InitEventContract(container *dom.Node) *Contract {
	if r.contract != nil {
		return r.contract
	}
	r.container = container
	r.contract = NewContract(r.table,
		WithContractLogger(r.logger),
		WithBufferHook(r.hooks.OnBuffered))
	r.contract.AddContainer(container)
	r.contract.AddEvent("click")
	r.logger.Debug("jsaction: event contract initialized",
		"instrumented", r.table.Len())
	return r.contract
}

// Ready reports whether an event contract exists.
func (r *Runtime) Ready() bool {
	return r.contract != nil
}

// Contract returns the event contract, if initialized.
func (r *Runtime) Contract() (*Contract, bool) {
	return r.contract, r.contract != nil
}

// Dispatcher returns the page dispatcher, building it on first use. It
// reports false when no contract was initialized.
//
// Building binds the contract to the dispatcher, installs Replay and
// registers the global click interceptor, in that order.
func (r *Runtime) Dispatcher() (*Dispatcher, bool) {
	if r.contract == nil {
		return nil, false
	}
	if r.dispatcher == nil {
		d := NewDispatcher(WithDispatcherLogger(r.logger), WithHooks(r.hooks))
		r.contract.DispatchTo(d.Handle)
		d.SetEventReplayer(Replay)
		r.unregister = d.RegisterGlobalHandler("click", ClickInterceptor(r.table, r.container))
		r.dispatcher = d
	}
	return r.dispatcher, true
}

// CurrentDispatcher returns the dispatcher if one was already built. Unlike
// Dispatcher it never builds one.
func (r *Runtime) CurrentDispatcher() (*Dispatcher, bool) {
	return r.dispatcher, r.dispatcher != nil
}

// Pending returns the number of events waiting for a handler: those still
// buffered by the contract plus those queued by the dispatcher. It builds
// nothing.
func (r *Runtime) Pending() int {
	n := 0
	if r.contract != nil {
		n += r.contract.Buffered()
	}
	if r.dispatcher != nil {
		n += r.dispatcher.queue.Len()
	}
	return n
}

// RequireDispatcher is Dispatcher for callers that cannot proceed without
// one.
func (r *Runtime) RequireDispatcher() (*Dispatcher, error) {
	d, ok := r.Dispatcher()
	if !ok {
		return nil, ErrNotReady
	}
	return d, nil
}

// CleanupGlobalClickHandler removes the click interceptor. It is a no-op
// when none is installed.
func (r *Runtime) CleanupGlobalClickHandler() {
	if r.unregister == nil {
		return
	}
	r.unregister()
	r.unregister = nil
}

// Reset disposes the contract and forgets the dispatcher. Events still
// queued are dropped with it. The table is kept.
func (r *Runtime) Reset() {
	r.CleanupGlobalClickHandler()
	if r.contract != nil {
		r.contract.Dispose()
	}
	if r.dispatcher != nil && r.dispatcher.queue.Len() > 0 {
		r.logger.Warn("jsaction: runtime reset with pending events",
			"pending", r.dispatcher.queue.Len())
	}
	r.contract = nil
	r.dispatcher = nil
	r.container = nil
}
