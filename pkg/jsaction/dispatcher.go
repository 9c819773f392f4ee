package jsaction

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/vango-dev/replay/pkg/dom"
)

// Handler performs a logical action.
type Handler func(info EventInfo)

// GlobalHandler runs for every event of its type before action dispatch.
// It returns false when it cancelled the event's default behaviour.
type GlobalHandler func(e *dom.Event) bool

// Replayer drains what it can from q. It is invoked after every handler
// registration.
type Replayer func(q *Queue, d *Dispatcher)

// Hooks observe dispatcher activity. Any field may be nil.
type Hooks struct {
	// OnBuffered is called when the contract holds an event because no
	// dispatcher exists yet.
	OnBuffered func(info EventInfo)

	// OnQueued is called when an event is queued for lack of a handler.
	OnQueued func(info EventInfo)

	// OnDispatched is called after a handler ran. replayed is true for
	// deliveries made by a replay pass.
	OnDispatched func(info EventInfo, replayed bool)

	// OnSuperseded is called for each queued event that a replay pass
	// collapsed into a later one for the same action.
	OnSuperseded func(dropped, kept EventInfo)

	// OnReplay is called after every replay pass.
	OnReplay func(stats ReplayStats)

	// OnHandlerPanic is called when a handler panics. The panic is
	// recovered and dispatch continues with the next event.
	OnHandlerPanic func(info EventInfo, recovered any)
}

// ReplayStats summarizes one replay pass.
type ReplayStats struct {
	Scanned    int // Queue length before the pass
	Delivered  int // Handler invocations
	Superseded int // Entries collapsed into a later one for the same action
	Remaining  int // Queue length after the pass
}

// Dispatcher routes captured events to handlers keyed by action and queues
// the ones whose handler is not registered yet.
type Dispatcher struct {
	handlers map[ActionKey]registration
	global   map[string][]*globalEntry
	queue    Queue
	replayer Replayer
	hooks    Hooks
	logger   *slog.Logger
	replayed bool // set while a replay pass delivers
}

type registration struct {
	owner   any
	handler Handler
}

type globalEntry struct {
	handler GlobalHandler
	removed bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the dispatcher logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithHooks installs observation hooks.
func WithHooks(h Hooks) DispatcherOption {
	return func(d *Dispatcher) {
		d.hooks = h
	}
}

// WithReplayer installs a replayer at construction.
func WithReplayer(r Replayer) DispatcherOption {
	return func(d *Dispatcher) {
		d.replayer = r
	}
}

// NewDispatcher creates an empty dispatcher with no replayer.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[ActionKey]registration),
		global:   make(map[string][]*globalEntry),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle is the contract-facing entry point: global handlers for the event
// type run first, then the event is dispatched.
func (d *Dispatcher) Handle(info EventInfo) {
	if entries := d.global[info.EventType]; len(entries) > 0 && info.Event != nil {
		for _, g := range append([]*globalEntry(nil), entries...) {
			if !g.removed {
				g.handler(info.Event)
			}
		}
	}
	d.Dispatch(info)
}

// Dispatch runs the handler registered for info.Action, or appends info to
// the pending queue when there is none.
func (d *Dispatcher) Dispatch(info EventInfo) {
	reg, ok := d.handlers[info.Action]
	if !ok {
		d.queue.push(info)
		d.logger.Debug("jsaction: queued event",
			"action", info.Action.String(),
			"type", info.EventType,
			"pending", d.queue.Len())
		if d.hooks.OnQueued != nil {
			d.hooks.OnQueued(info)
		}
		return
	}
	d.invoke(reg.handler, info)
}

// CanDispatch reports whether a handler is registered for info.Action.
func (d *Dispatcher) CanDispatch(info EventInfo) bool {
	_, ok := d.handlers[info.Action]
	return ok
}

// HasAction reports whether a handler is registered for key.
func (d *Dispatcher) HasAction(key ActionKey) bool {
	_, ok := d.handlers[key]
	return ok
}

// Owner returns the owner recorded for key at registration.
func (d *Dispatcher) Owner(key ActionKey) (any, bool) {
	reg, ok := d.handlers[key]
	return reg.owner, ok
}

// RegisterHandlers binds every action in actions, qualified by namespace,
// to its handler and then runs the replayer. Registering an action again
// replaces its handler.
func (d *Dispatcher) RegisterHandlers(namespace string, owner any, actions map[string]Handler) {
	for name, h := range actions {
		if h == nil {
			continue
		}
		d.handlers[ActionKey{Namespace: namespace, Name: name}] = registration{owner: owner, handler: h}
	}
	d.replay()
}

// UnregisterHandler removes the handler for one action. Later events for it
// are queued again.
func (d *Dispatcher) UnregisterHandler(namespace, name string) {
	delete(d.handlers, ActionKey{Namespace: namespace, Name: name})
}

// SetEventReplayer installs the replayer run after registrations.
func (d *Dispatcher) SetEventReplayer(r Replayer) {
	d.replayer = r
}

// RegisterGlobalHandler adds h for every event of eventType and returns a
// function that removes it.
func (d *Dispatcher) RegisterGlobalHandler(eventType string, h GlobalHandler) func() {
	g := &globalEntry{handler: h}
	d.global[eventType] = append(d.global[eventType], g)
	return func() {
		if g.removed {
			return
		}
		g.removed = true
		entries := d.global[eventType]
		for i, cur := range entries {
			if cur == g {
				d.global[eventType] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
		if len(d.global[eventType]) == 0 {
			delete(d.global, eventType)
		}
	}
}

// GlobalHandlers returns the number of global handlers for eventType.
func (d *Dispatcher) GlobalHandlers(eventType string) int {
	return len(d.global[eventType])
}

// Pending returns a copy of the queued events in arrival order.
func (d *Dispatcher) Pending() []EventInfo {
	return d.queue.Items()
}

// Queue exposes the pending queue to replayers.
func (d *Dispatcher) Queue() *Queue {
	return &d.queue
}

func (d *Dispatcher) replay() {
	if d.replayer == nil || d.queue.Len() == 0 {
		return
	}
	d.replayer(&d.queue, d)
}

// deliver runs the handler for info as part of a replay pass. A handler
// earlier in the pass may have unregistered info's action, in which case
// info goes back to the queue.
func (d *Dispatcher) deliver(info EventInfo) {
	reg, ok := d.handlers[info.Action]
	if !ok {
		d.Dispatch(info)
		return
	}
	prev := d.replayed
	d.replayed = true
	defer func() { d.replayed = prev }()
	d.invoke(reg.handler, info)
}

func (d *Dispatcher) invoke(h Handler, info EventInfo) {
	replayed := d.replayed
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("jsaction: handler panic",
				"action", info.Action.String(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			if d.hooks.OnHandlerPanic != nil {
				d.hooks.OnHandlerPanic(info, r)
			}
		}
	}()
	h(info)
	if d.hooks.OnDispatched != nil {
		d.hooks.OnDispatched(info, replayed)
	}
}

// ChainHooks returns hooks that call every non-nil hook of hs in order.
func ChainHooks(hs ...Hooks) Hooks {
	var out Hooks
	for _, h := range hs {
		h := h
		if h.OnBuffered != nil {
			prev := out.OnBuffered
			out.OnBuffered = func(info EventInfo) {
				if prev != nil {
					prev(info)
				}
				h.OnBuffered(info)
			}
		}
		if h.OnQueued != nil {
			prev := out.OnQueued
			out.OnQueued = func(info EventInfo) {
				if prev != nil {
					prev(info)
				}
				h.OnQueued(info)
			}
		}
		if h.OnDispatched != nil {
			prev := out.OnDispatched
			out.OnDispatched = func(info EventInfo, replayed bool) {
				if prev != nil {
					prev(info, replayed)
				}
				h.OnDispatched(info, replayed)
			}
		}
		if h.OnSuperseded != nil {
			prev := out.OnSuperseded
			out.OnSuperseded = func(dropped, kept EventInfo) {
				if prev != nil {
					prev(dropped, kept)
				}
				h.OnSuperseded(dropped, kept)
			}
		}
		if h.OnReplay != nil {
			prev := out.OnReplay
			out.OnReplay = func(stats ReplayStats) {
				if prev != nil {
					prev(stats)
				}
				h.OnReplay(stats)
			}
		}
		if h.OnHandlerPanic != nil {
			prev := out.OnHandlerPanic
			out.OnHandlerPanic = func(info EventInfo, recovered any) {
				if prev != nil {
					prev(info, recovered)
				}
				h.OnHandlerPanic(info, recovered)
			}
		}
	}
	return out
}
