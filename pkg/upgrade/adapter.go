// Package upgrade turns server-rendered custom elements into live ones and
// drains the clicks they received while inert.
//
// An Adapter runs once per element:
//
//	Inert → Snapshotted → Hydrating → Replaying → Drained
//
// Before the element hydrates, the adapter records a locator for every
// instrumented descendant. After hydration it resolves each locator against
// the rebuilt subtree and registers a one-shot handler per action that
// clicks the resolved element. Registration replays the queued clicks for
// those actions. One microtask later the handlers are unregistered and the
// live component owns event handling through its own listeners.
//
// Disconnect cancels an adapter: handlers are unregistered at once and the
// pending cleanup does nothing.
package upgrade

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vango-dev/replay/pkg/dom"
	"github.com/vango-dev/replay/pkg/jsaction"
	"github.com/vango-dev/replay/pkg/nodepath"
)

// State is the lifecycle state of an Adapter.
type State uint8

const (
	StateInert State = iota
	StateSnapshotted
	StateHydrating
	StateReplaying
	StateDrained
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInert:
		return "inert"
	case StateSnapshotted:
		return "snapshotted"
	case StateHydrating:
		return "hydrating"
	case StateReplaying:
		return "replaying"
	case StateDrained:
		return "drained"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Resolution selects how snapshotted locators are resolved after hydration.
type Resolution uint8

const (
	// ResolvePositional follows the bare child-index path.
	ResolvePositional Resolution = iota

	// ResolveVerified checks the hydration token and searches for it when
	// the positional node does not carry it.
	ResolveVerified
)

// ParseResolution parses "positional" or "verified".
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "positional", "":
		return ResolvePositional, nil
	case "verified":
		return ResolveVerified, nil
	}
	return 0, fmt.Errorf("upgrade: unknown resolution %q", s)
}

func (r Resolution) String() string {
	if r == ResolveVerified {
		return "verified"
	}
	return "positional"
}

// Scheduler queues work to run after the current synchronous step.
// *eventloop.Loop satisfies it.
type Scheduler interface {
	QueueMicrotask(fn func())
}

// Upgrader performs the hydration of an element. It may replace, reorder or
// destroy any descendant.
type Upgrader interface {
	Upgrade(el *dom.Node) error
}

// UpgraderFunc adapts a function to Upgrader.
type UpgraderFunc func(el *dom.Node) error

// Upgrade calls f(el).
func (f UpgraderFunc) Upgrade(el *dom.Node) error {
	return f(el)
}

// Hooks observe adapter activity. Any field may be nil.
type Hooks struct {
	// OnStale is called for every action skipped because its locator no
	// longer resolves to an interactive element.
	OnStale func(el *dom.Node, action string, path nodepath.Path)

	// OnUpgraded is called when an adapter finished hydrating and
	// registering, with the number of actions registered.
	OnUpgraded func(el *dom.Node, registered int, took time.Duration)

	// OnSettled is called when an adapter reaches Drained or Cancelled.
	OnSettled func(el *dom.Node, final State)
}

type snapshot struct {
	action  string
	locator nodepath.Locator
	node    *dom.Node
}

// Adapter is the one-shot replay bridge for a single element.
type Adapter struct {
	el       *dom.Node
	runtime  *jsaction.Runtime
	sched    Scheduler
	upgrader Upgrader
	mode     Resolution
	hooks    Hooks
	logger   *slog.Logger

	state      State
	snapshots  []snapshot
	snapped    bool
	dispatcher *jsaction.Dispatcher
	registered map[string]*dom.Node
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithResolution selects the locator resolution mode.
func WithResolution(m Resolution) AdapterOption {
	return func(a *Adapter) {
		a.mode = m
	}
}

// WithHooks installs observation hooks.
func WithHooks(h Hooks) AdapterOption {
	return func(a *Adapter) {
		a.hooks = h
	}
}

// WithLogger sets the adapter logger.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAdapter creates an inert adapter for el.
func NewAdapter(el *dom.Node, rt *jsaction.Runtime, sched Scheduler, up Upgrader, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		el:       el,
		runtime:  rt,
		sched:    sched,
		upgrader: up,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Element returns the adapted element.
func (a *Adapter) Element() *dom.Node {
	return a.el
}

// State returns the current lifecycle state.
func (a *Adapter) State() State {
	return a.state
}

// Actions returns the snapshotted action names in document order.
func (a *Adapter) Actions() []string {
	out := make([]string, len(a.snapshots))
	for i, s := range a.snapshots {
		out[i] = s.action
	}
	return out
}

// Registered returns the number of actions currently registered with the
// dispatcher by this adapter.
func (a *Adapter) Registered() int {
	return len(a.registered)
}

// Snapshot records a locator for every instrumented descendant carrying a
// counter action in the runtime namespace. A second call does nothing.
func (a *Adapter) Snapshot() int {
	if a.snapped {
		return len(a.snapshots)
	}
	a.snapped = true

	table := a.runtime.Table()
	ns := a.runtime.Namespace()
	for _, n := range a.el.QueryAll(table.Instrumented) {
		in, _ := table.Get(n)
		if in.Action.Namespace != ns || !in.Action.IsCounter() {
			continue
		}
		loc, err := nodepath.CaptureLocator(a.el, n)
		if err != nil {
			continue
		}
		a.snapshots = append(a.snapshots, snapshot{
			action:  in.Action.Name,
			locator: loc,
			node:    n,
		})
	}
	if a.state == StateInert {
		a.state = StateSnapshotted
	}
	a.logger.Debug("upgrade: snapshot",
		"tag", a.el.Tag,
		"actions", len(a.snapshots))
	return len(a.snapshots)
}

// Connect runs the adapter: snapshot, hydrate, register the replay handlers
// and schedule their removal. Calling Connect on an adapter that already
// left the Inert and Snapshotted states does nothing.
//
// A hydration error cancels the adapter. When the runtime has no event
// contract the element still hydrates and jsaction.ErrNotReady is returned.
func (a *Adapter) Connect() error {
	if a.state != StateInert && a.state != StateSnapshotted {
		return nil
	}
	start := time.Now()
	a.Snapshot()

	a.state = StateHydrating
	if a.upgrader != nil {
		if err := a.upgrader.Upgrade(a.el); err != nil {
			a.settle(StateCancelled)
			return fmt.Errorf("upgrade: hydrate <%s>: %w", a.el.Tag, err)
		}
	}
	if a.state != StateHydrating {
		// Disconnected during hydration.
		return nil
	}

	d, err := a.runtime.RequireDispatcher()
	if err != nil {
		a.logger.Warn("upgrade: dispatcher not ready, skipping replay",
			"tag", a.el.Tag,
			"actions", len(a.snapshots))
		a.settle(StateDrained)
		return err
	}

	handlers := make(map[string]jsaction.Handler, len(a.snapshots))
	a.registered = make(map[string]*dom.Node, len(a.snapshots))
	for _, s := range a.snapshots {
		target, ok := a.resolve(s.locator)
		if !ok || !target.IsHTML() {
			a.logger.Warn("upgrade: stale path",
				"tag", a.el.Tag,
				"action", s.action,
				"path", s.locator.Path.String())
			if a.hooks.OnStale != nil {
				a.hooks.OnStale(a.el, s.action, s.locator.Path)
			}
			continue
		}
		handlers[s.action] = func(jsaction.EventInfo) { target.Click() }
		a.registered[s.action] = target
	}

	a.dispatcher = d
	a.state = StateReplaying
	if a.hooks.OnUpgraded != nil {
		defer a.hooks.OnUpgraded(a.el, len(handlers), time.Since(start))
	}
	if len(handlers) == 0 {
		a.settle(StateDrained)
		return nil
	}
	d.RegisterHandlers(a.runtime.Namespace(), a, handlers)
	a.sched.QueueMicrotask(a.drain)
	return nil
}

// Disconnect cancels the adapter. Handlers still registered are removed at
// once and the scheduled cleanup becomes a no-op.
func (a *Adapter) Disconnect() {
	switch a.state {
	case StateDrained, StateCancelled:
		return
	case StateReplaying:
		a.unregister()
	}
	a.settle(StateCancelled)
}

func (a *Adapter) resolve(loc nodepath.Locator) (*dom.Node, bool) {
	if a.mode == ResolveVerified {
		n, err := nodepath.Locate(a.el, loc)
		return n, err == nil
	}
	return nodepath.Resolve(a.el, loc.Path)
}

// drain is the scheduled cleanup.
func (a *Adapter) drain() {
	if a.state != StateReplaying {
		return
	}
	if current, ok := a.runtime.CurrentDispatcher(); !ok || current != a.dispatcher {
		a.logger.Debug("upgrade: runtime reset before drain", "tag", a.el.Tag)
		a.registered = nil
		a.settle(StateDrained)
		return
	}
	a.unregister()
	a.settle(StateDrained)
}

// unregister removes this adapter's handlers and forgets the
// instrumentation of the elements they served, so later clicks on them
// reach the live listeners instead of queueing without a handler.
func (a *Adapter) unregister() {
	ns := a.runtime.Namespace()
	table := a.runtime.Table()
	for action, target := range a.registered {
		if owner, ok := a.dispatcher.Owner(jsaction.ActionKey{Namespace: ns, Name: action}); ok && owner == a {
			a.dispatcher.UnregisterHandler(ns, action)
		}
		if in, ok := table.Get(target); ok && in.Action.Name == action {
			table.Forget(target)
		}
	}
	for _, s := range a.snapshots {
		if _, ok := a.registered[s.action]; ok {
			table.Forget(s.node)
		}
	}
	a.registered = nil
}

func (a *Adapter) settle(final State) {
	a.state = final
	a.logger.Debug("upgrade: settled", "tag", a.el.Tag, "state", final.String())
	if a.hooks.OnSettled != nil {
		a.hooks.OnSettled(a.el, final)
	}
}

// IsNotReady reports whether err means the runtime had no event contract.
func IsNotReady(err error) bool {
	return errors.Is(err, jsaction.ErrNotReady)
}

// ChainHooks returns hooks that call every non-nil hook of hs in order.
func ChainHooks(hs ...Hooks) Hooks {
	var out Hooks
	for _, h := range hs {
		h := h
		if h.OnStale != nil {
			prev := out.OnStale
			out.OnStale = func(el *dom.Node, action string, path nodepath.Path) {
				if prev != nil {
					prev(el, action, path)
				}
				h.OnStale(el, action, path)
			}
		}
		if h.OnUpgraded != nil {
			prev := out.OnUpgraded
			out.OnUpgraded = func(el *dom.Node, registered int, took time.Duration) {
				if prev != nil {
					prev(el, registered, took)
				}
				h.OnUpgraded(el, registered, took)
			}
		}
		if h.OnSettled != nil {
			prev := out.OnSettled
			out.OnSettled = func(el *dom.Node, final State) {
				if prev != nil {
					prev(el, final)
				}
				h.OnSettled(el, final)
			}
		}
	}
	return out
}
