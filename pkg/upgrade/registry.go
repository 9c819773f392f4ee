package upgrade

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vango-dev/replay/pkg/dom"
	"github.com/vango-dev/replay/pkg/jsaction"
)

// Registry errors.
var (
	ErrInvalidTag     = errors.New("upgrade: custom element tag must contain a hyphen")
	ErrAlreadyDefined = errors.New("upgrade: tag already defined")
	ErrUndefined      = errors.New("upgrade: tag not defined")
)

// Capability is the construction strategy chosen once per registry.
type Capability uint8

const (
	// CapabilityPlain upgrades elements directly. Nothing is replayed.
	CapabilityPlain Capability = iota

	// CapabilityReplay wraps every upgrade in an Adapter.
	CapabilityReplay
)

func (c Capability) String() string {
	if c == CapabilityReplay {
		return "replay"
	}
	return "plain"
}

// DetectCapability returns CapabilityReplay when rt has an event contract.
func DetectCapability(rt *jsaction.Runtime) Capability {
	if rt != nil && rt.Ready() {
		return CapabilityReplay
	}
	return CapabilityPlain
}

// Definition describes a custom element.
type Definition struct {
	// Upgrade hydrates a server-rendered instance.
	Upgrade UpgraderFunc
}

// Registry holds custom element definitions and upgrades instances.
type Registry struct {
	runtime    *jsaction.Runtime
	sched      Scheduler
	capability Capability
	mode       Resolution
	hooks      Hooks
	logger     *slog.Logger

	defs     map[string]Definition
	adapters map[*dom.Node]*Adapter
	plain    map[*dom.Node]bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryResolution sets the resolution mode given to adapters.
func WithRegistryResolution(m Resolution) RegistryOption {
	return func(r *Registry) {
		r.mode = m
	}
}

// WithRegistryHooks sets the hooks given to adapters.
func WithRegistryHooks(h Hooks) RegistryOption {
	return func(r *Registry) {
		r.hooks = h
	}
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCapability forces the construction strategy instead of detecting it.
func WithCapability(c Capability) RegistryOption {
	return func(r *Registry) {
		r.capability = c
	}
}

// NewRegistry creates a registry. The capability is detected from rt here
// and never re-evaluated.
func NewRegistry(rt *jsaction.Runtime, sched Scheduler, opts ...RegistryOption) *Registry {
	r := &Registry{
		runtime:    rt,
		sched:      sched,
		capability: DetectCapability(rt),
		logger:     slog.Default(),
		defs:       make(map[string]Definition),
		adapters:   make(map[*dom.Node]*Adapter),
		plain:      make(map[*dom.Node]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Capability returns the construction strategy.
func (r *Registry) Capability() Capability {
	return r.capability
}

// Define registers a custom element definition under tag.
func (r *Registry) Define(tag string, def Definition) error {
	tag = strings.ToLower(tag)
	if !strings.Contains(tag, "-") {
		return fmt.Errorf("%w: %q", ErrInvalidTag, tag)
	}
	if _, ok := r.defs[tag]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyDefined, tag)
	}
	r.defs[tag] = def
	return nil
}

// Defined reports whether tag has a definition.
func (r *Registry) Defined(tag string) bool {
	_, ok := r.defs[strings.ToLower(tag)]
	return ok
}

// Connect upgrades el. Connecting an element twice does nothing.
func (r *Registry) Connect(el *dom.Node) error {
	def, ok := r.defs[el.Tag]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUndefined, el.Tag)
	}

	if r.capability == CapabilityPlain {
		if r.plain[el] {
			return nil
		}
		r.plain[el] = true
		if def.Upgrade == nil {
			return nil
		}
		return def.Upgrade(el)
	}

	a, ok := r.adapters[el]
	if !ok {
		var up Upgrader
		if def.Upgrade != nil {
			up = def.Upgrade
		}
		a = NewAdapter(el, r.runtime, r.sched, up,
			WithResolution(r.mode),
			WithHooks(r.hooks),
			WithLogger(r.logger))
		r.adapters[el] = a
	}
	return a.Connect()
}

// Disconnect cancels the adapter of el, if any.
func (r *Registry) Disconnect(el *dom.Node) {
	if a, ok := r.adapters[el]; ok {
		a.Disconnect()
	}
}

// Adapter returns the adapter created for el.
func (r *Registry) Adapter(el *dom.Node) (*Adapter, bool) {
	a, ok := r.adapters[el]
	return a, ok
}

// UpgradeAll connects every defined element in root, root included, in
// document order. Elements detached by an earlier upgrade are skipped.
// Errors are joined; one failing element does not stop the others.
func (r *Registry) UpgradeAll(root *dom.Node) error {
	var targets []*dom.Node
	root.Walk(func(n *dom.Node) bool {
		if n.IsElement() && r.Defined(n.Tag) {
			targets = append(targets, n)
		}
		return true
	})

	var errs []error
	for _, el := range targets {
		if !root.Contains(el) {
			continue
		}
		if err := r.Connect(el); err != nil {
			r.logger.Warn("upgrade: connect failed", "tag", el.Tag, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
