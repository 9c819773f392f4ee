package jsaction

import (
	"log/slog"
	"time"

	"github.com/vango-dev/replay/pkg/dom"
)

// Sink receives captured events from a Contract.
type Sink func(info EventInfo)

// Contract listens on containers for a set of event types and forwards
// events that hit an instrumented element to its sink.
type Contract struct {
	table      *Table
	logger     *slog.Logger
	now        func() time.Time
	containers []*containerEntry
	types      []string
	sink       Sink
	buffer     []EventInfo
	onBuffered func(EventInfo)
	seq        uint64
	disposed   bool
}

type containerEntry struct {
	root    *dom.Node
	removes map[string]func()
}

// ContractOption configures a Contract.
type ContractOption func(*Contract)

// WithContractLogger sets the logger used by the contract.
func WithContractLogger(l *slog.Logger) ContractOption {
	return func(c *Contract) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the clock used for EventInfo.CapturedAt.
func WithClock(now func() time.Time) ContractOption {
	return func(c *Contract) {
		if now != nil {
			c.now = now
		}
	}
}

// WithBufferHook calls fn for every event buffered while no sink is
// installed.
func WithBufferHook(fn func(EventInfo)) ContractOption {
	return func(c *Contract) {
		c.onBuffered = fn
	}
}

// NewContract creates a contract that resolves instrumentation through
// table.
func NewContract(table *Table, opts ...ContractOption) *Contract {
	c := &Contract{
		table:  table,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddContainer starts capturing events inside root. A root already covered
// by a container is ignored; containers inside root are folded into it.
func (c *Contract) AddContainer(root *dom.Node) {
	if c.disposed || root == nil {
		return
	}
	for _, entry := range c.containers {
		if entry.root.Contains(root) {
			return
		}
	}
	kept := c.containers[:0]
	for _, entry := range c.containers {
		if root.Contains(entry.root) {
			entry.detach()
			continue
		}
		kept = append(kept, entry)
	}
	c.containers = kept

	entry := &containerEntry{root: root, removes: make(map[string]func())}
	for _, typ := range c.types {
		c.listen(entry, typ)
	}
	c.containers = append(c.containers, entry)
}

// AddEvent starts capturing events of type typ in every container.
func (c *Contract) AddEvent(typ string) {
	if c.disposed {
		return
	}
	for _, t := range c.types {
		if t == typ {
			return
		}
	}
	c.types = append(c.types, typ)
	for _, entry := range c.containers {
		c.listen(entry, typ)
	}
}

// EventTypes returns the captured event types in registration order.
func (c *Contract) EventTypes() []string {
	return append([]string(nil), c.types...)
}

// DispatchTo installs the sink. Events captured before a sink existed are
// delivered to it immediately, in capture order.
func (c *Contract) DispatchTo(sink Sink) {
	c.sink = sink
	if sink == nil || len(c.buffer) == 0 {
		return
	}
	buffered := c.buffer
	c.buffer = nil
	c.logger.Debug("jsaction: flushing early events", "count", len(buffered))
	for _, info := range buffered {
		sink(info)
	}
}

// Buffered returns the number of events waiting for a sink.
func (c *Contract) Buffered() int {
	return len(c.buffer)
}

// Dispose removes every listener. A disposed contract captures nothing.
func (c *Contract) Dispose() {
	for _, entry := range c.containers {
		entry.detach()
	}
	c.containers = nil
	c.buffer = nil
	c.sink = nil
	c.disposed = true
}

func (c *Contract) listen(entry *containerEntry, typ string) {
	root := entry.root
	entry.removes[typ] = root.AddEventListener(typ, func(e *dom.Event) {
		c.capture(root, e)
	}, dom.ListenerOptions{Capture: true})
}

func (e *containerEntry) detach() {
	for _, remove := range e.removes {
		remove()
	}
	e.removes = nil
}

// capture finds the nearest instrumented inclusive ancestor of the target,
// bounded by the container, and forwards the event. Events that hit no
// instrumentation are dropped.
func (c *Contract) capture(container *dom.Node, e *dom.Event) {
	var (
		el  *dom.Node
		rec Instrumentation
	)
	for cur := e.Target; cur != nil; cur = cur.Parent() {
		if in, ok := c.table.Get(cur); ok {
			el, rec = cur, in
			break
		}
		if cur == container {
			break
		}
	}
	if el == nil {
		return
	}

	c.seq++
	info := EventInfo{
		Seq:        c.seq,
		Action:     rec.Action,
		EventType:  e.Type,
		Event:      e,
		Target:     e.Target,
		Element:    el,
		CapturedAt: c.now(),
	}
	if c.sink == nil {
		c.buffer = append(c.buffer, info)
		if c.onBuffered != nil {
			c.onBuffered(info)
		}
		return
	}
	c.sink(info)
}
