package dom

import "time"

// Phase is the phase of event dispatch.
type Phase uint8

const (
	PhaseNone Phase = iota
	PhaseCapturing
	PhaseAtTarget
	PhaseBubbling
)

// Event is a DOM event travelling through the tree.
type Event struct {
	Type          string
	Target        *Node
	CurrentTarget *Node
	Phase         Phase
	Bubbles       bool
	Cancelable    bool
	Trusted       bool // false for synthesized events such as Click
	TimeStamp     time.Time
	Detail        any

	defaultPrevented bool
	stopped          bool
	stoppedNow       bool
	dispatching      bool
}

// NewEvent creates a bubbling, cancelable event of the given type.
func NewEvent(typ string) *Event {
	return &Event{
		Type:       typ,
		Bubbles:    true,
		Cancelable: true,
		TimeStamp:  time.Now(),
	}
}

// PreventDefault cancels the event's default action if it is cancelable.
func (e *Event) PreventDefault() {
	if e.Cancelable {
		e.defaultPrevented = true
	}
}

// DefaultPrevented reports whether PreventDefault took effect.
func (e *Event) DefaultPrevented() bool {
	return e.defaultPrevented
}

// StopPropagation stops the event after the current node's listeners.
func (e *Event) StopPropagation() {
	e.stopped = true
}

// StopImmediatePropagation stops the event before the next listener.
func (e *Event) StopImmediatePropagation() {
	e.stopped = true
	e.stoppedNow = true
}

// Dispatching reports whether the event is currently being dispatched.
func (e *Event) Dispatching() bool {
	return e.dispatching
}

// Listener receives events.
type Listener func(e *Event)

// ListenerOptions configures AddEventListener.
type ListenerOptions struct {
	Capture bool
	Once    bool
}

type listener struct {
	id      int
	typ     string
	fn      Listener
	capture bool
	once    bool
	removed bool
}

// AddEventListener registers fn for events of type typ on n and returns a
// function that removes it. Removing twice is harmless.
func (n *Node) AddEventListener(typ string, fn Listener, opts ListenerOptions) func() {
	n.nextID++
	l := &listener{
		id:      n.nextID,
		typ:     typ,
		fn:      fn,
		capture: opts.Capture,
		once:    opts.Once,
	}
	n.listeners = append(n.listeners, l)
	return func() { n.removeListener(l) }
}

// HasEventListeners reports whether n has listeners for typ.
func (n *Node) HasEventListeners(typ string) bool {
	for _, l := range n.listeners {
		if l.typ == typ && !l.removed {
			return true
		}
	}
	return false
}

func (n *Node) removeListener(l *listener) {
	if l.removed {
		return
	}
	l.removed = true
	for i, cur := range n.listeners {
		if cur == l {
			n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
			return
		}
	}
}

// DispatchEvent dispatches e with n as the target and then runs the default
// action. It returns false if the default action was prevented.
func (n *Node) DispatchEvent(e *Event) bool {
	if e.dispatching {
		return !e.defaultPrevented
	}
	e.dispatching = true
	e.Target = n

	// The propagation path is fixed before any listener runs.
	path := []*Node{}
	for cur := n; cur != nil; cur = cur.parent {
		path = append(path, cur)
	}

	e.Phase = PhaseCapturing
	for i := len(path) - 1; i > 0 && !e.stopped; i-- {
		path[i].invoke(e, true)
	}

	if !e.stopped {
		e.Phase = PhaseAtTarget
		n.invoke(e, true)
		if !e.stopped {
			n.invoke(e, false)
		}
	}

	if e.Bubbles {
		e.Phase = PhaseBubbling
		for i := 1; i < len(path) && !e.stopped; i++ {
			path[i].invoke(e, false)
		}
	}

	e.Phase = PhaseNone
	e.CurrentTarget = nil
	e.dispatching = false

	if !e.defaultPrevented {
		n.runDefaultAction(e)
	}
	return !e.defaultPrevented
}

// invoke calls n's listeners for e whose capture flag matches.
func (n *Node) invoke(e *Event, capture bool) {
	if len(n.listeners) == 0 {
		return
	}
	e.CurrentTarget = n
	snapshot := append([]*listener(nil), n.listeners...)
	for _, l := range snapshot {
		if l.removed || l.typ != e.Type || l.capture != capture {
			continue
		}
		if l.once {
			n.removeListener(l)
		}
		l.fn(e)
		if e.stoppedNow {
			return
		}
	}
}

// runDefaultAction performs the activation behaviour of click events: the
// nearest anchor with an href navigates its document.
func (n *Node) runDefaultAction(e *Event) {
	if e.Type != "click" {
		return
	}
	anchor := n.Closest(nil, func(c *Node) bool {
		return c.Tag == "a" && c.HasAttribute("href")
	})
	if anchor == nil {
		return
	}
	doc := anchor.OwnerDocument()
	if doc == nil {
		return
	}
	href, _ := anchor.GetAttribute("href")
	doc.navigate(href)
}

// Click synthesizes a click on n the way HTMLElement.click() does. Nested
// clicks on an element whose click is still in progress are ignored, and
// non-HTML elements have no click activation.
func (n *Node) Click() {
	if !n.IsHTML() || n.clickInProgress {
		return
	}
	if n.HasAttribute("disabled") && isFormControl(n.Tag) {
		return
	}
	n.clickInProgress = true
	defer func() { n.clickInProgress = false }()
	n.DispatchEvent(NewEvent("click"))
}

// ClickInProgress reports whether a synthesized click on n is being
// dispatched.
func (n *Node) ClickInProgress() bool {
	return n.clickInProgress
}

func isFormControl(tag string) bool {
	switch tag {
	case "button", "input", "select", "textarea", "option", "fieldset":
		return true
	}
	return false
}
