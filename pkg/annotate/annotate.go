// Package annotate is the seam through which components attach event
// listeners, both while rendering on the server and after upgrade.
//
// Components call EventManager.AddEventListener without knowing where they
// run. On the server a ServerPlugin claims click listeners and writes
// instrumentation instead of attaching anything, so early clicks can be
// captured and replayed by package jsaction. After upgrade a NativePlugin
// attaches the real listeners.
package annotate

import (
	"errors"
	"fmt"

	"github.com/vango-dev/replay/pkg/dom"
	"github.com/vango-dev/replay/pkg/jsaction"
)

// Manager errors.
var (
	ErrNoPlugin          = errors.New("annotate: no plugin supports event")
	ErrUnsupportedTarget = errors.New("annotate: unsupported global event target")
)

// Plugin handles listener registration for the events it supports.
type Plugin interface {
	Supports(event string) bool
	AddEventListener(el *dom.Node, event string, handler dom.Listener) func()
}

// EventManager routes listener registration to the first plugin that
// supports the event.
type EventManager struct {
	doc     *dom.Document
	plugins []Plugin
}

// NewEventManager creates a manager for doc. Plugins are consulted in the
// given order.
func NewEventManager(doc *dom.Document, plugins ...Plugin) *EventManager {
	return &EventManager{doc: doc, plugins: plugins}
}

// AddEventListener registers handler for event on el and returns the
// function that removes it.
func (m *EventManager) AddEventListener(el *dom.Node, event string, handler dom.Listener) (func(), error) {
	for _, p := range m.plugins {
		if p.Supports(event) {
			return p.AddEventListener(el, event, handler), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoPlugin, event)
}

// AddGlobalEventListener registers handler on a named global target:
// "document", "window" or "body".
func (m *EventManager) AddGlobalEventListener(target, event string, handler dom.Listener) (func(), error) {
	var el *dom.Node
	if m.doc != nil {
		switch target {
		case "document", "window":
			el = m.doc.DocumentElement()
		case "body":
			el = m.doc.Body()
		}
	}
	if el == nil {
		return nil, fmt.Errorf("%w: %q for event %q", ErrUnsupportedTarget, target, event)
	}
	return m.AddEventListener(el, event, handler)
}

// ServerPlugin instruments click targets instead of listening. Anchors get
// the action "anchor"; every other element gets "js<n>" from a counter that
// increases monotonically for the lifetime of the plugin, which is one page
// render. Each instrumented element also receives a hydration token.
type ServerPlugin struct {
	namespace string
	counter   int
	tokens    *dom.TokenGenerator
}

// NewServerPlugin creates a plugin writing actions under namespace. A nil
// tokens generator gets a fresh one.
func NewServerPlugin(namespace string, tokens *dom.TokenGenerator) *ServerPlugin {
	if namespace == "" {
		namespace = jsaction.DefaultNamespace
	}
	if tokens == nil {
		tokens = dom.NewTokenGenerator()
	}
	return &ServerPlugin{namespace: namespace, tokens: tokens}
}

// Supports reports true for click only.
func (p *ServerPlugin) Supports(event string) bool {
	return event == "click"
}

// AddEventListener writes the instrumentation attribute and hydration token
// on el. The handler is not attached. An element that is already
// instrumented keeps its action. The returned function does nothing.
func (p *ServerPlugin) AddEventListener(el *dom.Node, _ string, _ dom.Listener) func() {
	if !el.HasAttribute(jsaction.AttrName) {
		name := jsaction.AnchorAction
		if el.Tag != "a" {
			p.counter++
			name = jsaction.CounterAction(p.counter)
		}
		key := jsaction.ActionKey{Namespace: p.namespace, Name: name}
		el.SetAttribute(jsaction.AttrName, key.String())
	}
	token := p.tokens.Assign(el)
	el.SetAttribute(dom.TokenAttr, token)
	return func() {}
}

// Count returns the number of counter actions issued.
func (p *ServerPlugin) Count() int {
	return p.counter
}

// NativePlugin attaches real listeners for every event.
type NativePlugin struct{}

// Supports reports true for every event.
func (NativePlugin) Supports(string) bool { return true }

// AddEventListener attaches handler as a bubbling listener.
func (NativePlugin) AddEventListener(el *dom.Node, event string, handler dom.Listener) func() {
	return el.AddEventListener(event, handler, dom.ListenerOptions{})
}

// Decode prepares server-rendered markup for the client: hydration tokens
// are restored from their attribute and every jsaction value under
// namespace is recorded in table. Values without the reserved prefix are
// skipped. It returns the number of instrumented elements.
func Decode(root *dom.Node, table *jsaction.Table, namespace string) int {
	root.Walk(func(n *dom.Node) bool {
		if !n.IsElement() {
			return false
		}
		if tok, ok := n.GetAttribute(dom.TokenAttr); ok && n.Token == "" {
			n.Token = tok
		}
		return true
	})
	return table.Decode(root, namespace)
}
