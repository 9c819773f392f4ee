package jsaction

import (
	"strconv"
	"strings"
	"time"

	"github.com/vango-dev/replay/pkg/dom"
)

// Wire grammar constants.
const (
	// AttrName is the instrumentation attribute written by the server.
	AttrName = "jsaction"

	// DefaultNamespace is the namespace used for server-instrumented actions.
	// Attribute values carry it as the reserved prefix "vg.".
	DefaultNamespace = "vg"

	// AnchorAction is the action name given to instrumented anchors.
	AnchorAction = "anchor"

	// CounterPrefix starts the action names of non-anchor elements
	// ("js1", "js2", ...).
	CounterPrefix = "js"
)

// Prefix returns the reserved attribute prefix for namespace.
func Prefix(namespace string) string {
	return namespace + "."
}

// CounterAction returns the action name for the n-th instrumented element.
func CounterAction(n int) string {
	return CounterPrefix + strconv.Itoa(n)
}

// ActionKey is a namespace-qualified logical action, distinct from the DOM
// event type that triggers it.
type ActionKey struct {
	Namespace string
	Name      string
}

// String returns the qualified action ("vg.js3").
func (k ActionKey) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return Prefix(k.Namespace) + k.Name
}

// IsAnchor reports whether k names an instrumented anchor.
func (k ActionKey) IsAnchor() bool {
	return k.Name == AnchorAction
}

// IsCounter reports whether k is a per-page counter action ("js<n>").
func (k ActionKey) IsCounter() bool {
	rest, ok := strings.CutPrefix(k.Name, CounterPrefix)
	if !ok || rest == "" {
		return false
	}
	_, err := strconv.Atoi(rest)
	return err == nil
}

// ParseValue parses an instrumentation attribute value. The value must start
// with the reserved prefix of namespace and name a non-empty action;
// anything else is not an instrumentation of ours.
func ParseValue(value, namespace string) (ActionKey, bool) {
	name, ok := strings.CutPrefix(value, Prefix(namespace))
	if !ok || name == "" {
		return ActionKey{}, false
	}
	return ActionKey{Namespace: namespace, Name: name}, true
}

// EventInfo is one captured occurrence of a logical action. It is built once
// by the Contract and never modified afterwards.
type EventInfo struct {
	Seq        uint64     // Capture order within a contract, starting at 1
	Action     ActionKey  // Action of the instrumented element
	EventType  string     // DOM event type ("click")
	Event      *dom.Event // Underlying event
	Target     *dom.Node  // Event target
	Element    *dom.Node  // Nearest instrumented inclusive ancestor of Target
	CapturedAt time.Time
}
