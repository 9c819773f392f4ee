package jsaction

import "github.com/vango-dev/replay/pkg/dom"

// Instrumentation is the typed record attached to an instrumented element.
type Instrumentation struct {
	Action ActionKey
}

// Table maps element identity to its instrumentation. It replaces repeated
// parsing of attribute strings during capture and dispatch.
type Table struct {
	records map[*dom.Node]Instrumentation
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{records: make(map[*dom.Node]Instrumentation)}
}

// Set records the instrumentation of n.
func (t *Table) Set(n *dom.Node, in Instrumentation) {
	t.records[n] = in
}

// Get returns the instrumentation of n.
func (t *Table) Get(n *dom.Node) (Instrumentation, bool) {
	if n == nil {
		return Instrumentation{}, false
	}
	in, ok := t.records[n]
	return in, ok
}

// Instrumented reports whether n carries instrumentation.
func (t *Table) Instrumented(n *dom.Node) bool {
	_, ok := t.Get(n)
	return ok
}

// Forget drops the instrumentation of n.
func (t *Table) Forget(n *dom.Node) {
	delete(t.records, n)
}

// Len returns the number of instrumented elements.
func (t *Table) Len() int {
	return len(t.records)
}

// Decode walks root and records every element whose AttrName value parses
// under namespace. Values without the reserved prefix are skipped. It
// returns the number of elements recorded.
func (t *Table) Decode(root *dom.Node, namespace string) int {
	n := 0
	root.Walk(func(el *dom.Node) bool {
		if !el.IsElement() {
			return false
		}
		value, ok := el.GetAttribute(AttrName)
		if !ok {
			return true
		}
		key, ok := ParseValue(value, namespace)
		if !ok {
			return true
		}
		t.Set(el, Instrumentation{Action: key})
		n++
		return true
	})
	return n
}
