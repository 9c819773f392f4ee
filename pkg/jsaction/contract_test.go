package jsaction

import (
	"reflect"
	"testing"

	"github.com/vango-dev/replay/pkg/dom"
)

func instrument(n *dom.Node, name string) *dom.Node {
	n.SetAttribute(AttrName, Prefix(DefaultNamespace)+name)
	return n
}

func TestContractFindsNearestInstrumentedAncestor(t *testing.T) {
	label := dom.Span("Add")
	btn := instrument(dom.Button(label), "js1")
	outer := instrument(dom.Div(btn), "js2")
	root := dom.Div(outer)

	table := NewTable()
	table.Decode(root, DefaultNamespace)

	c := NewContract(table)
	c.AddContainer(root)
	c.AddEvent("click")

	var got []EventInfo
	c.DispatchTo(func(info EventInfo) { got = append(got, info) })

	label.Click()

	if len(got) != 1 {
		t.Fatalf("captured %d events, want 1", len(got))
	}
	if got[0].Action != key("js1") {
		t.Errorf("Action = %v, want vg.js1", got[0].Action)
	}
	if got[0].Target != label || got[0].Element != btn {
		t.Error("Target should be the clicked node and Element the instrumented button")
	}
	if got[0].EventType != "click" || got[0].Seq != 1 {
		t.Errorf("EventType = %q, Seq = %d", got[0].EventType, got[0].Seq)
	}
}

func TestContractIgnoresUninstrumentedAndForeignEvents(t *testing.T) {
	plain := dom.Button()
	foreign := dom.Button(dom.Attr{Key: AttrName, Value: "click:legacy"})
	root := dom.Div(plain, foreign)

	table := NewTable()
	table.Decode(root, DefaultNamespace)
	c := NewContract(table)
	c.AddContainer(root)
	c.AddEvent("click")

	n := 0
	c.DispatchTo(func(EventInfo) { n++ })

	plain.Click()
	foreign.Click()
	root.DispatchEvent(dom.NewEvent("input"))

	if n != 0 {
		t.Errorf("captured %d events, want 0", n)
	}
}

func TestContractBuffersUntilSink(t *testing.T) {
	a := instrument(dom.Button(), "js1")
	b := instrument(dom.Button(), "js2")
	root := dom.Div(a, b)
	table := NewTable()
	table.Decode(root, DefaultNamespace)

	c := NewContract(table)
	c.AddContainer(root)
	c.AddEvent("click")

	a.Click()
	b.Click()
	a.Click()
	if c.Buffered() != 3 {
		t.Fatalf("Buffered() = %d, want 3", c.Buffered())
	}

	var got []string
	c.DispatchTo(func(info EventInfo) { got = append(got, info.Action.Name) })
	if !reflect.DeepEqual(got, []string{"js1", "js2", "js1"}) {
		t.Errorf("flushed = %v", got)
	}
	if c.Buffered() != 0 {
		t.Errorf("Buffered() = %d after flush", c.Buffered())
	}
}

func TestContractBufferHook(t *testing.T) {
	btn := instrument(dom.Button(), "js1")
	root := dom.Div(btn)
	table := NewTable()
	table.Decode(root, DefaultNamespace)

	var buffered []uint64
	c := NewContract(table, WithBufferHook(func(info EventInfo) {
		buffered = append(buffered, info.Seq)
	}))
	c.AddContainer(root)
	c.AddEvent("click")

	btn.Click()
	c.DispatchTo(func(EventInfo) {})
	btn.Click()

	if !reflect.DeepEqual(buffered, []uint64{1}) {
		t.Errorf("buffered = %v, want only the event captured before the sink", buffered)
	}
}

func TestContractEventsAddedAfterContainer(t *testing.T) {
	btn := instrument(dom.Button(), "js1")
	root := dom.Div(btn)
	table := NewTable()
	table.Decode(root, DefaultNamespace)

	c := NewContract(table)
	c.AddEvent("click")
	c.AddEvent("click")
	c.AddContainer(root)
	c.AddEvent("focus")

	if got := c.EventTypes(); !reflect.DeepEqual(got, []string{"click", "focus"}) {
		t.Errorf("EventTypes() = %v", got)
	}

	var types []string
	c.DispatchTo(func(info EventInfo) { types = append(types, info.EventType) })
	btn.Click()
	btn.DispatchEvent(&dom.Event{Type: "focus"})

	if !reflect.DeepEqual(types, []string{"click", "focus"}) {
		t.Errorf("captured types = %v", types)
	}
}

func TestContractNestedContainers(t *testing.T) {
	btn := instrument(dom.Button(), "js1")
	inner := dom.Div(btn)
	outer := dom.Div(inner)
	table := NewTable()
	table.Decode(outer, DefaultNamespace)

	c := NewContract(table)
	c.AddEvent("click")
	c.AddContainer(inner)
	c.AddContainer(outer)
	c.AddContainer(inner)

	n := 0
	c.DispatchTo(func(EventInfo) { n++ })
	btn.Click()

	if n != 1 {
		t.Errorf("captured %d events, want 1 with nested containers", n)
	}
	if inner.HasEventListeners("click") {
		t.Error("inner container listener should be folded into outer")
	}
}

func TestContractDispose(t *testing.T) {
	btn := instrument(dom.Button(), "js1")
	root := dom.Div(btn)
	table := NewTable()
	table.Decode(root, DefaultNamespace)

	c := NewContract(table)
	c.AddContainer(root)
	c.AddEvent("click")
	n := 0
	c.DispatchTo(func(EventInfo) { n++ })

	c.Dispose()
	btn.Click()
	c.AddContainer(root)
	btn.Click()

	if n != 0 {
		t.Errorf("captured %d events after Dispose", n)
	}
	if root.HasEventListeners("click") {
		t.Error("Dispose should remove container listeners")
	}
}
