package jsaction

import (
	"testing"

	"github.com/vango-dev/replay/pkg/dom"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		value  string
		want   ActionKey
		wantOK bool
	}{
		{"vg.js3", ActionKey{"vg", "js3"}, true},
		{"vg.anchor", ActionKey{"vg", "anchor"}, true},
		{"vg.", ActionKey{}, false},
		{"js3", ActionKey{}, false},
		{"other.js3", ActionKey{}, false},
		{"vgjs3", ActionKey{}, false},
		{"", ActionKey{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, ok := ParseValue(tt.value, DefaultNamespace)
			if ok != tt.wantOK {
				t.Fatalf("ParseValue(%q) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseValue(%q) = %+v, want %+v", tt.value, got, tt.want)
			}
		})
	}
}

func TestActionKeyKinds(t *testing.T) {
	tests := []struct {
		key     ActionKey
		str     string
		anchor  bool
		counter bool
	}{
		{ActionKey{"vg", "anchor"}, "vg.anchor", true, false},
		{ActionKey{"vg", CounterAction(12)}, "vg.js12", false, true},
		{ActionKey{"vg", "js"}, "vg.js", false, false},
		{ActionKey{"vg", "jsx"}, "vg.jsx", false, false},
		{ActionKey{"", "plain"}, "plain", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if got := tt.key.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
			if got := tt.key.IsAnchor(); got != tt.anchor {
				t.Errorf("IsAnchor() = %v, want %v", got, tt.anchor)
			}
			if got := tt.key.IsCounter(); got != tt.counter {
				t.Errorf("IsCounter() = %v, want %v", got, tt.counter)
			}
		})
	}
}

func TestTableDecode(t *testing.T) {
	btn := dom.Button(dom.Attr{Key: AttrName, Value: "vg.js1"})
	link := dom.A(dom.Href("/x"), dom.Attr{Key: AttrName, Value: "vg.anchor"})
	foreign := dom.Button(dom.Attr{Key: AttrName, Value: "click:doSomething"})
	plain := dom.Span()
	root := dom.Div(btn, dom.P(link), foreign, plain)

	table := NewTable()
	if n := table.Decode(root, DefaultNamespace); n != 2 {
		t.Fatalf("Decode() = %d, want 2", n)
	}

	if in, ok := table.Get(btn); !ok || in.Action != (ActionKey{"vg", "js1"}) {
		t.Errorf("button instrumentation = %+v, %v", in, ok)
	}
	if in, ok := table.Get(link); !ok || !in.Action.IsAnchor() {
		t.Errorf("anchor instrumentation = %+v, %v", in, ok)
	}
	if table.Instrumented(foreign) {
		t.Error("value without the reserved prefix should not be recorded")
	}
	if table.Instrumented(plain) || table.Instrumented(nil) {
		t.Error("uninstrumented nodes should not be recorded")
	}

	table.Forget(btn)
	if table.Instrumented(btn) || table.Len() != 1 {
		t.Errorf("Forget did not remove the record, Len() = %d", table.Len())
	}
}
