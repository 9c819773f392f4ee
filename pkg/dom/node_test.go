package dom

import "testing"

func TestChildrenSkipsText(t *testing.T) {
	n := Div("lead", Span("a"), "middle", Span("b"))

	if got := len(n.ChildNodes()); got != 4 {
		t.Fatalf("len(ChildNodes()) = %d, want 4", got)
	}
	kids := n.Children()
	if len(kids) != 2 {
		t.Fatalf("len(Children()) = %d, want 2", len(kids))
	}
	if kids[1].TextContent() != "b" {
		t.Errorf("Children()[1] text = %q, want b", kids[1].TextContent())
	}
	if n.ChildAt(1) != kids[1] {
		t.Error("ChildAt(1) should match Children()[1]")
	}
	if n.ChildAt(2) != nil {
		t.Error("ChildAt out of range should be nil")
	}
	if kids[1].ElementIndex() != 1 {
		t.Errorf("ElementIndex() = %d, want 1", kids[1].ElementIndex())
	}
}

func TestInsertBefore(t *testing.T) {
	a, b, c := Span("a"), Span("b"), Span("c")
	parent := Div(a, c)

	if err := parent.InsertBefore(b, c); err != nil {
		t.Fatalf("InsertBefore: %v", err)
	}
	if got := parent.TextContent(); got != "abc" {
		t.Errorf("TextContent() = %q, want abc", got)
	}

	t.Run("moves between parents", func(t *testing.T) {
		other := Div()
		if err := other.AppendChild(a); err != nil {
			t.Fatal(err)
		}
		if a.Parent() != other {
			t.Error("a should be reparented")
		}
		if got := parent.TextContent(); got != "bc" {
			t.Errorf("old parent TextContent() = %q, want bc", got)
		}
	})

	t.Run("rejects cycles", func(t *testing.T) {
		inner := Div()
		outer := Div(inner)
		if err := inner.AppendChild(outer); err != ErrHierarchy {
			t.Errorf("err = %v, want ErrHierarchy", err)
		}
	})

	t.Run("rejects foreign ref", func(t *testing.T) {
		if err := parent.InsertBefore(Span(), Span()); err != ErrNotChild {
			t.Errorf("err = %v, want ErrNotChild", err)
		}
	})
}

func TestReplaceChildrenDetachesOld(t *testing.T) {
	old := Span("old")
	n := Div(old)
	n.ReplaceChildren(Span("new"))

	if old.Parent() != nil {
		t.Error("replaced child should be detached")
	}
	if n.TextContent() != "new" {
		t.Errorf("TextContent() = %q, want new", n.TextContent())
	}
}

func TestIsConnected(t *testing.T) {
	doc := NewDocument()
	btn := Button("go")
	if btn.IsConnected() {
		t.Error("detached node should not be connected")
	}
	_ = doc.Body().AppendChild(Div(btn))
	if !btn.IsConnected() {
		t.Error("node inside body should be connected")
	}
	if btn.OwnerDocument() != doc {
		t.Error("OwnerDocument mismatch")
	}
	btn.Parent().Remove()
	if btn.IsConnected() {
		t.Error("node in removed subtree should not be connected")
	}
}

func TestSvgNamespace(t *testing.T) {
	icon := El("path")
	svg := Svg(icon)
	if svg.Namespace != NamespaceSVG || icon.Namespace != NamespaceSVG {
		t.Error("svg subtree should use the SVG namespace")
	}
	if icon.IsHTML() {
		t.Error("svg child should not be HTML")
	}
}

func TestQueryAllDocumentOrder(t *testing.T) {
	root := Div(
		Span(Data("x", "1")),
		Div(Span(Data("x", "2"))),
		Span(Data("x", "3")),
	)
	root.SetAttribute("data-x", "root")

	got := root.QueryAll(func(n *Node) bool { return n.HasAttribute("data-x") })
	if len(got) != 3 {
		t.Fatalf("QueryAll returned %d nodes, want 3 (root excluded)", len(got))
	}
	for i, want := range []string{"1", "2", "3"} {
		if v, _ := got[i].GetAttribute("data-x"); v != want {
			t.Errorf("got[%d] = %q, want %q", i, v, want)
		}
	}
}

func TestClosestStops(t *testing.T) {
	leaf := Span()
	mid := Div(leaf)
	top := Section(mid)

	isSection := func(n *Node) bool { return n.Tag == "section" }
	if got := leaf.Closest(nil, isSection); got != top {
		t.Error("Closest without stop should find section")
	}
	if got := leaf.Closest(mid, isSection); got != nil {
		t.Errorf("Closest should stop at mid, got %v", got.Tag)
	}
}

func TestTokens(t *testing.T) {
	gen := NewTokenGenerator()
	a, b := Button(), Button()
	root := Div(a, Div(b))

	if gen.Assign(a) != "h1" || gen.Assign(b) != "h2" {
		t.Fatal("tokens should be sequential")
	}
	if gen.Assign(a) != "h1" {
		t.Error("Assign should keep an existing token")
	}
	if FindByToken(root, "h2") != b {
		t.Error("FindByToken(h2) should return b")
	}
	if FindByToken(root, "h9") != nil {
		t.Error("FindByToken for unknown token should be nil")
	}
	if got := len(CollectTokens(root)); got != 2 {
		t.Errorf("CollectTokens() = %d entries, want 2", got)
	}
	gen.Reset()
	if gen.Current() != 0 {
		t.Errorf("Current() after Reset = %d, want 0", gen.Current())
	}
}
