package jsaction

import "github.com/vango-dev/replay/pkg/dom"

// ClickInterceptor returns the global click handler installed by Runtime.
//
// It walks from the click target towards container. The first anchor
// reached ends the walk with the click untouched, so links keep navigating
// before hydration. The first instrumented non-anchor element reached has
// its click default prevented, so a native behaviour such as form
// submission cannot run ahead of the replayed handler.
func ClickInterceptor(table *Table, container *dom.Node) GlobalHandler {
	return func(e *dom.Event) bool {
		for cur := e.Target; cur != nil; cur = cur.Parent() {
			if cur.Tag == "a" {
				return true
			}
			if table.Instrumented(cur) {
				e.PreventDefault()
				return false
			}
			if cur == container {
				break
			}
		}
		return true
	}
}
