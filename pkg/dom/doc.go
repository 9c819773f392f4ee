// Package dom provides the live element tree a page is served from.
//
// Unlike a virtual tree that is rebuilt and diffed, a dom tree is mutated in
// place: nodes keep their identity across structural changes, know their
// parent, and carry event listeners. The server holds one tree per page
// load as the mirror of what the browser shows, and events reported by the
// client are dispatched through it with the same capture, target and bubble
// phases a browser uses.
//
// # Core Types
//
// Node is either an element or a text node. Element children are exposed
// separately from all child nodes because positional addressing (see package
// nodepath) only counts elements, exactly like Element.children in a
// browser.
//
// Document owns the root <html> element and records navigations performed
// by the default action of anchor clicks.
//
// # Building Trees
//
//	root := dom.Div(dom.Class("card"),
//	    dom.H1("Title"),
//	    dom.Button(dom.ID("buy"), "Buy"),
//	)
//
// # Events
//
// AddEventListener registers a listener and returns a function that removes
// it. DispatchEvent runs the capture, target and bubble phases and then the
// default action. Click synthesizes an untrusted click the way
// HTMLElement.click() does, including the "click in progress" guard that
// makes a nested Click on the same element a no-op.
//
// # Hydration Tokens
//
// TokenGenerator hands out stable per-node tokens ("h1", "h2", ...) at
// server render time. They survive into the client markup as data-hid and
// let a node be found again after its subtree has been rebuilt.
package dom
