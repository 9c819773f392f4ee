package dom

import (
	"errors"
	"sort"
	"strings"
)

// Kind is the node type discriminator.
type Kind uint8

const (
	KindElement Kind = iota // <div>, <button>, etc.
	KindText                // Plain text node
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindElement:
		return "Element"
	case KindText:
		return "Text"
	default:
		return "Unknown"
	}
}

// Namespace identifies the markup language an element belongs to.
type Namespace uint8

const (
	NamespaceHTML Namespace = iota
	NamespaceSVG
)

// Tree mutation errors.
var (
	ErrNotChild     = errors.New("dom: node is not a child of this node")
	ErrHierarchy    = errors.New("dom: node cannot be inserted here")
	ErrNotAnElement = errors.New("dom: operation requires an element")
	ErrNilNode      = errors.New("dom: nil node")
)

// Node is a node of the live tree.
type Node struct {
	Kind      Kind
	Tag       string    // Lower-case tag name for elements
	Namespace Namespace // HTML unless created inside <svg>
	Text      string    // For KindText
	Token     string    // Hydration token assigned at server render time

	attrs     map[string]string
	parent    *Node
	nodes     []*Node // All child nodes, elements and text
	doc       *Document
	listeners []*listener
	nextID    int

	clickInProgress bool
}

// NewElement creates a detached element.
func NewElement(tag string) *Node {
	tag = strings.ToLower(tag)
	n := &Node{Kind: KindElement, Tag: tag}
	if tag == "svg" {
		n.Namespace = NamespaceSVG
	}
	return n
}

// NewText creates a detached text node.
func NewText(text string) *Node {
	return &Node{Kind: KindText, Text: text}
}

// IsElement reports whether n is an element.
func (n *Node) IsElement() bool {
	return n != nil && n.Kind == KindElement
}

// IsHTML reports whether n is an HTML element. Only HTML elements have a
// click() activation in browsers.
func (n *Node) IsHTML() bool {
	return n.IsElement() && n.Namespace == NamespaceHTML
}

// Parent returns the parent node, or nil for a detached or root node.
func (n *Node) Parent() *Node {
	if n == nil {
		return nil
	}
	return n.parent
}

// ChildNodes returns all child nodes. The slice must not be modified.
func (n *Node) ChildNodes() []*Node {
	return n.nodes
}

// Children returns the element children in order, skipping text nodes.
func (n *Node) Children() []*Node {
	if n == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.nodes))
	for _, c := range n.nodes {
		if c.Kind == KindElement {
			out = append(out, c)
		}
	}
	return out
}

// ChildAt returns the i-th element child, or nil when out of range.
func (n *Node) ChildAt(i int) *Node {
	if n == nil || i < 0 {
		return nil
	}
	for _, c := range n.nodes {
		if c.Kind != KindElement {
			continue
		}
		if i == 0 {
			return c
		}
		i--
	}
	return nil
}

// ElementIndex returns the index of n among its parent's element children,
// or -1 if n has no parent.
func (n *Node) ElementIndex() int {
	if n == nil || n.parent == nil {
		return -1
	}
	idx := 0
	for _, c := range n.parent.nodes {
		if c == n {
			return idx
		}
		if c.Kind == KindElement {
			idx++
		}
	}
	return -1
}

// Contains reports whether other is n or one of its descendants.
func (n *Node) Contains(other *Node) bool {
	for cur := other; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}
	return false
}

// OwnerDocument returns the document n is connected to, or nil.
func (n *Node) OwnerDocument() *Document {
	top := n
	for top != nil && top.parent != nil {
		top = top.parent
	}
	if top == nil {
		return nil
	}
	return top.doc
}

// IsConnected reports whether n is attached to a document.
func (n *Node) IsConnected() bool {
	return n.OwnerDocument() != nil
}

// Attributes

// SetAttribute sets an attribute on an element.
func (n *Node) SetAttribute(name, value string) {
	if n.Kind != KindElement {
		return
	}
	if n.attrs == nil {
		n.attrs = make(map[string]string)
	}
	n.attrs[strings.ToLower(name)] = value
}

// GetAttribute returns an attribute value and whether it is present.
func (n *Node) GetAttribute(name string) (string, bool) {
	if n == nil || n.attrs == nil {
		return "", false
	}
	v, ok := n.attrs[strings.ToLower(name)]
	return v, ok
}

// HasAttribute reports whether the attribute is present.
func (n *Node) HasAttribute(name string) bool {
	_, ok := n.GetAttribute(name)
	return ok
}

// RemoveAttribute removes an attribute.
func (n *Node) RemoveAttribute(name string) {
	if n.attrs != nil {
		delete(n.attrs, strings.ToLower(name))
	}
}

// AttributeNames returns attribute names sorted for deterministic output.
func (n *Node) AttributeNames() []string {
	names := make([]string, 0, len(n.attrs))
	for k := range n.attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// TextContent returns the concatenated text of n and its descendants.
func (n *Node) TextContent() string {
	if n == nil {
		return ""
	}
	if n.Kind == KindText {
		return n.Text
	}
	var b strings.Builder
	for _, c := range n.nodes {
		b.WriteString(c.TextContent())
	}
	return b.String()
}

// SetTextContent replaces all children with a single text node.
func (n *Node) SetTextContent(text string) {
	if n.Kind == KindText {
		n.Text = text
		return
	}
	n.ReplaceChildren(NewText(text))
}

// Mutation

// AppendChild appends child to n, detaching it from its old parent first.
func (n *Node) AppendChild(child *Node) error {
	return n.InsertBefore(child, nil)
}

// InsertBefore inserts child before ref. A nil ref appends.
func (n *Node) InsertBefore(child, ref *Node) error {
	if child == nil {
		return ErrNilNode
	}
	if n.Kind != KindElement {
		return ErrNotAnElement
	}
	if child.Contains(n) {
		return ErrHierarchy
	}
	if ref != nil && ref.parent != n {
		return ErrNotChild
	}
	if child == ref {
		return nil
	}
	child.detach()

	if ref == nil {
		n.nodes = append(n.nodes, child)
	} else {
		idx := n.indexOf(ref)
		n.nodes = append(n.nodes, nil)
		copy(n.nodes[idx+1:], n.nodes[idx:])
		n.nodes[idx] = child
	}
	child.parent = n
	if n.Namespace == NamespaceSVG {
		child.setNamespace(NamespaceSVG)
	}
	return nil
}

// RemoveChild removes child from n.
func (n *Node) RemoveChild(child *Node) error {
	if child == nil || child.parent != n {
		return ErrNotChild
	}
	child.detach()
	return nil
}

// Remove detaches n from its parent. It is a no-op for detached nodes.
func (n *Node) Remove() {
	n.detach()
}

// ReplaceChildren removes every child node and appends the given ones.
func (n *Node) ReplaceChildren(children ...*Node) {
	for _, c := range n.nodes {
		c.parent = nil
	}
	n.nodes = nil
	for _, c := range children {
		if c != nil {
			_ = n.AppendChild(c)
		}
	}
}

func (n *Node) detach() {
	p := n.parent
	if p == nil {
		return
	}
	idx := p.indexOf(n)
	if idx >= 0 {
		p.nodes = append(p.nodes[:idx], p.nodes[idx+1:]...)
	}
	n.parent = nil
}

func (n *Node) indexOf(child *Node) int {
	for i, c := range n.nodes {
		if c == child {
			return i
		}
	}
	return -1
}

func (n *Node) setNamespace(ns Namespace) {
	if n.Kind != KindElement {
		return
	}
	n.Namespace = ns
	for _, c := range n.nodes {
		c.setNamespace(ns)
	}
}

// Traversal

// Walk visits n and its descendants in document order. Returning false from
// fn skips the node's subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range append([]*Node(nil), n.nodes...) {
		c.Walk(fn)
	}
}

// QueryAll returns the element descendants of n (excluding n) matching pred,
// in document order.
func (n *Node) QueryAll(pred func(*Node) bool) []*Node {
	var out []*Node
	for _, c := range n.nodes {
		c.Walk(func(d *Node) bool {
			if d.Kind == KindElement && pred(d) {
				out = append(out, d)
			}
			return true
		})
	}
	return out
}

// Closest returns the nearest inclusive ancestor of n matching pred, stopping
// after stop has been examined. A nil stop walks to the top of the tree.
func (n *Node) Closest(stop *Node, pred func(*Node) bool) *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.Kind == KindElement && pred(cur) {
			return cur
		}
		if cur == stop {
			break
		}
	}
	return nil
}
