// Package nodepath addresses a descendant element by its position relative
// to a subtree root.
//
// A Path is the sequence of element-child indices from the root to the node.
// It is captured before a subtree is rebuilt and resolved afterwards to find
// the element that now occupies the same position. A Path stays valid only
// while the child lists along it keep their shape: inserting a sibling
// before any step silently shifts resolution to a different node. Locator
// adds the node's hydration token so such shifts are detected and, when the
// rebuilt subtree kept the token, corrected.
package nodepath

import (
	"errors"
	"strconv"
	"strings"

	"github.com/vango-dev/replay/pkg/dom"
)

// Resolution errors.
var (
	ErrNotDescendant = errors.New("nodepath: node is not inside root")
	ErrStalePath     = errors.New("nodepath: path no longer addresses the captured node")
)

// Path is a root-to-node sequence of element-child indices.
type Path []int

// String renders the path as "[1 0 2]".
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, idx := range p {
		parts[i] = strconv.Itoa(idx)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Equal reports whether two paths address the same position.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Capture walks from node up to root recording node's index among its
// parent's element children at every step, and returns the indices in
// root-to-node order. Capture(root, root) is the empty path. It reports
// false when node is not an element inside root.
func Capture(root, node *dom.Node) (Path, bool) {
	if root == nil || !node.IsElement() {
		return nil, false
	}
	var rev Path
	cur := node
	for cur != root {
		parent := cur.Parent()
		if parent == nil {
			return nil, false
		}
		rev = append(rev, cur.ElementIndex())
		cur = parent
	}
	path := make(Path, len(rev))
	for i, idx := range rev {
		path[len(rev)-1-i] = idx
	}
	return path, true
}

// Resolve starts at root and descends into the element child at each index
// of path. It reports false if an index is out of range.
func Resolve(root *dom.Node, path Path) (*dom.Node, bool) {
	if root == nil {
		return nil, false
	}
	cur := root
	for _, idx := range path {
		cur = cur.ChildAt(idx)
		if cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// Locator is a Path plus the hydration token of the node it was captured
// from. An empty Token degrades to plain positional resolution.
type Locator struct {
	Path  Path
	Token string
}

// CaptureLocator captures the path and token of node relative to root.
func CaptureLocator(root, node *dom.Node) (Locator, error) {
	p, ok := Capture(root, node)
	if !ok {
		return Locator{}, ErrNotDescendant
	}
	return Locator{Path: p, Token: node.Token}, nil
}

// Locate resolves loc against root. When the node at loc.Path carries a
// different token, the subtree is searched for the token instead, so a node
// that kept its token is found even after siblings were inserted before it.
// When the token is gone from the subtree, a positional hit without any token
// is accepted as is. ErrStalePath is returned when no candidate remains.
func Locate(root *dom.Node, loc Locator) (*dom.Node, error) {
	n, ok := Resolve(root, loc.Path)
	if loc.Token == "" {
		if !ok {
			return nil, ErrStalePath
		}
		return n, nil
	}
	if ok && n.Token == loc.Token {
		return n, nil
	}
	if found := dom.FindByToken(root, loc.Token); found != nil {
		return found, nil
	}
	if ok && n.Token == "" {
		return n, nil
	}
	return nil, ErrStalePath
}
