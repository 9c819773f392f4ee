package render

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vango-dev/replay/pkg/dom"
)

// RendererConfig configures the HTML renderer.
type RendererConfig struct {
	// Pretty enables indented output. Development only.
	Pretty bool

	// Indent is the string used per indentation level in pretty mode.
	// Defaults to two spaces.
	Indent string
}

// Renderer writes dom trees as HTML.
type Renderer struct {
	config RendererConfig
}

// NewRenderer creates a new Renderer with the given configuration.
func NewRenderer(config RendererConfig) *Renderer {
	if config.Indent == "" {
		config.Indent = "  "
	}
	return &Renderer{config: config}
}

// RenderToString renders n and its subtree.
func (r *Renderer) RenderToString(n *dom.Node) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToWriter(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToWriter streams n and its subtree to w.
func (r *Renderer) RenderToWriter(w io.Writer, n *dom.Node) error {
	ew := &errWriter{w: w}
	r.renderNode(ew, n, 0)
	return ew.err
}

func (r *Renderer) renderNode(w *errWriter, n *dom.Node, depth int) {
	if n == nil || w.err != nil {
		return
	}
	switch n.Kind {
	case dom.KindText:
		w.writeString(escapeHTML(n.Text))
	case dom.KindElement:
		r.renderElement(w, n, depth)
	default:
		w.err = fmt.Errorf("render: unknown node kind %d", n.Kind)
	}
}

func (r *Renderer) renderElement(w *errWriter, n *dom.Node, depth int) {
	if r.config.Pretty && depth > 0 {
		r.writeIndent(w, depth)
	}
	w.writeString("<" + n.Tag)
	r.renderAttributes(w, n)
	w.writeString(">")

	if voidElements[n.Tag] {
		if r.config.Pretty {
			w.writeString("\n")
		}
		return
	}

	children := n.ChildNodes()
	block := r.config.Pretty && len(n.Children()) > 0 && !inlineElements[n.Tag]
	if block {
		w.writeString("\n")
	}
	for _, c := range children {
		if block && c.Kind == dom.KindText {
			r.writeIndent(w, depth+1)
			r.renderNode(w, c, depth+1)
			w.writeString("\n")
			continue
		}
		r.renderNode(w, c, depth+1)
	}
	if block {
		r.writeIndent(w, depth)
	}
	w.writeString("</" + n.Tag + ">")
	if r.config.Pretty {
		w.writeString("\n")
	}
}

// renderAttributes writes attributes in sorted order. A token not mirrored
// in the attribute list is written as data-hid.
func (r *Renderer) renderAttributes(w *errWriter, n *dom.Node) {
	for _, name := range n.AttributeNames() {
		value, _ := n.GetAttribute(name)
		if booleanAttrs[name] && (value == "" || value == name) {
			w.writeString(" " + name)
			continue
		}
		w.writeString(" " + name + `="` + escapeAttr(value) + `"`)
	}
	if n.Token != "" && !n.HasAttribute(dom.TokenAttr) {
		w.writeString(" " + dom.TokenAttr + `="` + escapeAttr(n.Token) + `"`)
	}
}

func (r *Renderer) writeIndent(w *errWriter, depth int) {
	for i := 0; i < depth; i++ {
		w.writeString(r.config.Indent)
	}
}

// errWriter remembers the first write error and drops later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) writeString(s string) {
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s)
}
