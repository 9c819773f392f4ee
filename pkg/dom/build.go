package dom

import "fmt"

// Attr represents a single attribute.
type Attr struct {
	Key   string
	Value string
}

// IsEmpty returns true if this is an empty attribute.
func (a Attr) IsEmpty() bool {
	return a.Key == ""
}

// El creates an element with the given tag and arguments.
// Arguments can be: nil, Attr, []Attr, *Node, []*Node, string (text).
func El(tag string, args ...any) *Node {
	n := NewElement(tag)
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
			continue
		case Attr:
			if !v.IsEmpty() {
				n.SetAttribute(v.Key, v.Value)
			}
		case []Attr:
			for _, a := range v {
				if !a.IsEmpty() {
					n.SetAttribute(a.Key, a.Value)
				}
			}
		case *Node:
			if v != nil {
				_ = n.AppendChild(v)
			}
		case []*Node:
			for _, c := range v {
				if c != nil {
					_ = n.AppendChild(c)
				}
			}
		case string:
			_ = n.AppendChild(NewText(v))
		default:
			panic(fmt.Sprintf("dom: unsupported argument %T for <%s>", arg, tag))
		}
	}
	return n
}

// Text creates a text node.
func Text(content string) *Node {
	return NewText(content)
}

// Textf creates a formatted text node.
func Textf(format string, args ...any) *Node {
	return NewText(fmt.Sprintf(format, args...))
}

func Div(args ...any) *Node     { return El("div", args...) }
func Span(args ...any) *Node    { return El("span", args...) }
func P(args ...any) *Node       { return El("p", args...) }
func H1(args ...any) *Node      { return El("h1", args...) }
func Section(args ...any) *Node { return El("section", args...) }
func Button(args ...any) *Node  { return El("button", args...) }
func A(args ...any) *Node       { return El("a", args...) }
func Svg(args ...any) *Node     { return El("svg", args...) }

// ID sets the id attribute.
func ID(id string) Attr { return Attr{Key: "id", Value: id} }

// Class sets the class attribute.
func Class(class string) Attr { return Attr{Key: "class", Value: class} }

// Href sets the href attribute.
func Href(href string) Attr { return Attr{Key: "href", Value: href} }

// Data creates a data-* attribute.
// Example: Data("id", "123") → data-id="123"
func Data(key, value string) Attr { return Attr{Key: "data-" + key, Value: value} }

// Disabled sets the disabled attribute.
func Disabled() Attr { return Attr{Key: "disabled", Value: ""} }
