package dom

// Document is the top of a live tree. Its root is the <html> element.
type Document struct {
	root        *Node
	navigations []string
	onNavigate  func(href string)
}

// NewDocument creates a document with an empty <html><head/><body/></html>.
func NewDocument() *Document {
	d := &Document{}
	root := NewElement("html")
	root.doc = d
	_ = root.AppendChild(NewElement("head"))
	_ = root.AppendChild(NewElement("body"))
	d.root = root
	return d
}

// DocumentElement returns the <html> element.
func (d *Document) DocumentElement() *Node {
	return d.root
}

// Head returns the <head> element.
func (d *Document) Head() *Node {
	return d.firstChildTag("head")
}

// Body returns the <body> element.
func (d *Document) Body() *Node {
	return d.firstChildTag("body")
}

func (d *Document) firstChildTag(tag string) *Node {
	for _, c := range d.root.Children() {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// OnNavigate installs a callback invoked whenever an anchor's default action
// navigates the document.
func (d *Document) OnNavigate(fn func(href string)) {
	d.onNavigate = fn
}

// Navigations returns the hrefs navigated to so far, oldest first.
func (d *Document) Navigations() []string {
	out := make([]string, len(d.navigations))
	copy(out, d.navigations)
	return out
}

func (d *Document) navigate(href string) {
	d.navigations = append(d.navigations, href)
	if d.onNavigate != nil {
		d.onNavigate(href)
	}
}
