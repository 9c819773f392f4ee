package render

import (
	"io"

	"github.com/vango-dev/replay/pkg/dom"
)

// PageData contains everything needed to render a complete HTML document.
type PageData struct {
	// Body is rendered as the document body. Its own attributes are kept.
	Body *dom.Node

	// Title is the page title.
	Title string

	// Lang is the html lang attribute. Defaults to "en".
	Lang string

	// PageID identifies the server-side page for the event stream.
	PageID string

	// StreamPath is the websocket path the client connects to, for example
	// "/ws/<page id>". Omitted when empty.
	StreamPath string

	// ClientScript is the path of the client bootstrap script. Omitted when
	// empty.
	ClientScript string

	// StyleSheets contains paths to external stylesheets.
	StyleSheets []string
}

// RenderPage renders a complete HTML document.
func (r *Renderer) RenderPage(w io.Writer, page PageData) error {
	lang := page.Lang
	if lang == "" {
		lang = "en"
	}

	ew := &errWriter{w: w}
	ew.writeString("<!DOCTYPE html>\n")
	ew.writeString(`<html lang="` + escapeAttr(lang) + `">` + "\n")

	ew.writeString("<head>\n")
	ew.writeString(`<meta charset="utf-8">` + "\n")
	if page.Title != "" {
		ew.writeString("<title>" + escapeHTML(page.Title) + "</title>\n")
	}
	if page.PageID != "" {
		ew.writeString(`<meta name="replay-page" content="` + escapeAttr(page.PageID) + `">` + "\n")
	}
	if page.StreamPath != "" {
		ew.writeString(`<meta name="replay-stream" content="` + escapeAttr(page.StreamPath) + `">` + "\n")
	}
	for _, href := range page.StyleSheets {
		ew.writeString(`<link rel="stylesheet" href="` + escapeAttr(href) + `">` + "\n")
	}
	ew.writeString("</head>\n")

	switch {
	case page.Body == nil:
		ew.writeString("<body></body>")
	case page.Body.Tag == "body":
		r.renderNode(ew, page.Body, 0)
	default:
		ew.writeString("<body>")
		r.renderNode(ew, page.Body, 1)
		ew.writeString("</body>")
	}
	ew.writeString("\n")

	if page.ClientScript != "" {
		ew.writeString(`<script src="` + escapeAttr(page.ClientScript) + `" defer></script>` + "\n")
	}
	ew.writeString("</html>\n")
	return ew.err
}
