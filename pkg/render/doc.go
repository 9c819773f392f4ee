// Package render serializes live DOM trees to HTML.
//
// The server renders components into a dom tree, instruments it through
// package annotate and then writes it with this package. Instrumentation and
// hydration tokens are ordinary attributes, so the markup carries
// jsaction="vg.js1" and data-hid="h1" exactly as the client expects them.
//
// # Basic Usage
//
//	r := render.NewRenderer(render.RendererConfig{})
//	html, err := r.RenderToString(node)
//
// # Full Page Rendering
//
//	err := r.RenderPage(w, render.PageData{
//	    Body:   doc.Body(),
//	    Title:  "Shop",
//	    PageID: page.ID(),
//	})
//
// RenderPage adds the boot script that opens the page's event stream.
package render
