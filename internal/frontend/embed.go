// Package frontend renders the single HTML document served at the viewer's
// root path. The document's script is the browser-side observer: it opens
// the /sse stream, dispatches messages by type, and reconnects with linear
// backoff.
package frontend

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/cliagent/liveview/internal/theme"
)

//go:embed static/index.html
var staticFiles embed.FS

var page = template.Must(template.ParseFS(staticFiles, "static/index.html"))

// DefaultTitle is used when Options.Title is empty.
const DefaultTitle = "CLI Agent Live Output"

// Options customize the rendered document.
type Options struct {
	Title       string
	MultiSource bool
}

// Render executes the document template. The result is fixed for the life
// of a server.
func Render(opts Options) ([]byte, error) {
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}

	data := struct {
		Title        string
		MultiSource  bool
		Colors       map[string]string
		SourceColors map[string]string
	}{
		Title:        opts.Title,
		MultiSource:  opts.MultiSource,
		Colors:       theme.Palette,
		SourceColors: theme.SourceColors(),
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}
	return buf.Bytes(), nil
}
