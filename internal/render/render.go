// Package render turns host events into the HTML fragments shown by the
// live viewer. Every category has a fixed line layout: a timestamp, a short
// session tag, an optional source badge, a bracketed label, and a body.
// Untrusted text is always escaped; assistant markdown is rendered and then
// sanitized.
package render

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cliagent/liveview/internal/hostevent"
	"github.com/cliagent/liveview/internal/theme"
)

// Config controls fragment layout.
type Config struct {
	MultiSource      bool
	MaxOutputChars   int
	MaxOutputLines   int
	ShowRawOnUnknown bool
	Markdown         bool
}

// DefaultConfig returns the standard layout limits.
func DefaultConfig() Config {
	return Config{
		MaxOutputChars:   2000,
		MaxOutputLines:   50,
		ShowRawOnUnknown: true,
		Markdown:         true,
	}
}

// FileURLResolver maps a local artifact path to a URL the document can load.
type FileURLResolver func(path string) string

// Renderer is safe for use by a single goroutine; fold ids are unique per
// Renderer.
type Renderer struct {
	cfg      Config
	resolve  FileURLResolver
	markdown *markdown
	foldID   atomic.Uint64
	now      func() time.Time
}

func New(cfg Config, resolve FileURLResolver) *Renderer {
	def := DefaultConfig()
	if cfg.MaxOutputChars <= 0 {
		cfg.MaxOutputChars = def.MaxOutputChars
	}
	if cfg.MaxOutputLines <= 0 {
		cfg.MaxOutputLines = def.MaxOutputLines
	}
	r := &Renderer{cfg: cfg, resolve: resolve, now: time.Now}
	if cfg.Markdown {
		r.markdown = newMarkdown()
	}
	return r
}

// Render returns the HTML fragment for ev. It never fails; unrecognised
// categories fall back to a raw preview line.
func (r *Renderer) Render(ev hostevent.Event) string {
	prefix := r.prefix(ev)

	switch ev.Category {
	case hostevent.CategoryLifecycle:
		return r.lifecycle(ev, prefix)
	case hostevent.CategoryMessage:
		return r.message(ev, prefix)
	case hostevent.CategoryOperation:
		return r.operation(ev, prefix)
	case hostevent.CategorySystem:
		return r.system(ev, prefix)
	default:
		return r.unknown(ev, prefix)
	}
}

func (r *Renderer) prefix(ev hostevent.Event) string {
	parts := []string{`<span class="ts">[` + r.timestamp(ev.Timestamp) + `]</span>`}

	if sid := ev.Session(); sid != "" {
		esc := html.EscapeString(sid)
		parts = append(parts, fmt.Sprintf(`<span class="ss" data-session-id="%s">[#%s]</span>`,
			esc, html.EscapeString(ShortSession(sid))))
	}

	if r.cfg.MultiSource {
		src := ev.SourceName()
		parts = append(parts, fmt.Sprintf(`<span class="src" style="color:%s">[%s]</span>`,
			theme.SourceColor(src), html.EscapeString(strings.ToUpper(src))))
	}
	return strings.Join(parts, " ")
}

func (r *Renderer) timestamp(ts hostevent.Timestamp) string {
	t := ts.Time
	if t.IsZero() {
		t = r.now()
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// ShortSession returns the last eight characters of a session id.
func ShortSession(sid string) string {
	runes := []rune(sid)
	if len(runes) > 8 {
		return string(runes[len(runes)-8:])
	}
	return sid
}

func open(ev hostevent.Event) string {
	return `<div class="e" data-session="` + html.EscapeString(ev.Session()) + `">`
}

func (r *Renderer) lifecycle(ev hostevent.Event, prefix string) string {
	var b strings.Builder
	b.WriteString(open(ev))
	b.WriteString(prefix)

	switch ev.LifecycleType {
	case "session_start":
		b.WriteString(` <span class="lb">[SESSION]</span> <span class="ss">`)
		b.WriteString(html.EscapeString(ev.Session()))
		b.WriteString(`</span>`)
		if ev.Model != "" {
			b.WriteString(" | model=" + html.EscapeString(ev.Model))
		}
	case "session_end":
		cls := "err"
		if ev.Status == hostevent.StatusSuccess {
			cls = "ok"
		}
		fmt.Fprintf(&b, ` <span class="lb">[RESULT]</span> <span class="%s">%s</span> <span class="dm">%s</span>`,
			cls, html.EscapeString(strings.ToUpper(ev.Status)), html.EscapeString(FormatStats(ev.Stats)))
	case "turn_start", "turn_end":
		fmt.Fprintf(&b, ` <span class="lb">[%s]</span> <span class="dm">%s</span>`,
			strings.ToUpper(ev.LifecycleType), html.EscapeString(FormatStats(ev.Stats)))
	default:
		fmt.Fprintf(&b, ` <span class="lb">[%s]</span>`, html.EscapeString(strings.ToUpper(ev.LifecycleType)))
	}

	b.WriteString(`</div>`)
	return b.String()
}

func (r *Renderer) message(ev hostevent.Event, prefix string) string {
	var label, cls, body string
	switch {
	case ev.ContentType == "reasoning":
		label, cls, body = "REASONING", "rsn", r.escapeAndTruncate(ev.Text)
	case ev.Role == "user":
		label, cls, body = "USER", "usr", r.escapeAndTruncate(ev.Text)
	default:
		// Assistant output is shown in full.
		label, cls = "ASSISTANT", "ast"
		if r.markdown != nil {
			if out, err := r.markdown.render(ev.Text); err == nil {
				return fmt.Sprintf(`%s%s <span class="lb">[%s]</span> <div class="%s">%s</div></div>`,
					open(ev), prefix, label, cls, out)
			}
		}
		body = strings.ReplaceAll(html.EscapeString(ev.Text), "\n", "<br>")
	}
	return fmt.Sprintf(`%s%s <span class="lb">[%s]</span> <span class="%s">%s</span></div>`,
		open(ev), prefix, label, cls, body)
}

// OperationClass returns the CSS class for an operation type.
func OperationClass(opType string) string {
	switch opType {
	case "command":
		return "cmd"
	case "file", "mcp", "search":
		return opType
	default:
		return "tl"
	}
}

func (r *Renderer) operation(ev hostevent.Event, prefix string) string {
	opType := ev.OperationType
	label := "TOOL"
	if opType != "" {
		label = strings.ToUpper(opType)
	}

	var b strings.Builder
	b.WriteString(open(ev))
	fmt.Fprintf(&b, `%s <span class="lb">[%s]</span> `, prefix, html.EscapeString(label))
	switch ev.Status {
	case hostevent.StatusSuccess, hostevent.StatusFailed, hostevent.StatusRunning:
		fmt.Fprintf(&b, `<span class="%s">%s</span>`, theme.StatusClass(ev.Status), theme.StatusGlyph(ev.Status))
	}
	fmt.Fprintf(&b, ` <span class="%s">%s</span>`, OperationClass(opType), html.EscapeString(ev.Name))

	if ev.Input != "" || ev.Output != "" {
		var parts []string
		if ev.Input != "" {
			parts = append(parts, `<span class="dm">Input:</span> `+r.escapeAndTruncate(string(ev.Input)))
		}
		if ev.Output != "" {
			parts = append(parts, `<span class="dm">Output:</span> `+r.escapeAndTruncate(string(ev.Output)))
		}
		if grid := r.artifacts(ev.Metadata.Artifacts); grid != "" {
			parts = append(parts, grid)
		}

		id := fmt.Sprintf("f%d", r.foldID.Add(1)-1)
		fmt.Fprintf(&b, ` <span class="fold" onclick="toggle('%s', this)">▶</span><div class="fold-content" id="%s">%s</div>`,
			id, id, strings.Join(parts, "<br>"))
	}

	b.WriteString(`</div>`)
	return b.String()
}

func (r *Renderer) artifacts(paths []string) string {
	if len(paths) == 0 || r.resolve == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<div class="img-grid">`)
	for _, p := range paths {
		u := html.EscapeString(r.resolve(p))
		fmt.Fprintf(&b, `<a href="%s" target="_blank"><img class="img-thumb" src="%s"></a>`, u, u)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func (r *Renderer) system(ev hostevent.Event, prefix string) string {
	if ev.IsFallback {
		preview := ""
		if r.cfg.ShowRawOnUnknown {
			preview = ` <span class="dm">` + html.EscapeString(clip(string(ev.Raw), 100)) + `...</span>`
		}
		return open(ev) + prefix + ` <span class="dm">[UNKNOWN]</span>` + preview + `</div>`
	}

	severity := ev.Severity
	if severity == "" {
		severity = "info"
	}
	cls := "dm"
	switch severity {
	case "error":
		cls = "err"
	case "warning":
		cls = "wrn"
	}
	return fmt.Sprintf(`%s%s <span class="%s">[%s]</span> <span class="%s">%s</span></div>`,
		open(ev), prefix, cls, html.EscapeString(strings.ToUpper(severity)), cls, r.escapeAndTruncate(ev.Message))
}

func (r *Renderer) unknown(ev hostevent.Event, prefix string) string {
	raw, err := json.Marshal(ev)
	if err != nil {
		raw = []byte(fmt.Sprintf("%+v", ev))
	}
	return `<div class="e">` + prefix + ` <span class="dm">[?]</span> <span class="dm">` +
		html.EscapeString(clip(string(raw), 100)) + `...</span></div>`
}
