package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/cliagent/liveview/internal/hostevent"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// escapeAndTruncate trims s, caps it by line and character count, escapes
// it, and turns newlines into <br>.
func (r *Renderer) escapeAndTruncate(s string) string {
	return strings.ReplaceAll(html.EscapeString(Truncate(s, r.cfg.MaxOutputLines, r.cfg.MaxOutputChars)), "\n", "<br>")
}

// Truncate limits s to maxLines lines and then maxChars characters, noting
// what was cut.
func Truncate(s string, maxLines, maxChars int) string {
	s = strings.TrimSpace(s)

	lines := strings.Split(s, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		s = strings.Join(lines[:maxLines], "\n") +
			fmt.Sprintf("\n... (%d more lines)", len(lines)-maxLines)
	}

	if runes := []rune(s); maxChars > 0 && len(runes) > maxChars {
		s = string(runes[:maxChars]) + "..."
	}
	return s
}

func clip(s string, n int) string {
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n])
	}
	return s
}

// FormatStats renders lifecycle stats as "[tokens=.. duration=..ms ...]",
// or "" when nothing was reported.
func FormatStats(st *hostevent.Stats) string {
	if st == nil {
		return ""
	}
	var parts []string
	switch {
	case st.TotalTokens > 0:
		parts = append(parts, fmt.Sprintf("tokens=%d", st.TotalTokens))
	case st.InputTokens > 0 || st.OutputTokens > 0:
		parts = append(parts, fmt.Sprintf("tokens=%d+%d", st.InputTokens, st.OutputTokens))
	}
	if st.DurationMs > 0 {
		parts = append(parts, fmt.Sprintf("duration=%gms", st.DurationMs))
	}
	if st.ToolCalls > 0 {
		parts = append(parts, fmt.Sprintf("tools=%d", st.ToolCalls))
	}
	if st.TotalCostUSD > 0 {
		parts = append(parts, fmt.Sprintf("cost=$%.4f", st.TotalCostUSD))
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// markdown renders assistant text. Raw HTML is passed through by goldmark
// and then stripped down to a safe subset.
type markdown struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func newMarkdown() *markdown {
	return &markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps(), gmhtml.WithUnsafe()),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

func (m *markdown) render(src string) (string, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(m.policy.Sanitize(buf.String())), nil
}
