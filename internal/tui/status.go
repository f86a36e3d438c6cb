package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/cliagent/liveview/internal/event"
	"github.com/cliagent/liveview/internal/observer"
	"github.com/cliagent/liveview/internal/theme"
	"github.com/dustin/go-humanize"
)

// statusLine renders the bottom bar: connection state, then the aggregate
// stats in the same order as the browser status bar.
func statusLine(conn observer.State, st event.Status, follow bool, width int) string {
	var connStr string
	switch conn {
	case observer.StateConnected:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	case observer.StateGivingUp:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("✗ Disconnected")
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("○ Connecting...")
	}

	parts := statusParts(st)
	text := "Ready"
	if len(parts) > 0 {
		text = strings.Join(parts, " | ")
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + text
	if !follow {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("Paused")
	}

	if width < 40 {
		width = 40
	}
	return theme.StyleStatusBar.Width(width).Render(content)
}

func statusParts(st event.Status) []string {
	var parts []string
	if st.Model != "" {
		parts = append(parts, "Model: "+st.Model)
	}
	if st.Session != "" {
		sid := st.Session
		if len(sid) > 8 {
			sid = sid[:8]
		}
		parts = append(parts, "Session: "+sid+"...")
	}
	if st.Tokens > 0 {
		parts = append(parts, "Tokens: "+humanize.Comma(int64(st.Tokens)))
	}
	if st.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %.1fs", st.Duration))
	}
	if st.Tools > 0 {
		parts = append(parts, fmt.Sprintf("Tools: %d", st.Tools))
	}
	if st.Streaming {
		parts = append(parts, "⏳ Streaming...")
	}
	return parts
}
