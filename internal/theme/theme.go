// Package theme holds the live viewer's dark palette. Colors are kept as
// hex strings so the HTML document and the fragment renderer can embed them
// directly; the terminal viewer wraps the same values in Lip Gloss colors.
// It is a leaf package with no internal imports to avoid import cycles.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette is the base color scheme.
var Palette = map[string]string{
	"bg":           "#1E1E1E",
	"bg_secondary": "#252526",
	"border":       "#3C3C3C",
	"hover":        "#2A2A2A",
	"selection":    "#264F78",

	"fg":       "#D4D4D4",
	"fg_dim":   "#5A5A5A",
	"fg_muted": "#6A6A6A",

	"timestamp": "#5A5A5A",
	"label":     "#569CD6",
	"session":   "#4EC9B0",

	"user":      "#7CFC00",
	"assistant": "#F5F5F5",
	"reasoning": "#8B8B8B",

	"tool":    "#6A6A6A",
	"command": "#CE9178",
	"file":    "#DCDCAA",
	"mcp":     "#C586C0",
	"search":  "#4FC1FF",

	"success": "#89D185",
	"error":   "#F44747",
	"warning": "#DCDCAA",
	"running": "#4FC1FF",
}

// Source colors distinguish agents in multi-source mode.
var sourceColors = map[string]string{
	"gemini":   "#4285F4",
	"codex":    "#10A37F",
	"claude":   "#CC785C",
	"opencode": "#8B5CF6",
	"banana":   "#FFD700",
	"image":    "#10B981",
	"unknown":  "#6A6A6A",
}

// Color returns the palette entry for name, or the foreground color.
func Color(name string) string {
	if c, ok := Palette[name]; ok {
		return c
	}
	return Palette["fg"]
}

// SourceColor returns the hex color for an agent source name.
func SourceColor(source string) string {
	if c, ok := sourceColors[strings.ToLower(source)]; ok {
		return c
	}
	return sourceColors["unknown"]
}

// SourceColors returns a copy of the source color table.
func SourceColors() map[string]string {
	out := make(map[string]string, len(sourceColors))
	for k, v := range sourceColors {
		out[k] = v
	}
	return out
}

// StatusGlyph returns the icon shown next to an operation status.
func StatusGlyph(status string) string {
	switch status {
	case "success":
		return "✓"
	case "failed":
		return "✗"
	case "running":
		return "●"
	default:
		return "·"
	}
}

// StatusClass returns the CSS class used for an operation status.
func StatusClass(status string) string {
	switch status {
	case "success":
		return "ok"
	case "failed":
		return "err"
	case "running":
		return "run"
	default:
		return "dm"
	}
}

// Terminal colors.
var (
	ColorBorder  = lipgloss.Color(Palette["border"])
	ColorDimmed  = lipgloss.Color(Palette["fg_muted"])
	ColorBright  = lipgloss.Color(Palette["assistant"])
	ColorBg      = lipgloss.Color(Palette["bg_secondary"])
	ColorSession = lipgloss.Color(Palette["session"])
	ColorHealthy = lipgloss.Color(Palette["success"])
	ColorWarning = lipgloss.Color(Palette["warning"])
	ColorDanger  = lipgloss.Color(Palette["error"])
	ColorRunning = lipgloss.Color(Palette["running"])
)

// SourceBadge returns a colored "[source]" badge for the terminal.
func SourceBadge(source string) string {
	if source == "" {
		source = "unknown"
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(SourceColor(source))).
		Bold(true).
		Render("[" + source + "]")
}

// Reusable styles.
var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleStatusBar = lipgloss.NewStyle().
			Background(ColorBg).
			Foreground(ColorDimmed).
			Padding(0, 1)
)
