// Package tui is the native display surface of the live viewer: a
// full-screen terminal program that observes the viewer's own stream like
// any browser tab would.
package tui

import (
	"html"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cliagent/liveview/internal/event"
	"github.com/cliagent/liveview/internal/observer"
	"github.com/cliagent/liveview/internal/theme"
	"github.com/microcosm-cc/bluemonday"
)

// maxLines bounds the scrollback.
const maxLines = 5000

// --- Bubble Tea messages ---

// FragmentMsg delivers a rendered event.
type FragmentMsg struct{ Fragment event.Fragment }

// StatusMsg delivers an aggregate status update.
type StatusMsg struct{ Status event.Status }

// ConnMsg reports an observer connection state change.
type ConnMsg struct{ State observer.State }

// Model is the terminal viewer.
type Model struct {
	title    string
	url      string
	keys     KeyMap
	viewport viewport.Model
	strip    *bluemonday.Policy

	lines  []string
	status event.Status
	conn   observer.State
	follow bool
	width  int
	ready  bool

	// onStart runs once the program's event loop is consuming commands.
	onStart func()
}

func NewModel(title, url string) Model {
	return Model{
		title:  title,
		url:    url,
		keys:   DefaultKeyMap(),
		strip:  bluemonday.StrictPolicy(),
		conn:   observer.StateConnecting,
		follow: true,
	}
}

// Init schedules the start notification. Bubble Tea only executes commands
// after its input reader is up, so the callback proves the program is live.
func (m Model) Init() tea.Cmd {
	if m.onStart == nil {
		return nil
	}
	start := m.onStart
	return func() tea.Msg {
		start()
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := max(msg.Height-2, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Follow):
			m.follow = !m.follow
			if m.follow {
				m.viewport.GotoBottom()
			}
			return m, nil
		case key.Matches(msg, m.keys.Clear):
			m.lines = nil
			m.refresh()
			return m, nil
		case key.Matches(msg, m.keys.Top):
			m.follow = false
			m.viewport.GotoTop()
			return m, nil
		case key.Matches(msg, m.keys.Bottom):
			m.follow = true
			m.viewport.GotoBottom()
			return m, nil
		}

	case FragmentMsg:
		m.lines = append(m.lines, m.formatFragment(msg.Fragment))
		if len(m.lines) > maxLines {
			m.lines = m.lines[len(m.lines)-maxLines:]
		}
		m.refresh()
		return m, nil

	case StatusMsg:
		m.status = msg.Status
		return m, nil

	case ConnMsg:
		m.conn = msg.State
		return m, nil
	}

	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	if _, ok := msg.(tea.KeyMsg); ok {
		m.follow = m.viewport.AtBottom()
	}
	return m, cmd
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

// formatFragment reduces an HTML fragment to one plain-text entry prefixed
// with a colored source badge.
func (m Model) formatFragment(f event.Fragment) string {
	return theme.SourceBadge(f.Source) + " " + PlainText(m.strip, f.HTML)
}

var breakReplacer = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "</p>\n")

// PlainText strips every tag from an HTML fragment and decodes entities.
func PlainText(policy *bluemonday.Policy, fragment string) string {
	text := policy.Sanitize(breakReplacer.Replace(fragment))
	return strings.TrimSpace(html.UnescapeString(text))
}

func (m Model) View() string {
	if !m.ready {
		return "Starting live viewer..."
	}
	header := theme.StyleHeader.Render(m.title) + " " + theme.StyleDimmed.Render(m.url)
	return header + "\n" + m.viewport.View() + "\n" + statusLine(m.conn, m.status, m.follow, m.width)
}

// Lines returns the scrollback entries.
func (m Model) Lines() []string {
	return m.lines
}
