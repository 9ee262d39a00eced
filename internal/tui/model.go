// Package tui is the full-screen chat interface.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/secureguard/internal/session"
	"github.com/kalambet/secureguard/internal/storage"
	"github.com/kalambet/secureguard/internal/turn"
)

// Options configure the interface.
type Options struct {
	// ExportDir is where ctrl+s writes the transcript.
	ExportDir string
	// Knowledge is shown in the sidebar.
	Knowledge storage.Stats
	// GlamourStyle names a glamour standard style. Empty picks one from the
	// terminal background.
	GlamourStyle string
}

// turnDoneMsg carries the service reply for an in-flight turn back to the
// UI goroutine.
type turnDoneMsg struct {
	pending turn.Pending
	reply   turn.Reply
}

// Model is the bubbletea model of a chat session.
type Model struct {
	ctx  context.Context
	d    *turn.Dispatcher
	opts Options
	now  func() time.Time

	input    textarea.Model
	history  viewport.Model
	spinner  spinner.Model
	markdown func(string) string

	busy     bool
	inflight string
	last     turn.Outcome
	status   string

	width  int
	height int
}

// New returns a model driving d. ctx is passed to every service call and is
// expected to be cancelled when the program quits.
func New(ctx context.Context, d *turn.Dispatcher, opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Type your message here..."
	ta.Focus()
	ta.CharLimit = 4096
	ta.ShowLineNumbers = false
	ta.Prompt = "> "
	ta.SetHeight(2)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.KeyMap.InsertNewline.SetEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle

	d.Start()
	m := Model{
		ctx:     ctx,
		d:       d,
		opts:    opts,
		now:     time.Now,
		input:   ta,
		history: viewport.New(80, 20),
		spinner: sp,
		width:   80 + sidebarWidth,
		height:  24,
	}
	m.markdown = newMarkdown(opts.GlamourStyle, 78)
	m.refresh()
	return m
}

func newMarkdown(style string, width int) func(string) string {
	opt := glamour.WithAutoStyle()
	if style != "" {
		opt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(width))
	if err != nil {
		return func(s string) string { return s }
	}
	return func(s string) string {
		out, err := r.Render(s)
		if err != nil {
			return s
		}
		return strings.TrimRight(out, "\n")
	}
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case turnDoneMsg:
		out, err := m.d.Commit(msg.pending, msg.reply)
		m.busy = false
		m.inflight = ""
		if err == nil {
			m.last = out
			m.status = ""
		}
		m.refresh()
		m.d.Ready()
		m.input.Focus()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "enter":
		return m.startTurn(m.input.Value())
	case "ctrl+l":
		if m.busy {
			return m, nil
		}
		m.d.Session().Clear()
		m.last = turn.Outcome{}
		m.status = "History cleared."
		m.refresh()
		return m, nil
	case "ctrl+s":
		m.status = m.export()
		return m, nil
	case "alt+1", "alt+2", "alt+3", "alt+4":
		if m.busy {
			return m, nil
		}
		k := msg.String()
		i := int(k[len(k)-1] - '1')
		m.d.Session().SetPendingInput(turn.Suggestions[i])
		return m.startTurn("")
	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd
	}

	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// startTurn begins a cycle with direct input and hands the service call to
// a command so the UI stays responsive. Session state is only touched here
// and when the reply arrives.
func (m Model) startTurn(direct string) (tea.Model, tea.Cmd) {
	p, err := m.d.Begin(direct)
	switch {
	case errors.Is(err, turn.ErrNoInput), errors.Is(err, turn.ErrBusy):
		return m, nil
	case err != nil:
		m.status = err.Error()
		return m, nil
	}

	m.input.Reset()
	m.input.Blur()
	m.busy = true
	m.inflight = p.Input
	m.status = ""
	m.refresh()

	d, ctx := m.d, m.ctx
	resolve := func() tea.Msg {
		return turnDoneMsg{pending: p, reply: d.Resolve(ctx, p)}
	}
	return m, tea.Batch(m.spinner.Tick, resolve)
}

func (m Model) export() string {
	path, err := m.d.Session().WriteExport(m.opts.ExportDir, m.now())
	if errors.Is(err, session.ErrNothingToExport) {
		return "No conversation to export!"
	}
	if err != nil {
		return "Export failed: " + err.Error()
	}
	return "Saved " + path
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	mainWidth := width - sidebarWidth - 2
	if mainWidth < 30 {
		mainWidth = 30
	}
	m.input.SetWidth(mainWidth - 2)
	m.history.Width = mainWidth
	h := height - m.input.Height() - 4
	if h < 5 {
		h = 5
	}
	m.history.Height = h
	m.markdown = newMarkdown(m.opts.GlamourStyle, mainWidth-2)
	m.refresh()
}

// refresh redraws the conversation into the viewport and scrolls to the end.
func (m *Model) refresh() {
	m.history.SetContent(m.renderHistory())
	m.history.GotoBottom()
}

func (m Model) View() string {
	main := lipgloss.JoinVertical(lipgloss.Left,
		m.history.View(),
		m.statusLine(),
		inputStyle.Width(m.history.Width-2).Render(m.input.View()),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, main, m.renderSidebar())
}

func (m Model) statusLine() string {
	if m.busy {
		return m.spinner.View() + statusStyle.Render(" SecureGuard is thinking...")
	}
	if m.status != "" {
		return statusStyle.Render(m.status)
	}
	return dimStyle.Render("enter send · alt+1-4 suggestion · ctrl+l clear · ctrl+s export · ctrl+c quit")
}
