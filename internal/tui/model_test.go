package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kalambet/secureguard/internal/collab"
	"github.com/kalambet/secureguard/internal/session"
	"github.com/kalambet/secureguard/internal/similarity"
	"github.com/kalambet/secureguard/internal/storage"
	"github.com/kalambet/secureguard/internal/turn"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingAnswerer struct {
	queries []string
	err     error
}

func (r *recordingAnswerer) Answer(_ context.Context, q string) (collab.Result, error) {
	r.queries = append(r.queries, q)
	if r.err != nil {
		return collab.Result{}, r.err
	}
	return collab.Result{
		Text: "Enable **two-factor** authentication.",
		Diagnostics: []similarity.Record{
			{Score: 0.2, Preview: "2FA adds a second step"},
			{Score: 0.9, Preview: "unrelated recipe"},
		},
	}, nil
}

func newTestModel(t *testing.T, a collab.Collaborator) (Model, *turn.Dispatcher) {
	t.Helper()
	d := turn.NewDispatcher(session.New(a), a, similarity.DefaultThreshold, nil)
	m := New(context.Background(), d, Options{
		ExportDir:    t.TempDir(),
		Knowledge:    storage.Stats{Documents: 3, Chunks: 42, EmbedModel: "all-minilm"},
		GlamourStyle: "notty",
	})
	m.now = func() time.Time { return time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC) }
	return m, d
}

// run executes cmd and feeds any turn results back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	msgs := []tea.Msg{cmd()}
	for len(msgs) > 0 {
		msg := msgs[0]
		msgs = msgs[1:]
		switch msg := msg.(type) {
		case tea.BatchMsg:
			for _, c := range msg {
				if c != nil {
					msgs = append(msgs, c())
				}
			}
		case turnDoneMsg:
			next, _ := m.Update(msg)
			m = next.(Model)
		}
	}
	return m
}

func press(t *testing.T, m Model, key tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(key)
	return next.(Model), cmd
}

func TestEnterRunsTurnAndShowsReport(t *testing.T) {
	a := &recordingAnswerer{}
	m, d := newTestModel(t, a)

	m.input.SetValue("  How do I secure my email?  ")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.busy)
	assert.Equal(t, turn.ProcessFlow, d.State())
	assert.Contains(t, m.View(), "thinking")
	assert.Contains(t, m.renderHistory(), "How do I secure my email?")

	m = run(t, m, cmd)
	assert.False(t, m.busy)
	assert.Equal(t, turn.AwaitingInput, d.State())
	assert.Equal(t, []string{"How do I secure my email?"}, a.queries)

	hist := d.Session().History()
	require.Len(t, hist, 2)
	assert.Equal(t, "How do I secure my email?", hist[0].Message)

	view := m.renderHistory()
	assert.Contains(t, view, "Similarity Analysis")
	assert.Contains(t, view, "Similarity Score: 0.2000 - Excellent Match")
	assert.Contains(t, view, "WILL USE (Threshold: 0.65)")
	assert.Contains(t, view, "FILTERED OUT")
	assert.Contains(t, view, "two-factor")
	assert.Empty(t, m.input.Value())
}

func TestInputIgnoredWhileBusy(t *testing.T) {
	a := &recordingAnswerer{}
	m, _ := newTestModel(t, a)

	m.input.SetValue("first")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, m.busy)

	m.input.SetValue("second")
	m, second := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, second)
	m, alt := press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("1"), Alt: true})
	assert.Nil(t, alt)

	m = run(t, m, cmd)
	assert.Equal(t, []string{"first"}, a.queries)
	assert.False(t, m.d.Session().HasPendingInput())
}

func TestSuggestionKeyDispatchesThroughPendingSlot(t *testing.T) {
	a := &recordingAnswerer{}
	m, d := newTestModel(t, a)

	m.input.SetValue("typed text loses")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2"), Alt: true})
	m = run(t, m, cmd)

	assert.Equal(t, []string{turn.Suggestions[1]}, a.queries)
	assert.False(t, d.Session().HasPendingInput())
	assert.Equal(t, turn.Suggestions[1], d.Session().History()[0].Message)
	assert.Empty(t, m.input.Value())
}

func TestExitShowsFarewellWithoutReport(t *testing.T) {
	a := &recordingAnswerer{}
	m, d := newTestModel(t, a)

	m.input.SetValue("EXIT")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = run(t, m, cmd)

	assert.Empty(t, a.queries)
	hist := d.Session().History()
	require.Len(t, hist, 2)
	assert.Equal(t, turn.Farewell, hist[1].Message)
	assert.NotContains(t, m.renderHistory(), "Similarity Analysis")
	assert.Equal(t, turn.AwaitingInput, d.State())
}

func TestServiceErrorShowsApology(t *testing.T) {
	a := &recordingAnswerer{err: errors.New("engine unreachable")}
	m, d := newTestModel(t, a)

	m.input.SetValue("hi")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = run(t, m, cmd)

	assert.Equal(t, turn.Apology, d.Session().History()[1].Message)
	assert.NotContains(t, m.renderHistory(), "Similarity Analysis")
}

func TestClearAndExport(t *testing.T) {
	a := &recordingAnswerer{}
	m, d := newTestModel(t, a)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	assert.Equal(t, "No conversation to export!", m.status)

	m.input.SetValue("hello")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = run(t, m, cmd)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	want := filepath.Join(m.opts.ExportDir, "secureguard_chat_20250607_080910.txt")
	assert.Equal(t, "Saved "+want, m.status)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SecureGuard AI Conversation - 20250607_080910")

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Equal(t, 0, d.Session().Len())
	assert.Contains(t, m.renderHistory(), "Welcome to SecureGuard AI")
}

func TestSidebarShowsStatsAndSuggestions(t *testing.T) {
	m, _ := newTestModel(t, &recordingAnswerer{})
	m.input.SetValue("hi")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = run(t, m, cmd)

	side := m.renderSidebar()
	assert.Contains(t, side, "Total messages: 2")
	assert.Contains(t, side, "Your messages: 1")
	assert.Contains(t, side, "Chunks: 42")
	for _, s := range turn.Suggestions {
		assert.Contains(t, side, s[:12])
	}
}

func TestCtrlCQuits(t *testing.T) {
	m, _ := newTestModel(t, &recordingAnswerer{})
	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestWindowResize(t *testing.T) {
	m, _ := newTestModel(t, &recordingAnswerer{})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	m = next.(Model)
	assert.Equal(t, 140-sidebarWidth-2, m.history.Width)
	assert.Greater(t, m.history.Height, 20)
}
