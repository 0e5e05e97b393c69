// Package tui is the terminal presentation adapter: a bubbletea loop bound
// to the session engine. All review logic lives in the session; this
// package only renders and forwards key presses.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/conorfennell/mochirev/internal/domain"
	"github.com/conorfennell/mochirev/internal/session"
)

type keyMap struct {
	Reveal key.Binding
	Good   key.Binding
	Again  key.Binding
	Skip   key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Reveal: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter", "reveal"),
	),
	Good: key.NewBinding(
		key.WithKeys("g"),
		key.WithHelp("g", "good"),
	),
	Again: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "again"),
	),
	Skip: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "skip"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	frontStyle   = lipgloss.NewStyle().Bold(true).MarginTop(1).MarginBottom(1)
	backStyle    = lipgloss.NewStyle().MarginTop(1).MarginBottom(1)
	ruleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	summaryStyle = lipgloss.NewStyle().MarginTop(1)
)

// Model is the bubbletea model for one review session.
type Model struct {
	session  *session.Session
	deckName string

	prompt   session.Prompt
	back     string
	revealed bool
	done     bool
	err      error
}

// NewModel binds a started session to the terminal UI.
func NewModel(sess *session.Session, deckName string) Model {
	m := Model{session: sess, deckName: deckName}
	m.loadPrompt()
	return m
}

// Run drives the session through an interactive terminal loop and returns
// the final summary.
func Run(sess *session.Session, deckName string) (session.Summary, error) {
	p := tea.NewProgram(NewModel(sess, deckName))
	if _, err := p.Run(); err != nil {
		return session.Summary{}, fmt.Errorf("running review ui: %w", err)
	}
	return sess.Summary(), nil
}

func (m *Model) loadPrompt() {
	prompt, err := m.session.Prompt()
	if errors.Is(err, session.ErrCompleted) {
		m.done = true
		return
	}
	if err != nil {
		m.err = err
		m.done = true
		return
	}
	m.prompt = prompt
	m.back = ""
	m.revealed = false
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.done {
		return m, tea.Quit
	}

	switch {
	case key.Matches(keyMsg, keys.Quit):
		m.session.Abort()
		m.done = true
		return m, tea.Quit

	case key.Matches(keyMsg, keys.Reveal):
		if !m.revealed {
			back, err := m.session.Reveal()
			if err == nil {
				m.back = back
				m.revealed = true
			}
		}

	case key.Matches(keyMsg, keys.Good):
		if m.revealed {
			if err := m.session.Grade(domain.Good); err == nil {
				m.loadPrompt()
			}
		}

	case key.Matches(keyMsg, keys.Again):
		if m.revealed {
			if err := m.session.Grade(domain.Again); err == nil {
				m.loadPrompt()
			}
		}

	case key.Matches(keyMsg, keys.Skip):
		if err := m.session.Skip(); err == nil {
			m.loadPrompt()
		}
	}

	if m.done {
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("review error: %v\n", m.err)
	}
	if m.done {
		return m.summaryView()
	}

	var b strings.Builder
	progress := m.session.Progress()
	header := fmt.Sprintf("%s  |  %d/%d  |  good %d  again %d  skip %d",
		m.deckName, m.prompt.Index, m.prompt.Total,
		progress.Good, progress.Again, progress.Skipped,
	)
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(frontStyle.Render(m.prompt.Front))
	b.WriteString("\n")

	if m.revealed {
		b.WriteString(ruleStyle.Render(strings.Repeat("─", 50)))
		b.WriteString("\n")
		b.WriteString(backStyle.Render(m.back))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("[g] good  [a] again  [s] skip  [q] quit"))
	} else {
		b.WriteString(helpStyle.Render("[enter] reveal  [s] skip  [q] quit"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) summaryView() string {
	summary := m.session.Summary()
	lines := []string{
		"Review complete.",
		fmt.Sprintf("  good:    %d", summary.Good),
		fmt.Sprintf("  again:   %d", summary.Again),
		fmt.Sprintf("  skipped: %d", summary.Skipped),
	}
	if summary.PendingSync > 0 {
		lines = append(lines, fmt.Sprintf("  syncing: %d", summary.PendingSync))
	}
	return summaryStyle.Render(strings.Join(lines, "\n")) + "\n"
}
