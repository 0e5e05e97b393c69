package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/conorfennell/mochirev/internal/domain"
	"github.com/conorfennell/mochirev/internal/dueset"
	"github.com/conorfennell/mochirev/internal/session"
)

type countingSink struct{ events int }

func (c *countingSink) Enqueue(domain.GradeEvent) { c.events++ }
func (c *countingSink) Pending() int              { return 0 }

func startedSession(t *testing.T, sink session.Sink) *session.Session {
	t.Helper()
	yesterday := time.Now().Add(-24 * time.Hour)
	set := dueset.Set{Cards: []domain.Card{
		{ID: "c1", Content: "Front one\n---\nBack one", Due: &yesterday},
		{ID: "c2", Content: "Front two\n---\nBack two"},
	}}
	sess := session.New(set, sink)
	if err := sess.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return sess
}

func press(m Model, k tea.KeyMsg) Model {
	updated, _ := m.Update(k)
	return updated.(Model)
}

func enter() tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyEnter} }
func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestRevealThenGrade(t *testing.T) {
	sink := &countingSink{}
	sess := startedSession(t, sink)
	m := NewModel(sess, "Test Deck")

	if m.revealed {
		t.Fatal("Expected the answer to start hidden")
	}

	m = press(m, enter())
	if !m.revealed || m.back != "Back one" {
		t.Fatalf("Expected reveal to show the back, got %+v", m)
	}

	m = press(m, runeKey('g'))
	if m.prompt.CardID != "c2" {
		t.Errorf("Expected grading to advance to c2, got %s", m.prompt.CardID)
	}
	if sink.events != 1 {
		t.Errorf("Expected 1 enqueued grade, got %d", sink.events)
	}
}

func TestGradeBeforeRevealIsIgnored(t *testing.T) {
	sink := &countingSink{}
	sess := startedSession(t, sink)
	m := NewModel(sess, "Test Deck")

	m = press(m, runeKey('g'))
	if m.prompt.CardID != "c1" {
		t.Errorf("Expected to stay on c1 without a reveal, got %s", m.prompt.CardID)
	}
	if sink.events != 0 {
		t.Errorf("Expected no grades before reveal, got %d", sink.events)
	}
}

func TestSkipAdvancesWithoutGrade(t *testing.T) {
	sink := &countingSink{}
	sess := startedSession(t, sink)
	m := NewModel(sess, "Test Deck")

	m = press(m, runeKey('s'))
	if m.prompt.CardID != "c2" {
		t.Errorf("Expected skip to advance, got %s", m.prompt.CardID)
	}
	if sink.events != 0 {
		t.Errorf("Expected skip to stay local, got %d events", sink.events)
	}
}

func TestQuitAborts(t *testing.T) {
	sess := startedSession(t, &countingSink{})
	m := NewModel(sess, "Test Deck")

	m = press(m, runeKey('q'))
	if !m.done {
		t.Error("Expected quit to finish the model")
	}
	if sess.State() != session.Completed {
		t.Errorf("Expected the session to be aborted, got %v", sess.State())
	}
}

func TestCompletionShowsSummary(t *testing.T) {
	sess := startedSession(t, &countingSink{})
	m := NewModel(sess, "Test Deck")

	m = press(m, enter())
	m = press(m, runeKey('g'))
	m = press(m, enter())
	m = press(m, runeKey('a'))

	if !m.done {
		t.Fatal("Expected the model to finish after the last card")
	}
	view := m.View()
	if view == "" {
		t.Fatal("Expected a summary view")
	}
	summary := sess.Summary()
	if summary.Good != 1 || summary.Again != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
}
