// Package session drives one review session: present a card, reveal its
// back, accept a grade, advance. The session never talks to the network;
// accepted grades are handed to a sink (the grade sync queue) and any
// sync trouble surfaces only in the final summary, so the review rhythm is
// never interrupted.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/conorfennell/mochirev/internal/content"
	"github.com/conorfennell/mochirev/internal/domain"
	"github.com/conorfennell/mochirev/internal/dueset"
)

// State is the session's position in the review loop.
type State int

const (
	NotStarted State = iota
	Presenting
	Revealed
	Completed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Presenting:
		return "presenting"
	case Revealed:
		return "revealed"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// ErrEmptySession reports that there was nothing to review. It is a
// first-class outcome, not a failure: callers distinguish "nothing due"
// from an error.
var ErrEmptySession = errors.New("session: no cards due for review")

// ErrCompleted reports an interaction with a finished session.
var ErrCompleted = errors.New("session: already completed")

// InvalidTransitionError reports a state-machine contract violation by the
// caller, such as grading a card whose answer was never revealed.
type InvalidTransitionError struct {
	Op    string
	State State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("session: %s is invalid in state %s", e.Op, e.State)
}

// Sink receives accepted grade events. Enqueue must not block; pending
// reports events accepted but not yet confirmed synced.
type Sink interface {
	Enqueue(domain.GradeEvent)
	Pending() int
}

// Prompt is the front of the current card, ready for presentation.
type Prompt struct {
	CardID string
	Front  string
	Index  int // 1-based position within the session
	Total  int
}

// Progress is a point-in-time view of the session for rendering.
type Progress struct {
	Index   int
	Total   int
	Good    int
	Again   int
	Skipped int
}

// Summary describes a finished (or aborted) session.
type Summary struct {
	Presented   int
	Good        int
	Again       int
	Skipped     int
	PendingSync int
}

// Session is one interactive pass over a due set. Methods are safe for
// concurrent use; the web adapter calls them from request handlers.
type Session struct {
	mu sync.Mutex

	set    dueset.Set
	sink   Sink
	now    func() time.Time
	state  State
	cursor int
	seq    uint64

	presented int
	good      int
	again     int
	skipped   int
	events    []domain.GradeEvent
}

// New creates a session over the due set. The sink receives Good and Again
// events as they are accepted.
func New(set dueset.Set, sink Sink) *Session {
	return &Session{set: set, sink: sink, now: time.Now}
}

// Start moves the session to the first card. An empty due set yields
// ErrEmptySession; starting twice is an invalid transition.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != NotStarted {
		return &InvalidTransitionError{Op: "start", State: s.state}
	}
	if s.set.Size() == 0 {
		s.state = Completed
		return ErrEmptySession
	}
	s.state = Presenting
	s.presented = 1
	return nil
}

// Prompt returns the front of the current card. A completed session yields
// ErrCompleted.
func (s *Session) Prompt() (Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Presenting, Revealed:
	case Completed:
		return Prompt{}, ErrCompleted
	default:
		return Prompt{}, &InvalidTransitionError{Op: "prompt", State: s.state}
	}

	card := s.set.Cards[s.cursor]
	front, _ := content.Split(card.Content)
	return Prompt{
		CardID: card.ID,
		Front:  front,
		Index:  s.cursor + 1,
		Total:  s.set.Size(),
	}, nil
}

// Reveal shows the back of the current card. Calling it again in the
// revealed state is a no-op returning the same answer.
func (s *Session) Reveal() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Presenting:
		s.state = Revealed
	case Revealed:
	default:
		return "", &InvalidTransitionError{Op: "reveal", State: s.state}
	}

	_, back := content.Split(s.set.Cards[s.cursor].Content)
	return back, nil
}

// Grade records the outcome for the current card and advances. The answer
// must have been revealed first; blind grading is rejected. Skip outcomes
// go through Skip, not Grade.
func (s *Session) Grade(outcome domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Revealed {
		return &InvalidTransitionError{Op: "grade", State: s.state}
	}
	if outcome != domain.Good && outcome != domain.Again {
		return fmt.Errorf("session: outcome %v is not gradeable", outcome)
	}

	event := s.record(outcome)
	switch outcome {
	case domain.Good:
		s.good++
	case domain.Again:
		s.again++
	}
	if s.sink != nil {
		s.sink.Enqueue(event)
	}
	s.advance()
	return nil
}

// Skip moves past the current card without affecting its remote schedule.
// Valid whether or not the answer was revealed.
func (s *Session) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Presenting && s.state != Revealed {
		return &InvalidTransitionError{Op: "skip", State: s.state}
	}

	s.record(domain.Skip)
	s.skipped++
	s.advance()
	return nil
}

// Abort ends the session immediately. Grades already accepted keep
// syncing; only the interactive loop stops.
func (s *Session) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Completed {
		return &InvalidTransitionError{Op: "abort", State: s.state}
	}
	s.state = Completed
	return nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress reports the session position and counters so far.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.cursor
	if s.state == Presenting || s.state == Revealed {
		index = s.cursor + 1
	}
	return Progress{
		Index:   index,
		Total:   s.set.Size(),
		Good:    s.good,
		Again:   s.again,
		Skipped: s.skipped,
	}
}

// Summary reports the final counts. PendingSync counts grades accepted by
// the user but not yet confirmed by the remote service.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := 0
	if s.sink != nil {
		pending = s.sink.Pending()
	}
	return Summary{
		Presented:   s.presented,
		Good:        s.good,
		Again:       s.again,
		Skipped:     s.skipped,
		PendingSync: pending,
	}
}

// Events returns the grade events recorded so far, including local-only
// skips, in sequence order.
func (s *Session) Events() []domain.GradeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.GradeEvent, len(s.events))
	copy(out, s.events)
	return out
}

// record appends a grade event for the current card. Callers hold s.mu.
func (s *Session) record(outcome domain.Outcome) domain.GradeEvent {
	s.seq++
	event := domain.GradeEvent{
		CardID:  s.set.Cards[s.cursor].ID,
		Outcome: outcome,
		Seq:     s.seq,
		At:      s.now(),
	}
	s.events = append(s.events, event)
	return event
}

// advance moves to the next card or completes the session. Callers hold
// s.mu.
func (s *Session) advance() {
	s.cursor++
	if s.cursor >= s.set.Size() {
		s.state = Completed
		return
	}
	s.state = Presenting
	s.presented++
}
