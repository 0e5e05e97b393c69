package domain

import "time"

// Card is a read-only copy of a flashcard owned by the remote card service.
// Content holds the front and back text separated by the service's "---"
// delimiter. A nil Due means the card is new and has never been scheduled.
// LastReview and IntervalDays mirror the service's review history; the
// service computes scheduling from them, we only read.
type Card struct {
	ID           string
	DeckID       string
	Content      string
	Due          *time.Time
	LastReview   *time.Time
	IntervalDays int
	ReviewCount  int
	Archived     bool
}

// New reports whether the card has never been scheduled.
func (c Card) New() bool {
	return c.Due == nil
}

// Deck is a named collection of cards, owned by the remote card service.
type Deck struct {
	ID       string
	Name     string
	Archived bool
}

// Outcome is the user's self-assessed recall result for a card.
type Outcome int

const (
	Good Outcome = iota + 1
	Again
	Skip
)

// Rating returns the wire rating the remote service expects. Skip is a
// local-only outcome and has no rating.
func (o Outcome) Rating() string {
	switch o {
	case Good:
		return "good"
	case Again:
		return "again"
	default:
		return ""
	}
}

func (o Outcome) String() string {
	switch o {
	case Good:
		return "good"
	case Again:
		return "again"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// GradeEvent records a single grading action within a session. Seq is the
// session-local sequence number; events are synced to the remote service in
// Seq order.
type GradeEvent struct {
	CardID  string
	Outcome Outcome
	Seq     uint64
	At      time.Time
}
