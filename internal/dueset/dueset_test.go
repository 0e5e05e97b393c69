package dueset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/conorfennell/mochirev/internal/domain"
)

var testNow = time.Date(2023, 10, 10, 12, 0, 0, 0, time.UTC)

type staticSource struct {
	cards  []domain.Card
	deckID string
	err    error
}

func (s *staticSource) ListDueCards(ctx context.Context, deckID string) ([]domain.Card, error) {
	s.deckID = deckID
	return s.cards, s.err
}

func due(daysAgo int) *time.Time {
	t := testNow.Add(-time.Duration(daysAgo) * 24 * time.Hour)
	return &t
}

func TestResolveOrdering(t *testing.T) {
	source := &staticSource{cards: []domain.Card{
		{ID: "overdue-1", Content: "a\n---\nb", Due: due(1)},
		{ID: "new-1", Content: "c\n---\nd"},
		{ID: "overdue-3", Content: "e\n---\nf", Due: due(3)},
		{ID: "new-2", Content: "g\n---\nh"},
		{ID: "overdue-1-again", Content: "i\n---\nj", Due: due(1)},
	}}
	resolver := &Resolver{Source: source, Now: func() time.Time { return testNow }}

	set, err := resolver.Resolve(context.Background(), Scope{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	want := []string{"new-1", "new-2", "overdue-3", "overdue-1", "overdue-1-again"}
	if set.Size() != len(want) {
		t.Fatalf("Expected %d cards, got %d", len(want), set.Size())
	}
	for i, id := range want {
		if set.Cards[i].ID != id {
			t.Errorf("Expected card %s at position %d, got %s", id, i, set.Cards[i].ID)
		}
	}
}

func TestResolveDeterminism(t *testing.T) {
	source := &staticSource{cards: []domain.Card{
		{ID: "a", Content: "a\n---\n1", Due: due(2)},
		{ID: "b", Content: "b\n---\n2"},
		{ID: "c", Content: "c\n---\n3", Due: due(2)},
		{ID: "d", Content: "d\n---\n4"},
	}}
	resolver := &Resolver{Source: source, Now: func() time.Time { return testNow }}

	first, err := resolver.Resolve(context.Background(), Scope{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	second, err := resolver.Resolve(context.Background(), Scope{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if first.Size() != second.Size() {
		t.Fatalf("Expected identical sizes, got %d and %d", first.Size(), second.Size())
	}
	for i := range first.Cards {
		if first.Cards[i].ID != second.Cards[i].ID {
			t.Errorf("Expected identical ordering at %d: %s vs %s", i, first.Cards[i].ID, second.Cards[i].ID)
		}
	}
}

func TestResolveFilters(t *testing.T) {
	future := testNow.Add(48 * time.Hour)
	source := &staticSource{cards: []domain.Card{
		{ID: "due", Content: "a\n---\nb", Due: due(1)},
		{ID: "not-yet", Content: "c\n---\nd", Due: &future},
		{ID: "placeholder", Content: "Untitled card"},
		{ID: "blank", Content: ""},
		{ID: "retired", Content: "e\n---\nf", Archived: true},
	}}
	resolver := &Resolver{Source: source, Now: func() time.Time { return testNow }}

	set, err := resolver.Resolve(context.Background(), Scope{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if set.Size() != 1 || set.Cards[0].ID != "due" {
		t.Errorf("Expected only the due card, got %+v", set.Cards)
	}
}

func TestResolveLimit(t *testing.T) {
	source := &staticSource{cards: []domain.Card{
		{ID: "a", Content: "a\n---\n1"},
		{ID: "b", Content: "b\n---\n2"},
		{ID: "c", Content: "c\n---\n3"},
	}}
	resolver := &Resolver{Source: source, Now: func() time.Time { return testNow }}

	set, err := resolver.Resolve(context.Background(), Scope{Limit: 2})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if set.Size() != 2 {
		t.Errorf("Expected 2 cards after limit, got %d", set.Size())
	}
}

func TestCount(t *testing.T) {
	source := &staticSource{cards: []domain.Card{
		{ID: "a", Content: "a\n---\n1"},
		{ID: "b", Content: "b\n---\n2"},
		{ID: "c", Content: "c\n---\n3"},
	}}
	resolver := &Resolver{Source: source, Now: func() time.Time { return testNow }}

	n, err := resolver.Count(context.Background(), Scope{DeckID: "d1"})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected count 3, got %d", n)
	}
	if source.deckID != "d1" {
		t.Errorf("Expected deck scope to reach the source, got %q", source.deckID)
	}

	limited, err := resolver.Count(context.Background(), Scope{Limit: 2})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if limited != 2 {
		t.Errorf("Expected limited count 2, got %d", limited)
	}
}

func TestResolveSourceError(t *testing.T) {
	boom := errors.New("boom")
	resolver := &Resolver{Source: &staticSource{err: boom}}
	if _, err := resolver.Resolve(context.Background(), Scope{}); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped source error, got %v", err)
	}
}
