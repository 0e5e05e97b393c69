// Package dueset selects and orders the working set of cards for one
// review session.
package dueset

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/conorfennell/mochirev/internal/content"
	"github.com/conorfennell/mochirev/internal/domain"
)

// Source lists candidate cards for a deck scope. The remote client and the
// local snapshot both back it.
type Source interface {
	ListDueCards(ctx context.Context, deckID string) ([]domain.Card, error)
}

// Scope narrows a session to one deck and/or a maximum card count. The zero
// Scope means every due card in every deck.
type Scope struct {
	DeckID string
	Limit  int
}

// Set is the ordered sequence of cards selected for a session.
type Set struct {
	Cards []domain.Card
}

// Size returns the number of cards in the set.
func (s Set) Size() int { return len(s.Cards) }

// Resolver builds due sets from a card source.
type Resolver struct {
	Source Source
	// Now is the clock used for due checks; nil means time.Now.
	Now func() time.Time
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Resolve produces the ordered due set for the scope. Ordering is
// deterministic for a fixed input: new cards first (treated as infinitely
// overdue), then overdue cards earliest-due first, ties kept in listing
// order.
func (r *Resolver) Resolve(ctx context.Context, scope Scope) (Set, error) {
	cards, err := r.eligible(ctx, scope)
	if err != nil {
		return Set{}, err
	}

	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i].Due, cards[j].Due
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})

	if scope.Limit > 0 && scope.Limit < len(cards) {
		cards = cards[:scope.Limit]
	}
	return Set{Cards: cards}, nil
}

// Count returns the size the due set would have, without building one. The
// limit still applies, matching what a session with this scope would see.
func (r *Resolver) Count(ctx context.Context, scope Scope) (int, error) {
	cards, err := r.eligible(ctx, scope)
	if err != nil {
		return 0, err
	}
	if scope.Limit > 0 && scope.Limit < len(cards) {
		return scope.Limit, nil
	}
	return len(cards), nil
}

func (r *Resolver) eligible(ctx context.Context, scope Scope) ([]domain.Card, error) {
	listed, err := r.Source.ListDueCards(ctx, scope.DeckID)
	if err != nil {
		return nil, fmt.Errorf("listing due cards: %w", err)
	}

	now := r.now()
	cards := make([]domain.Card, 0, len(listed))
	for _, card := range listed {
		if card.Archived || !content.Reviewable(card.Content) {
			continue
		}
		// The source may be stale or unfiltered; enforce the invariant
		// that every member is due or new at selection time.
		if card.Due != nil && card.Due.After(now) {
			continue
		}
		cards = append(cards, card)
	}
	return cards, nil
}
