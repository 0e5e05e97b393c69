// Package deck resolves a user-supplied deck reference (an ID or a partial
// name) to exactly one deck. Ambiguity is an error, never a silent first
// match: reviewing the wrong deck is worse than asking the user again.
package deck

import (
	"context"
	"fmt"
	"strings"

	"github.com/conorfennell/mochirev/internal/domain"
)

// Lister provides the deck listing to match against. Both the remote
// client and the local snapshot satisfy it.
type Lister interface {
	ListDecks(ctx context.Context) ([]domain.Deck, error)
}

// NotFoundError reports a reference that matched no deck.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no deck found matching %q", e.Ref)
}

// AmbiguousError reports a reference that matched more than one deck. The
// caller should present Candidates and ask the user to disambiguate.
type AmbiguousError struct {
	Ref        string
	Candidates []domain.Deck
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, d := range e.Candidates {
		names[i] = d.Name
	}
	return fmt.Sprintf("deck reference %q is ambiguous: %s", e.Ref, strings.Join(names, ", "))
}

// Resolve matches ref against the listing. An exact ID match wins
// outright; otherwise a case-insensitive substring match on names applies,
// and a single exact name match breaks ties among substring matches.
func Resolve(ctx context.Context, lister Lister, ref string) (domain.Deck, error) {
	decks, err := lister.ListDecks(ctx)
	if err != nil {
		return domain.Deck{}, fmt.Errorf("listing decks: %w", err)
	}

	for _, d := range decks {
		if d.ID == ref {
			return d, nil
		}
	}

	needle := strings.ToLower(ref)
	var matches []domain.Deck
	for _, d := range decks {
		if strings.Contains(strings.ToLower(d.Name), needle) {
			matches = append(matches, d)
		}
	}

	switch len(matches) {
	case 0:
		return domain.Deck{}, &NotFoundError{Ref: ref}
	case 1:
		return matches[0], nil
	}

	var exact []domain.Deck
	for _, d := range matches {
		if strings.EqualFold(d.Name, ref) {
			exact = append(exact, d)
		}
	}
	if len(exact) == 1 {
		return exact[0], nil
	}

	return domain.Deck{}, &AmbiguousError{Ref: ref, Candidates: matches}
}
