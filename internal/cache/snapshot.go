// Package cache is the local snapshot of cards and decks, used to start a
// review session without a network round trip. The snapshot is never
// authoritative: grades and card edits always go to the remote service.
package cache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/conorfennell/mochirev/internal/content"
	"github.com/conorfennell/mochirev/internal/domain"
	"github.com/conorfennell/mochirev/internal/schedule"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB wraps the snapshot database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a snapshot database connection and ensures the schema is up
// to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to snapshot database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply snapshot schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Replace swaps the entire snapshot for fresh remote listings. This is the
// only write path; it populates the cache and never flows back to the
// remote service.
func (db *DB) Replace(decks []domain.Deck, cards []domain.Card) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot refresh: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cards`); err != nil {
		return fmt.Errorf("failed to clear cards: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM decks`); err != nil {
		return fmt.Errorf("failed to clear decks: %w", err)
	}

	for _, deck := range decks {
		if _, err := tx.Exec(`
			INSERT INTO decks (id, name, archived) VALUES (?, ?, ?)
		`, deck.ID, deck.Name, deck.Archived); err != nil {
			return fmt.Errorf("failed to insert deck %s: %w", deck.ID, err)
		}
	}

	for _, card := range cards {
		var lastReview sql.NullTime
		if card.LastReview != nil {
			lastReview = sql.NullTime{Time: card.LastReview.UTC(), Valid: true}
		}
		if _, err := tx.Exec(`
			INSERT INTO cards (id, deck_id, content, last_review, interval_days, review_count, archived)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, card.ID, card.DeckID, card.Content, lastReview, card.IntervalDays, card.ReviewCount, card.Archived); err != nil {
			return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO snapshot_meta (key, value) VALUES ('refreshed_at', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record refresh time: %w", err)
	}

	return tx.Commit()
}

// RefreshedAt returns when the snapshot was last replaced, or the zero time
// if it never was.
func (db *DB) RefreshedAt() (time.Time, error) {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM snapshot_meta WHERE key = 'refreshed_at'`).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read refresh time: %w", err)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse refresh time: %w", err)
	}
	return t, nil
}

// ListDecks returns all snapshot decks.
func (db *DB) ListDecks() ([]domain.Deck, error) {
	rows, err := db.conn.Query(`SELECT id, name, archived FROM decks`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot decks: %w", err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		var d domain.Deck
		if err := rows.Scan(&d.ID, &d.Name, &d.Archived); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

// ListDueCards returns snapshot cards due at the given time, in insertion
// order. An empty deckID returns due cards from every deck. Archived cards
// and cards without reviewable content are excluded, matching the remote
// service's own due listing.
func (db *DB) ListDueCards(deckID string, now time.Time) ([]domain.Card, error) {
	query := `
		SELECT id, deck_id, content, last_review, interval_days, review_count
		FROM cards WHERE archived = 0
	`
	args := []any{}
	if deckID != "" {
		query += ` AND deck_id = ?`
		args = append(args, deckID)
	}
	query += ` ORDER BY rowid`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var (
			card         domain.Card
			lastReview   sql.NullTime
			intervalDays int
		)
		if err := rows.Scan(&card.ID, &card.DeckID, &card.Content, &lastReview, &intervalDays, &card.ReviewCount); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		if !content.Reviewable(card.Content) {
			continue
		}
		if lastReview.Valid {
			t := lastReview.Time
			card.LastReview = &t
			card.IntervalDays = intervalDays
		}
		if !schedule.IsDue(card.LastReview, intervalDays, now) {
			continue
		}
		card.Due = schedule.Due(card.LastReview, intervalDays)
		cards = append(cards, card)
	}
	return cards, rows.Err()
}
