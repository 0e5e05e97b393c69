// Package mochi is a client for the remote card service's HTTP API. The
// service enforces at most one concurrent request per credential; callers
// that write (grade submission) must serialize themselves, which
// internal/gradesync does.
package mochi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/conorfennell/mochirev/internal/content"
	"github.com/conorfennell/mochirev/internal/domain"
	"github.com/conorfennell/mochirev/internal/schedule"
)

// DefaultBaseURL is the public endpoint of the card service.
const DefaultBaseURL = "https://app.mochi.cards/api"

// Client talks to the remote card service. The API key is sent as the
// basic-auth username with an empty password.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given credential. An empty baseURL
// selects the public endpoint.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type deckDoc struct {
	ID       *string `json:"id"`
	Name     string  `json:"name"`
	Archived bool    `json:"archived?"`
}

type reviewDoc struct {
	Date     string `json:"date"`
	Interval int    `json:"interval"`
}

type cardDoc struct {
	ID       *string     `json:"id"`
	DeckID   string      `json:"deck-id"`
	Content  string      `json:"content"`
	Due      string      `json:"due"`
	Archived bool        `json:"archived?"`
	Reviews  []reviewDoc `json:"reviews"`
}

func (d deckDoc) toDomain() (domain.Deck, error) {
	if d.ID == nil || *d.ID == "" {
		return domain.Deck{}, &DecodeError{What: "deck: missing id"}
	}
	return domain.Deck{ID: *d.ID, Name: d.Name, Archived: d.Archived}, nil
}

func (d cardDoc) toDomain() (domain.Card, error) {
	if d.ID == nil || *d.ID == "" {
		return domain.Card{}, &DecodeError{What: "card: missing id"}
	}
	card := domain.Card{
		ID:          *d.ID,
		DeckID:      d.DeckID,
		Content:     d.Content,
		ReviewCount: len(d.Reviews),
		Archived:    d.Archived,
	}
	if len(d.Reviews) > 0 {
		last := d.Reviews[len(d.Reviews)-1]
		if at, ok := content.ParseTime(last.Date); ok {
			card.LastReview = &at
			card.IntervalDays = last.Interval
		}
	}
	switch {
	case d.Due != "":
		due, ok := content.ParseTime(d.Due)
		if !ok {
			return domain.Card{}, &DecodeError{What: fmt.Sprintf("card %s: due %q", *d.ID, d.Due)}
		}
		card.Due = &due
	default:
		// Services that omit the due field still ship review history; the
		// due date is last review + interval, or nil for a new card.
		card.Due = schedule.Due(card.LastReview, card.IntervalDays)
	}
	return card, nil
}

// ListDecks returns every deck in the account.
func (c *Client) ListDecks(ctx context.Context) ([]domain.Deck, error) {
	var resp struct {
		Docs []deckDoc `json:"docs"`
	}
	if err := c.do(ctx, http.MethodGet, "/decks", nil, nil, &resp); err != nil {
		return nil, err
	}
	decks := make([]domain.Deck, 0, len(resp.Docs))
	for _, doc := range resp.Docs {
		deck, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		decks = append(decks, deck)
	}
	return decks, nil
}

// ListDueCards returns cards due for review today, service-side filtered.
// An empty deckID queries all decks.
func (c *Client) ListDueCards(ctx context.Context, deckID string) ([]domain.Card, error) {
	return c.ListDueCardsOn(ctx, deckID, time.Time{})
}

// ListDueCardsOn returns cards the service considers due on the given
// date. The zero time means today.
func (c *Client) ListDueCardsOn(ctx context.Context, deckID string, date time.Time) ([]domain.Card, error) {
	path := "/due"
	if deckID != "" {
		path += "/" + url.PathEscape(deckID)
	}
	var q url.Values
	if !date.IsZero() {
		q = url.Values{"date": []string{date.Format("2006-01-02")}}
	}
	var resp struct {
		Cards []cardDoc `json:"cards"`
	}
	if err := c.do(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
		return nil, err
	}
	cards := make([]domain.Card, 0, len(resp.Cards))
	for _, doc := range resp.Cards {
		card, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// SubmitGrade records a review outcome for a card. Only Good and Again are
// valid; Skip never reaches the service.
func (c *Client) SubmitGrade(ctx context.Context, cardID string, outcome domain.Outcome) error {
	rating := outcome.Rating()
	if rating == "" {
		return fmt.Errorf("mochi: outcome %v has no wire rating", outcome)
	}
	body := map[string]string{
		"card-id": cardID,
		"rating":  rating,
	}
	path := "/cards/" + url.PathEscape(cardID) + "/review"
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}

// ListCards lists cards, optionally filtered by deck.
func (c *Client) ListCards(ctx context.Context, deckID string, limit int) ([]domain.Card, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if deckID != "" {
		q.Set("deck-id", deckID)
	}
	var resp struct {
		Docs []cardDoc `json:"docs"`
	}
	if err := c.do(ctx, http.MethodGet, "/cards", q, nil, &resp); err != nil {
		return nil, err
	}
	cards := make([]domain.Card, 0, len(resp.Docs))
	for _, doc := range resp.Docs {
		card, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// CreateCard creates a card in a deck. Content uses the front/back
// delimiter format.
func (c *Client) CreateCard(ctx context.Context, deckID, cardContent, templateID string, reviewReverse bool) (domain.Card, error) {
	body := map[string]any{
		"content": cardContent,
		"deck-id": deckID,
	}
	if templateID != "" {
		body["template-id"] = templateID
	}
	if reviewReverse {
		body["review-reverse?"] = true
	}
	var doc cardDoc
	if err := c.do(ctx, http.MethodPost, "/cards", nil, body, &doc); err != nil {
		return domain.Card{}, err
	}
	return doc.toDomain()
}

// CreateCards creates one card per content string, continuing past
// individual failures. The created cards are returned alongside an error
// joining every failure, so a partial batch is still usable.
func (c *Client) CreateCards(ctx context.Context, deckID string, contents []string, templateID string) ([]domain.Card, error) {
	var created []domain.Card
	var errs []error
	for i, text := range contents {
		card, err := c.CreateCard(ctx, deckID, text, templateID, false)
		if err != nil {
			errs = append(errs, fmt.Errorf("card %d: %w", i+1, err))
			continue
		}
		created = append(created, card)
	}
	return created, errors.Join(errs...)
}

// CreateDeck creates a deck, optionally nested under a parent.
func (c *Client) CreateDeck(ctx context.Context, name, parentID string) (domain.Deck, error) {
	body := map[string]string{"name": name}
	if parentID != "" {
		body["parent-id"] = parentID
	}
	var doc deckDoc
	if err := c.do(ctx, http.MethodPost, "/decks", nil, body, &doc); err != nil {
		return domain.Deck{}, err
	}
	return doc.toDomain()
}

// DeleteCard removes a card.
func (c *Client) DeleteCard(ctx context.Context, cardID string) error {
	return c.do(ctx, http.MethodDelete, "/cards/"+url.PathEscape(cardID), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, "")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(err)
	}

	if apiErr := classifyStatus(resp.StatusCode, respBody); apiErr != nil {
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &DecodeError{What: method + " " + path, Cause: err}
		}
	}
	return nil
}

func classifyTransport(err error) error {
	kind := KindUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &APIError{Kind: kind, Message: err.Error()}
}

func classifyStatus(status int, body []byte) *APIError {
	if status >= 200 && status < 300 {
		return nil
	}
	kind := KindUnknown
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status >= 500:
		kind = KindUnavailable
	}
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &APIError{Kind: kind, Status: status, Message: msg}
}
