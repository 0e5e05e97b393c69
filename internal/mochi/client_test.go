package mochi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/conorfennell/mochirev/internal/domain"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient("test-key", srv.URL), srv
}

func TestListDecks(t *testing.T) {
	var gotAuth string
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, _ := r.BasicAuth()
		gotAuth = user
		if r.URL.Path != "/decks" {
			t.Errorf("Expected path /decks, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"docs": [{"id": "d1", "name": "Geography"}, {"id": "d2", "name": "Geology", "archived?": true}]}`))
	}))
	defer srv.Close()

	decks, err := client.ListDecks(context.Background())
	if err != nil {
		t.Fatalf("ListDecks failed: %v", err)
	}
	if gotAuth != "test-key" {
		t.Errorf("Expected API key as basic auth user, got %q", gotAuth)
	}
	if len(decks) != 2 {
		t.Fatalf("Expected 2 decks, got %d", len(decks))
	}
	if decks[0].ID != "d1" || decks[0].Name != "Geography" {
		t.Errorf("Unexpected first deck: %+v", decks[0])
	}
	if !decks[1].Archived {
		t.Error("Expected second deck to be archived")
	}
}

func TestListDueCards(t *testing.T) {
	t.Run("all decks", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/due" {
				t.Errorf("Expected path /due, got %s", r.URL.Path)
			}
			w.Write([]byte(`{"cards": [
				{"id": "c1", "deck-id": "d1", "content": "Q\n---\nA", "due": "~t1697241600000", "reviews": [{"date": "~t1697000000000"}]},
				{"id": "c2", "deck-id": "d1", "content": "New card", "archived?": true}
			]}`))
		}))
		defer srv.Close()

		cards, err := client.ListDueCards(context.Background(), "")
		if err != nil {
			t.Fatalf("ListDueCards failed: %v", err)
		}
		if len(cards) != 2 {
			t.Fatalf("Expected 2 cards, got %d", len(cards))
		}
		if cards[0].Due == nil || !cards[0].Due.Equal(time.UnixMilli(1697241600000).UTC()) {
			t.Errorf("Expected transit due timestamp to decode, got %v", cards[0].Due)
		}
		if cards[0].ReviewCount != 1 {
			t.Errorf("Expected review count 1, got %d", cards[0].ReviewCount)
		}
		if !cards[1].New() {
			t.Error("Expected card without due to be new")
		}
		if !cards[1].Archived {
			t.Error("Expected archived flag to decode")
		}
	})

	t.Run("scoped to deck", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/due/d1" {
				t.Errorf("Expected path /due/d1, got %s", r.URL.Path)
			}
			w.Write([]byte(`{"cards": []}`))
		}))
		defer srv.Close()

		cards, err := client.ListDueCards(context.Background(), "d1")
		if err != nil {
			t.Fatalf("ListDueCards failed: %v", err)
		}
		if len(cards) != 0 {
			t.Errorf("Expected no cards, got %d", len(cards))
		}
	})

	t.Run("date override", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("date"); got != "2023-10-14" {
				t.Errorf("Expected date query 2023-10-14, got %q", got)
			}
			w.Write([]byte(`{"cards": []}`))
		}))
		defer srv.Close()

		date := time.Date(2023, 10, 14, 0, 0, 0, 0, time.UTC)
		if _, err := client.ListDueCardsOn(context.Background(), "", date); err != nil {
			t.Fatalf("ListDueCardsOn failed: %v", err)
		}
	})

	t.Run("missing card id is a decode error", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"cards": [{"content": "orphan"}]}`))
		}))
		defer srv.Close()

		_, err := client.ListDueCards(context.Background(), "")
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("Expected DecodeError, got %v", err)
		}
	})
}

func TestSubmitGrade(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if err := client.SubmitGrade(context.Background(), "c1", domain.Again); err != nil {
		t.Fatalf("SubmitGrade failed: %v", err)
	}
	if gotPath != "/cards/c1/review" {
		t.Errorf("Expected path /cards/c1/review, got %s", gotPath)
	}
	if gotBody["card-id"] != "c1" || gotBody["rating"] != "again" {
		t.Errorf("Unexpected payload: %v", gotBody)
	}

	t.Run("skip is rejected locally", func(t *testing.T) {
		if err := client.SubmitGrade(context.Background(), "c1", domain.Skip); err == nil {
			t.Error("Expected an error submitting a skip outcome")
		}
	})
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		kind      Kind
		transient bool
	}{
		{"unauthorized", http.StatusUnauthorized, KindAuth, false},
		{"forbidden", http.StatusForbidden, KindAuth, false},
		{"rate limited", http.StatusTooManyRequests, KindRateLimited, true},
		{"not found", http.StatusNotFound, KindNotFound, false},
		{"server error", http.StatusInternalServerError, KindUnavailable, true},
		{"bad gateway", http.StatusBadGateway, KindUnavailable, true},
		{"teapot", http.StatusTeapot, KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := client.SubmitGrade(context.Background(), "c1", domain.Good)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected APIError, got %v", err)
			}
			if apiErr.Kind != tt.kind {
				t.Errorf("Expected kind %v, got %v", tt.kind, apiErr.Kind)
			}
			if apiErr.Transient() != tt.transient {
				t.Errorf("Expected transient=%v for %v", tt.transient, tt.kind)
			}
		})
	}
}

func TestCreateCard(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["deck-id"] != "d1" {
			t.Errorf("Expected deck-id d1, got %v", body["deck-id"])
		}
		if body["review-reverse?"] != true {
			t.Errorf("Expected review-reverse? to be set")
		}
		w.Write([]byte(`{"id": "c9", "deck-id": "d1", "content": "Q\n---\nA"}`))
	}))
	defer srv.Close()

	card, err := client.CreateCard(context.Background(), "d1", "Q\n---\nA", "", true)
	if err != nil {
		t.Fatalf("CreateCard failed: %v", err)
	}
	if card.ID != "c9" {
		t.Errorf("Expected card id c9, got %s", card.ID)
	}
}

func TestCreateCardsContinuesPastFailures(t *testing.T) {
	var calls int
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"id": "c` + body["content"].(string) + `", "deck-id": "d1", "content": "x"}`))
	}))
	defer srv.Close()

	created, err := client.CreateCards(context.Background(), "d1", []string{"1", "2", "3"}, "")
	if err == nil {
		t.Error("Expected an error reporting the failed card")
	}
	if calls != 3 {
		t.Errorf("Expected all 3 cards attempted, got %d calls", calls)
	}
	if len(created) != 2 || created[0].ID != "c1" || created[1].ID != "c3" {
		t.Errorf("Expected c1 and c3 created, got %+v", created)
	}
}
