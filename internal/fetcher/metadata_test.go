package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestSearchCardsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key123" {
			t.Fatalf("expected api key header, got %q", r.Header.Get("X-Api-Key"))
		}
		q := r.URL.Query().Get("q")
		if q != `name:"Charizard ex" set.name:"Obsidian Flames"` {
			t.Fatalf("unexpected query: %q", q)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"id":     "sv3-125",
					"name":   "Charizard ex",
					"number": "125",
					"rarity": "Ultra Rare",
					"set":    map[string]string{"name": "Obsidian Flames"},
					"images": map[string]string{"small": "https://img/s.png", "large": "https://img/l.png"},
				},
				{
					"id":     "base1-4",
					"name":   "Charizard",
					"number": "4",
					"rarity": "Rare",
					"set":    map[string]string{"name": "Base"},
					// no images block
				},
			},
		})
	}))
	defer srv.Close()

	c := NewTCGClient(MetadataOptions{
		BaseURL:    srv.URL,
		APIKey:     "key123",
		RatePerSec: 1000,
		Retry:      fastRetry(),
	}, noopLogger())

	cards, err := c.SearchCards(context.Background(), "Charizard ex", "Obsidian Flames")
	if err != nil {
		t.Fatalf("search should succeed: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}
	if cards[0].TCGID != "sv3-125" || cards[0].Rarity != "Ultra Rare" {
		t.Fatalf("first card mismatch: %+v", cards[0])
	}
	if cards[0].ImageSmall == nil || *cards[0].ImageSmall != "https://img/s.png" {
		t.Fatalf("expected small image, got %+v", cards[0].ImageSmall)
	}
	if cards[1].ImageSmall != nil || cards[1].ImageLarge != nil {
		t.Fatal("missing images block should stay nil")
	}
}

func TestSearchCardsExhaustedRetriesReturnsEmpty(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewTCGClient(MetadataOptions{
		BaseURL:    srv.URL,
		RatePerSec: 1000,
		Retry:      fastRetry(),
	}, noopLogger())

	cards, err := c.SearchCards(context.Background(), "Pikachu ex", "")
	if err != nil {
		t.Fatalf("exhausted retries must not surface an error: %v", err)
	}
	if len(cards) != 0 {
		t.Fatalf("expected empty result, got %d cards", len(cards))
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestSearchCardsRecoversMidRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": "x", "name": "Mew ex", "set": map[string]string{"name": "151"}}},
		})
	}))
	defer srv.Close()

	c := NewTCGClient(MetadataOptions{
		BaseURL:    srv.URL,
		RatePerSec: 1000,
		Retry:      fastRetry(),
	}, noopLogger())

	cards, err := c.SearchCards(context.Background(), "Mew ex", "")
	if err != nil {
		t.Fatalf("should recover on third attempt: %v", err)
	}
	if len(cards) != 1 || cards[0].Name != "Mew ex" {
		t.Fatalf("unexpected cards: %+v", cards)
	}
}

func TestSearchCardsContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewTCGClient(MetadataOptions{
		BaseURL:    "http://127.0.0.1:0",
		RatePerSec: 1000,
		Retry:      fastRetry(),
	}, noopLogger())

	if _, err := c.SearchCards(ctx, "Pikachu", ""); err == nil {
		t.Fatal("cancelled context should propagate")
	}
}
