package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchListingsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "acts/ebay-actor/run-sync-get-dataset-items") {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("token") != "secret" {
			t.Fatal("token should be passed as query parameter")
		}

		var input map[string]any
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			t.Fatalf("decode input: %v", err)
		}
		if input["maxItems"].(float64) != 50 {
			t.Fatalf("maxItems not forwarded: %v", input["maxItems"])
		}

		// String and numeric prices, title/name drift.
		_, _ = w.Write([]byte(`[
			{"title":"Charizard ex 125/198","price":"$123.45","url":"https://x/1","sellerRating":99.2},
			{"name":"Pikachu ex","price":60.5,"url":"https://x/2","condition":"LP"}
		]`))
	}))
	defer srv.Close()

	c := NewScrapeClient(ScrapeOptions{
		BaseURL:     srv.URL,
		Token:       "secret",
		Marketplace: "ebay",
		ActorID:     "ebay-actor",
		MaxItems:    50,
		Retry:       fastRetry(),
	}, noopLogger())

	listings, err := c.FetchListings(context.Background(), []string{"Charizard ex", "Pikachu ex"})
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}

	first := listings[0]
	if first.Marketplace != "ebay" || first.Title != "Charizard ex 125/198" || first.PriceText != "$123.45" {
		t.Fatalf("first listing mismatch: %+v", first)
	}
	if first.SellerRating == nil || *first.SellerRating != 99.2 {
		t.Fatalf("seller rating mismatch: %+v", first.SellerRating)
	}

	second := listings[1]
	if second.Title != "Pikachu ex" {
		t.Fatal("name field should back the title when title is absent")
	}
	if second.PriceText != "60.5" {
		t.Fatalf("numeric price should pass through as text, got %q", second.PriceText)
	}
	if second.Condition != "LP" {
		t.Fatalf("condition not carried: %+v", second)
	}
}

func TestFetchListingsExhaustedRetriesReturnsEmpty(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewScrapeClient(ScrapeOptions{
		BaseURL:     srv.URL,
		Token:       "secret",
		Marketplace: "tcgplayer",
		ActorID:     "tcg-actor",
		Retry:       fastRetry(),
	}, noopLogger())

	listings, err := c.FetchListings(context.Background(), []string{"Mew ex"})
	if err != nil {
		t.Fatalf("exhausted retries must not surface an error: %v", err)
	}
	if len(listings) != 0 {
		t.Fatalf("expected no listings, got %d", len(listings))
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestFetchListingsNoQueries(t *testing.T) {
	c := NewScrapeClient(ScrapeOptions{Marketplace: "ebay", ActorID: "a"}, noopLogger())
	listings, err := c.FetchListings(context.Background(), nil)
	if err != nil || listings != nil {
		t.Fatalf("no queries should be a no-op, got %v %v", listings, err)
	}
}
