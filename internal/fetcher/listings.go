package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultScrapeBaseURL = "https://api.apify.com/v2"

// ScrapeOptions parameterise one marketplace's listing source. Each
// marketplace maps to its own scrape actor.
type ScrapeOptions struct {
	BaseURL     string
	Token       string
	Marketplace string
	ActorID     string
	MaxItems    int
	Timeout     time.Duration
	UserAgent   string
	Retry       RetryPolicy
}

// ScrapeClient runs a marketplace scrape actor synchronously and returns its
// dataset items as raw listings.
type ScrapeClient struct {
	opts    ScrapeOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewScrapeClient constructs a listing source for one marketplace.
func NewScrapeClient(opts ScrapeOptions, logger zerolog.Logger) *ScrapeClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		// Actor runs are slow; the sync endpoint holds the connection open.
		timeout = 2 * time.Minute
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultScrapeBaseURL
	}

	return &ScrapeClient{
		opts: opts,
		logger: logger.With().
			Str("component", "listing_fetcher").
			Str("marketplace", opts.Marketplace).
			Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Marketplace names the marketplace this source scrapes.
func (c *ScrapeClient) Marketplace() string {
	return c.opts.Marketplace
}

// FetchListings runs the scrape actor for a batch of queries. Exhausted
// retries degrade to zero listings for this batch.
func (c *ScrapeClient) FetchListings(ctx context.Context, queries []string) ([]RawListing, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	maxItems := c.opts.MaxItems
	if maxItems <= 0 {
		maxItems = 100
	}

	input := actorInput{
		Queries:  queries,
		Language: "English",
		MaxItems: maxItems,
	}

	listings, ok, err := retry(ctx, c.opts.Retry, c.logger, "fetch_listings", func(ctx context.Context) ([]RawListing, error) {
		return c.runActor(ctx, input)
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return []RawListing{}, nil
	}
	return listings, nil
}

func (c *ScrapeClient) runActor(ctx context.Context, input actorInput) ([]RawListing, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?token=%s",
		c.baseURL, url.PathEscape(c.opts.ActorID), url.QueryEscape(c.opts.Token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("scrape api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var items []scrapedItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("decode dataset items: %w", err)
	}

	listings := make([]RawListing, 0, len(items))
	for _, item := range items {
		listings = append(listings, RawListing{
			Marketplace:  c.opts.Marketplace,
			Title:        item.title(),
			SetName:      item.SetName,
			Description:  item.Description,
			PriceText:    item.priceText(),
			URL:          item.URL,
			Condition:    item.Condition,
			SellerRating: item.SellerRating,
		})
	}
	return listings, nil
}

type actorInput struct {
	Queries  []string `json:"queries"`
	Language string   `json:"language"`
	MaxItems int      `json:"maxItems"`
}

// scrapedItem tolerates the field drift between marketplace actors: some emit
// title/name, and price arrives as either a JSON string or a bare number.
type scrapedItem struct {
	Title        string          `json:"title"`
	Name         string          `json:"name"`
	SetName      string          `json:"setName"`
	Description  string          `json:"description"`
	Price        json.RawMessage `json:"price"`
	URL          string          `json:"url"`
	Condition    string          `json:"condition"`
	SellerRating *float64        `json:"sellerRating"`
}

func (i scrapedItem) title() string {
	if i.Title != "" {
		return i.Title
	}
	return i.Name
}

func (i scrapedItem) priceText() string {
	if len(i.Price) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(i.Price, &asString); err == nil {
		return asString
	}
	return strings.TrimSpace(string(i.Price))
}

var _ ListingSource = (*ScrapeClient)(nil)
