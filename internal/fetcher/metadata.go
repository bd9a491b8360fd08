package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultMetadataBaseURL = "https://api.pokemontcg.io/v2"

// MetadataOptions parameterise the Pokemon TCG API client.
type MetadataOptions struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RatePerSec float64
	Retry      RetryPolicy
}

// TCGClient fetches card identity from the Pokemon TCG API. Requests are
// rate limited and retried with exponential backoff; an exhausted lookup
// yields an empty result.
type TCGClient struct {
	opts    MetadataOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewTCGClient constructs a metadata client.
func NewTCGClient(opts MetadataOptions, logger zerolog.Logger) *TCGClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultMetadataBaseURL
	}

	perSec := opts.RatePerSec
	if perSec <= 0 {
		perSec = 2
	}

	return &TCGClient{
		opts:    opts,
		logger:  logger.With().Str("component", "metadata_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		baseURL: baseURL,
	}
}

// SearchCards queries the metadata service for cards matching a name and
// optional set. Returns zero matches (never an error) when the service stays
// unavailable past the retry budget.
func (c *TCGClient) SearchCards(ctx context.Context, name, setName string) ([]CardMetadata, error) {
	query := fmt.Sprintf("name:%q", name)
	if setName != "" {
		query += fmt.Sprintf(" set.name:%q", setName)
	}

	endpoint := c.baseURL + "/cards?q=" + url.QueryEscape(query)

	cards, ok, err := retry(ctx, c.opts.Retry, c.logger, "search_cards", func(ctx context.Context) ([]CardMetadata, error) {
		return c.searchOnce(ctx, endpoint)
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return []CardMetadata{}, nil
	}
	return cards, nil
}

func (c *TCGClient) searchOnce(ctx context.Context, endpoint string) ([]CardMetadata, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("X-Api-Key", c.opts.APIKey)
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

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tcg api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed tcgSearchResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode tcg response: %w", err)
	}

	cards := make([]CardMetadata, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		card := CardMetadata{
			TCGID:   item.ID,
			Name:    item.Name,
			SetName: item.Set.Name,
			Number:  item.Number,
			Rarity:  item.Rarity,
		}
		if item.Images != nil {
			if item.Images.Small != "" {
				small := item.Images.Small
				card.ImageSmall = &small
			}
			if item.Images.Large != "" {
				large := item.Images.Large
				card.ImageLarge = &large
			}
		}
		cards = append(cards, card)
	}
	return cards, nil
}

type tcgSearchResponse struct {
	Data []tcgCard `json:"data"`
}

// tcgCard models the metadata contract with explicit optional fields; the
// images block is frequently absent for older printings.
type tcgCard struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
	Rarity string `json:"rarity"`
	Set    struct {
		Name string `json:"name"`
	} `json:"set"`
	Images *struct {
		Small string `json:"small"`
		Large string `json:"large"`
	} `json:"images"`
}

var _ MetadataFetcher = (*TCGClient)(nil)
