package fetcher

import "context"

// CardMetadata is one match from the card metadata lookup service. Image
// fields are optional; absent fields stay nil rather than being assumed.
type CardMetadata struct {
	TCGID      string
	Name       string
	SetName    string
	Number     string
	Rarity     string
	ImageSmall *string
	ImageLarge *string
}

// MetadataFetcher looks up card identity by name and optional set. After
// retry exhaustion it returns an empty result, not an error; callers treat
// "no data" as a valid outcome for a single target.
type MetadataFetcher interface {
	SearchCards(ctx context.Context, name, setName string) ([]CardMetadata, error)
}

// RawListing is a marketplace listing as returned by the scrape service,
// before cleaning. PriceText may be any marketplace-specific rendering of a
// price and is parsed downstream.
type RawListing struct {
	Marketplace  string
	Title        string
	SetName      string
	Description  string
	PriceText    string
	URL          string
	Condition    string
	SellerRating *float64
}

// ListingSource fetches raw listings for a batch of search queries from one
// marketplace. No ordering guarantee. Same empty-on-exhaustion contract as
// MetadataFetcher.
type ListingSource interface {
	Marketplace() string
	FetchListings(ctx context.Context, queries []string) ([]RawListing, error)
}
