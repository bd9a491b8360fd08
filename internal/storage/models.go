package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Card condition grades as reported by marketplaces.
const (
	ConditionNM  = "NM"
	ConditionLP  = "LP"
	ConditionMP  = "MP"
	ConditionHP  = "HP"
	ConditionDMG = "DMG"
)

// Price plausibility classifications assigned at ingest time.
const (
	PriceCheckReasonable     = "REASONABLE"
	PriceCheckSuspiciousHigh = "SUSPICIOUS_HIGH"
	PriceCheckSuspiciousLow  = "SUSPICIOUS_LOW"
)

// Card is the canonical identity of a tradeable card. Created on first
// sighting, refreshed on later sightings of the same normalized name + set,
// never deleted.
type Card struct {
	ID             int64
	Name           string
	NormalizedName string
	SetName        string
	Number         string
	Rarity         string
	Variant        string
	Language       string
	LanguageOK     bool
	TCGID          *string
	ImageSmall     *string
	ImageLarge     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Price is one observed listing at a marketplace at a point in time.
// Append-only; re-ingesting the same listing creates a new observation.
type Price struct {
	ID           int64
	CardID       int64
	Marketplace  string
	Amount       decimal.Decimal
	Condition    string
	ListingURL   string
	SellerRating *decimal.Decimal
	Verified     bool
	PriceCheck   string
	ScrapedAt    time.Time
}

// Opportunity is a detected profitable buy/sell pair for one card.
// Soft-expired via the active flag, never physically deleted.
type Opportunity struct {
	ID              int64
	CardID          int64
	BuyMarketplace  string
	BuyPrice        decimal.Decimal
	BuyURL          string
	SellMarketplace string
	SellPrice       decimal.Decimal
	RawProfit       decimal.Decimal
	Fees            decimal.Decimal
	NetProfit       decimal.Decimal
	ProfitPct       decimal.Decimal
	Score           float64
	Rationale       string
	Active          bool
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// OpportunityRow joins an opportunity with its card for display.
type OpportunityRow struct {
	Opportunity
	CardName string
	SetName  string
	Rarity   string
}
