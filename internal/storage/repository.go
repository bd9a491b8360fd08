package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrCardNotFound indicates no card matches the lookup key.
	ErrCardNotFound = errors.New("storage: card not found")
)

const (
	upsertCardSQL = `INSERT INTO cards (
        card_name,
        normalized_name,
        set_name,
        card_number,
        rarity,
        card_type,
        language,
        is_language_verified,
        tcg_id,
        image_url_small,
        image_url_large
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (normalized_name, set_name) DO UPDATE
    SET
        rarity               = COALESCE(NULLIF(EXCLUDED.rarity, ''), cards.rarity),
        card_number          = COALESCE(NULLIF(EXCLUDED.card_number, ''), cards.card_number),
        card_type            = COALESCE(NULLIF(EXCLUDED.card_type, ''), cards.card_type),
        is_language_verified = cards.is_language_verified OR EXCLUDED.is_language_verified,
        tcg_id               = COALESCE(EXCLUDED.tcg_id, cards.tcg_id),
        image_url_small      = COALESCE(EXCLUDED.image_url_small, cards.image_url_small),
        image_url_large      = COALESCE(EXCLUDED.image_url_large, cards.image_url_large),
        updated_at           = now()
    RETURNING id, card_name, normalized_name, set_name, card_number, rarity, card_type,
              language, is_language_verified, tcg_id, image_url_small, image_url_large,
              created_at, updated_at;`

	getCardByIDSQL = `SELECT
        id, card_name, normalized_name, set_name, card_number, rarity, card_type,
        language, is_language_verified, tcg_id, image_url_small, image_url_large,
        created_at, updated_at
    FROM cards
    WHERE id = $1;`

	getCardByKeySQL = `SELECT
        id, card_name, normalized_name, set_name, card_number, rarity, card_type,
        language, is_language_verified, tcg_id, image_url_small, image_url_large,
        created_at, updated_at
    FROM cards
    WHERE normalized_name = $1
      AND set_name = $2;`

	findCardsByNormalizedSQL = `SELECT
        id, card_name, normalized_name, set_name, card_number, rarity, card_type,
        language, is_language_verified, tcg_id, image_url_small, image_url_large,
        created_at, updated_at
    FROM cards
    WHERE normalized_name = $1
    ORDER BY id;`

	insertPriceSQL = `INSERT INTO prices (
        card_id,
        marketplace,
        price,
        condition,
        listing_url,
        seller_rating,
        is_verified,
        price_check,
        scraped_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    RETURNING id;`

	listPricesSinceSQL = `SELECT
        id, card_id, marketplace, price, condition, listing_url,
        seller_rating, is_verified, price_check, scraped_at
    FROM prices
    WHERE card_id = $1
      AND scraped_at >= $2
    ORDER BY scraped_at;`

	listPricesBetweenSQL = `SELECT
        id, card_id, marketplace, price, condition, listing_url,
        seller_rating, is_verified, price_check, scraped_at
    FROM prices
    WHERE card_id = $1
      AND scraped_at >= $2
      AND scraped_at < $3
    ORDER BY scraped_at;`

	insertOpportunitySQL = `INSERT INTO arbitrage_opportunities (
        card_id,
        buy_marketplace,
        buy_price,
        buy_url,
        sell_marketplace,
        sell_price,
        raw_profit,
        fees,
        net_profit,
        profit_percentage,
        score,
        rationale,
        is_active,
        expires_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,true,$13
    )
    RETURNING id, created_at;`

	supersedeOpportunitySQL = `UPDATE arbitrage_opportunities
    SET is_active = false
    WHERE card_id = $1
      AND buy_marketplace = $2
      AND sell_marketplace = $3
      AND is_active;`

	listActiveOpportunitiesSQL = `SELECT
        o.id, o.card_id, o.buy_marketplace, o.buy_price, o.buy_url,
        o.sell_marketplace, o.sell_price, o.raw_profit, o.fees, o.net_profit,
        o.profit_percentage, o.score, o.rationale, o.is_active, o.created_at,
        o.expires_at, c.card_name, c.set_name, c.rarity
    FROM arbitrage_opportunities o
    JOIN cards c ON c.id = o.card_id
    WHERE o.is_active
      AND o.expires_at > now()
      AND o.score >= $1
      AND ($2::bigint IS NULL OR o.card_id = $2)
    ORDER BY o.score DESC, o.net_profit DESC
    LIMIT $3;`

	expireOpportunitiesSQL = `UPDATE arbitrage_opportunities
    SET is_active = false
    WHERE is_active
      AND expires_at < $1;`

	countCardsSQL = `SELECT COUNT(*) FROM cards;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// CardStore defines card identity persistence. UpsertCard is keyed on
// normalized name + set so two concurrent sightings of the same card resolve
// to one row.
type CardStore interface {
	UpsertCard(ctx context.Context, card Card) (Card, error)
	GetCardByID(ctx context.Context, id int64) (Card, error)
	GetCardByKey(ctx context.Context, normalizedName, setName string) (Card, error)
	FindCardsByNormalized(ctx context.Context, normalizedName string) ([]Card, error)
	CountCards(ctx context.Context) (int64, error)
}

// PriceStore defines the append-only price observation log.
type PriceStore interface {
	InsertPrice(ctx context.Context, price Price) (int64, error)
	ListPricesSince(ctx context.Context, cardID int64, since time.Time) ([]Price, error)
}

// OpportunityStore defines arbitrage opportunity persistence.
type OpportunityStore interface {
	InsertOpportunity(ctx context.Context, opp Opportunity) (Opportunity, error)
	ListActiveOpportunities(ctx context.Context, minScore float64, cardID *int64, limit int) ([]OpportunityRow, error)
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to cards, prices, and opportunities.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertCard creates or refreshes a card keyed by normalized name + set.
// Identity fields stay stable; mutable fields (rarity, number, images) take
// the latest non-empty value.
func (s *Store) UpsertCard(ctx context.Context, card Card) (Card, error) {
	pool, err := s.getPool()
	if err != nil {
		return Card{}, err
	}

	language := card.Language
	if language == "" {
		language = "English"
	}

	row := pool.QueryRow(ctx, upsertCardSQL,
		card.Name,
		card.NormalizedName,
		card.SetName,
		card.Number,
		card.Rarity,
		card.Variant,
		language,
		card.LanguageOK,
		card.TCGID,
		card.ImageSmall,
		card.ImageLarge,
	)

	saved, scanErr := scanCard(row)
	if scanErr != nil {
		return Card{}, fmt.Errorf("upsert card: %w", scanErr)
	}
	return saved, nil
}

// GetCardByID fetches one card by primary key.
func (s *Store) GetCardByID(ctx context.Context, id int64) (Card, error) {
	pool, err := s.getPool()
	if err != nil {
		return Card{}, err
	}

	row := pool.QueryRow(ctx, getCardByIDSQL, id)
	card, scanErr := scanCard(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Card{}, ErrCardNotFound
		}
		return Card{}, fmt.Errorf("get card by id: %w", scanErr)
	}
	return card, nil
}

// GetCardByKey fetches one card by its normalized name + set identity.
func (s *Store) GetCardByKey(ctx context.Context, normalizedName, setName string) (Card, error) {
	pool, err := s.getPool()
	if err != nil {
		return Card{}, err
	}

	row := pool.QueryRow(ctx, getCardByKeySQL, normalizedName, setName)
	card, scanErr := scanCard(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Card{}, ErrCardNotFound
		}
		return Card{}, fmt.Errorf("get card by key: %w", scanErr)
	}
	return card, nil
}

// FindCardsByNormalized lists every card sharing a normalized name, across sets.
func (s *Store) FindCardsByNormalized(ctx context.Context, normalizedName string) ([]Card, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, findCardsByNormalizedSQL, normalizedName)
	if queryErr != nil {
		return nil, fmt.Errorf("find cards by normalized name: %w", queryErr)
	}
	defer rows.Close()

	cards := make([]Card, 0)
	for rows.Next() {
		card, scanErr := scanCard(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		cards = append(cards, card)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return cards, nil
}

// CountCards counts stored cards.
func (s *Store) CountCards(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countCardsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count cards: %w", scanErr)
	}
	return count, nil
}

// InsertPrice appends one observation to the price log.
func (s *Store) InsertPrice(ctx context.Context, price Price) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	condition := price.Condition
	if condition == "" {
		condition = ConditionNM
	}

	var rating interface{}
	if price.SellerRating != nil {
		rating = price.SellerRating.String()
	}

	scrapedAt := price.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}

	var id int64
	scanErr := pool.QueryRow(ctx, insertPriceSQL,
		price.CardID,
		price.Marketplace,
		price.Amount.String(),
		condition,
		price.ListingURL,
		rating,
		price.Verified,
		price.PriceCheck,
		scrapedAt,
	).Scan(&id)
	if scanErr != nil {
		return 0, fmt.Errorf("insert price: %w", scanErr)
	}
	return id, nil
}

// ListPricesSince lists a card's observations at or after the cutoff,
// oldest first.
func (s *Store) ListPricesSince(ctx context.Context, cardID int64, since time.Time) ([]Price, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPricesSinceSQL, cardID, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list prices since: %w", queryErr)
	}
	defer rows.Close()

	prices := make([]Price, 0)
	for rows.Next() {
		price, scanErr := scanPrice(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		prices = append(prices, price)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return prices, nil
}

// ListPricesBetween lists a card's observations in [from, to), oldest first.
func (s *Store) ListPricesBetween(ctx context.Context, cardID int64, from, to time.Time) ([]Price, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPricesBetweenSQL, cardID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list prices between: %w", queryErr)
	}
	defer rows.Close()

	prices := make([]Price, 0)
	for rows.Next() {
		price, scanErr := scanPrice(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		prices = append(prices, price)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return prices, nil
}

// InsertOpportunity deactivates any active opportunity for the same
// card/buy/sell marketplace pair, then inserts the fresh one. Both steps run
// in one transaction so a reader never sees two active rows for the pair.
func (s *Store) InsertOpportunity(ctx context.Context, opp Opportunity) (Opportunity, error) {
	pool, err := s.getPool()
	if err != nil {
		return Opportunity{}, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return Opportunity{}, fmt.Errorf("begin opportunity tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, execErr := tx.Exec(ctx, supersedeOpportunitySQL,
		opp.CardID, opp.BuyMarketplace, opp.SellMarketplace,
	); execErr != nil {
		return Opportunity{}, fmt.Errorf("supersede opportunity: %w", execErr)
	}

	scanErr := tx.QueryRow(ctx, insertOpportunitySQL,
		opp.CardID,
		opp.BuyMarketplace,
		opp.BuyPrice.String(),
		opp.BuyURL,
		opp.SellMarketplace,
		opp.SellPrice.String(),
		opp.RawProfit.String(),
		opp.Fees.String(),
		opp.NetProfit.String(),
		opp.ProfitPct.String(),
		opp.Score,
		opp.Rationale,
		opp.ExpiresAt,
	).Scan(&opp.ID, &opp.CreatedAt)
	if scanErr != nil {
		return Opportunity{}, fmt.Errorf("insert opportunity: %w", scanErr)
	}

	if err := tx.Commit(ctx); err != nil {
		return Opportunity{}, fmt.Errorf("commit opportunity tx: %w", err)
	}

	opp.Active = true
	return opp, nil
}

// ListActiveOpportunities returns active, unexpired opportunities at or above
// the score floor, best first. cardID narrows to one card when non-nil.
func (s *Store) ListActiveOpportunities(ctx context.Context, minScore float64, cardID *int64, limit int) ([]OpportunityRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveOpportunitiesSQL, minScore, cardID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list active opportunities: %w", queryErr)
	}
	defer rows.Close()

	opps := make([]OpportunityRow, 0, limit)
	for rows.Next() {
		opp, scanErr := scanOpportunityRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		opps = append(opps, opp)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return opps, nil
}

// ExpireBefore marks opportunities whose expiry passed the cutoff inactive
// and reports how many were swept.
func (s *Store) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, expireOpportunitiesSQL, cutoff)
	if execErr != nil {
		return 0, fmt.Errorf("expire opportunities: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

func scanCard(row pgx.Row) (Card, error) {
	var (
		card    Card
		number  sql.NullString
		rarity  sql.NullString
		variant sql.NullString
	)

	if err := row.Scan(
		&card.ID,
		&card.Name,
		&card.NormalizedName,
		&card.SetName,
		&number,
		&rarity,
		&variant,
		&card.Language,
		&card.LanguageOK,
		&card.TCGID,
		&card.ImageSmall,
		&card.ImageLarge,
		&card.CreatedAt,
		&card.UpdatedAt,
	); err != nil {
		return Card{}, err
	}

	card.Number = number.String
	card.Rarity = rarity.String
	card.Variant = variant.String
	return card, nil
}

func scanPrice(rows pgx.Rows) (Price, error) {
	var (
		price     Price
		amountStr string
		rating    sql.NullString
		check     sql.NullString
	)

	if err := rows.Scan(
		&price.ID,
		&price.CardID,
		&price.Marketplace,
		&amountStr,
		&price.Condition,
		&price.ListingURL,
		&rating,
		&price.Verified,
		&check,
		&price.ScrapedAt,
	); err != nil {
		return Price{}, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return Price{}, fmt.Errorf("parse price amount: %w", err)
	}
	price.Amount = amount
	price.PriceCheck = check.String

	if rating.Valid {
		parsed, convErr := decimal.NewFromString(rating.String)
		if convErr != nil {
			return Price{}, fmt.Errorf("parse seller rating: %w", convErr)
		}
		price.SellerRating = &parsed
	}

	return price, nil
}

func scanOpportunityRow(rows pgx.Rows) (OpportunityRow, error) {
	var (
		opp       OpportunityRow
		buyStr    string
		sellStr   string
		rawStr    string
		feesStr   string
		netStr    string
		pctStr    string
		rarity    sql.NullString
		rationale sql.NullString
	)

	if err := rows.Scan(
		&opp.ID,
		&opp.CardID,
		&opp.BuyMarketplace,
		&buyStr,
		&opp.BuyURL,
		&opp.SellMarketplace,
		&sellStr,
		&rawStr,
		&feesStr,
		&netStr,
		&pctStr,
		&opp.Score,
		&rationale,
		&opp.Active,
		&opp.CreatedAt,
		&opp.ExpiresAt,
		&opp.CardName,
		&opp.SetName,
		&rarity,
	); err != nil {
		return OpportunityRow{}, err
	}

	var err error
	if opp.BuyPrice, err = decimal.NewFromString(buyStr); err != nil {
		return OpportunityRow{}, fmt.Errorf("parse buy price: %w", err)
	}
	if opp.SellPrice, err = decimal.NewFromString(sellStr); err != nil {
		return OpportunityRow{}, fmt.Errorf("parse sell price: %w", err)
	}
	if opp.RawProfit, err = decimal.NewFromString(rawStr); err != nil {
		return OpportunityRow{}, fmt.Errorf("parse raw profit: %w", err)
	}
	if opp.Fees, err = decimal.NewFromString(feesStr); err != nil {
		return OpportunityRow{}, fmt.Errorf("parse fees: %w", err)
	}
	if opp.NetProfit, err = decimal.NewFromString(netStr); err != nil {
		return OpportunityRow{}, fmt.Errorf("parse net profit: %w", err)
	}
	if opp.ProfitPct, err = decimal.NewFromString(pctStr); err != nil {
		return OpportunityRow{}, fmt.Errorf("parse profit percentage: %w", err)
	}

	opp.Rationale = rationale.String
	return opp, nil
}
