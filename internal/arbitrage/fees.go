package arbitrage

import (
	"github.com/shopspring/decimal"

	"card-arb-alerts/internal/config"
)

// FeeBasis selects which side of the pair the fee fraction applies to.
type FeeBasis string

const (
	// FeeBasisSell applies marketplace fees to the sell price. This is the
	// default: selling fees dominate for card marketplaces.
	FeeBasisSell FeeBasis = "sell"
	// FeeBasisBuy applies fees to the buy price instead.
	FeeBasisBuy FeeBasis = "buy"
)

// FeeModel maps marketplaces to fee fractions and fixed per-sale fees.
// Marketplaces missing from both maps pay the default fraction.
type FeeModel struct {
	Basis           FeeBasis
	DefaultFraction decimal.Decimal
	Fractions       map[string]decimal.Decimal
	Fixed           map[string]decimal.Decimal
}

// NewFeeModel builds a fee model from configuration.
func NewFeeModel(cfg config.ArbitrageConfig) FeeModel {
	model := FeeModel{
		Basis:           FeeBasis(cfg.FeeBasis),
		DefaultFraction: decimal.NewFromFloat(cfg.DefaultFeePct),
		Fractions:       make(map[string]decimal.Decimal, len(cfg.Fees)),
		Fixed:           make(map[string]decimal.Decimal, len(cfg.FixedFees)),
	}
	if model.Basis == "" {
		model.Basis = FeeBasisSell
	}
	for marketplace, pct := range cfg.Fees {
		model.Fractions[marketplace] = decimal.NewFromFloat(pct)
	}
	for marketplace, fee := range cfg.FixedFees {
		model.Fixed[marketplace] = decimal.NewFromFloat(fee)
	}
	return model
}

// FeeFor computes the total fee charged by a marketplace on the given basis
// amount: fraction of the amount plus any fixed per-sale fee.
func (m FeeModel) FeeFor(marketplace string, amount decimal.Decimal) decimal.Decimal {
	fraction, ok := m.Fractions[marketplace]
	if !ok {
		fraction = m.DefaultFraction
	}

	fee := amount.Mul(fraction)
	if fixed, ok := m.Fixed[marketplace]; ok {
		fee = fee.Add(fixed)
	}
	return fee
}

// BasisAmount picks the price the fee applies to per the configured basis.
func (m FeeModel) BasisAmount(buyPrice, sellPrice decimal.Decimal) decimal.Decimal {
	if m.Basis == FeeBasisBuy {
		return buyPrice
	}
	return sellPrice
}

// BasisMarketplace picks the marketplace whose fee schedule applies.
func (m FeeModel) BasisMarketplace(buyMarketplace, sellMarketplace string) string {
	if m.Basis == FeeBasisBuy {
		return buyMarketplace
	}
	return sellMarketplace
}
