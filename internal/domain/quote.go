package domain

import "github.com/shopspring/decimal"

// AssetQuote is one row of the ranked market snapshot.
type AssetQuote struct {
	ID               string          `json:"id"`
	Symbol           string          `json:"symbol"`
	Name             string          `json:"name"`
	ImageURL         string          `json:"image_url"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	ChangePercent24h decimal.Decimal `json:"change_percent_24h"`
	MarketCap        decimal.Decimal `json:"market_cap"`
}

// ChangeDirection returns "up", "down", or "flat"
func (q *AssetQuote) ChangeDirection() string {
	if q.ChangePercent24h.IsPositive() {
		return "up"
	}
	if q.ChangePercent24h.IsNegative() {
		return "down"
	}
	return "flat"
}

// PricePoint is a single sample of a price history series.
type PricePoint struct {
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	Price     decimal.Decimal `json:"price"`
}
