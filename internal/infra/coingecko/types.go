package coingecko

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// marketCoin is one element of the /coins/markets response
type marketCoin struct {
	ID                       string              `json:"id"`
	Symbol                   string              `json:"symbol"`
	Name                     string              `json:"name"`
	Image                    string              `json:"image"`
	CurrentPrice             decimal.NullDecimal `json:"current_price"`
	MarketCap                decimal.NullDecimal `json:"market_cap"`
	MarketCapRank            *int                `json:"market_cap_rank"`
	PriceChangePercentage24h decimal.NullDecimal `json:"price_change_percentage_24h"`
	LastUpdated              string              `json:"last_updated"`
}

// marketChart is the /coins/{id}/market_chart response.
// Each sample is [timestamp_ms, value].
type marketChart struct {
	Prices       [][2]json.Number `json:"prices"`
	MarketCaps   [][2]json.Number `json:"market_caps"`
	TotalVolumes [][2]json.Number `json:"total_volumes"`
}
