package domain

import "context"

// MarketSource fetches the ranked market snapshot
type MarketSource interface {
	FetchMarkets(ctx context.Context) ([]AssetQuote, error)
}

// HistorySource fetches a price history series for one asset
type HistorySource interface {
	FetchHistory(ctx context.Context, assetID string, window Window) ([]PricePoint, error)
}

// IconSource resolves asset icons for the table rows
type IconSource interface {
	Fetch(ctx context.Context, id, imageURL string) ([]byte, error)
	Get(id string) ([]byte, bool)
}
