package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cryptoverse/internal/domain"
	"cryptoverse/internal/infra"

	"github.com/shopspring/decimal"
)

const (
	// BaseURL is the public CoinGecko v3 API root
	BaseURL = "https://api.coingecko.com/api/v3"

	opMarkets = "markets"
	opHistory = "history"

	maxErrorBody = 512
)

// Client is the CoinGecko REST client (Boundary Layer).
// It implements domain.MarketSource and domain.HistorySource.
type Client struct {
	baseURL    string
	apiKey     string
	vsCurrency string
	perPage    int
	page       int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client with the public defaults
func NewClient() *Client {
	return &Client{
		baseURL:    BaseURL,
		vsCurrency: "usd",
		perPage:    20,
		page:       1,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger: slog.Default().With("module", "coingecko_client"),
	}
}

// NewClientWithConfig creates a client from application configuration
func NewClientWithConfig(cfg *infra.Config) *Client {
	c := NewClient()
	if cfg.API.CoinGecko.BaseURL != "" {
		c.baseURL = strings.TrimRight(cfg.API.CoinGecko.BaseURL, "/")
	}
	if cfg.API.CoinGecko.TimeoutSec > 0 {
		c.httpClient.Timeout = time.Duration(cfg.API.CoinGecko.TimeoutSec) * time.Second
	}
	if cfg.API.Market.VsCurrency != "" {
		c.vsCurrency = strings.ToLower(cfg.API.Market.VsCurrency)
	}
	if cfg.API.Market.PerPage > 0 {
		c.perPage = cfg.API.Market.PerPage
	}
	if cfg.API.Market.Page > 0 {
		c.page = cfg.API.Market.Page
	}
	c.apiKey = cfg.API.CoinGecko.APIKey
	return c
}

// FetchMarkets fetches the top assets ordered by descending market cap.
// The upstream order is kept as-is.
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.AssetQuote, error) {
	params := url.Values{}
	params.Set("vs_currency", c.vsCurrency)
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(c.perPage))
	params.Set("page", strconv.Itoa(c.page))
	params.Set("sparkline", "false")

	var coins []marketCoin
	if err := c.get(ctx, opMarkets, "/coins/markets", params, &coins); err != nil {
		return nil, err
	}

	quotes := make([]domain.AssetQuote, 0, len(coins))
	for _, coin := range coins {
		if coin.ID == "" {
			continue
		}
		quotes = append(quotes, domain.AssetQuote{
			ID:               coin.ID,
			Symbol:           coin.Symbol,
			Name:             coin.Name,
			ImageURL:         coin.Image,
			CurrentPrice:     coin.CurrentPrice.Decimal,
			ChangePercent24h: coin.PriceChangePercentage24h.Decimal,
			MarketCap:        coin.MarketCap.Decimal,
		})
	}

	c.logger.Debug("Markets fetched", slog.Int("count", len(quotes)))
	return quotes, nil
}

// FetchHistory fetches the price series of assetID over the given window.
func (c *Client) FetchHistory(ctx context.Context, assetID string, window domain.Window) ([]domain.PricePoint, error) {
	if assetID == "" || strings.ContainsAny(assetID, "/?#") {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAsset, assetID)
	}
	if _, err := domain.ParseWindow(window.Days()); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("vs_currency", c.vsCurrency)
	params.Set("days", strconv.Itoa(window.Days()))

	var chart marketChart
	path := "/coins/" + url.PathEscape(assetID) + "/market_chart"
	if err := c.get(ctx, opHistory, path, params, &chart); err != nil {
		return nil, err
	}

	points, err := parsePrices(chart.Prices)
	if err != nil {
		return nil, &domain.UpstreamError{Op: opHistory, StatusCode: http.StatusOK, Err: err}
	}

	c.logger.Debug("History fetched",
		slog.String("asset", assetID),
		slog.Int("days", window.Days()),
		slog.Int("points", len(points)),
	)
	return points, nil
}

func parsePrices(raw [][2]json.Number) ([]domain.PricePoint, error) {
	points := make([]domain.PricePoint, 0, len(raw))
	for i, sample := range raw {
		ts, err := decimal.NewFromString(sample[0].String())
		if err != nil {
			return nil, fmt.Errorf("sample %d: bad timestamp %q: %w", i, sample[0], err)
		}
		price, err := decimal.NewFromString(sample[1].String())
		if err != nil {
			return nil, fmt.Errorf("sample %d: bad price %q: %w", i, sample[1], err)
		}
		points = append(points, domain.PricePoint{
			Timestamp: ts.IntPart(),
			Price:     price,
		})
	}
	return points, nil
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.NewNetworkError(op, err)
	}

	// Add browser-like User-Agent to avoid bot detection
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError(op, err)
	}

	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return domain.NewUpstreamError(op, resp.StatusCode, string(body))
	}

	if len(body) == 0 {
		return &domain.UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: domain.ErrEmptyResponse}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &domain.UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}

	return nil
}
