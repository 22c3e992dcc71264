package coingecko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cryptoverse/internal/domain"
	"cryptoverse/internal/infra"

	"github.com/shopspring/decimal"
)

const marketsFixture = `[
  {"id":"bitcoin","symbol":"btc","name":"Bitcoin","image":"https://img/btc.png","current_price":67123.45,"market_cap":1320000000000,"market_cap_rank":1,"price_change_percentage_24h":2.5},
  {"id":"ethereum","symbol":"eth","name":"Ethereum","image":"https://img/eth.png","current_price":3456.7,"market_cap":415000000000,"market_cap_rank":2,"price_change_percentage_24h":-1.25},
  {"id":"shiba-inu","symbol":"shib","name":"Shiba Inu","image":"https://img/shib.png","current_price":0.00002345,"market_cap":13800000000,"market_cap_rank":3,"price_change_percentage_24h":null}
]`

const chartFixture = `{"prices":[[1711843200000,69000.5],[1711846800000,69100.25],[1711850400000,68950]],"market_caps":[],"total_volumes":[]}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &infra.Config{}
	cfg.API.CoinGecko.BaseURL = server.URL
	cfg.API.CoinGecko.APIKey = "demo"
	cfg.API.Market.VsCurrency = "USD"
	cfg.API.Market.PerPage = 20
	cfg.API.Market.Page = 1
	return NewClientWithConfig(cfg)
}

func TestClient_FetchMarkets(t *testing.T) {
	var query map[string]string
	var apiKey string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/markets" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		apiKey = r.Header.Get("x-cg-demo-api-key")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(marketsFixture))
	})

	quotes, err := client.FetchMarkets(context.Background())
	if err != nil {
		t.Fatalf("FetchMarkets failed: %v", err)
	}

	want := map[string]string{
		"vs_currency": "usd",
		"order":       "market_cap_desc",
		"per_page":    "20",
		"page":        "1",
		"sparkline":   "false",
	}
	for k, v := range want {
		if query[k] != v {
			t.Errorf("query %s = %q, want %q", k, query[k], v)
		}
	}
	if apiKey != "demo" {
		t.Errorf("Expected api key header, got %q", apiKey)
	}

	if len(quotes) != 3 {
		t.Fatalf("Expected 3 quotes, got %d", len(quotes))
	}
	// Upstream order is preserved
	if quotes[0].ID != "bitcoin" || quotes[1].ID != "ethereum" || quotes[2].ID != "shiba-inu" {
		t.Errorf("Order changed: %s, %s, %s", quotes[0].ID, quotes[1].ID, quotes[2].ID)
	}
	if !quotes[0].CurrentPrice.Equal(decimal.RequireFromString("67123.45")) {
		t.Errorf("Expected 67123.45, got %v", quotes[0].CurrentPrice)
	}
	if !quotes[1].ChangePercent24h.Equal(decimal.RequireFromString("-1.25")) {
		t.Errorf("Expected -1.25, got %v", quotes[1].ChangePercent24h)
	}
	if !quotes[2].ChangePercent24h.IsZero() {
		t.Errorf("null change should decode as zero, got %v", quotes[2].ChangePercent24h)
	}
	if quotes[0].ImageURL != "https://img/btc.png" {
		t.Errorf("Unexpected image url %s", quotes[0].ImageURL)
	}
}

func TestClient_FetchHistory(t *testing.T) {
	var gotDays string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/bitcoin/market_chart" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		gotDays = r.URL.Query().Get("days")
		w.Write([]byte(chartFixture))
	})

	points, err := client.FetchHistory(context.Background(), "bitcoin", domain.Window7)
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}
	if gotDays != "7" {
		t.Errorf("Expected days=7, got %s", gotDays)
	}
	if len(points) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(points))
	}
	if points[0].Timestamp != 1711843200000 {
		t.Errorf("Unexpected timestamp %d", points[0].Timestamp)
	}
	if !points[1].Price.Equal(decimal.RequireFromString("69100.25")) {
		t.Errorf("Unexpected price %v", points[1].Price)
	}
}

func TestClient_FetchHistory_InvalidInput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("No request expected")
	})

	if _, err := client.FetchHistory(context.Background(), "bitcoin", domain.Window(14)); !errors.Is(err, domain.ErrInvalidWindow) {
		t.Errorf("Expected ErrInvalidWindow, got %v", err)
	}
	if _, err := client.FetchHistory(context.Background(), "", domain.Window1); !errors.Is(err, domain.ErrInvalidAsset) {
		t.Errorf("Expected ErrInvalidAsset, got %v", err)
	}
}

func TestClient_UpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"status":{"error_code":429}}`))
	})

	_, err := client.FetchMarkets(context.Background())
	var ue *domain.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("Expected UpstreamError, got %T: %v", err, err)
	}
	if ue.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", ue.StatusCode)
	}
}

func TestClient_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices":"nope"}`))
	})

	_, err := client.FetchHistory(context.Background(), "bitcoin", domain.Window1)
	if domain.FailureKind(err) != domain.KindUpstream {
		t.Errorf("Expected upstream failure, got %v", err)
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	cfg := &infra.Config{}
	cfg.API.CoinGecko.BaseURL = url
	client := NewClientWithConfig(cfg)

	_, err := client.FetchMarkets(context.Background())
	var ne *domain.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("Expected NetworkError, got %T: %v", err, err)
	}
	if ne.Op != "markets" {
		t.Errorf("Expected op markets, got %s", ne.Op)
	}
}
