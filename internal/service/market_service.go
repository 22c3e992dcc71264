package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cryptoverse/internal/domain"
	"cryptoverse/internal/infra"
	"cryptoverse/internal/query"
	"cryptoverse/internal/scheduler"
)

const (
	// MarketErrorMessage is shown when the snapshot cannot be loaded
	MarketErrorMessage = "Failed to load crypto data. Please try again later."
	// NoMatchMessage is shown when the search filter matches nothing
	NoMatchMessage = "No coins found matching your search."
)

// QuoteRow is one rendered row of the market table.
type QuoteRow struct {
	Rank      int    `json:"rank"`
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url"`
	Price     string `json:"price"`
	Change    string `json:"change"`
	Direction string `json:"direction"`
	MarketCap string `json:"market_cap"`
}

// MarketView is the renderable state of the market table.
type MarketView struct {
	Status    query.Status `json:"status"`
	Fetching  bool         `json:"fetching"`
	Search    string       `json:"search"`
	Rows      []QuoteRow   `json:"rows"`
	Total     int          `json:"total"`
	Error     string       `json:"error,omitempty"`
	Empty     string       `json:"empty,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// MarketProvider keeps the ranked market snapshot fresh.
// The snapshot is loaded once on Start and then refreshed on a fixed interval.
type MarketProvider struct {
	source   domain.MarketSource
	queries  *query.Client[[]domain.AssetQuote]
	sched    *scheduler.Scheduler
	interval time.Duration
	key      string
	logger   *slog.Logger

	mu       sync.Mutex
	onChange func()
	handle   scheduler.Handle
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	wg       sync.WaitGroup
}

// NewMarketProvider creates a provider. metrics may be nil.
func NewMarketProvider(source domain.MarketSource, sched *scheduler.Scheduler, interval time.Duration, metrics *infra.Metrics) *MarketProvider {
	return &MarketProvider{
		source:   source,
		queries:  query.NewClient[[]domain.AssetQuote](queryHooks(metrics)),
		sched:    sched,
		interval: interval,
		key:      "markets",
		logger:   slog.Default().With("module", "market"),
	}
}

// OnChange registers fn to run after every applied refresh
func (p *MarketProvider) OnChange(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// Start performs the initial load and schedules periodic refreshes.
func (p *MarketProvider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	handle, err := p.sched.Every("market_snapshot", p.interval, p.tick)
	if err != nil {
		return fmt.Errorf("market provider: %w", err)
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.handle = handle
	p.running = true
	p.spawnLocked()

	p.logger.Info("📈 Market provider started",
		slog.Duration("interval", p.interval),
		slog.Time("next_run", handle.Next()))
	return nil
}

// Stop cancels the schedule and any in-flight fetch, then waits for them.
// A cancelled fetch leaves the snapshot as it was and nothing is published.
func (p *MarketProvider) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.handle.Cancel()
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Market provider stopped")
}

// Refresh fetches the snapshot now and returns the resulting state.
// Concurrent callers share one upstream request.
func (p *MarketProvider) Refresh(ctx context.Context) query.State[[]domain.AssetQuote] {
	st := p.queries.Fetch(ctx, p.key, p.source.FetchMarkets)
	if ctx.Err() != nil {
		// Cancelled fetches are dropped by the query client
		return st
	}
	if st.Status == query.StatusFailed {
		p.logger.Warn("Market snapshot fetch failed",
			slog.String("kind", domain.FailureKind(st.Err)),
			slog.Any("error", st.Err))
	} else {
		p.logger.Debug("Market snapshot updated", slog.Int("count", len(st.Data)))
	}

	p.notify()
	return st
}

// Snapshot returns the current cache entry
func (p *MarketProvider) Snapshot() query.State[[]domain.AssetQuote] {
	return p.queries.Get(p.key)
}

// View renders the snapshot filtered by search.
func (p *MarketProvider) View(search string) MarketView {
	st := p.Snapshot()
	view := MarketView{
		Status:    st.Status,
		Fetching:  st.Fetching,
		Search:    search,
		Rows:      []QuoteRow{},
		Total:     len(st.Data),
		UpdatedAt: st.UpdatedAt,
	}

	switch st.Status {
	case query.StatusFailed:
		view.Error = MarketErrorMessage
		return view
	case query.StatusIdle, query.StatusLoading:
		return view
	}

	quotes := FilterQuotes(st.Data, search)
	if len(quotes) == 0 {
		view.Empty = NoMatchMessage
		return view
	}

	view.Rows = make([]QuoteRow, len(quotes))
	for i, q := range quotes {
		view.Rows[i] = QuoteRow{
			Rank:      i + 1,
			ID:        q.ID,
			Symbol:    strings.ToUpper(q.Symbol),
			Name:      q.Name,
			ImageURL:  q.ImageURL,
			Price:     FormatPrice(q.CurrentPrice),
			Change:    FormatChange(q.ChangePercent24h),
			Direction: q.ChangeDirection(),
			MarketCap: FormatMarketCap(q.MarketCap),
		}
	}
	return view
}

func (p *MarketProvider) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spawnLocked()
}

// Must be called with lock held
func (p *MarketProvider) spawnLocked() {
	if !p.running {
		return
	}
	ctx := p.ctx
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Refresh(ctx)
	}()
}

func (p *MarketProvider) notify() {
	p.mu.Lock()
	fn := p.onChange
	running := p.running
	p.mu.Unlock()

	if fn != nil && running {
		fn()
	}
}
