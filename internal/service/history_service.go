package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cryptoverse/internal/domain"
	"cryptoverse/internal/infra"
	"cryptoverse/internal/query"
	"cryptoverse/internal/scheduler"

	"github.com/shopspring/decimal"
)

// HistoryErrorMessage is shown when the series cannot be loaded
const HistoryErrorMessage = "Failed to load price data. Please try again later."

// ChartPoint is one rendered point of the price chart.
type ChartPoint struct {
	Timestamp int64           `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Label     string          `json:"label"`
	Tooltip   string          `json:"tooltip"`
}

// HistoryView is the renderable state of the price chart.
type HistoryView struct {
	AssetID       string          `json:"asset_id"`
	Window        int             `json:"window"`
	WindowLabel   string          `json:"window_label"`
	Status        query.Status    `json:"status"`
	Fetching      bool            `json:"fetching"`
	Points        []ChartPoint    `json:"points"`
	PercentChange decimal.Decimal `json:"percent_change"`
	ChangeLabel   string          `json:"change_label"`
	Positive      bool            `json:"positive"`
	DisplayPrice  string          `json:"display_price"`
	Hovered       bool            `json:"hovered"`
	AxisMin       string          `json:"axis_min"`
	AxisMax       string          `json:"axis_max"`
	Error         string          `json:"error,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// HistoryProvider loads the price history of one asset for the selected window.
//
// Each window is cached under its own key. Switching windows never cancels
// the previous request; its result is cached under the old window and is
// never rendered for the new one.
type HistoryProvider struct {
	source   domain.HistorySource
	queries  *query.Client[[]domain.PricePoint]
	sched    *scheduler.Scheduler
	interval time.Duration
	assetID  string
	loc      *time.Location
	logger   *slog.Logger

	mu       sync.Mutex
	window   domain.Window
	hovered  *decimal.Decimal
	onChange func()
	handle   scheduler.Handle
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	wg       sync.WaitGroup
}

// NewHistoryProvider creates a provider for assetID starting at window.
// loc is the timezone used for axis labels; metrics may be nil.
func NewHistoryProvider(source domain.HistorySource, sched *scheduler.Scheduler, assetID string, window domain.Window, interval time.Duration, loc *time.Location, metrics *infra.Metrics) *HistoryProvider {
	if loc == nil {
		loc = time.Local
	}
	return &HistoryProvider{
		source:   source,
		queries:  query.NewClient[[]domain.PricePoint](queryHooks(metrics)),
		sched:    sched,
		interval: interval,
		assetID:  assetID,
		loc:      loc,
		window:   window,
		logger:   slog.Default().With("module", "history", "asset", assetID),
	}
}

// OnChange registers fn to run after visible state changes
func (p *HistoryProvider) OnChange(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// Start loads the current window and schedules periodic refreshes of
// whichever window is selected at tick time.
func (p *HistoryProvider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	handle, err := p.sched.Every("price_history", p.interval, p.tick)
	if err != nil {
		return fmt.Errorf("history provider: %w", err)
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.handle = handle
	p.running = true
	p.spawnLocked(p.window)

	p.logger.Info("📊 History provider started",
		slog.String("window", p.window.Label()),
		slog.Duration("interval", p.interval),
		slog.Time("next_run", handle.Next()))
	return nil
}

// Stop cancels the schedule and in-flight fetches, then waits for them.
func (p *HistoryProvider) Stop() {
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
	p.logger.Info("History provider stopped")
}

// Window returns the selected window
func (p *HistoryProvider) Window() domain.Window {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window
}

// SetWindow selects a new window, invalidates its cached series and starts
// loading it. A fetch for that window still in flight from an earlier
// selection is discarded when it lands. Selecting the current window is a
// no-op. The hover state is cleared.
func (p *HistoryProvider) SetWindow(days int) error {
	w, err := domain.ParseWindow(days)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if w == p.window {
		p.mu.Unlock()
		return nil
	}
	prev := p.window
	p.window = w
	p.hovered = nil
	p.queries.Invalidate(p.key(w))
	p.spawnLocked(w)
	p.mu.Unlock()

	p.logger.Info("Window changed", slog.String("from", prev.Label()), slog.String("to", w.Label()))
	p.notify()
	return nil
}

// Refresh fetches the selected window now and returns its state.
func (p *HistoryProvider) Refresh(ctx context.Context) query.State[[]domain.PricePoint] {
	return p.load(ctx, p.Window())
}

// Snapshot returns the cache entry of the selected window
func (p *HistoryProvider) Snapshot() query.State[[]domain.PricePoint] {
	return p.queries.Get(p.key(p.Window()))
}

// Hover shows the price of the point nearest to ts in the headline.
// It reports false when there is nothing rendered to hover.
func (p *HistoryProvider) Hover(ts int64) bool {
	p.mu.Lock()
	w := p.window
	st := p.queries.Get(p.key(w))
	if st.Status != query.StatusSuccess {
		p.mu.Unlock()
		return false
	}

	points := Downsample(st.Data, w)
	idx := NearestIndex(points, ts)
	if idx < 0 {
		p.mu.Unlock()
		return false
	}
	price := points[idx].Price
	p.hovered = &price
	p.mu.Unlock()

	p.notify()
	return true
}

// Leave restores the headline to the latest price.
func (p *HistoryProvider) Leave() {
	p.mu.Lock()
	changed := p.hovered != nil
	p.hovered = nil
	p.mu.Unlock()

	if changed {
		p.notify()
	}
}

// View renders the selected window.
func (p *HistoryProvider) View() HistoryView {
	p.mu.Lock()
	w := p.window
	hovered := p.hovered
	p.mu.Unlock()

	st := p.queries.Get(p.key(w))
	view := HistoryView{
		AssetID:     p.assetID,
		Window:      w.Days(),
		WindowLabel: w.Label(),
		Status:      st.Status,
		Fetching:    st.Fetching,
		Points:      []ChartPoint{},
		UpdatedAt:   st.UpdatedAt,
	}

	switch st.Status {
	case query.StatusFailed:
		view.Error = HistoryErrorMessage
		return view
	case query.StatusIdle, query.StatusLoading:
		return view
	}

	points := Downsample(st.Data, w)
	view.Points = make([]ChartPoint, len(points))
	for i, pt := range points {
		view.Points[i] = ChartPoint{
			Timestamp: pt.Timestamp,
			Price:     pt.Price,
			Label:     TickLabel(pt.Timestamp, w, p.loc),
			Tooltip:   TooltipLabel(pt.Timestamp, p.loc),
		}
	}

	change := PercentChange(points)
	view.PercentChange = change
	view.Positive = !change.IsNegative()
	view.ChangeLabel = FormatPercentChange(change) + " in the last " + w.Label()

	display := decimal.Zero
	if len(points) > 0 {
		display = points[len(points)-1].Price
	}
	if hovered != nil {
		display = *hovered
		view.Hovered = true
	}
	view.DisplayPrice = FormatChartPrice(display)

	lo, hi := AxisRange(points)
	view.AxisMin = FormatAxisPrice(lo)
	view.AxisMax = FormatAxisPrice(hi)
	return view
}

func (p *HistoryProvider) load(ctx context.Context, w domain.Window) query.State[[]domain.PricePoint] {
	st := p.queries.Fetch(ctx, p.key(w), func(ctx context.Context) ([]domain.PricePoint, error) {
		return p.source.FetchHistory(ctx, p.assetID, w)
	})
	if ctx.Err() != nil {
		return st
	}

	if st.Status == query.StatusFailed {
		p.logger.Warn("Price history fetch failed",
			slog.String("window", w.Label()),
			slog.String("kind", domain.FailureKind(st.Err)),
			slog.Any("error", st.Err))
	}

	if w != p.Window() {
		// Superseded by a newer selection; stays cached under its own key
		p.logger.Debug("Discarding result for previous window", slog.String("window", w.Label()))
		return st
	}

	p.notify()
	return st
}

func (p *HistoryProvider) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spawnLocked(p.window)
}

// Must be called with lock held
func (p *HistoryProvider) spawnLocked(w domain.Window) {
	if !p.running {
		return
	}
	ctx := p.ctx
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.load(ctx, w)
	}()
}

func (p *HistoryProvider) key(w domain.Window) string {
	return fmt.Sprintf("history:%s:%d", p.assetID, w.Days())
}

func (p *HistoryProvider) notify() {
	p.mu.Lock()
	fn := p.onChange
	running := p.running
	p.mu.Unlock()

	if fn != nil && running {
		fn()
	}
}
