package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cryptoverse/internal/domain"
	"cryptoverse/internal/infra"
	"cryptoverse/internal/query"
	"cryptoverse/internal/scheduler"

	"github.com/shopspring/decimal"
)

type fakeHistory struct {
	mu      sync.Mutex
	series  map[domain.Window][]domain.PricePoint
	release map[domain.Window]chan struct{}
	err     error
	calls   atomic.Int32
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		series:  make(map[domain.Window][]domain.PricePoint),
		release: make(map[domain.Window]chan struct{}),
	}
}

func (f *fakeHistory) FetchHistory(ctx context.Context, assetID string, w domain.Window) ([]domain.PricePoint, error) {
	f.calls.Add(1)
	f.mu.Lock()
	points, err, release := f.series[w], f.err, f.release[w]
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return points, err
}

func (f *fakeHistory) block(w domain.Window) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.release[w] = ch
	return ch
}

func newHistoryProvider(source domain.HistorySource, w domain.Window) *HistoryProvider {
	return NewHistoryProvider(source, scheduler.New(), "bitcoin", w, time.Hour, time.UTC, nil)
}

func TestHistoryProvider_View(t *testing.T) {
	source := newFakeHistory()
	source.series[domain.Window7] = series(100, 120, 90, 110)
	p := newHistoryProvider(source, domain.Window7)

	p.Refresh(context.Background())
	v := p.View()

	if v.Status != query.StatusSuccess || len(v.Points) != 4 {
		t.Fatalf("Expected 4 points, got %s/%d", v.Status, len(v.Points))
	}
	if v.WindowLabel != "7D" || v.Window != 7 {
		t.Errorf("Unexpected window %d %s", v.Window, v.WindowLabel)
	}
	if !v.PercentChange.Equal(decimal.NewFromInt(10)) || v.ChangeLabel != "+10.00% in the last 7D" || !v.Positive {
		t.Errorf("Unexpected change %v %q", v.PercentChange, v.ChangeLabel)
	}
	if v.DisplayPrice != "$110.00" || v.Hovered {
		t.Errorf("Expected latest price, got %s", v.DisplayPrice)
	}
	if v.AxisMin != "$90" || v.AxisMax != "$120" {
		t.Errorf("Unexpected axis %s..%s", v.AxisMin, v.AxisMax)
	}
	if v.Points[0].Label != "Thu" {
		t.Errorf("Expected weekday label, got %s", v.Points[0].Label)
	}
}

func TestHistoryProvider_DownsamplesDay(t *testing.T) {
	source := newFakeHistory()
	raw := make([]int64, 24)
	for i := range raw {
		raw[i] = 100
	}
	source.series[domain.Window1] = series(raw...)
	p := newHistoryProvider(source, domain.Window1)

	p.Refresh(context.Background())
	if n := len(p.View().Points); n != 4 {
		t.Errorf("Expected 4 points, got %d", n)
	}
}

func TestHistoryProvider_Failure(t *testing.T) {
	source := newFakeHistory()
	source.series[domain.Window1] = series(100, 110)
	p := newHistoryProvider(source, domain.Window1)
	p.Refresh(context.Background())

	source.mu.Lock()
	source.err = domain.NewNetworkError("history", errors.New("connection reset"))
	source.mu.Unlock()
	p.Refresh(context.Background())

	v := p.View()
	if v.Status != query.StatusFailed || v.Error != HistoryErrorMessage || len(v.Points) != 0 {
		t.Errorf("Expected failed empty view, got %+v", v)
	}
}

func TestHistoryProvider_SetWindow(t *testing.T) {
	source := newFakeHistory()
	p := newHistoryProvider(source, domain.Window1)

	if err := p.SetWindow(14); !errors.Is(err, domain.ErrInvalidWindow) {
		t.Errorf("Expected ErrInvalidWindow, got %v", err)
	}
	if p.Window() != domain.Window1 {
		t.Error("Window should not change on invalid input")
	}
	if err := p.SetWindow(30); err != nil {
		t.Fatalf("SetWindow failed: %v", err)
	}
	if p.Window() != domain.Window30 {
		t.Errorf("Expected 30D, got %s", p.Window().Label())
	}
}

func TestHistoryProvider_WindowSwitchOutOfOrder(t *testing.T) {
	source := newFakeHistory()
	source.series[domain.Window1] = series(1, 2, 3)
	source.series[domain.Window7] = series(700, 770)
	releaseDay := source.block(domain.Window1)
	releaseWeek := source.block(domain.Window7)

	p := newHistoryProvider(source, domain.Window1)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	waitFor(t, func() bool { return source.calls.Load() == 1 })
	if err := p.SetWindow(7); err != nil {
		t.Fatalf("SetWindow failed: %v", err)
	}
	waitFor(t, func() bool { return source.calls.Load() == 2 })

	// Newer window lands first, older lands last
	close(releaseWeek)
	waitFor(t, func() bool { return p.View().Status == query.StatusSuccess })
	close(releaseDay)
	waitFor(t, func() bool {
		return p.queries.Get(p.key(domain.Window1)).Status == query.StatusSuccess
	})

	v := p.View()
	if v.Window != 7 || len(v.Points) != 2 {
		t.Fatalf("Expected the 7D series, got window %d with %d points", v.Window, len(v.Points))
	}
	if v.DisplayPrice != "$770.00" {
		t.Errorf("Expected $770.00, got %s", v.DisplayPrice)
	}
}

func TestHistoryProvider_Hover(t *testing.T) {
	source := newFakeHistory()
	source.series[domain.Window7] = series(100, 120, 90, 110)
	source.series[domain.Window30] = series(50, 60)
	p := newHistoryProvider(source, domain.Window7)

	if p.Hover(0) {
		t.Error("Hover should fail before data is loaded")
	}

	p.Refresh(context.Background())
	if !p.Hover(3_700_000) {
		t.Fatal("Hover failed")
	}
	v := p.View()
	if !v.Hovered || v.DisplayPrice != "$120.00" {
		t.Errorf("Expected hovered $120.00, got %v %s", v.Hovered, v.DisplayPrice)
	}

	p.Leave()
	if v := p.View(); v.Hovered || v.DisplayPrice != "$110.00" {
		t.Errorf("Expected latest price after leave, got %s", v.DisplayPrice)
	}

	p.Hover(0)
	if err := p.SetWindow(30); err != nil {
		t.Fatalf("SetWindow failed: %v", err)
	}
	if p.View().Hovered {
		t.Error("Hover should be cleared on window switch")
	}
}

func TestHistoryProvider_StopDropsLateResults(t *testing.T) {
	source := newFakeHistory()
	source.series[domain.Window1] = series(1, 2)
	source.block(domain.Window1)
	p := newHistoryProvider(source, domain.Window1)

	var changes atomic.Int32
	p.OnChange(func() { changes.Add(1) })

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { return source.calls.Load() == 1 })
	p.Stop()

	if changes.Load() != 0 {
		t.Errorf("Expected no notifications, got %d", changes.Load())
	}
	v := p.View()
	if v.Status != query.StatusIdle || v.Fetching || v.Error != "" {
		t.Errorf("Expected untouched idle view after Stop, got %s fetching=%v error=%q", v.Status, v.Fetching, v.Error)
	}
}

func TestHistoryProvider_IdleViewIsEmpty(t *testing.T) {
	p := newHistoryProvider(newFakeHistory(), domain.Window1)

	v := p.View()
	if v.Status != query.StatusIdle || len(v.Points) != 0 {
		t.Fatalf("Expected idle empty view, got %s/%d", v.Status, len(v.Points))
	}
	if v.DisplayPrice != "" || v.ChangeLabel != "" || v.AxisMin != "" || v.AxisMax != "" {
		t.Errorf("Idle view should carry no derived values, got %+v", v)
	}
	if v.WindowLabel != "24H" {
		t.Errorf("Expected 24H, got %s", v.WindowLabel)
	}
}

func TestHistoryProvider_ReselectDiscardsOlderFetch(t *testing.T) {
	source := newFakeHistory()
	source.series[domain.Window1] = series(1, 2, 3, 4, 5, 6, 7)
	release := source.block(domain.Window1)
	metrics := &infra.Metrics{}
	p := NewHistoryProvider(source, scheduler.New(), "bitcoin", domain.Window1, time.Hour, time.UTC, metrics)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()
	waitFor(t, func() bool { return source.calls.Load() == 1 })

	if err := p.SetWindow(7); err != nil {
		t.Fatalf("SetWindow failed: %v", err)
	}
	waitFor(t, func() bool { return source.calls.Load() == 2 })

	// Back to 24H while the first 24H fetch is still pending
	source.mu.Lock()
	source.series[domain.Window1] = series(10, 20)
	source.mu.Unlock()
	if err := p.SetWindow(1); err != nil {
		t.Fatalf("SetWindow failed: %v", err)
	}
	waitFor(t, func() bool { return source.calls.Load() == 3 })

	close(release)
	waitFor(t, func() bool {
		st := p.Snapshot()
		return st.Status == query.StatusSuccess && !st.Fetching
	})

	v := p.View()
	if len(v.Points) != 1 || v.DisplayPrice != "$10.00" {
		t.Errorf("Expected the newer 24H series, got %d points, %s", len(v.Points), v.DisplayPrice)
	}
	if n := metrics.Snapshot().StaleDiscarded; n != 1 {
		t.Errorf("Expected 1 stale discard, got %d", n)
	}
}
