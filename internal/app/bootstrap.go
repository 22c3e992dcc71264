package app

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"cryptoverse/internal/domain"
	"cryptoverse/internal/infra"
	"cryptoverse/internal/infra/coingecko"
	"cryptoverse/internal/scheduler"
	"cryptoverse/internal/service"
	"cryptoverse/internal/web"

	"github.com/dustin/go-humanize"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Client    *coingecko.Client
	Icons     *infra.IconCache
	Scheduler *scheduler.Scheduler
	Market    *service.MarketProvider
	History   *service.HistoryProvider
	Accounts  *service.AccountService
	Server    *web.Server

	mu      sync.Mutex
	runCtx  context.Context
	syncing atomic.Bool
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration and wires every component. Nothing is started.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping CryptoVerse...")

	// 1. Load Config
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = infra.DefaultConfigPath
	}
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))

	// 3. Upstream client and icon cache
	b.Client = coingecko.NewClientWithConfig(cfg)
	b.Icons = infra.NewIconCache(cfg.Icons.Size)
	slog.Info("✅ CoinGecko client ready", slog.String("base_url", cfg.API.CoinGecko.BaseURL))

	// 4. Providers
	window, err := domain.ParseWindow(cfg.API.History.DefaultWindow)
	if err != nil {
		return err
	}
	b.Scheduler = scheduler.New()
	b.Market = service.NewMarketProvider(b.Client, b.Scheduler, cfg.MarketRefreshInterval(), infra.GlobalMetrics)
	b.History = service.NewHistoryProvider(b.Client, b.Scheduler, cfg.API.History.AssetID, window,
		cfg.HistoryRefreshInterval(), cfg.Location(), infra.GlobalMetrics)
	b.Accounts = service.NewAccountService(time.Duration(cfg.Account.SimulatedLatencyMS) * time.Millisecond)

	// 5. Web surface
	b.Server = web.NewServer(cfg.Server.Addr, web.Deps{
		Market:   b.Market,
		History:  b.History,
		Accounts: b.Accounts,
		Icons:    b.Icons,
		Metrics:  infra.GlobalMetrics,
	})

	hub := b.Server.Hub()
	b.Market.OnChange(func() {
		hub.BroadcastMarket()
		if ctx := b.runContext(); ctx != nil && b.syncing.CompareAndSwap(false, true) {
			go func() {
				defer b.syncing.Store(false)
				b.SyncIcons(ctx, b.Market.Snapshot().Data)
			}()
		}
	})
	b.History.OnChange(hub.BroadcastHistory)
	slog.Info("✅ Providers wired")

	return nil
}

// Start launches the scheduler and both providers.
func (b *Bootstrap) Start(ctx context.Context) error {
	b.mu.Lock()
	b.runCtx = ctx
	b.mu.Unlock()

	b.Scheduler.Start()
	if err := b.Market.Start(ctx); err != nil {
		return err
	}
	return b.History.Start(ctx)
}

// Stop shuts the providers down before the scheduler.
func (b *Bootstrap) Stop() {
	b.mu.Lock()
	b.runCtx = nil
	b.mu.Unlock()

	b.Market.Stop()
	b.History.Stop()
	b.Scheduler.Stop()
}

func (b *Bootstrap) runContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runCtx
}

// SyncIcons warms the icon cache for the snapshot in the background
func (b *Bootstrap) SyncIcons(ctx context.Context, quotes []domain.AssetQuote) {
	limit := b.Config.Icons.Concurrency
	if limit < 1 {
		limit = 1
	}

	var (
		wg      sync.WaitGroup
		fetched atomic.Int32
		bytes   atomic.Uint64
	)
	semaphore := make(chan struct{}, limit) // Limit concurrent downloads

	for _, q := range quotes {
		if _, ok := b.Icons.Get(q.ID); ok || q.ImageURL == "" {
			continue
		}

		wg.Add(1)
		go func(q domain.AssetQuote) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}: // Acquire
			}
			defer func() { <-semaphore }() // Release

			data, err := b.Icons.Fetch(ctx, q.ID, q.ImageURL)
			if err != nil {
				slog.Warn("Failed to fetch icon", slog.String("id", q.ID), slog.Any("error", err))
				return
			}
			fetched.Add(1)
			bytes.Add(uint64(len(data)))
		}(q)
	}

	wg.Wait()
	if n := fetched.Load(); n > 0 {
		slog.Info("✨ Icon sync completed",
			slog.Int("fetched", int(n)),
			slog.Int("cached", b.Icons.Len()),
			slog.String("size", humanize.Bytes(bytes.Load())))
	}
}
