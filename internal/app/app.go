// Package app runs the periodic watchlist refresh: each cycle analyses
// every watched symbol and routes the resulting trade signals.
package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/market"
	"github.com/newthinker/marketlens/internal/router"
)

const (
	// DefaultInterval is the refresh period when none is configured.
	DefaultInterval = 5 * time.Minute
	// DefaultConcurrency bounds the analyses running at once in a cycle.
	DefaultConcurrency = 4

	// SignalStrategy tags signals derived from the advisor recommendation.
	SignalStrategy = "advisor"
)

// Analyzer produces a combined analysis for one symbol.
type Analyzer interface {
	Analysis(ctx context.Context, symbol string, opts market.AnalysisOptions) (*core.CombinedAnalysis, error)
}

// Recorder observes refresh cycles.
type Recorder interface {
	RecordRefreshCycle(duration float64)
	RecordSignal(strategy, action string)
	SetWatchlistSize(size int)
}

// WatchlistItem is one watched symbol.
type WatchlistItem struct {
	Symbol  string    `json:"symbol"`
	AddedAt time.Time `json:"addedAt"`
}

// Options configures an App.
type Options struct {
	Interval    time.Duration
	Concurrency int
	Logger      *zap.Logger
	Recorder    Recorder
	Now         func() time.Time
}

// App is the refresh orchestrator
type App struct {
	analyzer Analyzer
	router   *router.Router
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time

	concurrency int

	mu             sync.RWMutex
	watchlistItems []WatchlistItem
	watchlistSet   map[string]struct{}
	interval       time.Duration
	running        bool
	cancel         context.CancelFunc
	cycles         int
	lastCycle      time.Time
	lastSignals    int
}

// New creates a new App. A nil router disables signal routing.
func New(analyzer Analyzer, r *router.Router, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &App{
		analyzer:     analyzer,
		router:       r,
		logger:       opts.Logger,
		recorder:     opts.Recorder,
		now:          opts.Now,
		concurrency:  opts.Concurrency,
		watchlistSet: make(map[string]struct{}),
		interval:     opts.Interval,
	}
}

// SetWatchlist replaces the watched symbols. Invalid symbols are rejected
// before anything changes.
func (a *App) SetWatchlist(symbols []string) error {
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		sym, err := market.NormalizeSymbol(s)
		if err != nil {
			return err
		}
		normalized = append(normalized, sym)
	}

	now := a.now()
	a.mu.Lock()
	a.watchlistItems = make([]WatchlistItem, 0, len(normalized))
	a.watchlistSet = make(map[string]struct{}, len(normalized))
	for _, sym := range normalized {
		if _, dup := a.watchlistSet[sym]; dup {
			continue
		}
		a.watchlistSet[sym] = struct{}{}
		a.watchlistItems = append(a.watchlistItems, WatchlistItem{Symbol: sym, AddedAt: now})
	}
	size := len(a.watchlistItems)
	a.mu.Unlock()

	a.reportWatchlist(size)
	return nil
}

// Start runs one cycle immediately, then one per interval until ctx is
// cancelled or Stop is called.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}
	a.running = true
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	interval := a.interval
	watched := len(a.watchlistItems)
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.cancel = nil
		a.mu.Unlock()
		cancel()
	}()

	a.logger.Info("watchlist refresh starting",
		zap.Int("watchlist_count", watched),
		zap.Duration("interval", interval),
	)

	a.runCycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("watchlist refresh stopped")
			return ctx.Err()
		case <-ticker.C:
			a.runCycle(ctx)
		}
	}
}

// Stop stops the refresh loop
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// RunOnce performs a single refresh cycle and returns the number of
// signals that passed the router.
func (a *App) RunOnce(ctx context.Context) int {
	return a.runCycle(ctx)
}

func (a *App) runCycle(ctx context.Context) int {
	symbols := a.GetWatchlist()
	if len(symbols) == 0 {
		a.logger.Debug("no symbols in watchlist")
		return 0
	}

	start := time.Now()
	a.logger.Debug("starting refresh cycle", zap.Int("symbols", len(symbols)))

	var (
		mu      sync.Mutex
		signals []core.Signal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, sym := range symbols {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if sig, ok := a.refreshSymbol(gctx, sym); ok {
				mu.Lock()
				signals = append(signals, sig)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	// One batch per cycle, in watchlist order.
	slices.SortFunc(signals, func(x, y core.Signal) int {
		return slices.Index(symbols, x.Symbol) - slices.Index(symbols, y.Symbol)
	})
	routed := 0
	if a.router != nil && len(signals) > 0 {
		routed = a.router.RouteBatch(ctx, signals)
	}

	elapsed := time.Since(start)
	a.mu.Lock()
	a.cycles++
	a.lastCycle = a.now()
	a.lastSignals = routed
	a.mu.Unlock()

	if a.recorder != nil {
		a.recorder.RecordRefreshCycle(elapsed.Seconds())
	}
	a.logger.Info("refresh cycle complete",
		zap.Int("symbols", len(symbols)),
		zap.Int("signals", routed),
		zap.Duration("duration", elapsed),
	)
	return routed
}

// refreshSymbol analyses one symbol and returns its signal, if any.
func (a *App) refreshSymbol(ctx context.Context, symbol string) (core.Signal, bool) {
	analysis, err := a.analyzer.Analysis(ctx, symbol, market.AnalysisOptions{})
	if err != nil {
		a.logger.Warn("analysis failed",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return core.Signal{}, false
	}

	sig, ok := SignalFrom(analysis, a.now())
	if !ok {
		return core.Signal{}, false
	}
	if a.recorder != nil {
		a.recorder.RecordSignal(sig.Strategy, string(sig.Action))
	}
	return sig, true
}

// SignalFrom turns the advisor recommendation of an analysis into a trade
// signal. Hold recommendations and analyses without insights yield none.
func SignalFrom(analysis *core.CombinedAnalysis, now time.Time) (core.Signal, bool) {
	if analysis == nil || analysis.Insights == nil {
		return core.Signal{}, false
	}
	rec := analysis.Insights.Recommendation
	if rec.Action == "" || rec.Action == core.ActionHold {
		return core.Signal{}, false
	}

	return core.Signal{
		Symbol:     analysis.Symbol,
		Action:     rec.Action,
		Confidence: rec.Confidence / 100,
		Price:      analysis.Quote.Price,
		Reason:     strings.Join(rec.Reasoning, "; "),
		Strategy:   SignalStrategy,
		Metadata: map[string]any{
			"targetPrice": rec.TargetPrice,
			"stopLoss":    rec.StopLoss,
			"quality":     analysis.Quality.Confidence,
			"rsi":         analysis.Indicators.RSI,
		},
		GeneratedAt: now.UTC(),
	}, true
}

// Stats is a snapshot of the refresh loop.
type Stats struct {
	Running     bool          `json:"running"`
	Watchlist   int           `json:"watchlist"`
	Interval    string        `json:"interval"`
	Cycles      int           `json:"cycles"`
	LastCycle   time.Time     `json:"lastCycle,omitzero"`
	LastSignals int           `json:"lastSignals"`
	Router      *router.Stats `json:"router,omitempty"`
}

// GetStats returns application statistics
func (a *App) GetStats() Stats {
	a.mu.RLock()
	stats := Stats{
		Running:     a.running,
		Watchlist:   len(a.watchlistItems),
		Interval:    a.interval.String(),
		Cycles:      a.cycles,
		LastCycle:   a.lastCycle,
		LastSignals: a.lastSignals,
	}
	a.mu.RUnlock()

	if a.router != nil {
		rs := a.router.GetStats()
		stats.Router = &rs
	}
	return stats
}

// GetWatchlist returns the current watchlist symbols.
func (a *App) GetWatchlist() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result := make([]string, len(a.watchlistItems))
	for i, item := range a.watchlistItems {
		result[i] = item.Symbol
	}
	return result
}

// GetWatchlistItems returns the full watchlist items.
func (a *App) GetWatchlistItems() []WatchlistItem {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result := make([]WatchlistItem, len(a.watchlistItems))
	copy(result, a.watchlistItems)
	return result
}

// AddToWatchlist adds a symbol to the watchlist. It reports false when the
// symbol was already watched.
func (a *App) AddToWatchlist(symbol string) (bool, error) {
	sym, err := market.NormalizeSymbol(symbol)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	if _, exists := a.watchlistSet[sym]; exists {
		a.mu.Unlock()
		return false, nil
	}
	a.watchlistSet[sym] = struct{}{}
	a.watchlistItems = append(a.watchlistItems, WatchlistItem{Symbol: sym, AddedAt: a.now().UTC()})
	size := len(a.watchlistItems)
	a.mu.Unlock()

	a.reportWatchlist(size)
	return true, nil
}

// RemoveFromWatchlist removes a symbol from the watchlist.
func (a *App) RemoveFromWatchlist(symbol string) bool {
	sym := strings.ToUpper(strings.TrimSpace(symbol))

	a.mu.Lock()
	if _, exists := a.watchlistSet[sym]; !exists {
		a.mu.Unlock()
		return false
	}
	delete(a.watchlistSet, sym)
	for i, item := range a.watchlistItems {
		if item.Symbol == sym {
			a.watchlistItems = append(a.watchlistItems[:i], a.watchlistItems[i+1:]...)
			break
		}
	}
	size := len(a.watchlistItems)
	a.mu.Unlock()

	if a.router != nil {
		a.router.ClearCooldown(sym)
	}
	a.reportWatchlist(size)
	return true
}

func (a *App) reportWatchlist(size int) {
	if a.recorder != nil {
		a.recorder.SetWatchlistSize(size)
	}
}
