package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/market"
	"github.com/newthinker/marketlens/internal/notifier"
	"github.com/newthinker/marketlens/internal/router"
)

var testNow = time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

type fakeAnalyzer struct {
	mu       sync.Mutex
	results  map[string]*core.CombinedAnalysis
	requests []string
}

func (f *fakeAnalyzer) Analysis(ctx context.Context, symbol string, opts market.AnalysisOptions) (*core.CombinedAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, symbol)
	if a, ok := f.results[symbol]; ok {
		return a, nil
	}
	return nil, core.WrapError(core.ErrNoDataAvailable, errors.New(symbol))
}

type mockNotifier struct {
	mu       sync.Mutex
	received []core.Signal
	batches  int
}

func (m *mockNotifier) Name() string { return "mock" }
func (m *mockNotifier) Send(ctx context.Context, sig core.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, sig)
	return nil
}
func (m *mockNotifier) SendBatch(ctx context.Context, signals []core.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, signals...)
	m.batches++
	return nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	cycles    int
	signals   map[string]int
	watchlist int
}

func (r *fakeRecorder) RecordRefreshCycle(float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles++
}

func (r *fakeRecorder) RecordSignal(strategy, action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals[strategy+"/"+action]++
}

func (r *fakeRecorder) SetWatchlistSize(size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchlist = size
}

func analysisWith(symbol string, action core.Action, confidence float64) *core.CombinedAnalysis {
	return &core.CombinedAnalysis{
		Symbol: symbol,
		Quote:  core.Quote{Symbol: symbol, Price: 100},
		Insights: &core.Insights{
			Recommendation: core.Recommendation{
				Action:      action,
				Confidence:  confidence,
				Reasoning:   []string{"RSI oversold", "positive sentiment"},
				TargetPrice: 105,
				StopLoss:    95,
			},
		},
	}
}

func newTestApp(t *testing.T, analyzer Analyzer) (*App, *mockNotifier, *fakeRecorder) {
	t.Helper()
	registry := notifier.NewRegistry()
	mock := &mockNotifier{}
	require.NoError(t, registry.Register(mock))

	r := router.New(router.Config{MinConfidence: 0.5, CooldownDuration: time.Hour}, registry, nil)
	rec := &fakeRecorder{signals: map[string]int{}}
	a := New(analyzer, r, Options{
		Interval: time.Hour,
		Recorder: rec,
		Now:      func() time.Time { return testNow },
	})
	return a, mock, rec
}

func TestSignalFrom(t *testing.T) {
	sig, ok := SignalFrom(analysisWith("AAPL", core.ActionBuy, 75), testNow)
	require.True(t, ok)

	assert.Equal(t, "AAPL", sig.Symbol)
	assert.Equal(t, core.ActionBuy, sig.Action)
	assert.InDelta(t, 0.75, sig.Confidence, 1e-9)
	assert.Equal(t, 100.0, sig.Price)
	assert.Equal(t, "RSI oversold; positive sentiment", sig.Reason)
	assert.Equal(t, SignalStrategy, sig.Strategy)
	assert.Equal(t, 105.0, sig.Metadata["targetPrice"])
	assert.Equal(t, testNow, sig.GeneratedAt)

	_, ok = SignalFrom(analysisWith("AAPL", core.ActionHold, 90), testNow)
	assert.False(t, ok, "hold yields no signal")

	_, ok = SignalFrom(&core.CombinedAnalysis{Symbol: "AAPL"}, testNow)
	assert.False(t, ok, "missing insights yield no signal")
}

func TestApp_RunOnce(t *testing.T) {
	analyzer := &fakeAnalyzer{results: map[string]*core.CombinedAnalysis{
		"AAPL": analysisWith("AAPL", core.ActionBuy, 80),
		"MSFT": analysisWith("MSFT", core.ActionHold, 80),
		"TSLA": analysisWith("TSLA", core.ActionSell, 20), // below router threshold
	}}
	a, mock, rec := newTestApp(t, analyzer)
	require.NoError(t, a.SetWatchlist([]string{"aapl", "MSFT", "TSLA", "ZZZZ"}))

	routed := a.RunOnce(context.Background())

	assert.Equal(t, 1, routed)
	require.Len(t, mock.received, 1)
	assert.Equal(t, "AAPL", mock.received[0].Symbol)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT", "TSLA", "ZZZZ"}, analyzer.requests)

	assert.Equal(t, 1, rec.cycles)
	assert.Equal(t, 1, rec.signals["advisor/buy"])
	assert.Equal(t, 1, rec.signals["advisor/sell"])
	assert.Equal(t, 4, rec.watchlist)

	stats := a.GetStats()
	assert.Equal(t, 1, stats.Cycles)
	assert.Equal(t, 1, stats.LastSignals)
	require.NotNil(t, stats.Router)
	assert.Equal(t, 1, stats.Router.CooldownsActive)
}

func TestApp_RunOnce_OneBatchPerCycle(t *testing.T) {
	analyzer := &fakeAnalyzer{results: map[string]*core.CombinedAnalysis{
		"AAPL": analysisWith("AAPL", core.ActionBuy, 80),
		"MSFT": analysisWith("MSFT", core.ActionSell, 70),
		"NVDA": analysisWith("NVDA", core.ActionBuy, 90),
	}}
	a, mock, _ := newTestApp(t, analyzer)
	require.NoError(t, a.SetWatchlist([]string{"NVDA", "AAPL", "MSFT"}))

	assert.Equal(t, 3, a.RunOnce(context.Background()))
	assert.Equal(t, 1, mock.batches)
	require.Len(t, mock.received, 3)
	assert.Equal(t, "NVDA", mock.received[0].Symbol)
	assert.Equal(t, "AAPL", mock.received[1].Symbol)
	assert.Equal(t, "MSFT", mock.received[2].Symbol)

	// Same directions again are held back by the cooldown: nothing is sent.
	assert.Zero(t, a.RunOnce(context.Background()))
	assert.Equal(t, 1, mock.batches)
}

func TestApp_RunOnce_EmptyWatchlist(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	a, _, rec := newTestApp(t, analyzer)

	assert.Equal(t, 0, a.RunOnce(context.Background()))
	assert.Empty(t, analyzer.requests)
	assert.Equal(t, 0, rec.cycles)
}

func TestApp_Watchlist(t *testing.T) {
	a, _, rec := newTestApp(t, &fakeAnalyzer{})

	added, err := a.AddToWatchlist(" aapl ")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = a.AddToWatchlist("AAPL")
	require.NoError(t, err)
	assert.False(t, added, "duplicates are ignored")

	_, err = a.AddToWatchlist("not a symbol!")
	assert.True(t, errors.Is(err, core.ErrInvalidSymbol))

	_, _ = a.AddToWatchlist("BRK.B")
	assert.Equal(t, []string{"AAPL", "BRK.B"}, a.GetWatchlist())
	assert.Equal(t, testNow, a.GetWatchlistItems()[0].AddedAt)
	assert.Equal(t, 2, rec.watchlist)

	assert.True(t, a.RemoveFromWatchlist("aapl"))
	assert.False(t, a.RemoveFromWatchlist("AAPL"))
	assert.Equal(t, []string{"BRK.B"}, a.GetWatchlist())
	assert.Equal(t, 1, rec.watchlist)
}

func TestApp_SetWatchlist_RejectsInvalid(t *testing.T) {
	a, _, _ := newTestApp(t, &fakeAnalyzer{})
	require.NoError(t, a.SetWatchlist([]string{"AAPL"}))

	err := a.SetWatchlist([]string{"MSFT", "???"})
	assert.True(t, errors.Is(err, core.ErrInvalidSymbol))
	assert.Equal(t, []string{"AAPL"}, a.GetWatchlist(), "watchlist unchanged on error")
}

func TestApp_StartStop(t *testing.T) {
	analyzer := &fakeAnalyzer{results: map[string]*core.CombinedAnalysis{
		"AAPL": analysisWith("AAPL", core.ActionBuy, 80),
	}}
	a, mock, _ := newTestApp(t, analyzer)
	require.NoError(t, a.SetWatchlist([]string{"AAPL"}))

	done := make(chan error, 1)
	go func() { done <- a.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		mock.mu.Lock()
		defer mock.mu.Unlock()
		return len(mock.received) == 1
	}, time.Second, 5*time.Millisecond, "first cycle runs immediately")

	assert.True(t, a.GetStats().Running)
	assert.Error(t, a.Start(context.Background()), "second Start is rejected")

	a.Stop()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.False(t, a.GetStats().Running)
}

func TestApp_RemoveFromWatchlist_ClearsCooldown(t *testing.T) {
	analyzer := &fakeAnalyzer{results: map[string]*core.CombinedAnalysis{
		"AAPL": analysisWith("AAPL", core.ActionBuy, 80),
	}}
	a, mock, _ := newTestApp(t, analyzer)
	require.NoError(t, a.SetWatchlist([]string{"AAPL"}))

	a.RunOnce(context.Background())
	require.Equal(t, 1, a.GetStats().Router.CooldownsActive)

	require.True(t, a.RemoveFromWatchlist("AAPL"))
	assert.Zero(t, a.GetStats().Router.CooldownsActive)

	_, err := a.AddToWatchlist("AAPL")
	require.NoError(t, err)
	a.RunOnce(context.Background())
	assert.Len(t, mock.received, 2, "re-added symbol is not held by the old cooldown")
}
