package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordCache(class, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[outcome]++
}

func newTestStore(t *testing.T) (*Store, *FakeClock, *MemoryBackend) {
	t.Helper()
	clock := NewFakeClock(time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC))
	backend := NewMemoryBackend()
	return NewStore(backend, WithClock(clock)), clock, backend
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)
	key := PolygonKey("prev", "aapl", ClassQuote)

	require.NoError(t, store.Put(ctx, key, "polygon", quote{Symbol: "AAPL", Price: 190}))

	got, ok, err := Load[quote](ctx, store, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 190.0, got.Price)

	env, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "polygon", env.Source)
}

func TestStore_ExpiresAtTTL(t *testing.T) {
	ctx := context.Background()
	store, clock, backend := newTestStore(t)
	key := PolygonKey("prev", "AAPL", ClassQuote)

	require.NoError(t, store.Put(ctx, key, "polygon", quote{Price: 1}))

	clock.Advance(5*time.Minute - time.Millisecond)
	_, ok, _ := store.Get(ctx, key)
	assert.True(t, ok, "entry younger than TTL should hit")

	clock.Advance(time.Millisecond)
	_, ok, _ = store.Get(ctx, key)
	assert.False(t, ok, "entry at exactly TTL should miss")
	assert.Equal(t, 0, backend.Len(), "expired entry should be evicted on read")
}

func TestStore_AlphaVantageTTL(t *testing.T) {
	ctx := context.Background()
	store, clock, _ := newTestStore(t)
	key := AlphaVantageKey("global_quote", "IBM")

	require.NoError(t, store.Put(ctx, key, "alpha_vantage", quote{Price: 2}))

	clock.Advance(23 * time.Hour)
	_, ok, _ := store.Get(ctx, key)
	assert.True(t, ok)

	clock.Advance(time.Hour)
	_, ok, _ = store.Get(ctx, key)
	assert.False(t, ok)
}

func TestStore_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	store, clock, _ := newTestStore(t)
	key := FinnhubKey("quote", "MSFT", ClassQuote)

	require.NoError(t, store.Put(ctx, key, "finnhub", quote{Price: 1}))
	clock.Advance(4 * time.Minute)
	require.NoError(t, store.Put(ctx, key, "finnhub", quote{Price: 2}))
	clock.Advance(4 * time.Minute)

	got, ok, err := Load[quote](ctx, store, key)
	require.NoError(t, err)
	require.True(t, ok, "overwrite should reset the timestamp")
	assert.Equal(t, 2.0, got.Price)
}

func TestStore_StaleAfterEviction(t *testing.T) {
	ctx := context.Background()
	store, clock, _ := newTestStore(t)
	key := PolygonKey("prev", "AAPL", ClassQuote)

	require.NoError(t, store.Put(ctx, key, "polygon", quote{Price: 150}))
	clock.Advance(10 * time.Minute)

	_, ok, _ := store.Get(ctx, key)
	require.False(t, ok)

	got, storedAt, ok := LoadStale[quote](ctx, store, key)
	require.True(t, ok, "lazily evicted entry should still be readable as stale")
	assert.Equal(t, 150.0, got.Price)
	assert.Equal(t, time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC), storedAt.UTC())
}

func TestStore_StaleBeforeEviction(t *testing.T) {
	ctx := context.Background()
	store, clock, _ := newTestStore(t)
	key := PolygonKey("prev", "AAPL", ClassQuote)

	require.NoError(t, store.Put(ctx, key, "polygon", quote{Price: 150}))
	clock.Advance(time.Hour)

	got, _, ok := LoadStale[quote](ctx, store, key)
	require.True(t, ok)
	assert.Equal(t, 150.0, got.Price)

	_, _, ok = LoadStale[quote](ctx, store, PolygonKey("prev", "MSFT", ClassQuote))
	assert.False(t, ok)
}

func TestStore_StaleLimit(t *testing.T) {
	ctx := context.Background()
	clock := NewFakeClock(time.Now())
	store := NewStore(NewMemoryBackend(), WithClock(clock), WithStaleEntries(1))

	a := PolygonKey("prev", "A", ClassQuote)
	b := PolygonKey("prev", "B", ClassQuote)
	require.NoError(t, store.Put(ctx, a, "polygon", quote{Price: 1}))
	require.NoError(t, store.Put(ctx, b, "polygon", quote{Price: 2}))
	clock.Advance(time.Hour)
	store.Get(ctx, a)
	store.Get(ctx, b)

	_, _, ok := LoadStale[quote](ctx, store, a)
	assert.False(t, ok, "oldest stale entry should be dropped")
	_, _, ok = LoadStale[quote](ctx, store, b)
	assert.True(t, ok)
}

func TestStore_Invalidate(t *testing.T) {
	ctx := context.Background()
	store, _, backend := newTestStore(t)

	require.NoError(t, store.Put(ctx, PolygonKey("prev", "AAPL", ClassQuote), "polygon", 1))
	require.NoError(t, store.Put(ctx, PolygonKey("prev", "MSFT", ClassQuote), "polygon", 2))
	require.NoError(t, store.Put(ctx, FinnhubKey("quote", "AAPL", ClassQuote), "finnhub", 3))

	n, err := store.Invalidate(ctx, PrefixPolygon)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, backend.Len())

	_, ok, _ := store.Get(ctx, FinnhubKey("quote", "AAPL", ClassQuote))
	assert.True(t, ok)
}

func TestStore_InvalidateSymbol(t *testing.T) {
	ctx := context.Background()
	store, _, backend := newTestStore(t)

	require.NoError(t, store.Put(ctx, PolygonKey("prev", "AAPL", ClassQuote), "polygon", 1))
	require.NoError(t, store.Put(ctx, AlphaVantageKey("GLOBAL_QUOTE", "AAPL"), "alpha_vantage", 2))
	require.NoError(t, store.Put(ctx, AnalysisKey("aapl"), "combined", 3))
	require.NoError(t, store.Put(ctx, PolygonKey("prev", "MSFT", ClassQuote), "polygon", 4))

	require.NoError(t, store.Put(ctx, PolygonKey("prev", "V", ClassQuote), "polygon", 5))

	n, err := store.InvalidateSymbol(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, backend.Len())

	n, err = store.InvalidateSymbol(ctx, "V")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "whole key parts only")
	assert.Equal(t, 1, backend.Len())
}

func TestStore_InvalidateDropsStale(t *testing.T) {
	ctx := context.Background()
	store, clock, _ := newTestStore(t)
	key := PolygonKey("prev", "AAPL", ClassQuote)

	require.NoError(t, store.Put(ctx, key, "polygon", 1))
	clock.Advance(time.Hour)
	store.Get(ctx, key)

	_, err := store.Clear(ctx)
	require.NoError(t, err)

	_, _, ok := LoadStale[int](ctx, store, key)
	assert.False(t, ok)
}

func TestStore_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	store, _, backend := newTestStore(t)
	key := PolygonKey("prev", "AAPL", ClassQuote)

	require.NoError(t, backend.Set(ctx, key.String(), []byte("{not json")))

	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, backend.Len())
}

func TestStore_Recorder(t *testing.T) {
	ctx := context.Background()
	rec := &countingRecorder{}
	clock := NewFakeClock(time.Now())
	store := NewStore(NewMemoryBackend(), WithClock(clock), WithRecorder(rec))
	key := PolygonKey("prev", "AAPL", ClassQuote)

	store.Get(ctx, key)
	require.NoError(t, store.Put(ctx, key, "polygon", 1))
	store.Get(ctx, key)
	clock.Advance(time.Hour)
	store.Get(ctx, key)
	store.GetStale(ctx, key)

	assert.Equal(t, 1, rec.counts[OutcomeMiss])
	assert.Equal(t, 1, rec.counts[OutcomeHit])
	assert.Equal(t, 1, rec.counts[OutcomeExpired])
	assert.Equal(t, 1, rec.counts[OutcomeStaleHit])
}

func TestFetch_ReadThrough(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)
	key := TwelveDataKey("quote", "NVDA", ClassQuote)

	var calls atomic.Int32
	fetch := func(context.Context) (quote, error) {
		calls.Add(1)
		return quote{Symbol: "NVDA", Price: 900}, nil
	}

	got, err := Fetch(ctx, store, key, "twelvedata", fetch)
	require.NoError(t, err)
	assert.Equal(t, 900.0, got.Price)

	_, err = Fetch(ctx, store, key, "twelvedata", fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second call should be served from cache")
}

func TestFetch_ErrorNotCached(t *testing.T) {
	ctx := context.Background()
	store, _, backend := newTestStore(t)
	key := TwelveDataKey("quote", "NVDA", ClassQuote)
	boom := errors.New("boom")

	_, err := Fetch(ctx, store, key, "twelvedata", func(context.Context) (quote, error) {
		return quote{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, backend.Len())
}

func TestFetch_Coalesces(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)
	key := PolygonKey("prev", "TSLA", ClassQuote)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (quote, error) {
		calls.Add(1)
		<-release
		return quote{Price: 1}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Fetch(ctx, store, key, "polygon", fetch)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(5))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}
