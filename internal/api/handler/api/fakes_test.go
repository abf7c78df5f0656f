package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newthinker/marketlens/internal/api/response"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/market"
)

var testNow = time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

// stubMarket answers every data route from fixed values; err overrides all.
type stubMarket struct {
	err       error
	cleared   int
	lastSym   string
	narrative bool
	byName    bool
}

func (s *stubMarket) Quote(_ context.Context, sym string) (*core.Quote, error) {
	s.lastSym = sym
	if s.err != nil {
		return nil, s.err
	}
	return &core.Quote{Symbol: sym, Price: 187.5, Source: core.ProviderPolygon, LastUpdated: testNow}, nil
}

func (s *stubMarket) Indicators(_ context.Context, sym string) (core.TechnicalIndicators, error) {
	s.lastSym = sym
	return core.TechnicalIndicators{SMA20: 180, RSI: 55}, s.err
}

func (s *stubMarket) Overview(_ context.Context, sym string) (*core.CompanyOverview, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &core.CompanyOverview{Symbol: sym, Name: "Apple Inc."}, nil
}

func (s *stubMarket) News(context.Context, string) ([]core.NewsItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []core.NewsItem{{Title: "Earnings beat"}}, nil
}

func (s *stubMarket) MarketNews(_ context.Context, category string) ([]core.NewsItem, error) {
	s.lastSym = category
	return []core.NewsItem{}, s.err
}

func (s *stubMarket) Sentiment(context.Context, string) (core.SentimentSummary, error) {
	return core.SentimentSummary{}, s.err
}

func (s *stubMarket) SocialSentiment(_ context.Context, sym string) (core.SocialSentiment, error) {
	s.lastSym = sym
	if s.err != nil {
		return core.SocialSentiment{}, s.err
	}
	return core.SocialSentiment{Symbol: sym, Overall: core.LabelPositive, Positive: 2}, nil
}

func (s *stubMarket) Analysis(_ context.Context, sym string, opts market.AnalysisOptions) (*core.CombinedAnalysis, error) {
	s.narrative = opts.Narrative
	if s.err != nil {
		return nil, s.err
	}
	return &core.CombinedAnalysis{Symbol: sym}, nil
}

func (s *stubMarket) Forex(_ context.Context, from, to string) (*core.ForexRate, error) {
	s.lastSym = from + "/" + to
	if s.err != nil {
		return nil, s.err
	}
	return &core.ForexRate{}, nil
}

func (s *stubMarket) Crypto(_ context.Context, sym, mkt string) (*core.CryptoQuote, error) {
	s.lastSym = sym + ":" + mkt
	if s.err != nil {
		return nil, s.err
	}
	return &core.CryptoQuote{}, nil
}

func (s *stubMarket) MarketStatus(context.Context) (*core.MarketStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &core.MarketStatus{}, nil
}

func (s *stubMarket) Search(_ context.Context, term string, byName bool) ([]core.SymbolSuggestion, error) {
	s.lastSym = term
	s.byName = byName
	if s.err != nil {
		return nil, s.err
	}
	return []core.SymbolSuggestion{{Symbol: "AAPL"}}, nil
}

func (s *stubMarket) ClearCache(context.Context) (int, error) {
	s.lastSym = ""
	return s.cleared, s.err
}

func (s *stubMarket) ClearSymbolCache(_ context.Context, sym string) (int, error) {
	s.lastSym = sym
	return s.cleared, s.err
}

// stubConsensus returns stocks after an optional gate.
type stubConsensus struct {
	err    error
	stocks []core.ConsensusStock
	gate   chan struct{}

	mu    sync.Mutex
	limit int
	syms  []string
}

func (s *stubConsensus) Consensus(ctx context.Context, symbols []string, limit int) ([]core.ConsensusStock, error) {
	s.mu.Lock()
	s.limit = limit
	s.syms = symbols
	s.mu.Unlock()
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.stocks, s.err
}

type stubRecorder struct {
	mu        sync.Mutex
	durations int
	active    map[string]int
}

func (r *stubRecorder) RecordConsensus(float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations++
}

func (r *stubRecorder) SetJobsActive(jobType string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		r.active = make(map[string]int)
	}
	r.active[jobType] = n
}

// stubTweets serves tweets and streams the stream slice.
type stubTweets struct {
	tweets    []core.Tweet
	err       error
	streamErr error
}

func (s *stubTweets) TopicTweets(context.Context, string) ([]core.Tweet, error) {
	return s.tweets, s.err
}

func (s *stubTweets) UserTweets(context.Context, string) ([]core.Tweet, error) {
	return s.tweets, s.err
}

func (s *stubTweets) Tweet(_ context.Context, id string) (*core.Tweet, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &core.Tweet{ID: id, Text: "hello"}, nil
}

func (s *stubTweets) StreamTweets(ctx context.Context, fn func(core.Tweet) error) error {
	for _, t := range s.tweets {
		if err := fn(t); err != nil {
			return err
		}
	}
	return s.streamErr
}

var errBoom = errors.New("boom")

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp response.SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorDetail {
	t.Helper()
	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}
