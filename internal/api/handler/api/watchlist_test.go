package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/marketlens/internal/app"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/market"
)

type countingAnalyzer struct {
	calls atomic.Int32
}

func (c *countingAnalyzer) Analysis(ctx context.Context, symbol string, opts market.AnalysisOptions) (*core.CombinedAnalysis, error) {
	c.calls.Add(1)
	return &core.CombinedAnalysis{Symbol: symbol}, nil
}

func newTestApp(t *testing.T, symbols ...string) (*app.App, *countingAnalyzer) {
	t.Helper()
	analyzer := &countingAnalyzer{}
	a := app.New(analyzer, nil, app.Options{Now: func() time.Time { return testNow }})
	require.NoError(t, a.SetWatchlist(symbols))
	return a, analyzer
}

func TestWatchlistHandler_List(t *testing.T) {
	a, _ := newTestApp(t, "AAPL", "GOOG")
	handler := NewWatchlistHandler(a)

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/watchlist", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.EqualValues(t, 2, data["count"])
	symbols := data["symbols"].([]any)
	first := symbols[0].(map[string]any)
	assert.Equal(t, "AAPL", first["symbol"])
}

func TestWatchlistHandler_Add(t *testing.T) {
	a, _ := newTestApp(t)
	handler := NewWatchlistHandler(a)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/watchlist", bytes.NewBufferString(`{"symbol": "aapl"}`))
	w := httptest.NewRecorder()
	handler.Add(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"AAPL"}, a.GetWatchlist())

	// Adding again is not an error
	req = httptest.NewRequest(http.MethodPost, "/api/v1/watchlist", bytes.NewBufferString(`{"symbol": "AAPL"}`))
	w = httptest.NewRecorder()
	handler.Add(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeData(t, w)["added"])
}

func TestWatchlistHandler_AddRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid json", `{invalid json}`, core.ErrInvalidRequest.Code},
		{"unknown field", `{"ticker": "AAPL"}`, core.ErrInvalidRequest.Code},
		{"empty symbol", `{"symbol": ""}`, core.ErrInvalidSymbol.Code},
		{"bad symbol", `{"symbol": "NOT A TICKER"}`, core.ErrInvalidSymbol.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestApp(t)
			handler := NewWatchlistHandler(a)

			w := httptest.NewRecorder()
			handler.Add(w, httptest.NewRequest(http.MethodPost, "/api/v1/watchlist", bytes.NewBufferString(tt.body)))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
			assert.Empty(t, a.GetWatchlist())
		})
	}
}

func TestWatchlistHandler_Remove(t *testing.T) {
	a, _ := newTestApp(t, "AAPL", "GOOG")
	handler := NewWatchlistHandler(a)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/watchlist/aapl", nil)
	req.SetPathValue("symbol", "aapl")
	w := httptest.NewRecorder()
	handler.Remove(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"GOOG"}, a.GetWatchlist())
}

func TestWatchlistHandler_Remove_NotFound(t *testing.T) {
	a, _ := newTestApp(t)
	handler := NewWatchlistHandler(a)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/watchlist/AAPL", nil)
	req.SetPathValue("symbol", "AAPL")
	w := httptest.NewRecorder()
	handler.Remove(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWatchlistHandler_Refresh(t *testing.T) {
	a, analyzer := newTestApp(t, "AAPL", "MSFT")
	handler := NewWatchlistHandler(a)

	w := httptest.NewRecorder()
	handler.Refresh(w, httptest.NewRequest(http.MethodPost, "/api/v1/watchlist/refresh", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.EqualValues(t, 2, decodeData(t, w)["symbols_count"])
	assert.Eventually(t, func() bool { return analyzer.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestWatchlistHandler_Stats(t *testing.T) {
	a, _ := newTestApp(t, "AAPL")
	handler := NewWatchlistHandler(a)

	w := httptest.NewRecorder()
	handler.Stats(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.EqualValues(t, 1, data["watchlist"])
	assert.Equal(t, false, data["running"])
}
