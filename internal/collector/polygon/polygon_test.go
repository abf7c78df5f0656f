package polygon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test-key", collector.WithBaseURL(srv.URL))
}

func TestFetchQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/aggs/ticker/AAPL/prev", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apiKey"))
		w.Write([]byte(`{"status":"OK","resultsCount":1,"results":[{"T":"AAPL","c":110,"o":100,"h":111,"l":99,"v":5000000,"t":1704067200000}]}`))
	})

	q, err := c.FetchQuote(context.Background(), "aapl")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 110.0, q.Price)
	assert.Equal(t, 10.0, q.Change)
	assert.InDelta(t, 10.0, q.ChangePercent, 1e-9)
	assert.Equal(t, int64(5000000), q.Volume)
	assert.Equal(t, time.UnixMilli(1704067200000).UTC(), q.LastUpdated)
	assert.Equal(t, Name, q.Source)
}

func TestFetchQuote_EmptyResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","resultsCount":0,"results":[]}`))
	})

	_, err := c.FetchQuote(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestFetchQuote_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.FetchQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, core.ErrRateLimited)
}

func TestFetchQuote_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"ERROR","error":"Unknown API Key"}`))
	})

	_, err := c.FetchQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, core.ErrAuth)
}

func TestFetchHistory(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/aggs/ticker/MSFT/range/1/day/2024-01-01/2024-03-01", r.URL.Path)
		assert.Equal(t, "asc", r.URL.Query().Get("sort"))
		w.Write([]byte(`{"results":[{"c":1,"o":1,"t":1704067200000},{"c":2,"o":1.5,"t":1704153600000}]}`))
	})

	bars, err := c.FetchHistory(context.Background(), "MSFT", from, to)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, []float64{1, 2}, core.Closes(bars))
	assert.Equal(t, "1d", bars[0].Interval)
}

func TestFetchNews(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/reference/news", r.URL.Path)
		assert.Equal(t, "TSLA", r.URL.Query().Get("ticker"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"results":[{
			"title":"Tesla deliveries beat",
			"description":"Deliveries rose.",
			"article_url":"https://example.com/a",
			"published_utc":"2024-01-02T15:04:05Z",
			"tickers":["TSLA"],
			"publisher":{"name":"Reuters"}
		}]}`))
	})

	items, err := c.FetchNews(context.Background(), "tsla", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, "Tesla deliveries beat", it.Title)
	assert.Equal(t, "Deliveries rose.", it.Content)
	assert.Equal(t, "Reuters", it.Source)
	assert.Equal(t, "https://example.com/a", it.URL)
	assert.Equal(t, time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC), it.PublishedAt)
	assert.Equal(t, []string{"TSLA"}, it.RelatedSymbols)
	assert.Equal(t, Name, it.Provider)
}

func TestFetchOverview(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/reference/tickers/AAPL", r.URL.Path)
		w.Write([]byte(`{"results":{"ticker":"AAPL","name":"Apple Inc.","market_cap":3000000000000,"sic_description":"ELECTRONIC COMPUTERS","primary_exchange":"XNAS"}}`))
	})

	o, err := c.FetchOverview(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", o.Name)
	assert.Equal(t, 3e12, o.MarketCap)
	assert.Equal(t, "ELECTRONIC COMPUTERS", o.Industry)
	assert.Equal(t, "XNAS", o.Exchange)
}

func TestMarketStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/marketstatus/now", r.URL.Path)
		w.Write([]byte(`{"market":"open","serverTime":"2024-01-02T10:00:00-05:00","earlyHours":false,"afterHours":false,"exchanges":{"nyse":"open","nasdaq":"open"}}`))
	})

	s, err := c.MarketStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "open", s.Market)
	assert.Equal(t, "open", s.Exchanges["nasdaq"])
	assert.False(t, s.ServerTime.IsZero())
}

func TestSearch(t *testing.T) {
	body := `{"results":[
		{"ticker":"AAPL","name":"Apple Inc.","market":"stocks","primary_exchange":"XNAS"},
		{"ticker":"APLE","name":"Apple Hospitality REIT","market":"stocks"},
		{"ticker":"PINE","name":"Pineapple Corp","market":"otc"}
	]}`

	t.Run("by symbol", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "apple", r.URL.Query().Get("search"))
			assert.Equal(t, "true", r.URL.Query().Get("active"))
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			assert.Empty(t, r.URL.Query().Get("sort"))
			w.Write([]byte(body))
		})

		got, err := c.Search(context.Background(), "apple", false)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, core.SymbolSuggestion{Symbol: "AAPL", Name: "Apple Inc.", Exchange: "XNAS"}, got[0])
		assert.Equal(t, "stocks", got[1].Exchange, "market is the fallback exchange")
	})

	t.Run("by name", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "name", r.URL.Query().Get("sort"))
			w.Write([]byte(body))
		})

		got, err := c.Search(context.Background(), "Apple", true)
		require.NoError(t, err)
		assert.Len(t, got, 3, "Pineapple contains apple")
	})

	t.Run("empty term", func(t *testing.T) {
		c := New("k")
		got, err := c.Search(context.Background(), "  ", false)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
