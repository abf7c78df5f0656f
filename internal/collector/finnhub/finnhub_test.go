package finnhub

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/collector/mocks"
	"github.com/newthinker/marketlens/internal/core"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func newMocked(t *testing.T) (*Client, *mocks.MockHTTPClient) {
	t.Helper()
	ctrl := gomock.NewController(t)
	httpClient := mocks.NewMockHTTPClient(ctrl)
	c := New("tok", collector.WithHTTPClient(httpClient))
	c.now = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }
	return c, httpClient
}

func TestFetchQuote(t *testing.T) {
	c, httpClient := newMocked(t)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "/api/v1/quote", req.URL.Path)
			assert.Equal(t, "tok", req.URL.Query().Get("token"))
			assert.Equal(t, "AAPL", req.URL.Query().Get("symbol"))
			return jsonResponse(http.StatusOK, `{"c":192.5,"d":2.5,"dp":1.3158,"h":193,"l":190,"o":190.5,"pc":190,"t":1704902400}`), nil
		})

	q, err := c.FetchQuote(t.Context(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, 192.5, q.Price)
	assert.Equal(t, 2.5, q.Change)
	assert.Equal(t, 1.3158, q.ChangePercent)
	assert.Equal(t, time.Unix(1704902400, 0).UTC(), q.LastUpdated)
	assert.True(t, q.ConsistentChange(0.01))
}

func TestFetchQuote_AllZeroIsNotFound(t *testing.T) {
	c, httpClient := newMocked(t)
	httpClient.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusOK, `{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`), nil)

	_, err := c.FetchQuote(t.Context(), "NOPE")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestFetchQuote_TransportError(t *testing.T) {
	c, httpClient := newMocked(t)
	httpClient.EXPECT().Do(gomock.Any()).Return(nil, errors.New("connection reset"))

	_, err := c.FetchQuote(t.Context(), "AAPL")
	assert.ErrorIs(t, err, core.ErrNetwork)
}

func TestFetchQuote_Forbidden(t *testing.T) {
	c, httpClient := newMocked(t)
	httpClient.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusForbidden, `{"error":"You don't have access to this resource."}`), nil)

	_, err := c.FetchQuote(t.Context(), "AAPL")
	assert.ErrorIs(t, err, core.ErrAuth)
}

func TestFetchOverview(t *testing.T) {
	c, httpClient := newMocked(t)

	gomock.InOrder(
		httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "/api/v1/stock/profile2", req.URL.Path)
			return jsonResponse(http.StatusOK, `{"ticker":"AAPL","name":"Apple Inc","exchange":"NASDAQ NMS","finnhubIndustry":"Technology","marketCapitalization":3000000}`), nil
		}),
		httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "/api/v1/stock/metric", req.URL.Path)
			assert.Equal(t, "all", req.URL.Query().Get("metric"))
			return jsonResponse(http.StatusOK, `{"metric":{"52WeekHigh":199.6,"52WeekLow":164.1,"beta":1.29,"peBasicExclExtraTTM":31.2,"epsBasicExclExtraItemsTTM":6.1,"dividendYieldIndicatedAnnual":0.5}}`), nil
		}),
	)

	o, err := c.FetchOverview(t.Context(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", o.Name)
	assert.Equal(t, 3e12, o.MarketCap)
	assert.Equal(t, "Technology", o.Industry)
	assert.Equal(t, 31.2, o.PERatio)
	assert.Equal(t, 199.6, o.FiftyTwoWeekHigh)
}

func TestFetchOverview_MetricFailureKeepsProfile(t *testing.T) {
	c, httpClient := newMocked(t)

	gomock.InOrder(
		httpClient.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusOK, `{"ticker":"AAPL","name":"Apple Inc"}`), nil),
		httpClient.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusTooManyRequests, ``), nil),
	)

	o, err := c.FetchOverview(t.Context(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", o.Name)
	assert.Zero(t, o.PERatio)
}

func TestFetchOverview_EmptyProfile(t *testing.T) {
	c, httpClient := newMocked(t)
	httpClient.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusOK, `{}`), nil)

	_, err := c.FetchOverview(t.Context(), "NOPE")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestFetchNews(t *testing.T) {
	c, httpClient := newMocked(t)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "/api/v1/company-news", req.URL.Path)
			assert.Equal(t, "2024-01-03", req.URL.Query().Get("from"))
			assert.Equal(t, "2024-01-10", req.URL.Query().Get("to"))
			return jsonResponse(http.StatusOK, `[
				{"datetime":1704880000,"headline":"Apple beats","related":"AAPL","source":"Reuters","summary":"Strong quarter","url":"https://x/1"},
				{"datetime":1704870000,"headline":"","url":"https://x/blank"},
				{"datetime":1704860000,"headline":"Apple dips","related":"AAPL","source":"CNBC","url":"https://x/2"}
			]`), nil
		})

	items, err := c.FetchNews(t.Context(), "AAPL", 0)
	require.NoError(t, err)
	require.Len(t, items, 2, "items without a headline are skipped")
	assert.Equal(t, "Apple beats", items[0].Title)
	assert.Equal(t, []string{"AAPL"}, items[0].RelatedSymbols)
	assert.Equal(t, time.Unix(1704880000, 0).UTC(), items[0].PublishedAt)
	assert.Equal(t, Name, items[0].Provider)
}

func TestMarketNews(t *testing.T) {
	c, httpClient := newMocked(t)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "/api/v1/news", req.URL.Path)
			assert.Equal(t, "general", req.URL.Query().Get("category"))
			return jsonResponse(http.StatusOK, `[{"headline":"a"},{"headline":"b"},{"headline":"c"}]`), nil
		})

	items, err := c.MarketNews(t.Context(), "", 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = c.MarketNews(t.Context(), "sports", 0)
	assert.ErrorIs(t, err, core.ErrInvalidSymbol)
}
