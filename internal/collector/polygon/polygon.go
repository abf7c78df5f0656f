// Package polygon adapts the Polygon.io REST API.
package polygon

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
)

const (
	Name           = core.ProviderPolygon
	DefaultBaseURL = "https://api.polygon.io"
	searchLimit    = 10
)

// Client is a Polygon.io adapter. Authentication uses the apiKey query parameter.
type Client struct {
	*collector.Client
}

// New creates a Polygon client.
func New(apiKey string, opts ...collector.Option) *Client {
	c := collector.NewClient(Name, DefaultBaseURL, opts...)
	c.SetQuery("apiKey", apiKey)
	return &Client{Client: c}
}

type aggregate struct {
	Ticker    string  `json:"T"`
	Close     float64 `json:"c"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"`
}

type aggsResponse struct {
	Status       string      `json:"status"`
	ResultsCount int         `json:"resultsCount"`
	Results      []aggregate `json:"results"`
}

// FetchQuote returns the previous session's aggregate as a quote.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	symbol = collector.NormalizeSymbol(symbol)

	var resp aggsResponse
	path := fmt.Sprintf("/v2/aggs/ticker/%s/prev", url.PathEscape(symbol))
	if err := c.GetJSON(ctx, path, url.Values{"adjusted": {"true"}}, &resp); err != nil {
		return nil, fmt.Errorf("fetching quote: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, c.NotFound("no previous close for %s", symbol)
	}

	r := resp.Results[0]
	if r.Close <= 0 {
		return nil, c.Malformed("non-positive close for %s", symbol)
	}

	change := r.Close - r.Open
	var pct float64
	if r.Open != 0 {
		pct = change / r.Open * 100
	}

	return &core.Quote{
		Symbol:        symbol,
		Price:         r.Close,
		Change:        change,
		ChangePercent: pct,
		Volume:        int64(r.Volume),
		LastUpdated:   time.UnixMilli(r.Timestamp).UTC(),
		Source:        Name,
	}, nil
}

// FetchHistory returns daily bars between from and to, oldest first.
func (c *Client) FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]core.OHLCV, error) {
	symbol = collector.NormalizeSymbol(symbol)

	var resp aggsResponse
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		url.PathEscape(symbol), from.Format(time.DateOnly), to.Format(time.DateOnly))
	params := url.Values{
		"adjusted": {"true"},
		"sort":     {"asc"},
		"limit":    {"5000"},
	}
	if err := c.GetJSON(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, c.NotFound("no history for %s", symbol)
	}

	bars := make([]core.OHLCV, 0, len(resp.Results))
	for _, r := range resp.Results {
		bars = append(bars, core.OHLCV{
			Symbol:   symbol,
			Interval: "1d",
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			Volume:   int64(r.Volume),
			Time:     time.UnixMilli(r.Timestamp).UTC(),
		})
	}
	return bars, nil
}

type newsResponse struct {
	Results []struct {
		Title        string   `json:"title"`
		Description  string   `json:"description"`
		ArticleURL   string   `json:"article_url"`
		PublishedUTC string   `json:"published_utc"`
		Tickers      []string `json:"tickers"`
		Publisher    struct {
			Name string `json:"name"`
		} `json:"publisher"`
	} `json:"results"`
}

// FetchNews returns recent articles about symbol, or market-wide news when
// symbol is empty. Items are unlabeled; sentiment is assigned downstream.
func (c *Client) FetchNews(ctx context.Context, symbol string, limit int) ([]core.NewsItem, error) {
	params := url.Values{
		"order": {"desc"},
		"sort":  {"published_utc"},
	}
	if symbol != "" {
		params.Set("ticker", collector.NormalizeSymbol(symbol))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp newsResponse
	if err := c.GetJSON(ctx, "/v2/reference/news", params, &resp); err != nil {
		return nil, fmt.Errorf("fetching news: %w", err)
	}

	items := make([]core.NewsItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		published, _ := time.Parse(time.RFC3339, r.PublishedUTC)
		items = append(items, core.NewsItem{
			Title:          r.Title,
			Content:        r.Description,
			Source:         r.Publisher.Name,
			URL:            r.ArticleURL,
			PublishedAt:    published.UTC(),
			RelatedSymbols: r.Tickers,
			Provider:       Name,
		})
	}
	return items, nil
}

type tickerDetailsResponse struct {
	Results struct {
		Ticker          string  `json:"ticker"`
		Name            string  `json:"name"`
		Description     string  `json:"description"`
		MarketCap       float64 `json:"market_cap"`
		SICDescription  string  `json:"sic_description"`
		PrimaryExchange string  `json:"primary_exchange"`
	} `json:"results"`
}

// FetchOverview returns ticker reference details.
func (c *Client) FetchOverview(ctx context.Context, symbol string) (*core.CompanyOverview, error) {
	symbol = collector.NormalizeSymbol(symbol)

	var resp tickerDetailsResponse
	if err := c.GetJSON(ctx, "/v3/reference/tickers/"+url.PathEscape(symbol), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching details: %w", err)
	}
	if resp.Results.Ticker == "" {
		return nil, c.NotFound("no details for %s", symbol)
	}

	r := resp.Results
	return &core.CompanyOverview{
		Symbol:      r.Ticker,
		Name:        r.Name,
		Description: r.Description,
		Industry:    r.SICDescription,
		Exchange:    r.PrimaryExchange,
		MarketCap:   r.MarketCap,
		Source:      Name,
	}, nil
}

type marketStatusResponse struct {
	Market     string            `json:"market"`
	ServerTime string            `json:"serverTime"`
	EarlyHours bool              `json:"earlyHours"`
	AfterHours bool              `json:"afterHours"`
	Exchanges  map[string]string `json:"exchanges"`
}

// MarketStatus reports whether US markets are open.
func (c *Client) MarketStatus(ctx context.Context) (*core.MarketStatus, error) {
	var resp marketStatusResponse
	if err := c.GetJSON(ctx, "/v1/marketstatus/now", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching market status: %w", err)
	}
	if resp.Market == "" {
		return nil, c.Malformed("market status without market field")
	}

	serverTime, _ := time.Parse(time.RFC3339, resp.ServerTime)
	return &core.MarketStatus{
		Market:     resp.Market,
		ServerTime: serverTime,
		EarlyHours: resp.EarlyHours,
		AfterHours: resp.AfterHours,
		Exchanges:  resp.Exchanges,
	}, nil
}

type tickersResponse struct {
	Results []struct {
		Ticker          string `json:"ticker"`
		Name            string `json:"name"`
		Market          string `json:"market"`
		PrimaryExchange string `json:"primary_exchange"`
	} `json:"results"`
}

// Search looks up active tickers matching term. With byName, results are
// sorted by name and restricted to names containing term.
func (c *Client) Search(ctx context.Context, term string, byName bool) ([]core.SymbolSuggestion, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []core.SymbolSuggestion{}, nil
	}

	params := url.Values{
		"search": {term},
		"active": {"true"},
		"limit":  {strconv.Itoa(searchLimit)},
	}
	if byName {
		params.Set("sort", "name")
	}

	var resp tickersResponse
	if err := c.GetJSON(ctx, "/v3/reference/tickers", params, &resp); err != nil {
		return nil, fmt.Errorf("searching tickers: %w", err)
	}

	lower := strings.ToLower(term)
	out := make([]core.SymbolSuggestion, 0, len(resp.Results))
	for _, r := range resp.Results {
		if byName && !strings.Contains(strings.ToLower(r.Name), lower) {
			continue
		}
		exchange := r.PrimaryExchange
		if exchange == "" {
			exchange = r.Market
		}
		out = append(out, core.SymbolSuggestion{Symbol: r.Ticker, Name: r.Name, Exchange: exchange})
	}
	return out, nil
}
