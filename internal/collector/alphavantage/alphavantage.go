// Package alphavantage adapts the Alpha Vantage query API. Every call is a
// GET on /query selected by the function parameter; numbers arrive as strings.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
)

const (
	Name           = core.ProviderAlphaVantage
	DefaultBaseURL = "https://www.alphavantage.co"

	// FreeTierPerMinute is the documented free-tier request budget.
	FreeTierPerMinute = 5
)

// Function names understood by the query endpoint.
const (
	FuncGlobalQuote     = "GLOBAL_QUOTE"
	FuncOverview        = "OVERVIEW"
	FuncNewsSentiment   = "NEWS_SENTIMENT"
	FuncExchangeRate    = "CURRENCY_EXCHANGE_RATE"
	FuncDigitalCurrency = "DIGITAL_CURRENCY_DAILY"
	FuncTimeSeriesDaily = "TIME_SERIES_DAILY"
)

const (
	dayLayout    = "2006-01-02"
	newsLayout   = "20060102T150405"
	refreshedFmt = "2006-01-02 15:04:05"
)

// Client is an Alpha Vantage adapter.
type Client struct {
	*collector.Client
}

// New creates an Alpha Vantage client authenticated by the apikey parameter.
func New(apiKey string, opts ...collector.Option) *Client {
	c := collector.NewClient(Name, DefaultBaseURL, opts...)
	c.SetQuery("apikey", apiKey)
	return &Client{Client: c}
}

// query runs function with params and decodes the payload into out after
// checking the in-band error fields Alpha Vantage returns with HTTP 200.
func (c *Client) query(ctx context.Context, function string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("function", function)

	var raw json.RawMessage
	if err := c.GetJSON(ctx, "/query", params, &raw); err != nil {
		return err
	}

	var inband struct {
		Note         string `json:"Note"`
		Information  string `json:"Information"`
		ErrorMessage string `json:"Error Message"`
	}
	if err := json.Unmarshal(raw, &inband); err != nil {
		return c.Malformed("decoding %s: %v", function, err)
	}
	switch {
	case inband.Note != "":
		return c.RateLimited(inband.Note)
	case strings.Contains(strings.ToLower(inband.Information), "apikey"):
		return c.Auth(inband.Information)
	case inband.Information != "":
		return c.RateLimited(inband.Information)
	case inband.ErrorMessage != "":
		return c.NotFound("%s", inband.ErrorMessage)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return c.Malformed("decoding %s: %v", function, err)
	}
	return nil
}

type globalQuote struct {
	Quote map[string]string `json:"Global Quote"`
}

// FetchQuote returns the GLOBAL_QUOTE for symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	symbol = collector.NormalizeSymbol(symbol)

	var resp globalQuote
	if err := c.query(ctx, FuncGlobalQuote, url.Values{"symbol": {symbol}}, &resp); err != nil {
		return nil, fmt.Errorf("fetching quote: %w", err)
	}
	if len(resp.Quote) == 0 {
		return nil, c.NotFound("empty global quote for %s", symbol)
	}

	g := resp.Quote
	price := collector.ParseFloat(g["05. price"])
	if price <= 0 {
		return nil, c.Malformed("global quote for %s has no price", symbol)
	}
	updated, _ := time.Parse(dayLayout, g["07. latest trading day"])

	return &core.Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        collector.ParseFloat(g["09. change"]),
		ChangePercent: collector.ParseFloat(g["10. change percent"]),
		Volume:        collector.ParseInt(g["06. volume"]),
		LastUpdated:   updated.UTC(),
		Source:        Name,
	}, nil
}

type overviewResponse struct {
	Symbol               string `json:"Symbol"`
	Name                 string `json:"Name"`
	Description          string `json:"Description"`
	Exchange             string `json:"Exchange"`
	Sector               string `json:"Sector"`
	Industry             string `json:"Industry"`
	MarketCapitalization string `json:"MarketCapitalization"`
	PERatio              string `json:"PERatio"`
	EPS                  string `json:"EPS"`
	DividendYield        string `json:"DividendYield"`
	Beta                 string `json:"Beta"`
	WeekHigh52           string `json:"52WeekHigh"`
	WeekLow52            string `json:"52WeekLow"`
}

// FetchOverview returns the company OVERVIEW for symbol.
func (c *Client) FetchOverview(ctx context.Context, symbol string) (*core.CompanyOverview, error) {
	symbol = collector.NormalizeSymbol(symbol)

	var r overviewResponse
	if err := c.query(ctx, FuncOverview, url.Values{"symbol": {symbol}}, &r); err != nil {
		return nil, fmt.Errorf("fetching overview: %w", err)
	}
	if r.Symbol == "" {
		return nil, c.NotFound("empty overview for %s", symbol)
	}

	return &core.CompanyOverview{
		Symbol:           r.Symbol,
		Name:             r.Name,
		Description:      r.Description,
		Sector:           r.Sector,
		Industry:         r.Industry,
		Exchange:         r.Exchange,
		MarketCap:        collector.ParseFloat(r.MarketCapitalization),
		PERatio:          collector.ParseFloat(r.PERatio),
		EPS:              collector.ParseFloat(r.EPS),
		DividendYield:    collector.ParseFloat(r.DividendYield),
		Beta:             collector.ParseFloat(r.Beta),
		FiftyTwoWeekHigh: collector.ParseFloat(r.WeekHigh52),
		FiftyTwoWeekLow:  collector.ParseFloat(r.WeekLow52),
		Source:           Name,
	}, nil
}

type newsFeed struct {
	Feed []struct {
		Title                 string  `json:"title"`
		URL                   string  `json:"url"`
		TimePublished         string  `json:"time_published"`
		Summary               string  `json:"summary"`
		Source                string  `json:"source"`
		OverallSentimentScore float64 `json:"overall_sentiment_score"`
		TickerSentiment       []struct {
			Ticker         string `json:"ticker"`
			RelevanceScore string `json:"relevance_score"`
		} `json:"ticker_sentiment"`
	} `json:"feed"`
}

// FetchNews returns the NEWS_SENTIMENT feed for symbol. Each item carries
// the provider's overall sentiment score and the ticker relevance; labels
// are assigned downstream.
func (c *Client) FetchNews(ctx context.Context, symbol string, limit int) ([]core.NewsItem, error) {
	symbol = collector.NormalizeSymbol(symbol)
	params := url.Values{"tickers": {symbol}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp newsFeed
	if err := c.query(ctx, FuncNewsSentiment, params, &resp); err != nil {
		return nil, fmt.Errorf("fetching news sentiment: %w", err)
	}

	items := make([]core.NewsItem, 0, len(resp.Feed))
	for _, f := range resp.Feed {
		published, _ := time.Parse(newsLayout, f.TimePublished)
		item := core.NewsItem{
			Title:       f.Title,
			Content:     f.Summary,
			Source:      f.Source,
			URL:         f.URL,
			PublishedAt: published.UTC(),
			Score:       f.OverallSentimentScore,
			Provider:    Name,
		}
		for _, ts := range f.TickerSentiment {
			item.RelatedSymbols = append(item.RelatedSymbols, ts.Ticker)
			if strings.EqualFold(ts.Ticker, symbol) {
				item.Relevance = collector.ParseFloat(ts.RelevanceScore)
			}
		}
		items = append(items, item)
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items, nil
}

type exchangeRateResponse struct {
	Rate map[string]string `json:"Realtime Currency Exchange Rate"`
}

// FetchForex returns the realtime exchange rate between two currencies.
func (c *Client) FetchForex(ctx context.Context, from, to string) (*core.ForexRate, error) {
	from, to = collector.NormalizeSymbol(from), collector.NormalizeSymbol(to)

	var resp exchangeRateResponse
	params := url.Values{"from_currency": {from}, "to_currency": {to}}
	if err := c.query(ctx, FuncExchangeRate, params, &resp); err != nil {
		return nil, fmt.Errorf("fetching exchange rate: %w", err)
	}
	if len(resp.Rate) == 0 {
		return nil, c.NotFound("no exchange rate for %s/%s", from, to)
	}

	rate := collector.ParseFloat(resp.Rate["5. Exchange Rate"])
	if rate <= 0 {
		return nil, c.Malformed("exchange rate for %s/%s is not positive", from, to)
	}
	updated, _ := time.Parse(refreshedFmt, resp.Rate["6. Last Refreshed"])

	return &core.ForexRate{
		From:        from,
		To:          to,
		Rate:        rate,
		LastUpdated: updated.UTC(),
	}, nil
}

type digitalCurrencyResponse struct {
	Meta   map[string]string            `json:"Meta Data"`
	Series map[string]map[string]string `json:"Time Series (Digital Currency Daily)"`
}

// FetchCrypto returns the latest daily close of symbol priced in market,
// with change measured against the previous day.
func (c *Client) FetchCrypto(ctx context.Context, symbol, market string) (*core.CryptoQuote, error) {
	symbol = collector.NormalizeSymbol(symbol)
	market = collector.NormalizeSymbol(market)
	if market == "" {
		market = "USD"
	}

	var resp digitalCurrencyResponse
	params := url.Values{"symbol": {symbol}, "market": {market}}
	if err := c.query(ctx, FuncDigitalCurrency, params, &resp); err != nil {
		return nil, fmt.Errorf("fetching digital currency: %w", err)
	}

	days := sortedDesc(resp.Series)
	if len(days) == 0 {
		return nil, c.NotFound("no daily series for %s", symbol)
	}

	latest := resp.Series[days[0]]
	price := cryptoField(latest, "4. close", market)
	if price <= 0 {
		return nil, c.Malformed("daily series for %s has no close", symbol)
	}

	q := &core.CryptoQuote{
		Symbol: symbol,
		Name:   resp.Meta["3. Digital Currency Name"],
		Market: market,
		Price:  price,
		Volume: cryptoField(latest, "5. volume", market),
	}
	if t, err := time.Parse(dayLayout, days[0]); err == nil {
		q.LastUpdated = t.UTC()
	}
	if len(days) > 1 {
		if prev := cryptoField(resp.Series[days[1]], "4. close", market); prev > 0 {
			q.Change = price - prev
			q.ChangePercent = q.Change / prev * 100
		}
	}
	return q, nil
}

// cryptoField reads a digital currency bar field in either the current
// ("4. close") or the older market-suffixed ("4a. close (USD)") layout.
func cryptoField(bar map[string]string, field, market string) float64 {
	if v, ok := bar[field]; ok {
		return collector.ParseFloat(v)
	}
	num, label, _ := strings.Cut(field, ". ")
	if v, ok := bar[fmt.Sprintf("%sa. %s (%s)", num, label, market)]; ok {
		return collector.ParseFloat(v)
	}
	return collector.ParseFloat(bar[fmt.Sprintf("%sb. %s (%s)", num, label, market)])
}

type dailySeriesResponse struct {
	Series map[string]map[string]string `json:"Time Series (Daily)"`
}

// FetchHistory returns TIME_SERIES_DAILY bars between from and to, oldest
// first. The compact output covers the last 100 sessions.
func (c *Client) FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]core.OHLCV, error) {
	symbol = collector.NormalizeSymbol(symbol)

	var resp dailySeriesResponse
	if err := c.query(ctx, FuncTimeSeriesDaily, url.Values{"symbol": {symbol}}, &resp); err != nil {
		return nil, fmt.Errorf("fetching daily series: %w", err)
	}
	if len(resp.Series) == 0 {
		return nil, c.NotFound("no daily series for %s", symbol)
	}

	days := sortedDesc(resp.Series)
	bars := make([]core.OHLCV, 0, len(days))
	for i := len(days) - 1; i >= 0; i-- {
		t, err := time.Parse(dayLayout, days[i])
		if err != nil {
			continue
		}
		if (!from.IsZero() && t.Before(from)) || (!to.IsZero() && t.After(to)) {
			continue
		}
		bar := resp.Series[days[i]]
		bars = append(bars, core.OHLCV{
			Symbol:   symbol,
			Interval: "1d",
			Open:     collector.ParseFloat(bar["1. open"]),
			High:     collector.ParseFloat(bar["2. high"]),
			Low:      collector.ParseFloat(bar["3. low"]),
			Close:    collector.ParseFloat(bar["4. close"]),
			Volume:   collector.ParseInt(bar["5. volume"]),
			Time:     t.UTC(),
		})
	}
	return bars, nil
}

func sortedDesc[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys
}
