// Package twelvedata adapts the Twelve Data REST API.
package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
)

const (
	Name            = core.ProviderTwelveData
	DefaultBaseURL  = "https://api.twelvedata.com"
	DefaultInterval = "1day"
	maPeriod        = 20
)

// Client is a Twelve Data adapter authenticated by the apikey parameter.
type Client struct {
	*collector.Client
	interval string
}

// New creates a Twelve Data client.
func New(apiKey string, opts ...collector.Option) *Client {
	c := collector.NewClient(Name, DefaultBaseURL, opts...)
	c.SetQuery("apikey", apiKey)
	return &Client{Client: c, interval: DefaultInterval}
}

// apiStatus is embedded in every response. Twelve Data reports failures
// in-band as {"status":"error","code":N,"message":...} with HTTP 200.
type apiStatus struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	var raw json.RawMessage
	if err := c.GetJSON(ctx, path, params, &raw); err != nil {
		return err
	}

	var st apiStatus
	if err := json.Unmarshal(raw, &st); err == nil && st.Status == "error" {
		return c.inband(st)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.Malformed("decoding %s: %v", path, err)
	}
	return nil
}

func (c *Client) inband(st apiStatus) error {
	kind := core.ErrMalformedResponse
	switch {
	case st.Code == http.StatusNotFound:
		kind = core.ErrNotFound
	case st.Code == http.StatusTooManyRequests:
		kind = core.ErrRateLimited
	case st.Code == http.StatusUnauthorized || st.Code == http.StatusForbidden:
		kind = core.ErrAuth
	case st.Code >= http.StatusInternalServerError:
		kind = core.ErrNetwork
	}
	return core.NewProviderError(Name, kind, st.Code, fmt.Errorf("%s", st.Message))
}

type quoteResponse struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Timestamp     int64  `json:"timestamp"`
	Close         string `json:"close"`
	Volume        string `json:"volume"`
	Change        string `json:"change"`
	PercentChange string `json:"percent_change"`
	AverageVolume string `json:"average_volume"`
	FiftyTwoWeek  struct {
		Low  string `json:"low"`
		High string `json:"high"`
	} `json:"fifty_two_week"`
}

// FetchQuote returns the latest quote for symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	symbol = collector.NormalizeSymbol(symbol)

	var r quoteResponse
	if err := c.get(ctx, "/quote", url.Values{"symbol": {symbol}}, &r); err != nil {
		return nil, fmt.Errorf("fetching quote: %w", err)
	}
	price := collector.ParseFloat(r.Close)
	if price <= 0 {
		return nil, c.Malformed("quote for %s has no close", symbol)
	}

	q := &core.Quote{
		Symbol:        symbol,
		Name:          r.Name,
		Price:         price,
		Change:        collector.ParseFloat(r.Change),
		ChangePercent: collector.ParseFloat(r.PercentChange),
		Volume:        collector.ParseInt(r.Volume),
		LastUpdated:   time.Unix(r.Timestamp, 0).UTC(),
		Source:        Name,
	}
	high, low := collector.ParseFloat(r.FiftyTwoWeek.High), collector.ParseFloat(r.FiftyTwoWeek.Low)
	if high > 0 || low > 0 {
		q.Fundamentals = &core.Fundamentals{
			FiftyTwoWeekHigh: high,
			FiftyTwoWeekLow:  low,
			AvgVolume:        collector.ParseInt(r.AverageVolume),
		}
	}
	return q, nil
}

// seriesResponse holds an indicator time series. Values are strings keyed
// by indicator-specific field names.
type seriesResponse struct {
	Values []map[string]string `json:"values"`
}

// latest returns the newest value of the first present field; 0 if absent.
func (s seriesResponse) latest(fields ...string) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	values := append([]map[string]string(nil), s.Values...)
	sort.SliceStable(values, func(i, j int) bool {
		return values[i]["datetime"] > values[j]["datetime"]
	})
	for _, f := range fields {
		if v, ok := values[0][f]; ok {
			return collector.ParseFloat(v)
		}
	}
	return 0
}

func (c *Client) indicator(ctx context.Context, name, symbol string, period int) (seriesResponse, error) {
	params := url.Values{
		"symbol":   {symbol},
		"interval": {c.interval},
	}
	if period > 0 {
		params.Set("time_period", strconv.Itoa(period))
	}
	var s seriesResponse
	if err := c.get(ctx, "/"+name, params, &s); err != nil {
		return s, fmt.Errorf("fetching %s: %w", name, err)
	}
	return s, nil
}

// FetchIndicators requests RSI, MACD, SMA(20) and EMA(20) concurrently and
// keeps the most recent value of each. Any failing request fails the call.
func (c *Client) FetchIndicators(ctx context.Context, symbol string) (*core.TechnicalIndicators, error) {
	symbol = collector.NormalizeSymbol(symbol)

	var rsi, macd, sma, ema seriesResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { rsi, err = c.indicator(gctx, "rsi", symbol, 0); return })
	g.Go(func() (err error) { macd, err = c.indicator(gctx, "macd", symbol, 0); return })
	g.Go(func() (err error) { sma, err = c.indicator(gctx, "sma", symbol, maPeriod); return })
	g.Go(func() (err error) { ema, err = c.indicator(gctx, "ema", symbol, maPeriod); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &core.TechnicalIndicators{
		SMA20: sma.latest("sma", "value"),
		EMA20: ema.latest("ema", "value"),
		RSI:   rsi.latest("rsi", "value"),
		MACD: core.MACD{
			Line:      macd.latest("macd", "value"),
			Signal:    macd.latest("macd_signal", "signal"),
			Histogram: macd.latest("macd_hist", "histogram"),
		},
	}, nil
}

type profileResponse struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Exchange    string `json:"exchange"`
	Sector      string `json:"sector"`
	Industry    string `json:"industry"`
	Description string `json:"description"`
}

// FetchOverview returns the company profile.
func (c *Client) FetchOverview(ctx context.Context, symbol string) (*core.CompanyOverview, error) {
	symbol = collector.NormalizeSymbol(symbol)

	var p profileResponse
	if err := c.get(ctx, "/profile", url.Values{"symbol": {symbol}}, &p); err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	if p.Name == "" {
		return nil, c.NotFound("no profile for %s", symbol)
	}

	return &core.CompanyOverview{
		Symbol:      symbol,
		Name:        p.Name,
		Description: p.Description,
		Sector:      p.Sector,
		Industry:    p.Industry,
		Exchange:    p.Exchange,
		Source:      Name,
	}, nil
}
