// Package finnhub adapts the Finnhub REST API.
package finnhub

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
)

const (
	Name           = core.ProviderFinnhub
	DefaultBaseURL = "https://finnhub.io/api/v1"

	// CompanyNewsWindow is how far back company news is requested.
	CompanyNewsWindow = 7 * 24 * time.Hour
)

// Market news categories accepted by /news.
const (
	CategoryGeneral = "general"
	CategoryForex   = "forex"
	CategoryCrypto  = "crypto"
	CategoryMerger  = "merger"
)

// ValidCategory reports whether category is a supported market news category.
func ValidCategory(category string) bool {
	switch category {
	case CategoryGeneral, CategoryForex, CategoryCrypto, CategoryMerger:
		return true
	}
	return false
}

// Client is a Finnhub adapter authenticated by the token parameter.
type Client struct {
	*collector.Client
	now func() time.Time
}

// New creates a Finnhub client.
func New(token string, opts ...collector.Option) *Client {
	c := collector.NewClient(Name, DefaultBaseURL, opts...)
	c.SetQuery("token", token)
	return &Client{Client: c, now: time.Now}
}

type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	PercentChange float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// FetchQuote returns the real-time quote. Finnhub answers unknown symbols
// with an all-zero quote, which is reported as NotFound.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*core.Quote, error) {
	symbol = collector.NormalizeSymbol(symbol)

	var r quoteResponse
	if err := c.GetJSON(ctx, "/quote", url.Values{"symbol": {symbol}}, &r); err != nil {
		return nil, fmt.Errorf("fetching quote: %w", err)
	}
	if r.Current == 0 && r.PrevClose == 0 && r.Timestamp == 0 {
		return nil, c.NotFound("no quote for %s", symbol)
	}
	if r.Current <= 0 {
		return nil, c.Malformed("non-positive price for %s", symbol)
	}

	updated := time.Unix(r.Timestamp, 0).UTC()
	if r.Timestamp == 0 {
		updated = c.now().UTC()
	}

	return &core.Quote{
		Symbol:        symbol,
		Price:         r.Current,
		Change:        r.Change,
		ChangePercent: r.PercentChange,
		LastUpdated:   updated,
		Source:        Name,
	}, nil
}

type profileResponse struct {
	Ticker               string  `json:"ticker"`
	Name                 string  `json:"name"`
	Exchange             string  `json:"exchange"`
	Industry             string  `json:"finnhubIndustry"`
	MarketCapitalization float64 `json:"marketCapitalization"` // millions
}

type metricResponse struct {
	Metric struct {
		WeekHigh52    float64 `json:"52WeekHigh"`
		WeekLow52     float64 `json:"52WeekLow"`
		Beta          float64 `json:"beta"`
		PE            float64 `json:"peBasicExclExtraTTM"`
		EPS           float64 `json:"epsBasicExclExtraItemsTTM"`
		DividendYield float64 `json:"dividendYieldIndicatedAnnual"`
	} `json:"metric"`
}

// FetchOverview combines the company profile with basic financials. The
// financials are best effort; a failure there still yields the profile.
func (c *Client) FetchOverview(ctx context.Context, symbol string) (*core.CompanyOverview, error) {
	symbol = collector.NormalizeSymbol(symbol)

	var p profileResponse
	if err := c.GetJSON(ctx, "/stock/profile2", url.Values{"symbol": {symbol}}, &p); err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	if p.Ticker == "" && p.Name == "" {
		return nil, c.NotFound("no profile for %s", symbol)
	}

	o := &core.CompanyOverview{
		Symbol:    symbol,
		Name:      p.Name,
		Industry:  p.Industry,
		Exchange:  p.Exchange,
		MarketCap: p.MarketCapitalization * 1e6,
		Source:    Name,
	}

	var m metricResponse
	params := url.Values{"symbol": {symbol}, "metric": {"all"}}
	if err := c.GetJSON(ctx, "/stock/metric", params, &m); err != nil {
		c.Logger().Debug("finnhub metrics unavailable", zap.String("symbol", symbol), zap.Error(err))
		return o, nil
	}
	o.PERatio = m.Metric.PE
	o.EPS = m.Metric.EPS
	o.DividendYield = m.Metric.DividendYield
	o.Beta = m.Metric.Beta
	o.FiftyTwoWeekHigh = m.Metric.WeekHigh52
	o.FiftyTwoWeekLow = m.Metric.WeekLow52
	return o, nil
}

type article struct {
	Category string `json:"category"`
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

func (a article) item() core.NewsItem {
	it := core.NewsItem{
		Title:       a.Headline,
		Content:     a.Summary,
		Source:      a.Source,
		URL:         a.URL,
		PublishedAt: time.Unix(a.Datetime, 0).UTC(),
		Provider:    Name,
	}
	if a.Related != "" {
		it.RelatedSymbols = []string{a.Related}
	}
	return it
}

// FetchNews returns company news from the last seven days.
func (c *Client) FetchNews(ctx context.Context, symbol string, limit int) ([]core.NewsItem, error) {
	symbol = collector.NormalizeSymbol(symbol)
	now := c.now().UTC()
	params := url.Values{
		"symbol": {symbol},
		"from":   {now.Add(-CompanyNewsWindow).Format(time.DateOnly)},
		"to":     {now.Format(time.DateOnly)},
	}

	var articles []article
	if err := c.GetJSON(ctx, "/company-news", params, &articles); err != nil {
		return nil, fmt.Errorf("fetching company news: %w", err)
	}
	return toItems(articles, limit), nil
}

// MarketNews returns market-wide news for a category.
func (c *Client) MarketNews(ctx context.Context, category string, limit int) ([]core.NewsItem, error) {
	if category == "" {
		category = CategoryGeneral
	}
	if !ValidCategory(category) {
		return nil, core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("unknown news category %q", category))
	}

	var articles []article
	if err := c.GetJSON(ctx, "/news", url.Values{"category": {category}}, &articles); err != nil {
		return nil, fmt.Errorf("fetching market news: %w", err)
	}
	return toItems(articles, limit), nil
}

func toItems(articles []article, limit int) []core.NewsItem {
	items := make([]core.NewsItem, 0, len(articles))
	for _, a := range articles {
		if a.Headline == "" {
			continue
		}
		items = append(items, a.item())
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items
}
