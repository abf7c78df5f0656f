package core

import (
	"math"
	"time"
)

// Provider names used as quote sources and cache prefixes.
const (
	ProviderPolygon      = "polygon"
	ProviderAlphaVantage = "alpha_vantage"
	ProviderFinnhub      = "finnhub"
	ProviderTwelveData   = "twelvedata"
	ProviderTwitter      = "twitter"

	// SourceCombined marks a record fused from more than one provider.
	SourceCombined = "combined"
)

// Fundamentals holds optional company metrics attached to a quote.
type Fundamentals struct {
	PERatio          float64 `json:"peRatio,omitempty"`
	EPS              float64 `json:"eps,omitempty"`
	DividendYield    float64 `json:"dividendYield,omitempty"`
	Beta             float64 `json:"beta,omitempty"`
	FiftyTwoWeekHigh float64 `json:"fiftyTwoWeekHigh,omitempty"`
	FiftyTwoWeekLow  float64 `json:"fiftyTwoWeekLow,omitempty"`
	AvgVolume        int64   `json:"avgVolume,omitempty"`
	Sector           string  `json:"sector,omitempty"`
	Industry         string  `json:"industry,omitempty"`
}

// Quote represents the latest price of a symbol
type Quote struct {
	Symbol        string        `json:"symbol"`
	Name          string        `json:"name,omitempty"`
	Price         float64       `json:"price"`
	Change        float64       `json:"change"`
	ChangePercent float64       `json:"changePercent"`
	Volume        int64         `json:"volume"`
	MarketCap     int64         `json:"marketCap,omitempty"`
	LastUpdated   time.Time     `json:"lastUpdated"`
	Fundamentals  *Fundamentals `json:"fundamentals,omitempty"`
	Source        string        `json:"source"`
}

// IsValid checks if the quote has required fields
func (q Quote) IsValid() bool {
	return q.Symbol != "" && q.Price > 0
}

// ConsistentChange reports whether ChangePercent agrees with Change relative
// to the previous close (Price - Change) within tol percentage points.
func (q Quote) ConsistentChange(tol float64) bool {
	prev := q.Price - q.Change
	if prev == 0 {
		return q.ChangePercent == 0
	}
	return math.Abs(q.Change/prev*100-q.ChangePercent) <= tol
}

// OHLCV represents a candlestick/bar
type OHLCV struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"` // "1d"
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
	Time     time.Time `json:"time"`
}

// Closes extracts closing prices in bar order.
func Closes(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// MACD holds the moving average convergence/divergence triple.
type MACD struct {
	Line      float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// TechnicalIndicators is the indicator set computed per symbol.
type TechnicalIndicators struct {
	SMA20 float64 `json:"sma20"`
	EMA20 float64 `json:"ema20"`
	RSI   float64 `json:"rsi"`
	MACD  MACD    `json:"macd"`
}

// CompanyOverview describes a listed company.
type CompanyOverview struct {
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	Description      string  `json:"description,omitempty"`
	Sector           string  `json:"sector,omitempty"`
	Industry         string  `json:"industry,omitempty"`
	Exchange         string  `json:"exchange,omitempty"`
	MarketCap        float64 `json:"marketCap,omitempty"`
	PERatio          float64 `json:"peRatio,omitempty"`
	EPS              float64 `json:"eps,omitempty"`
	DividendYield    float64 `json:"dividendYield,omitempty"`
	Beta             float64 `json:"beta,omitempty"`
	FiftyTwoWeekHigh float64 `json:"fiftyTwoWeekHigh,omitempty"`
	FiftyTwoWeekLow  float64 `json:"fiftyTwoWeekLow,omitempty"`
	Source           string  `json:"source"`
}

// Label is a three-way sentiment classification.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNegative Label = "negative"
	LabelNeutral  Label = "neutral"
)

// NewsItem is a normalized news article.
type NewsItem struct {
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Source         string    `json:"source"`
	URL            string    `json:"url"`
	PublishedAt    time.Time `json:"publishedAt"`
	Sentiment      Label     `json:"sentiment"`
	Score          float64   `json:"score,omitempty"`
	Relevance      float64   `json:"relevance,omitempty"`
	RelatedSymbols []string  `json:"relatedSymbols,omitempty"`
	KeyPoints      []string  `json:"keyPoints,omitempty"`
	Provider       string    `json:"provider"`
}

// SentimentSummary is the aggregated sentiment for a symbol.
type SentimentSummary struct {
	Overall  Label      `json:"overall"`
	Score    float64    `json:"score"`
	Positive int        `json:"positive"`
	Negative int        `json:"negative"`
	Neutral  int        `json:"neutral"`
	Items    []NewsItem `json:"items,omitempty"`
	Source   string     `json:"source"`
}

// DataQuality scores a fused analysis; every field is in [0, 100].
type DataQuality struct {
	Completeness float64 `json:"completeness"`
	Reliability  float64 `json:"reliability"`
	Freshness    float64 `json:"freshness"`
	Confidence   float64 `json:"confidence"`
	Text         string  `json:"text"`
}

// CombinedAnalysis is the fused per-symbol view served to clients.
type CombinedAnalysis struct {
	Symbol      string              `json:"symbol"`
	Quote       Quote               `json:"quote"`
	Indicators  TechnicalIndicators `json:"technicalIndicators"`
	Overview    *CompanyOverview    `json:"overview,omitempty"`
	Sentiment   SentimentSummary    `json:"sentiment"`
	Source      string              `json:"source"`
	Quality     DataQuality         `json:"dataQuality"`
	Insights    *Insights           `json:"insights,omitempty"`
	Narrative   string              `json:"narrative,omitempty"`
	LastUpdated time.Time           `json:"lastUpdated"`
}

// ForexRate is a currency pair exchange rate.
type ForexRate struct {
	From        string    `json:"from"`
	To          string    `json:"to"`
	Rate        float64   `json:"rate"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// CryptoQuote is the latest daily close of a digital currency.
type CryptoQuote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Market        string    `json:"market"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Volume        float64   `json:"volume"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// MarketStatus describes whether the exchanges are open.
type MarketStatus struct {
	Market     string            `json:"market"`
	ServerTime time.Time         `json:"serverTime"`
	EarlyHours bool              `json:"earlyHours"`
	AfterHours bool              `json:"afterHours"`
	Exchanges  map[string]string `json:"exchanges,omitempty"`
}

// SymbolSuggestion is a search hit.
type SymbolSuggestion struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
}

// ConsensusStock is one row of the cross-provider consensus ranking.
type ConsensusStock struct {
	Symbol        string    `json:"symbol"`
	AveragePrice  float64   `json:"averagePrice"`
	AverageChange float64   `json:"averageChange"`
	Consensus     Label     `json:"consensus"`
	DataQuality   float64   `json:"dataQuality"`
	Sources       []string  `json:"sources"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// TweetMetrics are the public engagement counters of a tweet.
type TweetMetrics struct {
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
	LikeCount    int `json:"like_count"`
	QuoteCount   int `json:"quote_count"`
}

// TweetAuthor is the expanded author of a tweet.
type TweetAuthor struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// Tweet is a normalized social post.
type Tweet struct {
	ID        string       `json:"id"`
	Text      string       `json:"text"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   TweetMetrics `json:"metrics"`
	Author    *TweetAuthor `json:"author"`
}

// Keyword is a dictionary word found in text with its polarity (-1, 0, 1).
type Keyword struct {
	Word     string `json:"word"`
	Polarity int    `json:"polarity"`
	Count    int    `json:"count"`
}

// ScoredTweet is a tweet with its keyword label and engagement impact.
type ScoredTweet struct {
	Tweet
	Sentiment Label   `json:"sentiment"`
	Impact    float64 `json:"impact"`
}

// SocialSentiment aggregates recent tweets about a symbol.
type SocialSentiment struct {
	Symbol      string        `json:"symbol"`
	Overall     Label         `json:"overall"`
	Positive    int           `json:"positive"`
	Negative    int           `json:"negative"`
	Neutral     int           `json:"neutral"`
	Keywords    []Keyword     `json:"keywords"`
	Tweets      []ScoredTweet `json:"tweets"`
	LastUpdated time.Time     `json:"last_updated"`
}

// Action represents a trading signal action
type Action string

const (
	ActionBuy        Action = "buy"
	ActionSell       Action = "sell"
	ActionHold       Action = "hold"
	ActionStrongBuy  Action = "strong_buy"
	ActionStrongSell Action = "strong_sell"
)

// Direction is 1 for buys, -1 for sells and 0 otherwise.
func (a Action) Direction() int {
	switch a {
	case ActionBuy, ActionStrongBuy:
		return 1
	case ActionSell, ActionStrongSell:
		return -1
	}
	return 0
}

// Signal represents a trading signal derived from an analysis
type Signal struct {
	ID          string         `json:"id"`
	Symbol      string         `json:"symbol"`
	Action      Action         `json:"action"`
	Confidence  float64        `json:"confidence"`
	Price       float64        `json:"price"` // Price at signal generation
	Reason      string         `json:"reason"`
	Strategy    string         `json:"strategy"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GeneratedAt time.Time      `json:"generatedAt"`
}
