package collector

import (
	"context"
	"time"

	"github.com/newthinker/marketlens/internal/core"
)

// Provider is any upstream data adapter.
type Provider interface {
	Name() string
}

// QuoteSource fetches the latest quote for a symbol.
type QuoteSource interface {
	Provider
	FetchQuote(ctx context.Context, symbol string) (*core.Quote, error)
}

// HistorySource fetches daily bars, oldest first.
type HistorySource interface {
	Provider
	FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]core.OHLCV, error)
}

// IndicatorSource fetches provider-computed technical indicators.
type IndicatorSource interface {
	Provider
	FetchIndicators(ctx context.Context, symbol string) (*core.TechnicalIndicators, error)
}

// OverviewSource fetches company fundamentals.
type OverviewSource interface {
	Provider
	FetchOverview(ctx context.Context, symbol string) (*core.CompanyOverview, error)
}

// NewsSource fetches news for a symbol, newest first.
type NewsSource interface {
	Provider
	FetchNews(ctx context.Context, symbol string, limit int) ([]core.NewsItem, error)
}
