// Package market is the data service behind the API and the CLI. It fans
// requests out to the provider adapters, caches their payloads, degrades to
// stale data when every upstream fails and fuses the results.
package market

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/cache"
	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/fusion"
	"github.com/newthinker/marketlens/internal/indicator"
	"github.com/newthinker/marketlens/internal/insight"
	"github.com/newthinker/marketlens/internal/sentiment"
)

// Defaults for the knobs exposed through Options.
const (
	DefaultHistoryDays   = 100
	DefaultNewsLimit     = 20
	DefaultRetryAttempts = 2
	DefaultRetryBackoff  = 500 * time.Millisecond
	DefaultFanOut        = 4
	keyPointsPerItem     = 3
)

var (
	validSymbol   = regexp.MustCompile(`^[A-Z0-9]{1,10}([.\-][A-Z]{1,4})?$`)
	validCurrency = regexp.MustCompile(`^[A-Z]{3,10}$`)
)

// StatusSource reports exchange status.
type StatusSource interface {
	collector.Provider
	MarketStatus(ctx context.Context) (*core.MarketStatus, error)
}

// SearchSource looks up tickers.
type SearchSource interface {
	collector.Provider
	Search(ctx context.Context, term string, byName bool) ([]core.SymbolSuggestion, error)
}

// ForexSource quotes currency pairs.
type ForexSource interface {
	collector.Provider
	FetchForex(ctx context.Context, from, to string) (*core.ForexRate, error)
}

// CryptoSource quotes digital currencies.
type CryptoSource interface {
	collector.Provider
	FetchCrypto(ctx context.Context, symbol, market string) (*core.CryptoQuote, error)
}

// MarketNewsSource serves general news by category.
type MarketNewsSource interface {
	collector.Provider
	MarketNews(ctx context.Context, category string, limit int) ([]core.NewsItem, error)
}

// Options tune a Service.
type Options struct {
	// QuoteOrder is the provider fallback order for quotes.
	QuoteOrder []string
	// Primary and Secondary name the two snapshots fused by Analysis.
	Primary   string
	Secondary string
	// SignalMode selects the MACD signal computation for local indicators.
	SignalMode    indicator.SignalMode
	HistoryDays   int
	NewsLimit     int
	RetryAttempts int
	RetryBackoff  time.Duration
	FanOut        int
	// Recorder is told which fallback stage served each pipeline run.
	Recorder fusion.Recorder
	// Narrator, when set, writes an optional LLM summary for Analysis.
	Narrator *insight.Narrator
	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		QuoteOrder: []string{
			core.ProviderPolygon,
			core.ProviderFinnhub,
			core.ProviderAlphaVantage,
			core.ProviderTwelveData,
		},
		Primary:       core.ProviderPolygon,
		Secondary:     core.ProviderTwelveData,
		SignalMode:    indicator.SignalSinglePoint,
		HistoryDays:   DefaultHistoryDays,
		NewsLimit:     DefaultNewsLimit,
		RetryAttempts: DefaultRetryAttempts,
		RetryBackoff:  DefaultRetryBackoff,
		FanOut:        DefaultFanOut,
	}
}

// Service answers market data queries.
type Service struct {
	providers *collector.Registry
	cache     *cache.Store
	logger    *zap.Logger
	opts      Options
	scorer    *sentiment.Scorer
	advisor   insight.Advisor
	now       func() time.Time
}

// New creates a Service over the registered providers. Zero-valued options
// take their defaults.
func New(providers *collector.Registry, store *cache.Store, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if len(opts.QuoteOrder) == 0 {
		opts.QuoteOrder = def.QuoteOrder
	}
	if opts.Primary == "" {
		opts.Primary = def.Primary
	}
	if opts.Secondary == "" {
		opts.Secondary = def.Secondary
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = def.HistoryDays
	}
	if opts.NewsLimit <= 0 {
		opts.NewsLimit = def.NewsLimit
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = def.RetryAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.FanOut <= 0 {
		opts.FanOut = def.FanOut
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		providers: providers,
		cache:     store,
		logger:    logger,
		opts:      opts,
		scorer:    sentiment.NewScorer(),
		now:       opts.Now,
	}
}

// Cache exposes the underlying store.
func (s *Service) Cache() *cache.Store {
	return s.cache
}

// Providers lists the registered provider names.
func (s *Service) Providers() []string {
	return s.providers.Names()
}

// NormalizeSymbol upper-cases and validates a ticker.
func NormalizeSymbol(symbol string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if !validSymbol.MatchString(sym) {
		return "", core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("%q", symbol))
	}
	return sym, nil
}

func normalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !validCurrency.MatchString(c) {
		return "", core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("currency %q", code))
	}
	return c, nil
}

func notConfigured(provider string) error {
	return core.WrapError(core.ErrConfigMissing, fmt.Errorf("provider %s is not configured", provider))
}

// providerKey builds the cache key of a provider payload.
func providerKey(provider, endpoint, symbol string, class cache.Class, params ...string) cache.Key {
	switch provider {
	case core.ProviderPolygon:
		return cache.PolygonKey(endpoint, symbol, class, params...)
	case core.ProviderFinnhub:
		return cache.FinnhubKey(endpoint, symbol, class, params...)
	case core.ProviderTwelveData:
		return cache.TwelveDataKey(endpoint, symbol, class, params...)
	case core.ProviderAlphaVantage:
		return cache.AlphaVantageKey(endpoint, append([]string{symbol}, params...)...)
	default:
		return cache.Key{Prefix: provider + "_", Endpoint: endpoint, Symbol: symbol, Params: params, Class: class}
	}
}

// fetchOrStale reads through the cache and, when the upstream fails,
// serves the last known value for key. The upstream error is returned
// when nothing was ever cached.
func fetchOrStale[T any](ctx context.Context, s *Service, key cache.Key, source string, fetch func(context.Context) (T, error)) (T, error) {
	v, err := cache.Fetch(ctx, s.cache, key, source, fetch)
	if err == nil {
		return v, nil
	}
	if stale, at, ok := cache.LoadStale[T](ctx, s.cache, key); ok {
		s.logger.Info("serving stale data",
			zap.String("key", key.String()),
			zap.Time("stored_at", at),
			zap.Error(err))
		return stale, nil
	}
	return v, err
}
