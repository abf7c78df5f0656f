package market

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/cache"
	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
)

// Forex returns the exchange rate between two currencies.
func (s *Service) Forex(ctx context.Context, from, to string) (*core.ForexRate, error) {
	f, err := normalizeCurrency(from)
	if err != nil {
		return nil, err
	}
	t, err := normalizeCurrency(to)
	if err != nil {
		return nil, err
	}

	src, ok := collector.Lookup[ForexSource](s.providers, core.ProviderAlphaVantage)
	if !ok {
		return nil, notConfigured(core.ProviderAlphaVantage)
	}
	key := cache.AlphaVantageKey("CURRENCY_EXCHANGE_RATE", f, t)
	return fetchOrStale(ctx, s, key, core.ProviderAlphaVantage, func(ctx context.Context) (*core.ForexRate, error) {
		return src.FetchForex(ctx, f, t)
	})
}

// Crypto returns the latest daily close of a digital currency. An empty
// market means USD.
func (s *Service) Crypto(ctx context.Context, symbol, market string) (*core.CryptoQuote, error) {
	sym, err := normalizeCurrency(symbol)
	if err != nil {
		return nil, err
	}
	mkt := "USD"
	if strings.TrimSpace(market) != "" {
		if mkt, err = normalizeCurrency(market); err != nil {
			return nil, err
		}
	}

	src, ok := collector.Lookup[CryptoSource](s.providers, core.ProviderAlphaVantage)
	if !ok {
		return nil, notConfigured(core.ProviderAlphaVantage)
	}
	key := cache.AlphaVantageKey("DIGITAL_CURRENCY_DAILY", sym, mkt)
	return fetchOrStale(ctx, s, key, core.ProviderAlphaVantage, func(ctx context.Context) (*core.CryptoQuote, error) {
		return src.FetchCrypto(ctx, sym, mkt)
	})
}

// MarketStatus reports whether US exchanges are open.
func (s *Service) MarketStatus(ctx context.Context) (*core.MarketStatus, error) {
	src, ok := collector.Lookup[StatusSource](s.providers, core.ProviderPolygon)
	if !ok {
		return nil, notConfigured(core.ProviderPolygon)
	}
	key := providerKey(core.ProviderPolygon, "marketstatus", "", cache.ClassMarketStatus)
	return fetchOrStale(ctx, s, key, core.ProviderPolygon, src.MarketStatus)
}

// Search looks up tickers by symbol, or by company name with byName. An
// empty term returns no suggestions without calling upstream.
func (s *Service) Search(ctx context.Context, term string, byName bool) ([]core.SymbolSuggestion, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []core.SymbolSuggestion{}, nil
	}

	src, ok := collector.Lookup[SearchSource](s.providers, core.ProviderPolygon)
	if !ok {
		return nil, notConfigured(core.ProviderPolygon)
	}
	mode := "symbol"
	if byName {
		mode = "name"
	}
	key := providerKey(core.ProviderPolygon, "search", "", cache.ClassSearch, mode, strings.ToLower(term))
	return fetchOrStale(ctx, s, key, core.ProviderPolygon, func(ctx context.Context) ([]core.SymbolSuggestion, error) {
		return src.Search(ctx, term, byName)
	})
}

// ClearCache drops every cached payload and returns how many were removed.
func (s *Service) ClearCache(ctx context.Context) (int, error) {
	n, err := s.cache.Clear(ctx)
	if err != nil {
		return n, err
	}
	s.logger.Info("cache cleared", zap.Int("entries", n))
	return n, nil
}

// ClearSymbolCache drops every cached payload of one symbol.
func (s *Service) ClearSymbolCache(ctx context.Context, symbol string) (int, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return 0, err
	}
	n, err := s.cache.InvalidateSymbol(ctx, sym)
	if err != nil {
		return n, err
	}
	s.logger.Info("symbol cache cleared", zap.String("symbol", sym), zap.Int("entries", n))
	return n, nil
}

// ClearCachePrefix drops every cached payload under prefix.
func (s *Service) ClearCachePrefix(ctx context.Context, prefix string) (int, error) {
	n, err := s.cache.Invalidate(ctx, prefix)
	if err != nil {
		return n, err
	}
	s.logger.Info("cache prefix cleared", zap.String("prefix", prefix), zap.Int("entries", n))
	return n, nil
}
