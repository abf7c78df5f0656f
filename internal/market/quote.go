package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/marketlens/internal/cache"
	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/fusion"
	"github.com/newthinker/marketlens/internal/indicator"
)

// Cache endpoints for the per-provider payloads below.
const (
	endpointQuote      = "quote"
	endpointIndicators = "indicators"
	endpointOverview   = "overview"
)

// providerQuote fetches one provider's quote through the cache. A quote
// without a price counts as not found and is not cached.
func (s *Service) providerQuote(ctx context.Context, provider, symbol string) (*core.Quote, error) {
	src, ok := collector.Lookup[collector.QuoteSource](s.providers, provider)
	if !ok {
		return nil, notConfigured(provider)
	}
	key := providerKey(provider, endpointQuote, symbol, cache.ClassQuote)
	return cache.Fetch(ctx, s.cache, key, provider, func(ctx context.Context) (*core.Quote, error) {
		q, err := src.FetchQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if q == nil || !q.IsValid() {
			return nil, core.NewProviderError(provider, core.ErrNotFound, 0, fmt.Errorf("no price for %s", symbol))
		}
		return q, nil
	})
}

// Quote returns the latest quote, trying each provider in order, then the
// last cached quote of any provider.
func (s *Service) Quote(ctx context.Context, symbol string) (*core.Quote, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	stages := make([]fusion.Stage[*core.Quote], 0, len(s.opts.QuoteOrder)+1)
	for i, provider := range s.opts.QuoteOrder {
		stage := fusion.Stage[*core.Quote]{
			Name: provider,
			Fetch: func(ctx context.Context) (*core.Quote, error) {
				return s.providerQuote(ctx, provider, sym)
			},
		}
		if i == 0 {
			stage = fusion.Retry(stage, s.opts.RetryAttempts, s.opts.RetryBackoff)
		}
		stages = append(stages, stage)
	}
	stages = append(stages, fusion.Cached(func(ctx context.Context) (*core.Quote, bool) {
		for _, provider := range s.opts.QuoteOrder {
			key := providerKey(provider, endpointQuote, sym, cache.ClassQuote)
			if q, _, ok := cache.LoadStale[*core.Quote](ctx, s.cache, key); ok && q != nil {
				return q, true
			}
		}
		return nil, false
	}))

	q, _, err := fusion.Pipeline[*core.Quote]{
		Name:     "quote",
		Stages:   stages,
		Logger:   s.logger.With(zap.String("symbol", sym)),
		Recorder: s.opts.Recorder,
	}.Run(ctx)
	return q, err
}

// localIndicators computes indicators from a provider's daily closes.
func (s *Service) localIndicators(ctx context.Context, provider, symbol string) (*core.TechnicalIndicators, error) {
	src, ok := collector.Lookup[collector.HistorySource](s.providers, provider)
	if !ok {
		return nil, notConfigured(provider)
	}
	key := providerKey(provider, endpointIndicators, symbol, cache.ClassIndicators)
	return cache.Fetch(ctx, s.cache, key, provider, func(ctx context.Context) (*core.TechnicalIndicators, error) {
		to := s.now()
		from := to.AddDate(0, 0, -s.opts.HistoryDays)
		bars, err := src.FetchHistory(ctx, symbol, from, to)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			return nil, core.NewProviderError(provider, core.ErrNotFound, 0, fmt.Errorf("no history for %s", symbol))
		}
		ind := indicator.Compute(core.Closes(bars), s.opts.SignalMode)
		return &ind, nil
	})
}

// remoteIndicators fetches provider-computed indicators.
func (s *Service) remoteIndicators(ctx context.Context, provider, symbol string) (*core.TechnicalIndicators, error) {
	src, ok := collector.Lookup[collector.IndicatorSource](s.providers, provider)
	if !ok {
		return nil, notConfigured(provider)
	}
	key := providerKey(provider, endpointIndicators, symbol, cache.ClassIndicators)
	return cache.Fetch(ctx, s.cache, key, provider, func(ctx context.Context) (*core.TechnicalIndicators, error) {
		return src.FetchIndicators(ctx, symbol)
	})
}

// providerIndicators computes locally when the provider serves history and
// otherwise asks the provider for its own indicators.
func (s *Service) providerIndicators(ctx context.Context, provider, symbol string) (*core.TechnicalIndicators, error) {
	if _, ok := collector.Lookup[collector.HistorySource](s.providers, provider); ok {
		return s.localIndicators(ctx, provider, symbol)
	}
	return s.remoteIndicators(ctx, provider, symbol)
}

// Indicators returns SMA20, EMA20, RSI14 and MACD. It never fails for a
// valid symbol: without any source the indicators are zero.
func (s *Service) Indicators(ctx context.Context, symbol string) (core.TechnicalIndicators, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return core.TechnicalIndicators{}, err
	}

	ind, _, err := fusion.Pipeline[core.TechnicalIndicators]{
		Name: "indicators",
		Stages: []fusion.Stage[core.TechnicalIndicators]{
			{Name: "local", Fetch: deref(func(ctx context.Context) (*core.TechnicalIndicators, error) {
				return s.localIndicators(ctx, s.opts.Primary, sym)
			})},
			{Name: core.ProviderTwelveData, Fetch: deref(func(ctx context.Context) (*core.TechnicalIndicators, error) {
				return s.remoteIndicators(ctx, core.ProviderTwelveData, sym)
			})},
			fusion.Cached(func(ctx context.Context) (core.TechnicalIndicators, bool) {
				for _, provider := range []string{s.opts.Primary, core.ProviderTwelveData} {
					key := providerKey(provider, endpointIndicators, sym, cache.ClassIndicators)
					if v, _, ok := cache.LoadStale[*core.TechnicalIndicators](ctx, s.cache, key); ok && v != nil {
						return *v, true
					}
				}
				return core.TechnicalIndicators{}, false
			}),
			fusion.Default(core.TechnicalIndicators{}),
		},
		Logger:   s.logger.With(zap.String("symbol", sym)),
		Recorder: s.opts.Recorder,
	}.Run(ctx)
	return ind, err
}

func deref(fn func(context.Context) (*core.TechnicalIndicators, error)) func(context.Context) (core.TechnicalIndicators, error) {
	return func(ctx context.Context) (core.TechnicalIndicators, error) {
		v, err := fn(ctx)
		if err != nil {
			return core.TechnicalIndicators{}, err
		}
		return *v, nil
	}
}

// Overview fuses Finnhub (primary) and Alpha Vantage company profiles.
func (s *Service) Overview(ctx context.Context, symbol string) (*core.CompanyOverview, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	providers := []string{core.ProviderFinnhub, core.ProviderAlphaVantage}
	fetch := func(provider string) func(context.Context) (*core.CompanyOverview, error) {
		return func(ctx context.Context) (*core.CompanyOverview, error) {
			src, ok := collector.Lookup[collector.OverviewSource](s.providers, provider)
			if !ok {
				return nil, notConfigured(provider)
			}
			key := providerKey(provider, endpointOverview, sym, cache.ClassOverview)
			return cache.Fetch(ctx, s.cache, key, provider, func(ctx context.Context) (*core.CompanyOverview, error) {
				return src.FetchOverview(ctx, sym)
			})
		}
	}

	results := fusion.Settle(ctx, len(providers), fetch(providers[0]), fetch(providers[1]))

	var errs []error
	parts := make([]*core.CompanyOverview, len(results))
	for i, r := range results {
		if r.OK() {
			parts[i] = r.Value
			continue
		}
		errs = append(errs, r.Err)
		s.logger.Warn("overview provider failed",
			zap.String("symbol", sym),
			zap.String("provider", providers[i]),
			zap.Error(r.Err))

		key := providerKey(providers[i], endpointOverview, sym, cache.ClassOverview)
		if stale, _, ok := cache.LoadStale[*core.CompanyOverview](ctx, s.cache, key); ok {
			parts[i] = stale
		}
	}

	if out := fusion.CombineOverview(parts[0], parts[1]); out != nil {
		out.Symbol = sym
		return out, nil
	}
	return nil, core.WrapError(core.ErrNoDataAvailable, errors.Join(errs...))
}

// snapshot gathers one provider's quote and indicators. It fails only when
// neither is available.
func (s *Service) snapshot(provider, symbol string) func(context.Context) (fusion.Snapshot, error) {
	return func(ctx context.Context) (fusion.Snapshot, error) {
		snap := fusion.Snapshot{Provider: provider}

		q, qerr := s.providerQuote(ctx, provider, symbol)
		if qerr == nil {
			snap.Quote = q
		}
		ind, ierr := s.providerIndicators(ctx, provider, symbol)
		if ierr == nil {
			snap.Indicators = ind
		}

		if snap.Empty() {
			return snap, errors.Join(qerr, ierr)
		}
		return snap, nil
	}
}

// AnalysisOptions tune a single Analysis call.
type AnalysisOptions struct {
	// Narrative asks the configured narrator for a written summary.
	Narrative bool
}

// Analysis fuses the primary and secondary snapshots with news sentiment,
// scores the data quality and derives insights. The result is cached under
// stock_analysis_SYMBOL.
func (s *Service) Analysis(ctx context.Context, symbol string, opts AnalysisOptions) (*core.CombinedAnalysis, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With(zap.String("symbol", sym))
	key := cache.AnalysisKey(sym)

	a, ok, err := cache.Load[*core.CombinedAnalysis](ctx, s.cache, key)
	if err != nil {
		logger.Warn("reading cached analysis", zap.Error(err))
	}
	if !ok || a == nil {
		a, err = s.analyze(ctx, sym)
		if err != nil {
			stale, at, ok := cache.LoadStale[*core.CombinedAnalysis](ctx, s.cache, key)
			if !ok || stale == nil {
				return nil, err
			}
			logger.Info("serving stale analysis", zap.Time("stored_at", at), zap.Error(err))
			a = stale
		} else if err := s.cache.Put(ctx, key, a.Source, a); err != nil {
			logger.Warn("caching analysis", zap.Error(err))
		}
	}

	if opts.Narrative && s.opts.Narrator != nil {
		text, err := s.opts.Narrator.Narrate(ctx, *a)
		if err != nil {
			logger.Warn("narrative failed", zap.Error(err))
		} else {
			a.Narrative = text
		}
	}
	return a, nil
}

func (s *Service) analyze(ctx context.Context, sym string) (*core.CombinedAnalysis, error) {
	var (
		snaps    []fusion.Result[fusion.Snapshot]
		news     []core.NewsItem
		overview *core.CompanyOverview
	)

	// Every branch settles; failures are folded into the results.
	var g errgroup.Group
	g.Go(func() error {
		snaps = fusion.Settle(ctx, 2, s.snapshot(s.opts.Primary, sym), s.snapshot(s.opts.Secondary, sym))
		return nil
	})
	g.Go(func() error {
		news, _ = s.News(ctx, sym)
		return nil
	})
	g.Go(func() error {
		overview, _ = s.Overview(ctx, sym)
		return nil
	})
	_ = g.Wait()

	var primary, secondary *fusion.Snapshot
	if snaps[0].OK() {
		primary = &snaps[0].Value
	}
	if snaps[1].OK() {
		secondary = &snaps[1].Value
	}
	if primary == nil && secondary == nil {
		s.logger.Warn("no snapshot available",
			zap.String("symbol", sym),
			zap.NamedError("primary", snaps[0].Err),
			zap.NamedError("secondary", snaps[1].Err))
	}

	combined, err := fusion.Combine(primary, secondary)
	if err != nil {
		return nil, core.WrapError(core.ErrNoDataAvailable, errors.Join(snaps[0].Err, snaps[1].Err))
	}
	combined.Quote.Symbol = sym

	a := &core.CombinedAnalysis{
		Symbol:      sym,
		Quote:       *combined.Quote,
		Indicators:  *combined.Indicators,
		Overview:    overview,
		Sentiment:   summarize(news),
		Source:      combined.Provider,
		Quality:     fusion.Quality(*combined.Quote, *combined.Indicators),
		LastUpdated: s.now().UTC().Truncate(time.Millisecond),
	}
	in := s.advisor.Analyze(*a)
	a.Insights = &in
	return a, nil
}
