package market

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/cache"
	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/collector/finnhub"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/fusion"
	"github.com/newthinker/marketlens/internal/sentiment"
)

const endpointNews = "news"

// newsProviders are merged in this order; earlier providers win duplicates.
var newsProviders = []string{core.ProviderPolygon, core.ProviderAlphaVantage, core.ProviderFinnhub}

// News merges symbol news from every news provider, labels each item and
// scores its relevance. Failed providers fall back to their last cached
// feed; the result is empty, never an error, when nothing is available.
func (s *Service) News(ctx context.Context, symbol string) ([]core.NewsItem, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	fns := make([]func(context.Context) ([]core.NewsItem, error), len(newsProviders))
	for i, provider := range newsProviders {
		fns[i] = func(ctx context.Context) ([]core.NewsItem, error) {
			src, ok := collector.Lookup[collector.NewsSource](s.providers, provider)
			if !ok {
				return nil, notConfigured(provider)
			}
			key := providerKey(provider, endpointNews, sym, cache.ClassNews)
			return fetchOrStale(ctx, s, key, provider, func(ctx context.Context) ([]core.NewsItem, error) {
				return src.FetchNews(ctx, sym, s.opts.NewsLimit)
			})
		}
	}

	results := fusion.Settle(ctx, len(fns), fns...)
	lists := make([][]core.NewsItem, 0, len(results))
	for i, r := range results {
		if !r.OK() {
			s.logger.Warn("news provider failed",
				zap.String("symbol", sym),
				zap.String("provider", newsProviders[i]),
				zap.Error(r.Err))
			continue
		}
		lists = append(lists, s.enrich(r.Value))
	}
	return fusion.MergeNews(lists...), nil
}

// enrich labels, scores and summarizes a provider feed. Items that carry a
// provider sentiment score are labelled from it, the rest by keywords.
func (s *Service) enrich(items []core.NewsItem) []core.NewsItem {
	now := s.now()
	out := make([]core.NewsItem, len(items))
	for i, it := range items {
		if it.Provider == core.ProviderAlphaVantage {
			it.Sentiment = sentiment.FromScore(it.Score)
		} else {
			it.Sentiment = s.scorer.Label(it.Title, it.Content)
		}
		if it.Relevance <= 0 {
			it.Relevance = sentiment.Relevance(it, now)
		}
		if len(it.KeyPoints) == 0 {
			it.KeyPoints = sentiment.KeyPoints(it.Content, keyPointsPerItem)
		}
		out[i] = it
	}
	return out
}

// MarketNews returns general news for a Finnhub category.
func (s *Service) MarketNews(ctx context.Context, category string) ([]core.NewsItem, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = finnhub.CategoryGeneral
	}
	if !finnhub.ValidCategory(category) {
		return nil, core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("unknown news category %q", category))
	}

	src, ok := collector.Lookup[MarketNewsSource](s.providers, core.ProviderFinnhub)
	if !ok {
		return nil, notConfigured(core.ProviderFinnhub)
	}
	key := providerKey(core.ProviderFinnhub, endpointNews, "", cache.ClassNews, category)
	items, err := fetchOrStale(ctx, s, key, core.ProviderFinnhub, func(ctx context.Context) ([]core.NewsItem, error) {
		return src.MarketNews(ctx, category, s.opts.NewsLimit)
	})
	if err != nil {
		return nil, err
	}
	return fusion.MergeNews(s.enrich(items)), nil
}

// Sentiment summarizes news sentiment for a symbol.
func (s *Service) Sentiment(ctx context.Context, symbol string) (core.SentimentSummary, error) {
	items, err := s.News(ctx, symbol)
	if err != nil {
		return core.SentimentSummary{}, err
	}
	return summarize(items), nil
}

// summarize prefers the mean Alpha Vantage score when its feed contributed
// any item and otherwise takes the relevance-weighted vote.
func summarize(items []core.NewsItem) core.SentimentSummary {
	tally := sentiment.Vote(items)
	sum := core.SentimentSummary{
		Overall:  tally.Label,
		Positive: tally.Positive,
		Negative: tally.Negative,
		Neutral:  tally.Neutral,
		Items:    items,
		Source:   "keywords",
	}
	if total := tally.PositiveWeight + tally.NegativeWeight + tally.NeutralWeight; total > 0 {
		sum.Score = (tally.PositiveWeight - tally.NegativeWeight) / total
	}

	var scores []float64
	for _, it := range items {
		if it.Provider == core.ProviderAlphaVantage {
			scores = append(scores, it.Score)
		}
	}
	if avg, ok := sentiment.Average(scores); ok {
		sum.Overall = sentiment.FromScore(avg)
		sum.Score = avg
		sum.Source = core.ProviderAlphaVantage
	}
	return sum
}
