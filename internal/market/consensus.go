package market

import (
	"context"
	"sort"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/fusion"
)

// DefaultConsensusLimit caps the consensus ranking.
const DefaultConsensusLimit = 20

// qualityPerSource is the data quality credit for each provider that
// returned a quote.
const qualityPerSource = 50

// DefaultConsensusSymbols is the large-cap universe ranked by Consensus.
var DefaultConsensusSymbols = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "META", "TSLA", "NVDA", "JPM", "V", "WMT",
	"PG", "JNJ", "HD", "BAC", "MA", "UNH", "XOM", "DIS", "NFLX", "PYPL",
	"INTC", "CSCO", "PFE", "KO", "PEP", "MRK", "ABT", "TMO", "VZ", "CMCSA",
}

var consensusProviders = []string{core.ProviderAlphaVantage, core.ProviderFinnhub}

// Consensus ranks symbols by cross-provider agreement. Each symbol averages
// the Alpha Vantage and Finnhub quotes; symbols with no quote are dropped.
// Positive consensus sorts first, then average change descending.
func (s *Service) Consensus(ctx context.Context, symbols []string, limit int) ([]core.ConsensusStock, error) {
	if len(symbols) == 0 {
		symbols = DefaultConsensusSymbols
	}
	if limit <= 0 {
		limit = DefaultConsensusLimit
	}

	syms := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		sym, err := NormalizeSymbol(raw)
		if err != nil {
			return nil, err
		}
		syms = append(syms, sym)
	}

	fns := make([]func(context.Context) (core.ConsensusStock, error), len(syms))
	for i, sym := range syms {
		fns[i] = func(ctx context.Context) (core.ConsensusStock, error) {
			return s.consensusFor(ctx, sym), nil
		}
	}

	out := make([]core.ConsensusStock, 0, len(syms))
	for _, r := range fusion.Settle(ctx, s.opts.FanOut, fns...) {
		if r.OK() && r.Value.DataQuality > 0 {
			out = append(out, r.Value)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Consensus == core.LabelPositive, out[j].Consensus == core.LabelPositive
		if pi != pj {
			return pi
		}
		return out[i].AverageChange > out[j].AverageChange
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Service) consensusFor(ctx context.Context, sym string) core.ConsensusStock {
	quotes := fusion.Settle(ctx, len(consensusProviders),
		func(ctx context.Context) (*core.Quote, error) {
			return s.providerQuote(ctx, consensusProviders[0], sym)
		},
		func(ctx context.Context) (*core.Quote, error) {
			return s.providerQuote(ctx, consensusProviders[1], sym)
		},
	)

	row := core.ConsensusStock{Symbol: sym, Sources: []string{}, LastUpdated: s.now().UTC()}
	var prices, changes []float64
	for i, r := range quotes {
		if !r.OK() || r.Value == nil {
			continue
		}
		prices = append(prices, r.Value.Price)
		changes = append(changes, r.Value.ChangePercent)
		row.DataQuality += qualityPerSource
		row.Sources = append(row.Sources, consensusProviders[i])
	}
	row.AveragePrice = mean(prices)
	row.AverageChange = mean(changes)

	if sum, err := s.Sentiment(ctx, sym); err == nil && sum.Overall != "" {
		row.Consensus = sum.Overall
	} else {
		switch {
		case row.AverageChange > 0:
			row.Consensus = core.LabelPositive
		case row.AverageChange < 0:
			row.Consensus = core.LabelNegative
		default:
			row.Consensus = core.LabelNeutral
		}
	}
	return row
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
