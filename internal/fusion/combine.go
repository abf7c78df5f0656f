// Package fusion reconciles records from several providers: field-wise
// combination, data quality scoring, ordered fallback and settled fan-out.
package fusion

import (
	"time"

	"github.com/newthinker/marketlens/internal/core"
)

// Snapshot is one provider's normalized answer for a symbol.
type Snapshot struct {
	Provider   string                    `json:"provider"`
	Quote      *core.Quote               `json:"quote,omitempty"`
	Indicators *core.TechnicalIndicators `json:"indicators,omitempty"`
}

// Empty reports whether the snapshot carries no data.
func (s *Snapshot) Empty() bool {
	return s == nil || (s.Quote == nil && s.Indicators == nil)
}

// Combine fuses two snapshots. Each field comes from primary when it is
// non-zero, else from secondary. With one input the result is that input
// tagged with its provider; with none it fails with ErrNoDataAvailable.
func Combine(primary, secondary *Snapshot) (Snapshot, error) {
	switch {
	case primary.Empty() && secondary.Empty():
		return Snapshot{}, core.ErrNoDataAvailable
	case secondary.Empty():
		return normalize(primary), nil
	case primary.Empty():
		return normalize(secondary), nil
	}

	a, b := normalize(primary), normalize(secondary)
	q := combineQuote(*a.Quote, *b.Quote)
	q.Source = core.SourceCombined
	ind := combineIndicators(*a.Indicators, *b.Indicators)

	return Snapshot{Provider: core.SourceCombined, Quote: &q, Indicators: &ind}, nil
}

func normalize(s *Snapshot) Snapshot {
	out := Snapshot{Provider: s.Provider}
	q := core.Quote{}
	if s.Quote != nil {
		q = *s.Quote
	}
	q.Source = s.Provider
	out.Quote = &q

	ind := core.TechnicalIndicators{}
	if s.Indicators != nil {
		ind = *s.Indicators
	}
	out.Indicators = &ind
	return out
}

func combineQuote(a, b core.Quote) core.Quote {
	return core.Quote{
		Symbol:        or(a.Symbol, b.Symbol),
		Name:          or(a.Name, b.Name),
		Price:         or(a.Price, b.Price),
		Change:        or(a.Change, b.Change),
		ChangePercent: or(a.ChangePercent, b.ChangePercent),
		Volume:        or(a.Volume, b.Volume),
		MarketCap:     or(a.MarketCap, b.MarketCap),
		LastUpdated:   orTime(a.LastUpdated, b.LastUpdated),
		Fundamentals:  combineFundamentals(a.Fundamentals, b.Fundamentals),
	}
}

func combineFundamentals(a, b *core.Fundamentals) *core.Fundamentals {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		f := *b
		return &f
	case b == nil:
		f := *a
		return &f
	}
	return &core.Fundamentals{
		PERatio:          or(a.PERatio, b.PERatio),
		EPS:              or(a.EPS, b.EPS),
		DividendYield:    or(a.DividendYield, b.DividendYield),
		Beta:             or(a.Beta, b.Beta),
		FiftyTwoWeekHigh: or(a.FiftyTwoWeekHigh, b.FiftyTwoWeekHigh),
		FiftyTwoWeekLow:  or(a.FiftyTwoWeekLow, b.FiftyTwoWeekLow),
		AvgVolume:        or(a.AvgVolume, b.AvgVolume),
		Sector:           or(a.Sector, b.Sector),
		Industry:         or(a.Industry, b.Industry),
	}
}

func combineIndicators(a, b core.TechnicalIndicators) core.TechnicalIndicators {
	return core.TechnicalIndicators{
		SMA20: or(a.SMA20, b.SMA20),
		EMA20: or(a.EMA20, b.EMA20),
		RSI:   or(a.RSI, b.RSI),
		MACD: core.MACD{
			Line:      or(a.MACD.Line, b.MACD.Line),
			Signal:    or(a.MACD.Signal, b.MACD.Signal),
			Histogram: or(a.MACD.Histogram, b.MACD.Histogram),
		},
	}
}

// CombineOverview fuses two company overviews field-wise. Nil when both are nil.
func CombineOverview(primary, secondary *core.CompanyOverview) *core.CompanyOverview {
	switch {
	case primary == nil && secondary == nil:
		return nil
	case secondary == nil:
		o := *primary
		return &o
	case primary == nil:
		o := *secondary
		return &o
	}

	a, b := primary, secondary
	return &core.CompanyOverview{
		Symbol:           or(a.Symbol, b.Symbol),
		Name:             or(a.Name, b.Name),
		Description:      or(a.Description, b.Description),
		Sector:           or(a.Sector, b.Sector),
		Industry:         or(a.Industry, b.Industry),
		Exchange:         or(a.Exchange, b.Exchange),
		MarketCap:        or(a.MarketCap, b.MarketCap),
		PERatio:          or(a.PERatio, b.PERatio),
		EPS:              or(a.EPS, b.EPS),
		DividendYield:    or(a.DividendYield, b.DividendYield),
		Beta:             or(a.Beta, b.Beta),
		FiftyTwoWeekHigh: or(a.FiftyTwoWeekHigh, b.FiftyTwoWeekHigh),
		FiftyTwoWeekLow:  or(a.FiftyTwoWeekLow, b.FiftyTwoWeekLow),
		Source:           core.SourceCombined,
	}
}

// or returns a unless it is the zero value.
func or[T comparable](a, b T) T {
	var zero T
	if a != zero {
		return a
	}
	return b
}

func orTime(a, b time.Time) time.Time {
	if !a.IsZero() {
		return a
	}
	return b
}
