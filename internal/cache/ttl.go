package cache

import "time"

// Class groups cached payloads that share a time-to-live.
type Class string

const (
	ClassQuote        Class = "quote"
	ClassNews         Class = "news"
	ClassSearch       Class = "search"
	ClassAlphaVantage Class = "alpha_vantage"
	ClassMarketStatus Class = "market_status"
	ClassIndicators   Class = "indicators"
	ClassAnalysis     Class = "analysis"
	ClassOverview     Class = "overview"
	ClassSocial       Class = "social"
	ClassDefault      Class = "default"
)

// DefaultTTLs is the freshness window per class.
var DefaultTTLs = map[Class]time.Duration{
	ClassQuote:        5 * time.Minute,
	ClassNews:         15 * time.Minute,
	ClassSearch:       time.Hour,
	ClassAlphaVantage: 24 * time.Hour,
	ClassMarketStatus: time.Minute,
	ClassIndicators:   5 * time.Minute,
	ClassAnalysis:     5 * time.Minute,
	ClassOverview:     24 * time.Hour,
	ClassSocial:       5 * time.Minute,
	ClassDefault:      time.Hour,
}

// TTLTable resolves the TTL for a class, with optional overrides.
type TTLTable struct {
	ttls map[Class]time.Duration
}

// NewTTLTable copies the defaults and applies overrides keyed by class name.
// Non-positive overrides are ignored.
func NewTTLTable(overrides map[string]time.Duration) *TTLTable {
	ttls := make(map[Class]time.Duration, len(DefaultTTLs))
	for c, d := range DefaultTTLs {
		ttls[c] = d
	}
	for name, d := range overrides {
		if d > 0 {
			ttls[Class(name)] = d
		}
	}
	return &TTLTable{ttls: ttls}
}

// TTL returns the TTL for c, falling back to the default class.
func (t *TTLTable) TTL(c Class) time.Duration {
	if d, ok := t.ttls[c]; ok {
		return d
	}
	return t.ttls[ClassDefault]
}
