package cache

import "strings"

// Key prefixes, one per provider plus the fused analysis.
const (
	PrefixPolygon       = "polygon_"
	PrefixFinnhub       = "finnhub_"
	PrefixTwelveData    = "twelvedata_"
	PrefixAlphaVantage  = "alpha_vantage_"
	PrefixStockAnalysis = "stock_analysis_"
	PrefixTwitter       = "twitter_"
)

// Prefixes lists every prefix owned by the cache.
var Prefixes = []string{
	PrefixPolygon,
	PrefixFinnhub,
	PrefixTwelveData,
	PrefixAlphaVantage,
	PrefixStockAnalysis,
	PrefixTwitter,
}

// Key identifies a cached payload by provider prefix, endpoint, symbol and
// extra parameters. Class selects the TTL.
type Key struct {
	Prefix   string
	Endpoint string
	Symbol   string
	Params   []string
	Class    Class
}

// String renders prefix + endpoint_SYMBOL_params, skipping empty parts.
func (k Key) String() string {
	parts := make([]string, 0, 2+len(k.Params))
	if k.Endpoint != "" {
		parts = append(parts, k.Endpoint)
	}
	if k.Symbol != "" {
		parts = append(parts, strings.ToUpper(k.Symbol))
	}
	for _, p := range k.Params {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return k.Prefix + strings.Join(parts, "_")
}

// PolygonKey builds a key under the Polygon prefix.
func PolygonKey(endpoint, symbol string, class Class, params ...string) Key {
	return Key{Prefix: PrefixPolygon, Endpoint: endpoint, Symbol: symbol, Params: params, Class: class}
}

// FinnhubKey builds a key under the Finnhub prefix.
func FinnhubKey(endpoint, symbol string, class Class, params ...string) Key {
	return Key{Prefix: PrefixFinnhub, Endpoint: endpoint, Symbol: symbol, Params: params, Class: class}
}

// TwelveDataKey builds a key under the TwelveData prefix.
func TwelveDataKey(endpoint, symbol string, class Class, params ...string) Key {
	return Key{Prefix: PrefixTwelveData, Endpoint: endpoint, Symbol: symbol, Params: params, Class: class}
}

// AlphaVantageKey builds a key for an Alpha Vantage function. Every Alpha
// Vantage payload lives for the Alpha Vantage TTL.
func AlphaVantageKey(function string, params ...string) Key {
	return Key{Prefix: PrefixAlphaVantage, Endpoint: strings.ToUpper(function), Params: params, Class: ClassAlphaVantage}
}

// AnalysisKey builds the key of a fused per-symbol analysis.
func AnalysisKey(symbol string) Key {
	return Key{Prefix: PrefixStockAnalysis, Symbol: symbol, Class: ClassAnalysis}
}

// TwitterKey builds a relay cache key such as twitter_topic_<topic>.
func TwitterKey(kind, value string) Key {
	return Key{Prefix: PrefixTwitter, Endpoint: kind, Params: []string{value}, Class: ClassSocial}
}
