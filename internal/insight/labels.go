// Package insight derives labels, a price projection, risk and a
// rule-based recommendation from a combined analysis.
package insight

import "github.com/newthinker/marketlens/internal/core"

const (
	Overbought = 70.0
	Oversold   = 30.0
)

// RSIClass buckets an RSI reading: overbought, oversold or neutral.
func RSIClass(rsi float64) string {
	switch {
	case rsi >= Overbought:
		return "overbought"
	case rsi <= Oversold:
		return "oversold"
	default:
		return "neutral"
	}
}

// RSILabel is the display form of RSIClass.
func RSILabel(rsi float64) string {
	switch RSIClass(rsi) {
	case "overbought":
		return "Overbought"
	case "oversold":
		return "Oversold"
	default:
		return "Neutral"
	}
}

// MACDClass is the sign of the histogram as a label.
func MACDClass(m core.MACD) core.Label {
	switch {
	case m.Histogram > 0:
		return core.LabelPositive
	case m.Histogram < 0:
		return core.LabelNegative
	default:
		return core.LabelNeutral
	}
}

// MACDLabel describes histogram momentum.
func MACDLabel(m core.MACD) string {
	switch MACDClass(m) {
	case core.LabelPositive:
		return "Bullish Momentum"
	case core.LabelNegative:
		return "Bearish Momentum"
	default:
		return "Neutral Momentum"
	}
}

// PredictionClass counts bullish and bearish votes from RSI extremes, the
// MACD histogram sign and the sentiment label.
func PredictionClass(ind core.TechnicalIndicators, sentiment core.Label) core.Label {
	bull, bear := 0, 0
	if ind.RSI < Oversold {
		bull++
	}
	if ind.RSI > Overbought {
		bear++
	}
	if ind.MACD.Histogram > 0 {
		bull++
	}
	if ind.MACD.Histogram < 0 {
		bear++
	}
	switch sentiment {
	case core.LabelPositive:
		bull++
	case core.LabelNegative:
		bear++
	}

	switch {
	case bull > bear:
		return core.LabelPositive
	case bear > bull:
		return core.LabelNegative
	default:
		return core.LabelNeutral
	}
}

// PriceOutlook is the display form of PredictionClass.
func PriceOutlook(ind core.TechnicalIndicators, sentiment core.Label) string {
	switch PredictionClass(ind, sentiment) {
	case core.LabelPositive:
		return "Likely to Rise"
	case core.LabelNegative:
		return "Likely to Fall"
	default:
		return "Neutral Outlook"
	}
}
