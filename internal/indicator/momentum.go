package indicator

import (
	"strings"

	"github.com/newthinker/marketlens/internal/core"
)

const (
	RSIPeriod        = 14
	MACDFast         = 12
	MACDSlow         = 26
	MACDSignalPeriod = 9
	MAPeriod         = 20
)

// RSI computes the relative strength index over the trailing period deltas.
// A zero delta counts as a gain. Returns 0 with fewer than period+1 points
// and 100 when there are no losses.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return 0
	}

	var gains, losses float64
	for i := len(prices) - period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change >= 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// SignalMode selects how the MACD signal line is derived.
type SignalMode int

const (
	// SignalSinglePoint takes the 9-period EMA of the one-element series
	// holding the latest MACD value. That series is shorter than the period,
	// so the signal is 0 and the histogram equals the MACD line.
	SignalSinglePoint SignalMode = iota
	// SignalStandard takes the 9-period EMA over the full MACD line series.
	SignalStandard
)

// ParseSignalMode maps a config value to a SignalMode.
func ParseSignalMode(s string) SignalMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard":
		return SignalStandard
	default:
		return SignalSinglePoint
	}
}

func (m SignalMode) String() string {
	if m == SignalStandard {
		return "standard"
	}
	return "single_point"
}

// MACD computes EMA12 - EMA26 with the signal line chosen by mode.
// Returns the zero value with fewer than 26 points.
func MACD(prices []float64, mode SignalMode) core.MACD {
	if len(prices) < MACDSlow {
		return core.MACD{}
	}

	line := EMA(prices, MACDFast) - EMA(prices, MACDSlow)

	var signal float64
	switch mode {
	case SignalStandard:
		signal = EMA(macdLine(prices), MACDSignalPeriod)
	default:
		signal = EMA([]float64{line}, MACDSignalPeriod)
	}

	return core.MACD{
		Line:      line,
		Signal:    signal,
		Histogram: line - signal,
	}
}

// macdLine aligns the fast and slow EMA series on their common tail.
func macdLine(prices []float64) []float64 {
	fast := EMASeries(prices, MACDFast)
	slow := EMASeries(prices, MACDSlow)
	offset := len(fast) - len(slow)

	out := make([]float64, len(slow))
	for i := range slow {
		out[i] = fast[i+offset] - slow[i]
	}
	return out
}

// Compute derives the full indicator set from closing prices (oldest first).
func Compute(prices []float64, mode SignalMode) core.TechnicalIndicators {
	return core.TechnicalIndicators{
		SMA20: SMA(prices, MAPeriod),
		EMA20: EMA(prices, MAPeriod),
		RSI:   RSI(prices, RSIPeriod),
		MACD:  MACD(prices, mode),
	}
}
