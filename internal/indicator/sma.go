// Package indicator computes SMA, EMA, RSI and MACD over closing prices,
// oldest first. Series shorter than a period yield zero values, not errors.
package indicator

// Smoothing is the EMA weight 2/(n+1) for period n.
func Smoothing(period int) float64 {
	return 2 / float64(period+1)
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func tooShort(prices []float64, period int) bool {
	return period <= 0 || len(prices) < period
}

// SMASeries returns the rolling mean for every full window, so its length
// is len(prices)-period+1.
func SMASeries(prices []float64, period int) []float64 {
	if tooShort(prices, period) {
		return []float64{}
	}

	out := make([]float64, len(prices)-period+1)
	window := mean(prices[:period]) * float64(period)
	out[0] = window / float64(period)
	for i := period; i < len(prices); i++ {
		window += prices[i] - prices[i-period]
		out[i-period+1] = window / float64(period)
	}
	return out
}

// EMASeries starts from the SMA of the first period prices and applies
// EMA_t = (p_t - EMA_t-1) * k + EMA_t-1 to each later price.
func EMASeries(prices []float64, period int) []float64 {
	if tooShort(prices, period) {
		return []float64{}
	}

	k := Smoothing(period)
	out := make([]float64, len(prices)-period+1)
	out[0] = mean(prices[:period])
	for i, p := range prices[period:] {
		out[i+1] = (p-out[i])*k + out[i]
	}
	return out
}

// SMA is the mean of the last period prices.
func SMA(prices []float64, period int) float64 {
	if tooShort(prices, period) {
		return 0
	}
	return mean(prices[len(prices)-period:])
}

// EMA is the final value of EMASeries.
func EMA(prices []float64, period int) float64 {
	return last(EMASeries(prices, period))
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
