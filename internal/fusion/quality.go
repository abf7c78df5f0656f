package fusion

import (
	"math"

	"github.com/newthinker/marketlens/internal/core"
)

const (
	reliable   = 80
	unreliable = 40

	// Freshness is not measured against LastUpdated; every analysis scores 100.
	freshness = 100

	maxPlausibleMove = 50
)

// Quality scores a fused quote and indicator set.
//
// Completeness is the share of required numeric fields that are non-zero:
// price, change, change percent, volume, SMA20, EMA20, RSI and the MACD
// line. Reliability is 80 when the daily move is below 50% and RSI lies in
// [0, 100], else 40. Confidence is the mean of the three scores.
func Quality(q core.Quote, ind core.TechnicalIndicators) core.DataQuality {
	required := []float64{
		q.Price, q.Change, q.ChangePercent, float64(q.Volume),
		ind.SMA20, ind.EMA20, ind.RSI, ind.MACD.Line,
	}
	present := 0
	for _, v := range required {
		if v != 0 && !math.IsNaN(v) {
			present++
		}
	}
	completeness := float64(present) / float64(len(required)) * 100

	reliability := float64(unreliable)
	if math.Abs(q.ChangePercent) < maxPlausibleMove && ind.RSI >= 0 && ind.RSI <= 100 {
		reliability = reliable
	}

	confidence := (completeness + reliability + freshness) / 3
	return core.DataQuality{
		Completeness: completeness,
		Reliability:  reliability,
		Freshness:    freshness,
		Confidence:   confidence,
		Text:         QualityText(confidence),
	}
}

// QualityText describes a confidence score.
func QualityText(confidence float64) string {
	switch {
	case confidence >= 80:
		return "High Quality Analysis"
	case confidence >= 50:
		return "Moderate Quality Analysis"
	default:
		return "Limited Data Available"
	}
}
