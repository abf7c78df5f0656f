package insight

import (
	"fmt"
	"math"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/sentiment"
)

const (
	maxProjectedMove = 0.05
	stopLossBand     = 0.05
	divergenceLimit  = 2.0
	timeframe        = "1 month"
)

// Advisor produces rule-based insights. It is stateless.
type Advisor struct{}

// Analyze derives every insight for a.
func (Advisor) Analyze(a core.CombinedAnalysis) core.Insights {
	ind := a.Indicators
	mood := a.Sentiment.Overall
	price := a.Quote.Price

	pred := predict(price, ind, mood)
	risk := assessRisk(ind, mood)

	return core.Insights{
		RSILabel:       RSILabel(ind.RSI),
		MACDLabel:      MACDLabel(ind.MACD),
		Outlook:        PriceOutlook(ind, mood),
		Prediction:     pred,
		Technical:      technical(price, ind),
		Risk:           risk,
		Recommendation: recommend(price, ind, mood, pred, risk),
	}
}

// predict projects price by up to 5% from normalized RSI momentum, the MACD
// histogram direction and sentiment.
func predict(price float64, ind core.TechnicalIndicators, mood core.Label) core.Prediction {
	momentum := (ind.RSI - 50) / 50
	macd := -1.0
	if ind.MACD.Histogram > 0 {
		macd = 1
	}
	change := (momentum + macd + sentiment.LabelScore(mood)) / 3

	rsiDir, macdDir := "bearish", "negative"
	if ind.RSI > 50 {
		rsiDir = "bullish"
	}
	if ind.MACD.Histogram > 0 {
		macdDir = "positive"
	}
	if mood == "" {
		mood = core.LabelNeutral
	}

	return core.Prediction{
		PredictedPrice:  price * (1 + change*maxProjectedMove),
		PredictedChange: change * maxProjectedMove * 100,
		Confidence:      math.Min(math.Abs(change)*100, 100),
		Timeframe:       timeframe,
		Factors: []string{
			fmt.Sprintf("RSI indicates %s momentum", rsiDir),
			fmt.Sprintf("MACD shows %s trend", macdDir),
			fmt.Sprintf("Market sentiment is %s", mood),
		},
	}
}

func technical(price float64, ind core.TechnicalIndicators) core.TechnicalInsight {
	patterns := []string{}
	switch {
	case ind.RSI > Overbought:
		patterns = append(patterns, "Overbought condition detected")
	case ind.RSI < Oversold:
		patterns = append(patterns, "Oversold condition detected")
	}
	switch {
	case ind.MACD.Histogram > 0 && ind.MACD.Signal > 0:
		patterns = append(patterns, "Strong bullish momentum")
	case ind.MACD.Histogram < 0 && ind.MACD.Signal < 0:
		patterns = append(patterns, "Strong bearish momentum")
	}

	return core.TechnicalInsight{
		Trend:            trend(ind),
		SupportLevels:    []float64{price * 0.95, price * 0.90},
		ResistanceLevels: []float64{price * 1.05, price * 1.10},
		Patterns:         patterns,
	}
}

func trend(ind core.TechnicalIndicators) string {
	bull, bear := 0, 0
	vote := func(up, down bool) {
		if up {
			bull++
		}
		if down {
			bear++
		}
	}
	vote(ind.SMA20 > ind.EMA20, ind.SMA20 < ind.EMA20)
	vote(ind.RSI > 50, ind.RSI < 50)
	vote(ind.MACD.Histogram > 0, ind.MACD.Histogram < 0)

	switch {
	case bull > bear:
		return "Bullish trend detected"
	case bear > bull:
		return "Bearish trend detected"
	default:
		return "Neutral trend detected"
	}
}

func assessRisk(ind core.TechnicalIndicators, mood core.Label) core.RiskAssessment {
	volatility := math.Abs(ind.RSI-50) / 50

	factors := []string{}
	if ind.RSI > Overbought || ind.RSI < Oversold {
		factors = append(factors, "Extreme RSI levels indicate potential reversal")
	}
	if math.Abs(ind.MACD.Histogram) > divergenceLimit {
		factors = append(factors, "Strong MACD divergence suggests potential trend change")
	}
	if mood == core.LabelNegative {
		factors = append(factors, "Negative market sentiment increases downside risk")
	}

	level := core.RiskMedium
	switch {
	case volatility > 0.7 || len(factors) > 2:
		level = core.RiskHigh
	case volatility < 0.3 && len(factors) == 0:
		level = core.RiskLow
	}

	return core.RiskAssessment{Level: level, Factors: factors, Volatility: volatility}
}

func recommend(price float64, ind core.TechnicalIndicators, mood core.Label, pred core.Prediction, risk core.RiskAssessment) core.Recommendation {
	score := 0
	if ind.RSI > 50 {
		score++
	}
	if ind.MACD.Histogram > 0 {
		score++
	}
	score += int(sentiment.LabelScore(mood))
	switch {
	case pred.PredictedPrice > price:
		score++
	case pred.PredictedPrice < price:
		score--
	}
	switch risk.Level {
	case core.RiskHigh:
		score--
	case core.RiskLow:
		score++
	}

	action := core.ActionHold
	reasoning := []string{
		"Mixed signals suggest waiting for clearer direction",
		"Current risk level warrants a conservative approach",
	}
	switch {
	case score >= 2:
		action = core.ActionBuy
		reasoning = []string{
			"Strong technical indicators suggest upward momentum",
			"Positive market sentiment supports price appreciation",
		}
	case score <= -2:
		action = core.ActionSell
		reasoning = []string{
			"Technical indicators show potential downward pressure",
			"Market sentiment suggests caution",
		}
	}

	stop := price * (1 + stopLossBand)
	if action == core.ActionBuy {
		stop = price * (1 - stopLossBand)
	}

	return core.Recommendation{
		Action:      action,
		Confidence:  math.Min(math.Abs(float64(score))*25, 100),
		Reasoning:   reasoning,
		TargetPrice: pred.PredictedPrice,
		StopLoss:    stop,
	}
}
