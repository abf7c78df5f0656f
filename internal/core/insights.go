package core

// Prediction is a short-horizon price projection.
type Prediction struct {
	PredictedPrice  float64  `json:"predictedPrice"`
	PredictedChange float64  `json:"predictedChange"`
	Confidence      float64  `json:"confidence"`
	Timeframe       string   `json:"timeframe"`
	Factors         []string `json:"factors"`
}

// TechnicalInsight summarizes trend and price levels.
type TechnicalInsight struct {
	Trend            string    `json:"trend"`
	SupportLevels    []float64 `json:"supportLevels"`
	ResistanceLevels []float64 `json:"resistanceLevels"`
	Patterns         []string  `json:"patterns"`
}

// RiskLevel grades a risk assessment.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskAssessment lists risk factors for a symbol.
type RiskAssessment struct {
	Level      RiskLevel `json:"level"`
	Factors    []string  `json:"factors"`
	Volatility float64   `json:"volatility"`
}

// Recommendation is the rule-based trade suggestion.
type Recommendation struct {
	Action      Action   `json:"action"`
	Confidence  float64  `json:"confidence"`
	Reasoning   []string `json:"reasoning"`
	TargetPrice float64  `json:"targetPrice"`
	StopLoss    float64  `json:"stopLoss"`
}

// Insights bundles the derived views over a combined analysis.
type Insights struct {
	RSILabel       string           `json:"rsiLabel"`
	MACDLabel      string           `json:"macdLabel"`
	Outlook        string           `json:"outlook"`
	Prediction     Prediction       `json:"prediction"`
	Technical      TechnicalInsight `json:"technical"`
	Risk           RiskAssessment   `json:"risk"`
	Recommendation Recommendation   `json:"recommendation"`
}
