package insight

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/llm"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func analysis(price float64, ind core.TechnicalIndicators, sentiment core.Label) core.CombinedAnalysis {
	return core.CombinedAnalysis{
		Symbol:     "AAPL",
		Quote:      core.Quote{Symbol: "AAPL", Price: price},
		Indicators: ind,
		Sentiment:  core.SentimentSummary{Overall: sentiment},
	}
}

func TestRSILabels(t *testing.T) {
	tests := []struct {
		rsi   float64
		class string
		label string
	}{
		{70, "overbought", "Overbought"},
		{85, "overbought", "Overbought"},
		{30, "oversold", "Oversold"},
		{12, "oversold", "Oversold"},
		{50, "neutral", "Neutral"},
	}
	for _, tt := range tests {
		if got := RSIClass(tt.rsi); got != tt.class {
			t.Errorf("RSIClass(%v) = %q, want %q", tt.rsi, got, tt.class)
		}
		if got := RSILabel(tt.rsi); got != tt.label {
			t.Errorf("RSILabel(%v) = %q, want %q", tt.rsi, got, tt.label)
		}
	}
}

func TestMACDLabel(t *testing.T) {
	if got := MACDLabel(core.MACD{Histogram: 0.2}); got != "Bullish Momentum" {
		t.Errorf("got %q", got)
	}
	if got := MACDLabel(core.MACD{Histogram: -0.2}); got != "Bearish Momentum" {
		t.Errorf("got %q", got)
	}
	if got := MACDLabel(core.MACD{}); got != "Neutral Momentum" {
		t.Errorf("got %q", got)
	}
}

func TestPredictionClass(t *testing.T) {
	tests := []struct {
		name      string
		ind       core.TechnicalIndicators
		sentiment core.Label
		want      core.Label
	}{
		{"oversold with positive news", core.TechnicalIndicators{RSI: 25}, core.LabelPositive, core.LabelPositive},
		{"overbought and falling", core.TechnicalIndicators{RSI: 75, MACD: core.MACD{Histogram: -1}}, core.LabelNeutral, core.LabelNegative},
		{"balanced", core.TechnicalIndicators{RSI: 50, MACD: core.MACD{Histogram: 1}}, core.LabelNegative, core.LabelNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PredictionClass(tt.ind, tt.sentiment); got != tt.want {
				t.Errorf("PredictionClass = %q, want %q", got, tt.want)
			}
		})
	}
	if got := PriceOutlook(core.TechnicalIndicators{RSI: 25}, core.LabelPositive); got != "Likely to Rise" {
		t.Errorf("PriceOutlook = %q", got)
	}
}

func TestAdvisor_Bullish(t *testing.T) {
	ind := core.TechnicalIndicators{SMA20: 101, EMA20: 100, RSI: 65, MACD: core.MACD{Line: 0.8, Signal: 0.3, Histogram: 0.5}}
	in := Advisor{}.Analyze(analysis(100, ind, core.LabelPositive))

	if !near(in.Prediction.PredictedPrice, 100*(1+(0.3+1+1)/3*0.05)) {
		t.Errorf("predicted price = %v", in.Prediction.PredictedPrice)
	}
	if !near(in.Prediction.Confidence, 2.3/3*100) {
		t.Errorf("prediction confidence = %v", in.Prediction.Confidence)
	}
	if in.Technical.Trend != "Bullish trend detected" {
		t.Errorf("trend = %q", in.Technical.Trend)
	}
	if len(in.Technical.Patterns) != 1 || in.Technical.Patterns[0] != "Strong bullish momentum" {
		t.Errorf("patterns = %v", in.Technical.Patterns)
	}
	if !near(in.Technical.SupportLevels[0], 95) || !near(in.Technical.ResistanceLevels[1], 110) {
		t.Errorf("levels = %v / %v", in.Technical.SupportLevels, in.Technical.ResistanceLevels)
	}
	if in.Risk.Level != core.RiskMedium {
		t.Errorf("risk = %q, want medium at volatility exactly 0.3", in.Risk.Level)
	}
	if in.Recommendation.Action != core.ActionBuy {
		t.Errorf("action = %q, want buy", in.Recommendation.Action)
	}
	if in.Recommendation.Confidence != 100 {
		t.Errorf("confidence = %v, want capped 100", in.Recommendation.Confidence)
	}
	if !near(in.Recommendation.StopLoss, 95) {
		t.Errorf("stop loss = %v", in.Recommendation.StopLoss)
	}
	if in.Outlook != "Likely to Rise" || in.RSILabel != "Neutral" || in.MACDLabel != "Bullish Momentum" {
		t.Errorf("labels = %q %q %q", in.Outlook, in.RSILabel, in.MACDLabel)
	}
}

func TestAdvisor_Bearish(t *testing.T) {
	ind := core.TechnicalIndicators{SMA20: 49, EMA20: 50, RSI: 80, MACD: core.MACD{Line: -2, Signal: -1, Histogram: -3}}
	in := Advisor{}.Analyze(analysis(50, ind, core.LabelNegative))

	if in.Risk.Level != core.RiskHigh {
		t.Errorf("risk = %q, want high", in.Risk.Level)
	}
	if len(in.Risk.Factors) != 3 {
		t.Errorf("risk factors = %v", in.Risk.Factors)
	}
	if !near(in.Risk.Volatility, 0.6) {
		t.Errorf("volatility = %v", in.Risk.Volatility)
	}
	if in.Recommendation.Action != core.ActionSell {
		t.Errorf("action = %q, want sell", in.Recommendation.Action)
	}
	if in.Recommendation.Confidence != 50 {
		t.Errorf("confidence = %v", in.Recommendation.Confidence)
	}
	if !near(in.Recommendation.StopLoss, 52.5) {
		t.Errorf("stop loss = %v", in.Recommendation.StopLoss)
	}
	want := []string{"Overbought condition detected", "Strong bearish momentum"}
	if strings.Join(in.Technical.Patterns, "|") != strings.Join(want, "|") {
		t.Errorf("patterns = %v", in.Technical.Patterns)
	}
	if in.Technical.Trend != "Bearish trend detected" {
		t.Errorf("trend = %q", in.Technical.Trend)
	}
	if in.Outlook != "Likely to Fall" {
		t.Errorf("outlook = %q", in.Outlook)
	}
}

func TestAdvisor_Hold(t *testing.T) {
	ind := core.TechnicalIndicators{RSI: 45, MACD: core.MACD{Histogram: -0.1}}
	in := Advisor{}.Analyze(analysis(10, ind, core.LabelNeutral))

	if in.Risk.Level != core.RiskLow {
		t.Errorf("risk = %q, want low", in.Risk.Level)
	}
	if in.Recommendation.Action != core.ActionHold {
		t.Errorf("action = %q, want hold", in.Recommendation.Action)
	}
	if in.Recommendation.Confidence != 0 {
		t.Errorf("confidence = %v", in.Recommendation.Confidence)
	}
	if !near(in.Recommendation.StopLoss, 10.5) {
		t.Errorf("stop loss = %v", in.Recommendation.StopLoss)
	}
	if in.Prediction.Factors[2] != "Market sentiment is neutral" {
		t.Errorf("factors = %v", in.Prediction.Factors)
	}
}

type mockLLM struct {
	content string
	err     error
	delay   time.Duration
	lastReq llm.ChatRequest
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.lastReq = req
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llm.ChatResponse{Content: m.content, Usage: llm.Usage{InputTokens: 50, OutputTokens: 10}}, nil
}

type llmCalls struct{ outcomes []string }

func (r *llmCalls) RecordLLM(provider, outcome string, in, out int) {
	r.outcomes = append(r.outcomes, fmt.Sprintf("%s/%s/%d/%d", provider, outcome, in, out))
}

func TestNarrator_Narrate(t *testing.T) {
	m := &mockLLM{content: `{"summary":"  AAPL is drifting higher on upbeat news. "}`}
	n := NewNarrator(m, nil, 0)

	a := analysis(190, core.TechnicalIndicators{RSI: 61}, core.LabelPositive)
	a.Sentiment.Items = []core.NewsItem{{Title: "Apple beats estimates", Sentiment: core.LabelPositive}}
	in := Advisor{}.Analyze(a)
	a.Insights = &in

	got, err := n.Narrate(context.Background(), a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "AAPL is drifting higher on upbeat news." {
		t.Errorf("summary = %q", got)
	}

	prompt := m.lastReq.Messages[0].Content
	for _, want := range []string{"## AAPL", "RSI(14): 61.0", "Apple beats estimates", "Recommendation:"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if !m.lastReq.JSONMode {
		t.Error("expected JSON mode")
	}
}

func TestNarrator_RawContentFallback(t *testing.T) {
	n := NewNarrator(&mockLLM{content: "Plain text summary."}, nil, 0)
	got, err := n.Narrate(context.Background(), analysis(1, core.TechnicalIndicators{}, core.LabelNeutral))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Plain text summary." {
		t.Errorf("summary = %q", got)
	}
}

func TestNarrator_Errors(t *testing.T) {
	n := NewNarrator(&mockLLM{err: errors.New("upstream 500")}, nil, 0)
	_, err := n.Narrate(context.Background(), core.CombinedAnalysis{})
	if !errors.Is(err, core.ErrLLMFailed) {
		t.Errorf("expected ErrLLMFailed, got %v", err)
	}

	n = NewNarrator(&mockLLM{delay: time.Second}, nil, 10*time.Millisecond)
	_, err = n.Narrate(context.Background(), core.CombinedAnalysis{})
	if !errors.Is(err, core.ErrLLMTimeout) {
		t.Errorf("expected ErrLLMTimeout, got %v", err)
	}

	var nilNarrator *Narrator
	if _, err := nilNarrator.Narrate(context.Background(), core.CombinedAnalysis{}); !errors.Is(err, core.ErrLLMFailed) {
		t.Errorf("expected ErrLLMFailed for nil narrator, got %v", err)
	}
}

func TestNarrator_RecordsOutcomes(t *testing.T) {
	rec := &llmCalls{}

	n := NewNarrator(&mockLLM{content: `{"summary":"ok"}`}, nil, 0)
	n.SetRecorder(rec)
	_, _ = n.Narrate(context.Background(), core.CombinedAnalysis{Symbol: "AAPL"})

	n = NewNarrator(&mockLLM{err: errors.New("boom")}, nil, 0)
	n.SetRecorder(rec)
	_, _ = n.Narrate(context.Background(), core.CombinedAnalysis{Symbol: "AAPL"})

	want := []string{"mock/ok/50/10", "mock/error/0/0"}
	if strings.Join(rec.outcomes, ",") != strings.Join(want, ",") {
		t.Errorf("outcomes = %v, want %v", rec.outcomes, want)
	}
}
