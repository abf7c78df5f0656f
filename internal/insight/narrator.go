package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/llm"
)

// DefaultNarrativeTimeout bounds one narrative request.
const DefaultNarrativeTimeout = 30 * time.Second

// Recorder observes narrative requests.
type Recorder interface {
	RecordLLM(provider, outcome string, inputTokens, outputTokens int)
}

// Narrator asks an LLM for a short written summary of an analysis.
type Narrator struct {
	llm      llm.Provider
	logger   *zap.Logger
	timeout  time.Duration
	recorder Recorder
}

// SetRecorder sets the metrics recorder.
func (n *Narrator) SetRecorder(rec Recorder) {
	n.recorder = rec
}

func (n *Narrator) record(outcome string, u llm.Usage) {
	if n.recorder != nil {
		n.recorder.RecordLLM(n.llm.Name(), outcome, u.InputTokens, u.OutputTokens)
	}
}

// NewNarrator creates a narrator. A zero timeout uses DefaultNarrativeTimeout.
func NewNarrator(provider llm.Provider, logger *zap.Logger, timeout time.Duration) *Narrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultNarrativeTimeout
	}
	return &Narrator{llm: provider, logger: logger, timeout: timeout}
}

type narrative struct {
	Summary string `json:"summary"`
}

// Narrate returns the LLM summary of a. Failures are wrapped in
// ErrLLMFailed, or ErrLLMTimeout when the deadline passes.
func (n *Narrator) Narrate(ctx context.Context, a core.CombinedAnalysis) (string, error) {
	if n == nil || n.llm == nil {
		return "", core.WrapError(core.ErrLLMFailed, errors.New("no LLM provider configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req := llm.Prompt(narratorSystemPrompt, buildPrompt(a))
	req.MaxTokens, req.Temperature, req.JSONMode = 512, 0.3, true

	resp, err := n.llm.Chat(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			n.record("timeout", llm.Usage{})
			return "", core.WrapError(core.ErrLLMTimeout, err)
		}
		n.record("error", llm.Usage{})
		return "", core.WrapError(core.ErrLLMFailed, err)
	}
	n.record("ok", resp.Usage)

	var out narrative
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil || out.Summary == "" {
		n.logger.Debug("narrative was not JSON, using raw content",
			zap.String("provider", n.llm.Name()))
		return strings.TrimSpace(resp.Content), nil
	}
	n.logger.Debug("narrative ready",
		zap.String("provider", n.llm.Name()),
		zap.Int("tokens", resp.Usage.Total()))
	return strings.TrimSpace(out.Summary), nil
}

func buildPrompt(a core.CombinedAnalysis) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## %s\n\n", a.Symbol)
	fmt.Fprintf(&sb, "- Price: %.2f (%+.2f, %+.2f%%)\n", a.Quote.Price, a.Quote.Change, a.Quote.ChangePercent)
	fmt.Fprintf(&sb, "- SMA20: %.2f, EMA20: %.2f\n", a.Indicators.SMA20, a.Indicators.EMA20)
	fmt.Fprintf(&sb, "- RSI(14): %.1f\n", a.Indicators.RSI)
	fmt.Fprintf(&sb, "- MACD: line %.3f, signal %.3f, histogram %.3f\n",
		a.Indicators.MACD.Line, a.Indicators.MACD.Signal, a.Indicators.MACD.Histogram)
	fmt.Fprintf(&sb, "- News sentiment: %s (%d positive, %d negative, %d neutral)\n",
		a.Sentiment.Overall, a.Sentiment.Positive, a.Sentiment.Negative, a.Sentiment.Neutral)
	fmt.Fprintf(&sb, "- Data quality: %s (%.0f/100)\n", a.Quality.Text, a.Quality.Confidence)

	if a.Overview != nil {
		fmt.Fprintf(&sb, "- Company: %s, %s / %s\n", a.Overview.Name, a.Overview.Sector, a.Overview.Industry)
	}

	if in := a.Insights; in != nil {
		sb.WriteString("\n## Rule-based view:\n")
		fmt.Fprintf(&sb, "- Outlook: %s\n", in.Outlook)
		fmt.Fprintf(&sb, "- Trend: %s\n", in.Technical.Trend)
		fmt.Fprintf(&sb, "- Risk: %s\n", in.Risk.Level)
		fmt.Fprintf(&sb, "- Recommendation: %s (%.0f%%)\n", in.Recommendation.Action, in.Recommendation.Confidence)
	}

	headlines := a.Sentiment.Items
	if len(headlines) > 5 {
		headlines = headlines[:5]
	}
	if len(headlines) > 0 {
		sb.WriteString("\n## Headlines:\n")
		for _, it := range headlines {
			fmt.Fprintf(&sb, "- [%s] %s\n", it.Sentiment, it.Title)
		}
	}

	sb.WriteString("\nRespond with JSON: {\"summary\": \"...\"}\n")
	return sb.String()
}

const narratorSystemPrompt = `You are a market analyst writing for retail investors.
Summarize the data you are given in at most four sentences.
Mention price action, momentum and news sentiment. Do not invent figures.
This is not investment advice; never promise returns.
Always respond with valid JSON: {"summary": "..."}`
