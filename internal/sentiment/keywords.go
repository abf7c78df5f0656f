// Package sentiment scores financial text with fixed keyword dictionaries
// and aggregates per-item labels.
package sentiment

import (
	"regexp"
	"sort"
	"strings"

	"github.com/newthinker/marketlens/internal/core"
)

var (
	positiveWords = []string{
		"up", "rise", "gain", "positive", "growth", "bullish", "surge", "rally", "increase", "profit",
		"beat", "exceed", "outperform", "strong", "improve", "recovery", "opportunity", "potential",
		"breakthrough", "innovation", "success", "win", "award", "launch", "expand",
	}

	negativeWords = []string{
		"down", "fall", "loss", "negative", "decline", "bearish", "plunge", "drop", "decrease",
		"miss", "underperform", "weak", "worse", "concern", "risk", "warning", "caution", "delay",
		"cut", "reduce", "layoff", "bankruptcy", "fail", "crash", "plummet",
	}

	// neutralWords are reported as keywords but never move the label.
	neutralWords = []string{
		"market", "stock", "price", "trading", "volume", "liquidity", "trend", "index", "sector",
		"industry", "revenue", "earnings", "margin", "valuation", "quarter", "annual", "fiscal",
		"forecast", "guidance", "outlook", "analysis", "report", "estimate", "target",
	}
)

// Result is the outcome of scoring one text.
type Result struct {
	Label    core.Label `json:"label"`
	Positive int        `json:"positive"`
	Negative int        `json:"negative"`
	Neutral  int        `json:"neutral"`
}

// Scorer counts whole-word dictionary matches in lowercased text.
type Scorer struct {
	positive *regexp.Regexp
	negative *regexp.Regexp
	neutral  *regexp.Regexp
	polarity map[string]int
}

// NewScorer compiles the default dictionaries.
func NewScorer() *Scorer {
	polarity := make(map[string]int, len(positiveWords)+len(negativeWords)+len(neutralWords))
	for _, w := range neutralWords {
		polarity[w] = 0
	}
	for _, w := range positiveWords {
		polarity[w] = 1
	}
	for _, w := range negativeWords {
		polarity[w] = -1
	}

	return &Scorer{
		positive: wordPattern(positiveWords),
		negative: wordPattern(negativeWords),
		neutral:  wordPattern(neutralWords),
		polarity: polarity,
	}
}

func wordPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Score labels text by majority of positive vs negative matches; ties are neutral.
func (s *Scorer) Score(text string) Result {
	lower := strings.ToLower(text)
	r := Result{
		Positive: len(s.positive.FindAllStringIndex(lower, -1)),
		Negative: len(s.negative.FindAllStringIndex(lower, -1)),
		Neutral:  len(s.neutral.FindAllStringIndex(lower, -1)),
	}

	switch {
	case r.Positive > r.Negative:
		r.Label = core.LabelPositive
	case r.Negative > r.Positive:
		r.Label = core.LabelNegative
	default:
		r.Label = core.LabelNeutral
	}
	return r
}

// Label is shorthand for Score(title + " " + body).Label.
func (s *Scorer) Label(title, body string) core.Label {
	return s.Score(title + " " + body).Label
}

// Keywords lists the dictionary words found in text, strongest polarity first.
func (s *Scorer) Keywords(text string) []core.Keyword {
	lower := strings.ToLower(text)
	counts := make(map[string]int)
	for _, re := range []*regexp.Regexp{s.positive, s.negative, s.neutral} {
		for _, m := range re.FindAllString(lower, -1) {
			counts[m]++
		}
	}

	out := make([]core.Keyword, 0, len(counts))
	for w, c := range counts {
		out = append(out, core.Keyword{Word: w, Polarity: s.polarity[w], Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := abs(out[i].Polarity), abs(out[j].Polarity)
		if ai != aj {
			return ai > aj
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// FromScore maps a provider sentiment score in [-1, 1] to a label.
func FromScore(score float64) core.Label {
	switch {
	case score > 0.2:
		return core.LabelPositive
	case score < -0.2:
		return core.LabelNegative
	default:
		return core.LabelNeutral
	}
}
