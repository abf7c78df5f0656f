package sentiment

import (
	"github.com/newthinker/marketlens/internal/core"
)

// MajorityShare is the weighted share a label needs to win the vote.
const MajorityShare = 0.6

// Tally is the result of a relevance-weighted vote.
type Tally struct {
	Label          core.Label
	PositiveWeight float64
	NegativeWeight float64
	NeutralWeight  float64
	Positive       int
	Negative       int
	Neutral        int
}

// Vote aggregates item labels weighted by relevance. An unset relevance
// counts as 1. Empty input or zero total weight is neutral.
func Vote(items []core.NewsItem) Tally {
	var t Tally
	for _, it := range items {
		t.add(it.Sentiment, it.Relevance)
	}
	t.settle()
	return t
}

// VoteTweets is Vote for tweets, weighted by impact.
func VoteTweets(tweets []core.ScoredTweet) Tally {
	var t Tally
	for _, tw := range tweets {
		t.add(tw.Sentiment, tw.Impact)
	}
	t.settle()
	return t
}

func (t *Tally) add(label core.Label, w float64) {
	if w <= 0 {
		w = 1
	}
	switch label {
	case core.LabelPositive:
		t.PositiveWeight += w
		t.Positive++
	case core.LabelNegative:
		t.NegativeWeight += w
		t.Negative++
	default:
		t.NeutralWeight += w
		t.Neutral++
	}
}

func (t *Tally) settle() {
	total := t.PositiveWeight + t.NegativeWeight + t.NeutralWeight
	switch {
	case total == 0:
		t.Label = core.LabelNeutral
	case t.PositiveWeight/total > MajorityShare:
		t.Label = core.LabelPositive
	case t.NegativeWeight/total > MajorityShare:
		t.Label = core.LabelNegative
	default:
		t.Label = core.LabelNeutral
	}
}

// Average returns the mean of scores and whether there were any.
func Average(scores []float64) (float64, bool) {
	if len(scores) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores)), true
}

// LabelScore maps a label to +1, -1 or 0.
func LabelScore(l core.Label) float64 {
	switch l {
	case core.LabelPositive:
		return 1
	case core.LabelNegative:
		return -1
	default:
		return 0
	}
}
