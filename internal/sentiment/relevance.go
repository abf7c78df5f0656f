package sentiment

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/newthinker/marketlens/internal/core"
)

var credibleSources = map[string]bool{
	"Reuters":             true,
	"Bloomberg":           true,
	"Financial Times":     true,
	"Wall Street Journal": true,
}

// Relevance scores a news item in [0, 1] from recency, length and publisher.
func Relevance(item core.NewsItem, now time.Time) float64 {
	relevance := 0.5

	hours := math.Max(0, now.Sub(item.PublishedAt).Hours())
	relevance += math.Max(0, 0.3*(1-hours/24))

	relevance += math.Min(0.2, float64(len(item.Content))/10000)

	if credibleSources[item.Source] {
		relevance += 0.2
	}

	return math.Min(1, relevance)
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// KeyPoints returns up to n sentences of content ranked by the mean corpus
// frequency of their words.
func KeyPoints(content string, n int) []string {
	if n <= 0 {
		return nil
	}

	freq := make(map[string]int)
	for _, w := range strings.Fields(strings.ToLower(content)) {
		freq[w]++
	}

	type scored struct {
		sentence string
		score    float64
	}
	var sentences []scored
	for _, s := range sentenceSplit.Split(content, -1) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		words := strings.Fields(strings.ToLower(s))
		var sum int
		for _, w := range words {
			sum += freq[w]
		}
		sentences = append(sentences, scored{sentence: s, score: float64(sum) / float64(len(words))})
	}

	sort.SliceStable(sentences, func(i, j int) bool {
		return sentences[i].score > sentences[j].score
	})

	if len(sentences) > n {
		sentences = sentences[:n]
	}
	out := make([]string, len(sentences))
	for i, s := range sentences {
		out[i] = s.sentence
	}
	return out
}

// MaxImpact caps ImpactScore.
const MaxImpact = 10.0

// ImpactScore rates a tweet's reach from its engagement counters.
func ImpactScore(m core.TweetMetrics) float64 {
	score := (1 + float64(m.LikeCount)/1000) *
		(1 + float64(m.RetweetCount)/500) *
		(1 + float64(m.ReplyCount)/100)
	return math.Min(MaxImpact, score)
}
