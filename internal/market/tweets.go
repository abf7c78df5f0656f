package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/cache"
	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/sentiment"
)

// DefaultTweetLimit is the page size of topic and timeline queries.
const DefaultTweetLimit = 10

// socialKeywords caps SocialSentiment.Keywords.
const socialKeywords = 10

// TweetSource is the social feed behind the relay endpoints.
type TweetSource interface {
	collector.Provider
	SearchRecent(ctx context.Context, query string, limit int) ([]core.Tweet, error)
	UserTweets(ctx context.Context, username string, limit int) ([]core.Tweet, error)
	Tweet(ctx context.Context, id string) (*core.Tweet, error)
}

// TopicTweets returns recent tweets mentioning topic.
func (s *Service) TopicTweets(ctx context.Context, topic string) ([]core.Tweet, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, core.WrapError(core.ErrInvalidSymbol, errors.New("empty topic"))
	}
	return relay(ctx, s, cache.TwitterKey("topic", strings.ToLower(topic)), func(ctx context.Context, src TweetSource) ([]core.Tweet, error) {
		return src.SearchRecent(ctx, topic, DefaultTweetLimit)
	})
}

// UserTweets returns the latest tweets of a user.
func (s *Service) UserTweets(ctx context.Context, username string) ([]core.Tweet, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, core.WrapError(core.ErrInvalidSymbol, errors.New("empty username"))
	}
	return relay(ctx, s, cache.TwitterKey("user", strings.ToLower(username)), func(ctx context.Context, src TweetSource) ([]core.Tweet, error) {
		return src.UserTweets(ctx, username, DefaultTweetLimit)
	})
}

// Tweet returns a single tweet by id.
func (s *Service) Tweet(ctx context.Context, id string) (*core.Tweet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, core.WrapError(core.ErrInvalidSymbol, errors.New("empty tweet id"))
	}
	return relay(ctx, s, cache.TwitterKey("tweet", id), func(ctx context.Context, src TweetSource) (*core.Tweet, error) {
		return src.Tweet(ctx, id)
	})
}

// SocialSentiment labels recent cashtag tweets for symbol and votes them
// weighted by engagement. Tweets are returned highest impact first.
func (s *Service) SocialSentiment(ctx context.Context, symbol string) (core.SocialSentiment, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return core.SocialSentiment{}, err
	}
	tweets, err := s.TopicTweets(ctx, "$"+sym)
	if err != nil {
		return core.SocialSentiment{}, err
	}

	scored := make([]core.ScoredTweet, len(tweets))
	texts := make([]string, len(tweets))
	for i, tw := range tweets {
		scored[i] = core.ScoredTweet{
			Tweet:     tw,
			Sentiment: s.scorer.Score(tw.Text).Label,
			Impact:    sentiment.ImpactScore(tw.Metrics),
		}
		texts[i] = tw.Text
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Impact > scored[j].Impact
	})

	keywords := s.scorer.Keywords(strings.Join(texts, "\n"))
	if len(keywords) > socialKeywords {
		keywords = keywords[:socialKeywords]
	}

	tally := sentiment.VoteTweets(scored)
	return core.SocialSentiment{
		Symbol:      sym,
		Overall:     tally.Label,
		Positive:    tally.Positive,
		Negative:    tally.Negative,
		Neutral:     tally.Neutral,
		Keywords:    keywords,
		Tweets:      scored,
		LastUpdated: s.now(),
	}, nil
}

// relay reads through the social cache. Only a rate-limited upstream falls
// back to the last cached answer; other failures are returned as is.
func relay[T any](ctx context.Context, s *Service, key cache.Key, fetch func(context.Context, TweetSource) (T, error)) (T, error) {
	var zero T
	src, ok := collector.Lookup[TweetSource](s.providers, core.ProviderTwitter)
	if !ok {
		return zero, notConfigured(core.ProviderTwitter)
	}

	v, err := cache.Fetch(ctx, s.cache, key, core.ProviderTwitter, func(ctx context.Context) (T, error) {
		return fetch(ctx, src)
	})
	if err == nil {
		return v, nil
	}
	if errors.Is(err, core.ErrRateLimited) {
		if stale, at, ok := cache.LoadStale[T](ctx, s.cache, key); ok {
			s.logger.Info("rate limited, serving cached tweets",
				zap.String("key", key.String()),
				zap.Time("stored_at", at))
			return stale, nil
		}
	}
	return zero, fmt.Errorf("twitter %s: %w", key.Endpoint, err)
}

// TweetStreamer delivers the filtered stream.
type TweetStreamer interface {
	collector.Provider
	Stream(ctx context.Context, fn func(core.Tweet) error) error
}

// StreamTweets forwards live tweets to fn until ctx is cancelled, fn
// returns an error or the upstream closes the stream.
func (s *Service) StreamTweets(ctx context.Context, fn func(core.Tweet) error) error {
	src, ok := collector.Lookup[TweetStreamer](s.providers, core.ProviderTwitter)
	if !ok {
		return notConfigured(core.ProviderTwitter)
	}
	s.logger.Info("tweet stream opened")
	err := src.Stream(ctx, fn)
	s.logger.Info("tweet stream closed", zap.Error(err))
	return err
}
