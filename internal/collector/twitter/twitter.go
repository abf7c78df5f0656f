// Package twitter adapts the X (Twitter) API v2 with app-only bearer
// authentication. Tweets are returned with their author expanded.
package twitter

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/httpx"
)

const (
	Name           = core.ProviderTwitter
	DefaultBaseURL = "https://api.twitter.com"

	// DefaultMaxResults matches the smallest page the search endpoint allows.
	DefaultMaxResults = 10
	maxResultsCap     = 100

	tweetFields = "created_at,public_metrics,author_id"
	userFields  = "username,name,profile_image_url"
	expansions  = "author_id"
)

// Client is a Twitter v2 adapter.
type Client struct {
	*collector.Client
	stream *collector.Client
}

// New creates a Twitter client. Streaming requests use a client without an
// overall timeout unless opts supply their own HTTP client.
func New(bearerToken string, opts ...collector.Option) *Client {
	c := collector.NewClient(Name, DefaultBaseURL, opts...)
	c.SetHeader("Authorization", "Bearer "+bearerToken)

	streamOpts := append([]collector.Option{collector.WithHTTPClient(httpx.NewStreaming())}, opts...)
	s := collector.NewClient(Name, DefaultBaseURL, streamOpts...)
	s.SetHeader("Authorization", "Bearer "+bearerToken)

	return &Client{Client: c, stream: s}
}

type apiTweet struct {
	ID            string             `json:"id"`
	Text          string             `json:"text"`
	CreatedAt     string             `json:"created_at"`
	AuthorID      string             `json:"author_id"`
	PublicMetrics *core.TweetMetrics `json:"public_metrics"`
}

type apiUser struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
}

type includes struct {
	Users []apiUser `json:"users"`
}

type apiProblem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

type listResponse struct {
	Data     []apiTweet   `json:"data"`
	Includes includes     `json:"includes"`
	Errors   []apiProblem `json:"errors"`
}

type singleResponse struct {
	Data     *apiTweet    `json:"data"`
	Includes includes     `json:"includes"`
	Errors   []apiProblem `json:"errors"`
}

func (u apiUser) author() *core.TweetAuthor {
	return &core.TweetAuthor{ID: u.ID, Username: u.Username, Name: u.Name, ProfileImageURL: u.ProfileImageURL}
}

func (t apiTweet) normalize(users map[string]*core.TweetAuthor) core.Tweet {
	created, _ := time.Parse(time.RFC3339, t.CreatedAt)
	out := core.Tweet{
		ID:        t.ID,
		Text:      t.Text,
		CreatedAt: created.UTC(),
		Author:    users[t.AuthorID],
	}
	if t.PublicMetrics != nil {
		out.Metrics = *t.PublicMetrics
	}
	return out
}

func index(in includes) map[string]*core.TweetAuthor {
	users := make(map[string]*core.TweetAuthor, len(in.Users))
	for _, u := range in.Users {
		users[u.ID] = u.author()
	}
	return users
}

func expandParams(limit int) url.Values {
	p := url.Values{
		"tweet.fields": {tweetFields},
		"user.fields":  {userFields},
		"expansions":   {expansions},
	}
	if limit > 0 {
		p.Set("max_results", strconv.Itoa(clamp(limit)))
	}
	return p
}

func clamp(limit int) int {
	if limit < DefaultMaxResults {
		return DefaultMaxResults
	}
	if limit > maxResultsCap {
		return maxResultsCap
	}
	return limit
}

// SearchRecent returns recent tweets matching query, newest first.
func (c *Client) SearchRecent(ctx context.Context, query string, limit int) ([]core.Tweet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.WrapError(core.ErrInvalidSymbol, errors.New("empty search query"))
	}
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	params := expandParams(limit)
	params.Set("query", query)

	var resp listResponse
	if err := c.GetJSON(ctx, "/2/tweets/search/recent", params, &resp); err != nil {
		return nil, fmt.Errorf("searching tweets: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, c.NotFound("no tweets found for %q", query)
	}

	users := index(resp.Includes)
	tweets := make([]core.Tweet, 0, len(resp.Data))
	for _, t := range resp.Data {
		tweets = append(tweets, t.normalize(users))
	}
	return tweets, nil
}

// User looks up an account by username.
func (c *Client) User(ctx context.Context, username string) (*core.TweetAuthor, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, core.WrapError(core.ErrInvalidSymbol, errors.New("empty username"))
	}

	var resp struct {
		Data   *apiUser     `json:"data"`
		Errors []apiProblem `json:"errors"`
	}
	path := "/2/users/by/username/" + url.PathEscape(username)
	if err := c.GetJSON(ctx, path, url.Values{"user.fields": {userFields}}, &resp); err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if resp.Data == nil {
		return nil, c.NotFound("user %s not found%s", username, problems(resp.Errors))
	}
	return resp.Data.author(), nil
}

// UserTweets returns the recent timeline of username.
func (c *Client) UserTweets(ctx context.Context, username string, limit int) ([]core.Tweet, error) {
	user, err := c.User(ctx, username)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	params := url.Values{
		"tweet.fields": {tweetFields},
		"max_results":  {strconv.Itoa(clamp(limit))},
	}
	var resp listResponse
	if err := c.GetJSON(ctx, "/2/users/"+url.PathEscape(user.ID)+"/tweets", params, &resp); err != nil {
		return nil, fmt.Errorf("fetching timeline: %w", err)
	}

	users := map[string]*core.TweetAuthor{user.ID: user}
	tweets := make([]core.Tweet, 0, len(resp.Data))
	for _, t := range resp.Data {
		if t.AuthorID == "" {
			t.AuthorID = user.ID
		}
		tweets = append(tweets, t.normalize(users))
	}
	return tweets, nil
}

// Tweet returns a single tweet by id.
func (c *Client) Tweet(ctx context.Context, id string) (*core.Tweet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, core.WrapError(core.ErrInvalidSymbol, errors.New("empty tweet id"))
	}

	var resp singleResponse
	if err := c.GetJSON(ctx, "/2/tweets/"+url.PathEscape(id), expandParams(0), &resp); err != nil {
		return nil, fmt.Errorf("fetching tweet: %w", err)
	}
	if resp.Data == nil {
		return nil, c.NotFound("tweet %s not found%s", id, problems(resp.Errors))
	}
	t := resp.Data.normalize(index(resp.Includes))
	return &t, nil
}

// Stream reads the filtered stream and calls fn for every delivered tweet
// until ctx is cancelled, the connection drops or fn returns an error.
// Stream rules are managed out of band. A cancelled ctx ends the stream
// without error.
func (c *Client) Stream(ctx context.Context, fn func(core.Tweet) error) error {
	resp, err := c.stream.Open(ctx, "/2/tweets/search/stream", expandParams(0))
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue // keep-alive
		}

		var msg singleResponse
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			c.Logger().Warn("skipping undecodable stream message", zap.Error(err))
			continue
		}
		if msg.Data == nil {
			continue
		}
		if err := fn(msg.Data.normalize(index(msg.Includes))); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return core.NewProviderError(Name, core.ErrNetwork, 0, fmt.Errorf("reading stream: %w", err))
	}
	return core.NewProviderError(Name, core.ErrNetwork, 0, errors.New("stream closed by server"))
}

func problems(ps []apiProblem) string {
	if len(ps) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		if p.Detail != "" {
			parts = append(parts, p.Detail)
		} else {
			parts = append(parts, p.Title)
		}
	}
	return ": " + strings.Join(parts, "; ")
}
