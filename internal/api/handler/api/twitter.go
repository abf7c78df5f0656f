package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/api/response"
	"github.com/newthinker/marketlens/internal/core"
)

// Tweets is the slice of market.Service the relay routes need.
type Tweets interface {
	TopicTweets(ctx context.Context, topic string) ([]core.Tweet, error)
	UserTweets(ctx context.Context, username string) ([]core.Tweet, error)
	Tweet(ctx context.Context, id string) (*core.Tweet, error)
	StreamTweets(ctx context.Context, fn func(core.Tweet) error) error
}

// TwitterHandler relays Twitter lookups. Bodies are bare JSON without the
// envelope, and failures use the flat relay error format.
type TwitterHandler struct {
	tweets Tweets
	logger *zap.Logger
}

// NewTwitterHandler creates a new relay handler.
func NewTwitterHandler(t Tweets, logger *zap.Logger) *TwitterHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwitterHandler{tweets: t, logger: logger}
}

// Topic handles GET /api/twitter/topic/{topic}.
func (h *TwitterHandler) Topic(w http.ResponseWriter, r *http.Request) {
	tweets, err := h.tweets.TopicTweets(r.Context(), r.PathValue("topic"))
	if err == nil && len(tweets) == 0 {
		err = core.WrapError(core.ErrNotFound, errors.New("no tweets found for this topic"))
	}
	h.relay(w, tweets, err)
}

// User handles GET /api/twitter/user/{username}.
func (h *TwitterHandler) User(w http.ResponseWriter, r *http.Request) {
	tweets, err := h.tweets.UserTweets(r.Context(), r.PathValue("username"))
	h.relay(w, tweets, err)
}

// Tweet handles GET /api/twitter/tweet/{id}.
func (h *TwitterHandler) Tweet(w http.ResponseWriter, r *http.Request) {
	tweet, err := h.tweets.Tweet(r.Context(), r.PathValue("id"))
	h.relay(w, tweet, err)
}

func (h *TwitterHandler) relay(w http.ResponseWriter, v any, err error) {
	if err != nil {
		h.logger.Debug("twitter relay failed", zap.Error(err))
		response.RelayError(w, err)
		return
	}
	response.Raw(w, http.StatusOK, v)
}

// Stream handles GET /api/twitter/stream as server-sent events. Each tweet
// is one "data:" frame; a failure after the stream opened is sent as an
// "error" event carrying the relay error body.
func (h *TwitterHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	_ = rc.Flush()

	err := h.tweets.StreamTweets(r.Context(), func(t core.Tweet) error {
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	})
	if err == nil || r.Context().Err() != nil {
		return
	}

	h.logger.Warn("tweet stream ended", zap.Error(err))
	body := response.RelayErrorResponse{Error: err.Error()}
	if kind := core.KindOf(err); kind != nil {
		body.Code = kind.Code
	}
	data, _ := json.Marshal(body)
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	_ = rc.Flush()
}
