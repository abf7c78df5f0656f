// Package api holds the JSON handlers mounted under /api.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/newthinker/marketlens/internal/api/response"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/market"
)

// Market is the slice of market.Service the data routes need.
type Market interface {
	Quote(ctx context.Context, symbol string) (*core.Quote, error)
	Indicators(ctx context.Context, symbol string) (core.TechnicalIndicators, error)
	Overview(ctx context.Context, symbol string) (*core.CompanyOverview, error)
	News(ctx context.Context, symbol string) ([]core.NewsItem, error)
	MarketNews(ctx context.Context, category string) ([]core.NewsItem, error)
	Sentiment(ctx context.Context, symbol string) (core.SentimentSummary, error)
	SocialSentiment(ctx context.Context, symbol string) (core.SocialSentiment, error)
	Analysis(ctx context.Context, symbol string, opts market.AnalysisOptions) (*core.CombinedAnalysis, error)
	Forex(ctx context.Context, from, to string) (*core.ForexRate, error)
	Crypto(ctx context.Context, symbol, market string) (*core.CryptoQuote, error)
	MarketStatus(ctx context.Context) (*core.MarketStatus, error)
	Search(ctx context.Context, term string, byName bool) ([]core.SymbolSuggestion, error)
	ClearCache(ctx context.Context) (int, error)
	ClearSymbolCache(ctx context.Context, symbol string) (int, error)
}

// MarketHandler serves quotes, indicators, news and analysis.
type MarketHandler struct {
	market Market
}

// NewMarketHandler creates a new market handler.
func NewMarketHandler(m Market) *MarketHandler {
	return &MarketHandler{market: m}
}

// reply writes v, or the error when err is set.
func reply(w http.ResponseWriter, v any, err error) {
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, v)
}

// Quote handles GET /api/v1/quotes/{symbol}.
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q, err := h.market.Quote(r.Context(), r.PathValue("symbol"))
	reply(w, q, err)
}

// Indicators handles GET /api/v1/indicators/{symbol}.
func (h *MarketHandler) Indicators(w http.ResponseWriter, r *http.Request) {
	ind, err := h.market.Indicators(r.Context(), r.PathValue("symbol"))
	reply(w, ind, err)
}

// Overview handles GET /api/v1/overview/{symbol}.
func (h *MarketHandler) Overview(w http.ResponseWriter, r *http.Request) {
	o, err := h.market.Overview(r.Context(), r.PathValue("symbol"))
	reply(w, o, err)
}

// News handles GET /api/v1/news/{symbol}.
func (h *MarketHandler) News(w http.ResponseWriter, r *http.Request) {
	items, err := h.market.News(r.Context(), r.PathValue("symbol"))
	reply(w, items, err)
}

// MarketNews handles GET /api/v1/news?category=.
func (h *MarketHandler) MarketNews(w http.ResponseWriter, r *http.Request) {
	items, err := h.market.MarketNews(r.Context(), r.URL.Query().Get("category"))
	reply(w, items, err)
}

// Sentiment handles GET /api/v1/sentiment/{symbol}.
func (h *MarketHandler) Sentiment(w http.ResponseWriter, r *http.Request) {
	s, err := h.market.Sentiment(r.Context(), r.PathValue("symbol"))
	reply(w, s, err)
}

// SocialSentiment handles GET /api/v1/sentiment/{symbol}/social.
func (h *MarketHandler) SocialSentiment(w http.ResponseWriter, r *http.Request) {
	s, err := h.market.SocialSentiment(r.Context(), r.PathValue("symbol"))
	reply(w, s, err)
}

// Analysis handles GET /api/v1/analysis/{symbol}. narrative=true asks the
// configured LLM for a written summary.
func (h *MarketHandler) Analysis(w http.ResponseWriter, r *http.Request) {
	narrative, _ := strconv.ParseBool(r.URL.Query().Get("narrative"))
	a, err := h.market.Analysis(r.Context(), r.PathValue("symbol"), market.AnalysisOptions{Narrative: narrative})
	reply(w, a, err)
}

// Forex handles GET /api/v1/forex/{from}/{to}.
func (h *MarketHandler) Forex(w http.ResponseWriter, r *http.Request) {
	rate, err := h.market.Forex(r.Context(), r.PathValue("from"), r.PathValue("to"))
	reply(w, rate, err)
}

// Crypto handles GET /api/v1/crypto/{symbol}?market=.
func (h *MarketHandler) Crypto(w http.ResponseWriter, r *http.Request) {
	q, err := h.market.Crypto(r.Context(), r.PathValue("symbol"), r.URL.Query().Get("market"))
	reply(w, q, err)
}

// MarketStatus handles GET /api/v1/market/status.
func (h *MarketHandler) MarketStatus(w http.ResponseWriter, r *http.Request) {
	s, err := h.market.MarketStatus(r.Context())
	reply(w, s, err)
}

// Search handles GET /api/v1/search?q=&by=name.
func (h *MarketHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := h.market.Search(r.Context(), q.Get("q"), q.Get("by") == "name")
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// ClearCache handles DELETE /api/v1/cache[?symbol=].
func (h *MarketHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	var (
		n   int
		err error
	)
	symbol := r.URL.Query().Get("symbol")
	if symbol != "" {
		n, err = h.market.ClearSymbolCache(r.Context(), symbol)
	} else {
		n, err = h.market.ClearCache(r.Context())
	}
	if err != nil {
		response.Fail(w, err)
		return
	}

	data := map[string]any{"cleared": n}
	if symbol != "" {
		data["symbol"] = symbol
	}
	response.JSON(w, http.StatusOK, data)
}
