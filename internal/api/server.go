// Package api wires the HTTP routes, middleware and server lifecycle.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihandler "github.com/newthinker/marketlens/internal/api/handler/api"
	"github.com/newthinker/marketlens/internal/api/job"
	"github.com/newthinker/marketlens/internal/api/middleware"
	"github.com/newthinker/marketlens/internal/api/response"
	"github.com/newthinker/marketlens/internal/metrics"
	"github.com/newthinker/marketlens/internal/storage/signal"
)

// Server represents the HTTP server for MarketLens
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	handler    http.Handler
	jobs       *job.Store
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	// APIKey may list several comma separated keys for rotation.
	APIKey      string
	MetricsPath string
	Version     string
}

// Market is everything the data and relay routes need from market.Service.
type Market interface {
	apihandler.Market
	apihandler.Consensus
	apihandler.Tweets
	Providers() []string
}

// Dependencies holds the services the handlers call into.
type Dependencies struct {
	Market      Market
	App         apihandler.WatchlistApp
	SignalStore signal.Store
	Jobs        *job.Store
	Metrics     *metrics.Registry
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Market == nil || deps.App == nil || deps.SignalStore == nil {
		return nil, errors.New("api: market, app and signal store are required")
	}
	if deps.Jobs == nil {
		deps.Jobs = job.NewStore(0, 0)
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	mux := http.NewServeMux()
	s := &Server{
		logger: logger,
		mux:    mux,
		jobs:   deps.Jobs,
	}
	s.setupRoutes(cfg, deps)

	var handler http.Handler = mux
	handler = metrics.LoggingMiddleware(logger)(handler)
	if deps.Metrics != nil {
		handler = metrics.HTTPMiddleware(deps.Metrics)(handler)
	}
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	protect := middleware.APIKeyAuth(strings.Split(cfg.APIKey, ",")...)
	handle := func(pattern string, h http.HandlerFunc) {
		s.mux.Handle(pattern, protect(h))
	}

	var recorder apihandler.ConsensusRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}

	marketHandler := apihandler.NewMarketHandler(deps.Market)
	consensusHandler := apihandler.NewConsensusHandler(deps.Market, deps.Jobs, recorder, s.logger)
	watchlistHandler := apihandler.NewWatchlistHandler(deps.App)
	signalsHandler := apihandler.NewSignalsHandler(deps.SignalStore)
	twitterHandler := apihandler.NewTwitterHandler(deps.Market, s.logger)

	// Open routes
	s.mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"version":   cfg.Version,
			"providers": deps.Market.Providers(),
		})
	})
	if deps.Metrics != nil {
		s.mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	// Market data
	handle("GET /api/v1/quotes/{symbol}", marketHandler.Quote)
	handle("GET /api/v1/indicators/{symbol}", marketHandler.Indicators)
	handle("GET /api/v1/overview/{symbol}", marketHandler.Overview)
	handle("GET /api/v1/news/{symbol}", marketHandler.News)
	handle("GET /api/v1/news", marketHandler.MarketNews)
	handle("GET /api/v1/sentiment/{symbol}", marketHandler.Sentiment)
	handle("GET /api/v1/sentiment/{symbol}/social", marketHandler.SocialSentiment)
	handle("GET /api/v1/analysis/{symbol}", marketHandler.Analysis)
	handle("GET /api/v1/forex/{from}/{to}", marketHandler.Forex)
	handle("GET /api/v1/crypto/{symbol}", marketHandler.Crypto)
	handle("GET /api/v1/market/status", marketHandler.MarketStatus)
	handle("GET /api/v1/search", marketHandler.Search)
	handle("DELETE /api/v1/cache", marketHandler.ClearCache)

	// Consensus and jobs
	handle("GET /api/v1/consensus", consensusHandler.Rank)
	handle("POST /api/v1/consensus/jobs", consensusHandler.Submit)
	handle("GET /api/v1/jobs", consensusHandler.ListJobs)
	handle("GET /api/v1/jobs/{id}", consensusHandler.GetJob)

	// Watchlist and signals
	handle("GET /api/v1/watchlist", watchlistHandler.List)
	handle("POST /api/v1/watchlist", watchlistHandler.Add)
	handle("POST /api/v1/watchlist/refresh", watchlistHandler.Refresh)
	handle("DELETE /api/v1/watchlist/{symbol}", watchlistHandler.Remove)
	handle("GET /api/v1/stats", watchlistHandler.Stats)
	handle("GET /api/v1/signals", signalsHandler.List)
	handle("GET /api/v1/signals/{id}", signalsHandler.GetByID)

	// Twitter relay
	handle("GET /api/twitter/topic/{topic}", twitterHandler.Topic)
	handle("GET /api/twitter/user/{username}", twitterHandler.User)
	handle("GET /api/twitter/tweet/{id}", twitterHandler.Tweet)
	handle("GET /api/twitter/stream", twitterHandler.Stream)
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server and a job cleanup loop bound to ctx.
func (s *Server) Start(ctx context.Context) error {
	go s.cleanupJobs(ctx)

	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) cleanupJobs(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.jobs.Cleanup(); n > 0 {
				s.logger.Debug("expired jobs removed", zap.Int("count", n))
			}
		}
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
