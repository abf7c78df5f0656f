package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/api/job"
	"github.com/newthinker/marketlens/internal/app"
	"github.com/newthinker/marketlens/internal/cache"
	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/collector/alphavantage"
	"github.com/newthinker/marketlens/internal/collector/finnhub"
	"github.com/newthinker/marketlens/internal/collector/polygon"
	"github.com/newthinker/marketlens/internal/collector/twelvedata"
	"github.com/newthinker/marketlens/internal/collector/twitter"
	"github.com/newthinker/marketlens/internal/config"
	"github.com/newthinker/marketlens/internal/httpx"
	"github.com/newthinker/marketlens/internal/indicator"
	"github.com/newthinker/marketlens/internal/insight"
	llmfactory "github.com/newthinker/marketlens/internal/llm/factory"
	"github.com/newthinker/marketlens/internal/logger"
	"github.com/newthinker/marketlens/internal/market"
	"github.com/newthinker/marketlens/internal/metrics"
	"github.com/newthinker/marketlens/internal/notifier"
	"github.com/newthinker/marketlens/internal/notifier/webhook"
	"github.com/newthinker/marketlens/internal/router"
	"github.com/newthinker/marketlens/internal/storage/archive"
	"github.com/newthinker/marketlens/internal/storage/signal"
)

// runtime is the wired object graph shared by every command.
type runtime struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Registry
	market  *market.Service
	router  *router.Router
	app     *app.App
	signals signal.Store
	jobs    *job.Store
	closers []func()
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	_ = rt.log.Sync()
}

// loadConfig reads and validates the config and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	opts := logger.Options{
		Development: debug || cfg.Server.Mode == "development",
		Level:       cfg.Log.Level,
		Encoding:    cfg.Log.Encoding,
	}
	if debug {
		opts.Level = "debug"
	}
	log, err := logger.Build(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, log, nil
}

// build wires providers, cache, analysis, routing and the refresh loop.
// withStorage also connects the signal store; one-shot commands skip it.
func build(ctx context.Context, withStorage bool) (*runtime, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, log: log, metrics: metrics.NewRegistry()}

	providers := buildProviders(cfg.Providers, log, rt.metrics)
	log.Info("providers registered", zap.Strings("providers", providers.Names()))

	store, err := buildCache(ctx, rt, cfg.Cache)
	if err != nil {
		rt.Close()
		return nil, err
	}

	narrator, err := buildNarrator(cfg.LLM, log, rt.metrics)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.market = market.New(providers, store, log.Named("market"), market.Options{
		QuoteOrder:    cfg.Fusion.QuoteOrder,
		Primary:       cfg.Fusion.Primary,
		Secondary:     cfg.Fusion.Secondary,
		SignalMode:    indicator.ParseSignalMode(cfg.Fusion.MACDSignal),
		HistoryDays:   cfg.Fusion.HistoryDays,
		RetryAttempts: cfg.Fusion.RetryAttempts,
		RetryBackoff:  cfg.Fusion.RetryBackoff,
		Recorder:      rt.metrics,
		Narrator:      narrator,
	})

	if !withStorage {
		return rt, nil
	}

	if rt.signals, err = buildSignalStore(ctx, rt); err != nil {
		rt.Close()
		return nil, err
	}

	if rt.router, err = buildRouter(cfg, log, rt.metrics); err != nil {
		rt.Close()
		return nil, err
	}
	rt.router.SetSignalStore(rt.signals)

	rt.app = app.New(rt.market, rt.router, app.Options{
		Interval:    cfg.Refresh.Interval,
		Concurrency: cfg.Refresh.Concurrency,
		Logger:      log.Named("refresh"),
		Recorder:    rt.metrics,
	})
	if err := rt.app.SetWatchlist(cfg.Refresh.Watchlist); err != nil {
		rt.Close()
		return nil, fmt.Errorf("watchlist: %w", err)
	}

	rt.jobs = job.NewStore(cfg.Server.MaxJobs, time.Duration(cfg.Server.JobTTLHours)*time.Hour)
	return rt, nil
}

func providerOptions(p config.ProviderConfig, log *zap.Logger, rec collector.Recorder, withTimeout bool) []collector.Option {
	opts := []collector.Option{
		collector.WithBaseURL(p.BaseURL),
		collector.WithRequestsPerMinute(p.RequestsPerMinute),
		collector.WithLogger(log),
		collector.WithRecorder(rec),
	}
	if withTimeout && p.Timeout > 0 {
		opts = append(opts, collector.WithHTTPClient(httpx.New(p.Timeout)))
	}
	return opts
}

// buildProviders registers every provider that has credentials.
func buildProviders(cfg config.ProvidersConfig, log *zap.Logger, rec collector.Recorder) *collector.Registry {
	reg := collector.NewRegistry()
	named := func(name string) *zap.Logger { return log.Named(name) }

	if p := cfg.Polygon; p.Enabled() {
		reg.Register(polygon.New(p.APIKey, providerOptions(p, named(polygon.Name), rec, true)...))
	}
	if p := cfg.AlphaVantage; p.Enabled() {
		reg.Register(alphavantage.New(p.APIKey, providerOptions(p, named(alphavantage.Name), rec, true)...))
	}
	if p := cfg.Finnhub; p.Enabled() {
		reg.Register(finnhub.New(p.APIKey, providerOptions(p, named(finnhub.Name), rec, true)...))
	}
	if p := cfg.TwelveData; p.Enabled() {
		reg.Register(twelvedata.New(p.APIKey, providerOptions(p, named(twelvedata.Name), rec, true)...))
	}
	if p := cfg.Twitter; p.Enabled() {
		// The filtered stream needs a client without an overall timeout.
		reg.Register(twitter.New(p.APIKey, providerOptions(p, named(twitter.Name), rec, false)...))
	}
	return reg
}

func buildCache(ctx context.Context, rt *runtime, cfg config.CacheConfig) (*cache.Store, error) {
	var backend cache.Backend
	switch cfg.Backend {
	case "", "memory":
		backend = cache.NewMemoryBackend()
	case "localfs":
		fs, err := archive.NewLocalFS(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		backend = cache.NewArchiveBackend(fs)
	case "s3":
		s3, err := archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		backend = cache.NewArchiveBackend(s3)
	case "redis":
		rb, err := cache.NewRedisBackend(ctx, cache.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Namespace: cfg.Redis.Namespace,
		})
		if err != nil {
			return nil, fmt.Errorf("cache: redis: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = rb.Close() })
		backend = rb
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}

	rt.log.Info("cache ready", zap.String("backend", cfg.Backend))
	return cache.NewStore(backend,
		cache.WithTTLs(cache.NewTTLTable(cfg.TTL)),
		cache.WithStaleEntries(cfg.StaleEntries),
		cache.WithLogger(rt.log.Named("cache")),
		cache.WithRecorder(rt.metrics),
	), nil
}

// buildNarrator returns nil when no LLM provider is configured.
func buildNarrator(cfg config.LLMConfig, log *zap.Logger, rec insight.Recorder) (*insight.Narrator, error) {
	provider, err := llmfactory.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	if provider == nil {
		return nil, nil
	}
	log.Info("llm narrator enabled", zap.String("provider", provider.Name()))
	n := insight.NewNarrator(provider, log.Named("narrator"), cfg.Timeout)
	n.SetRecorder(rec)
	return n, nil
}

func buildSignalStore(ctx context.Context, rt *runtime) (signal.Store, error) {
	dsn := rt.cfg.Storage.Hot.DSN
	if dsn == "" {
		rt.log.Info("signal store: memory")
		return signal.NewMemoryStore(0), nil
	}

	pool, err := signal.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("signal store: %w", err)
	}
	store, err := signal.NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("signal store: %w", err)
	}
	rt.closers = append(rt.closers, store.Close)
	rt.log.Info("signal store: postgres")
	return store, nil
}

func buildRouter(cfg *config.Config, log *zap.Logger, rec router.Recorder) (*router.Router, error) {
	registry := notifier.NewRegistry()
	if wh := cfg.Notifiers.Webhook; wh.Enabled {
		n, err := webhook.New(wh.URL, webhook.Options{
			Headers: wh.Headers,
			Secret:  wh.Secret,
			Retries: wh.Retries,
		})
		if err != nil {
			return nil, fmt.Errorf("webhook notifier: %w", err)
		}
		if wh.Timeout > 0 {
			n.WithClient(httpx.New(wh.Timeout))
		}
		if err := registry.Register(n); err != nil {
			return nil, err
		}
	}

	rcfg := router.DefaultConfig()
	rcfg.MinConfidence = cfg.Router.MinConfidence
	rcfg.CooldownDuration = time.Duration(cfg.Router.CooldownHours) * time.Hour

	r := router.New(rcfg, registry, log.Named("router"))
	r.SetRecorder(rec)
	return r, nil
}
