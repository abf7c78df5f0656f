package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/marketlens/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MarketLens API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := build(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, log := rt.cfg, rt.log

	log.Info("starting MarketLens server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("version", Version),
	)

	deps := api.Dependencies{
		Market:      rt.market,
		App:         rt.app,
		SignalStore: rt.signals,
		Jobs:        rt.jobs,
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = rt.metrics
	}
	server, err := api.NewServer(api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		APIKey:      cfg.Server.APIKey,
		MetricsPath: cfg.Metrics.Path,
		Version:     Version,
	}, deps, log.Named("http"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down MarketLens server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	rt.router.StartCleanupRoutine(gctx, 10*time.Minute)

	if days := cfg.Storage.Hot.RetentionDays; days > 0 {
		go pruneSignals(gctx, rt, time.Duration(days)*24*time.Hour)
	}

	if cfg.Refresh.Enabled {
		g.Go(func() error {
			if err := rt.app.Start(gctx); err != nil && gctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return err
	}
	return nil
}

// pruneSignals deletes signals older than retention once an hour.
func pruneSignals(ctx context.Context, rt *runtime, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := rt.signals.Prune(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			rt.log.Warn("signal prune failed", zap.Error(err))
		case n > 0:
			rt.log.Info("old signals pruned", zap.Int("count", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
