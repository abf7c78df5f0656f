// Package router filters trade signals and fans them out to notifiers.
package router

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/notifier"
	"github.com/newthinker/marketlens/internal/storage/signal"
)

// Config holds the admission rules.
type Config struct {
	MinConfidence    float64
	CooldownDuration time.Duration
	EnabledActions   []core.Action
}

// DefaultConfig admits every trade action at confidence 0.5 or more, once
// an hour per symbol and direction.
func DefaultConfig() Config {
	return Config{
		MinConfidence:    0.5,
		CooldownDuration: 1 * time.Hour,
		EnabledActions:   []core.Action{core.ActionBuy, core.ActionSell, core.ActionStrongBuy, core.ActionStrongSell},
	}
}

// Recorder observes routing outcomes per notifier.
type Recorder interface {
	RecordSignalRouted(notifier, status string)
}

// Reasons a signal is held back.
const (
	ReasonLowConfidence  = "low_confidence"
	ReasonActionDisabled = "action_disabled"
	ReasonCooldown       = "cooldown"
)

// Router admits signals, persists them and hands them to the notifiers.
type Router struct {
	cfg         Config
	registry    *notifier.Registry
	logger      *zap.Logger
	signalStore signal.Store
	recorder    Recorder
	now         func() time.Time

	mu        sync.RWMutex
	cooldowns map[string]cooldown // by symbol
	routed    int
	filtered  map[string]int // by reason
}

// cooldown remembers the last admitted signal for a symbol.
type cooldown struct {
	at        time.Time
	direction int
}

func New(cfg Config, registry *notifier.Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:       cfg,
		registry:  registry,
		logger:    logger,
		now:       time.Now,
		cooldowns: make(map[string]cooldown),
		filtered:  make(map[string]int),
	}
}

// SetSignalStore makes the router persist every admitted signal.
func (r *Router) SetSignalStore(store signal.Store) {
	r.signalStore = store
}

func (r *Router) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// SetClock replaces the time source used for cooldowns.
func (r *Router) SetClock(now func() time.Time) {
	r.now = now
}

// Route admits one signal and sends it to every notifier. It reports
// whether the signal passed. Notifier failures are logged, not returned.
func (r *Router) Route(ctx context.Context, sig core.Signal) bool {
	kept := r.filter([]core.Signal{sig})
	if len(kept) == 0 {
		return false
	}
	r.dispatch(ctx, kept, func(ctx context.Context) []notifier.Result {
		return r.registry.Deliver(ctx, kept[0])
	})
	return true
}

// RouteBatch admits signals one by one and sends the survivors to each
// notifier in a single call. It returns how many passed.
func (r *Router) RouteBatch(ctx context.Context, signals []core.Signal) int {
	kept := r.filter(signals)
	if len(kept) == 0 {
		return 0
	}
	r.dispatch(ctx, kept, func(ctx context.Context) []notifier.Result {
		return r.registry.DeliverBatch(ctx, kept)
	})
	return len(kept)
}

func (r *Router) filter(signals []core.Signal) []core.Signal {
	kept := make([]core.Signal, 0, len(signals))
	for _, sig := range signals {
		reason := r.admit(sig)
		if reason == "" {
			kept = append(kept, sig)
			continue
		}
		r.logger.Debug("signal held back",
			zap.String("symbol", sig.Symbol),
			zap.String("action", string(sig.Action)),
			zap.Float64("confidence", sig.Confidence),
			zap.String("reason", reason),
		)
	}
	return kept
}

// dispatch persists kept, stamping store ids, then delivers them.
func (r *Router) dispatch(ctx context.Context, kept []core.Signal, deliver func(context.Context) []notifier.Result) {
	if r.signalStore != nil {
		for i := range kept {
			id, err := r.signalStore.Save(ctx, kept[i])
			if err != nil {
				r.logger.Error("failed to persist signal", zap.String("symbol", kept[i].Symbol), zap.Error(err))
				continue
			}
			kept[i].ID = id
		}
	}
	if r.registry == nil {
		return
	}

	results := deliver(ctx)
	for _, res := range results {
		status := "ok"
		if res.Err != nil {
			status = "error"
			r.logger.Error("notifier failed", zap.String("notifier", res.Notifier), zap.Error(res.Err))
		}
		if r.recorder != nil {
			r.recorder.RecordSignalRouted(res.Notifier, status)
		}
	}
	r.logger.Info("signals routed",
		zap.Int("signals", len(kept)),
		zap.Int("notifiers", len(results)),
		zap.Int("failed", notifier.Failed(results)),
	)
}

// admit returns "" when sig passes, else the reason it is held back. A
// passing signal starts its symbol's cooldown under the same lock. A
// signal reversing the direction of the last one is not held back by the
// cooldown.
func (r *Router) admit(sig core.Signal) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	reason := ""
	now := r.now()
	dir := sig.Action.Direction()
	switch last, ok := r.cooldowns[sig.Symbol]; {
	case sig.Confidence < r.cfg.MinConfidence:
		reason = ReasonLowConfidence
	case len(r.cfg.EnabledActions) > 0 && !slices.Contains(r.cfg.EnabledActions, sig.Action):
		reason = ReasonActionDisabled
	case ok && last.direction == dir && now.Sub(last.at) < r.cfg.CooldownDuration:
		reason = ReasonCooldown
	}
	if reason != "" {
		r.filtered[reason]++
		return reason
	}
	r.cooldowns[sig.Symbol] = cooldown{at: now, direction: dir}
	r.routed++
	return ""
}

// ClearCooldown forgets the cooldown of symbol.
func (r *Router) ClearCooldown(symbol string) {
	r.mu.Lock()
	delete(r.cooldowns, symbol)
	r.mu.Unlock()
}

// CleanupExpiredCooldowns drops cooldowns older than twice the cooldown
// duration and returns how many went.
func (r *Router) CleanupExpiredCooldowns() int {
	now := r.now()
	expiry := r.cfg.CooldownDuration * 2

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for symbol, cd := range r.cooldowns {
		if now.Sub(cd.at) > expiry {
			delete(r.cooldowns, symbol)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine prunes cooldowns every interval until ctx is done.
func (r *Router) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := r.CleanupExpiredCooldowns(); removed > 0 {
					r.logger.Debug("cleaned up expired cooldowns", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// Stats is a snapshot of the router state.
type Stats struct {
	CooldownsActive int            `json:"cooldownsActive"`
	Routed          int            `json:"routed"`
	Filtered        map[string]int `json:"filtered"`
	MinConfidence   float64        `json:"minConfidence"`
	CooldownSeconds float64        `json:"cooldownSeconds"`
	EnabledActions  []core.Action  `json:"enabledActions"`
}

func (r *Router) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		CooldownsActive: len(r.cooldowns),
		Routed:          r.routed,
		Filtered:        maps.Clone(r.filtered),
		MinConfidence:   r.cfg.MinConfidence,
		CooldownSeconds: r.cfg.CooldownDuration.Seconds(),
		EnabledActions:  r.cfg.EnabledActions,
	}
}
