// Package cache is a TTL key/value store over pluggable backends with lazy
// eviction and last-known-good reads for degraded mode.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Envelope is the stored form of every cached payload.
type Envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
	Source    string          `json:"source"`
}

// StoredAt returns the write time of the envelope.
func (e Envelope) StoredAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Cache lookup outcomes reported to a Recorder.
const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeExpired  = "expired"
	OutcomeStaleHit = "stale_hit"
)

// Recorder receives cache lookup outcomes.
type Recorder interface {
	RecordCache(class, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCache(string, string) {}

// DefaultStaleEntries bounds the expired entries kept for stale reads.
const DefaultStaleEntries = 1024

// Store is the cache facade used by the market service.
type Store struct {
	backend  Backend
	ttls     *TTLTable
	clock    Clock
	logger   *zap.Logger
	recorder Recorder

	mu         sync.Mutex
	lastKnown  map[string]Envelope
	order      []string
	staleLimit int

	group singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the time source.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithTTLs replaces the TTL table.
func WithTTLs(t *TTLTable) Option {
	return func(s *Store) { s.ttls = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder reports lookup outcomes, e.g. to Prometheus.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithStaleEntries bounds the last-known-good set.
func WithStaleEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.staleLimit = n
		}
	}
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:    backend,
		ttls:       NewTTLTable(nil),
		clock:      SystemClock{},
		logger:     zap.NewNop(),
		recorder:   nopRecorder{},
		lastKnown:  make(map[string]Envelope),
		staleLimit: DefaultStaleEntries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the freshness window for a class.
func (s *Store) TTL(c Class) time.Duration {
	return s.ttls.TTL(c)
}

// Get returns the envelope for key if it is younger than its class TTL.
// An expired entry is removed from the backend and reported as a miss; it
// stays readable through GetStale.
func (s *Store) Get(ctx context.Context, key Key) (Envelope, bool, error) {
	k := key.String()
	env, ok, err := s.read(ctx, k)
	if err != nil || !ok {
		s.recorder.RecordCache(string(key.Class), OutcomeMiss)
		return Envelope{}, false, err
	}

	age := s.clock.Now().Sub(env.StoredAt())
	if age >= s.ttls.TTL(key.Class) {
		s.remember(k, env)
		if err := s.backend.Delete(ctx, k); err != nil {
			s.logger.Warn("evicting expired cache entry", zap.String("key", k), zap.Error(err))
		}
		s.recorder.RecordCache(string(key.Class), OutcomeExpired)
		return Envelope{}, false, nil
	}

	s.recorder.RecordCache(string(key.Class), OutcomeHit)
	return env, true, nil
}

// GetStale returns the last stored envelope for key regardless of age.
func (s *Store) GetStale(ctx context.Context, key Key) (Envelope, bool, error) {
	k := key.String()
	env, ok, err := s.read(ctx, k)
	if err != nil {
		s.logger.Warn("reading stale cache entry", zap.String("key", k), zap.Error(err))
	}
	if !ok {
		s.mu.Lock()
		env, ok = s.lastKnown[k]
		s.mu.Unlock()
	}
	if ok {
		s.recorder.RecordCache(string(key.Class), OutcomeStaleHit)
	}
	return env, ok, nil
}

// Put stores value under key, overwriting any previous entry.
func (s *Store) Put(ctx context.Context, key Key, source string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value: %w", err)
	}
	env := Envelope{Data: data, Timestamp: s.clock.Now().UnixMilli(), Source: source}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding cache envelope: %w", err)
	}

	k := key.String()
	if err := s.backend.Set(ctx, k, raw); err != nil {
		return fmt.Errorf("writing cache entry %s: %w", k, err)
	}
	s.forget(k)
	return nil
}

// Invalidate removes every entry whose key starts with prefix and returns
// how many backend entries were deleted.
func (s *Store) Invalidate(ctx context.Context, prefix string) (int, error) {
	return s.invalidate(ctx, prefix, func(string) bool { return true })
}

// InvalidateSymbol removes entries under any cache prefix whose key has
// symbol as one of its underscore-separated parts.
func (s *Store) InvalidateSymbol(ctx context.Context, symbol string) (int, error) {
	symbol = strings.ToUpper(symbol)
	total := 0
	for _, p := range Prefixes {
		n, err := s.invalidate(ctx, p, func(k string) bool {
			for _, part := range strings.Split(strings.TrimPrefix(k, p), "_") {
				if strings.EqualFold(part, symbol) {
					return true
				}
			}
			return false
		})
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Clear removes every entry owned by the cache.
func (s *Store) Clear(ctx context.Context) (int, error) {
	total := 0
	for _, p := range Prefixes {
		n, err := s.Invalidate(ctx, p)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Do coalesces concurrent fills of the same key.
func (s *Store) Do(key Key, fn func() (any, error)) (any, error) {
	v, err, _ := s.group.Do(key.String(), fn)
	return v, err
}

func (s *Store) invalidate(ctx context.Context, prefix string, match func(string) bool) (int, error) {
	keys, err := s.backend.Keys(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("listing cache keys: %w", err)
	}

	matched := keys[:0]
	for _, k := range keys {
		if match(k) {
			matched = append(matched, k)
		}
	}

	n := 0
	var errs []error
	if bd, ok := s.backend.(BatchDeleter); ok {
		removed, err := bd.DeleteMany(ctx, matched)
		n = removed
		if err != nil {
			errs = append(errs, err)
		}
	} else {
		for _, k := range matched {
			if err := s.backend.Delete(ctx, k); err != nil {
				errs = append(errs, err)
				continue
			}
			n++
		}
	}

	s.mu.Lock()
	kept := s.order[:0]
	for _, k := range s.order {
		if strings.HasPrefix(k, prefix) && match(k) {
			delete(s.lastKnown, k)
			continue
		}
		kept = append(kept, k)
	}
	s.order = kept
	s.mu.Unlock()

	if n > 0 {
		s.logger.Debug("cache invalidated", zap.String("prefix", prefix), zap.Int("entries", n))
	}
	return n, errors.Join(errs...)
}

func (s *Store) read(ctx context.Context, k string) (Envelope, bool, error) {
	raw, err := s.backend.Get(ctx, k)
	if errors.Is(err, ErrMiss) {
		return Envelope{}, false, nil
	}
	if err != nil {
		return Envelope{}, false, fmt.Errorf("reading cache entry %s: %w", k, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn("dropping corrupt cache entry", zap.String("key", k), zap.Error(err))
		_ = s.backend.Delete(ctx, k)
		return Envelope{}, false, nil
	}
	return env, true, nil
}

func (s *Store) remember(k string, env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lastKnown[k]; !ok {
		s.order = append(s.order, k)
	}
	s.lastKnown[k] = env

	for len(s.order) > s.staleLimit {
		delete(s.lastKnown, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Store) forget(k string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lastKnown[k]; !ok {
		return
	}
	delete(s.lastKnown, k)
	for i, o := range s.order {
		if o == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Load decodes a fresh entry into T.
func Load[T any](ctx context.Context, s *Store, key Key) (T, bool, error) {
	var v T
	env, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, false, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	return v, true, nil
}

// LoadStale decodes the last known entry into T regardless of age.
func LoadStale[T any](ctx context.Context, s *Store, key Key) (T, time.Time, bool) {
	var v T
	env, ok, _ := s.GetStale(ctx, key)
	if !ok {
		return v, time.Time{}, false
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		s.logger.Warn("decoding stale cache entry", zap.String("key", key.String()), zap.Error(err))
		return v, time.Time{}, false
	}
	return v, env.StoredAt(), true
}

// Fetch is a read-through helper: a fresh entry is returned as is,
// otherwise fetch runs once per key across concurrent callers and its
// result is stored.
func Fetch[T any](ctx context.Context, s *Store, key Key, source string, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok, err := Load[T](ctx, s, key); err == nil && ok {
		return v, nil
	} else if err != nil {
		s.logger.Warn("cache read failed", zap.String("key", key.String()), zap.Error(err))
	}

	res, err := s.Do(key, func() (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		if err := s.Put(ctx, key, source, v); err != nil {
			s.logger.Warn("cache write failed", zap.String("key", key.String()), zap.Error(err))
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}
