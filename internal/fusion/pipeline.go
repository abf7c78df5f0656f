package fusion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/core"
)

// Stage names used by the helpers below.
const (
	StageCached  = "cached"
	StageDefault = "default"
)

var errNoCachedValue = errors.New("no cached value")

// Stage is one fallback strategy.
type Stage[T any] struct {
	Name  string
	Fetch func(ctx context.Context) (T, error)
}

// Recorder is told which stage satisfied a pipeline run.
type Recorder interface {
	RecordFallback(pipeline, stage string)
}

// Pipeline tries its stages in order and returns the first success.
type Pipeline[T any] struct {
	Name     string
	Stages   []Stage[T]
	Logger   *zap.Logger
	Recorder Recorder
}

// Run returns the first successful stage's value and name. When every
// stage fails the error is ErrNoDataAvailable wrapping each stage's error.
func (p Pipeline[T]) Run(ctx context.Context) (T, string, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var errs []error
	for i, s := range p.Stages {
		v, err := s.Fetch(ctx)
		if err == nil {
			if i > 0 {
				logger.Info("fallback stage used",
					zap.String("pipeline", p.Name),
					zap.String("stage", s.Name),
					zap.Int("failed_stages", i))
			}
			if p.Recorder != nil {
				p.Recorder.RecordFallback(p.Name, s.Name)
			}
			return v, s.Name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		logger.Debug("pipeline stage failed",
			zap.String("pipeline", p.Name),
			zap.String("stage", s.Name),
			zap.Error(err))
	}

	if p.Recorder != nil {
		p.Recorder.RecordFallback(p.Name, "none")
	}
	var zero T
	return zero, "", core.WrapError(core.ErrNoDataAvailable, errors.Join(errs...))
}

// Retry re-runs stage up to attempts times in total while it fails with a
// network error, waiting backoff between tries. Other errors return at once.
func Retry[T any](stage Stage[T], attempts int, backoff time.Duration) Stage[T] {
	if attempts < 1 {
		attempts = 1
	}
	return Stage[T]{
		Name: stage.Name,
		Fetch: func(ctx context.Context) (T, error) {
			var (
				v   T
				err error
			)
			for i := 0; i < attempts; i++ {
				if i > 0 {
					select {
					case <-ctx.Done():
						return v, errors.Join(err, ctx.Err())
					case <-time.After(backoff):
					}
				}
				v, err = stage.Fetch(ctx)
				if err == nil || !errors.Is(err, core.ErrNetwork) {
					return v, err
				}
			}
			return v, err
		},
	}
}

// Cached is a stage backed by a lookup that ignores freshness, typically
// the stale cache.
func Cached[T any](load func(ctx context.Context) (T, bool)) Stage[T] {
	return Stage[T]{
		Name: StageCached,
		Fetch: func(ctx context.Context) (T, error) {
			if v, ok := load(ctx); ok {
				return v, nil
			}
			var zero T
			return zero, errNoCachedValue
		},
	}
}

// Default is a terminal stage that always yields value.
func Default[T any](value T) Stage[T] {
	return Stage[T]{
		Name:  StageDefault,
		Fetch: func(context.Context) (T, error) { return value, nil },
	}
}
