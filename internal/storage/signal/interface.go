// Package signal persists routed trade signals.
package signal

import (
	"context"
	"strings"
	"time"

	"github.com/newthinker/marketlens/internal/core"
)

// Store defines the interface for signal persistence.
type Store interface {
	// Save persists a signal and returns its ID. A signal without an ID
	// gets a fresh one.
	Save(ctx context.Context, signal core.Signal) (string, error)

	// GetByID retrieves a signal by its ID. Unknown IDs yield core.ErrNotFound.
	GetByID(ctx context.Context, id string) (*core.Signal, error)

	// List retrieves signals matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]core.Signal, error)

	// Count returns the number of signals matching the filter.
	Count(ctx context.Context, filter ListFilter) (int, error)

	// Prune deletes signals generated before cutoff and returns how many
	// were removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// MaxListLimit caps one page of List.
const MaxListLimit = 500

// ListFilter selects signals. Zero fields match everything; From and To
// are inclusive.
type ListFilter struct {
	Symbol        string
	Strategy      string
	Action        core.Action
	MinConfidence float64
	From          time.Time
	To            time.Time
	Limit         int
	Offset        int
}

// Normalize upper-cases the symbol, lower-cases the action and clamps
// paging to [0, MaxListLimit].
func (f ListFilter) Normalize() ListFilter {
	f.Symbol = strings.ToUpper(strings.TrimSpace(f.Symbol))
	f.Action = core.Action(strings.ToLower(strings.TrimSpace(string(f.Action))))
	f.Limit = min(max(f.Limit, 0), MaxListLimit)
	f.Offset = max(f.Offset, 0)
	return f
}

// Match reports whether sig passes every set criterion.
func (f ListFilter) Match(sig core.Signal) bool {
	switch {
	case f.Symbol != "" && sig.Symbol != f.Symbol,
		f.Strategy != "" && sig.Strategy != f.Strategy,
		f.Action != "" && sig.Action != f.Action,
		sig.Confidence < f.MinConfidence,
		!f.From.IsZero() && sig.GeneratedAt.Before(f.From),
		!f.To.IsZero() && sig.GeneratedAt.After(f.To):
		return false
	}
	return true
}
