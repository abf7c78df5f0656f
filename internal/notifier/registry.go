package notifier

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/marketlens/internal/core"
)

// DefaultTimeout bounds one delivery to one notifier.
const DefaultTimeout = 15 * time.Second

// Result is the outcome of one delivery to one notifier.
type Result struct {
	Notifier string
	Err      error
}

// Failed counts the results carrying an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Registry fans signals out to the registered notifiers concurrently.
type Registry struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	timeout   time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		notifiers: make(map[string]Notifier),
		timeout:   DefaultTimeout,
	}
}

// SetTimeout changes the per-notifier delivery deadline.
func (r *Registry) SetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.timeout = d
	}
}

// Register adds n. Names must be unique.
func (r *Registry) Register(n Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := n.Name()
	if _, exists := r.notifiers[name]; exists {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("notifier %q registered twice", name))
	}
	r.notifiers[name] = n
	return nil
}

// Lookup returns the notifier registered under name.
func (r *Registry) Lookup(name string) (Notifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.notifiers[name]
	return n, ok
}

// Notifiers returns the registered notifiers ordered by name.
func (r *Registry) Notifiers() []Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Notifier, 0, len(r.notifiers))
	for _, n := range r.notifiers {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of registered notifiers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.notifiers)
}

// Deliver sends sig to every notifier. Results are ordered by notifier
// name; failures are wrapped in ErrNotifierFailed.
func (r *Registry) Deliver(ctx context.Context, sig core.Signal) []Result {
	return r.fanOut(ctx, func(ctx context.Context, n Notifier) error {
		return n.Send(ctx, sig)
	})
}

// DeliverBatch sends all signals to every notifier in one call each.
func (r *Registry) DeliverBatch(ctx context.Context, signals []core.Signal) []Result {
	return r.fanOut(ctx, func(ctx context.Context, n Notifier) error {
		return n.SendBatch(ctx, signals)
	})
}

func (r *Registry) fanOut(ctx context.Context, send func(context.Context, Notifier) error) []Result {
	notifiers := r.Notifiers()
	r.mu.RLock()
	timeout := r.timeout
	r.mu.RUnlock()

	results := make([]Result, len(notifiers))
	var wg sync.WaitGroup
	for i, n := range notifiers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			results[i] = Result{Notifier: n.Name()}
			if err := send(ctx, n); err != nil {
				results[i].Err = core.WrapError(core.ErrNotifierFailed, err)
			}
		}()
	}
	wg.Wait()
	return results
}
