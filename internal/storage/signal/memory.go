package signal

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newthinker/marketlens/internal/core"
)

// DefaultMemoryCapacity bounds a MemoryStore created with a non-positive size.
const DefaultMemoryCapacity = 1000

// MemoryStore keeps the most recent signals in process. Saving an ID that
// is already stored is a no-op, like the Postgres store.
type MemoryStore struct {
	mu       sync.RWMutex
	signals  []core.Signal // oldest first
	ids      map[string]struct{}
	capacity int
}

// NewMemoryStore creates a store holding at most capacity signals.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		signals:  make([]core.Signal, 0, capacity),
		ids:      make(map[string]struct{}, capacity),
		capacity: capacity,
	}
}

func (m *MemoryStore) Save(ctx context.Context, signal core.Signal) (string, error) {
	if signal.ID == "" {
		signal.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.ids[signal.ID]; dup {
		return signal.ID, nil
	}
	if len(m.signals) == m.capacity {
		delete(m.ids, m.signals[0].ID)
		m.signals = slices.Delete(m.signals, 0, 1)
	}
	m.signals = append(m.signals, signal)
	m.ids[signal.ID] = struct{}{}
	return signal.ID, nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*core.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.ids[id]; ok {
		i := slices.IndexFunc(m.signals, func(s core.Signal) bool { return s.ID == id })
		sig := m.signals[i]
		return &sig, nil
	}
	return nil, core.WrapError(core.ErrNotFound, fmt.Errorf("signal %s", id))
}

// List pages through matching signals, newest first.
func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]core.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []core.Signal{}
	skipped := 0
	for i := len(m.signals) - 1; i >= 0; i-- {
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
		if !filter.Match(m.signals[i]) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, m.signals[i])
	}
	return out, nil
}

func (m *MemoryStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, sig := range m.signals {
		if filter.Match(sig) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.signals)
	m.signals = slices.DeleteFunc(m.signals, func(s core.Signal) bool {
		if s.GeneratedAt.Before(cutoff) {
			delete(m.ids, s.ID)
			return true
		}
		return false
	})
	return before - len(m.signals), nil
}
