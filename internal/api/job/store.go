// Package job tracks long-running API requests such as consensus rankings.
// Clients submit, get an id back and poll until the job is done.
package job

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newthinker/marketlens/internal/core"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

const (
	DefaultMaxJobs = 100
	DefaultTTL     = time.Hour
)

// Job is the pollable state of one background request.
type Job struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Result    any       `json:"result,omitempty"`
	Error     *Failure  `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Failure is the serialized reason a job failed.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FailureFrom describes err by its taxonomy kind.
func FailureFrom(err error) *Failure {
	f := &Failure{Code: "INTERNAL_ERROR", Message: err.Error()}
	if kind := core.KindOf(err); kind != nil {
		f.Code = kind.Code
	}
	return f
}

// Done reports whether the job reached a terminal status.
func (j *Job) Done() bool {
	return j.Status == StatusComplete || j.Status == StatusFailed
}

// Store holds up to maxJobs jobs. Finished jobs expire ttl after their last
// update and are the first to go when room is needed; unfinished jobs are
// never evicted.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	order   []string // creation order
	maxJobs int
	ttl     time.Duration
	now     func() time.Time
}

func NewStore(maxJobs int, ttl time.Duration) *Store {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		jobs:    make(map[string]*Job),
		maxJobs: maxJobs,
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Create registers a pending job. When the store is full of unfinished
// jobs it fails with core.ErrRateLimited.
func (s *Store) Create(jobType string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if len(s.jobs) >= s.maxJobs && !s.evictOldestFinished() {
		return Job{}, core.WrapError(core.ErrRateLimited,
			fmt.Errorf("%d jobs already in flight", len(s.jobs)))
	}

	j := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[j.ID] = j
	s.order = append(s.order, j.ID)
	return *j, nil
}

// Get returns a copy of the job. Unknown and expired ids yield
// core.ErrJobNotFound.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok || s.expired(j, s.now()) {
		return nil, notFound(id)
	}
	out := *j
	return &out, nil
}

// Update applies fn to the stored job and stamps UpdatedAt.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return notFound(id)
	}
	fn(j)
	j.UpdatedAt = s.now()
	return nil
}

// List returns live jobs, oldest first, optionally limited to one type.
func (s *Store) List(jobType string) []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		j := s.jobs[id]
		if s.expired(j, now) || (jobType != "" && j.Type != jobType) {
			continue
		}
		out = append(out, *j)
	}
	return out
}

// Active counts unfinished jobs of jobType.
func (s *Store) Active(jobType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, j := range s.jobs {
		if j.Type == jobType && !j.Done() {
			n++
		}
	}
	return n
}

// Cleanup drops expired jobs and returns how many were removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweep(s.now())
}

func notFound(id string) error {
	return core.WrapError(core.ErrJobNotFound, errors.New("job "+id))
}

func (s *Store) expired(j *Job, now time.Time) bool {
	return j.Done() && now.Sub(j.UpdatedAt) > s.ttl
}

func (s *Store) remove(pred func(*Job) bool, limit int) int {
	removed := 0
	s.order = slices.DeleteFunc(s.order, func(id string) bool {
		if limit > 0 && removed == limit {
			return false
		}
		if pred(s.jobs[id]) {
			delete(s.jobs, id)
			removed++
			return true
		}
		return false
	})
	return removed
}

func (s *Store) sweep(now time.Time) int {
	return s.remove(func(j *Job) bool { return s.expired(j, now) }, 0)
}

func (s *Store) evictOldestFinished() bool {
	return s.remove((*Job).Done, 1) == 1
}
