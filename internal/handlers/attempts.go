package handlers

import (
	"sync"
	"time"

	"github.com/expresspay/expresspay-go/internal/core/service"
)

// attemptTTL is how long a resolved attempt stays queryable.
const attemptTTL = time.Hour

type trackedAttempt struct {
	attempt *service.Attempt
	started time.Time
}

// AttemptRegistry keeps attempts addressable by id for the polling API.
type AttemptRegistry struct {
	mu    sync.RWMutex
	items map[string]trackedAttempt
	now   func() time.Time
}

// NewAttemptRegistry creates an empty registry.
func NewAttemptRegistry() *AttemptRegistry {
	return &AttemptRegistry{
		items: make(map[string]trackedAttempt),
		now:   time.Now,
	}
}

// Put registers an attempt and drops resolved attempts past their TTL.
func (r *AttemptRegistry) Put(a *service.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, t := range r.items {
		if _, done := t.attempt.Result(); done && now.Sub(t.started) > attemptTTL {
			delete(r.items, id)
		}
	}
	r.items[a.ID] = trackedAttempt{attempt: a, started: now}
}

// Get returns the attempt registered under id.
func (r *AttemptRegistry) Get(id string) (*service.Attempt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.items[id]
	return t.attempt, ok
}
