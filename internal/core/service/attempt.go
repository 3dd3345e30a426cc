package service

import (
	"context"
	"sync"

	"github.com/expresspay/expresspay-go/internal/core/domain"
)

// Attempt is the single-resolution handle returned by Execute.
type Attempt struct {
	ID         string
	OrderID    string
	Instrument domain.InstrumentKind

	done   chan struct{}
	cancel context.CancelFunc

	mu        sync.Mutex
	resolved  bool
	cancelled bool
	result    domain.TransactionResult
	challenge *RedirectController
}

func newAttempt(id, orderID string, kind domain.InstrumentKind, cancel context.CancelFunc) *Attempt {
	return &Attempt{
		ID:         id,
		OrderID:    orderID,
		Instrument: kind,
		done:       make(chan struct{}),
		cancel:     cancel,
	}
}

// Done is closed once the attempt has a terminal result.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the attempt resolves or ctx ends.
func (a *Attempt) Wait(ctx context.Context) (domain.TransactionResult, error) {
	select {
	case <-a.done:
		res, _ := a.Result()
		return res, nil
	case <-ctx.Done():
		return domain.TransactionResult{}, ctx.Err()
	}
}

// Result returns the terminal result, if any.
func (a *Attempt) Result() (domain.TransactionResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.resolved
}

// Cancelled reports whether the caller abandoned the attempt.
func (a *Attempt) Cancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}

// Cancel abandons the attempt. An attempt cancelled before it resolved never
// runs a hook or writes history. Once resolution has begun Cancel is a no-op
// and the result is still delivered.
func (a *Attempt) Cancel() {
	a.mu.Lock()
	if a.resolved {
		a.mu.Unlock()
		return
	}
	a.resolved = true
	a.cancelled = true
	a.result = domain.NewFailure(domain.ErrCancelled, "attempt cancelled by caller")
	a.mu.Unlock()

	close(a.done)
	if a.cancel != nil {
		a.cancel()
	}
}

// ChallengeState reports the redirect sub-flow state, or idle when the
// attempt never needed one.
func (a *Attempt) ChallengeState() ChallengeState {
	a.mu.Lock()
	c := a.challenge
	a.mu.Unlock()
	if c == nil {
		return ChallengeIdle
	}
	return c.State()
}

func (a *Attempt) setChallenge(c *RedirectController) {
	a.mu.Lock()
	a.challenge = c
	a.mu.Unlock()
}

// finish stores res and runs deliver before Done is closed. It reports false
// when the attempt was already resolved or cancelled.
func (a *Attempt) finish(res domain.TransactionResult, deliver func(domain.TransactionResult)) bool {
	a.mu.Lock()
	if a.resolved {
		a.mu.Unlock()
		return false
	}
	a.resolved = true
	a.result = res
	a.mu.Unlock()

	if deliver != nil {
		deliver(res)
	}
	close(a.done)
	if a.cancel != nil {
		a.cancel()
	}
	return true
}
