package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/expresspay/expresspay-go/internal/core/ports"
	"github.com/expresspay/expresspay-go/internal/metrics"
	log "github.com/sirupsen/logrus"
)

// ChallengeState is the state of a redirect/3DS sub-flow.
type ChallengeState string

const (
	ChallengeIdle     ChallengeState = "idle"
	ChallengeLoading  ChallengeState = "loading"
	ChallengeWaiting  ChallengeState = "waiting_for_terminal_navigation"
	ChallengeResolved ChallengeState = "resolved"
)

// LoadErrorReason is the failure reason when a challenge surface cannot load.
const LoadErrorReason = "redirect/3ds load error"

// CompletionURLs are the URL prefixes that end a challenge.
type CompletionURLs struct {
	Success []string
	Cancel  []string
}

// RedirectController drives one redirect/3DS challenge and resolves it at
// most once. It implements ports.NavigationObserver.
type RedirectController struct {
	surface    ports.ChallengeSurface
	request    ports.ChallengeRequest
	base       domain.TransactionResult
	completion CompletionURLs
	logger     *log.Entry

	mu       sync.Mutex
	state    ChallengeState
	outcome  domain.TransactionResult
	resolved chan struct{}
}

// NewRedirectController creates a controller for a decoded redirect result.
func NewRedirectController(
	surface ports.ChallengeSurface,
	attemptID string,
	base domain.TransactionResult,
	completion CompletionURLs,
) *RedirectController {
	req := ports.ChallengeRequest{AttemptID: attemptID}
	if base.Redirect != nil {
		req.URL = base.Redirect.URL
		req.Method = base.Redirect.Method
		req.Params = base.Redirect.Params
	}

	fields := log.Fields{"attempt_id": attemptID, "kind": base.Kind}
	if base.Details != nil {
		fields["order_id"] = base.Details.OrderID
	}

	return &RedirectController{
		surface:    surface,
		request:    req,
		base:       base,
		completion: completion,
		logger:     log.WithFields(fields),
		state:      ChallengeIdle,
		resolved:   make(chan struct{}),
	}
}

// State returns the current sub-flow state.
func (c *RedirectController) State() ChallengeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run loads the surface and blocks until the challenge resolves or ctx ends.
// An ended ctx resolves the challenge as a failure and stops observation.
func (c *RedirectController) Run(ctx context.Context) domain.TransactionResult {
	if c.surface == nil {
		c.resolve(domain.NewFailure(domain.ErrChallenge, "no challenge surface configured"), "load_error")
		return c.Outcome()
	}

	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.transition(ChallengeIdle, ChallengeLoading)
	c.logger.WithFields(log.Fields{
		"url":    c.request.URL,
		"method": c.request.Method,
	}).Info("Starting challenge")

	go func() {
		if err := c.surface.Load(loadCtx, c.request, c); err != nil {
			c.logger.WithError(err).Error("Challenge surface failed to load")
			res := domain.NewFailure(domain.ErrChallenge, LoadErrorReason)
			res.Failure.Err = domain.NewServiceError(domain.ErrChallenge, err.Error(), domain.CodeChallenge)
			c.resolve(res, "load_error")
			return
		}
		c.transition(ChallengeLoading, ChallengeWaiting)
	}()

	select {
	case <-c.resolved:
	case <-ctx.Done():
		c.resolve(domain.NewFailure(domain.ErrChallenge,
			"challenge abandoned: "+ctx.Err().Error()), "abandoned")
	}
	return c.Outcome()
}

// Outcome returns the resolved result. It is only meaningful once the
// challenge has resolved.
func (c *RedirectController) Outcome() domain.TransactionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// OnNavigate matches the navigation target against the completion prefixes.
// The longest matching prefix wins; a tie goes to cancel.
func (c *RedirectController) OnNavigate(nav ports.Navigation) bool {
	if c.isResolved() {
		return true
	}
	c.transition(ChallengeLoading, ChallengeWaiting)

	if nav.URL == nil {
		return false
	}
	target := nav.URL.String()
	successLen := longestPrefix(target, c.completion.Success)
	cancelLen := longestPrefix(target, c.completion.Cancel)

	switch {
	case cancelLen > 0 && cancelLen >= successLen:
		c.logger.WithField("target", nav.URL.Redacted()).Info("Challenge cancelled")
		c.resolve(domain.NewFailure(domain.ErrChallenge, "challenge cancelled"), "cancelled")
	case successLen > 0:
		c.logger.WithField("target", nav.URL.Redacted()).Info("Challenge completed")
		c.resolve(c.success(nav), "success")
	default:
		return false
	}
	return true
}

// OnNavigationError resolves the challenge as failed.
func (c *RedirectController) OnNavigationError(err error) {
	if err == nil || c.isResolved() {
		return
	}
	c.logger.WithError(err).Warn("Challenge navigation failed")

	reason := "challenge navigation error: " + err.Error()
	if errors.Is(err, context.Canceled) {
		reason = "challenge cancelled"
	}
	c.resolve(domain.NewFailure(domain.ErrChallenge, reason), "error")
}

func (c *RedirectController) success(nav ports.Navigation) domain.TransactionResult {
	res := domain.TransactionResult{
		Kind:           domain.ResultSuccess,
		RecurringToken: c.base.RecurringToken,
		Anomalies:      c.base.Anomalies,
		Summary:        summaryFromParams(nav.Params),
	}
	if c.base.Details != nil {
		details := *c.base.Details
		res.Details = &details
	}
	return res
}

func (c *RedirectController) resolve(res domain.TransactionResult, outcome string) {
	c.mu.Lock()
	if c.state == ChallengeResolved {
		c.mu.Unlock()
		return
	}
	c.state = ChallengeResolved
	c.outcome = res
	c.mu.Unlock()

	metrics.ChallengeOutcomes.WithLabelValues(outcome).Inc()
	close(c.resolved)
}

func (c *RedirectController) transition(from, to ChallengeState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == from {
		c.state = to
	}
}

func (c *RedirectController) isResolved() bool {
	select {
	case <-c.resolved:
		return true
	default:
		return false
	}
}

func longestPrefix(target string, prefixes []string) int {
	best := 0
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(target, p) && len(p) > best {
			best = len(p)
		}
	}
	return best
}

// summaryFromParams flattens navigation params. Values that hold a JSON
// object or array are decoded in place.
func summaryFromParams(params map[string][]string) map[string]any {
	if len(params) == 0 {
		return nil
	}
	summary := make(map[string]any, len(params))
	for key, values := range params {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		trimmed := strings.TrimSpace(value)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var decoded any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				summary[key] = decoded
				continue
			}
		}
		summary[key] = value
	}
	return summary
}
