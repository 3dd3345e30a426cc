package service

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/expresspay/expresspay-go/internal/core/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSurface replays navigations on Load.
type scriptedSurface struct {
	loadErr     error
	navigations []string
	navErr      error
	block       bool
	requests    chan ports.ChallengeRequest
}

func (s *scriptedSurface) Load(ctx context.Context, req ports.ChallengeRequest, observer ports.NavigationObserver) error {
	if s.requests != nil {
		s.requests <- req
	}
	if s.loadErr != nil {
		return s.loadErr
	}
	for _, raw := range s.navigations {
		u, err := url.Parse(raw)
		if err != nil {
			return err
		}
		observer.OnNavigate(ports.Navigation{URL: u, Method: "GET", Params: u.Query()})
	}
	if s.navErr != nil {
		observer.OnNavigationError(s.navErr)
	}
	if s.block {
		<-ctx.Done()
	}
	return nil
}

func secure3DSResult() domain.TransactionResult {
	return domain.TransactionResult{
		Kind: domain.ResultSecure3DS,
		Details: &domain.TransactionDetails{
			OrderID:       "ORD1",
			TransactionID: "T1",
			Amount:        decimal.RequireFromString("10.00"),
			Currency:      "SAR",
		},
		Redirect: &domain.Redirect{
			URL:    "https://acs.example/challenge",
			Method: domain.RedirectPOST,
			Params: map[string]string{"PaReq": "abc", "TermUrl": "https://shop.example/3ds"},
		},
	}
}

var testCompletion = CompletionURLs{
	Success: []string{"https://shop.example/3ds", "https://shop.example/success"},
	Cancel:  []string{"https://shop.example/cancel"},
}

func runController(t *testing.T, surface ports.ChallengeSurface) (*RedirectController, domain.TransactionResult) {
	t.Helper()
	c := NewRedirectController(surface, "att-1", secure3DSResult(), testCompletion)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c, c.Run(ctx)
}

func TestRedirectController_PassesExactRequest(t *testing.T) {
	surface := &scriptedSurface{
		navigations: []string{"https://shop.example/3ds"},
		requests:    make(chan ports.ChallengeRequest, 1),
	}
	runController(t, surface)

	req := <-surface.requests
	assert.Equal(t, "att-1", req.AttemptID)
	assert.Equal(t, "https://acs.example/challenge", req.URL)
	assert.Equal(t, domain.RedirectPOST, req.Method)
	assert.Equal(t, "abc", req.Params["PaReq"])
}

func TestRedirectController_SuccessResolvesOnce(t *testing.T) {
	surface := &scriptedSurface{navigations: []string{
		"https://acs.example/step",
		`https://shop.example/3ds?status=ok&data={"code":"00"}`,
		"https://shop.example/success?second=1",
	}}

	c, res := runController(t, surface)

	require.Equal(t, domain.ResultSuccess, res.Kind)
	assert.Equal(t, ChallengeResolved, c.State())
	assert.Equal(t, "ORD1", res.Details.OrderID)
	assert.Equal(t, "T1", res.Details.TransactionID)
	assert.Equal(t, "ok", res.Summary["status"])
	assert.Equal(t, map[string]any{"code": "00"}, res.Summary["data"])
	assert.NotContains(t, res.Summary, "second")

	// late events are ignored
	late, _ := url.Parse("https://shop.example/cancel")
	assert.True(t, c.OnNavigate(ports.Navigation{URL: late}))
	assert.Equal(t, domain.ResultSuccess, c.Outcome().Kind)
}

func TestRedirectController_UnrelatedNavigationKeepsWaiting(t *testing.T) {
	c := NewRedirectController(&scriptedSurface{}, "att-1", secure3DSResult(), testCompletion)
	c.transition(ChallengeIdle, ChallengeLoading)

	u, _ := url.Parse("https://acs.example/otp")
	assert.False(t, c.OnNavigate(ports.Navigation{URL: u}))
	assert.Equal(t, ChallengeWaiting, c.State())
}

func TestRedirectController_Cancel(t *testing.T) {
	_, res := runController(t, &scriptedSurface{navigations: []string{"https://shop.example/cancel?reason=user"}})

	require.Equal(t, domain.ResultFailure, res.Kind)
	assert.ErrorIs(t, res.Error(), domain.ErrChallenge)
	assert.Equal(t, "challenge cancelled", res.Failure.Reason)
}

func TestRedirectController_LongestPrefixWins(t *testing.T) {
	completion := CompletionURLs{
		Success: []string{"https://shop.example/return"},
		Cancel:  []string{"https://shop.example/return/cancel"},
	}
	c := NewRedirectController(&scriptedSurface{}, "att-1", secure3DSResult(), completion)

	u, _ := url.Parse("https://shop.example/return/cancel?x=1")
	require.True(t, c.OnNavigate(ports.Navigation{URL: u}))
	assert.Equal(t, domain.ResultFailure, c.Outcome().Kind)
}

func TestRedirectController_TieGoesToCancel(t *testing.T) {
	completion := CompletionURLs{
		Success: []string{"https://shop.example/done"},
		Cancel:  []string{"https://shop.example/done"},
	}
	c := NewRedirectController(&scriptedSurface{}, "att-1", secure3DSResult(), completion)

	u, _ := url.Parse("https://shop.example/done")
	require.True(t, c.OnNavigate(ports.Navigation{URL: u}))
	assert.Equal(t, domain.ResultFailure, c.Outcome().Kind)
}

func TestRedirectController_LoadError(t *testing.T) {
	_, res := runController(t, &scriptedSurface{loadErr: errors.New("dns failure")})

	require.Equal(t, domain.ResultFailure, res.Kind)
	assert.Equal(t, LoadErrorReason, res.Failure.Reason)
	assert.ErrorIs(t, res.Error(), domain.ErrChallenge)
}

func TestRedirectController_NavigationError(t *testing.T) {
	_, res := runController(t, &scriptedSurface{navErr: errors.New("timeout")})

	require.Equal(t, domain.ResultFailure, res.Kind)
	assert.Contains(t, res.Failure.Reason, "timeout")
}

func TestRedirectController_ContextEndStopsObservation(t *testing.T) {
	c := NewRedirectController(&scriptedSurface{block: true}, "att-1", secure3DSResult(), testCompletion)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := c.Run(ctx)
	require.Equal(t, domain.ResultFailure, res.Kind)
	assert.Contains(t, res.Failure.Reason, "abandoned")

	u, _ := url.Parse("https://shop.example/3ds")
	assert.True(t, c.OnNavigate(ports.Navigation{URL: u}))
	assert.Equal(t, domain.ResultFailure, c.Outcome().Kind)
}

func TestRedirectController_NoSurface(t *testing.T) {
	c := NewRedirectController(nil, "att-1", secure3DSResult(), testCompletion)
	res := c.Run(context.Background())
	assert.ErrorIs(t, res.Error(), domain.ErrChallenge)
}
