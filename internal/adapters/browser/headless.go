// Package browser provides challenge surfaces for the redirect/3DS sub-flow.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/expresspay/expresspay-go/internal/core/ports"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrInteractionRequired is reported when a challenge page needs a human.
	ErrInteractionRequired = errors.New("challenge requires user interaction")

	// ErrTooManyHops is reported when a challenge does not settle.
	ErrTooManyHops = errors.New("challenge exceeded navigation limit")
)

const (
	defaultMaxHops = 10
	defaultTimeout = 30 * time.Second
)

// Headless drives a challenge over plain HTTP. It follows redirects and
// auto-submitting HTML forms, reporting every hop to the observer before
// following it. Pages that need user input end the flow with
// ErrInteractionRequired.
type Headless struct {
	maxHops   int
	timeout   time.Duration
	userAgent string
}

// HeadlessOption customizes a Headless surface.
type HeadlessOption func(*Headless)

// WithMaxHops bounds the number of navigations per challenge.
func WithMaxHops(n int) HeadlessOption {
	return func(h *Headless) {
		if n > 0 {
			h.maxHops = n
		}
	}
}

// WithTimeout bounds each navigation.
func WithTimeout(d time.Duration) HeadlessOption {
	return func(h *Headless) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HeadlessOption {
	return func(h *Headless) {
		h.userAgent = ua
	}
}

// NewHeadless creates a new headless challenge surface.
func NewHeadless(opts ...HeadlessOption) *Headless {
	h := &Headless{
		maxHops:   defaultMaxHops,
		timeout:   defaultTimeout,
		userAgent: "Mozilla/5.0 (compatible; expresspay-go)",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load performs the challenge request and keeps navigating until the
// observer resolves the flow. Only a failure of the first request is
// returned; later failures go to the observer.
func (h *Headless) Load(ctx context.Context, req ports.ChallengeRequest, observer ports.NavigationObserver) error {
	logger := log.WithField("attempt_id", req.AttemptID)

	var resolved atomic.Bool
	hops := 0

	client := resty.New().
		SetTimeout(h.timeout).
		SetHeader("User-Agent", h.userAgent).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(r *http.Request, via []*http.Request) error {
			hops++
			if hops > h.maxHops {
				return ErrTooManyHops
			}
			nav := ports.Navigation{URL: r.URL, Method: r.Method, Params: r.URL.Query()}
			if observer.OnNavigate(nav) {
				resolved.Store(true)
				return http.ErrUseLastResponse
			}
			return nil
		}))

	method := req.Method
	if method == "" {
		method = domain.RedirectPOST
	}
	target := req.URL
	params := make(url.Values, len(req.Params))
	for k, v := range req.Params {
		params.Set(k, v)
	}

	for first := true; ; first = false {
		if !first {
			hops++
			if hops > h.maxHops {
				observer.OnNavigationError(ErrTooManyHops)
				return nil
			}
			if observer.OnNavigate(navigationFor(method, target, params)) {
				return nil
			}
		}

		resp, err := send(ctx, client, method, target, params)
		if resolved.Load() {
			return nil
		}
		if err == nil && resp.IsError() {
			err = fmt.Errorf("challenge page %s returned status %d", target, resp.StatusCode())
		}
		if err != nil {
			if first {
				return err
			}
			observer.OnNavigationError(err)
			return nil
		}

		base := resp.Request.RawRequest.URL
		if resp.RawResponse != nil && resp.RawResponse.Request != nil {
			base = resp.RawResponse.Request.URL
		}

		form, err := parseAutoSubmitForm(base, resp.Body())
		if err != nil {
			logger.WithError(err).Debug("Challenge page cannot be submitted automatically")
			observer.OnNavigationError(fmt.Errorf("%w: %v", ErrInteractionRequired, err))
			return nil
		}
		method, target, params = form.Method, form.Action, form.Values
	}
}

func send(ctx context.Context, client *resty.Client, method domain.RedirectMethod, target string, params url.Values) (*resty.Response, error) {
	r := client.R().SetContext(ctx)
	if method == domain.RedirectGET {
		return r.SetQueryParamsFromValues(params).Get(target)
	}
	return r.SetFormDataFromValues(params).Post(target)
}

// navigationFor describes a form submission as the observer sees it: the
// query string merged with the submitted fields.
func navigationFor(method domain.RedirectMethod, target string, params url.Values) ports.Navigation {
	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: target}
	}
	merged := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			merged.Add(k, v)
		}
	}
	return ports.Navigation{URL: u, Method: strings.ToUpper(string(method)), Params: merged}
}
