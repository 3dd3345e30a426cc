package expresspay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/expresspay/expresspay-go/internal/metrics"
	"github.com/expresspay/expresspay-go/internal/patterns"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

// DefaultUserAgent identifies this SDK in the X-User-Agent header.
const DefaultUserAgent = "go.com.expresspay.sdk"

// DefaultTimeout bounds a single gateway round-trip.
const DefaultTimeout = 30 * time.Second

// Client implements ports.SessionOpener and ports.PurchaseSubmitter over the
// gateway's JSON API. It holds no per-attempt state.
type Client struct {
	http      *resty.Client
	userAgent string
	breaker   *patterns.CircuitBreakerWrapper
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithCircuitBreaker routes every round-trip through cb.
func WithCircuitBreaker(cb *patterns.CircuitBreakerWrapper) ClientOption {
	return func(c *Client) {
		c.breaker = cb
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.http.SetTimeout(timeout)
	}
}

// NewClient creates a new gateway client.
func NewClient(userAgent string, opts ...ClientOption) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	c := &Client{
		http: resty.New().
			SetTimeout(DefaultTimeout).
			SetRetryCount(0). // retry policy belongs to the caller
			SetHeaders(map[string]string{
				"X-User-Agent": userAgent,
				"Accept":       "application/json",
				"Content-Type": "application/json",
			}),
		userAgent: userAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sessionResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// OpenSession performs POST /api/v1/session and extracts the session token
// from the last path segment of redirect_url.
func (c *Client) OpenSession(ctx context.Context, req domain.SessionRequest) (domain.SessionToken, error) {
	endpoint, err := joinURL(req.BaseURL, PathSession)
	if err != nil {
		return domain.SessionToken{}, domain.NewServiceError(domain.ErrSession,
			"invalid gateway base url", domain.CodeSession)
	}

	logger := log.WithFields(log.Fields{
		"order_id": req.Signed.OrderID,
		"endpoint": PathSession,
		"method":   req.Method,
	})

	resp, err := c.post(ctx, endpoint, newSessionBody(req), nil)
	if err != nil {
		logger.WithError(err).Error("Session request failed")
		return domain.SessionToken{}, withRaw(domain.NewServiceError(domain.ErrSession,
			"error while creating gateway session: "+err.Error(), domain.CodeSession), err)
	}

	var body sessionResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		logger.WithError(err).Error("Session response is not JSON")
		return domain.SessionToken{}, domain.NewServiceError(domain.ErrSession,
			"session response is not valid JSON", domain.CodeSession)
	}

	token, err := tokenFromRedirect(body.RedirectURL)
	if err != nil {
		logger.WithError(err).Error("Session response has no usable redirect_url")
		return domain.SessionToken{}, domain.NewServiceError(domain.ErrSession,
			err.Error(), domain.CodeSession)
	}

	logger.Debug("Session opened")
	return domain.NewSessionToken(token, req.Signed), nil
}

// SubmitPurchase posts the instrument payload with the session token and
// returns the raw response body for decoding.
func (c *Client) SubmitPurchase(ctx context.Context, req domain.PurchaseRequest) ([]byte, error) {
	if !req.Token.BoundTo(req.Signed) {
		return nil, domain.NewServiceError(domain.ErrTokenMismatch,
			"session token was issued for a different request", domain.CodeTransport)
	}

	purchasePath, body, err := buildPurchase(req)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrTransport, err.Error(), domain.CodeTransport)
	}

	endpoint, err := joinURL(req.BaseURL, purchasePath)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrTransport,
			"invalid gateway base url", domain.CodeTransport)
	}

	resp, err := c.post(ctx, endpoint, body, map[string]string{"Token": req.Token.Value})
	if err != nil {
		log.WithFields(log.Fields{
			"order_id":   req.Signed.OrderID,
			"endpoint":   purchasePath,
			"instrument": req.Instrument.Fingerprint(),
		}).WithError(err).Error("Purchase request failed")
		return nil, withRaw(domain.NewServiceError(domain.ErrTransport,
			"error while submitting purchase", domain.CodeTransport), err)
	}

	return resp.Body(), nil
}

// post sends one JSON POST through the circuit breaker. Non-2xx statuses are
// errors.
func (c *Client) post(ctx context.Context, endpoint string, body any, headers map[string]string) (*resty.Response, error) {
	started := time.Now()
	label := endpointLabel(endpoint)

	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeaders(headers).
			SetBody(body).
			Post(endpoint)
		if err != nil {
			metrics.ObserveGateway(label, 0, started)
			return nil, err
		}

		metrics.ObserveGateway(label, resp.StatusCode(), started)
		if !resp.IsSuccess() {
			return nil, &statusError{status: resp.StatusCode(), body: resp.Body()}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*resty.Response), nil
}

// statusError is a non-2xx gateway reply. It keeps the body for diagnostics.
type statusError struct {
	status int
	body   []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway returned status %d", e.status)
}

// withRaw attaches the gateway body behind err, when there is one.
func withRaw(svcErr *domain.ServiceError, err error) *domain.ServiceError {
	var se *statusError
	if errors.As(err, &se) {
		svcErr.Raw = rawPayload(se.body)
	}
	return svcErr
}

// tokenFromRedirect returns the last path segment of the redirect URL.
func tokenFromRedirect(redirectURL string) (string, error) {
	if strings.TrimSpace(redirectURL) == "" {
		return "", fmt.Errorf("session response is missing redirect_url")
	}

	u, err := url.Parse(redirectURL)
	if err != nil {
		return "", fmt.Errorf("session redirect_url is malformed: %w", err)
	}

	trimmed := strings.TrimRight(u.Path, "/")
	token := path.Base(trimmed)
	if trimmed == "" || token == "." || token == "/" {
		return "", fmt.Errorf("session redirect_url has no token segment")
	}
	return token, nil
}

func joinURL(base, p string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	u, err := url.Parse(base + p)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("unsupported gateway url %q", base)
	}
	return u.String(), nil
}

func endpointLabel(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "unknown"
	}
	switch {
	case strings.HasSuffix(u.Path, PathSession):
		return "session"
	case strings.HasSuffix(u.Path, PathCardPurchase):
		return "purchase_card"
	case strings.HasSuffix(u.Path, PathVirtualPurchase):
		return "purchase_virtual"
	default:
		return "unknown"
	}
}
