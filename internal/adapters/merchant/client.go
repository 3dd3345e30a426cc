// Package merchant talks to the merchant's own backend: it fetches gateway
// credentials on demand and forwards finished transactions as signed
// callbacks.
package merchant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

const (
	PathCredentials = "/api/v1/internal/merchant/credentials/"
	PathCallback    = "/api/v1/payments/transaction-callback/"
)

// ErrBackend is returned for every failed backend round-trip.
var ErrBackend = errors.New("merchant backend request failed")

// Client implements ports.CredentialsProvider and history.Notifier against
// the merchant backend.
type Client struct {
	baseURL        string
	apiKey         string
	callbackSecret string
	http           *resty.Client
	now            func() time.Time
}

// NewClient creates a new merchant backend client. callbackSecret signs
// outgoing callbacks; empty disables signing.
func NewClient(baseURL, apiKey, callbackSecret string) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		callbackSecret: callbackSecret,
		http: resty.New().
			SetTimeout(15 * time.Second).
			SetHeader("Accept", "application/json"),
		now: time.Now,
	}
}

// credentialsResponse represents the JSON response for merchant credentials.
type credentialsResponse struct {
	MerchantKey      string `json:"merchant_key"`
	MerchantPassword string `json:"merchant_password"`
	PaymentURL       string `json:"payment_url"`
}

// Credentials fetches the merchant credentials. It is called once per
// attempt, so rotated credentials take effect on the next attempt.
// GET /api/v1/internal/merchant/credentials/
func (c *Client) Credentials(ctx context.Context) (domain.Credentials, error) {
	var body credentialsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Internal-API-Key", c.apiKey).
		SetResult(&body).
		Get(c.baseURL + PathCredentials)
	if err != nil {
		return domain.Credentials{}, domain.NewServiceError(ErrBackend,
			"request failed: "+err.Error(), "BACKEND_ERROR")
	}

	// Handle response codes
	switch resp.StatusCode() {
	case http.StatusOK:
		// Success - continue
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.Credentials{}, domain.NewServiceError(ErrBackend,
			"authentication failed with merchant backend", "BACKEND_AUTH_ERROR")
	default:
		return domain.Credentials{}, domain.NewServiceError(ErrBackend,
			fmt.Sprintf("backend returned status %d: %s", resp.StatusCode(), resp.String()),
			"BACKEND_ERROR")
	}

	return domain.Credentials{
		MerchantKey:    body.MerchantKey,
		MerchantSecret: body.MerchantPassword,
		BaseURL:        body.PaymentURL,
	}, nil
}

// NotifyTransaction sends a finished transaction to the merchant backend.
// POST /api/v1/payments/transaction-callback/
func (c *Client) NotifyTransaction(ctx context.Context, record domain.TransactionRecord) error {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Internal-API-Key", c.apiKey).
		SetHeader("X-Request-ID", record.ID).
		SetBody(record)

	if c.callbackSecret != "" {
		ts := strconv.FormatInt(c.now().Unix(), 10)
		req.SetHeader(SignatureHeader, SignatureHeaderValue(record.OrderID, record.ID, ts, c.callbackSecret))
	}

	resp, err := req.Post(c.baseURL + PathCallback)
	if err != nil {
		return domain.NewServiceError(ErrBackend, "request failed: "+err.Error(), "BACKEND_ERROR")
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated &&
		resp.StatusCode() != http.StatusNoContent {
		return domain.NewServiceError(ErrBackend,
			fmt.Sprintf("backend returned status %d: %s", resp.StatusCode(), resp.String()),
			"BACKEND_ERROR")
	}

	log.WithFields(log.Fields{
		"order_id":  record.OrderID,
		"record_id": record.ID,
		"outcome":   record.Outcome,
	}).Debug("Transaction forwarded to merchant backend")
	return nil
}
