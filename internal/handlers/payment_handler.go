// Package handlers contains the HTTP handlers and routing.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/expresspay/expresspay-go/internal/adapters/browser"
	"github.com/expresspay/expresspay-go/internal/adapters/history"
	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/expresspay/expresspay-go/internal/core/service"
	"github.com/expresspay/expresspay-go/internal/patterns"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Settings are the service-wide defaults applied to every attempt.
type Settings struct {
	SuccessURL         string
	CancelURL          string
	TermURL3DS         string
	ApplePayMerchantID string
	AttemptTimeout     time.Duration
}

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	adapter  *service.TransactionAdapter
	attempts *AttemptRegistry
	relay    *browser.Relay
	history  history.Store
	breaker  *patterns.CircuitBreakerWrapper
	settings Settings
}

// NewPaymentHandler creates a new payment handler. relay and breaker may be
// nil.
func NewPaymentHandler(
	adapter *service.TransactionAdapter,
	relay *browser.Relay,
	store history.Store,
	breaker *patterns.CircuitBreakerWrapper,
	settings Settings,
) *PaymentHandler {
	return &PaymentHandler{
		adapter:  adapter,
		attempts: NewAttemptRegistry(),
		relay:    relay,
		history:  store,
		breaker:  breaker,
		settings: settings,
	}
}

// saleOptionsRequest are the per-request overrides of Settings.
type saleOptionsRequest struct {
	ChannelID     string `json:"channel_id"`
	RecurringInit bool   `json:"recurring_init"`
	AuthOnly      bool   `json:"auth"`
	TermURL3DS    string `json:"term_url_3ds"`
	SuccessURL    string `json:"success_url"`
	CancelURL     string `json:"cancel_url"`
}

// CardPaymentRequest is the body of POST /api/v1/payments/card.
type CardPaymentRequest struct {
	Order   domain.Order       `json:"order"`
	Card    domain.Card        `json:"card"`
	Payer   domain.Payer       `json:"payer"`
	Options saleOptionsRequest `json:"options"`
}

// ApplePayPaymentRequest is the body of POST /api/v1/payments/applepay.
// Payer is derived from Contact when omitted.
type ApplePayPaymentRequest struct {
	Order   domain.Order         `json:"order"`
	Token   domain.ApplePayToken `json:"token"`
	Contact *domain.Contact      `json:"contact"`
	Payer   *domain.Payer        `json:"payer"`
	Options saleOptionsRequest   `json:"options"`
}

// AttemptResponse describes an attempt to API clients.
type AttemptResponse struct {
	AttemptID      string                    `json:"attempt_id"`
	OrderID        string                    `json:"order_id"`
	Instrument     domain.InstrumentKind     `json:"instrument"`
	Status         string                    `json:"status"`
	ChallengeState service.ChallengeState    `json:"challenge_state"`
	ChallengeURL   string                    `json:"challenge_url,omitempty"`
	Result         *domain.TransactionResult `json:"result,omitempty"`
}

// CreateCardPayment handles POST /api/v1/payments/card
func (h *PaymentHandler) CreateCardPayment(c *gin.Context) {
	var req CardPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	if req.Payer.IP == "" {
		req.Payer.IP = c.ClientIP()
	}

	h.start(c, req.Order, req.Card, req.Payer, req.Options)
}

// CreateApplePayPayment handles POST /api/v1/payments/applepay
func (h *PaymentHandler) CreateApplePayPayment(c *gin.Context) {
	var req ApplePayPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	var payer domain.Payer
	switch {
	case req.Payer != nil:
		payer = *req.Payer
	case req.Contact != nil:
		payer = domain.PayerFromContact(*req.Contact, c.ClientIP())
	default:
		badRequest(c, "Invalid request: payer or contact is required")
		return
	}
	if payer.IP == "" {
		payer.IP = c.ClientIP()
	}

	h.start(c, req.Order, req.Token, payer, req.Options)
}

func (h *PaymentHandler) start(
	c *gin.Context,
	order domain.Order,
	instrument domain.Instrument,
	payer domain.Payer,
	req saleOptionsRequest,
) {
	opts := h.options(req)
	logger := log.WithFields(log.Fields{
		"request_id": c.GetString("request_id"),
		"attempt_id": opts.AttemptID,
		"order_id":   order.ID,
		"instrument": instrument.Fingerprint(),
	})

	// The attempt outlives this request.
	attempt := h.adapter.Execute(context.Background(), order, instrument, payer, opts)
	h.attempts.Put(attempt)

	if res, done := attempt.Result(); done && res.Failure != nil && res.Failure.Code == domain.CodeValidation {
		logger.Warn("Payment request failed validation")
		c.JSON(http.StatusBadRequest, gin.H{
			"success":    false,
			"attempt_id": attempt.ID,
			"error":      res.Failure.Reason,
			"code":       res.Failure.Code,
			"details":    res.Failure.ValidationErrors,
		})
		return
	}

	logger.Info("Payment attempt started")
	c.JSON(http.StatusAccepted, h.describe(attempt))
}

func (h *PaymentHandler) options(req saleOptionsRequest) service.Options {
	opts := service.Options{
		SaleOptions: domain.SaleOptions{
			AttemptID:          newAttemptID(),
			ChannelID:          req.ChannelID,
			RecurringInit:      req.RecurringInit,
			AuthOnly:           req.AuthOnly,
			TermURL3DS:         firstNonEmpty(req.TermURL3DS, h.settings.TermURL3DS),
			SuccessURL:         firstNonEmpty(req.SuccessURL, h.settings.SuccessURL),
			CancelURL:          firstNonEmpty(req.CancelURL, h.settings.CancelURL),
			ApplePayMerchantID: h.settings.ApplePayMerchantID,
		},
		Timeout: h.settings.AttemptTimeout,
	}

	// Challenges completed in the payer's browser must return here.
	if h.relay != nil {
		success, cancel := h.relay.ReturnURLs(opts.AttemptID)
		opts.TermURL3DS = success
		opts.SuccessURL = success
		opts.CancelURL = cancel
	}

	attemptID := opts.AttemptID
	opts.OnSuccess = func(res domain.TransactionResult) {
		log.WithField("attempt_id", attemptID).WithField("outcome", res.Kind).Info("Payment succeeded")
	}
	opts.OnFailure = func(res domain.TransactionResult) {
		entry := log.WithField("attempt_id", attemptID).WithField("outcome", res.Kind)
		if res.Failure != nil {
			entry = entry.WithField("code", res.Failure.Code)
		}
		entry.Warn("Payment failed")
	}
	return opts
}

// GetAttempt handles GET /api/v1/attempts/:id
func (h *PaymentHandler) GetAttempt(c *gin.Context) {
	attempt, ok := h.attempts.Get(c.Param("id"))
	if !ok {
		notFound(c, "attempt not found")
		return
	}
	c.JSON(http.StatusOK, h.describe(attempt))
}

// CancelAttempt handles DELETE /api/v1/attempts/:id
func (h *PaymentHandler) CancelAttempt(c *gin.Context) {
	attempt, ok := h.attempts.Get(c.Param("id"))
	if !ok {
		notFound(c, "attempt not found")
		return
	}

	attempt.Cancel()
	log.WithFields(log.Fields{
		"request_id": c.GetString("request_id"),
		"attempt_id": attempt.ID,
	}).Info("Payment attempt cancelled")

	c.JSON(http.StatusOK, h.describe(attempt))
}

// ListTransactions handles GET /api/v1/transactions
func (h *PaymentHandler) ListTransactions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		badRequest(c, "limit must be a non-negative integer")
		return
	}

	records, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		log.WithError(err).Error("Failed to list transactions")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": records, "count": len(records)})
}

// ClearTransactions handles DELETE /api/v1/transactions
func (h *PaymentHandler) ClearTransactions(c *gin.Context) {
	if err := h.history.Clear(c.Request.Context()); err != nil {
		log.WithError(err).Error("Failed to clear transactions")
		internalError(c)
		return
	}
	c.Status(http.StatusNoContent)
}

// Health handles GET /health
func (h *PaymentHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"service":         "expresspay-go",
		"version":         "1.0.0",
		"circuit_breaker": h.breaker.GetState(),
	})
}

func (h *PaymentHandler) describe(a *service.Attempt) AttemptResponse {
	resp := AttemptResponse{
		AttemptID:      a.ID,
		OrderID:        a.OrderID,
		Instrument:     a.Instrument,
		Status:         "pending",
		ChallengeState: a.ChallengeState(),
	}

	if res, done := a.Result(); done {
		resp.Status = "completed"
		if a.Cancelled() {
			resp.Status = "cancelled"
		}
		resp.Result = &res
		return resp
	}

	if h.relay != nil && h.relay.Pending(a.ID) {
		resp.ChallengeURL = challengePath(a.ID)
	}
	return resp
}

func newAttemptID() string {
	return uuid.New().String()
}

func challengePath(attemptID string) string {
	return "/challenges/" + attemptID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
		"code":    domain.CodeValidation,
	})
}

func notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"error":   msg,
		"code":    "NOT_FOUND",
	})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   "Internal server error",
		"code":    domain.CodeInternal,
	})
}
