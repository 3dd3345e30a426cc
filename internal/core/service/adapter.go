// Package service implements the transaction protocol engine: precondition
// validation, the session and purchase round-trips, decoding and the
// redirect/3DS sub-flow.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/expresspay/expresspay-go/internal/core/ports"
	"github.com/expresspay/expresspay-go/internal/metrics"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Options configures one Execute call. OnSuccess and OnFailure are required.
type Options struct {
	domain.SaleOptions

	// Timeout is the overall deadline of the attempt. Zero means none.
	Timeout time.Duration

	OnAuthentication func(domain.Instrument)
	OnSuccess        func(domain.TransactionResult)
	OnFailure        func(domain.TransactionResult)
}

// TransactionAdapter orchestrates signing, session, purchase, decoding and
// the challenge sub-flow. One adapter serves any number of concurrent
// attempts for distinct order ids.
type TransactionAdapter struct {
	signer      ports.RequestSigner
	sessions    ports.SessionOpener
	purchases   ports.PurchaseSubmitter
	decoder     ports.ResponseDecoder
	surface     ports.ChallengeSurface
	history     ports.TransactionHistory
	credentials ports.CredentialsProvider

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewTransactionAdapter creates a new transaction adapter. surface and
// history may be nil.
func NewTransactionAdapter(
	signer ports.RequestSigner,
	sessions ports.SessionOpener,
	purchases ports.PurchaseSubmitter,
	decoder ports.ResponseDecoder,
	surface ports.ChallengeSurface,
	history ports.TransactionHistory,
	credentials ports.CredentialsProvider,
) *TransactionAdapter {
	return &TransactionAdapter{
		signer:      signer,
		sessions:    sessions,
		purchases:   purchases,
		decoder:     decoder,
		surface:     surface,
		history:     history,
		credentials: credentials,
		inFlight:    make(map[string]struct{}),
	}
}

// Execute validates the request and starts the attempt in the background.
// Validation failures resolve before Execute returns and make no network
// call. Exactly one of OnSuccess/OnFailure runs per attempt unless the
// attempt is cancelled first.
func (s *TransactionAdapter) Execute(
	ctx context.Context,
	order domain.Order,
	instrument domain.Instrument,
	payer domain.Payer,
	opts Options,
) *Attempt {
	if opts.AttemptID == "" {
		opts.AttemptID = uuid.NewString()
	}

	var kind domain.InstrumentKind
	if instrument != nil {
		kind = instrument.Kind()
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	attempt := newAttempt(opts.AttemptID, order.ID, kind, cancel)

	logger := log.WithFields(log.Fields{
		"attempt_id": attempt.ID,
		"order_id":   order.ID,
		"instrument": kind,
	})

	// the provider may be remote, so it is only asked once the request is sound
	var creds domain.Credentials
	errs := validateRequest(order, instrument, payer, opts)
	if len(errs) == 0 {
		var credErr error
		creds, credErr = s.readCredentials(runCtx)
		errs = validateCredentials(creds, credErr)
	}
	if len(errs) == 0 && !s.reserve(order.ID) {
		errs = append(errs, "Order id '"+order.ID+"' is already in use by an attempt in flight")
	}
	if len(errs) > 0 {
		logger.WithField("errors", errs).Warn("Payment request rejected")
		s.complete(attempt, instrument, payer, opts, domain.NewValidationFailure(errs), logger)
		return attempt
	}

	go func() {
		res := s.run(runCtx, attempt, order, instrument, payer, opts, creds, logger)
		// the order id is free again before anyone observes the result
		s.release(order.ID)
		s.complete(attempt, instrument, payer, opts, res, logger)
	}()

	return attempt
}

func (s *TransactionAdapter) run(
	ctx context.Context,
	attempt *Attempt,
	order domain.Order,
	instrument domain.Instrument,
	payer domain.Payer,
	opts Options,
	creds domain.Credentials,
	logger *log.Entry,
) domain.TransactionResult {
	if opts.OnAuthentication != nil {
		opts.OnAuthentication(instrument)
	}

	signed, err := s.signer.Sign(order, creds.MerchantSecret)
	if err != nil {
		return domain.FailureFromError(err)
	}

	token, err := s.sessions.OpenSession(ctx, domain.SessionRequest{
		BaseURL:     creds.BaseURL,
		Signed:      signed,
		Method:      instrument.Kind(),
		MerchantKey: creds.MerchantKey,
		SuccessURL:  opts.SuccessURL,
		CancelURL:   opts.CancelURL,
		Payer:       payer,
	})
	if err != nil {
		return domain.FailureFromError(err)
	}
	logger.WithField("token", mask(token.Value)).Debug("Session token obtained")

	if attempt.Cancelled() {
		return domain.NewFailure(domain.ErrCancelled, "attempt cancelled by caller")
	}

	body, err := s.purchases.SubmitPurchase(ctx, domain.PurchaseRequest{
		BaseURL:    creds.BaseURL,
		Signed:     signed,
		Token:      token,
		Instrument: instrument,
		Payer:      payer,
		Options:    opts.SaleOptions,
	})
	if err != nil {
		return domain.FailureFromError(err)
	}

	res := s.decoder.Decode(body)
	for _, anomaly := range res.Anomalies {
		logger.WithError(domain.ErrDecodeAnomaly).WithField("anomaly", anomaly).Warn("Gateway response decoded with defaults")
	}

	if !res.NeedsChallenge() {
		return res
	}

	controller := NewRedirectController(s.surface, attempt.ID, res, CompletionURLs{
		Success: []string{opts.TermURL3DS, opts.SuccessURL},
		Cancel:  []string{opts.CancelURL},
	})
	attempt.setChallenge(controller)
	return controller.Run(ctx)
}

// complete resolves the attempt, records it and delivers the hook.
func (s *TransactionAdapter) complete(
	attempt *Attempt,
	instrument domain.Instrument,
	payer domain.Payer,
	opts Options,
	res domain.TransactionResult,
	logger *log.Entry,
) {
	deliver := func(res domain.TransactionResult) {
		code := ""
		if res.Failure != nil {
			code = res.Failure.Code
		}
		metrics.AttemptsTotal.WithLabelValues(string(attempt.Instrument), string(res.Kind), code).Inc()

		entry := logger.WithField("outcome", res.Kind)
		if res.Failure != nil {
			entry.WithFields(log.Fields{
				"code":   res.Failure.Code,
				"reason": res.Failure.Reason,
			}).Warn("Payment attempt failed")
		} else {
			entry.Info("Payment attempt completed")
		}

		if code != domain.CodeValidation && code != domain.CodeCancelled {
			s.record(attempt, instrument, payer, opts, res, logger)
		}

		switch {
		case res.IsTerminalSuccess() && opts.OnSuccess != nil:
			opts.OnSuccess(res)
		case !res.IsTerminalSuccess() && opts.OnFailure != nil:
			opts.OnFailure(res)
		}
	}

	if !attempt.finish(res, deliver) {
		logger.WithField("outcome", res.Kind).Info("Attempt already cancelled; dropping outcome")
	}
}

func (s *TransactionAdapter) record(
	attempt *Attempt,
	instrument domain.Instrument,
	payer domain.Payer,
	opts Options,
	res domain.TransactionResult,
	logger *log.Entry,
) {
	if s.history == nil {
		return
	}

	rec := domain.TransactionRecord{
		ID:             uuid.NewString(),
		OrderID:        attempt.OrderID,
		PayerEmail:     payer.Email,
		Outcome:        res.Kind,
		Summary:        summarize(res),
		IsAuthOnly:     opts.AuthOnly,
		RecurringToken: res.RecurringToken,
		CreatedAt:      time.Now().UTC(),
	}
	if instrument != nil {
		rec.InstrumentFingerprint = instrument.Fingerprint()
	}
	if res.Details != nil {
		rec.TransactionID = res.Details.TransactionID
	}

	// The attempt context may already be done; the record must still land.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.history.Append(ctx, rec); err != nil {
		logger.WithError(err).Error("Failed to append transaction record")
	}
}

func (s *TransactionAdapter) readCredentials(ctx context.Context) (domain.Credentials, error) {
	if s.credentials == nil {
		return domain.Credentials{}, nil
	}
	return s.credentials.Credentials(ctx)
}

func (s *TransactionAdapter) reserve(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[orderID]; busy {
		return false
	}
	s.inFlight[orderID] = struct{}{}
	return true
}

func (s *TransactionAdapter) release(orderID string) {
	s.mu.Lock()
	delete(s.inFlight, orderID)
	s.mu.Unlock()
}

func summarize(res domain.TransactionResult) string {
	switch {
	case res.Failure != nil:
		return res.Failure.Code + ": " + res.Failure.Reason
	case res.Details != nil:
		parts := []string{string(res.Kind)}
		if res.Details.Action != "" {
			parts = append(parts, string(res.Details.Action))
		}
		parts = append(parts, res.Details.Amount.StringFixed(2), res.Details.Currency)
		return strings.Join(parts, " ")
	default:
		return string(res.Kind)
	}
}

// mask keeps the last four characters.
func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
