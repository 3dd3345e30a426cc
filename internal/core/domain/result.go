package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ResultKind discriminates TransactionResult.
type ResultKind string

const (
	ResultSuccess       ResultKind = "success"
	ResultSecure3DS     ResultKind = "secure3d"
	ResultRedirect      ResultKind = "redirect"
	ResultRecurringInit ResultKind = "recurring_init"
	ResultFailure       ResultKind = "failure"
)

// TransactionType is the gateway's transaction type.
type TransactionType string

const (
	TransactionSecure3D   TransactionType = "SECURE_3D"
	TransactionSale       TransactionType = "SALE"
	TransactionAuth       TransactionType = "AUTH"
	TransactionCapture    TransactionType = "CAPTURE"
	TransactionReversal   TransactionType = "REVERSAL"
	TransactionRefund     TransactionType = "REFUND"
	TransactionChargeback TransactionType = "CHARGEBACK"
)

// RedirectMethod is how the redirect parameters must be transferred.
type RedirectMethod string

const (
	RedirectGET  RedirectMethod = "GET"
	RedirectPOST RedirectMethod = "POST"
)

// TransactionDetails are carried by every non-failure result.
type TransactionDetails struct {
	Action          TransactionType `json:"action,omitempty"`
	Result          string          `json:"result,omitempty"`
	Status          string          `json:"status,omitempty"`
	OrderID         string          `json:"order_id"`
	TransactionID   string          `json:"transaction_id"`
	TransactionDate time.Time       `json:"transaction_date"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Descriptor      string          `json:"descriptor,omitempty"`
}

// Redirect describes the browser step the gateway asked for.
type Redirect struct {
	URL    string            `json:"url"`
	Method RedirectMethod    `json:"method"`
	Params map[string]string `json:"params"`
}

// Failure describes why an attempt did not succeed.
type Failure struct {
	Reason           string          `json:"reason"`
	Code             string          `json:"code"`
	ValidationErrors []string        `json:"validation_errors,omitempty"`
	Raw              json.RawMessage `json:"raw,omitempty"`
	Err              error           `json:"-"`
}

// TransactionResult is the tagged outcome of decoding or of a whole attempt.
// Kind selects which optional parts are populated.
type TransactionResult struct {
	Kind           ResultKind          `json:"kind"`
	Details        *TransactionDetails `json:"details,omitempty"`
	Redirect       *Redirect           `json:"redirect,omitempty"`
	RecurringToken string              `json:"recurring_token,omitempty"`
	Summary        map[string]any      `json:"summary,omitempty"`
	Failure        *Failure            `json:"failure,omitempty"`
	// Anomalies lists soft decode problems; the result is still usable.
	Anomalies []string `json:"anomalies,omitempty"`
}

// IsTerminalSuccess reports whether the result counts as a completed payment.
func (r TransactionResult) IsTerminalSuccess() bool {
	return r.Kind == ResultSuccess || r.Kind == ResultRecurringInit
}

// NeedsChallenge reports whether a redirect sub-flow must run.
func (r TransactionResult) NeedsChallenge() bool {
	return (r.Kind == ResultSecure3DS || r.Kind == ResultRedirect) && r.Redirect != nil
}

// Error returns the failure's sentinel, or nil.
func (r TransactionResult) Error() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure.Err
}

// NewFailure builds a failure result for a sentinel error.
func NewFailure(err error, reason string) TransactionResult {
	return TransactionResult{
		Kind: ResultFailure,
		Failure: &Failure{
			Reason: reason,
			Code:   CodeFor(err),
			Err:    err,
		},
	}
}

// NewValidationFailure builds a failure listing every failed precondition.
func NewValidationFailure(errs []string) TransactionResult {
	res := NewFailure(ErrValidation, "invalid payment request")
	res.Failure.ValidationErrors = errs
	return res
}

// FailureFromError converts any error into a failure result, keeping the
// message and code of a ServiceError.
func FailureFromError(err error) TransactionResult {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		res := NewFailure(svcErr.Err, svcErr.Message)
		if svcErr.Code != "" {
			res.Failure.Code = svcErr.Code
		}
		res.Failure.Raw = svcErr.Raw
		return res
	}
	return NewFailure(err, err.Error())
}
