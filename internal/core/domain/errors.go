// Package domain contains the core business entities for the payment SDK.
package domain

import (
	"encoding/json"
	"errors"
)

// Domain errors - one per failure category of an attempt.
var (
	// ErrValidation is returned when a precondition fails. No network call was made.
	ErrValidation = errors.New("validation failed")

	// ErrSession is returned when the session round-trip fails or is malformed.
	ErrSession = errors.New("session exchange failed")

	// ErrTransport is returned when the purchase round-trip fails at transport level.
	ErrTransport = errors.New("purchase transport failed")

	// ErrDecodeAnomaly flags a soft decode problem (amount, date).
	ErrDecodeAnomaly = errors.New("decode anomaly")

	// ErrChallenge is returned when the redirect/3DS surface fails or is cancelled.
	ErrChallenge = errors.New("challenge failed")

	// ErrGatewayFailure is returned when the gateway explicitly declines.
	ErrGatewayFailure = errors.New("gateway failure")

	// ErrMalformedResponse is returned when the gateway body cannot be classified.
	ErrMalformedResponse = errors.New("malformed gateway response")

	// ErrCancelled is returned when the caller abandons an attempt.
	ErrCancelled = errors.New("attempt cancelled")

	// ErrMissingSecret is returned by the signer when no merchant secret is set.
	ErrMissingSecret = errors.New("merchant secret is missing")

	// ErrTokenMismatch is returned when a session token is reused for another request.
	ErrTokenMismatch = errors.New("session token does not belong to this request")
)

// Failure codes carried on results and API responses.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeSession           = "SESSION_ERROR"
	CodeTransport         = "TRANSPORT_ERROR"
	CodeChallenge         = "CHALLENGE_ERROR"
	CodeGatewayFailure    = "GATEWAY_FAILURE"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeCancelled         = "CANCELLED"
	CodeInternal          = "INTERNAL_ERROR"
)

// CodeFor maps a sentinel to its failure code.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrMissingSecret):
		return CodeValidation
	case errors.Is(err, ErrSession):
		return CodeSession
	case errors.Is(err, ErrTransport), errors.Is(err, ErrTokenMismatch):
		return CodeTransport
	case errors.Is(err, ErrChallenge):
		return CodeChallenge
	case errors.Is(err, ErrGatewayFailure):
		return CodeGatewayFailure
	case errors.Is(err, ErrMalformedResponse):
		return CodeMalformedResponse
	case errors.Is(err, ErrCancelled):
		return CodeCancelled
	default:
		return CodeInternal
	}
}

// ServiceError wraps errors with additional context.
type ServiceError struct {
	Err     error
	Message string
	Code    string
	// Raw is the gateway body that came with the error, if any.
	Raw json.RawMessage
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(err error, message, code string) *ServiceError {
	return &ServiceError{Err: err, Message: message, Code: code}
}
