// Package ports defines the interfaces (ports) for the payment SDK.
// These are contracts that adapters must implement.
package ports

import (
	"context"
	"net/url"

	"github.com/expresspay/expresspay-go/internal/core/domain"
)

// RequestSigner builds the canonical request fields and the integrity hash.
type RequestSigner interface {
	// Sign is deterministic. It fails only when the secret is absent.
	Sign(order domain.Order, secret string) (domain.SignedRequest, error)
}

// SessionOpener performs the first round-trip.
type SessionOpener interface {
	// OpenSession trades the signed order for a short-lived session token.
	// Every failure is a domain.ErrSession.
	OpenSession(ctx context.Context, req domain.SessionRequest) (domain.SessionToken, error)
}

// PurchaseSubmitter performs the second round-trip.
type PurchaseSubmitter interface {
	// SubmitPurchase posts the instrument payload with the session token and
	// returns the raw gateway body. Every failure is a domain.ErrTransport.
	SubmitPurchase(ctx context.Context, req domain.PurchaseRequest) ([]byte, error)
}

// ResponseDecoder classifies a gateway body. It never fails; undecodable
// bodies become failure results.
type ResponseDecoder interface {
	Decode(body []byte) domain.TransactionResult
}

// ChallengeRequest is the exact request a challenge surface must perform.
type ChallengeRequest struct {
	AttemptID string
	URL       string
	Method    domain.RedirectMethod
	Params    map[string]string
}

// Navigation is one navigation target observed on a challenge surface.
type Navigation struct {
	URL    *url.URL
	Method string
	// Params holds the query string and, for form posts, the body.
	Params url.Values
}

// NavigationObserver receives the navigations of a challenge surface.
type NavigationObserver interface {
	// OnNavigate is called before the surface follows a target. It returns
	// true once the flow is resolved; the surface must then stop.
	OnNavigate(nav Navigation) bool
	// OnNavigationError reports a hard navigation failure.
	OnNavigationError(err error)
}

// ChallengeSurface renders or drives the redirect/3DS request.
type ChallengeSurface interface {
	// Load starts the challenge. An error means the surface could not load
	// at all. Later failures go to the observer.
	Load(ctx context.Context, req ChallengeRequest, observer NavigationObserver) error
}

// TransactionHistory is the append-only transaction store.
// Implementations must be safe for concurrent use.
type TransactionHistory interface {
	Append(ctx context.Context, record domain.TransactionRecord) error
	Clear(ctx context.Context) error
}

// CredentialsProvider supplies merchant credentials, read once per execute.
type CredentialsProvider interface {
	Credentials(ctx context.Context) (domain.Credentials, error)
}
