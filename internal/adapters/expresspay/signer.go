// Package expresspay implements the gateway side of the transaction protocol:
// request signing, the session and purchase round-trips, and response decoding.
package expresspay

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/expresspay/expresspay-go/internal/core/domain"
)

// Signer implements ports.RequestSigner with the gateway's hash scheme.
type Signer struct{}

// NewSigner creates a new request signer.
func NewSigner() *Signer {
	return &Signer{}
}

// Sign canonicalizes the order and computes its hash. The amount string and
// currency case used here are the ones sent on the wire.
func (s *Signer) Sign(order domain.Order, secret string) (domain.SignedRequest, error) {
	signed := domain.SignedRequest{
		OrderID:     order.ID,
		Amount:      order.FormattedAmount(),
		Currency:    order.CurrencyCode(),
		Description: order.Description,
	}

	hash, err := Hash(signed.OrderID, signed.Amount, signed.Currency, signed.Description, secret)
	if err != nil {
		return domain.SignedRequest{}, err
	}
	signed.Hash = hash
	return signed, nil
}

// Hash computes sha1(hex(md5(UPPER(orderID + amount + currency + description + secret)))),
// hex encoded. Field order is fixed.
func Hash(orderID, amount, currency, description, secret string) (string, error) {
	if secret == "" {
		return "", domain.ErrMissingSecret
	}

	var b strings.Builder
	b.WriteString(orderID)
	b.WriteString(amount)
	b.WriteString(currency)
	b.WriteString(description)
	b.WriteString(secret)

	md5Sum := md5.Sum([]byte(strings.ToUpper(b.String())))
	sha1Sum := sha1.Sum([]byte(hex.EncodeToString(md5Sum[:])))
	return hex.EncodeToString(sha1Sum[:]), nil
}
