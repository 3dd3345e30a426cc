// Package domain contains the core business entities for the payment SDK.
// This is the innermost layer - it only depends on value libraries.
package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MinimumAmount is the exclusive lower bound for an order amount.
var MinimumAmount = decimal.NewFromInt(1)

// Order represents the purchase being paid for. It is immutable once handed
// to the transaction adapter.
type Order struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
}

// FormattedAmount returns the canonical amount representation shared by the
// request hash and the outgoing JSON bodies: two decimals, no separators.
func (o Order) FormattedAmount() string {
	return o.Amount.StringFixed(2)
}

// CurrencyCode returns the ISO-4217 code in the case the gateway expects.
func (o Order) CurrencyCode() string {
	return strings.ToUpper(strings.TrimSpace(o.Currency))
}

// Payer represents the customer making the payment.
type Payer struct {
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Address   string        `json:"address"`
	Country   string        `json:"country"`
	City      string        `json:"city"`
	Zip       string        `json:"zip"`
	Email     string        `json:"email"`
	Phone     string        `json:"phone"`
	IP        string        `json:"ip"`
	Options   *PayerOptions `json:"options,omitempty"`
}

// PayerOptions holds the optional payer extension fields.
type PayerOptions struct {
	MiddleName string     `json:"middle_name,omitempty"`
	Address2   string     `json:"address2,omitempty"`
	State      string     `json:"state,omitempty"`
	Birthdate  *time.Time `json:"birthdate,omitempty"`
}

// FullName joins the payer's name parts.
func (p Payer) FullName() string {
	parts := []string{p.FirstName}
	if p.Options != nil && p.Options.MiddleName != "" {
		parts = append(parts, p.Options.MiddleName)
	}
	parts = append(parts, p.LastName)
	return strings.TrimSpace(strings.Join(strings.Fields(strings.Join(parts, " ")), " "))
}

// Contact is the payer record produced by the Apple Pay payment sheet.
type Contact struct {
	GivenName   string `json:"given_name"`
	FamilyName  string `json:"family_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Street      string `json:"street"`
	City        string `json:"city"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
	State       string `json:"state"`
}

// PayerFromContact converts a wallet contact into a Payer. The IP address is
// not part of the contact and must be supplied by the caller.
func PayerFromContact(c Contact, ip string) Payer {
	payer := Payer{
		FirstName: c.GivenName,
		LastName:  c.FamilyName,
		Address:   c.Street,
		Country:   strings.ToUpper(c.CountryCode),
		City:      c.City,
		Zip:       c.PostalCode,
		Email:     c.Email,
		Phone:     c.Phone,
		IP:        ip,
	}
	if c.State != "" {
		payer.Options = &PayerOptions{State: c.State}
	}
	return payer
}

// InstrumentKind identifies the payment instrument variant.
type InstrumentKind string

const (
	InstrumentCard     InstrumentKind = "card"
	InstrumentApplePay InstrumentKind = "applepay"
)

// Instrument is the payment method used for one attempt: a Card or an
// ApplePayToken. The set of variants is closed.
type Instrument interface {
	Kind() InstrumentKind
	// Fingerprint identifies the instrument without exposing it.
	Fingerprint() string
	isInstrument()
}

// Card holds raw card details.
type Card struct {
	Number      string `json:"number"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	CVV         string `json:"cvv"`
	HolderName  string `json:"holder_name"`
}

func (Card) Kind() InstrumentKind { return InstrumentCard }

func (c Card) Fingerprint() string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, c.Number)
	if len(digits) < 10 {
		return "card:****"
	}
	return "card:" + digits[:6] + "******" + digits[len(digits)-4:]
}

func (Card) isInstrument() {}

// ApplePayToken is the opaque wallet blob produced by the payment sheet. The
// SDK never inspects PaymentData.
type ApplePayToken struct {
	PaymentData           json.RawMessage `json:"payment_data"`
	Network               string          `json:"network"`
	MethodType            string          `json:"method_type"`
	DisplayName           string          `json:"display_name,omitempty"`
	TransactionIdentifier string          `json:"transaction_identifier,omitempty"`
}

func (ApplePayToken) Kind() InstrumentKind { return InstrumentApplePay }

func (t ApplePayToken) Fingerprint() string {
	network := strings.ToLower(t.Network)
	if network == "" {
		network = "unknown"
	}
	if t.DisplayName != "" {
		return "applepay:" + network + ":" + t.DisplayName
	}
	return "applepay:" + network
}

func (ApplePayToken) isInstrument() {}

// Credentials are the merchant credentials, read once per execute.
type Credentials struct {
	MerchantKey    string
	MerchantSecret string
	BaseURL        string
}

// SaleOptions are the per-attempt settings that are not part of the order.
type SaleOptions struct {
	// AttemptID correlates challenge surfaces with the attempt. Optional.
	AttemptID          string
	ChannelID          string
	RecurringInit      bool
	AuthOnly           bool
	TermURL3DS         string
	SuccessURL         string
	CancelURL          string
	ApplePayMerchantID string
}

// SignedRequest is the canonical order plus its integrity hash.
type SignedRequest struct {
	OrderID     string
	Amount      string
	Currency    string
	Description string
	Hash        string
}

// SessionToken authorizes exactly one purchase submission. It remembers the
// hash of the signed request it was issued for.
type SessionToken struct {
	Value     string
	boundHash string
}

// NewSessionToken binds a token value to a signed request.
func NewSessionToken(value string, signed SignedRequest) SessionToken {
	return SessionToken{Value: value, boundHash: signed.Hash}
}

// BoundTo reports whether the token was issued for the signed request.
func (t SessionToken) BoundTo(signed SignedRequest) bool {
	return t.Value != "" && t.boundHash == signed.Hash
}

// SessionRequest is the session descriptor sent in the first round-trip.
type SessionRequest struct {
	BaseURL     string
	Signed      SignedRequest
	Method      InstrumentKind
	MerchantKey string
	SuccessURL  string
	CancelURL   string
	Payer       Payer
}

// PurchaseRequest carries everything the second round-trip needs.
type PurchaseRequest struct {
	BaseURL    string
	Signed     SignedRequest
	Token      SessionToken
	Instrument Instrument
	Payer      Payer
	Options    SaleOptions
}

// TransactionRecord is the storage unit of the transaction history.
type TransactionRecord struct {
	ID                    string     `json:"id"`
	OrderID               string     `json:"order_id"`
	TransactionID         string     `json:"transaction_id,omitempty"`
	PayerEmail            string     `json:"payer_email"`
	InstrumentFingerprint string     `json:"instrument_fingerprint"`
	Outcome               ResultKind `json:"outcome"`
	Summary               string     `json:"summary"`
	IsAuthOnly            bool       `json:"is_auth_only"`
	RecurringToken        string     `json:"recurring_token,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}
