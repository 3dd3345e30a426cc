package expresspay

import (
	"encoding/json"
	"fmt"

	"github.com/expresspay/expresspay-go/internal/core/domain"
)

// Gateway endpoints, relative to the credentials' base URL.
const (
	PathSession         = "/api/v1/session"
	PathCardPurchase    = "/processing/purchase/card"
	PathVirtualPurchase = "/processing/purchase/virtual"
)

const birthdateLayout = "2006-01-02"

// orderBody is the canonical order as it appears on the wire. Amount is the
// exact string that was hashed.
type orderBody struct {
	Number      string `json:"number"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type customerBody struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// sessionBody is the session descriptor of the first round-trip.
type sessionBody struct {
	Hash        string       `json:"hash"`
	Method      string       `json:"method"`
	MerchantKey string       `json:"merchant_key"`
	SuccessURL  string       `json:"success_url"`
	CancelURL   string       `json:"cancel_url"`
	Order       orderBody    `json:"order"`
	Customer    customerBody `json:"customer"`
}

type payerBody struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	MiddleName string `json:"middle_name,omitempty"`
	Address    string `json:"address"`
	Address2   string `json:"address2,omitempty"`
	Country    string `json:"country"`
	State      string `json:"state,omitempty"`
	City       string `json:"city"`
	Zip        string `json:"zip"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	BirthDate  string `json:"birth_date,omitempty"`
	IP         string `json:"ip"`
}

type cardBody struct {
	Number      string `json:"number"`
	ExpireMonth string `json:"expire_month"`
	ExpireYear  string `json:"expire_year"`
	CVV         string `json:"cvv"`
	Holder      string `json:"holder,omitempty"`
}

type cardPurchaseBody struct {
	Order         orderBody `json:"order"`
	Card          cardBody  `json:"card"`
	Payer         payerBody `json:"payer"`
	TermURL3DS    string    `json:"term_url_3ds,omitempty"`
	RecurringInit string    `json:"recurring_init"`
	Auth          string    `json:"auth"`
	ChannelID     string    `json:"channel_id,omitempty"`
	Hash          string    `json:"hash"`
}

type walletBody struct {
	PaymentData           json.RawMessage `json:"payment_data"`
	Network               string          `json:"network"`
	Type                  string          `json:"type"`
	DisplayName           string          `json:"display_name,omitempty"`
	TransactionIdentifier string          `json:"transaction_identifier,omitempty"`
}

type virtualPurchaseBody struct {
	Order   orderBody  `json:"order"`
	Payment walletBody `json:"payment"`
	Payer   payerBody  `json:"payer"`
	Hash    string     `json:"hash"`
}

func newOrderBody(signed domain.SignedRequest) orderBody {
	return orderBody{
		Number:      signed.OrderID,
		Amount:      signed.Amount,
		Currency:    signed.Currency,
		Description: signed.Description,
	}
}

func newSessionBody(req domain.SessionRequest) sessionBody {
	return sessionBody{
		Hash:        req.Signed.Hash,
		Method:      string(req.Method),
		MerchantKey: req.MerchantKey,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
		Order:       newOrderBody(req.Signed),
		Customer: customerBody{
			Name:  req.Payer.FullName(),
			Email: req.Payer.Email,
			Phone: req.Payer.Phone,
		},
	}
}

func newPayerBody(p domain.Payer) payerBody {
	body := payerBody{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Address:   p.Address,
		Country:   p.Country,
		City:      p.City,
		Zip:       p.Zip,
		Email:     p.Email,
		Phone:     p.Phone,
		IP:        p.IP,
	}
	if opts := p.Options; opts != nil {
		body.MiddleName = opts.MiddleName
		body.Address2 = opts.Address2
		body.State = opts.State
		if opts.Birthdate != nil {
			body.BirthDate = opts.Birthdate.Format(birthdateLayout)
		}
	}
	return body
}

func yesNo(v bool) string {
	if v {
		return "Y"
	}
	return "N"
}

// buildPurchase selects the instrument-specific path and body.
func buildPurchase(req domain.PurchaseRequest) (string, any, error) {
	switch instr := req.Instrument.(type) {
	case domain.Card:
		return PathCardPurchase, cardPurchaseBody{
			Order: newOrderBody(req.Signed),
			Card: cardBody{
				Number:      instr.Number,
				ExpireMonth: fmt.Sprintf("%02d", instr.ExpiryMonth),
				ExpireYear:  fmt.Sprintf("%04d", instr.ExpiryYear),
				CVV:         instr.CVV,
				Holder:      instr.HolderName,
			},
			Payer:         newPayerBody(req.Payer),
			TermURL3DS:    req.Options.TermURL3DS,
			RecurringInit: yesNo(req.Options.RecurringInit),
			Auth:          yesNo(req.Options.AuthOnly),
			ChannelID:     req.Options.ChannelID,
			Hash:          req.Signed.Hash,
		}, nil

	case domain.ApplePayToken:
		return PathVirtualPurchase, virtualPurchaseBody{
			Order: newOrderBody(req.Signed),
			Payment: walletBody{
				PaymentData:           instr.PaymentData,
				Network:               instr.Network,
				Type:                  instr.MethodType,
				DisplayName:           instr.DisplayName,
				TransactionIdentifier: instr.TransactionIdentifier,
			},
			Payer: newPayerBody(req.Payer),
			Hash:  req.Signed.Hash,
		}, nil

	default:
		return "", nil, fmt.Errorf("unsupported instrument %T", req.Instrument)
	}
}
