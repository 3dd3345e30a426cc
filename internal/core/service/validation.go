package service

import (
	"strings"

	"github.com/expresspay/expresspay-go/internal/core/domain"
)

// validateRequest collects every failed precondition that can be checked
// without credentials.
func validateRequest(
	order domain.Order,
	instrument domain.Instrument,
	payer domain.Payer,
	opts Options,
) []string {
	var errs []string

	if opts.OnSuccess == nil {
		errs = append(errs, "OnSuccess hook is not set")
	}
	if opts.OnFailure == nil {
		errs = append(errs, "OnFailure hook is not set")
	}

	switch instrument.(type) {
	case nil:
		errs = append(errs, "Missing payment instrument")
	case domain.ApplePayToken:
		if strings.TrimSpace(opts.ApplePayMerchantID) == "" {
			errs = append(errs, "Missing or invalid apple pay 'merchant identifier'")
		}
	}

	if strings.TrimSpace(order.ID) == "" {
		errs = append(errs, "Missing or invalid order id")
	}
	if !order.Amount.GreaterThan(domain.MinimumAmount) {
		errs = append(errs, "Missing or invalid amount should be greater than 1.00")
	}
	if order.CurrencyCode() == "" {
		errs = append(errs, "Missing or invalid currency code (example: 'SAR' for Saudi Riyal)")
	}
	if strings.TrimSpace(payer.Country) == "" {
		errs = append(errs, "Missing or invalid country code (example:'SA' for SaudiArabia)")
	}

	return errs
}

// validateCredentials checks what the provider returned. An empty result
// means the attempt may touch the gateway.
func validateCredentials(creds domain.Credentials, credErr error) []string {
	if credErr != nil {
		return []string{"Merchant credentials are unavailable: " + credErr.Error()}
	}

	var errs []string
	if strings.TrimSpace(creds.MerchantKey) == "" {
		errs = append(errs, "Missing or invalid 'merchant key'")
	}
	if creds.MerchantSecret == "" {
		errs = append(errs, "Missing or invalid 'merchant password'")
	}
	if strings.TrimSpace(creds.BaseURL) == "" {
		errs = append(errs, "Missing or invalid gateway base url")
	}
	return errs
}
