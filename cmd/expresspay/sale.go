package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/expresspay/expresspay-go/config"
	"github.com/expresspay/expresspay-go/internal/adapters/browser"
	"github.com/expresspay/expresspay-go/internal/adapters/expresspay"
	"github.com/expresspay/expresspay-go/internal/adapters/history"
	"github.com/expresspay/expresspay-go/internal/adapters/merchant"
	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/expresspay/expresspay-go/internal/core/ports"
	"github.com/expresspay/expresspay-go/internal/core/service"
	"github.com/expresspay/expresspay-go/internal/patterns"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type saleFlags struct {
	orderID     string
	amount      string
	currency    string
	description string

	cardNumber string
	expMonth   int
	expYear    int
	cvv        string
	holder     string

	firstName string
	lastName  string
	email     string
	phone     string
	address   string
	city      string
	zip       string
	country   string
	ip        string

	channelID     string
	recurringInit bool
	authOnly      bool
	jsonOutput    bool
}

func saleCmd() *cobra.Command {
	var f saleFlags

	cmd := &cobra.Command{
		Use:   "sale",
		Short: "Run a card sale",
		Long: `Run a card sale end to end: sign the order, open a session, submit the
purchase and follow any 3-D Secure redirect with the headless browser.

Examples:
  expresspay sale --order ORD1 --amount 10.00 --currency SAR \
    --card 4111111111111111 --exp-month 12 --exp-year 2030 --cvv 123 \
    --first-name Jane --last-name Doe --email jane@example.com --country SA`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSale(cmd.Context(), f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.orderID, "order", "", "order id")
	flags.StringVar(&f.amount, "amount", "", "order amount, e.g. 10.00")
	flags.StringVar(&f.currency, "currency", "SAR", "ISO-4217 currency code")
	flags.StringVar(&f.description, "description", "", "order description")

	flags.StringVar(&f.cardNumber, "card", "", "card number")
	flags.IntVar(&f.expMonth, "exp-month", 0, "card expiry month")
	flags.IntVar(&f.expYear, "exp-year", 0, "card expiry year (four digits)")
	flags.StringVar(&f.cvv, "cvv", "", "card security code")
	flags.StringVar(&f.holder, "holder", "", "card holder name")

	flags.StringVar(&f.firstName, "first-name", "", "payer first name")
	flags.StringVar(&f.lastName, "last-name", "", "payer last name")
	flags.StringVar(&f.email, "email", "", "payer email")
	flags.StringVar(&f.phone, "phone", "", "payer phone")
	flags.StringVar(&f.address, "address", "", "payer street address")
	flags.StringVar(&f.city, "city", "", "payer city")
	flags.StringVar(&f.zip, "zip", "", "payer postal code")
	flags.StringVar(&f.country, "country", "", "payer ISO-3166 country code")
	flags.StringVar(&f.ip, "ip", "127.0.0.1", "payer IP address")

	flags.StringVar(&f.channelID, "channel", "", "gateway channel id")
	flags.BoolVar(&f.recurringInit, "recurring", false, "initialize a recurring token")
	flags.BoolVar(&f.authOnly, "auth-only", false, "authorize without capture")
	flags.BoolVarP(&f.jsonOutput, "json", "j", false, "output the result as JSON")

	_ = cmd.MarkFlagRequired("order")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("card")

	return cmd
}

func runSale(ctx context.Context, f saleFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	amount, err := decimal.NewFromString(f.amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", f.amount, err)
	}

	store, err := history.Open(cfg.History.DSN)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	adapter := newAdapter(cfg, store)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	attempt := adapter.Execute(ctx,
		domain.Order{ID: f.orderID, Amount: amount, Currency: f.currency, Description: f.description},
		domain.Card{
			Number:      f.cardNumber,
			ExpiryMonth: f.expMonth,
			ExpiryYear:  f.expYear,
			CVV:         f.cvv,
			HolderName:  f.holder,
		},
		domain.Payer{
			FirstName: f.firstName,
			LastName:  f.lastName,
			Address:   f.address,
			Country:   f.country,
			City:      f.city,
			Zip:       f.zip,
			Email:     f.email,
			Phone:     f.phone,
			IP:        f.ip,
		},
		service.Options{
			SaleOptions: domain.SaleOptions{
				ChannelID:     f.channelID,
				RecurringInit: f.recurringInit,
				AuthOnly:      f.authOnly,
				TermURL3DS:    cfg.Challenge.TermURL3DS,
				SuccessURL:    cfg.Challenge.SuccessURL,
				CancelURL:     cfg.Challenge.CancelURL,
			},
			Timeout:          cfg.Challenge.Timeout,
			OnAuthentication: func(i domain.Instrument) {
				log.WithField("instrument", i.Fingerprint()).Debug("Authenticating with gateway")
			},
			// The result is printed from Wait.
			OnSuccess: func(domain.TransactionResult) {},
			OnFailure: func(domain.TransactionResult) {},
		},
	)

	res, err := attempt.Wait(ctx)
	if err != nil {
		attempt.Cancel()
		res, _ = attempt.Result()
	}
	return printResult(os.Stdout, res, f.jsonOutput)
}

func newAdapter(cfg *config.Config, store history.Store) *service.TransactionAdapter {
	opts := []expresspay.ClientOption{expresspay.WithTimeout(cfg.Gateway.Timeout)}
	if cfg.Gateway.BreakerEnabled {
		opts = append(opts, expresspay.WithCircuitBreaker(
			patterns.NewCircuitBreaker("expresspay-gateway", "expresspay-cli")))
	}
	client := expresspay.NewClient(cfg.Gateway.UserAgent, opts...)

	var credentials ports.CredentialsProvider = config.NewStaticCredentials(cfg.Credentials())
	if cfg.Backend.URL != "" {
		backend := merchant.NewClient(cfg.Backend.URL, cfg.Backend.APIKey, cfg.Backend.CallbackSecret)
		credentials = backend
		store = history.NewForwardingStore(store, backend)
	}

	return service.NewTransactionAdapter(
		expresspay.NewSigner(),
		client,
		client,
		expresspay.NewDecoder(),
		browser.NewHeadless(
			browser.WithUserAgent(cfg.Gateway.UserAgent),
			browser.WithTimeout(cfg.Gateway.Timeout),
		),
		store,
		credentials,
	)
}

func printResult(w io.Writer, res domain.TransactionResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "Outcome:     %s\n", res.Kind)
		if res.Details != nil {
			fmt.Fprintf(w, "Order:       %s\n", res.Details.OrderID)
			fmt.Fprintf(w, "Transaction: %s\n", res.Details.TransactionID)
			fmt.Fprintf(w, "Amount:      %s %s\n", res.Details.Amount.StringFixed(2), res.Details.Currency)
			if !res.Details.TransactionDate.IsZero() {
				fmt.Fprintf(w, "Date:        %s\n", expresspay.FormatGatewayDate(res.Details.TransactionDate))
			}
		}
		if res.RecurringToken != "" {
			fmt.Fprintf(w, "Recurring:   %s\n", res.RecurringToken)
		}
		for _, a := range res.Anomalies {
			fmt.Fprintf(w, "Warning:     %s\n", a)
		}
		if res.Failure != nil {
			fmt.Fprintf(w, "Code:        %s\n", res.Failure.Code)
			fmt.Fprintf(w, "Reason:      %s\n", res.Failure.Reason)
			for _, v := range res.Failure.ValidationErrors {
				fmt.Fprintf(w, "  - %s\n", v)
			}
		}
	}

	if !res.IsTerminalSuccess() {
		return fmt.Errorf("payment did not succeed: %s", res.Kind)
	}
	return nil
}
