package main

import (
	"errors"
	"fmt"

	"github.com/expresspay/expresspay-go/internal/adapters/merchant"
	"github.com/spf13/cobra"
)

func callbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "callback",
		Short: "Work with transaction callbacks sent to the merchant backend",
	}
	cmd.AddCommand(callbackVerifyCmd())
	return cmd
}

func callbackVerifyCmd() *cobra.Command {
	var orderID, recordID, signature, secret string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the " + merchant.SignatureHeader + " header of a received callback",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				secret = cfg.Backend.CallbackSecret
			}
			if secret == "" {
				return errors.New("no callback secret: pass --secret or set MERCHANT_CALLBACK_SECRET")
			}

			if !merchant.VerifySignature(signature, orderID, recordID, secret) {
				return fmt.Errorf("signature does not match order %s / record %s", orderID, recordID)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signature OK")
			return nil
		},
	}

	cmd.Flags().StringVar(&orderID, "order", "", "order id of the callback")
	cmd.Flags().StringVar(&recordID, "record", "", "record id (X-Request-ID header)")
	cmd.Flags().StringVar(&signature, "signature", "", "value of the "+merchant.SignatureHeader+" header")
	cmd.Flags().StringVar(&secret, "secret", "", "callback secret (defaults to the configured one)")
	_ = cmd.MarkFlagRequired("order")
	_ = cmd.MarkFlagRequired("record")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}
