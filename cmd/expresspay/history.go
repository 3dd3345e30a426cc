package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/expresspay/expresspay-go/internal/adapters/expresspay"
	"github.com/expresspay/expresspay-go/internal/adapters/history"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the local transaction history",
	}
	cmd.AddCommand(historyListCmd())
	cmd.AddCommand(historyClearCmd())
	return cmd
}

func historyListCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded transactions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openHistory()
			if err != nil {
				return err
			}
			defer closeStore()

			records, err := store.List(context.Background(), limit)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			if len(records) == 0 {
				fmt.Println("No transactions recorded.")
				return nil
			}
			fmt.Printf("%-20s %-16s %-14s %-24s %s\n", "CREATED", "ORDER", "OUTCOME", "INSTRUMENT", "SUMMARY")
			fmt.Println(strings.Repeat("-", 100))
			for _, r := range records {
				fmt.Printf("%-20s %-16s %-14s %-24s %s\n",
					expresspay.FormatGatewayDate(r.CreatedAt), r.OrderID, r.Outcome, r.InstrumentFingerprint, r.Summary)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum records (0 for all)")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func historyClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear history without --yes")
			}

			store, closeStore, err := openHistory()
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Clear(context.Background()); err != nil {
				return fmt.Errorf("clear history: %w", err)
			}
			fmt.Println("Transaction history cleared.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

// openHistory opens the configured store. History kept in memory does not
// survive between CLI runs, so a DSN is required.
func openHistory() (history.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.History.DSN == "" {
		return nil, nil, fmt.Errorf("HISTORY_DSN is not set; the CLI needs a sqlite history file")
	}

	store, err := history.OpenSQLite(cfg.History.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}
