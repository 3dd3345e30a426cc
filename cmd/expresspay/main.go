// Command expresspay runs payments against the ExpressPay gateway from the
// command line and manages the local transaction history.
package main

import (
	"fmt"
	"os"

	"github.com/expresspay/expresspay-go/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "expresspay",
		Short:   "ExpressPay - card and Apple Pay transactions from the terminal",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			log.SetOutput(os.Stderr)
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (environment variables still win)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	// Add subcommands
	rootCmd.AddCommand(saleCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(callbackCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config when given, the environment otherwise.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFile(configPath); err != nil {
			return nil, err
		}
	} else {
		cfg = config.Load()
	}

	if !verbose {
		if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
			log.SetLevel(level)
		}
	}
	return cfg, nil
}
