// ExpressPay payment service
//
// This is the main entry point for the payment API. It wires up all
// dependencies and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/expresspay/expresspay-go/config"
	"github.com/expresspay/expresspay-go/internal/adapters/browser"
	"github.com/expresspay/expresspay-go/internal/adapters/expresspay"
	"github.com/expresspay/expresspay-go/internal/adapters/history"
	"github.com/expresspay/expresspay-go/internal/adapters/merchant"
	"github.com/expresspay/expresspay-go/internal/core/ports"
	"github.com/expresspay/expresspay-go/internal/core/service"
	"github.com/expresspay/expresspay-go/internal/handlers"
	"github.com/expresspay/expresspay-go/internal/patterns"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	log.Info("Starting ExpressPay payment service...")

	// Load configuration
	var cfg *config.Config
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			log.WithError(err).Fatal("Configuration error")
		}
	} else {
		cfg = config.Load()
	}
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Configuration error")
	}
	log.WithFields(log.Fields{
		"port":        cfg.Server.Port,
		"payment_url": cfg.Gateway.PaymentURL,
		"public_url":  cfg.Server.PublicURL,
	}).Info("Configuration loaded")
	if cfg.Server.APIKey == "" {
		log.Warn("SERVICE_API_KEY not set, API is unauthenticated")
	}

	// Wire up dependencies (manual dependency injection)
	//
	// Infrastructure Layer
	store, err := history.Open(cfg.History.DSN)
	if err != nil {
		log.WithError(err).Fatal("Failed to open transaction history")
	}

	var credentials ports.CredentialsProvider = config.NewStaticCredentials(cfg.Credentials())
	if cfg.Backend.URL != "" {
		backend := merchant.NewClient(cfg.Backend.URL, cfg.Backend.APIKey, cfg.Backend.CallbackSecret)
		credentials = backend
		store = history.NewForwardingStore(store, backend)
		log.WithField("backend_url", cfg.Backend.URL).Info("Using merchant backend for credentials and callbacks")
	}

	var breaker *patterns.CircuitBreakerWrapper
	clientOpts := []expresspay.ClientOption{expresspay.WithTimeout(cfg.Gateway.Timeout)}
	if cfg.Gateway.BreakerEnabled {
		breaker = patterns.NewCircuitBreaker("expresspay-gateway", "expresspay-go")
		clientOpts = append(clientOpts, expresspay.WithCircuitBreaker(breaker))
	}
	client := expresspay.NewClient(cfg.Gateway.UserAgent, clientOpts...)
	relay := browser.NewRelay(cfg.Server.PublicURL)

	// Service Layer
	adapter := service.NewTransactionAdapter(
		expresspay.NewSigner(),
		client, // implements ports.SessionOpener
		client, // implements ports.PurchaseSubmitter
		expresspay.NewDecoder(),
		relay, // implements ports.ChallengeSurface
		store,
		credentials,
	)

	// API Layer
	handler := handlers.NewPaymentHandler(adapter, relay, store, breaker, handlers.Settings{
		SuccessURL:         cfg.Challenge.SuccessURL,
		CancelURL:          cfg.Challenge.CancelURL,
		TermURL3DS:         cfg.Challenge.TermURL3DS,
		ApplePayMerchantID: cfg.Merchant.ApplePayMerchantID,
		AttemptTimeout:     cfg.Challenge.Timeout,
	})
	router := handlers.SetupRouter(handler, handlers.NewChallengeHandler(relay), cfg.Server.GinMode, cfg.Server.APIKey)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.WithField("addr", srv.Addr).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.WithError(err).Error("Failed to close transaction history")
		}
	}
}
