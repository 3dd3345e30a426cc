// Package config handles loading and managing application configuration.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/spf13/viper"
)

// DefaultPaymentURL is the production gateway.
const DefaultPaymentURL = "https://pay.expresspay.sa"

// Config holds all configuration for the application. It is immutable once
// loaded.
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Gateway connection settings
	Gateway GatewayConfig `mapstructure:"gateway"`

	// Merchant credentials
	Merchant MerchantConfig `mapstructure:"merchant"`

	// Redirect/3DS return URLs and limits
	Challenge ChallengeConfig `mapstructure:"challenge"`

	// Optional merchant backend for credentials and callbacks
	Backend BackendConfig `mapstructure:"backend"`

	History HistoryConfig `mapstructure:"history"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port    string `mapstructure:"port"`
	GinMode string `mapstructure:"gin_mode"` // "debug", "release", or "test"
	// PublicURL is where browsers reach this service (challenge relay).
	PublicURL string `mapstructure:"public_url"`
	APIKey    string `mapstructure:"api_key"`
}

// GatewayConfig holds gateway connection settings.
type GatewayConfig struct {
	PaymentURL     string        `mapstructure:"payment_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	BreakerEnabled bool          `mapstructure:"breaker_enabled"`
}

// MerchantConfig holds the merchant credentials.
type MerchantConfig struct {
	Key                string `mapstructure:"key"`
	Password           string `mapstructure:"password"`
	ApplePayMerchantID string `mapstructure:"apple_pay_merchant_id"`
}

// ChallengeConfig holds redirect/3DS settings.
type ChallengeConfig struct {
	SuccessURL string        `mapstructure:"success_url"`
	CancelURL  string        `mapstructure:"cancel_url"`
	TermURL3DS string        `mapstructure:"term_url_3ds"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// BackendConfig points at the merchant's own backend. When URL is set the
// merchant credentials are fetched from it and finished transactions are
// forwarded to it.
type BackendConfig struct {
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"api_key"`
	CallbackSecret string `mapstructure:"callback_secret"`
}

// HistoryConfig selects the transaction history backend.
type HistoryConfig struct {
	// DSN is a sqlite path. Empty keeps history in memory.
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      "8080",
			GinMode:   "debug",
			PublicURL: "http://localhost:8080",
		},
		Gateway: GatewayConfig{
			PaymentURL:     DefaultPaymentURL,
			UserAgent:      "go.com.expresspay.sdk",
			Timeout:        30 * time.Second,
			BreakerEnabled: true,
		},
		Challenge: ChallengeConfig{
			TermURL3DS: "https://expresspay.sa/process-completed",
			Timeout:    10 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration from environment variables.
// Returns a Config struct with all settings populated.
func Load() *Config {
	cfg := Default()
	applyEnv(cfg)
	return cfg
}

// LoadFile reads a YAML file over the defaults. Environment variables still
// take precedence over the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.GinMode = getEnv("GIN_MODE", cfg.Server.GinMode)
	cfg.Server.PublicURL = getEnv("PUBLIC_URL", cfg.Server.PublicURL)
	cfg.Server.APIKey = getEnv("SERVICE_API_KEY", cfg.Server.APIKey)

	cfg.Gateway.PaymentURL = getEnv("EXPRESSPAY_PAYMENT_URL", cfg.Gateway.PaymentURL)
	cfg.Gateway.UserAgent = getEnv("EXPRESSPAY_USER_AGENT", cfg.Gateway.UserAgent)
	cfg.Gateway.Timeout = getEnvDuration("EXPRESSPAY_TIMEOUT", cfg.Gateway.Timeout)
	cfg.Gateway.BreakerEnabled = getEnvBool("BREAKER_ENABLED", cfg.Gateway.BreakerEnabled)

	cfg.Merchant.Key = getEnv("MERCHANT_KEY", cfg.Merchant.Key)
	cfg.Merchant.Password = getEnv("MERCHANT_PASSWORD", cfg.Merchant.Password)
	cfg.Merchant.ApplePayMerchantID = getEnv("APPLE_PAY_MERCHANT_ID", cfg.Merchant.ApplePayMerchantID)

	cfg.Challenge.SuccessURL = getEnv("EXPRESSPAY_SUCCESS_URL", cfg.Challenge.SuccessURL)
	cfg.Challenge.CancelURL = getEnv("EXPRESSPAY_CANCEL_URL", cfg.Challenge.CancelURL)
	cfg.Challenge.TermURL3DS = getEnv("EXPRESSPAY_TERM_URL_3DS", cfg.Challenge.TermURL3DS)
	cfg.Challenge.Timeout = getEnvDuration("CHALLENGE_TIMEOUT", cfg.Challenge.Timeout)

	cfg.Backend.URL = getEnv("MERCHANT_BACKEND_URL", cfg.Backend.URL)
	cfg.Backend.APIKey = getEnv("MERCHANT_BACKEND_API_KEY", cfg.Backend.APIKey)
	cfg.Backend.CallbackSecret = getEnv("MERCHANT_CALLBACK_SECRET", cfg.Backend.CallbackSecret)

	cfg.History.DSN = getEnv("HISTORY_DSN", cfg.History.DSN)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
}

// Validate reports every missing or malformed required setting. Merchant
// credentials are not required when a backend supplies them.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend.URL == "" {
		if strings.TrimSpace(c.Merchant.Key) == "" {
			errs = append(errs, errors.New("MERCHANT_KEY is required"))
		}
		if c.Merchant.Password == "" {
			errs = append(errs, errors.New("MERCHANT_PASSWORD is required"))
		}
		if !isHTTPURL(c.Gateway.PaymentURL) {
			errs = append(errs, fmt.Errorf("EXPRESSPAY_PAYMENT_URL %q is not a valid http(s) url", c.Gateway.PaymentURL))
		}
	} else if !isHTTPURL(c.Backend.URL) {
		errs = append(errs, fmt.Errorf("MERCHANT_BACKEND_URL %q is not a valid http(s) url", c.Backend.URL))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("EXPRESSPAY_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https")
}

// Credentials returns the merchant credentials.
func (c *Config) Credentials() domain.Credentials {
	return domain.Credentials{
		MerchantKey:    c.Merchant.Key,
		MerchantSecret: c.Merchant.Password,
		BaseURL:        c.Gateway.PaymentURL,
	}
}

// StaticCredentials implements ports.CredentialsProvider over fixed values.
type StaticCredentials struct {
	creds domain.Credentials
}

// NewStaticCredentials creates a provider that always returns creds.
func NewStaticCredentials(creds domain.Credentials) *StaticCredentials {
	return &StaticCredentials{creds: creds}
}

// Credentials returns the configured credentials.
func (s *StaticCredentials) Credentials(ctx context.Context) (domain.Credentials, error) {
	return s.creds, nil
}

// getEnv retrieves an environment variable with a fallback default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean with a fallback.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or whole seconds ("45").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
