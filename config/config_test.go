package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "EXPRESSPAY_PAYMENT_URL", "EXPRESSPAY_TIMEOUT", "EXPRESSPAY_USER_AGENT", "BREAKER_ENABLED", "HISTORY_DSN"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DefaultPaymentURL, cfg.Gateway.PaymentURL)
	assert.Equal(t, "go.com.expresspay.sdk", cfg.Gateway.UserAgent)
	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout)
	assert.True(t, cfg.Gateway.BreakerEnabled)
	assert.Empty(t, cfg.History.DSN)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("MERCHANT_KEY", "key-1")
	t.Setenv("MERCHANT_PASSWORD", "pass-1")
	t.Setenv("EXPRESSPAY_TIMEOUT", "45")
	t.Setenv("CHALLENGE_TIMEOUT", "2m")
	t.Setenv("BREAKER_ENABLED", "false")
	t.Setenv("HISTORY_DSN", "/tmp/history.db")
	t.Setenv("EXPRESSPAY_PAYMENT_URL", "")
	t.Setenv("MERCHANT_BACKEND_URL", "")

	cfg := Load()

	assert.Equal(t, "key-1", cfg.Merchant.Key)
	assert.Equal(t, 45*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Challenge.Timeout)
	assert.False(t, cfg.Gateway.BreakerEnabled)
	assert.Equal(t, "/tmp/history.db", cfg.History.DSN)
	assert.NoError(t, cfg.Validate())

	creds, err := NewStaticCredentials(cfg.Credentials()).Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key-1", creds.MerchantKey)
	assert.Equal(t, "pass-1", creds.MerchantSecret)
	assert.Equal(t, DefaultPaymentURL, creds.BaseURL)
}

func TestLoadFile_EnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expresspay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
gateway:
  payment_url: https://sandbox.example
  timeout: 10s
merchant:
  key: file-key
  password: file-pass
challenge:
  success_url: https://shop.example/success
`), 0o600))
	for _, key := range []string{"PORT", "EXPRESSPAY_PAYMENT_URL", "EXPRESSPAY_TIMEOUT", "EXPRESSPAY_USER_AGENT", "MERCHANT_PASSWORD", "EXPRESSPAY_SUCCESS_URL"} {
		t.Setenv(key, "")
	}
	t.Setenv("MERCHANT_KEY", "env-key")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "https://sandbox.example", cfg.Gateway.PaymentURL)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, "env-key", cfg.Merchant.Key)
	assert.Equal(t, "file-pass", cfg.Merchant.Password)
	assert.Equal(t, "https://shop.example/success", cfg.Challenge.SuccessURL)
	assert.Equal(t, "go.com.expresspay.sdk", cfg.Gateway.UserAgent, "unset keys keep defaults")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_BackendSuppliesCredentials(t *testing.T) {
	cfg := Default()
	cfg.Backend.URL = "https://merchant.example"
	assert.NoError(t, cfg.Validate())

	cfg.Backend.URL = "merchant.example"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MERCHANT_BACKEND_URL")
	assert.NotContains(t, err.Error(), "MERCHANT_KEY")
}

func TestValidate_ReportsEverything(t *testing.T) {
	cfg := Default()
	cfg.Gateway.PaymentURL = "ftp://bad"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MERCHANT_KEY")
	assert.Contains(t, err.Error(), "MERCHANT_PASSWORD")
	assert.Contains(t, err.Error(), "EXPRESSPAY_PAYMENT_URL")
}
