// Package binance provides Binance spot REST connectivity.
package binance

import (
	"time"
)

// Config holds Binance client configuration.
type Config struct {
	// Endpoint settings
	BaseURL   string
	APIKey    string
	APISecret string

	// Timeouts
	RequestTimeout time.Duration
	RecvWindowMs   int

	// Rate limiting
	MaxRequestsPerSecond int

	// Transient-error retry
	MaxRetries        int
	RetryBaseInterval time.Duration
}

// DefaultConfig returns default Binance configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:              "https://api.binance.com",
		RequestTimeout:       10 * time.Second,
		RecvWindowMs:         5000,
		MaxRequestsPerSecond: 10,
		MaxRetries:           3,
		RetryBaseInterval:    time.Second,
	}
}

// TestnetConfig returns configuration for the spot testnet.
func TestnetConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://testnet.binance.vision"
	return cfg
}
